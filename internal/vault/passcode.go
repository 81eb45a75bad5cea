package vault

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"syscall"

	"golang.org/x/crypto/argon2"
	"golang.org/x/term"

	klog "github.com/Klingon-tech/vaultpass/internal/log"
	"github.com/Klingon-tech/vaultpass/internal/storage"
)

// Passcode constants.
const (
	// AuthKindPasscode is the Biometry.Kind reported for passcode auth.
	AuthKindPasscode = "passcode"

	// MinPasscodeLength is the shortest passcode Enroll accepts.
	MinPasscodeLength = 6

	verifierSaltSize = 16
	verifierHashSize = 32
)

var verifierKey = []byte("passcode")

// ErrPasscodeTooShort is returned by Enroll.
var ErrPasscodeTooShort = fmt.Errorf("passcode must be at least %d characters", MinPasscodeLength)

// KDFParams holds Argon2id parameters.
type KDFParams struct {
	Memory      uint32 `json:"memory"` // in KiB
	Iterations  uint32 `json:"iterations"`
	Parallelism uint8  `json:"parallelism"`
}

// DefaultKDFParams returns recommended Argon2id parameters.
func DefaultKDFParams() KDFParams {
	return KDFParams{
		Memory:      64 * 1024, // 64 MB
		Iterations:  3,
		Parallelism: 4,
	}
}

func (p KDFParams) valid() bool {
	return p.Iterations > 0 && p.Parallelism > 0 && p.Memory >= 8*uint32(p.Parallelism)
}

// passcodeVerifier is the stored Argon2id verifier. It never contains the
// passcode itself.
type passcodeVerifier struct {
	Params KDFParams `json:"params"`
	Salt   []byte    `json:"salt"`
	Hash   []byte    `json:"hash"`
}

func deriveVerifier(passcode, salt []byte, params KDFParams) []byte {
	return argon2.IDKey(
		passcode,
		salt,
		params.Iterations,
		params.Memory,
		params.Parallelism,
		verifierHashSize,
	)
}

// PasscodeReader collects the passcode for a prompt.
type PasscodeReader interface {
	ReadPasscode(ctx context.Context, prompt AuthPrompt) ([]byte, error)
}

// PasscodeReaderFunc adapts a function to PasscodeReader.
type PasscodeReaderFunc func(ctx context.Context, prompt AuthPrompt) ([]byte, error)

// ReadPasscode calls f.
func (f PasscodeReaderFunc) ReadPasscode(ctx context.Context, prompt AuthPrompt) ([]byte, error) {
	return f(ctx, prompt)
}

// ErrPromptBusy is returned while an abandoned terminal read still owns
// the terminal.
var ErrPromptBusy = errors.New("previous passcode prompt is still reading the terminal")

// TerminalReader reads the passcode from the controlling terminal without
// echo. At most one read is outstanding per reader.
type TerminalReader struct {
	Fd  int
	Out io.Writer

	// isTerminal and read default to the x/term implementations.
	isTerminal func(fd int) bool
	read       func(fd int) ([]byte, error)

	mu      sync.Mutex
	pending chan termRead
}

type termRead struct {
	pass []byte
	err  error
}

// NewTerminalReader reads from stdin and prompts on stderr.
func NewTerminalReader() *TerminalReader {
	return &TerminalReader{Fd: int(syscall.Stdin), Out: os.Stderr}
}

// ReadPasscode prints the prompt and reads one line without echo.
//
// The terminal read cannot be interrupted. When ctx ends first the read
// stays pending, and later prompts fail with ErrPromptBusy until it
// completes. Its line is discarded.
func (t *TerminalReader) ReadPasscode(ctx context.Context, prompt AuthPrompt) ([]byte, error) {
	isTerminal, read := t.isTerminal, t.read
	if isTerminal == nil {
		isTerminal = term.IsTerminal
	}
	if read == nil {
		read = term.ReadPassword
	}
	if !isTerminal(t.Fd) {
		return nil, errors.New("passcode prompt requires a terminal")
	}

	t.mu.Lock()
	if t.pending != nil {
		select {
		case r := <-t.pending:
			clear(r.pass)
			t.pending = nil
		default:
			t.mu.Unlock()
			fmt.Fprintln(t.Out, "A previous passcode prompt is still open; press Enter to dismiss it.")
			return nil, ErrPromptBusy
		}
	}
	done := make(chan termRead, 1)
	t.pending = done
	t.mu.Unlock()

	fmt.Fprintf(t.Out, "%s: ", prompt.Title)
	go func() {
		pass, err := read(t.Fd)
		done <- termRead{pass, err}
	}()

	select {
	case r := <-done:
		t.mu.Lock()
		if t.pending == done {
			t.pending = nil
		}
		t.mu.Unlock()
		fmt.Fprintln(t.Out) // newline after hidden input
		return r.pass, r.err
	case <-ctx.Done():
		fmt.Fprintln(t.Out)
		return nil, ctx.Err()
	}
}

// PasscodeAuthenticator verifies a device passcode against an Argon2id
// verifier kept in a key-value database, typically scoped to "auth/".
type PasscodeAuthenticator struct {
	db     storage.DB
	reader PasscodeReader
	params KDFParams

	mu sync.Mutex
}

// NewPasscodeAuthenticator creates an authenticator. A nil reader prompts
// on the terminal.
func NewPasscodeAuthenticator(db storage.DB, reader PasscodeReader, params KDFParams) *PasscodeAuthenticator {
	if reader == nil {
		reader = NewTerminalReader()
	}
	return &PasscodeAuthenticator{db: db, reader: reader, params: params}
}

// Enroll sets the device passcode, replacing any previous one.
func (a *PasscodeAuthenticator) Enroll(passcode []byte) error {
	if len(passcode) < MinPasscodeLength {
		return ErrPasscodeTooShort
	}
	if !a.params.valid() {
		return fmt.Errorf("invalid argon2 parameters %+v", a.params)
	}

	salt := make([]byte, verifierSaltSize)
	if _, err := rand.Read(salt); err != nil {
		return fmt.Errorf("generate salt: %w", err)
	}
	v := passcodeVerifier{
		Params: a.params,
		Salt:   salt,
		Hash:   deriveVerifier(passcode, salt, a.params),
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal verifier: %w", err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.db.Put(verifierKey, data); err != nil {
		return fmt.Errorf("store verifier: %w", err)
	}
	klog.Vault.Info().Msg("Passcode enrolled")
	return nil
}

// Unenroll removes the passcode verifier.
func (a *PasscodeAuthenticator) Unenroll() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.db.Delete(verifierKey)
}

// Enrolled reports whether a passcode is set.
func (a *PasscodeAuthenticator) Enrolled() bool {
	ok, err := a.db.Has(verifierKey)
	if err != nil {
		klog.Vault.Error().Err(err).Msg("Failed to read passcode verifier")
		return false
	}
	return ok
}

// Biometry reports passcode availability.
func (a *PasscodeAuthenticator) Biometry(context.Context) Biometry {
	return Biometry{Available: a.Enrolled(), Kind: AuthKindPasscode}
}

// Authenticate prompts for the passcode and checks it against the
// verifier. Returns nil only on a match.
func (a *PasscodeAuthenticator) Authenticate(ctx context.Context, prompt AuthPrompt) error {
	v, err := a.loadVerifier()
	if err != nil {
		return err
	}

	passcode, err := a.reader.ReadPasscode(ctx, prompt)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrAuthFailed, err)
	}
	defer clear(passcode)
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrAuthFailed, err)
	}

	done := klog.Benchmark("passcode verify")
	got := deriveVerifier(passcode, v.Salt, v.Params)
	done()
	defer clear(got)
	if subtle.ConstantTimeCompare(got, v.Hash) != 1 {
		return fmt.Errorf("%w: wrong passcode", ErrAuthFailed)
	}
	return nil
}

func (a *PasscodeAuthenticator) loadVerifier() (*passcodeVerifier, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	data, err := a.db.Get(verifierKey)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrAuthUnavailable
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read verifier: %w", ErrAuthFailed, err)
	}
	var v passcodeVerifier
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("%w: parse verifier: %w", ErrAuthFailed, err)
	}
	if len(v.Salt) != verifierSaltSize || len(v.Hash) != verifierHashSize || !v.Params.valid() {
		return nil, fmt.Errorf("%w: malformed verifier", ErrAuthFailed)
	}
	return &v, nil
}
