// Package node assembles the wallet security core (storage, vault, trust
// evaluator, session, RPC bridge) so it can be embedded in any binary.
package node

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"

	"github.com/Klingon-tech/vaultpass/config"
	"github.com/Klingon-tech/vaultpass/internal/build"
	klog "github.com/Klingon-tech/vaultpass/internal/log"
	"github.com/Klingon-tech/vaultpass/internal/rpc"
	"github.com/Klingon-tech/vaultpass/internal/session"
	"github.com/Klingon-tech/vaultpass/internal/storage"
	"github.com/Klingon-tech/vaultpass/internal/trust"
	"github.com/Klingon-tech/vaultpass/internal/vault"
	"github.com/Klingon-tech/vaultpass/internal/wallet"
)

// Key-value namespaces.
var (
	prefixVault   = []byte("vault/")
	prefixAuth    = []byte("auth/")
	prefixSession = []byte("session/")
)

// Node is a fully-initialized wallet core.
type Node struct {
	cfg    *config.Config
	logger zerolog.Logger

	// Core
	db        storage.DB
	auth      *vault.PasscodeAuthenticator
	vault     *vault.Vault
	evaluator *trust.Evaluator
	session   *session.Session

	// RPC
	rpcServer *rpc.Server

	// Lifecycle
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Option adjusts how New builds the node.
type Option func(*options)

type options struct {
	reader     vault.PasscodeReader
	kdf        vault.KDFParams
	probe      trust.Probe
	trustOpts  []trust.Option
	skipLogger bool
}

// WithPasscodeReader replaces the terminal passcode prompt.
func WithPasscodeReader(r vault.PasscodeReader) Option {
	return func(o *options) { o.reader = r }
}

// WithKDFParams sets the Argon2id parameters used when enrolling.
func WithKDFParams(p vault.KDFParams) Option {
	return func(o *options) { o.kdf = p }
}

// WithProbe replaces the host trust probe.
func WithProbe(p trust.Probe) Option {
	return func(o *options) { o.probe = p }
}

// WithTrustOptions passes extra options to the trust evaluator.
func WithTrustOptions(opts ...trust.Option) Option {
	return func(o *options) { o.trustOpts = append(o.trustOpts, opts...) }
}

// WithoutLoggerInit keeps the current global logger, for embedding.
func WithoutLoggerInit() Option {
	return func(o *options) { o.skipLogger = true }
}

// New creates and initializes a new Node. It performs all setup steps
// (logger, storage, vault, trust, session, RPC) but does NOT start the
// auto-lock watcher. Call Start() for that.
func New(cfg *config.Config, opts ...Option) (*Node, error) {
	o := options{kdf: vault.DefaultKDFParams()}
	for _, opt := range opts {
		opt(&o)
	}

	// ── 1. Init logger ──────────────────────────────────────────────
	if !o.skipLogger {
		logFile := expandHome(cfg.Log.File)
		if logFile == "" {
			logsDir := cfg.LogsDir()
			if err := os.MkdirAll(logsDir, 0700); err != nil {
				return nil, fmt.Errorf("creating logs dir: %w", err)
			}
			logFile = filepath.Join(logsDir, "vaultpassd.log")
		}
		if err := klog.Init(cfg.Log.Level, cfg.Log.JSON, logFile); err != nil {
			return nil, fmt.Errorf("initializing logger: %w", err)
		}
	}
	logger := klog.WithComponent("node")

	logger.Info().
		Str("version", build.Version).
		Str("deployment", build.Deployment.String()).
		Str("backend", string(cfg.Vault.Backend)).
		Str("derivation", cfg.Wallet.Derivation).
		Str("address", cfg.Wallet.Address).
		Msg("Starting VaultPass wallet core")

	// ── 2. Key derivation ───────────────────────────────────────────
	deriver, err := newDeriver(cfg)
	if err != nil {
		return nil, err
	}

	// ── 3. Open storage ─────────────────────────────────────────────
	db, err := openDB(cfg)
	if err != nil {
		return nil, err
	}

	// ── 4. Vault ────────────────────────────────────────────────────
	sealer, err := vault.NewDeviceSealer(cfg.VaultDir())
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("load device key: %w", err)
	}
	store, err := openSecretStore(cfg, db, sealer)
	if err != nil {
		db.Close()
		return nil, err
	}

	reader := o.reader
	if reader == nil {
		reader = vault.NewTerminalReader()
	}
	auth := vault.NewPasscodeAuthenticator(storage.NewPrefixDB(db, prefixAuth), reader, o.kdf)
	v := vault.New(store, auth)
	if !auth.Enrolled() {
		logger.Warn().Msg("No passcode enrolled; run vaultpassd --enroll-passcode before onboarding")
	}

	// ── 5. Trust evaluator ──────────────────────────────────────────
	policy := trust.Policy{
		RequireIntegrity: cfg.Trust.RequireIntegrity,
		BlockEmulator:    cfg.Trust.BlockEmulator,
	}
	evaluator := trust.NewEvaluator(o.probe, policy, o.trustOpts...)
	logVerdict(logger, evaluator.Evaluate(context.Background()))

	// ── 6. Session ──────────────────────────────────────────────────
	sess, err := session.New(session.Config{
		Vault:       v,
		Trust:       evaluator,
		Deriver:     deriver,
		DB:          storage.NewPrefixDB(db, prefixSession),
		IdleTimeout: cfg.Session.IdleTimeout,
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create session: %w", err)
	}
	if err := sess.Initialize(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize session: %w", err)
	}

	// ── 7. RPC server ───────────────────────────────────────────────
	var rpcServer *rpc.Server
	if cfg.RPC.Enabled {
		rpcAddr := cfg.RPCEndpoint()
		rpcServer = rpc.New(rpcAddr, sess, cfg.RPC)
		rpcServer.SetDeriver(deriver)
		rpcServer.SetEvaluator(evaluator, func() trust.ComplianceEnv {
			return trust.ComplianceEnv{
				AuthEnrolled: auth.Enrolled(),
				LoopbackOnly: cfg.LoopbackOnly(),
			}
		})
		if err := rpcServer.Start(); err != nil {
			sess.Teardown()
			db.Close()
			return nil, fmt.Errorf("start RPC at %s: %w", rpcAddr, err)
		}
		if !cfg.LoopbackOnly() {
			logger.Warn().Str("addr", rpcServer.Addr()).Msg("RPC bridge is reachable beyond loopback")
		}
	} else {
		logger.Warn().Msg("RPC disabled by config")
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Node{
		cfg:       cfg,
		logger:    logger,
		db:        db,
		auth:      auth,
		vault:     v,
		evaluator: evaluator,
		session:   sess,
		rpcServer: rpcServer,
		ctx:       ctx,
		cancel:    cancel,
	}, nil
}

// Start launches background goroutines: the session auto-lock watcher.
func (n *Node) Start() error {
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		if err := n.session.Run(n.ctx); err != nil && !errors.Is(err, context.Canceled) {
			n.logger.Error().Err(err).Msg("Auto-lock watcher stopped")
		}
	}()

	n.logger.Info().
		Str("state", n.session.State().String()).
		Str("rpc", n.RPCAddr()).
		Dur("idle_timeout", n.cfg.Session.IdleTimeout).
		Msg("Node started successfully")

	return nil
}

// Stop performs graceful shutdown in reverse order.
func (n *Node) Stop() {
	n.cancel()
	n.wg.Wait()

	if n.rpcServer != nil {
		n.rpcServer.Stop()
	}
	if n.session != nil {
		n.session.Teardown()
	}
	if n.db != nil {
		n.db.Close()
	}

	n.logger.Info().Msg("Goodbye!")
}

// RPCAddr returns the address the RPC server is listening on.
func (n *Node) RPCAddr() string {
	if n.rpcServer == nil {
		return ""
	}
	return n.rpcServer.Addr()
}

// Session returns the wallet session.
func (n *Node) Session() *session.Session {
	return n.session
}

// Evaluator returns the trust evaluator.
func (n *Node) Evaluator() *trust.Evaluator {
	return n.evaluator
}

// PasscodeEnrolled reports whether a passcode is enrolled.
func (n *Node) PasscodeEnrolled() bool {
	return n.auth.Enrolled()
}

// EnrollPasscode sets the passcode that guards the vault, replacing any
// previous one.
func (n *Node) EnrollPasscode(passcode []byte) error {
	if err := n.auth.Enroll(passcode); err != nil {
		return fmt.Errorf("enroll passcode: %w", err)
	}
	return nil
}

// ErrWalletStored is returned by UnenrollPasscode while a secret is stored.
var ErrWalletStored = errors.New("a wallet is stored; wipe it before removing the passcode")

// UnenrollPasscode removes the device passcode. It is refused while the
// vault holds a secret, since that secret could no longer be retrieved.
func (n *Node) UnenrollPasscode() error {
	if n.session.State() != session.NoSecret {
		return ErrWalletStored
	}
	if err := n.auth.Unenroll(); err != nil {
		return fmt.Errorf("unenroll passcode: %w", err)
	}
	return nil
}

// newDeriver builds the deriver selected by the wallet config.
func newDeriver(cfg *config.Config) (*wallet.Deriver, error) {
	addresses, err := wallet.AddressSchemeByName(cfg.Wallet.Address)
	if err != nil {
		return nil, fmt.Errorf("address scheme: %w", err)
	}
	d, err := wallet.NewDeriver(wallet.DerivationScheme(cfg.Wallet.Derivation), addresses)
	if err != nil {
		return nil, fmt.Errorf("derivation scheme: %w", err)
	}
	return d, nil
}

func logVerdict(logger zerolog.Logger, v trust.Verdict) {
	ev := logger.Info()
	if !v.Secure() {
		ev = logger.Warn()
	}
	ev.Bool("compromised", v.Compromised).
		Bool("debugger", v.DebuggerAttached).
		Bool("emulator", v.Emulator).
		Str("integrity", string(v.Integrity)).
		Strs("failures", v.Failures).
		Msg("Startup trust posture")
}
