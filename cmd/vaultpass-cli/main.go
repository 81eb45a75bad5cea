// vaultpass-cli is a command-line client for a running vaultpassd.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/Klingon-tech/vaultpass/internal/rpc"
	"github.com/Klingon-tech/vaultpass/internal/rpcclient"
	"github.com/Klingon-tech/vaultpass/internal/session"
)

const defaultRPC = "http://127.0.0.1:9645/"

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	rpcURL := defaultRPC
	if env := os.Getenv("VAULTPASS_RPC_URL"); env != "" {
		rpcURL = env
	}

	// Scan for --rpc before the subcommand.
	args := os.Args[1:]
	for len(args) > 0 {
		switch {
		case args[0] == "--rpc" && len(args) > 1:
			rpcURL = args[1]
			args = args[2:]
		case strings.HasPrefix(args[0], "--rpc="):
			rpcURL = args[0][len("--rpc="):]
			args = args[1:]
		default:
			goto dispatch
		}
	}

dispatch:
	if len(args) == 0 {
		usage()
		os.Exit(1)
	}

	client := rpcclient.New(rpcURL)
	cmd := args[0]
	cmdArgs := args[1:]

	switch cmd {
	case "status", "state":
		cmdStatus(client)
	case "identity":
		cmdIdentity(client)
	case "unlock":
		cmdSimple(client, "session_unlock", "Unlocked.")
	case "lock":
		cmdSimple(client, "session_lock", "Locked.")
	case "onboard":
		cmdOnboard(client, cmdArgs)
	case "wipe":
		cmdWipe(client, cmdArgs)
	case "security":
		cmdSecurity(client)
	case "compliance":
		cmdCompliance(client)
	case "mnemonic":
		cmdMnemonic(client, cmdArgs)
	case "sign":
		cmdSign(client, cmdArgs)
	case "verify":
		cmdVerify(client, cmdArgs)
	case "help", "--help", "-h":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: vaultpass-cli [global flags] <command> [flags]

Global flags:
  --rpc <url>         RPC endpoint (default: %s, env VAULTPASS_RPC_URL)

Session:
  status                          Show session state and address
  identity                        Show the wallet address
  unlock                          Unlock (vaultpassd prompts for the passcode)
  lock                            Lock immediately
  onboard [--mnemonic "..."]
                                  Store a recovery phrase, generating one if omitted
  wipe --yes                      Erase the wallet from this device

Wallet:
  mnemonic generate               Generate a recovery phrase without storing it
  mnemonic validate "<phrase>"    Check a recovery phrase
  mnemonic export                 Reveal the stored recovery phrase
  sign [--hex] <message>          Sign a message with the wallet key
  verify --sig <hex> --pubkey <hex> [--address <a>] [--hex] <message>
                                  Verify a signature

Security:
  security                        Show the trust posture
  compliance                      Show the hardening checklist
`, defaultRPC)
}

// ── session ─────────────────────────────────────────────────────────────

func cmdStatus(client *rpcclient.Client) {
	var st rpc.StateResult
	if err := client.Call("session_getState", nil, &st); err != nil {
		fatalRPC("session_getState", err)
	}
	fmt.Printf("State:    %s\n", st.State)
	if st.Address != "" {
		fmt.Printf("Address:  %s\n", st.Address)
	}
}

func cmdIdentity(client *rpcclient.Client) {
	var id rpc.IdentityResult
	if err := client.Call("session_getIdentity", nil, &id); err != nil {
		fatalRPC("session_getIdentity", err)
	}
	if !id.Known {
		fmt.Println("No wallet on this device.")
		return
	}
	fmt.Println(id.Address)
}

func cmdSimple(client *rpcclient.Client, method, done string) {
	var st rpc.StateResult
	if err := client.Call(method, nil, &st); err != nil {
		fatalRPC(method, err)
	}
	fmt.Println(done)
}

func cmdOnboard(client *rpcclient.Client, args []string) {
	fs := flag.NewFlagSet("onboard", flag.ExitOnError)
	mnemonic := fs.String("mnemonic", "", "Recovery phrase to import")
	fs.Parse(args)

	phrase := *mnemonic
	if phrase == "" {
		phrase = generate(client)
		fmt.Println("Write down your recovery phrase and keep it offline:")
		fmt.Println()
		fmt.Printf("  %s\n\n", phrase)
		if !confirm("Have you written it down?") {
			fatal("onboarding cancelled")
		}
	}

	var st rpc.StateResult
	if err := client.Call("session_onboard", rpc.MnemonicParam{Mnemonic: phrase}, &st); err != nil {
		fatalRPC("session_onboard", err)
	}
	fmt.Printf("Wallet ready.\nAddress:  %s\n", st.Address)
}

func cmdWipe(client *rpcclient.Client, args []string) {
	fs := flag.NewFlagSet("wipe", flag.ExitOnError)
	yes := fs.Bool("yes", false, "Skip the confirmation prompt")
	fs.Parse(args)

	if !*yes && !confirm("Erase the wallet from this device? Funds are lost without the recovery phrase.") {
		fatal("wipe cancelled")
	}
	cmdSimple(client, "session_wipe", "Wallet erased.")
}

// ── wallet ──────────────────────────────────────────────────────────────

func cmdMnemonic(client *rpcclient.Client, args []string) {
	if len(args) < 1 {
		fatal("Usage: vaultpass-cli mnemonic <generate|validate|export>")
	}
	switch args[0] {
	case "generate":
		fmt.Println(generate(client))
	case "validate":
		if len(args) < 2 {
			fatal("Usage: vaultpass-cli mnemonic validate \"<phrase>\"")
		}
		var res rpc.ValidateResult
		phrase := strings.Join(args[1:], " ")
		if err := client.Call("wallet_validateMnemonic", rpc.MnemonicParam{Mnemonic: phrase}, &res); err != nil {
			fatalRPC("wallet_validateMnemonic", err)
		}
		if !res.Valid {
			fmt.Println("invalid")
			os.Exit(1)
		}
		fmt.Println("valid")
	case "export":
		var res rpc.MnemonicResult
		if err := client.Call("wallet_exportMnemonic", nil, &res); err != nil {
			fatalRPC("wallet_exportMnemonic", err)
		}
		fmt.Println(res.Mnemonic)
	default:
		fatal("Unknown mnemonic command: %s", args[0])
	}
}

func generate(client *rpcclient.Client) string {
	var res rpc.MnemonicResult
	if err := client.Call("wallet_generateMnemonic", nil, &res); err != nil {
		fatalRPC("wallet_generateMnemonic", err)
	}
	return res.Mnemonic
}

func cmdSign(client *rpcclient.Client, args []string) {
	fs := flag.NewFlagSet("sign", flag.ExitOnError)
	isHex := fs.Bool("hex", false, "Message is hex-encoded bytes")
	fs.Parse(args)
	if fs.NArg() < 1 {
		fatal("Usage: vaultpass-cli sign [--hex] <message>")
	}

	var res rpc.SignResult
	param := rpc.SignParam{Message: strings.Join(fs.Args(), " "), Hex: *isHex}
	if err := client.Call("wallet_signMessage", param, &res); err != nil {
		fatalRPC("wallet_signMessage", err)
	}
	fmt.Printf("Address:    %s\n", res.Address)
	fmt.Printf("Public key: %s\n", res.PublicKey)
	fmt.Printf("Signature:  %s\n", res.Signature)
}

func cmdVerify(client *rpcclient.Client, args []string) {
	fs := flag.NewFlagSet("verify", flag.ExitOnError)
	sig := fs.String("sig", "", "Signature (hex)")
	pub := fs.String("pubkey", "", "Compressed public key (hex)")
	addr := fs.String("address", "", "Expected signer address")
	isHex := fs.Bool("hex", false, "Message is hex-encoded bytes")
	fs.Parse(args)
	if *sig == "" || *pub == "" || fs.NArg() < 1 {
		fatal("Usage: vaultpass-cli verify --sig <hex> --pubkey <hex> [--address <a>] [--hex] <message>")
	}

	var res rpc.VerifyResult
	err := client.Call("wallet_verifyMessage", rpc.VerifyParam{
		Message:   strings.Join(fs.Args(), " "),
		Hex:       *isHex,
		Signature: *sig,
		PublicKey: *pub,
		Address:   *addr,
	}, &res)
	if err != nil {
		fatalRPC("wallet_verifyMessage", err)
	}
	if !res.Valid {
		fmt.Println("invalid")
		os.Exit(1)
	}
	fmt.Println("valid")
}

// ── security ────────────────────────────────────────────────────────────

func cmdSecurity(client *rpcclient.Client) {
	var st session.Status
	if err := client.Call("session_getSecurityStatus", nil, &st); err != nil {
		fatalRPC("session_getSecurityStatus", err)
	}
	v := st.Verdict
	fmt.Printf("State:        %s\n", st.State)
	fmt.Printf("Deployment:   %s\n", v.Deployment)
	fmt.Printf("Compromised:  %t\n", v.Compromised)
	fmt.Printf("Debugger:     %t\n", v.DebuggerAttached)
	fmt.Printf("Emulator:     %t\n", v.Emulator)
	fmt.Printf("Integrity:    %s\n", v.Integrity)
	fmt.Printf("Biometry:     %t", st.Biometry.Available)
	if st.Biometry.Kind != "" {
		fmt.Printf(" (%s)", st.Biometry.Kind)
	}
	fmt.Println()
	fmt.Printf("Wallet:       %t\n", st.SecretStored)
	if st.StoredAt != nil {
		fmt.Printf("Stored at:    %s\n", st.StoredAt.Local().Format(time.RFC1123))
	}
	if st.Allowed {
		fmt.Println("Sensitive:    allowed")
	} else {
		fmt.Printf("Sensitive:    blocked (%s)\n", st.Reason)
	}
	for _, f := range v.Failures {
		fmt.Printf("  check failed: %s\n", f)
	}
}

func cmdCompliance(client *rpcclient.Client) {
	var res rpc.ComplianceResult
	if err := client.Call("security_getCompliance", nil, &res); err != nil {
		fatalRPC("security_getCompliance", err)
	}
	fmt.Printf("Deployment: %s\n", res.Deployment)
	fmt.Printf("Compliant:  %d/%d\n\n", res.Compliant, res.Total)
	for _, item := range res.Items {
		mark := "ok  "
		if !item.Compliant {
			mark = "FAIL"
		}
		fmt.Printf("  [%s] %-28s %s\n", mark, item.Category, item.Notes)
	}
}

// ── helpers ─────────────────────────────────────────────────────────────

func confirm(question string) bool {
	fmt.Fprintf(os.Stderr, "%s [y/N]: ", question)
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}

// fatalRPC prints the bridge's user-facing message, with a hint when the
// call may succeed on retry.
func fatalRPC(method string, err error) {
	if re, ok := rpcclient.AsRPCError(err); ok {
		msg := re.Message
		if re.Retryable {
			msg += " (retry allowed)"
		}
		fatal("%s", msg)
	}
	fatal("%s: %v", method, err)
}

func fatal(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}
