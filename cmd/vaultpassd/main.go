// VaultPass wallet core daemon.
//
// Usage:
//
//	vaultpassd                    Run the wallet core and its RPC bridge
//	vaultpassd --enroll-passcode    Set the device passcode and exit
//	vaultpassd --unenroll-passcode  Remove the device passcode and exit
//	vaultpassd --help             Show help
package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/Klingon-tech/vaultpass/config"
	"github.com/Klingon-tech/vaultpass/internal/node"
	"github.com/Klingon-tech/vaultpass/internal/vault"
)

func main() {
	cfg, flags, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if flags.EnrollPasscode {
		if err := enrollPasscode(cfg); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("Passcode enrolled.")
		return
	}

	if flags.UnenrollPasscode {
		if err := unenrollPasscode(cfg); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("Passcode removed.")
		return
	}

	n, err := node.New(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if err := n.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		n.Stop()
		os.Exit(1)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	n.Stop()
}

// enrollPasscode opens the node without its RPC bridge and replaces the
// device passcode after asking for it twice.
func enrollPasscode(cfg *config.Config) error {
	cfg.RPC.Enabled = false
	n, err := node.New(cfg)
	if err != nil {
		return err
	}
	defer n.Stop()

	if n.PasscodeEnrolled() {
		fmt.Fprintln(os.Stderr, "A passcode is already enrolled; it will be replaced.")
	}

	reader := vault.NewTerminalReader()
	ctx := context.Background()
	first, err := reader.ReadPasscode(ctx, vault.AuthPrompt{Title: "New passcode"})
	if err != nil {
		return fmt.Errorf("read passcode: %w", err)
	}
	second, err := reader.ReadPasscode(ctx, vault.AuthPrompt{Title: "Repeat passcode"})
	if err != nil {
		return fmt.Errorf("read passcode: %w", err)
	}
	defer clear(first)
	defer clear(second)

	if !bytes.Equal(first, second) {
		return errors.New("passcodes do not match")
	}
	return n.EnrollPasscode(first)
}

// unenrollPasscode opens the node without its RPC bridge and removes the
// device passcode.
func unenrollPasscode(cfg *config.Config) error {
	cfg.RPC.Enabled = false
	n, err := node.New(cfg)
	if err != nil {
		return err
	}
	defer n.Stop()

	if !n.PasscodeEnrolled() {
		return errors.New("no passcode is enrolled")
	}
	return n.UnenrollPasscode()
}
