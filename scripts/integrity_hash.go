// integrity_hash.go prints the reference hash of a vaultpassd binary and,
// with -patch, embeds it in place of the linked sentinel.
// Usage: go run scripts/integrity_hash.go [-patch] <binary>
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/Klingon-tech/vaultpass/internal/build"
	"github.com/Klingon-tech/vaultpass/internal/trust"
)

func main() {
	patch := flag.Bool("patch", false, "write the hash over the linked sentinel")
	flag.Parse()
	if flag.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "usage: integrity_hash [-patch] <binary>")
		os.Exit(1)
	}
	path := flag.Arg(0)

	ref, err := trust.ArtifactHash(path, build.IntegritySentinel())
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	if *patch {
		info, err := os.Stat(path)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		patched, err := trust.EmbedReference(data, ref)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		if err := os.WriteFile(path, patched, info.Mode().Perm()); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	}
	fmt.Printf("integrity=%s\n", ref)
}
