package main

import (
	"fmt"
	"os"
)

const (
	airdropRootCommand = "airdrop-root"
	adminTokenCommand  = "admin-token"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case airdropRootCommand:
		runAirdropRoot(os.Args[2:])
	case adminTokenCommand:
		runAdminToken(os.Args[2:])
	default:
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprint(os.Stderr, `Usage: salectl <command> [flags]

Commands:
  airdrop-root   Build the merkle commitment and proof pack from an allocation manifest
  admin-token    Mint a gateway bearer token for operator tooling
`)
}

func fatalf(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
