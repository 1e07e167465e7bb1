package main

import (
	"flag"
	"fmt"
	"strings"
	"time"

	"tokensale/cmd/internal/passphrase"
	"tokensale/services/salegateway"
)

func runAdminToken(args []string) {
	fs := flag.NewFlagSet(adminTokenCommand, flag.ExitOnError)
	issuer := fs.String("issuer", "", "Token issuer, must match the gateway auth.issuer setting")
	audience := fs.String("audience", "", "Token audience, must match the gateway auth.audience setting")
	subject := fs.String("subject", "", "Token subject, usually the operator identity")
	scopes := fs.String("scopes", salegateway.ScopeInvoice, "Space separated scopes to grant")
	ttl := fs.Duration("ttl", time.Hour, "Token lifetime")
	secretEnv := fs.String("secret-env", "SALE_GATEWAY_JWT_SECRET", "Environment variable holding the signing secret")
	fs.Parse(args)

	if strings.TrimSpace(*issuer) == "" || strings.TrimSpace(*audience) == "" {
		fatalf("admin-token: -issuer and -audience are required")
	}
	if strings.TrimSpace(*subject) == "" {
		fatalf("admin-token: -subject is required")
	}

	secret, err := passphrase.NewSource(*secretEnv, "Enter gateway signing secret: ").Get()
	if err != nil {
		fatalf("admin-token: %v", err)
	}
	token, err := salegateway.MintToken([]byte(secret), *issuer, *audience, *subject, strings.Fields(*scopes), *ttl, time.Now())
	if err != nil {
		fatalf("admin-token: %v", err)
	}
	fmt.Println(token)
}
