// Package main generates development access tokens for the federation credential API.
// Tokens are signed with the development key and will NOT work in production.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	jwttoken "fedcred/internal/jwt_token"
	id "fedcred/pkg/domain"
)

const (
	// matches config.Auth.SigningKey when JWT_SIGNING_KEY is not set
	devSigningKey = "dev-secret-key-change-in-production"

	defaultIssuer   = "fedcred"
	defaultAudience = "fedcred-api"
	defaultTokenTTL = 12 * time.Hour
)

type tokenOutput struct {
	Token     string            `json:"token"`
	Role      string            `json:"role"`
	UserID    string            `json:"user_id"`
	JTI       string            `json:"jti"`
	ExpiresIn string            `json:"expires_in"`
	Usage     map[string]string `json:"usage"`
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "admin", "verifier", "member":
		role := id.Role(os.Args[1])
		cmd := flag.NewFlagSet(os.Args[1], flag.ExitOnError)
		userID := cmd.String("user-id", "", "User ID (UUID). Generated if empty.")
		ttl := cmd.Duration("ttl", defaultTokenTTL, "Token time-to-live")
		key := cmd.String("key", devSigningKey, "HS256 signing key")
		issuer := cmd.String("issuer", defaultIssuer, "Token issuer")
		audience := cmd.String("audience", defaultAudience, "Token audience")
		asJSON := cmd.Bool("json", false, "Output as JSON")
		_ = cmd.Parse(os.Args[2:])
		generate(role, *userID, *ttl, *key, *issuer, *audience, *asJSON)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown role: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`tokengen - Generate development tokens for the fedcred API

WARNING: Tokens use the development signing key unless -key is given.

Usage:
  tokengen <admin|verifier|member> [flags]

Examples:
  tokengen admin
  tokengen verifier -ttl 1h
  tokengen member -user-id "550e8400-e29b-41d4-a716-446655440000" -json`)
}

func generate(role id.Role, rawUserID string, ttl time.Duration, key, issuer, audience string, asJSON bool) {
	uid := parseOrGenerateUUID(rawUserID)
	svc := jwttoken.NewJWTService(key, issuer, audience, ttl)

	token, jti, err := svc.GenerateAccessToken(context.Background(), id.UserID(uid), role)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error generating token: %v\n", err)
		os.Exit(1)
	}

	if asJSON {
		printJSON(tokenOutput{
			Token:     token,
			Role:      role.String(),
			UserID:    uid.String(),
			JTI:       jti,
			ExpiresIn: ttl.String(),
			Usage:     map[string]string{"header": "Authorization: Bearer <token>"},
		})
		return
	}

	fmt.Println("Access Token (JWT)")
	fmt.Println("==================")
	fmt.Printf("Role:        %s\n", role)
	fmt.Printf("User ID:     %s\n", uid)
	fmt.Printf("Expires In:  %s\n", ttl)
	fmt.Printf("JTI:         %s\n", jti)
	fmt.Println()
	fmt.Println(token)
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  curl -H \"Authorization: Bearer <token>\" http://localhost:8080/api/credentials/stats")
}

func parseOrGenerateUUID(input string) uuid.UUID {
	if input == "" {
		return uuid.New()
	}
	parsed, err := uuid.Parse(input)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid user-id UUID: %s\n", input)
		os.Exit(1)
	}
	return parsed
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "Error encoding JSON: %v\n", err)
		os.Exit(1)
	}
}
