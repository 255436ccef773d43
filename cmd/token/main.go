// Package main mints development access tokens. Production tokens are issued
// by the account service; this tool only shares the server's key.
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ladderline/ladder-server/internal/auth"
	"github.com/ladderline/ladder-server/internal/domain"
)

func main() {
	var (
		userID   = flag.String("user", "", "player or admin user ID (required)")
		role     = flag.String("role", string(domain.RolePlayer), "role: player or admin")
		tier     = flag.String("tier", string(domain.ClientAuthenticated), "rate limit tier: AUTHENTICATED or PREMIUM")
		dataDir  = flag.String("data-dir", "", "server data directory holding auth.key")
		keyHex   = flag.String("key", os.Getenv("AUTH_TOKEN_KEY"), "hex PASETO key; overrides -data-dir")
		validFor = flag.Duration("ttl", 24*time.Hour, "token lifetime")
	)
	flag.Parse()

	if err := run(*userID, *role, *tier, *dataDir, *keyHex, *validFor); err != nil {
		fmt.Fprintf(os.Stderr, "token: %v\n", err)
		os.Exit(1)
	}
}

func run(userID, role, tier, dataDir, keyHex string, ttl time.Duration) error {
	if userID == "" {
		return fmt.Errorf("-user is required")
	}

	r := domain.Role(role)
	if r != domain.RolePlayer && r != domain.RoleAdmin {
		return fmt.Errorf("unknown role %q", role)
	}
	t := domain.ClientTier(tier)
	if !t.Valid() || t == domain.ClientAnonymous {
		return fmt.Errorf("unknown tier %q", tier)
	}

	if keyHex == "" {
		if dataDir == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return err
			}
			dataDir = filepath.Join(home, ".ladder", "data")
		}
		key, err := auth.LoadOrGenerateKey(dataDir)
		if err != nil {
			return err
		}
		keyHex = key
	}

	tokens, err := auth.NewTokenService(keyHex, ttl)
	if err != nil {
		return err
	}

	token, err := tokens.Issue(&domain.Principal{UserID: userID, Role: r, Tier: t})
	if err != nil {
		return err
	}

	fmt.Println(token)
	return nil
}
