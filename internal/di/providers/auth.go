package providers

import (
	"github.com/samber/do/v2"

	"github.com/ladderline/ladder-server/internal/auth"
	"github.com/ladderline/ladder-server/internal/config"
	"github.com/ladderline/ladder-server/internal/logger"
)

// AuthKey wraps the hex-encoded PASETO key.
type AuthKey string

// ProvideAuthKey returns the configured key, or loads or generates one in the
// data directory.
func ProvideAuthKey(i do.Injector) (AuthKey, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	if cfg.Auth.TokenKey != "" {
		log.Info("Authentication key loaded from configuration")
		return AuthKey(cfg.Auth.TokenKey), nil
	}

	key, err := auth.LoadOrGenerateKey(cfg.App.DataDir)
	if err != nil {
		return "", err
	}

	log.Info("Authentication key loaded",
		"access_token_duration", cfg.Auth.AccessTokenDuration,
	)

	return AuthKey(key), nil
}

// ProvideTokenService provides the PASETO token service.
func ProvideTokenService(i do.Injector) (*auth.TokenService, error) {
	cfg := do.MustInvoke[*config.Config](i)
	authKey := do.MustInvoke[AuthKey](i)

	return auth.NewTokenService(string(authKey), cfg.Auth.AccessTokenDuration)
}
