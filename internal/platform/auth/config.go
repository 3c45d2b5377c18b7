package auth

import (
	"errors"
	"fmt"
	"strings"

	"github.com/waferline-labs/waferline-go/internal/platform/env"
)

const (
	ModeDev  = "dev"
	ModeOIDC = "oidc"
)

type Config struct {
	Mode string

	OIDCIssuerURL string
	OIDCClientID  string
	EmailClaim    string
	RolesClaim    string

	DevSubject string
	DevEmail   string
	DevRoles   []string
}

func ConfigFromEnv() (Config, error) {
	cfg := Config{
		Mode:          strings.ToLower(strings.TrimSpace(env.String("WAFERLINE_AUTH_MODE", ModeDev))),
		OIDCIssuerURL: strings.TrimSpace(env.String("WAFERLINE_OIDC_ISSUER_URL", "")),
		OIDCClientID:  strings.TrimSpace(env.String("WAFERLINE_OIDC_CLIENT_ID", "")),
		EmailClaim:    env.String("WAFERLINE_OIDC_EMAIL_CLAIM", "email"),
		RolesClaim:    env.String("WAFERLINE_OIDC_ROLES_CLAIM", "roles"),
		DevSubject:    env.String("WAFERLINE_AUTH_DEV_SUBJECT", "dev-user"),
		DevEmail:      env.String("WAFERLINE_AUTH_DEV_EMAIL", "dev@localhost"),
		DevRoles:      env.Strings("WAFERLINE_AUTH_DEV_ROLES", []string{"engineer"}),
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	switch c.Mode {
	case ModeDev:
		return nil
	case ModeOIDC:
		if c.OIDCIssuerURL == "" {
			return errors.New("WAFERLINE_OIDC_ISSUER_URL is required in oidc mode")
		}
		if c.OIDCClientID == "" {
			return errors.New("WAFERLINE_OIDC_CLIENT_ID is required in oidc mode")
		}
		return nil
	default:
		return fmt.Errorf("unsupported auth mode: %q", c.Mode)
	}
}
