package config

import (
	"fmt"
	"strings"
	"time"
)

// AuthConfig selects how API tokens are verified.
// A shared Secret enables HS256 verification; otherwise tokens are checked against the JWKS of an identity provider.
type AuthConfig struct {
	Secret      string        `koanf:"secret"`
	JwksURL     string        `koanf:"jwksurl"`
	Issuer      string        `koanf:"issuer"`
	ClientID    string        `koanf:"clientid"`
	MinInterval time.Duration `koanf:"mininterval"`
}

// UsesJWKS reports whether tokens are verified against a remote key set.
func (c *AuthConfig) UsesJWKS() bool {
	return c.Secret == ""
}

// String returns a string representation of the auth configuration.
func (c *AuthConfig) String() string {
	var b strings.Builder
	b.WriteString("\n--- Auth ---\n")
	if !c.UsesJWKS() {
		b.WriteString("  secret: ****\n")
		return b.String()
	}
	b.WriteString(fmt.Sprintf("  jwksurl: %s\n", c.JwksURL))
	b.WriteString(fmt.Sprintf("  issuer: %s\n", c.Issuer))
	b.WriteString(fmt.Sprintf("  clientid: %s\n", c.ClientID))
	b.WriteString(fmt.Sprintf("  mininterval: %s\n", c.MinInterval))
	return b.String()
}

func (c *AuthConfig) Validate() error {
	if !c.UsesJWKS() {
		if len(c.Secret) < 32 {
			return fmt.Errorf("auth secret must be at least 32 bytes long")
		}
		return nil
	}
	if c.JwksURL == "" {
		return fmt.Errorf("either auth secret or IdP JWKS URL must be configured")
	}
	if c.Issuer == "" {
		return fmt.Errorf("IdP issuer cannot be empty")
	}
	if c.ClientID == "" {
		return fmt.Errorf("IdP client ID cannot be empty")
	}
	if c.MinInterval <= 0 {
		return fmt.Errorf("IdP minimum interval must be greater than zero")
	}
	return nil
}
