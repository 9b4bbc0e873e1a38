package auth

import (
	"crypto/subtle"
	"errors"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

var (
	// ErrInvalidCredentials indicates a failed login. It never says which half was wrong.
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	// ErrLoginDisabled indicates no admin password hash is configured.
	ErrLoginDisabled = errors.New("auth: password login disabled")
)

// dummyHash keeps the unknown-user path as slow as a real comparison.
var dummyHash = []byte("$2a$10$7EqJtq98hPqEX7fNZaFWoOhi5BWX4Z3E1xQmC0tqyJ3lL6V9y9vWa")

// CredentialsConfig holds the single front-desk admin account and the automation token.
type CredentialsConfig struct {
	AdminUsername     string
	AdminPasswordHash string
	APIToken          string
}

// Credentials checks admin logins and bearer API tokens.
type Credentials struct {
	username     string
	passwordHash []byte
	apiToken     []byte
}

// NewCredentials normalizes the configuration. Empty hash or token disable that path.
func NewCredentials(cfg CredentialsConfig) *Credentials {
	return &Credentials{
		username:     strings.TrimSpace(cfg.AdminUsername),
		passwordHash: []byte(strings.TrimSpace(cfg.AdminPasswordHash)),
		apiToken:     []byte(strings.TrimSpace(cfg.APIToken)),
	}
}

// VerifyPassword checks a login against the configured bcrypt hash.
func (c *Credentials) VerifyPassword(username, password string) error {
	if len(c.passwordHash) == 0 || c.username == "" {
		return ErrLoginDisabled
	}
	hash := c.passwordHash
	usernameMatches := subtle.ConstantTimeCompare([]byte(strings.TrimSpace(username)), []byte(c.username)) == 1
	if !usernameMatches {
		hash = dummyHash
	}
	if err := bcrypt.CompareHashAndPassword(hash, []byte(password)); err != nil || !usernameMatches {
		return ErrInvalidCredentials
	}
	return nil
}

// VerifyAPIToken reports whether token matches the configured API token.
func (c *Credentials) VerifyAPIToken(token string) bool {
	if len(c.apiToken) == 0 {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(strings.TrimSpace(token)), c.apiToken) == 1
}

// HashPassword produces a bcrypt hash suitable for auth.admin_password_hash.
func HashPassword(password string) (string, error) {
	if password == "" {
		return "", errors.New("auth: password must not be empty")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
