package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
)

// TokenName is the fixed key under which the tunnel auth token is looked up,
// both as a secret file name and as an environment variable.
const TokenName = "CHATBRIDGE_TOKEN"

// DefaultSecretDir is where host runtimes mount per-key secret files.
const DefaultSecretDir = "/run/secrets"

// ErrTokenNotFound is returned when no provider could produce a token.
// The tunnel cannot authenticate without one, so callers treat this as a
// fatal configuration error rather than ignoring it.
var ErrTokenNotFound = errors.New("tunnel auth token not found")

// Provider resolves the tunnel auth token from a single source.
type Provider interface {
	Fetch() (string, error)
}

// SecretMountProvider reads the token from a file named after the key in a
// host-provided secret directory.
type SecretMountProvider struct {
	Dir string
}

func (p SecretMountProvider) Fetch() (string, error) {
	dir := p.Dir
	if dir == "" {
		dir = DefaultSecretDir
	}
	data, err := os.ReadFile(filepath.Join(dir, TokenName))
	if err != nil {
		return "", fmt.Errorf("secret mount: %w", err)
	}
	token := strings.TrimSpace(string(data))
	if token == "" {
		return "", fmt.Errorf("secret mount: %s is empty", TokenName)
	}
	return token, nil
}

// EnvProvider reads the token from the environment, optionally populating it
// from a .env file first.
type EnvProvider struct {
	DotenvPath string
}

func (p EnvProvider) Fetch() (string, error) {
	if p.DotenvPath != "" {
		// Best effort: a missing .env is fine, the variable may be set
		// in the real environment.
		_ = godotenv.Load(p.DotenvPath)
	} else {
		_ = godotenv.Load()
	}
	token := strings.TrimSpace(os.Getenv(TokenName))
	if token == "" {
		return "", fmt.Errorf("environment: %s is not set", TokenName)
	}
	return token, nil
}

// LoadToken tries each provider in order and returns the first token found.
// It returns ErrTokenNotFound (wrapped with each provider's failure) when
// every provider comes up empty.
func LoadToken(providers ...Provider) (string, error) {
	var failures []string
	for _, p := range providers {
		token, err := p.Fetch()
		if err == nil {
			return token, nil
		}
		failures = append(failures, err.Error())
	}
	return "", fmt.Errorf("%w: %s", ErrTokenNotFound, strings.Join(failures, "; "))
}

// DefaultProviders is the standard resolution order: host secret store
// first, then the environment (with .env fallback).
func DefaultProviders() []Provider {
	return []Provider{
		SecretMountProvider{},
		EnvProvider{},
	}
}
