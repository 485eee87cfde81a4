package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSecretMountProvider(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, TokenName), []byte("tok-123\n"), 0600))

	token, err := SecretMountProvider{Dir: dir}.Fetch()
	require.NoError(t, err)
	assert.Equal(t, "tok-123", token)
}

func TestSecretMountProvider_Missing(t *testing.T) {
	_, err := SecretMountProvider{Dir: t.TempDir()}.Fetch()
	assert.Error(t, err)
}

func TestSecretMountProvider_Empty(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, TokenName), []byte("  \n"), 0600))

	_, err := SecretMountProvider{Dir: dir}.Fetch()
	assert.Error(t, err)
}

func TestEnvProvider(t *testing.T) {
	t.Setenv(TokenName, "env-tok")

	token, err := EnvProvider{}.Fetch()
	require.NoError(t, err)
	assert.Equal(t, "env-tok", token)
}

func TestEnvProvider_Dotenv(t *testing.T) {
	t.Setenv(TokenName, "")
	os.Unsetenv(TokenName)

	dotenv := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(dotenv, []byte(TokenName+"=dotenv-tok\n"), 0600))

	token, err := EnvProvider{DotenvPath: dotenv}.Fetch()
	require.NoError(t, err)
	assert.Equal(t, "dotenv-tok", token)
}

func TestLoadToken_Order(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, TokenName), []byte("from-mount"), 0600))
	t.Setenv(TokenName, "from-env")

	// The mount wins over the environment when both are present.
	token, err := LoadToken(SecretMountProvider{Dir: dir}, EnvProvider{})
	require.NoError(t, err)
	assert.Equal(t, "from-mount", token)

	// An unreachable mount falls through to the environment.
	token, err = LoadToken(SecretMountProvider{Dir: filepath.Join(dir, "nope")}, EnvProvider{})
	require.NoError(t, err)
	assert.Equal(t, "from-env", token)
}

func TestLoadToken_AllFail(t *testing.T) {
	t.Setenv(TokenName, "")
	os.Unsetenv(TokenName)

	_, err := LoadToken(SecretMountProvider{Dir: t.TempDir()})
	assert.ErrorIs(t, err, ErrTokenNotFound)
}
