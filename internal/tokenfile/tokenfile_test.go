package tokenfile

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

func testCredential(expiry time.Time) *Credential {
	return &Credential{
		Token: &oauth2.Token{
			AccessToken:  "access-123",
			RefreshToken: "refresh-456",
			TokenType:    "Bearer",
			Expiry:       expiry,
		},
		Scopes:   []string{"https://www.googleapis.com/auth/tagmanager.readonly"},
		ClientID: "client-789",
	}
}

func TestLoad_FileNotFound(t *testing.T) {
	cred, err := Load("/nonexistent/path/token.json")
	assert.Nil(t, cred)
	assert.NoError(t, err)
}

func TestLoad_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "token.json")

	expiry := time.Date(2099, 1, 1, 0, 0, 0, 0, time.UTC)
	original := testCredential(expiry)

	require.NoError(t, Save(path, original))

	cred, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "access-123", cred.Token.AccessToken)
	assert.Equal(t, "refresh-456", cred.Token.RefreshToken)
	assert.Equal(t, "Bearer", cred.Token.TokenType)
	assert.True(t, cred.Token.Expiry.Equal(expiry))
	assert.Equal(t, original.Scopes, cred.Scopes)
	assert.Equal(t, "client-789", cred.ClientID)
}

func TestLoad_MissingTokenField(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "token.json")

	require.NoError(t, os.WriteFile(path, []byte(`{"scopes":["a"]}`), 0o600))

	cred, err := Load(path)
	assert.Nil(t, cred)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "missing token field")
}

func TestLoad_InvalidJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "token.json")

	require.NoError(t, os.WriteFile(path, []byte(`{not json}`), 0o600))

	cred, err := Load(path)
	assert.Nil(t, cred)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "decoding")
}

func TestLoad_EmptyCredentials(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "token.json")

	require.NoError(t, os.WriteFile(path, []byte(`{"token":{"token_type":"Bearer"}}`), 0o600))

	cred, err := Load(path)
	assert.Nil(t, cred)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "empty credentials")
}

func TestSave_CreatesDirectory(t *testing.T) {
	dir := t.TempDir()
	nested := filepath.Join(dir, "sub", "dir", "token.json")

	require.NoError(t, Save(nested, testCredential(time.Now().Add(time.Hour))))

	info, err := os.Stat(nested)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(FilePerms), info.Mode().Perm())
}

func TestSave_FilePermissions(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "token.json")

	require.NoError(t, Save(path, testCredential(time.Now().Add(time.Hour))))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(FilePerms), info.Mode().Perm())
}

func TestSave_NilCredential(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "token.json")

	err := Save(path, nil)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "refusing to save nil credential")

	err = Save(path, &Credential{})
	assert.Error(t, err)
}

func TestSave_OverwritesExisting(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "token.json")

	first := testCredential(time.Now().Add(time.Hour))
	require.NoError(t, Save(path, first))

	second := testCredential(time.Now().Add(2 * time.Hour))
	second.Token.AccessToken = "access-new"
	require.NoError(t, Save(path, second))

	cred, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "access-new", cred.Token.AccessToken)

	// No leftover temp files from the atomic write.
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestRemove(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "token.json")

	require.NoError(t, Save(path, testCredential(time.Now().Add(time.Hour))))
	require.NoError(t, Remove(path))

	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))

	// Removing an absent file is a no-op.
	assert.NoError(t, Remove(path))
}
