// Package tokenfile persists a single OAuth2 credential record to disk.
// The file holds the token bundle plus the scopes it was granted for and the
// client ID that obtained it, so a later run can detect scope or client
// changes and force re-consent. This is a leaf package: auth/ owns the only
// writer, everything else reads through auth/.
package tokenfile

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"golang.org/x/oauth2"
)

// FilePerms restricts the credential file to owner-only read/write.
const FilePerms = 0o600

// DirPerms is used when creating the credential directory.
const DirPerms = 0o700

// Credential is the on-disk record: the OAuth2 token bundle together with
// the scope set it was granted for and the OAuth client that obtained it.
type Credential struct {
	Token    *oauth2.Token `json:"token"`
	Scopes   []string      `json:"scopes,omitempty"`
	ClientID string        `json:"client_id,omitempty"`
}

// Load reads a saved credential from disk. Returns (nil, nil) if the file
// does not exist — absence is a normal state, not an error. A file that
// exists but cannot be parsed, or that has no token, is an error; the
// session layer treats that as "absent" too since re-consent recovers it.
func Load(path string) (*Credential, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil //nolint:nilnil // sentinel for "not found"
	}

	if err != nil {
		return nil, fmt.Errorf("tokenfile: reading %s: %w", path, err)
	}

	var cred Credential
	if err := json.Unmarshal(data, &cred); err != nil {
		return nil, fmt.Errorf("tokenfile: decoding %s: %w", path, err)
	}

	if cred.Token == nil {
		return nil, fmt.Errorf("tokenfile: %s missing token field (re-consent required)", path)
	}

	if cred.Token.AccessToken == "" && cred.Token.RefreshToken == "" {
		return nil, fmt.Errorf("tokenfile: %s holds empty credentials (re-consent required)", path)
	}

	return &cred, nil
}

// Save writes the credential to disk atomically (write-to-temp + rename)
// with 0600 permissions, creating parent directories as needed.
// Never logs token values.
func Save(path string, cred *Credential) error {
	if cred == nil || cred.Token == nil {
		return errors.New("tokenfile: refusing to save nil credential")
	}

	data, err := json.MarshalIndent(cred, "", "  ")
	if err != nil {
		return fmt.Errorf("tokenfile: encoding: %w", err)
	}

	dir := filepath.Dir(path)
	if mkErr := os.MkdirAll(dir, DirPerms); mkErr != nil {
		return fmt.Errorf("tokenfile: creating directory %s: %w", dir, mkErr)
	}

	// Atomic write: temp file in the same directory, then rename.
	// Same directory guarantees same filesystem for rename(2).
	tmp, err := os.CreateTemp(dir, ".credential-*.tmp")
	if err != nil {
		return fmt.Errorf("tokenfile: creating temp file: %w", err)
	}

	tmpPath := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = os.Remove(tmpPath)
		}
	}()

	if err := os.Chmod(tmpPath, FilePerms); err != nil {
		tmp.Close()
		return fmt.Errorf("tokenfile: setting permissions: %w", err)
	}

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("tokenfile: writing: %w", err)
	}

	// Flush to stable storage before rename so a power loss between close and
	// rename cannot leave an empty or partial credential file at the final path.
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("tokenfile: syncing: %w", err)
	}

	if err := tmp.Close(); err != nil {
		return fmt.Errorf("tokenfile: closing: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("tokenfile: renaming: %w", err)
	}

	success = true

	return nil
}

// Remove deletes the credential file. Returns nil if the file does not
// exist — removing an absent credential is a no-op, not an error.
func Remove(path string) error {
	err := os.Remove(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}

	return err
}
