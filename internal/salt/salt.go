// Package salt manages the process-wide security salt.
//
// The salt is a random secret persisted to a file with two redundant backups
// (<file>.001 and <file>.002). It is resolved once at startup and handed to
// the password hasher and token codec; it is never regenerated while the
// process runs. Losing every copy invalidates all stored password hashes.
package salt

import (
	"bytes"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"go.uber.org/zap"
)

const (
	secretBytes   = 64
	versionLength = 12
)

// BackupSuffixes are appended to the primary path to name the backup copies
var BackupSuffixes = []string{".001", ".002"}

// Salt is an immutable handle on the resolved security salt
type Salt struct {
	key     []byte
	version string
}

// FromSecret derives a Salt from raw secret material
func FromSecret(secret []byte) (*Salt, error) {
	secret = bytes.TrimSpace(secret)
	if len(secret) == 0 {
		return nil, errors.New("salt secret is empty")
	}
	key := sha256.Sum256(secret)
	fingerprint := sha256.Sum256(key[:])
	return &Salt{
		key:     key[:],
		version: hex.EncodeToString(fingerprint[:])[:versionLength],
	}, nil
}

// Key returns the signing and peppering key derived from the salt
func (s *Salt) Key() []byte {
	out := make([]byte, len(s.key))
	copy(out, s.key)
	return out
}

// Version returns a short fingerprint identifying the salt generation
func (s *Salt) Version() string {
	return s.version
}

// Resolve loads the salt stored at path, restoring it from a backup when the
// primary copy is missing, or generates and persists a new one on first run.
func Resolve(path string, logger *zap.Logger) (*Salt, error) {
	secret, err := readSecret(path)
	switch {
	case err == nil:
		ensureBackups(path, secret, logger)
		return FromSecret(secret)
	case !errors.Is(err, fs.ErrNotExist):
		return nil, fmt.Errorf("failed to read salt file %s: %w", path, err)
	}

	for _, suffix := range BackupSuffixes {
		backup := path + suffix
		secret, err := readSecret(backup)
		if err != nil {
			continue
		}
		logger.Warn("salt file missing, restoring from backup",
			zap.String("path", path),
			zap.String("backup", backup))
		if err := writeSecret(path, secret); err != nil {
			return nil, fmt.Errorf("failed to restore salt file: %w", err)
		}
		ensureBackups(path, secret, logger)
		return FromSecret(secret)
	}

	secret, err = generateSecret()
	if err != nil {
		return nil, err
	}
	if err := writeSecret(path, secret); err != nil {
		return nil, fmt.Errorf("failed to persist salt file: %w", err)
	}
	ensureBackups(path, secret, logger)
	logger.Info("generated new security salt", zap.String("path", path))
	return FromSecret(secret)
}

func readSecret(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fmt.Errorf("salt file %s is empty", path)
	}
	return data, nil
}

func generateSecret() ([]byte, error) {
	raw := make([]byte, secretBytes)
	if _, err := rand.Read(raw); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}
	return []byte(hex.EncodeToString(raw)), nil
}

// writeSecret writes through a temporary file so a crash never leaves a truncated salt
func writeSecret(path string, secret []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(secret); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// ensureBackups rewrites any backup that is missing or differs from the primary
func ensureBackups(path string, secret []byte, logger *zap.Logger) {
	for _, suffix := range BackupSuffixes {
		backup := path + suffix
		if existing, err := os.ReadFile(backup); err == nil && bytes.Equal(existing, secret) {
			continue
		}
		if err := writeSecret(backup, secret); err != nil {
			logger.Warn("failed to write salt backup",
				zap.String("backup", backup),
				zap.Error(err))
		}
	}
}
