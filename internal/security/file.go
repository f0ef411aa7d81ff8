package security

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
)

// File permission constants
const (
	// PermSecretFile is the permission for files containing secrets.
	PermSecretFile os.FileMode = 0600

	// PermSecretDir is the permission for directories containing secrets.
	PermSecretDir os.FileMode = 0700
)

// File operation errors
var (
	ErrInsecurePermissions = errors.New("security: insecure file permissions")
	ErrAtomicWriteFailed   = errors.New("security: atomic write failed")
	ErrFileTooLarge        = errors.New("security: file exceeds maximum size")
)

// WriteSecretFile writes data atomically with 0600 permissions, creating
// the parent directory with 0700.
func WriteSecretFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, PermSecretDir); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}

	tempPath := path + ".tmp." + randomSuffix()
	f, err := os.OpenFile(tempPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, PermSecretFile)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrAtomicWriteFailed, err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tempPath)
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tempPath)
		return fmt.Errorf("sync: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("close: %w", err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("%w: %v", ErrAtomicWriteFailed, err)
	}
	return nil
}

// ReadSecretFile reads a file after checking that neither group nor others
// can access it.
func ReadSecretFile(path string, maxSize int64) ([]byte, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if runtime.GOOS != "windows" {
		if mode := info.Mode().Perm(); mode&0077 != 0 {
			return nil, fmt.Errorf("%w: file %s has mode %04o, expected %04o",
				ErrInsecurePermissions, path, mode, PermSecretFile)
		}
	}
	if maxSize > 0 && info.Size() > maxSize {
		return nil, fmt.Errorf("%w: size %d exceeds limit %d", ErrFileTooLarge, info.Size(), maxSize)
	}
	return os.ReadFile(path)
}

// LoadOrCreateKey reads the master key at path, generating and storing a
// new KeySize key if the file does not exist.
func LoadOrCreateKey(path string) ([]byte, error) {
	key, err := ReadSecretFile(path, 1024)
	switch {
	case err == nil:
		if len(key) < MinKeySize {
			return nil, fmt.Errorf("%w: %s holds %d bytes", ErrWeakKey, path, len(key))
		}
		return key, nil
	case !errors.Is(err, os.ErrNotExist):
		return nil, fmt.Errorf("read key file: %w", err)
	}

	key, err = GenerateKey(KeySize)
	if err != nil {
		return nil, err
	}
	if err := WriteSecretFile(path, key); err != nil {
		return nil, fmt.Errorf("write key file: %w", err)
	}
	return key, nil
}

func randomSuffix() string {
	var b [8]byte
	rand.Read(b[:])
	return hex.EncodeToString(b[:])
}
