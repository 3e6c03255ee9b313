// internal/proxy/keyring.go
package proxy

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/zalando/go-keyring"
)

const (
	// KeyringService is the service name for keyring storage
	KeyringService = "crawl-cli"
	// keyringUser is the account key the proxy URL is stored under
	keyringUser = "proxy-url"
	// FallbackDir is the directory for file-based storage (when keyring fails)
	FallbackDir = ".crawl"
	// fallbackFile holds the proxy URL when the keyring is unavailable
	fallbackFile = "proxy"
)

// ErrNotConfigured is returned by Load when no proxy has been stored.
var ErrNotConfigured = errors.New("no proxy configured")

// useFileBasedStorage checks if we should use file-based storage
// This is a fallback for environments where keyring isn't available (Codespaces, CI)
var fileBasedStorageCache *bool

func useFileBasedStorage() bool {
	// Cache the result to avoid repeated tests
	if fileBasedStorageCache != nil {
		return *fileBasedStorageCache
	}

	// Check environment hints
	if os.Getenv("CODESPACES") != "" || os.Getenv("CI") != "" {
		result := true
		fileBasedStorageCache = &result
		return true
	}

	// Try to use keyring, but if it fails, use file-based storage
	testKey := "_test_keyring_access_"
	err := keyring.Set(KeyringService, testKey, "test")
	result := (err != nil)
	fileBasedStorageCache = &result

	if !result {
		keyring.Delete(KeyringService, testKey)
	}

	return result
}

func fallbackPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	dir := filepath.Join(home, FallbackDir)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", err
	}
	return filepath.Join(dir, fallbackFile), nil
}

// Save validates and stores a proxy URL in the OS keyring or fallback file.
func Save(rawURL string) error {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return fmt.Errorf("proxy URL cannot be empty")
	}
	if err := Validate(rawURL); err != nil {
		return err
	}

	if useFileBasedStorage() {
		path, err := fallbackPath()
		if err != nil {
			return fmt.Errorf("failed to get storage path: %w", err)
		}
		if err := os.WriteFile(path, []byte(rawURL), 0600); err != nil {
			return fmt.Errorf("failed to save proxy file: %w", err)
		}
		return nil
	}

	// Store in keyring (encrypted by OS)
	if err := keyring.Set(KeyringService, keyringUser, rawURL); err != nil {
		return fmt.Errorf("failed to save to keyring: %w", err)
	}
	return nil
}

// Load returns the stored proxy URL, or ErrNotConfigured when none is set.
func Load() (string, error) {
	if useFileBasedStorage() {
		path, err := fallbackPath()
		if err != nil {
			return "", fmt.Errorf("failed to get storage path: %w", err)
		}
		data, err := os.ReadFile(path)
		if os.IsNotExist(err) {
			return "", ErrNotConfigured
		}
		if err != nil {
			return "", fmt.Errorf("failed to load proxy file: %w", err)
		}
		return strings.TrimSpace(string(data)), nil
	}

	raw, err := keyring.Get(KeyringService, keyringUser)
	if errors.Is(err, keyring.ErrNotFound) {
		return "", ErrNotConfigured
	}
	if err != nil {
		return "", fmt.Errorf("failed to load from keyring: %w", err)
	}
	return raw, nil
}

// Clear removes the stored proxy URL. Clearing when nothing is stored is
// not an error.
func Clear() error {
	if useFileBasedStorage() {
		path, err := fallbackPath()
		if err != nil {
			return fmt.Errorf("failed to get storage path: %w", err)
		}
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to delete proxy file: %w", err)
		}
		return nil
	}

	err := keyring.Delete(KeyringService, keyringUser)
	if err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("failed to delete from keyring: %w", err)
	}
	return nil
}
