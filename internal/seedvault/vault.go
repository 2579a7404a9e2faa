// Package seedvault keeps named simulation seed pairs in the OS keychain,
// with an optional 0600 JSON file for hosts that have no keychain.
package seedvault

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/zalando/go-keyring"
	"go.uber.org/multierr"

	"github.com/MJE43/blackjack-policy/internal/engine"
)

const (
	DefaultService = "blackjack-policy"

	partServer = "server"
	partClient = "client"
)

var ErrNotFound = errors.New("seed profile not found")

// Vault stores seed pairs per profile name.
type Vault struct {
	service      string
	fallbackPath string
	mu           sync.Mutex
}

// New returns a vault for service. fallbackPath may be empty to require a
// working keychain.
func New(service, fallbackPath string) *Vault {
	if strings.TrimSpace(service) == "" {
		service = DefaultService
	}
	return &Vault{service: service, fallbackPath: fallbackPath}
}

func (v *Vault) key(profile, part string) string {
	return profile + "/" + part
}

// Save stores seeds under profile, replacing any previous pair.
func (v *Vault) Save(profile string, seeds engine.Seeds) error {
	if err := seeds.Validate(); err != nil {
		return err
	}
	if err := v.setSecret(profile, partServer, seeds.Server); err != nil {
		return err
	}
	return v.setSecret(profile, partClient, seeds.Client)
}

// Load returns the seed pair of profile or ErrNotFound.
func (v *Vault) Load(profile string) (engine.Seeds, error) {
	server, err := v.getSecret(profile, partServer)
	if err != nil {
		return engine.Seeds{}, err
	}
	client, err := v.getSecret(profile, partClient)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return engine.Seeds{}, err
	}
	return engine.Seeds{Server: server, Client: client}, nil
}

// Delete removes profile from the keychain and the fallback file.
func (v *Vault) Delete(profile string) error {
	var errs error
	for _, part := range []string{partServer, partClient} {
		if err := keyring.Delete(v.service, v.key(profile, part)); err != nil &&
			!errors.Is(err, keyring.ErrNotFound) && !isKeyringUnavailable(err) {
			errs = multierr.Append(errs, err)
		}
	}
	return multierr.Append(errs, v.deleteFallbackProfile(profile))
}

// ServerSeedHash is the hex SHA-256 of the server seed, safe to print.
func ServerSeedHash(seeds engine.Seeds) string {
	sum := sha256.Sum256([]byte(seeds.Server))
	return hex.EncodeToString(sum[:])
}

func (v *Vault) setSecret(profile, part, value string) error {
	profile = strings.TrimSpace(profile)
	if profile == "" {
		return fmt.Errorf("seedvault: profile name is required")
	}

	err := keyring.Set(v.service, v.key(profile, part), value)
	if err == nil {
		return nil
	}
	if !isKeyringUnavailable(err) {
		return fmt.Errorf("seedvault: keyring set %s: %w", part, err)
	}
	return v.setFallback(profile, part, value)
}

func (v *Vault) getSecret(profile, part string) (string, error) {
	profile = strings.TrimSpace(profile)
	if profile == "" {
		return "", fmt.Errorf("seedvault: profile name is required")
	}

	val, err := keyring.Get(v.service, v.key(profile, part))
	if err == nil {
		return val, nil
	}
	if !isKeyringUnavailable(err) && !errors.Is(err, keyring.ErrNotFound) {
		return "", fmt.Errorf("seedvault: keyring get %s: %w", part, err)
	}
	return v.getFallback(profile, part)
}

func isKeyringUnavailable(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "secret service") ||
		strings.Contains(msg, "dbus") ||
		strings.Contains(msg, "no keychain") ||
		strings.Contains(msg, "keyring backend not available")
}

type fallbackSecrets map[string]map[string]string

func (v *Vault) setFallback(profile, part, value string) error {
	if strings.TrimSpace(v.fallbackPath) == "" {
		return fmt.Errorf("seedvault: keyring unavailable and no fallback path configured")
	}
	v.mu.Lock()
	defer v.mu.Unlock()

	data, err := v.readFallbackUnlocked()
	if err != nil {
		return err
	}
	if _, ok := data[profile]; !ok {
		data[profile] = map[string]string{}
	}
	data[profile][part] = value
	return v.writeFallbackUnlocked(data)
}

func (v *Vault) getFallback(profile, part string) (string, error) {
	if strings.TrimSpace(v.fallbackPath) == "" {
		return "", fmt.Errorf("%w: %s", ErrNotFound, profile)
	}
	v.mu.Lock()
	defer v.mu.Unlock()

	data, err := v.readFallbackUnlocked()
	if err != nil {
		return "", err
	}
	val, ok := data[profile][part]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNotFound, profile)
	}
	return val, nil
}

func (v *Vault) deleteFallbackProfile(profile string) error {
	if strings.TrimSpace(v.fallbackPath) == "" {
		return nil
	}
	v.mu.Lock()
	defer v.mu.Unlock()

	data, err := v.readFallbackUnlocked()
	if err != nil {
		return err
	}
	if _, ok := data[profile]; !ok {
		return nil
	}
	delete(data, profile)
	return v.writeFallbackUnlocked(data)
}

func (v *Vault) readFallbackUnlocked() (fallbackSecrets, error) {
	out := fallbackSecrets{}
	raw, err := os.ReadFile(v.fallbackPath)
	if err != nil {
		if os.IsNotExist(err) {
			return out, nil
		}
		return nil, fmt.Errorf("seedvault: read fallback secrets: %w", err)
	}
	if len(raw) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("seedvault: decode fallback secrets: %w", err)
	}
	return out, nil
}

func (v *Vault) writeFallbackUnlocked(data fallbackSecrets) error {
	if err := os.MkdirAll(filepath.Dir(v.fallbackPath), 0o700); err != nil {
		return fmt.Errorf("seedvault: mkdir fallback dir: %w", err)
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("seedvault: encode fallback secrets: %w", err)
	}
	if err := os.WriteFile(v.fallbackPath, raw, 0o600); err != nil {
		return fmt.Errorf("seedvault: write fallback secrets: %w", err)
	}
	return nil
}
