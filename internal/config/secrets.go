package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/zalando/go-keyring"
)

const keyHintAPIKey = "hint-apikey"

// SecretStore wraps the OS keychain with an optional JSON file fallback for
// hosts where no keyring daemon is running (containers, CI).
type SecretStore struct {
	service      string
	fallbackPath string
	mu           sync.Mutex
}

// NewSecretStore creates a keyring wrapper for the given service name.
func NewSecretStore(serviceName, fallbackPath string) *SecretStore {
	if strings.TrimSpace(serviceName) == "" {
		serviceName = "funcwar-server"
	}
	return &SecretStore{service: serviceName, fallbackPath: fallbackPath}
}

// SetHintAPIKey stores the hint backend key for a provider.
func (s *SecretStore) SetHintAPIKey(provider, value string) error {
	return s.set(provider, keyHintAPIKey, value)
}

// HintAPIKey returns the stored hint backend key for a provider.
func (s *SecretStore) HintAPIKey(provider string) (string, error) {
	return s.get(provider, keyHintAPIKey)
}

// DeleteHintAPIKey removes the key from the keyring and the fallback file.
func (s *SecretStore) DeleteHintAPIKey(provider string) error {
	err := keyring.Delete(s.service, s.key(provider, keyHintAPIKey))
	ferr := s.deleteFallback(provider)
	if err != nil && !errors.Is(err, keyring.ErrNotFound) && !isKeyringUnavailable(err) {
		return fmt.Errorf("config: keyring delete: %w", err)
	}
	return ferr
}

// ResolveHintAPIKey fills cfg.Hint.APIKey from the secret store when the
// environment did not provide one. A missing key is not an error: the llm
// provider reports it on first use and the advisor falls back.
func ResolveHintAPIKey(cfg *Config, secrets *SecretStore) {
	if cfg.Hint.APIKey != "" || cfg.Hint.Provider != "llm" || secrets == nil {
		return
	}
	key, err := secrets.HintAPIKey(cfg.Hint.Provider)
	if err != nil {
		if !errors.Is(err, keyring.ErrNotFound) {
			fmt.Fprintf(os.Stderr, "[CONFIG] hint api key lookup failed: %v\n", err)
		}
		return
	}
	cfg.Hint.APIKey = key
}

func (s *SecretStore) key(account, part string) string {
	return fmt.Sprintf("%s/%s", account, part)
}

func (s *SecretStore) set(account, part, value string) error {
	account = strings.TrimSpace(account)
	if account == "" {
		return fmt.Errorf("config: secret account is required")
	}
	err := keyring.Set(s.service, s.key(account, part), value)
	if err == nil {
		return nil
	}
	if !isKeyringUnavailable(err) {
		return fmt.Errorf("config: keyring set %s: %w", part, err)
	}
	return s.setFallback(account, part, value)
}

func (s *SecretStore) get(account, part string) (string, error) {
	account = strings.TrimSpace(account)
	if account == "" {
		return "", fmt.Errorf("config: secret account is required")
	}
	val, err := keyring.Get(s.service, s.key(account, part))
	if err == nil {
		return val, nil
	}
	if !isKeyringUnavailable(err) && !errors.Is(err, keyring.ErrNotFound) {
		return "", fmt.Errorf("config: keyring get %s: %w", part, err)
	}
	fallback, ferr := s.getFallback(account, part)
	if ferr == nil {
		return fallback, nil
	}
	return "", keyring.ErrNotFound
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

func (s *SecretStore) setFallback(account, part, value string) error {
	if strings.TrimSpace(s.fallbackPath) == "" {
		return fmt.Errorf("config: keyring unavailable and no fallback path configured")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.readFallback()
	if err != nil {
		return err
	}
	if _, ok := data[account]; !ok {
		data[account] = map[string]string{}
	}
	data[account][part] = value
	return s.writeFallback(data)
}

func (s *SecretStore) getFallback(account, part string) (string, error) {
	if strings.TrimSpace(s.fallbackPath) == "" {
		return "", keyring.ErrNotFound
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.readFallback()
	if err != nil {
		return "", err
	}
	val, ok := data[account][part]
	if !ok {
		return "", keyring.ErrNotFound
	}
	return val, nil
}

func (s *SecretStore) deleteFallback(account string) error {
	if strings.TrimSpace(s.fallbackPath) == "" {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.readFallback()
	if err != nil {
		return err
	}
	delete(data, account)
	return s.writeFallback(data)
}

func (s *SecretStore) readFallback() (fallbackSecrets, error) {
	out := fallbackSecrets{}
	raw, err := os.ReadFile(s.fallbackPath)
	if err != nil {
		if os.IsNotExist(err) {
			return out, nil
		}
		return nil, fmt.Errorf("config: read fallback secrets: %w", err)
	}
	if len(raw) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("config: decode fallback secrets: %w", err)
	}
	return out, nil
}

func (s *SecretStore) writeFallback(data fallbackSecrets) error {
	if err := os.MkdirAll(filepath.Dir(s.fallbackPath), 0o700); err != nil {
		return fmt.Errorf("config: mkdir fallback dir: %w", err)
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("config: encode fallback secrets: %w", err)
	}
	if err := os.WriteFile(s.fallbackPath, raw, 0o600); err != nil {
		return fmt.Errorf("config: write fallback secrets: %w", err)
	}
	return nil
}
