package companion

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/moss-dev/rustplus-companion/fcm"
)

// CredentialBundle is the persisted outcome of a registration run.
type CredentialBundle struct {
	FCMCredentials    *fcm.Credentials `json:"fcm_credentials,omitempty"`
	ExpoPushToken     string           `json:"expo_push_token,omitempty"`
	RustPlusAuthToken string           `json:"rustplus_auth_token,omitempty"`
	FCMPersistentIDs  []string         `json:"fcm_persistent_ids,omitempty"`
}

// Store reads and writes the JSON config file. Writes merge into whatever is
// already on disk: new fields overwrite same-named old fields, unrelated
// existing fields survive.
type Store struct {
	path   string
	logger *slog.Logger
}

// NewStore creates a Store bound to the given file path.
func NewStore(path string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{path: path, logger: logger}
}

// Path returns the config file path.
func (s *Store) Path() string { return s.path }

// Load reads the persisted bundle. A missing file yields an empty bundle.
func (s *Store) Load() (*CredentialBundle, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return &CredentialBundle{}, nil
		}
		return nil, fmt.Errorf("reading config: %w", err)
	}
	var bundle CredentialBundle
	if err := json.Unmarshal(data, &bundle); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", s.path, err)
	}
	return &bundle, nil
}

// LoadRaw reads the config file as a raw key set, preserving fields this
// tool does not know about.
func (s *Store) LoadRaw() (map[string]json.RawMessage, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]json.RawMessage{}, nil
		}
		return nil, fmt.Errorf("reading config: %w", err)
	}
	raw := map[string]json.RawMessage{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", s.path, err)
	}
	return raw, nil
}

// Save merges the bundle's populated fields into the config file.
func (s *Store) Save(bundle *CredentialBundle) error {
	fields := map[string]any{}
	if bundle.FCMCredentials != nil {
		fields["fcm_credentials"] = bundle.FCMCredentials
	}
	if bundle.ExpoPushToken != "" {
		fields["expo_push_token"] = bundle.ExpoPushToken
	}
	if bundle.RustPlusAuthToken != "" {
		fields["rustplus_auth_token"] = bundle.RustPlusAuthToken
	}
	if bundle.FCMPersistentIDs != nil {
		fields["fcm_persistent_ids"] = bundle.FCMPersistentIDs
	}
	return s.merge(fields)
}

// SaveAuthToken persists just the pairing auth token.
func (s *Store) SaveAuthToken(token string) error {
	return s.merge(map[string]any{"rustplus_auth_token": token})
}

// SavePersistentIDs persists the processed notification ID list.
func (s *Store) SavePersistentIDs(ids []string) error {
	return s.merge(map[string]any{"fcm_persistent_ids": ids})
}

func (s *Store) merge(fields map[string]any) error {
	raw, err := s.LoadRaw()
	if err != nil {
		return err
	}

	for key, value := range fields {
		encoded, err := json.Marshal(value)
		if err != nil {
			return fmt.Errorf("serializing config field %s: %w", key, err)
		}
		raw[key] = encoded
	}

	// Stable 2-space indentation: the file doubles as the user-facing
	// record of their credentials.
	data, err := json.MarshalIndent(raw, "", "  ")
	if err != nil {
		return fmt.Errorf("serializing config: %w", err)
	}
	data = append(data, '\n')

	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}
	}
	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	s.logger.Debug("saved config", "path", s.path)
	return nil
}
