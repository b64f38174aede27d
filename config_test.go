package companion

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moss-dev/rustplus-companion/fcm"
)

func testBundle() *CredentialBundle {
	return &CredentialBundle{
		FCMCredentials: &fcm.Credentials{
			GCM: fcm.DeviceIdentity{AndroidID: "100", SecurityToken: "200"},
			FCM: fcm.TokenCredential{Token: "PUSH1"},
		},
		ExpoPushToken:     "EXPO1",
		RustPlusAuthToken: "AUTH1",
	}
}

func TestStore_SaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rustplus.config.json")
	store := NewStore(path, nil)

	require.NoError(t, store.Save(testBundle()))

	loaded, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, testBundle(), loaded)
}

func TestStore_LoadMissingFileYieldsEmptyBundle(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "absent.json"), nil)
	bundle, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, &CredentialBundle{}, bundle)
}

func TestStore_MergePreservesUnrelatedKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rustplus.config.json")
	existing := `{
  "servers": [{"name": "my server", "ip": "203.0.113.7"}],
  "rustplus_auth_token": "OLD"
}`
	require.NoError(t, os.WriteFile(path, []byte(existing), 0o600))

	store := NewStore(path, nil)
	require.NoError(t, store.Save(testBundle()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var raw map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &raw))

	// New fields overwrite same-named old fields; unrelated fields survive.
	assert.JSONEq(t, `"AUTH1"`, string(raw["rustplus_auth_token"]))
	assert.JSONEq(t, `[{"name": "my server", "ip": "203.0.113.7"}]`, string(raw["servers"]))
	assert.JSONEq(t, `{"gcm":{"androidId":"100","securityToken":"200"},"fcm":{"token":"PUSH1"}}`, string(raw["fcm_credentials"]))
}

func TestStore_WritesTwoSpaceIndent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rustplus.config.json")
	store := NewStore(path, nil)
	require.NoError(t, store.SaveAuthToken("AUTH1"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	text := string(data)
	assert.True(t, strings.HasPrefix(text, "{\n  \""), "expected 2-space indentation, got: %s", text)
	assert.True(t, strings.HasSuffix(text, "\n"))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestStore_SavePersistentIDs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rustplus.config.json")
	store := NewStore(path, nil)

	require.NoError(t, store.Save(testBundle()))
	require.NoError(t, store.SavePersistentIDs([]string{"pid-1", "pid-2"}))

	loaded, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"pid-1", "pid-2"}, loaded.FCMPersistentIDs)
	// Partial saves must not clobber the rest of the bundle.
	assert.Equal(t, "EXPO1", loaded.ExpoPushToken)
}

func TestStore_CreatesParentDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "rustplus.config.json")
	store := NewStore(path, nil)
	require.NoError(t, store.SaveAuthToken("AUTH1"))

	_, err := os.Stat(path)
	require.NoError(t, err)
}

func TestStore_LoadRejectsCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rustplus.config.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	store := NewStore(path, nil)
	_, err := store.Load()
	require.Error(t, err)
}
