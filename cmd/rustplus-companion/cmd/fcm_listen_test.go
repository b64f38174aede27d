package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	companion "github.com/moss-dev/rustplus-companion"
	"github.com/moss-dev/rustplus-companion/fcm"
)

func TestResolveIdentity_FromFlag(t *testing.T) {
	store := companion.NewStore(filepath.Join(t.TempDir(), "absent.json"), nil)

	identity, ids, err := resolveIdentity(store, `{androidId: 123, securityToken: 456}`)
	require.NoError(t, err)
	assert.Equal(t, fcm.DeviceIdentity{AndroidID: "123", SecurityToken: "456"}, identity)
	assert.Nil(t, ids)
}

func TestResolveIdentity_FromFlag_Malformed(t *testing.T) {
	store := companion.NewStore(filepath.Join(t.TempDir(), "absent.json"), nil)

	_, _, err := resolveIdentity(store, "androidId only, no braces")
	require.Error(t, err)

	var formatErr *fcm.FormatError
	assert.ErrorAs(t, err, &formatErr)
}

func TestResolveIdentity_FromConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rustplus.config.json")
	config := `{
  "fcm_credentials": {
    "gcm": {"androidId": "5152407997451234567", "securityToken": "5427954117980325021"},
    "fcm": {"token": "PUSH1"}
  },
  "fcm_persistent_ids": ["pid-1", "pid-2"]
}`
	require.NoError(t, os.WriteFile(path, []byte(config), 0o600))

	store := companion.NewStore(path, nil)
	identity, ids, err := resolveIdentity(store, "")
	require.NoError(t, err)
	assert.Equal(t, "5152407997451234567", identity.AndroidID)
	assert.Equal(t, "5427954117980325021", identity.SecurityToken)
	assert.Equal(t, []string{"pid-1", "pid-2"}, ids)
}

func TestResolveIdentity_NoCredentials(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rustplus.config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"servers": []}`), 0o600))

	store := companion.NewStore(path, nil)
	_, _, err := resolveIdentity(store, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fcm-register")
}
