package revocation_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/effective-security/xrevoke/pkg/revocation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	cfgYAML := `
policy: hard_fail
use_ocsp_nonce: false
hash_algorithm: SHA256
crl_cache_max_entries: 50
ocsp_cache_enabled: false
`
	file := filepath.Join(t.TempDir(), "revocation.yaml")
	require.NoError(t, os.WriteFile(file, []byte(cfgYAML), 0644))

	cfg, err := revocation.LoadConfig(file)
	require.NoError(t, err)

	assert.Equal(t, revocation.HardFail, cfg.Policy)
	assert.False(t, cfg.UseNonce())
	assert.False(t, cfg.CacheEnabled())
	assert.Equal(t, "SHA256", cfg.HashAlgorithm)
	assert.Equal(t, 50, cfg.CRLCacheMaxEntries)
}

func TestLoadConfigErrors(t *testing.T) {
	_, err := revocation.LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	file := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(file, []byte("policy: [not, a, string]"), 0644))
	_, err = revocation.LoadConfig(file)
	assert.Error(t, err)
}

func TestConfigDefaults(t *testing.T) {
	var cfg revocation.Config
	assert.Equal(t, revocation.OCSPPreferred, cfg.Policy)
	assert.True(t, cfg.UseNonce())
	assert.True(t, cfg.CacheEnabled())

	checker, err := revocation.New(&cfg)
	require.NoError(t, err)
	assert.NotNil(t, checker)
}
