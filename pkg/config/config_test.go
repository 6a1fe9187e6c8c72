package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/outscale/bsud/pkg/bsuerrors"
	"github.com/outscale/bsud/pkg/cloudvolume"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "bsud.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `{
		"authentication": {"access-key": "ak", "secret-key": "sk"},
		"drives": [{"name": "data", "target": "online", "mount-path": "/mnt/data"}]
	}`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Len(t, cfg.Drives, 1)

	d := cfg.Drives[0]
	assert.Equal(t, "data", d.Name)
	assert.Equal(t, TargetOnline, d.Target)
	assert.Equal(t, cloudvolume.Gp2, d.DiskType)
	assert.Equal(t, 10, d.InitialSizeGiB)
	assert.Equal(t, 10, d.MaxBsuCount)
	assert.InDelta(t, 0.85, d.MaxUsedSpaceFrac, 0.0001)
	assert.InDelta(t, 0.40, d.MinUsedSpaceFrac, 0.0001)
	assert.InDelta(t, 0.20, d.DiskScaleFactorFrac, 0.0001)
}

func TestLoadFallsBackToEnvCredentials(t *testing.T) {
	path := writeConfig(t, `{"drives": [{"name": "data", "target": "online", "mount-path": "/mnt/data"}]}`)
	t.Setenv("OSC_ACCESS_KEY", "envak")
	t.Setenv("OSC_SECRET_KEY", "envsk")
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "envak", cfg.AccessKey)
	assert.Equal(t, "envsk", cfg.SecretKey)
}

func TestLoadRejectsMissingCredentials(t *testing.T) {
	path := writeConfig(t, `{"drives": []}`)
	t.Setenv("OSC_ACCESS_KEY", "")
	t.Setenv("OSC_SECRET_KEY", "")
	_, err := Load(path)
	require.Error(t, err)
	assert.True(t, bsuerrors.Is(err, bsuerrors.ConfigInvalid))
}

func TestLoadRejectsMaxBsuCountBelowTwo(t *testing.T) {
	path := writeConfig(t, `{
		"authentication": {"access-key": "ak", "secret-key": "sk"},
		"drives": [{"name": "data", "target": "online", "mount-path": "/mnt/data", "max-bsu-count": 1}]
	}`)
	_, err := Load(path)
	require.Error(t, err)
	assert.True(t, bsuerrors.Is(err, bsuerrors.ConfigInvalid))
}

func TestLoadRejectsMinGreaterThanMax(t *testing.T) {
	path := writeConfig(t, `{
		"authentication": {"access-key": "ak", "secret-key": "sk"},
		"drives": [{"name": "data", "target": "online", "mount-path": "/mnt/data", "min-used-space-perc": 90, "max-used-space-perc": 85}]
	}`)
	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadRejectsDuplicateDriveNames(t *testing.T) {
	path := writeConfig(t, `{
		"authentication": {"access-key": "ak", "secret-key": "sk"},
		"drives": [
			{"name": "data", "target": "online", "mount-path": "/mnt/a"},
			{"name": "data", "target": "online", "mount-path": "/mnt/b"}
		]
	}`)
	_, err := Load(path)
	require.Error(t, err)
}
