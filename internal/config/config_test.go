package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
profiles:
  tom:
    sharepoint_root: "/mnt/share/tom"
  sarka:
    sharepoint_root: "/mnt/share/sarka"
paths:
  inventory_db:
    rel_db: "inventory_db/database/pooled_inventory.sqlite"
  showroom:
    rel_raw: "inventory_db/raw/showrooms"
  vocab:
    rel_raw: "inventory_db/raw/vocab"
`

func TestParseAndResolve(t *testing.T) {
	cfg, err := Parse([]byte(sampleYAML), "test.yaml")
	require.NoError(t, err)

	p, err := cfg.Resolve("tom", "showroom")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/mnt/share/tom", "inventory_db", "database", "pooled_inventory.sqlite"), p.DBPath)
	assert.Equal(t, filepath.Join("/mnt/share/tom", "inventory_db", "raw", "showrooms"), p.RawDir)
	assert.Equal(t, "test.yaml", p.Config)
	assert.Equal(t, []string{"sarka", "tom"}, cfg.ProfileNames())
}

func TestResolve_UnknownProfileListsAvailable(t *testing.T) {
	cfg, err := Parse([]byte(sampleYAML), "test.yaml")
	require.NoError(t, err)

	_, err = cfg.Resolve("alice", "showroom")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.Contains(t, err.Error(), "Available profiles: sarka, tom")
}

func TestResolve_MissingRawPath(t *testing.T) {
	cfg, err := Parse([]byte(sampleYAML), "test.yaml")
	require.NoError(t, err)

	_, err = cfg.Resolve("tom", "survey")
	require.ErrorIs(t, err, ErrNotFound)
	assert.Contains(t, err.Error(), "paths.survey.rel_raw")
}

func TestResolve_MissingDBPath(t *testing.T) {
	cfg, err := Parse([]byte("profiles:\n  tom:\n    sharepoint_root: /x\npaths:\n  survey:\n    rel_raw: raw\n"), "t.yaml")
	require.NoError(t, err)

	_, err = cfg.ResolveDB("tom")
	require.ErrorIs(t, err, ErrNotFound)
	assert.Contains(t, err.Error(), "paths.inventory_db.rel_db")
}

func TestParse_NotAMapping(t *testing.T) {
	_, err := Parse([]byte("- a\n- b\n"), "list.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a mapping")
}

func TestParse_ProfileWithoutRootIsInvalid(t *testing.T) {
	_, err := Parse([]byte("profiles:\n  tom: {}\npaths:\n  inventory_db:\n    rel_db: x.sqlite\n"), "bad.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SharepointRoot")
}

func TestLoad_Missing(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "local_paths.yaml"))
	require.ErrorIs(t, err, ErrNotFound)
}

func TestDiscover(t *testing.T) {
	root := t.TempDir()
	cfgPath := filepath.Join(root, RelPath)
	require.NoError(t, os.MkdirAll(filepath.Dir(cfgPath), 0755))
	require.NoError(t, os.WriteFile(cfgPath, []byte(sampleYAML), 0644))

	t.Run("env wins", func(t *testing.T) {
		t.Setenv(EnvVar, cfgPath)
		got, err := Discover("/does/not/exist.yaml")
		require.NoError(t, err)
		assert.Equal(t, cfgPath, got)
	})

	t.Run("flag must exist", func(t *testing.T) {
		t.Setenv(EnvVar, "")
		_, err := Discover(filepath.Join(root, "missing.yaml"))
		require.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("walk up from nested dir", func(t *testing.T) {
		t.Setenv(EnvVar, "")
		nested := filepath.Join(root, "a", "b")
		require.NoError(t, os.MkdirAll(nested, 0755))
		t.Chdir(nested)

		got, err := Discover("")
		require.NoError(t, err)
		gotReal, _ := filepath.EvalSymlinks(got)
		wantReal, _ := filepath.EvalSymlinks(cfgPath)
		assert.Equal(t, wantReal, gotReal)
		assert.True(t, strings.HasSuffix(got, RelPath))
	})
}
