package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFromManifest(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "blockfs.yaml")
	require.NoError(t, os.WriteFile(path, []byte("diskPath: /tmp/vol.img\nblockCount: 2000\ninodeBlocks: 32\n"), 0644))

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/vol.img", c.DiskPath)
	assert.Equal(t, 2000, c.BlockCount)
	assert.Equal(t, 32, c.InodeBlocks)
}

func TestEnvironmentOverridesManifest(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "blockfs.yaml")
	require.NoError(t, os.WriteFile(path, []byte("diskPath: /tmp/vol.img\nblockCount: 2000\n"), 0644))

	t.Setenv("BLOCKFS_BLOCK_COUNT", "5000")

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 5000, c.BlockCount)
}

func TestLoadMissingManifestUsesDefaults(t *testing.T) {
	c, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 1024, c.BlockCount)
	assert.Equal(t, 16, c.InodeBlocks)
}

func TestValidateRequiresDiskPath(t *testing.T) {
	c := &Config{BlockCount: 10, InodeBlocks: 1}
	assert.Error(t, c.Validate())

	c.DiskPath = "/tmp/vol.img"
	assert.NoError(t, c.Validate())
}
