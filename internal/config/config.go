// Package config loads blockfs's CLI tools configuration: an optional YAML
// manifest layered under environment variables, grounded on the
// envconfig+yaml.v2 layering pattern the example pack's auth service uses
// for its own config loading (weberc2-mono/cmd/auth/config.go).
package config

import (
	"fmt"
	"io/ioutil"
	"os"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

const envVarPrefix = "BLOCKFS"

// Config describes a blockfs volume: where its disk image lives and the
// geometry to format it with if it does not exist yet.
type Config struct {
	DiskPath    string `envconfig:"BLOCKFS_DISK_PATH"    yaml:"diskPath"`
	BlockCount  int    `envconfig:"BLOCKFS_BLOCK_COUNT"  yaml:"blockCount"`
	InodeBlocks int    `envconfig:"BLOCKFS_INODE_BLOCKS" yaml:"inodeBlocks"`
}

// DefaultBlockCount and DefaultInodeBlocks apply when neither the manifest
// nor the environment set a geometry. They are applied after envconfig.Process
// rather than via its own "default" tag, which would silently overwrite a
// value the manifest already set whenever the matching env var is absent.
const (
	DefaultBlockCount  = 1024
	DefaultInodeBlocks = 16
)

// Load reads manifestPath (if non-empty and present) as a YAML Config, then
// lets BLOCKFS_-prefixed environment variables override its fields.
func Load(manifestPath string) (*Config, error) {
	var c Config

	if manifestPath != "" {
		data, err := ioutil.ReadFile(manifestPath)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("config: reading manifest: %w", err)
			}
		} else if err := yaml.UnmarshalStrict(data, &c); err != nil {
			return nil, fmt.Errorf("config: parsing manifest: %w", err)
		}
	}

	if err := envconfig.Process(envVarPrefix, &c); err != nil {
		return nil, fmt.Errorf("config: parsing environment: %w", err)
	}

	if c.BlockCount == 0 {
		c.BlockCount = DefaultBlockCount
	}
	if c.InodeBlocks == 0 {
		c.InodeBlocks = DefaultInodeBlocks
	}

	return &c, nil
}

// Validate reports the first missing required field, grounded on the
// auth service's own field-by-field Validate.
func (c *Config) Validate() error {
	if c.DiskPath == "" {
		return fmt.Errorf("config: diskPath is required (set BLOCKFS_DISK_PATH or diskPath in the manifest)")
	}
	if c.BlockCount <= 0 {
		return fmt.Errorf("config: blockCount must be positive, got %d", c.BlockCount)
	}
	if c.InodeBlocks <= 0 {
		return fmt.Errorf("config: inodeBlocks must be positive, got %d", c.InodeBlocks)
	}
	return nil
}
