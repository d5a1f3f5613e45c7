package main

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// settings is the optional config file. Everything here can also be set with
// flags; flags win over the file.
type settings struct {
	MaxRows             int    `yaml:"max_rows" toml:"max_rows"`                         // cap on rows returned by any read
	MemoryOptimizations *bool  `yaml:"memory_optimizations" toml:"memory_optimizations"` // nil keeps the default (on)
	MaxFileMB           int64  `yaml:"max_file_mb" toml:"max_file_mb"`                   // reject database files above this
	EphemeralFileMB     int64  `yaml:"ephemeral_file_mb" toml:"ephemeral_file_mb"`       // load without persistence above this
	StoreDir            string `yaml:"store_dir" toml:"store_dir"`                       // directory for persisted images
	StoreConn           string `yaml:"store_conn" toml:"store_conn"`                     // SQL image store, overrides store_dir
	Encrypt             bool   `yaml:"encrypt" toml:"encrypt"`                           // encrypt stored images
}

// loadSettings parses a yaml or toml settings file, picking the format by
// extension. Yaml is decoded in strict mode, unknown fields fail.
func loadSettings(fname string) (*settings, error) {
	data, err := os.ReadFile(fname) // nolint
	if err != nil {
		return nil, fmt.Errorf("can't read config %s: %w", fname, err)
	}

	res := &settings{}
	switch {
	case strings.HasSuffix(fname, ".yml") || strings.HasSuffix(fname, ".yaml"):
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(res); err != nil {
			return nil, fmt.Errorf("can't unmarshal yaml config %s: %w", fname, err)
		}
	case strings.HasSuffix(fname, ".toml"):
		if err := toml.Unmarshal(data, res); err != nil {
			return nil, fmt.Errorf("can't unmarshal toml config %s: %w", fname, err)
		}
	default:
		return nil, fmt.Errorf("unknown config format %s", fname)
	}
	return res, nil
}
