// Package config loads config/local_paths.yaml and resolves the shared
// database and raw-data directories for an analyst's profile.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// EnvVar overrides config discovery.
const EnvVar = "POOLEDINV_CONFIG"

// RelPath is where the config lives relative to the project root.
var RelPath = filepath.Join("config", "local_paths.yaml")

// ErrNotFound is returned when the config file, a profile, or a required path entry is missing.
var ErrNotFound = errors.New("not found")

var validate = validator.New()

// Profile is one analyst's machine-specific root of the synced folder.
type Profile struct {
	SharepointRoot string `yaml:"sharepoint_root" validate:"required"`
}

// PathEntry holds the relative locations for one key under paths:.
type PathEntry struct {
	RelDB  string `yaml:"rel_db"`
	RelRaw string `yaml:"rel_raw"`
}

// Config mirrors local_paths.yaml.
type Config struct {
	Profiles map[string]Profile   `yaml:"profiles" validate:"required,min=1,dive"`
	Paths    map[string]PathEntry `yaml:"paths" validate:"required"`

	// File is the path the config was read from.
	File string `yaml:"-"`
}

// Paths are the resolved absolute locations for one run.
type Paths struct {
	DBPath string
	RawDir string
	Config string // file the paths were resolved from; empty when given by flags
}

// Discover finds the config file using priority: env > flag > walk-up from CWD.
func Discover(flagPath string) (string, error) {
	if envPath := os.Getenv(EnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath, nil
		}
	}

	if flagPath != "" {
		if _, err := os.Stat(flagPath); err == nil {
			return flagPath, nil
		}
		return "", fmt.Errorf("config not found at --config path %s: %w", flagPath, ErrNotFound)
	}

	dir, err := os.Getwd()
	if err == nil {
		for {
			candidate := filepath.Join(dir, RelPath)
			if _, err := os.Stat(candidate); err == nil {
				return candidate, nil
			}
			parent := filepath.Dir(dir)
			if parent == dir {
				break
			}
			dir = parent
		}
	}

	return "", fmt.Errorf("config not found: %s\n\nCreate it by copying:\n  config/local_paths.example.yaml -> config/local_paths.yaml\nand editing your profile's sharepoint_root: %w", RelPath, ErrNotFound)
}

// Load reads and validates the YAML file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("config not found: %s: %w", path, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	return Parse(data, path)
}

// Parse decodes config bytes; source is used in error messages only.
func Parse(data []byte, source string) (*Config, error) {
	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", source, err)
	}
	if len(node.Content) == 0 || node.Content[0].Kind != yaml.MappingNode {
		return nil, fmt.Errorf("config file is not a mapping: %s", source)
	}

	var cfg Config
	if err := node.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", source, err)
	}
	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", source, err)
	}
	cfg.File = source
	return &cfg, nil
}

// ProfileNames returns the configured profiles in sorted order.
func (c *Config) ProfileNames() []string {
	names := make([]string, 0, len(c.Profiles))
	for name := range c.Profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ResolveDB returns the shared database path for profile.
func (c *Config) ResolveDB(profile string) (string, error) {
	root, err := c.root(profile)
	if err != nil {
		return "", err
	}
	relDB := c.Paths["inventory_db"].RelDB
	if relDB == "" {
		return "", fmt.Errorf("missing required paths.inventory_db.rel_db in config: %w", ErrNotFound)
	}
	return filepath.Join(root, filepath.FromSlash(relDB)), nil
}

// Resolve returns the database path and the raw directory for sourceType.
func (c *Config) Resolve(profile, sourceType string) (Paths, error) {
	dbPath, err := c.ResolveDB(profile)
	if err != nil {
		return Paths{}, err
	}
	relRaw := c.Paths[sourceType].RelRaw
	if relRaw == "" {
		return Paths{}, fmt.Errorf("missing required paths.%s.rel_raw in config: %w", sourceType, ErrNotFound)
	}
	root, _ := c.root(profile)
	return Paths{
		DBPath: dbPath,
		RawDir: filepath.Join(root, filepath.FromSlash(relRaw)),
		Config: c.File,
	}, nil
}

func (c *Config) root(profile string) (string, error) {
	p, ok := c.Profiles[profile]
	if !ok {
		available := "(none)"
		if names := c.ProfileNames(); len(names) > 0 {
			available = strings.Join(names, ", ")
		}
		return "", fmt.Errorf("profile '%s' not found in config.\nAvailable profiles: %s: %w", profile, available, ErrNotFound)
	}
	return filepath.FromSlash(p.SharepointRoot), nil
}
