// Package config handles ducktape.toml and ducktape.yaml runtime
// configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/chazu/ducktape/aspect"
	"github.com/chazu/ducktape/dispatch"
	"github.com/chazu/ducktape/proxy"
	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"
	"gopkg.in/yaml.v3"
)

// FileNames are the configuration files FindAndLoad looks for, in order.
var FileNames = []string{"ducktape.toml", "ducktape.yaml", "ducktape.yml"}

// VerbosityEnv overrides Log.Verbosity when set.
const VerbosityEnv = "DUCKTAPE_LOG_VERBOSITY"

// Config is the runtime configuration.
type Config struct {
	Log     Log     `toml:"log" yaml:"log"`
	Cache   Cache   `toml:"cache" yaml:"cache"`
	Aspects Aspects `toml:"aspects" yaml:"aspects"`

	// Path is the file the configuration was loaded from (set at load time).
	Path string `toml:"-" yaml:"-"`
}

// Log configures commonlog.
type Log struct {
	Verbosity int    `toml:"verbosity" yaml:"verbosity"`
	File      string `toml:"file" yaml:"file"`
}

// Cache configures the call-site cache and the proxy builder.
type Cache struct {
	PolymorphicLimit int `toml:"polymorphic_limit" yaml:"polymorphic_limit"`
	MaxArity         int `toml:"max_arity" yaml:"max_arity"`
}

// Aspects configures the aspect weaver.
type Aspects struct {
	// Ordering lists aspect categories, by name or number, first to last.
	// Empty means the predefined order.
	Ordering []string `toml:"ordering" yaml:"ordering"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Cache: Cache{
			PolymorphicLimit: dispatch.DefaultPolymorphicLimit,
			MaxArity:         proxy.DefaultMaxArity,
		},
	}
}

// Format is a configuration file syntax.
type Format string

const (
	TOML Format = "toml"
	YAML Format = "yaml"
)

// FormatOf guesses the format from a file name.
func FormatOf(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		return TOML, nil
	case ".yaml", ".yml":
		return YAML, nil
	}
	return "", fmt.Errorf("unknown configuration format for %s", path)
}

// Parse validates data against the schema and decodes it over the
// defaults.
func Parse(data []byte, format Format) (*Config, error) {
	raw := make(map[string]any)
	switch format {
	case TOML:
		if err := toml.Unmarshal(data, &raw); err != nil {
			return nil, err
		}
	case YAML:
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unknown configuration format %q", format)
	}
	if err := Validate(raw); err != nil {
		return nil, err
	}

	c := Default()
	var err error
	switch format {
	case TOML:
		err = toml.Unmarshal(data, c)
	case YAML:
		err = yaml.Unmarshal(data, c)
	}
	if err != nil {
		return nil, err
	}
	if _, err := c.Ordering(); err != nil {
		return nil, err
	}
	return c, nil
}

// Load parses the configuration file at path and applies environment
// overrides.
func Load(path string) (*Config, error) {
	format, err := FormatOf(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}
	c, err := Parse(data, format)
	if err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}
	c.Path, err = filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", path, err)
	}
	if err := c.applyEnv(); err != nil {
		return nil, err
	}
	return c, nil
}

// FindAndLoad walks up from startDir to find a configuration file, then
// loads it. Without a file it returns the defaults with environment
// overrides applied.
func FindAndLoad(startDir string) (*Config, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		for _, name := range FileNames {
			path := filepath.Join(dir, name)
			if _, err := os.Stat(path); err == nil {
				return Load(path)
			}
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			c := Default()
			if err := c.applyEnv(); err != nil {
				return nil, err
			}
			return c, nil
		}
		dir = parent
	}
}

func (c *Config) applyEnv() error {
	v, ok := os.LookupEnv(VerbosityEnv)
	if !ok || v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s: %w", VerbosityEnv, err)
	}
	c.Log.Verbosity = n
	return nil
}

// Ordering returns the configured aspect ordering.
func (c *Config) Ordering() (aspect.Ordering, error) {
	if len(c.Aspects.Ordering) == 0 {
		return aspect.DefaultOrdering(), nil
	}
	return aspect.OrderingFromNames(c.Aspects.Ordering)
}

// CacheOptions returns the dispatch.Cache options the configuration
// implies.
func (c *Config) CacheOptions() []dispatch.Option {
	return []dispatch.Option{dispatch.WithPolymorphicLimit(c.Cache.PolymorphicLimit)}
}

// ProjectorOptions returns the proxy.Projector options the configuration
// implies.
func (c *Config) ProjectorOptions() []proxy.Option {
	return []proxy.Option{proxy.WithMaxArity(c.Cache.MaxArity)}
}

// ConfigureLogging applies the log section to commonlog.
func (c *Config) ConfigureLogging() {
	if c.Log.File != "" {
		path := c.Log.File
		commonlog.Configure(c.Log.Verbosity, &path)
		return
	}
	commonlog.Configure(c.Log.Verbosity, nil)
}
