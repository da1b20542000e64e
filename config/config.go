package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/thisislance98/claudia/errors"
	"github.com/thisislance98/claudia/pkg/detect"
	"github.com/thisislance98/claudia/pkg/paths"
	"github.com/thisislance98/claudia/schema"
)

// EnvConfigPath names the environment variable that points at a config file.
const EnvConfigPath = "CLAUDIA_CONFIG"

var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

// configNames are searched in ConfigDir, in order.
var configNames = []string{"claudia.yml", "claudia.yaml", "claudia.toml"}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	cfg.SetDefaults()
	return cfg
}

// FindConfigFile returns the config file to use, or "" when none exists.
// Precedence: explicit path, CLAUDIA_CONFIG, then ConfigDir.
func FindConfigFile(explicit string) string {
	if explicit != "" {
		return explicit
	}
	if env := os.Getenv(EnvConfigPath); env != "" {
		return env
	}
	for _, path := range DefaultConfigFiles() {
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path
		}
	}
	return ""
}

// DefaultConfigFiles lists the config file locations searched in ConfigDir.
func DefaultConfigFiles() []string {
	dir := paths.ConfigDir()
	if dir == "" {
		return nil
	}
	files := make([]string, 0, len(configNames))
	for _, name := range configNames {
		files = append(files, filepath.Join(dir, name))
	}
	return files
}

// LoadDefault loads the config file found by FindConfigFile(""), or the
// defaults when there is none.
func LoadDefault() (*Config, error) {
	cfg, _, err := Load("")
	return cfg, err
}

// Load resolves and loads the configuration. A missing file in the default
// location is not an error; a missing explicit file is. The returned path is
// "" when defaults were used.
func Load(explicit string) (*Config, string, error) {
	path := FindConfigFile(explicit)
	if path == "" {
		return Default(), "", nil
	}
	cfg, err := LoadFile(path)
	if err != nil {
		return nil, path, err
	}
	return cfg, path, nil
}

// LoadFile reads and parses one configuration file. The format follows the
// extension: .toml is TOML, anything else YAML.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.ConfigNotFound(path)
		}
		return nil, errors.Wrap(err, errors.ErrCodeConfigInvalid, "failed to read config file").
			WithDetail("path", path)
	}

	cfg, err := LoadFromBytes(data, FormatForPath(path))
	if err != nil {
		if e, ok := err.(*errors.Error); ok {
			return nil, e.WithDetail("path", path)
		}
		return nil, err
	}
	return cfg, nil
}

// Format is a configuration file syntax.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
)

// FormatForPath picks the syntax from a file name.
func FormatForPath(path string) Format {
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		return FormatTOML
	}
	return FormatYAML
}

// LoadFromBytes parses, schema-validates, defaults and semantically validates
// a configuration document.
func LoadFromBytes(data []byte, format Format) (*Config, error) {
	expanded := []byte(expandEnvVars(string(data)))

	raw, err := decodeRaw(expanded, format)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeConfigInvalid, fmt.Sprintf("failed to parse %s configuration", format))
	}

	validator, err := NewSchemaValidator()
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeConfigInvalid, "failed to create validator")
	}
	if err := validator.Validate(raw); err != nil {
		wrapped := errors.Wrap(err, errors.ErrCodeConfigValidation, "schema validation failed")
		if verr, ok := err.(*schema.ValidationError); ok {
			wrapped = wrapped.WithDetail("issues", verr.Issues)
		}
		return nil, wrapped
	}

	var cfg Config
	switch format {
	case FormatTOML:
		if err := decodeMap(raw, &cfg); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeConfigInvalid, "failed to decode TOML configuration")
		}
	default:
		if err := yaml.Unmarshal(expanded, &cfg); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeConfigInvalid, "failed to parse YAML configuration")
		}
	}

	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func decodeRaw(data []byte, format Format) (map[string]interface{}, error) {
	raw := map[string]interface{}{}
	var err error
	switch format {
	case FormatTOML:
		err = toml.Unmarshal(data, &raw)
	default:
		err = yaml.Unmarshal(data, &raw)
	}
	if err != nil {
		return nil, err
	}
	return raw, nil
}

// decodeMap fills cfg from a generic document. Keys that are not Config
// fields become Extensions.
func decodeMap(raw map[string]interface{}, cfg *Config) error {
	core := map[string]interface{}{}
	for k, v := range raw {
		if coreKeys[k] {
			core[k] = v
			continue
		}
		if cfg.Extensions == nil {
			cfg.Extensions = map[string]interface{}{}
		}
		cfg.Extensions[k] = v
	}
	return decode(core, cfg)
}

func decode(input interface{}, target interface{}) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           target,
		TagName:          "yaml",
		WeaklyTypedInput: true,
		DecodeHook:       mapstructure.TextUnmarshallerHookFunc(),
	})
	if err != nil {
		return fmt.Errorf("failed to create mapstructure decoder: %w", err)
	}
	return decoder.Decode(input)
}

// UnmarshalExtension decodes a free-form top-level section into target,
// which must be a pointer. A missing section leaves target untouched.
//
// Example:
//
//	var logCfg logging.Config
//	err := cfg.UnmarshalExtension("logging", &logCfg)
func (c *Config) UnmarshalExtension(key string, target interface{}) error {
	section, ok := c.Extensions[key]
	if !ok {
		return nil
	}
	if err := decode(section, target); err != nil {
		return fmt.Errorf("failed to decode extension config for '%s': %w", key, err)
	}
	return nil
}

// DetectorPatterns returns the built-in pattern table with every non-empty
// field of the detector section substituted.
func (c *Config) DetectorPatterns() detect.Patterns {
	p := detect.DefaultPatterns()
	o := c.Detector

	replace := func(dst *[]string, src []string) {
		if len(src) > 0 {
			*dst = src
		}
	}
	replace(&p.SelectHints, o.SelectHints)
	replace(&p.NavigateHints, o.NavigateHints)
	replace(&p.Allow, o.Allow)
	replace(&p.Deny, o.Deny)
	replace(&p.Confirmations, o.Confirmations)
	replace(&p.Separators, o.Separators)
	replace(&p.Boilerplate, o.Boilerplate)
	replace(&p.Interrogatives, o.Interrogatives)
	replace(&p.Readiness, o.Readiness)
	replace(&p.SessionID, o.SessionID)
	if o.MinQuestionLength > 0 {
		p.MinQuestionLength = o.MinQuestionLength
	}
	if o.Window > 0 {
		p.Window = o.Window
	}
	return p
}

// expandEnvVars replaces ${VAR} with environment variable values
func expandEnvVars(content string) string {
	return envVarRegex.ReplaceAllStringFunc(content, func(match string) string {
		varName := envVarRegex.FindStringSubmatch(match)[1]

		// ${VAR:-default}
		parts := strings.SplitN(varName, ":-", 2)
		varName = parts[0]
		defaultValue := ""
		if len(parts) > 1 {
			defaultValue = parts[1]
		}

		if value := os.Getenv(varName); value != "" {
			return value
		}
		return defaultValue
	})
}
