package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix of process environment keys read by FromEnv.
const EnvPrefix = "EVENTFLOW_"

// EnvConfigFile names an optional config file merged under the environment.
const EnvConfigFile = EnvPrefix + "CONFIG"

// FromFile loads configuration from a file, auto-detecting format by extension.
// Supported extensions: .yaml, .yml, .json
func FromFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		return FromYAML(data)
	case ".json":
		return FromJSON(data)
	default:
		return Config{}, fmt.Errorf("unsupported config file extension: %s", ext)
	}
}

// FromYAML parses YAML data into a Config.
func FromYAML(data []byte) (Config, error) {
	var m map[string]any
	if err := yaml.Unmarshal(data, &m); err != nil {
		return Config{}, fmt.Errorf("parse yaml: %w", err)
	}
	return New(m), nil
}

// FromJSON parses JSON data into a Config.
func FromJSON(data []byte) (Config, error) {
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return Config{}, fmt.Errorf("parse json: %w", err)
	}
	return New(m), nil
}

// FromEnv builds a Config from environment variables starting with prefix.
// EVENTFLOW_TIMEOUT_BLOCKING becomes the key "timeout.blocking".
// Values stay strings; the typed accessors parse them.
func FromEnv(prefix string) Config {
	m := make(map[string]any)
	for _, kv := range os.Environ() {
		name, value, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(name, prefix) {
			continue
		}
		key := strings.TrimPrefix(name, prefix)
		if key == "" {
			continue
		}
		m[strings.ToLower(strings.ReplaceAll(key, "_", "."))] = value
	}
	return New(m)
}

// LoadDotEnv loads the given .env files into the process environment without
// overriding variables that are already set. Missing files are skipped.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if _, err := os.Stat(p); errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

// Process returns the process configuration: a .env file in the working
// directory is loaded first, the file named by EVENTFLOW_CONFIG (if any) is
// parsed, and EVENTFLOW_* variables are layered on top.
//
// Errors loading either file are returned together with whatever could be
// read, so callers can log and continue with defaults.
func Process() (Config, error) {
	var errs []error
	if err := LoadDotEnv(); err != nil {
		errs = append(errs, err)
	}

	cfg := New(nil)
	if path := os.Getenv(EnvConfigFile); path != "" {
		fileCfg, err := FromFile(path)
		if err != nil {
			errs = append(errs, err)
		} else {
			cfg = fileCfg
		}
	}

	env := FromEnv(EnvPrefix)
	delete(env.data, "config")
	return cfg.Merge(env), errors.Join(errs...)
}
