package skhub

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Environment variables that override configuration values.
const (
	// EnvCacheDir overrides Config.CacheDir.
	EnvCacheDir = "SKHUB_CACHE_DIR"

	// EnvToken overrides Config.Token.
	EnvToken = "HF_TOKEN"

	// EnvEndpoint overrides Config.Endpoint.
	EnvEndpoint = "HF_ENDPOINT"
)

// FileConfig is the contents of a YAML configuration file.
//
//	cache_dir: /data/hf
//	token: hf_xxx
//	progress: true
//	filename: model.joblib
//	method: joblib
//	revision: main
type FileConfig struct {
	CacheDir string `yaml:"cache_dir"`
	Token    string `yaml:"token"`
	Endpoint string `yaml:"endpoint"`
	Progress bool   `yaml:"progress"`

	// Defaults for load operations.
	Filename string `yaml:"filename"`
	Method   string `yaml:"method"`
	Revision string `yaml:"revision"`
}

// LoadConfigFile reads a YAML configuration file.
// Returns ErrConfig if the file cannot be parsed or names an unknown
// serialization method.
func LoadConfigFile(path string) (*FileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var fc FileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrConfig, path, err)
	}
	if fc.Method != "" {
		if _, err := ParseSerializationMethod(fc.Method); err != nil {
			return nil, fmt.Errorf("%w: %s: method %q", ErrConfig, path, fc.Method)
		}
	}
	return &fc, nil
}

// Config returns the client configuration, with base supplying values
// the file leaves empty.
func (fc *FileConfig) Config(base Config) Config {
	cfg := base
	if fc.CacheDir != "" {
		cfg.CacheDir = fc.CacheDir
	}
	if fc.Token != "" {
		cfg.Token = fc.Token
	}
	if fc.Endpoint != "" {
		cfg.Endpoint = fc.Endpoint
	}
	if fc.Progress {
		cfg.Progress = true
	}
	return cfg
}

// LoadOptions returns the load defaults stored in the file.
func (fc *FileConfig) LoadOptions() []LoadOption {
	var opts []LoadOption
	if fc.Filename != "" {
		opts = append(opts, WithFilename(fc.Filename))
	}
	if fc.Method != "" {
		// Validated by LoadConfigFile.
		method, _ := ParseSerializationMethod(fc.Method)
		opts = append(opts, WithSerializationMethod(method))
	}
	if fc.Revision != "" {
		opts = append(opts, WithRevision(fc.Revision))
	}
	return opts
}

// ApplyEnv returns cfg with the values of the SKHUB_CACHE_DIR, HF_TOKEN and
// HF_ENDPOINT environment variables applied.
// Priority: env var > Config > hub client default
func ApplyEnv(cfg Config) Config {
	if v := os.Getenv(EnvCacheDir); v != "" {
		cfg.CacheDir = v
	}
	if v := os.Getenv(EnvToken); v != "" {
		cfg.Token = v
	}
	if v := os.Getenv(EnvEndpoint); v != "" {
		cfg.Endpoint = v
	}
	return cfg
}

