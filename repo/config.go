package repo

import (
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/nikmy/mongounit/pkg/errors"
)

type Config struct {
	URL     string   `yaml:"url"`
	Timeout Duration `yaml:"timeout"`

	Database string `yaml:"database"`

	// Tenant prefixes every collection name, so several tenants can
	// share one database without colliding.
	Tenant string `yaml:"tenant"`

	Auth struct {
		Username string `yaml:"username"`
		Password string `yaml:"password"`
	} `yaml:"auth"`

	Pool struct {
		MinSize uint64 `yaml:"minSize"`
		MaxSize uint64 `yaml:"maxSize"`
	} `yaml:"pool"`

	Txn TxnConfig `yaml:"txn"`
}

type TxnConfig struct {
	// AutoEnlist makes every mutating repository call join the ambient
	// scope of its flow, if one is open.
	AutoEnlist bool `yaml:"autoEnlist"`

	MaxRetries uint     `yaml:"maxRetries"`
	Timeout    Duration `yaml:"timeout"`
}

func LoadConfig(path string) (*Config, error) {
	path, err := filepath.Abs(path)
	if err != nil {
		return nil, errors.WrapFail(err, "build path to config")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WrapFail(err, "read config file")
	}

	var cfg Config
	err = yaml.Unmarshal(data, &cfg)
	if err != nil {
		return nil, errors.WrapFail(err, "parse yaml")
	}

	return &cfg, nil
}

// Duration accepts human-readable values like "30s" in yaml.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var raw string

	err := unmarshal(&raw)
	if err != nil {
		return err
	}

	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return errors.WrapFail(err, "parse duration")
	}

	*d = Duration(parsed)
	return nil
}
