package config

import (
	"fmt"
	"os"

	"github.com/kelseyhightower/envconfig"
	yaml "gopkg.in/yaml.v2"
)

// reading config error is fatal, and exists main thread
func processError(err error) {
	fmt.Println(err)
	os.Exit(2)
}

func readFile(path string, cfg *Configuration) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(cfg); err != nil {
		return fmt.Errorf("cannot decode %s: %w", path, err)
	}
	return nil
}

func readEnv(cfg *Configuration) error {
	return envconfig.Process("", cfg)
}

func applyDefaults(cfg *Configuration) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = defaultPort
	}
	if cfg.Server.RedisPort == 0 {
		cfg.Server.RedisPort = defaultRedisPort
	}
	if cfg.Server.LogDir == "" {
		cfg.Server.LogDir = defaultLogDir
	}
	if cfg.GasOracle.Interval <= 0 {
		cfg.GasOracle.Interval = defaultOracleInterval
	}
}

// Load reads the yaml file at path, applies environment overrides and validates the result
func Load(path string) (*Configuration, error) {
	var cfg Configuration
	if err := readFile(path, &cfg); err != nil {
		return nil, err
	}
	if err := readEnv(&cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func Init(path string) {
	cfg, err := Load(path)
	if err != nil {
		processError(err)
	}
	Config = *cfg
}
