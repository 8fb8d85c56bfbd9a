package config

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// DefaultPath is used when neither --config nor JOBINBOX_CONFIG is set.
const DefaultPath = "config.yaml"

// Env holds the settings read from the process environment. They take
// precedence over the config file.
type Env struct {
	ConfigPath  string `env:"JOBINBOX_CONFIG"`
	DatabaseURL string `env:"DATABASE_URL"`
	Addr        string `env:"JOBINBOX_ADDR"`
	Owner       string `env:"JOBINBOX_OWNER"`
}

// LoadEnv loads .env from the working directory when present, then parses
// the environment.
func LoadEnv() (Env, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Env{}, fmt.Errorf("load .env file: %w", err)
	}
	e, err := env.ParseAs[Env]()
	if err != nil {
		return Env{}, fmt.Errorf("parse environment: %w", err)
	}
	return e, nil
}

// ResolvePath picks the config file: flag, then environment, then default.
func (e Env) ResolvePath(flag string) string {
	switch {
	case flag != "":
		return flag
	case e.ConfigPath != "":
		return e.ConfigPath
	}
	return DefaultPath
}

// Apply overrides cfg with any values set in the environment.
func (e Env) Apply(cfg *Config) {
	if e.DatabaseURL != "" {
		cfg.Database.URL = e.DatabaseURL
	}
	if e.Addr != "" {
		cfg.Server.Addr = e.Addr
	}
	if e.Owner != "" {
		cfg.Owner = e.Owner
	}
}
