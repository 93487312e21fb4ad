package config

import (
	"errors"
	"os"

	"github.com/ilyakaznacheev/cleanenv"
)

type Reader interface {
	Read() (*Config, error)
}

type EnvReader struct{}

func NewEnvReader() EnvReader {
	return EnvReader{}
}

func (EnvReader) Read() (*Config, error) {
	cfg := new(Config)
	err := cleanenv.ReadEnv(cfg)
	if err != nil {
		return nil, err
	}

	return cfg, nil
}

// FileReader reads a YAML config file. Environment variables
// override the file, and a missing file falls back to env only.
type FileReader struct {
	path string
}

func NewFileReader(path string) FileReader {
	return FileReader{path: path}
}

func (r FileReader) Read() (*Config, error) {
	if r.path == "" {
		return NewEnvReader().Read()
	}

	cfg := new(Config)
	err := cleanenv.ReadConfig(r.path, cfg)
	if err != nil {
		var pe *os.PathError
		if errors.As(err, &pe) {
			return NewEnvReader().Read()
		}
		return nil, err
	}

	return cfg, nil
}

// NewReader picks the file reader when CONFIG_PATH is set.
func NewReader() Reader {
	if path := os.Getenv("CONFIG_PATH"); path != "" {
		return NewFileReader(path)
	}
	return NewEnvReader()
}
