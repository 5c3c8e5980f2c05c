package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Format identifies a configuration file syntax.
type Format string

const (
	// FormatTOML is TOML, decoded with go-toml.
	FormatTOML Format = "toml"
	// FormatYAML is YAML, decoded with yaml.v3.
	FormatYAML Format = "yaml"
)

// FormatFor returns the format implied by path's extension.
func FormatFor(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		return FormatTOML, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, filepath.Ext(path))
	}
}

// Load builds a configuration from defaults, the file at path and the
// environment, then validates it. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := loadFile(cfg, path); err != nil {
			return nil, err
		}
	}

	if err := ApplyEnv(cfg, os.LookupEnv); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadFile(cfg *Config, path string) error {
	format, err := FormatFor(path)
	if err != nil {
		return err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrFileNotFound, path)
		}
		return fmt.Errorf("reading config file %s: %w", path, err)
	}

	return Decode(cfg, format, path, data)
}

// Decode parses data over cfg. Keys absent from data keep their value;
// unknown keys are an error.
func Decode(cfg *Config, format Format, source string, data []byte) error {
	switch format {
	case FormatTOML:
		dec := toml.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(cfg); err != nil {
			return tomlParseError(source, err)
		}
	case FormatYAML:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
			return &ParseError{Path: source, Message: err.Error(), Err: err}
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
	return nil
}

func tomlParseError(source string, err error) error {
	perr := &ParseError{Path: source, Message: err.Error(), Err: err}

	var decodeErr *toml.DecodeError
	if errors.As(err, &decodeErr) {
		perr.Line, perr.Column = decodeErr.Position()
		perr.Message = decodeErr.Error()
	}
	return perr
}
