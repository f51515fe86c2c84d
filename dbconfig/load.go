package dbconfig

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/moby/sys/atomicwriter"
	"go.yaml.in/yaml/v3"
)

// Format is a serialization format for config documents
type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

// FormatForPath picks the format from the file extension. Anything that is not
// .json is read as YAML.
func FormatForPath(path string) Format {
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return FormatJSON
	}

	return FormatYAML
}

// LoadEnhanced reads an enhanced config from a JSON or YAML file
func LoadEnhanced(path string) (*EnhancedConfig, error) {
	cfg := new(EnhancedConfig)
	if err := readFile(path, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadFlat reads a flat config from a JSON or YAML file
func LoadFlat(path string) (*FlatConfig, error) {
	cfg := new(FlatConfig)
	if err := readFile(path, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func readFile(path string, into any) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("error opening config file %v: %w", path, err)
	}
	defer f.Close()

	if err := Decode(f, FormatForPath(path), into); err != nil {
		return fmt.Errorf("error parsing config file %v: %w", path, err)
	}

	return nil
}

// Decode decodes a single document. An empty document leaves into untouched.
func Decode(r io.Reader, format Format, into any) error {
	var err error

	switch format {
	case FormatJSON:
		err = json.NewDecoder(r).Decode(into)
	default:
		err = yaml.NewDecoder(r).Decode(into)
	}

	if errors.Is(err, io.EOF) {
		return nil
	}

	return err
}

// Encode serializes a document in the given format
func Encode(v any, format Format) ([]byte, error) {
	switch format {
	case FormatJSON:
		b, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return nil, err
		}
		return append(b, '\n'), nil
	default:
		var buf bytes.Buffer
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return nil, err
		}
		if err := enc.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	}
}

// WriteSecure writes data so that it is only ever visible under path in full
// and with owner-only permissions: the content goes to a temporary file in the
// same directory, which is restricted to 0600 and then renamed into place.
func WriteSecure(path string, data []byte) error {
	if err := atomicwriter.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("error writing %v: %w", path, err)
	}

	return nil
}
