package tables

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/cockroachdb/errors"
	"github.com/ppiankov/archetype/internal/model"
	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var defaultDocument []byte

// Format is a reference table document encoding
type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
	FormatTOML Format = "toml"
)

// FormatFromPath infers the document format from a file extension
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".json":
		return FormatJSON, nil
	case ".toml":
		return FormatTOML, nil
	}
	return "", errors.Mark(errors.Newf("unsupported tables format %q (use .yaml, .json or .toml)", filepath.Ext(path)), model.ErrTables)
}

// Default returns the embedded default reference tables
func Default() (*Tables, error) {
	return Parse(defaultDocument, FormatYAML)
}

// MustDefault is Default for callers that cannot proceed without tables
func MustDefault() *Tables {
	t, err := Default()
	if err != nil {
		panic(err)
	}
	return t
}

// Load reads a tables document from disk. An empty path loads the embedded default.
func Load(path string) (*Tables, error) {
	if path == "" {
		return Default()
	}
	format, err := FormatFromPath(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "read tables %s", path), model.ErrTables)
	}
	t, err := Parse(data, format)
	if err != nil {
		return nil, errors.Wrapf(err, "load tables %s", path)
	}
	return t, nil
}

// Parse decodes and compiles a tables document. Unknown fields are rejected;
// keys the document omits keep their defaults.
func Parse(data []byte, format Format) (*Tables, error) {
	t := newTables()
	switch format {
	case FormatYAML:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&t); err != nil {
			return nil, errors.Mark(errors.Wrap(err, "decode yaml tables"), model.ErrTables)
		}
	case FormatJSON:
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&t); err != nil {
			return nil, errors.Mark(errors.Wrap(err, "decode json tables"), model.ErrTables)
		}
	case FormatTOML:
		md, err := toml.Decode(string(data), &t)
		if err != nil {
			return nil, errors.Mark(errors.Wrap(err, "decode toml tables"), model.ErrTables)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return nil, errors.Mark(errors.Newf("unknown toml keys: %v", undecoded), model.ErrTables)
		}
	default:
		return nil, errors.Mark(errors.Newf("unsupported tables format %q", format), model.ErrTables)
	}

	if err := t.compile(); err != nil {
		return nil, err
	}
	return &t, nil
}
