// Package persist provides codec-based file persistence for reports and
// workspace state.
package persist

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// File suffixes of the codecs.
const (
	jsonExtension = ".json"
	yamlExtension = ".yaml"
)

// Format names accepted by [CodecFor].
const (
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// ReportIndent is the indentation of JSON delta reports.
const ReportIndent = "    "

// filePerm is the mode of written files; os.CreateTemp starts at 0600.
const filePerm = 0o644

// yamlIndent is the number of spaces per YAML nesting level.
const yamlIndent = 2

// ErrUnknownFormat is returned by [CodecFor] for an unsupported format name.
var ErrUnknownFormat = errors.New("unknown output format")

// Codec serializes reports and workspace state to one file format.
type Codec interface {
	// Encode writes state to w.
	Encode(w io.Writer, state any) error
	// Decode reads state from r.
	Decode(r io.Reader, state any) error
	// Extension is the file suffix including the dot.
	Extension() string
}

// CodecFor returns the codec registered under a format name.
func CodecFor(format string) (Codec, error) {
	switch strings.ToLower(format) {
	case FormatJSON, "":
		return NewJSONCodec(), nil
	case FormatYAML, "yml":
		return NewYAMLCodec(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
}

// CodecForPath picks the codec matching a file extension, defaulting to JSON.
func CodecForPath(path string) Codec {
	switch strings.ToLower(filepath.Ext(path)) {
	case yamlExtension, ".yml":
		return NewYAMLCodec()
	default:
		return NewJSONCodec()
	}
}

// JSONCodec writes JSON, indented unless Indent is empty.
type JSONCodec struct {
	// Indent is the per-level indentation. Empty writes compact JSON.
	Indent string
}

// NewJSONCodec creates a JSON codec indented like delta reports.
func NewJSONCodec() *JSONCodec {
	return &JSONCodec{Indent: ReportIndent}
}

// Encode implements [Codec].
func (c *JSONCodec) Encode(w io.Writer, state any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", c.Indent)

	if err := enc.Encode(state); err != nil {
		return fmt.Errorf("json encode: %w", err)
	}

	return nil
}

// Decode implements [Codec].
func (c *JSONCodec) Decode(r io.Reader, state any) error {
	if err := json.NewDecoder(r).Decode(state); err != nil {
		return fmt.Errorf("json decode: %w", err)
	}

	return nil
}

// Extension implements [Codec].
func (c *JSONCodec) Extension() string {
	return jsonExtension
}

// YAMLCodec writes YAML with two-space indentation.
type YAMLCodec struct{}

// NewYAMLCodec creates a YAML codec.
func NewYAMLCodec() *YAMLCodec {
	return &YAMLCodec{}
}

// Encode implements [Codec].
func (c *YAMLCodec) Encode(w io.Writer, state any) error {
	encoder := yaml.NewEncoder(w)
	encoder.SetIndent(yamlIndent)

	err := encoder.Encode(state)
	if err != nil {
		return fmt.Errorf("yaml encode: %w", err)
	}

	err = encoder.Close()
	if err != nil {
		return fmt.Errorf("yaml encode: %w", err)
	}

	return nil
}

// Decode implements [Codec].
func (c *YAMLCodec) Decode(r io.Reader, state any) error {
	err := yaml.NewDecoder(r).Decode(state)
	if err != nil {
		return fmt.Errorf("yaml decode: %w", err)
	}

	return nil
}

// Extension implements [Codec].
func (c *YAMLCodec) Extension() string {
	return yamlExtension
}

// WriteFile encodes state into path. The data goes to a temporary file in
// the same directory first and is renamed over path, so readers never see a
// partial file.
func WriteFile(path string, codec Codec, state any) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("create temp file for %s: %w", path, err)
	}

	defer func() {
		if err != nil {
			err = errors.Join(err, os.Remove(tmp.Name()))
		}
	}()

	err = tmp.Chmod(filePerm)
	if err != nil {
		return errors.Join(fmt.Errorf("chmod %s: %w", tmp.Name(), err), tmp.Close())
	}

	err = codec.Encode(tmp, state)
	if err != nil {
		return errors.Join(fmt.Errorf("encode %s: %w", path, err), tmp.Close())
	}

	err = tmp.Close()
	if err != nil {
		return fmt.Errorf("close %s: %w", tmp.Name(), err)
	}

	err = os.Rename(tmp.Name(), path)
	if err != nil {
		return fmt.Errorf("rename into %s: %w", path, err)
	}

	return nil
}

// ReadFile decodes the file at path into state, which must be a pointer.
func ReadFile(path string, codec Codec, state any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}

	err = codec.Decode(bytes.NewReader(data), state)
	if err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}

	return nil
}
