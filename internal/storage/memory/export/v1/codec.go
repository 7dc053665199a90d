package v1

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// Encode writes e as JSON, gzip-compressed when compress is set.
func Encode(w io.Writer, e *Export, compress bool) error {
	if !compress {
		return json.NewEncoder(w).Encode(e)
	}
	gz := gzip.NewWriter(w)
	if err := json.NewEncoder(gz).Encode(e); err != nil {
		gz.Close()
		return err
	}
	return gz.Close()
}

// Decode reads an export, plain or gzip-compressed. Files that wrap the
// simulation in a manager object ({"simulation": {...}}) are unwrapped.
func Decode(r io.Reader) (*Export, error) {
	br := bufio.NewReader(r)
	if magic, err := br.Peek(2); err == nil && magic[0] == 0x1f && magic[1] == 0x8b {
		gz, err := gzip.NewReader(br)
		if err != nil {
			return nil, fmt.Errorf("failed to open gzip stream: %w", err)
		}
		defer gz.Close()
		r = gz
	} else {
		r = br
	}

	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read export: %w", err)
	}

	var wrapper struct {
		Simulation json.RawMessage `json:"simulation"`
	}
	if err := json.Unmarshal(raw, &wrapper); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidExport, err)
	}
	if len(wrapper.Simulation) > 0 && !bytes.Equal(wrapper.Simulation, []byte("null")) {
		raw = wrapper.Simulation
	}

	var e Export
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidExport, err)
	}
	return &e, nil
}

// WriteFile writes e to path.
func WriteFile(path string, e *Export, compress bool) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	if err := Encode(f, e, compress); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// ReadFile decodes the export at path.
func ReadFile(path string) (*Export, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open export: %w", err)
	}
	defer f.Close()
	return Decode(f)
}
