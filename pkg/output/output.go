// Package output writes harvested items as a JSON document.
package output

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/Sternrassler/graph-harvester/pkg/record"
)

// Encode writes items as an indented JSON array. Object keys are sorted and
// non-ASCII text is written as-is.
func Encode(w io.Writer, items []record.Item) error {
	if items == nil {
		items = []record.Item{}
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "    ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(items); err != nil {
		return fmt.Errorf("encode items: %w", err)
	}
	return nil
}

// Marshal returns the encoded document.
func Marshal(items []record.Item) ([]byte, error) {
	var buf bytes.Buffer
	if err := Encode(&buf, items); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteFile replaces path with the encoded items. The file is written to a
// temporary sibling first, so path is either untouched or complete.
func WriteFile(path string, items []record.Item) error {
	data, err := Marshal(items)
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close %s: %w", tmpName, err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("chmod %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename to %s: %w", path, err)
	}
	return nil
}
