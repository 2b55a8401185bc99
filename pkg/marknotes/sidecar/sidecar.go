// Package sidecar stores mutable per-item attributes in a JSON file next to
// the item: "<path>.meta.json".
package sidecar

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/oklog/ulid/v2"
)

// Suffix is appended to an item's filesystem path to name its sidecar.
const Suffix = ".meta.json"

// Known keys.
const (
	KeyColor    = "color"
	KeyFavorite = "favorite"
)

// Metadata is the typed view of a sidecar.
type Metadata struct {
	Color    string `json:"color,omitempty"`
	Favorite bool   `json:"favorite,omitempty"`
}

// Patch is merged into the stored attributes. A nil value removes the key.
type Patch map[string]any

// Path returns the sidecar path for an item.
func Path(fsPath string) string {
	return fsPath + Suffix
}

// IsSidecar reports whether a directory entry name is a sidecar file.
func IsSidecar(name string) bool {
	return strings.HasSuffix(name, Suffix)
}

// Get returns the metadata stored for fsPath. Missing or unreadable sidecars
// yield the zero Metadata.
func Get(fsPath string) Metadata {
	var md Metadata
	raw, err := read(fsPath)
	if err != nil {
		return md
	}
	if v, ok := raw[KeyColor].(string); ok {
		md.Color = v
	}
	if v, ok := raw[KeyFavorite].(bool); ok {
		md.Favorite = v
	}
	return md
}

// Set merges patch into the sidecar for fsPath and writes it back as
// indented JSON. The sidecar is removed once no keys remain.
func Set(fsPath string, patch Patch) error {
	raw, err := read(fsPath)
	if err != nil {
		// Corrupt sidecars are replaced rather than blocking updates.
		raw = map[string]any{}
	}
	for k, v := range patch {
		if v == nil {
			delete(raw, k)
			continue
		}
		raw[k] = v
	}

	target := Path(fsPath)
	if len(raw) == 0 {
		if err := os.Remove(target); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
		return nil
	}

	data, err := json.MarshalIndent(raw, "", "  ")
	if err != nil {
		return fmt.Errorf("sidecar: encode: %w", err)
	}
	return writeAtomic(target, append(data, '\n'))
}

// Move relocates the sidecar of from to belong to to. A missing sidecar is
// not an error.
func Move(from, to string) error {
	err := os.Rename(Path(from), Path(to))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// Remove deletes the sidecar of fsPath if present.
func Remove(fsPath string) error {
	err := os.Remove(Path(fsPath))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

func read(fsPath string) (map[string]any, error) {
	data, err := os.ReadFile(Path(fsPath))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return map[string]any{}, nil
		}
		return nil, err
	}
	raw := map[string]any{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	if raw == nil {
		raw = map[string]any{}
	}
	return raw, nil
}

func writeAtomic(target string, data []byte) error {
	dir := filepath.Dir(target)
	tmp := filepath.Join(dir, "."+filepath.Base(target)+".tmp-"+ulid.Make().String())
	if err := os.WriteFile(tmp, data, 0o644); err != nil { //nolint:gosec // sidecars are not secret
		return err
	}
	if err := os.Rename(tmp, target); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}
