// Package manifest stores the signal index of a trace as a msgpack sidecar
// so tools can map identifiers to paths, kinds and domains without parsing
// the trace header.
package manifest

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"fortio.org/safecast"
	"github.com/vmihailenco/msgpack/v5"
)

// Schema is the current sidecar layout version.
const Schema uint16 = 1

// ErrSchema is returned when a sidecar was written by another layout.
var ErrSchema = errors.New("manifest schema mismatch")

// Entry describes one declared signal.
type Entry struct {
	ID     string `msgpack:"id"`
	Path   string `msgpack:"path"`
	Width  uint32 `msgpack:"width"`
	Kind   string `msgpack:"kind"`
	Domain string `msgpack:"domain,omitempty"`
}

// Manifest is the sidecar payload.
type Manifest struct {
	Schema    uint16  `msgpack:"schema"`
	Timescale string  `msgpack:"timescale"`
	Entries   []Entry `msgpack:"entries"`
	err       error
}

// Add appends an entry. A width that does not fit the layout is kept as an
// error reported by Write.
func (m *Manifest) Add(id, path string, width int, kind, domain string) {
	w, err := safecast.Conv[uint32](width)
	if err != nil && m.err == nil {
		m.err = fmt.Errorf("%s: width %d: %w", path, width, err)
	}
	m.Entries = append(m.Entries, Entry{ID: id, Path: path, Width: w, Kind: kind, Domain: domain})
}

// Lookup returns the entry for an identifier.
func (m *Manifest) Lookup(id string) (Entry, bool) {
	for _, e := range m.Entries {
		if e.ID == id {
			return e, true
		}
	}
	return Entry{}, false
}

// Write encodes m to path, replacing it atomically.
func Write(path string, m *Manifest) error {
	if m.err != nil {
		return m.err
	}
	m.Schema = Schema
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	f, err := os.CreateTemp(dir, ".manifest-*")
	if err != nil {
		return err
	}
	tmp := f.Name()
	defer func() {
		// already renamed on success
		_ = os.Remove(tmp)
	}()

	if err := msgpack.NewEncoder(f).Encode(m); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// Read decodes the sidecar at path.
func Read(path string) (*Manifest, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var m Manifest
	if err := msgpack.NewDecoder(f).Decode(&m); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if m.Schema != Schema {
		return nil, fmt.Errorf("%s: %w: got %d, want %d", path, ErrSchema, m.Schema, Schema)
	}
	return &m, nil
}
