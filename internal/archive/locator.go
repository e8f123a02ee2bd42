// Package archive resolves vehicle identifiers to their telemetry tables
// inside a zip dump, regardless of how the dump nests its folders.
package archive

import (
	"archive/zip"
	"fmt"
	"io"
	"path"
	"strings"
)

// Archive is a read-only index of a telemetry zip keyed by entry base name.
type Archive struct {
	closer io.Closer
	index  map[string]*zip.File
}

// Open opens the zip at filename and indexes its entries.
func Open(filename string) (*Archive, error) {
	rc, err := zip.OpenReader(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive: %w", err)
	}

	a := newArchive(&rc.Reader)
	a.closer = rc
	return a, nil
}

// NewReader indexes a zip held in r.
func NewReader(r io.ReaderAt, size int64) (*Archive, error) {
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return nil, fmt.Errorf("failed to read archive: %w", err)
	}
	return newArchive(zr), nil
}

func newArchive(zr *zip.Reader) *Archive {
	index := make(map[string]*zip.File, len(zr.File))
	for _, f := range zr.File {
		if f.FileInfo().IsDir() || strings.HasSuffix(f.Name, "/") {
			continue
		}
		base := path.Base(f.Name)
		// first entry in archive order wins
		if _, exists := index[base]; !exists {
			index[base] = f
		}
	}
	return &Archive{index: index}
}

// FileName returns the entry base name holding a vehicle's telemetry.
func FileName(vehicleID string) string {
	return vehicleID + ".csv"
}

// Locate returns the decompressed telemetry table for vehicleID. Matching is
// case-sensitive on the entry base name. found is false when no entry
// matches; that is not an error.
func (a *Archive) Locate(vehicleID string) (data []byte, found bool, err error) {
	f, ok := a.index[FileName(vehicleID)]
	if !ok {
		return nil, false, nil
	}

	rc, err := f.Open()
	if err != nil {
		return nil, true, fmt.Errorf("failed to open %s: %w", f.Name, err)
	}
	defer rc.Close()

	data, err = io.ReadAll(rc)
	if err != nil {
		return nil, true, fmt.Errorf("failed to read %s: %w", f.Name, err)
	}
	return data, true, nil
}

// Len returns the number of indexed entries.
func (a *Archive) Len() int {
	return len(a.index)
}

// Close releases the underlying file, if any.
func (a *Archive) Close() error {
	if a.closer == nil {
		return nil
	}
	return a.closer.Close()
}
