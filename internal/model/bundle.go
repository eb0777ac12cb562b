package model

import (
	"archive/zip"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gonum.org/v1/gonum/mat"
)

// Entry names inside a bundle.
const (
	manifestEntry = "manifest.json"
	backboneEntry = "backbone.onnx"
	w1Entry       = "head/w1"
	b1Entry       = "head/b1"
	w2Entry       = "head/w2"
	b2Entry       = "head/b2"
)

// Bundle is the single-file model artifact: manifest, frozen backbone and
// trained head weights.
type Bundle struct {
	Metadata Metadata
	Backbone []byte
	Head     *Head
}

// WriteBundle encodes b as a zip archive.
func WriteBundle(w io.Writer, b *Bundle) error {
	if b.Head == nil {
		return errors.New("bundle has no head")
	}
	meta := b.Metadata
	if meta.Format == "" {
		meta.Format = FormatV1
	}

	zw := zip.NewWriter(w)
	manifest, err := zw.Create(manifestEntry)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(manifest)
	enc.SetIndent("", "  ")
	if err := enc.Encode(meta); err != nil {
		return fmt.Errorf("failed to encode manifest: %w", err)
	}

	backbone, err := zw.CreateHeader(&zip.FileHeader{Name: backboneEntry, Method: zip.Store})
	if err != nil {
		return err
	}
	if _, err := backbone.Write(b.Backbone); err != nil {
		return err
	}

	params := []struct {
		name string
		m    interface {
			MarshalBinaryTo(io.Writer) (int, error)
		}
	}{
		{w1Entry, b.Head.W1}, {b1Entry, b.Head.B1}, {w2Entry, b.Head.W2}, {b2Entry, b.Head.B2},
	}
	for _, p := range params {
		fw, err := zw.Create(p.name)
		if err != nil {
			return err
		}
		if _, err := p.m.MarshalBinaryTo(fw); err != nil {
			return fmt.Errorf("failed to encode %s: %w", p.name, err)
		}
	}
	return zw.Close()
}

// ReadBundle decodes a zip archive written by WriteBundle.
func ReadBundle(r io.ReaderAt, size int64) (*Bundle, error) {
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return nil, fmt.Errorf("not a model bundle: %w", err)
	}

	b := &Bundle{Head: &Head{W1: &mat.Dense{}, B1: &mat.VecDense{}, W2: &mat.Dense{}, B2: &mat.VecDense{}}}
	readers := map[string]func(io.Reader) error{
		manifestEntry: func(r io.Reader) error { return json.NewDecoder(r).Decode(&b.Metadata) },
		backboneEntry: func(r io.Reader) (err error) { b.Backbone, err = io.ReadAll(r); return err },
		w1Entry:       func(r io.Reader) error { _, err := b.Head.W1.UnmarshalBinaryFrom(r); return err },
		b1Entry:       func(r io.Reader) error { _, err := b.Head.B1.UnmarshalBinaryFrom(r); return err },
		w2Entry:       func(r io.Reader) error { _, err := b.Head.W2.UnmarshalBinaryFrom(r); return err },
		b2Entry:       func(r io.Reader) error { _, err := b.Head.B2.UnmarshalBinaryFrom(r); return err },
	}

	for _, f := range zr.File {
		read, ok := readers[f.Name]
		if !ok {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, err
		}
		err = read(rc)
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", f.Name, err)
		}
		delete(readers, f.Name)
	}
	for _, name := range []string{manifestEntry, backboneEntry, w1Entry, b1Entry, w2Entry, b2Entry} {
		if _, missing := readers[name]; missing {
			return nil, fmt.Errorf("bundle is missing %s", name)
		}
	}

	if b.Metadata.Format != FormatV1 {
		return nil, fmt.Errorf("unsupported bundle format %q", b.Metadata.Format)
	}
	if err := b.Head.validate(); err != nil {
		return nil, fmt.Errorf("invalid head: %w", err)
	}
	return b, nil
}

// SaveBundle writes b to path through a temporary file in the same
// directory, so readers never observe a partial artifact.
func SaveBundle(path string, b *Bundle) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if err := WriteBundle(tmp, b); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// OpenBundle reads the bundle stored at path.
func OpenBundle(path string) (*Bundle, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open model: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	b, err := ReadBundle(f, info.Size())
	if err != nil {
		return nil, fmt.Errorf("failed to load model %s: %w", path, err)
	}
	return b, nil
}
