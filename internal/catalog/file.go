package catalog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// FileSource reads the catalog Document from a YAML file.
type FileSource struct {
	Path string
}

func (f FileSource) LoadDocument(_ context.Context) (Document, error) {
	return LoadFile(f.Path)
}

func LoadFile(path string) (Document, error) {
	fh, err := os.Open(path)
	if err != nil {
		return Document{}, fmt.Errorf("open catalog file %s: %w", path, err)
	}
	defer fh.Close()

	doc, err := Decode(fh)
	if err != nil {
		return Document{}, fmt.Errorf("decode catalog file %s: %w", path, err)
	}
	return doc, nil
}

// Decode reads a YAML document. Unknown top-level or entry fields are an
// error; action payloads are checked later, per kind, by Load.
func Decode(r io.Reader) (Document, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var doc Document
	if err := dec.Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
		return Document{}, err
	}
	return doc, nil
}
