package exporter

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hazyhaar/tabxport/horosafe"
)

// DirSaver writes exported files into a directory, replacing files of the
// same name atomically.
type DirSaver struct {
	Dir string
}

// Path returns where a file named name is written.
func (d DirSaver) Path(name string) string {
	return filepath.Join(d.Dir, name)
}

// SaveFile implements tabular.FileSaver.
func (d DirSaver) SaveFile(ctx context.Context, name, _ string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := horosafe.FileName(name); err != nil {
		return fmt.Errorf("exporter: file name %q: %w", name, err)
	}
	if err := os.MkdirAll(d.Dir, 0o755); err != nil {
		return fmt.Errorf("exporter: create %s: %w", d.Dir, err)
	}

	tmp, err := os.CreateTemp(d.Dir, "."+name+".*")
	if err != nil {
		return fmt.Errorf("exporter: temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("exporter: write %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("exporter: close %s: %w", name, err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), d.Path(name))
}
