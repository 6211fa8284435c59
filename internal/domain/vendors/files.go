package vendors

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

type FileSealer interface {
	Configured() bool
	Seal(plain []byte) ([]byte, error)
	Open(sealed []byte) ([]byte, error)
}

// DiskFiles keeps DPA documents under Dir. When a key is configured the
// bytes are sealed and the file gets an .enc suffix.
type DiskFiles struct {
	Dir    string
	Sealer FileSealer
}

func (d DiskFiles) Save(name string, data []byte) (string, error) {
	dir := filepath.Join(d.Dir, "dpa")
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", err
	}
	path := filepath.Join(dir, filepath.Base(name))
	if d.Sealer != nil && d.Sealer.Configured() {
		sealed, err := d.Sealer.Seal(data)
		if err != nil {
			return "", err
		}
		data = sealed
		path += ".enc"
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", err
	}
	return path, nil
}

func (d DiskFiles) Load(path string) ([]byte, error) {
	if err := d.contains(path); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if strings.HasSuffix(path, ".enc") {
		if d.Sealer == nil {
			return nil, fmt.Errorf("sealed DPA file %s but no key configured", filepath.Base(path))
		}
		return d.Sealer.Open(data)
	}
	return data, nil
}

func (d DiskFiles) Remove(path string) error {
	if err := d.contains(path); err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func (d DiskFiles) contains(path string) error {
	root, err := filepath.Abs(d.Dir)
	if err != nil {
		return err
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	if !strings.HasPrefix(abs, root+string(filepath.Separator)) {
		return fmt.Errorf("path %s is outside the upload directory", path)
	}
	return nil
}
