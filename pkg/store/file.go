package store

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-pkgz/fileutils"
	"github.com/hashicorp/go-multierror"
	"github.com/pelletier/go-toml/v2"
)

// FileStore keeps each image as a pair of files under dir: "<id>.image" with the
// (optionally encrypted) bytes and "<id>.toml" with metadata.
type FileStore struct {
	dir   string
	crypt *Crypt // nil means store in the clear
}

// NewFileStore creates the directory if needed. Pass nil crypt to disable encryption.
func NewFileStore(dir string, crypt *Crypt) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("can't create store directory %s: %w", dir, err)
	}
	return &FileStore{dir: dir, crypt: crypt}, nil
}

// Put writes the image and its metadata, overwriting any previous record with the same id.
func (s *FileStore) Put(rec Record) error {
	data, err := s.crypt.Encrypt(rec.Bytes)
	if err != nil {
		return fmt.Errorf("can't encrypt image %s: %w", rec.ID, err)
	}
	if err = os.WriteFile(s.imagePath(rec.ID), data, 0o600); err != nil {
		return fmt.Errorf("can't write image %s: %w", rec.ID, err)
	}

	meta, err := toml.Marshal(rec)
	if err != nil {
		return fmt.Errorf("can't marshal metadata for %s: %w", rec.ID, err)
	}
	if err = os.WriteFile(s.metaPath(rec.ID), meta, 0o600); err != nil {
		return fmt.Errorf("can't write metadata for %s: %w", rec.ID, err)
	}
	log.Printf("[DEBUG] stored image %s (%s), %d bytes", rec.ID, rec.Name, rec.SizeBytes)
	return nil
}

// Get loads a record by id, decrypting the image.
func (s *FileStore) Get(id string) (Record, error) {
	meta, err := os.ReadFile(s.metaPath(id)) // nolint
	if err != nil {
		return Record{}, fmt.Errorf("record %s not found: %w", id, err)
	}
	var rec Record
	if err = toml.Unmarshal(meta, &rec); err != nil {
		return Record{}, fmt.Errorf("can't unmarshal metadata for %s: %w", id, err)
	}

	data, err := os.ReadFile(s.imagePath(id)) // nolint
	if err != nil {
		return Record{}, fmt.Errorf("can't read image %s: %w", id, err)
	}
	if rec.Bytes, err = s.crypt.Decrypt(data); err != nil {
		return Record{}, fmt.Errorf("can't decrypt image %s: %w", id, err)
	}
	return rec, nil
}

// GetAll loads every stored record. Unreadable records are skipped with a warning,
// a single bad file should not make the whole store unusable.
func (s *FileStore) GetAll() ([]Record, error) {
	ids, err := s.ids()
	if err != nil {
		return nil, err
	}
	res := make([]Record, 0, len(ids))
	for _, id := range ids {
		rec, err := s.Get(id)
		if err != nil {
			log.Printf("[WARN] skipping unreadable record %s: %v", id, err)
			continue
		}
		res = append(res, rec)
	}
	return res, nil
}

// Delete removes both the image and its metadata.
func (s *FileStore) Delete(id string) error {
	errs := new(multierror.Error)
	if err := os.Remove(s.imagePath(id)); err != nil {
		errs = multierror.Append(errs, fmt.Errorf("can't remove image %s: %w", id, err))
	}
	if err := os.Remove(s.metaPath(id)); err != nil {
		errs = multierror.Append(errs, fmt.Errorf("can't remove metadata %s: %w", id, err))
	}
	return errs.ErrorOrNil()
}

// Clear removes all stored records.
func (s *FileStore) Clear() error {
	ids, err := s.ids()
	if err != nil {
		return err
	}
	errs := new(multierror.Error)
	for _, id := range ids {
		if err := s.Delete(id); err != nil {
			errs = multierror.Append(errs, err)
		}
	}
	return errs.ErrorOrNil()
}

// EstimateUsage sums stored image sizes. Quota is unknown for a plain directory.
func (s *FileStore) EstimateUsage() (Usage, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return Usage{}, fmt.Errorf("can't read store directory: %w", err)
	}
	var used int64
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		used += info.Size()
	}
	return Usage{Used: used}, nil
}

// ExportTo copies a stored image to an arbitrary path, decrypted. Unencrypted
// images are copied directly without loading them into memory.
func (s *FileStore) ExportTo(id, path string) error {
	if s.crypt == nil {
		if err := fileutils.CopyFile(s.imagePath(id), path); err != nil {
			return fmt.Errorf("can't export image %s: %w", id, err)
		}
		return nil
	}
	rec, err := s.Get(id)
	if err != nil {
		return err
	}
	if err = os.WriteFile(path, rec.Bytes, 0o600); err != nil {
		return fmt.Errorf("can't write exported image %s: %w", id, err)
	}
	return nil
}

func (s *FileStore) imagePath(id string) string { return filepath.Join(s.dir, id+".image") }
func (s *FileStore) metaPath(id string) string  { return filepath.Join(s.dir, id+".toml") }

func (s *FileStore) ids() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("can't read store directory: %w", err)
	}
	var ids []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".toml") {
			continue
		}
		ids = append(ids, strings.TrimSuffix(e.Name(), ".toml"))
	}
	return ids, nil
}
