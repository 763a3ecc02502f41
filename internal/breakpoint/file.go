package breakpoint

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

type recordFile struct {
	Version  int      `yaml:"version"`
	Segments []Record `yaml:"segments"`
}

const fileVersion = 1

// FileStore keeps each record set in a YAML file named after the key, inside Dir.
type FileStore struct {
	Dir string
}

func NewFileStore(dir string) *FileStore {
	return &FileStore{Dir: dir}
}

func (s *FileStore) path(key string) string {
	return filepath.Join(s.Dir, key)
}

func (s *FileStore) Exists(key string) bool {
	info, err := os.Stat(s.path(key))
	return err == nil && !info.IsDir()
}

func (s *FileStore) Load(key string) (Records, error) {
	data, err := os.ReadFile(s.path(key))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("error reading breakpoint file: %w", err)
	}
	var rf recordFile
	if err := yaml.Unmarshal(data, &rf); err != nil {
		return nil, fmt.Errorf("error parsing breakpoint file: %w", err)
	}
	if rf.Version != fileVersion {
		return nil, fmt.Errorf("unsupported breakpoint file version %d", rf.Version)
	}
	return Records(rf.Segments), nil
}

// Save overwrites any previous file for key. The write goes through a temp
// file and a rename so a crash never leaves a half-written record set.
func (s *FileStore) Save(key string, records Records) error {
	if s.Dir != "" {
		if err := os.MkdirAll(s.Dir, 0755); err != nil {
			return fmt.Errorf("error creating breakpoint directory: %w", err)
		}
	}
	data, err := yaml.Marshal(recordFile{Version: fileVersion, Segments: records})
	if err != nil {
		return fmt.Errorf("error encoding breakpoint records: %w", err)
	}
	tmp := s.path(key) + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("error writing breakpoint file: %w", err)
	}
	if err := os.Rename(tmp, s.path(key)); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("error finalizing breakpoint file: %w", err)
	}
	return nil
}

func (s *FileStore) Delete(key string) error {
	err := os.Remove(s.path(key))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("error removing breakpoint file: %w", err)
	}
	return nil
}

// Keys lists the record sets present in Dir.
func (s *FileStore) Keys() ([]string, error) {
	dir := s.Dir
	if dir == "" {
		dir = "."
	}
	matches, err := filepath.Glob(filepath.Join(dir, "*"+Suffix))
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(matches))
	for _, m := range matches {
		keys = append(keys, filepath.Base(m))
	}
	return keys, nil
}
