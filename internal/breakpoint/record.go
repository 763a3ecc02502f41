// Package breakpoint persists per-segment resume state so an interrupted
// download can pick up where it stopped.
package breakpoint

import "errors"

// Suffix is appended to the destination file name to form a store key.
const Suffix = ".rdl"

var ErrNotFound = errors.New("breakpoint: record not found")

// Record is the resume state of one segment. End is exclusive and Ready
// counts bytes already written from Start. The zero value is the empty record.
type Record struct {
	URL   string `yaml:"url,omitempty"`
	Start int64  `yaml:"start,omitempty"`
	End   int64  `yaml:"end,omitempty"`
	Ready int64  `yaml:"ready,omitempty"`
}

func (r Record) IsEmpty() bool {
	return r == Record{}
}

// Records is ordered by segment index and may contain empty entries.
type Records []Record

// Store reads and writes record sets by key.
type Store interface {
	Exists(key string) bool
	Load(key string) (Records, error)
	Save(key string, records Records) error
	Delete(key string) error
}

func Key(fileName string) string {
	return fileName + Suffix
}
