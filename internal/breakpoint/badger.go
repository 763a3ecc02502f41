package breakpoint

import (
	"errors"
	"fmt"

	badger "github.com/dgraph-io/badger/v4"
	"gopkg.in/yaml.v3"
)

const badgerKeyPrefix = "breakpoint:"

// BadgerStore keeps record sets in a BadgerDB directory, one value per key.
// It suits long-lived hosts that resume many destinations from one place.
type BadgerStore struct {
	db *badger.DB
}

func OpenBadgerStore(dir string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("error opening breakpoint database: %w", err)
	}
	return &BadgerStore{db: db}, nil
}

func badgerKey(key string) []byte {
	return []byte(badgerKeyPrefix + key)
}

func (s *BadgerStore) Exists(key string) bool {
	err := s.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(badgerKey(key))
		return err
	})
	return err == nil
}

func (s *BadgerStore) Load(key string) (Records, error) {
	var rf recordFile
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(badgerKey(key))
		if err == badger.ErrKeyNotFound {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return yaml.Unmarshal(val, &rf)
		})
	})
	if errors.Is(err, ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("error loading breakpoint records: %w", err)
	}
	if rf.Version != fileVersion {
		return nil, fmt.Errorf("unsupported breakpoint record version %d", rf.Version)
	}
	return Records(rf.Segments), nil
}

func (s *BadgerStore) Save(key string, records Records) error {
	data, err := yaml.Marshal(recordFile{Version: fileVersion, Segments: records})
	if err != nil {
		return fmt.Errorf("error encoding breakpoint records: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(badgerKey(key), data)
	})
}

func (s *BadgerStore) Delete(key string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(badgerKey(key))
	})
}

// Keys lists every stored key without the internal prefix.
func (s *BadgerStore) Keys() ([]string, error) {
	var keys []string
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(badgerKeyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			keys = append(keys, string(it.Item().Key()[len(badgerKeyPrefix):]))
		}
		return nil
	})
	return keys, err
}

func (s *BadgerStore) Close() error {
	return s.db.Close()
}
