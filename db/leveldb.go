// Package db provides the key-value store that caches compiler output.
package db

import (
	"errors"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/storage"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// DB defines the interface for database operations
type DB interface {
	Put(key, value []byte) error
	Get(key []byte) ([]byte, error)
	Delete(key []byte) error
	Keys(prefix []byte) ([][]byte, error)
	Close() error
}

// LevelDB wraps a LevelDB instance
type LevelDB struct {
	db *leveldb.DB
}

// NewLevelDB opens or creates an on-disk database at path
func NewLevelDB(path string) (*LevelDB, error) {
	db, err := leveldb.OpenFile(path, &opt.Options{ErrorIfMissing: false})
	if err != nil {
		return nil, err
	}
	return &LevelDB{db: db}, nil
}

// NewMemoryDB creates a database that lives only as long as the process
func NewMemoryDB() (*LevelDB, error) {
	db, err := leveldb.Open(storage.NewMemStorage(), nil)
	if err != nil {
		return nil, err
	}
	return &LevelDB{db: db}, nil
}

// Open returns an on-disk database when path is set, a memory one otherwise
func Open(path string) (DB, error) {
	var (
		db  *LevelDB
		err error
	)
	if path == "" {
		db, err = NewMemoryDB()
	} else {
		db, err = NewLevelDB(path)
	}
	if err != nil {
		return nil, err
	}
	return db, nil
}

// Put stores a key-value pair in the database
func (l *LevelDB) Put(key, value []byte) error {
	return l.db.Put(key, value, nil)
}

// Get retrieves a value by key. A missing key yields nil without error.
func (l *LevelDB) Get(key []byte) ([]byte, error) {
	data, err := l.db.Get(key, nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, nil
	}
	return data, err
}

// Delete removes key
func (l *LevelDB) Delete(key []byte) error {
	return l.db.Delete(key, nil)
}

// Keys lists every key starting with prefix, in order
func (l *LevelDB) Keys(prefix []byte) ([][]byte, error) {
	iter := l.db.NewIterator(util.BytesPrefix(prefix), nil)
	defer iter.Release()

	var keys [][]byte
	for iter.Next() {
		key := make([]byte, len(iter.Key()))
		copy(key, iter.Key())
		keys = append(keys, key)
	}
	return keys, iter.Error()
}

// Close shuts down the database connection
func (l *LevelDB) Close() error {
	return l.db.Close()
}
