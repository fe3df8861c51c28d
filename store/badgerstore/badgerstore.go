// Package badgerstore keeps the store in an embedded BadgerDB.
//
// Values live under "d:{path}" so that a prefix iteration visits paths in
// key order. Push sequences live under "s:{parent}" as big-endian counters
// and are incremented in the same transaction as the pushed value.
package badgerstore

import (
	"board-lab/store"
	"board-lab/store/local"
	"encoding/binary"
	stderrors "errors"
	"log/slog"

	"github.com/dgraph-io/badger/v4"
)

const (
	dataPrefix = "d:"
	seqPrefix  = "s:"
)

// New wraps an opened database. Closing the store closes the database.
func New(log *slog.Logger, db *badger.DB) *local.Store {
	return local.New(log, &backend{db: db, log: log})
}

type backend struct {
	db  *badger.DB
	log *slog.Logger
}

func dataKey(path string) []byte {
	return []byte(dataPrefix + path)
}

func (b *backend) Get(path string) ([]byte, bool, error) {
	var value []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(dataKey(path))
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if stderrors.Is(err, badger.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

func (b *backend) Put(path string, value []byte) error {
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Set(dataKey(path), value)
	})
}

func (b *backend) Delete(path string) (bool, error) {
	existed := false
	err := b.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get(dataKey(path))
		if stderrors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		existed = true
		return txn.Delete(dataKey(path))
	})
	return existed, err
}

func (b *backend) Append(parent string, value []byte) (string, error) {
	var path string
	err := b.db.Update(func(txn *badger.Txn) error {
		seqKey := []byte(seqPrefix + parent)
		var seq uint64
		item, err := txn.Get(seqKey)
		switch {
		case stderrors.Is(err, badger.ErrKeyNotFound):
		case err != nil:
			return err
		default:
			if err = item.Value(func(v []byte) error {
				seq = binary.BigEndian.Uint64(v)
				return nil
			}); err != nil {
				return err
			}
		}
		seq++
		if err = txn.Set(seqKey, binary.BigEndian.AppendUint64(nil, seq)); err != nil {
			return err
		}
		path = parent + store.SeqKey(seq)
		return txn.Set(dataKey(path), value)
	})
	return path, err
}

func (b *backend) Scan(prefix string, fn func(path string, value []byte) error) error {
	return b.db.View(func(txn *badger.Txn) error {
		p := dataKey(prefix)
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(p); it.ValidForPrefix(p); it.Next() {
			item := it.Item()
			value, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			if err = fn(string(item.Key()[len(dataPrefix):]), value); err != nil {
				return err
			}
		}
		return nil
	})
}

func (b *backend) Close() error {
	b.log.Info("Closing BadgerDB...")
	return b.db.Close()
}

// PathOf returns the store path held by a raw database key, if the key
// holds a value.
func PathOf(key string) (string, bool) {
	if len(key) < len(dataPrefix) || key[:len(dataPrefix)] != dataPrefix {
		return "", false
	}
	return key[len(dataPrefix):], true
}

// Dump visits every stored value whose path starts with prefix, in key order.
// It reads the database directly and may run against a read-only handle.
func Dump(db *badger.DB, prefix string, fn func(path string, value []byte) error) error {
	return db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		p := dataKey(prefix)
		for it.Seek(p); it.ValidForPrefix(p); it.Next() {
			item := it.Item()
			path, _ := PathOf(string(item.Key()))
			if err := item.Value(func(v []byte) error {
				return fn(path, v)
			}); err != nil {
				return err
			}
		}
		return nil
	})
}
