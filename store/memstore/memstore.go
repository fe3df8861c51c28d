// Package memstore is the in-process contract.Store used by tests and by a
// single node deployment that does not need durability.
package memstore

import (
	"board-lab/store"
	"board-lab/store/local"
	"log/slog"
	"maps"
	"slices"
	"strings"
)

func New(log *slog.Logger) *local.Store {
	return local.New(log, &backend{
		values: make(map[string][]byte),
		seqs:   make(map[string]uint64),
	})
}

type backend struct {
	values map[string][]byte
	seqs   map[string]uint64
}

func (b *backend) Get(path string) ([]byte, bool, error) {
	v, ok := b.values[path]
	return slices.Clone(v), ok, nil
}

func (b *backend) Put(path string, value []byte) error {
	b.values[path] = slices.Clone(value)
	return nil
}

func (b *backend) Delete(path string) (bool, error) {
	_, ok := b.values[path]
	delete(b.values, path)
	return ok, nil
}

func (b *backend) Append(parent string, value []byte) (string, error) {
	b.seqs[parent]++
	path := parent + store.SeqKey(b.seqs[parent])
	b.values[path] = slices.Clone(value)
	return path, nil
}

func (b *backend) Scan(prefix string, fn func(path string, value []byte) error) error {
	keys := slices.Sorted(maps.Keys(b.values))
	for _, k := range keys {
		if !strings.HasPrefix(k, prefix) {
			continue
		}
		if err := fn(k, slices.Clone(b.values[k])); err != nil {
			return err
		}
	}
	return nil
}

func (b *backend) Close() error {
	return nil
}
