package cache

import (
	"sort"
	"strings"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// nameSeparator joins the generation name and the entry key into one
// database key. Neither side may contain a NUL byte.
const nameSeparator = "\x00"

// LevelDBCache is a disk-backed cache provider.
type LevelDBCache struct {
	db *leveldb.DB
}

// NewLevelDBCache opens (or creates) a LevelDB store at the given path.
func NewLevelDBCache(path string) (*LevelDBCache, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, err
	}
	return &LevelDBCache{db: db}, nil
}

func entryKey(name, key string) []byte {
	return []byte(name + nameSeparator + key)
}

func (l *LevelDBCache) Get(name, key string) ([]byte, bool, error) {
	bytes, err := l.db.Get(entryKey(name, key), nil)
	if err == leveldb.ErrNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return bytes, true, nil
}

func (l *LevelDBCache) Put(name, key string, bytes []byte) error {
	return l.db.Put(entryKey(name, key), bytes, nil)
}

func (l *LevelDBCache) Has(name, key string) bool {
	ok, err := l.db.Has(entryKey(name, key), nil)
	return err == nil && ok
}

func (l *LevelDBCache) Keys(name string, cb func(string)) {
	prefix := name + nameSeparator
	iter := l.db.NewIterator(util.BytesPrefix([]byte(prefix)), nil)
	defer iter.Release()
	for iter.Next() {
		cb(strings.TrimPrefix(string(iter.Key()), prefix))
	}
}

func (l *LevelDBCache) Names() ([]string, error) {
	seen := make(map[string]bool)
	iter := l.db.NewIterator(nil, nil)
	defer iter.Release()
	for iter.Next() {
		if name, _, found := strings.Cut(string(iter.Key()), nameSeparator); found {
			seen[name] = true
		}
	}
	if err := iter.Error(); err != nil {
		return nil, err
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (l *LevelDBCache) Delete(name string) error {
	iter := l.db.NewIterator(util.BytesPrefix([]byte(name+nameSeparator)), nil)
	defer iter.Release()
	batch := new(leveldb.Batch)
	for iter.Next() {
		batch.Delete(append([]byte{}, iter.Key()...))
	}
	if err := iter.Error(); err != nil {
		return err
	}
	return l.db.Write(batch, nil)
}

// Close releases the underlying database handle.
func (l *LevelDBCache) Close() error {
	return l.db.Close()
}
