package cache

import (
	"database/sql"
	"sync"
	"time"

	_ "github.com/glebarez/go-sqlite"
)

type SQLiteCache struct {
	db         *sql.DB
	writeMutex *sync.Mutex
}

// NewSQLiteCache creates a new cache with the given filename as the db.
// If file name is empty, a new in-memory db is opened.
func NewSQLiteCache(filename string) SQLiteCache {
	if filename == "" {
		filename = "file::memory:?cache=shared"
	}
	db, err := sql.Open("sqlite", filename)
	if err != nil {
		panic(err)
	}
	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS cache (
		generation TEXT,
		key TEXT,
		stored_at INTEGER,
		bytes BLOB,
		PRIMARY KEY (generation, key)
	)`)
	if err != nil {
		panic(err)
	}
	_, err = db.Exec("PRAGMA journal_mode=WAL")
	if err != nil {
		panic(err)
	}
	return SQLiteCache{
		db:         db,
		writeMutex: &sync.Mutex{},
	}
}

func (s SQLiteCache) Get(name, key string) ([]byte, bool, error) {
	var bytes []byte
	err := s.db.QueryRow(
		"SELECT bytes FROM cache WHERE generation = ? AND key = ?",
		name, key,
	).Scan(&bytes)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return bytes, true, nil
}

func (s SQLiteCache) Put(name, key string, bytes []byte) error {
	s.writeMutex.Lock()
	defer s.writeMutex.Unlock()
	_, err := s.db.Exec(`INSERT OR REPLACE INTO cache
		(generation, key, stored_at, bytes) VALUES (?, ?, ?, ?)`,
		name, key, time.Now().Unix(), bytes)
	return err
}

func (s SQLiteCache) Has(name, key string) bool {
	var one int
	err := s.db.QueryRow(
		"SELECT 1 FROM cache WHERE generation = ? AND key = ?",
		name, key,
	).Scan(&one)
	return err == nil
}

func (s SQLiteCache) Keys(name string, cb func(string)) {
	rows, err := s.db.Query("SELECT key FROM cache WHERE generation = ? ORDER BY key", name)
	if err != nil {
		return
	}
	defer rows.Close()

	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return
		}
		cb(key)
	}
}

func (s SQLiteCache) Names() ([]string, error) {
	names := make([]string, 0)
	rows, err := s.db.Query("SELECT DISTINCT generation FROM cache ORDER BY generation")
	if err != nil {
		return names, err
	}
	defer rows.Close()

	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return names, err
		}
		names = append(names, name)
	}
	return names, nil
}

func (s SQLiteCache) Delete(name string) error {
	s.writeMutex.Lock()
	defer s.writeMutex.Unlock()
	_, err := s.db.Exec("DELETE FROM cache WHERE generation = ?", name)
	return err
}
