// Package cache stores compiled programs in SQLite, keyed by a hash of the
// source text and everything else that influences compilation.
package cache

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/zeebo/xxh3"
	_ "modernc.org/sqlite"

	"github.com/xirelogy/go-laye/internal/bytecode"
	"github.com/xirelogy/go-laye/internal/compiler"
	"github.com/xirelogy/go-laye/internal/diag"
)

// ErrMiss indicates no usable program is stored under the key.
var ErrMiss = errors.New("cache miss")

// Entry is one cached compile: the program and the non-fatal diagnostics
// its compile reported.
type Entry struct {
	Program     *bytecode.Program
	Diagnostics []diag.Diagnostic
}

const schema = `CREATE TABLE IF NOT EXISTS programs (
	key TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	version INTEGER NOT NULL,
	data BLOB NOT NULL,
	diagnostics BLOB,
	created_at INTEGER NOT NULL
)`

// Cache is a compiled-program table in a SQLite database.
type Cache struct {
	db   *sql.DB
	path string
	mu   sync.Mutex
}

// Open opens or creates the cache database at path. The special path
// ":memory:" keeps everything in process.
func Open(path string) (*Cache, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("creating cache dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// a single connection keeps ":memory:" databases coherent
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}
	if err := ensureSchema(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Cache{db: db, path: path}, nil
}

// ensureSchema creates the programs table. A table from an older layout is
// dropped, since every row in it can be recompiled.
func ensureSchema(db *sql.DB) error {
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("creating table: %w", err)
	}
	if _, err := db.Exec("SELECT diagnostics FROM programs LIMIT 0"); err == nil {
		return nil
	}
	if _, err := db.Exec("DROP TABLE programs"); err != nil {
		return fmt.Errorf("dropping old table: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("creating table: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (c *Cache) Close() error {
	if c == nil || c.db == nil {
		return nil
	}
	return c.db.Close()
}

// Path reports the database location.
func (c *Cache) Path() string { return c.path }

// Key derives the cache key for compiling source under opts. Native arities
// are included because they decide which calls compile.
func Key(source string, opts compiler.Options) string {
	h := xxh3.New()
	write := func(parts ...string) {
		for _, p := range parts {
			h.Write([]byte(p))
			h.Write([]byte{0})
		}
	}
	write("v"+strconv.Itoa(bytecode.FormatVersion), opts.Name, opts.Source,
		opts.Duplicate.String(), opts.Unresolved.String())
	for _, name := range opts.Predeclared {
		arity := "-"
		if info, ok := bytecode.LookupNativeInfo(name); ok {
			arity = strconv.Itoa(info.Arity)
		}
		write(name, arity)
	}
	write("source", source)
	sum := h.Sum128()
	return fmt.Sprintf("%016x%016x", sum.Hi, sum.Lo)
}

// Store saves e under key, replacing any previous entry.
func (c *Cache) Store(key string, e Entry) error {
	if e.Program == nil {
		return errors.New("storing entry without a program")
	}
	data, err := bytecode.MarshalProgram(e.Program)
	if err != nil {
		return fmt.Errorf("encoding program: %w", err)
	}
	var diags []byte
	if len(e.Diagnostics) > 0 {
		if diags, err = cbor.Marshal(e.Diagnostics); err != nil {
			return fmt.Errorf("encoding diagnostics: %w", err)
		}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err = c.db.Exec(
		"INSERT OR REPLACE INTO programs (key, name, version, data, diagnostics, created_at) VALUES (?, ?, ?, ?, ?, ?)",
		key, e.Program.Name, bytecode.FormatVersion, data, diags, time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("saving program: %w", err)
	}
	return nil
}

// Lookup loads the entry stored under key. Entries written by another
// format version, or that fail to decode, are dropped and reported as ErrMiss.
func (c *Cache) Lookup(key string) (Entry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var version int
	var data, diags []byte
	err := c.db.QueryRow("SELECT version, data, diagnostics FROM programs WHERE key = ?", key).Scan(&version, &data, &diags)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Entry{}, ErrMiss
		}
		return Entry{}, fmt.Errorf("querying program: %w", err)
	}
	if version == bytecode.FormatVersion {
		if e, err := decodeEntry(data, diags); err == nil {
			return e, nil
		}
	}
	if _, err := c.db.Exec("DELETE FROM programs WHERE key = ?", key); err != nil {
		return Entry{}, fmt.Errorf("evicting stale program: %w", err)
	}
	return Entry{}, ErrMiss
}

func decodeEntry(data, diags []byte) (Entry, error) {
	prog, err := bytecode.UnmarshalProgram(data)
	if err != nil {
		return Entry{}, err
	}
	e := Entry{Program: prog}
	if len(diags) > 0 {
		if err := cbor.Unmarshal(diags, &e.Diagnostics); err != nil {
			return Entry{}, err
		}
	}
	return e, nil
}

// Len reports the number of stored programs.
func (c *Cache) Len() (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var n int
	if err := c.db.QueryRow("SELECT COUNT(*) FROM programs").Scan(&n); err != nil {
		return 0, fmt.Errorf("counting programs: %w", err)
	}
	return n, nil
}
