package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"
)

// Registered database/sql driver names.
const (
	// DriverModernc is the pure-Go modernc.org/sqlite driver.
	DriverModernc = "sqlite"

	// DriverMattn is the cgo github.com/mattn/go-sqlite3 driver.
	DriverMattn = "sqlite3"
)

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

type Pool struct {
	db *sql.DB
	mu sync.RWMutex
}

type PoolConfig struct {
	Driver      string
	MaxOpen     int
	MaxIdle     int
	MaxLifetime time.Duration
	BusyTimeout time.Duration
	EnableWAL   bool
	ForeignKeys bool
	CacheSize   int
}

func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		Driver:      DriverModernc,
		MaxOpen:     10,
		MaxIdle:     5,
		MaxLifetime: time.Hour,
		BusyTimeout: 30 * time.Second,
		EnableWAL:   true,
		ForeignKeys: true,
		CacheSize:   -2000,
	}
}

// Open opens a pool on the sqlite file at path, or a private in-memory database
// when path is MemoryPath. An in-memory database lives on a single connection
// that is never recycled, so the pool is pinned to one connection.
func Open(path string, config PoolConfig) (*Pool, error) {
	if config.Driver == "" {
		config.Driver = DriverModernc
	}
	if config.Driver != DriverModernc && config.Driver != DriverMattn {
		return nil, fmt.Errorf("unsupported sqlite driver %q", config.Driver)
	}

	inMemory := path == MemoryPath
	if inMemory {
		config.MaxOpen = 1
		config.MaxIdle = 1
		config.MaxLifetime = 0
		config.EnableWAL = false
	} else if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create dir: %w", err)
	}

	db, err := sql.Open(config.Driver, buildDSN(path, config))
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}

	db.SetMaxOpenConns(config.MaxOpen)
	db.SetMaxIdleConns(config.MaxIdle)
	db.SetConnMaxLifetime(config.MaxLifetime)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}

	return &Pool{db: db}, nil
}

// buildDSN renders connection pragmas in the syntax of the configured driver.
func buildDSN(path string, config PoolConfig) string {
	busy := int(config.BusyTimeout.Milliseconds())
	journal := "DELETE"
	if config.EnableWAL {
		journal = "WAL"
	}

	if config.Driver == DriverMattn {
		return fmt.Sprintf("file:%s?_busy_timeout=%d&_journal_mode=%s&_foreign_keys=%d&cache_size=%d",
			path, busy, journal, boolToInt(config.ForeignKeys), config.CacheSize)
	}

	return fmt.Sprintf("file:%s?_pragma=busy_timeout(%d)&_pragma=journal_mode(%s)&_pragma=foreign_keys(%d)&_pragma=cache_size(%d)",
		path, busy, journal, boolToInt(config.ForeignKeys), config.CacheSize)
}

func (p *Pool) DB() *sql.DB {
	return p.db
}

func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.db == nil {
		return nil
	}

	err := p.db.Close()
	p.db = nil
	return err
}

func (p *Pool) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return p.db.ExecContext(ctx, query, args...)
}

func (p *Pool) Query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return p.db.QueryContext(ctx, query, args...)
}

func (p *Pool) Transaction(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}

	return tx.Commit()
}

func (p *Pool) Version() (int, error) {
	var version int
	err := p.db.QueryRow("PRAGMA user_version").Scan(&version)
	return version, err
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
