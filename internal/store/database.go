// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package store is the database layer of TextPress. It opens the engine,
// applies the schema, and provides the session, mapper and query managers
// built on top of GORM.
package store

import (
	"database/sql"
	"embed"
	"fmt"
	"net/url"
	"strings"
	"time"

	mysqldrv "github.com/go-sql-driver/mysql"
	"github.com/pressly/goose/v3"
	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	_ "modernc.org/sqlite" // SQLite driver for database/sql
)

// Supported database drivers.
const (
	DriverSQLite = "sqlite"
	DriverMySQL  = "mysql"
)

//go:embed migrations/sqlite/*.sql migrations/mysql/*.sql
var migrations embed.FS

// DBConfig holds connection pool options.
type DBConfig struct {
	// MaxOpenConns is the maximum number of open connections to the database.
	MaxOpenConns int
	// MaxIdleConns is the maximum number of connections in the idle connection pool.
	MaxIdleConns int
	// ConnMaxLifetime is the maximum amount of time a connection may be reused.
	ConnMaxLifetime time.Duration
	// ConnMaxIdleTime is the maximum amount of time a connection may be idle.
	ConnMaxIdleTime time.Duration
}

// DefaultDBConfig returns sensible defaults.
func DefaultDBConfig() DBConfig {
	return DBConfig{
		MaxOpenConns:    25,
		MaxIdleConns:    10,
		ConnMaxLifetime: 30 * time.Minute,
		ConnMaxIdleTime: 5 * time.Minute,
	}
}

// Engine is an open database: the raw connection pool and the GORM handle
// mapped models are queried through.
type Engine struct {
	driver string
	sqlDB  *sql.DB
	gormDB *gorm.DB
}

// Option configures Open.
type Option func(*openOptions)

type openOptions struct {
	pool   DBConfig
	logger gormlogger.Interface
}

// WithPool overrides the connection pool configuration.
func WithPool(cfg DBConfig) Option {
	return func(o *openOptions) { o.pool = cfg }
}

// WithLogger sets the GORM logger used for statements.
func WithLogger(l gormlogger.Interface) Option {
	return func(o *openOptions) { o.logger = l }
}

// Open opens the database identified by driver and dsn. For SQLite the dsn
// is a file path, for MySQL a go-sql-driver DSN.
func Open(driver, dsn string, opts ...Option) (*Engine, error) {
	o := openOptions{
		pool:   DefaultDBConfig(),
		logger: gormlogger.Discard,
	}
	for _, opt := range opts {
		opt(&o)
	}

	var (
		sqlDB     *sql.DB
		dialector gorm.Dialector
		err       error
	)
	switch driver {
	case DriverSQLite:
		sqlDB, err = openSQLite(dsn)
		if err != nil {
			return nil, err
		}
		dialector = sqlite.New(sqlite.Config{DriverName: "sqlite", Conn: sqlDB})
	case DriverMySQL:
		sqlDB, err = openMySQL(dsn)
		if err != nil {
			return nil, err
		}
		dialector = mysql.New(mysql.Config{Conn: sqlDB})
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	sqlDB.SetMaxOpenConns(o.pool.MaxOpenConns)
	sqlDB.SetMaxIdleConns(o.pool.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(o.pool.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(o.pool.ConnMaxIdleTime)

	gormDB, err := gorm.Open(dialector, &gorm.Config{
		Logger:                 o.logger,
		SkipDefaultTransaction: true,
		NowFunc:                func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("opening orm: %w", err)
	}

	return &Engine{driver: driver, sqlDB: sqlDB, gormDB: gormDB}, nil
}

// openSQLite opens a SQLite database and configures it for a web workload.
// Per-connection pragmas travel in the DSN so every pooled connection gets them.
func openSQLite(path string) (*sql.DB, error) {
	params := url.Values{}
	for _, p := range []string{
		"busy_timeout(5000)",
		"foreign_keys(1)",
		"synchronous(NORMAL)",
		"temp_store(MEMORY)",
	} {
		params.Add("_pragma", p)
	}
	dsn := path
	if strings.Contains(dsn, "?") {
		dsn += "&" + params.Encode()
	} else {
		dsn += "?" + params.Encode()
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",        // Write-Ahead Logging for better concurrency
		"PRAGMA cache_size=-64000",       // 64MB cache
		"PRAGMA wal_autocheckpoint=1000", // Auto checkpoint every 1000 pages
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("setting pragma %q: %w", pragma, err)
		}
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	return db, nil
}

// openMySQL opens a MySQL database. Time columns must come back as time.Time,
// so parseTime is forced on.
func openMySQL(dsn string) (*sql.DB, error) {
	cfg, err := mysqldrv.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("parsing mysql dsn: %w", err)
	}
	cfg.ParseTime = true
	cfg.Loc = time.UTC
	if cfg.Params == nil {
		cfg.Params = map[string]string{}
	}
	if _, ok := cfg.Params["charset"]; !ok {
		cfg.Params["charset"] = "utf8mb4"
	}

	connector, err := mysqldrv.NewConnector(cfg)
	if err != nil {
		return nil, fmt.Errorf("creating mysql connector: %w", err)
	}
	db := sql.OpenDB(connector)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	return db, nil
}

// Driver returns the driver name the engine was opened with.
func (e *Engine) Driver() string {
	return e.driver
}

// SQL returns the underlying connection pool.
func (e *Engine) SQL() *sql.DB {
	return e.sqlDB
}

// ORM returns the root GORM handle. Code that takes part in a unit of work
// should use Session.DB instead.
func (e *Engine) ORM() *gorm.DB {
	return e.gormDB
}

// Close closes the connection pool.
func (e *Engine) Close() error {
	return e.sqlDB.Close()
}

// Migrate creates or upgrades the core tables.
func Migrate(e *Engine) error {
	dialect := "sqlite3"
	dir := "migrations/sqlite"
	if e.driver == DriverMySQL {
		dialect = "mysql"
		dir = "migrations/mysql"
	}

	goose.SetBaseFS(migrations)
	goose.SetLogger(goose.NopLogger())

	if err := goose.SetDialect(dialect); err != nil {
		return fmt.Errorf("setting dialect: %w", err)
	}

	if err := goose.Up(e.sqlDB, dir); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	return nil
}
