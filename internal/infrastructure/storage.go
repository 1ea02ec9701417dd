package infrastructure

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"sync"

	"github.com/architeacher/svc-event-bus/internal/config"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

var errStorageClosed = errors.New("storage is closed")

// Storage owns the PostgreSQL connection pool.
type Storage struct {
	cfg config.StorageConfig

	mu     sync.Mutex
	db     *sqlx.DB
	closed bool
}

func NewStorage(cfg config.StorageConfig) (*Storage, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("storage host is required")
	}

	return &Storage{cfg: cfg}, nil
}

// DSN renders the lib/pq connection string.
func (s *Storage) DSN() string {
	dsn := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(s.cfg.Username, s.cfg.Password),
		Host:   net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port)),
		Path:   s.cfg.Database,
	}

	query := dsn.Query()
	query.Set("sslmode", s.cfg.SSLMode)

	if s.cfg.ConnectTimeout > 0 {
		query.Set("connect_timeout", strconv.Itoa(int(s.cfg.ConnectTimeout.Seconds())))
	}

	dsn.RawQuery = query.Encode()

	return dsn.String()
}

// GetDB lazily opens the pool and verifies it with a ping.
func (s *Storage) GetDB() (*sqlx.DB, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, errStorageClosed
	}

	if s.db != nil {
		return s.db, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ConnectTimeout)
	defer cancel()

	db, err := sqlx.ConnectContext(ctx, "postgres", s.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	db.SetMaxOpenConns(s.cfg.MaxOpenConns)
	db.SetMaxIdleConns(s.cfg.MaxIdleConns)
	db.SetConnMaxLifetime(s.cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(s.cfg.ConnMaxIdleTime)

	s.db = db

	return s.db, nil
}

// Ping checks the pool for readiness checks.
func (s *Storage) Ping(ctx context.Context) error {
	db, err := s.GetDB()
	if err != nil {
		return err
	}

	return db.PingContext(ctx)
}

func (s *Storage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}

	s.closed = true

	if s.db == nil {
		return nil
	}

	return s.db.Close()
}
