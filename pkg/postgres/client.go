// Package postgres opens a pooled lib/pq connection for the analytics
// snapshot store.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Adithya-Monish-Kumar-K/doc-rag/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/doc-rag/pkg/resilience"
	_ "github.com/lib/pq"
)

type Client struct {
	DB *sql.DB
}

// New opens the pool and waits for the server to answer a ping, retrying a
// few times so the service can start alongside a database that is still
// booting.
func New(ctx context.Context, cfg config.PostgresConfig) (*Client, error) {
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("opening postgres pool: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	policy := resilience.Policy{Attempts: 3, BaseDelay: 500 * time.Millisecond, MaxDelay: 2 * time.Second}
	_, err = resilience.Do(ctx, policy, "postgres ping", func(ctx context.Context, _ int) (struct{}, error) {
		return resilience.WithTimeout(ctx, 3*time.Second, "postgres ping", func(ctx context.Context) (struct{}, error) {
			return struct{}{}, db.PingContext(ctx)
		})
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres %s:%d/%s: %w", cfg.Host, cfg.Port, cfg.Database, err)
	}
	return &Client{DB: db}, nil
}

func (c *Client) Ping(ctx context.Context) error { return c.DB.PingContext(ctx) }

func (c *Client) Close() error { return c.DB.Close() }

// InTx runs fn in a transaction that commits only when fn returns nil.
func (c *Client) InTx(ctx context.Context, fn func(tx *sql.Tx) error) (err error) {
	tx, err := c.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				err = errors.Join(err, fmt.Errorf("rollback: %w", rbErr))
			}
		}
	}()
	if err = fn(tx); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}
