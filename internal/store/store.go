// Package store provides storage backends for Finivo.
//
// It defines the repository interfaces used by the nudge engine and memory
// service, with in-memory, SQLite and PostgreSQL implementations.
package store

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Moneymaker1996/finivo-backend/internal/models"
	"github.com/Moneymaker1996/finivo-backend/internal/plan"
)

// ErrDSNNotSet is returned when a SQL backend is opened without a DSN.
var ErrDSNNotSet = errors.New("database DSN not set")

// UserRepo stores account holders and their tier.
type UserRepo interface {
	CreateUser(ctx context.Context, u models.User) (int64, error)
	GetUser(ctx context.Context, userID int64) (*models.User, error)
	// UserPlan returns the sanitized tier for userID.
	UserPlan(ctx context.Context, userID int64) (plan.Tier, error)
	SetUserPlan(ctx context.Context, userID int64, tier plan.Tier) error
}

// SpendingRepo stores spending logs and answers the history queries behind
// the pattern, recency and budget checks.
type SpendingRepo interface {
	AddSpending(ctx context.Context, log models.SpendingLog) (int64, error)
	ListSpending(ctx context.Context, userID int64) ([]models.SpendingLog, error)
	CountRegrets(ctx context.Context, userID int64) (int, error)
	SumSpending(ctx context.Context, userID int64, since, until time.Time) (decimal.Decimal, error)
	// MostRecentPurchase returns nil when the user has no logs.
	MostRecentPurchase(ctx context.Context, userID int64) (*time.Time, error)
}

// NudgeRepo stores nudge history.
type NudgeRepo interface {
	AddNudge(ctx context.Context, rec models.NudgeRecord) error
	CountNudges(ctx context.Context, userID int64, tier plan.Tier, since time.Time) (int, error)
	// ListNudges returns newest first. limit <= 0 returns everything.
	ListNudges(ctx context.Context, userID int64, limit int) ([]models.NudgeRecord, error)
	// ListEARNSessions returns nudges that carried an E.A.R.N. script, newest first.
	ListEARNSessions(ctx context.Context, userID int64, limit int) ([]models.NudgeRecord, error)
}

// MemoryRepo stores regret memory documents.
type MemoryRepo interface {
	AddMemory(ctx context.Context, doc models.MemoryDocument) error
	ListMemories(ctx context.Context, userID int64) ([]models.MemoryDocument, error)
	HasMemory(ctx context.Context, userID int64, content string) (bool, error)
}

// Store is the full persistence surface.
type Store interface {
	UserRepo
	SpendingRepo
	NudgeRepo
	MemoryRepo
	Close() error
}

// Opts holds store configuration.
type Opts struct {
	DSN string
}

// Option configures a store.
type Option func(*Opts)

// WithSQLiteDSN sets the SQLite database file path or DSN.
func WithSQLiteDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// WithPostgresDSN sets the PostgreSQL connection string.
func WithPostgresDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// DetectDSNType returns "postgres" for PostgreSQL connection strings and
// "sqlite3" for anything else.
func DetectDSNType(dsn string) string {
	d := strings.TrimSpace(dsn)
	if strings.HasPrefix(d, "postgres://") || strings.HasPrefix(d, "postgresql://") ||
		strings.Contains(d, "host=") || strings.Contains(d, "dbname=") {
		return "postgres"
	}
	return "sqlite3"
}

// Open creates the store matching dsn.
func Open(dsn string) (Store, error) {
	if dsn == "" {
		return nil, ErrDSNNotSet
	}
	if DetectDSNType(dsn) == "postgres" {
		return NewPostgresStore(WithPostgresDSN(dsn))
	}
	return NewSQLiteStore(WithSQLiteDSN(dsn))
}

// Compile-time interface checks.
var (
	_ Store = (*InMemoryStore)(nil)
	_ Store = (*SQLiteStore)(nil)
	_ Store = (*PostgresStore)(nil)
)
