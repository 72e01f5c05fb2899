package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/wb-go/wbf/dbpg"
	_ "modernc.org/sqlite"

	"eventhive/internal/model"
	"eventhive/internal/repo/migrations"
)

var (
	ErrEventNotFound         = errors.New("event not found")
	ErrUserNotFound          = errors.New("user not found")
	ErrEventFull             = errors.New("event is full")
	ErrDuplicateRegistration = errors.New("duplicate registration")
	ErrQuotaExceeded         = errors.New("free event quota exceeded")
)

type Repository interface {
	UpsertUser(ctx context.Context, u model.User) (*model.User, error)
	GetUserByToken(ctx context.Context, token string) (*model.User, error)
	GetUserByID(ctx context.Context, id string) (*model.User, error)
	CompleteOnboarding(ctx context.Context, userID string, loc model.Location, interests []string, at time.Time) error

	CreateEventTx(ctx context.Context, e *model.Event, meterFreeTier bool, freeLimit int) error
	GetEventByID(ctx context.Context, id string) (*model.Event, error)
	GetEventBySlug(ctx context.Context, slug string) (*model.Event, error)
	ListEventsByOrganizer(ctx context.Context, organizerID string) ([]model.Event, error)
	ListUpcoming(ctx context.Context, now time.Time) ([]model.Event, error)
	ListUpcomingByCategory(ctx context.Context, category string, now time.Time) ([]model.Event, error)
	CountUpcomingByCategory(ctx context.Context, now time.Time) (map[string]int, error)
	DeleteEventTx(ctx context.Context, e model.Event, at time.Time) ([]model.Registration, error)

	RegisterTx(ctx context.Context, reg *model.Registration) error
	ListRegistrationsByEvent(ctx context.Context, eventID string) ([]model.Registration, error)

	MigrateUp() error
	MigrateDown() error
	Ping(ctx context.Context) error
	Close() error
}

type dialect int

const (
	dialectPostgres dialect = iota
	dialectSQLite
)

// querier is satisfied by *dbpg.DB, *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

type repository struct {
	db      querier
	master  *sql.DB
	dialect dialect
	log     *zerolog.Logger
}

// NewPostgres wraps a dbpg connection pool. Reads go through dbpg so they can
// be served by replicas; transactions always run on the master.
func NewPostgres(db *dbpg.DB, log *zerolog.Logger) (Repository, error) {
	if db == nil {
		return nil, fmt.Errorf("db cannot be nil")
	}
	if err := db.Master.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping DB: %w", err)
	}
	return &repository{db: db, master: db.Master, dialect: dialectPostgres, log: log}, nil
}

// OpenSQLite opens (or creates) a SQLite database at path.
func OpenSQLite(path string, log *zerolog.Logger) (Repository, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}
	dsn := "file:" + filepath.Clean(path) +
		"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// SQLite has a single writer.
	sqlDB.SetMaxOpenConns(1)
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	return &repository{db: sqlDB, master: sqlDB, dialect: dialectSQLite, log: log}, nil
}

func (r *repository) Ping(ctx context.Context) error {
	return r.master.PingContext(ctx)
}

func (r *repository) Close() error {
	if r.master == nil {
		return nil
	}
	return r.master.Close()
}

const migrationTable = "schema_migrations"

func (r *repository) MigrateUp() error {
	ctx := context.Background()
	if _, err := r.master.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS `+migrationTable+` (
			name       TEXT PRIMARY KEY,
			applied_at BIGINT NOT NULL
		)`); err != nil {
		return fmt.Errorf("failed to ensure migration table: %w", err)
	}

	files, err := migrationFiles(".up.sql")
	if err != nil {
		return err
	}

	for _, file := range files {
		var n int
		if err := r.master.QueryRowContext(ctx,
			r.rebind(`SELECT COUNT(*) FROM `+migrationTable+` WHERE name = ?`), file,
		).Scan(&n); err != nil {
			return fmt.Errorf("failed to check migration %s: %w", file, err)
		}
		if n > 0 {
			continue
		}

		sqlBytes, err := fs.ReadFile(migrations.FS, file)
		if err != nil {
			return fmt.Errorf("failed to read migration file %s: %w", file, err)
		}

		err = r.withTx(ctx, func(tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx, string(sqlBytes)); err != nil {
				return fmt.Errorf("failed to apply migration %s: %w", file, err)
			}
			_, err := tx.ExecContext(ctx,
				r.rebind(`INSERT INTO `+migrationTable+` (name, applied_at) VALUES (?, ?)`),
				file, toMillis(time.Now()),
			)
			return err
		})
		if err != nil {
			return err
		}
		r.log.Info().Str("migration", file).Msg("migration applied")
	}

	return nil
}

func (r *repository) MigrateDown() error {
	ctx := context.Background()
	files, err := migrationFiles(".down.sql")
	if err != nil {
		return err
	}
	sort.Sort(sort.Reverse(sort.StringSlice(files)))

	for _, file := range files {
		sqlBytes, err := fs.ReadFile(migrations.FS, file)
		if err != nil {
			return fmt.Errorf("failed to read rollback file %s: %w", file, err)
		}
		up := strings.TrimSuffix(file, ".down.sql") + ".up.sql"

		err = r.withTx(ctx, func(tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx, string(sqlBytes)); err != nil {
				return fmt.Errorf("failed to rollback migration %s: %w", file, err)
			}
			_, err := tx.ExecContext(ctx,
				r.rebind(`DELETE FROM `+migrationTable+` WHERE name = ?`), up)
			return err
		})
		if err != nil {
			return err
		}
		r.log.Info().Str("migration", file).Msg("migration rolled back")
	}

	return nil
}

func migrationFiles(suffix string) ([]string, error) {
	entries, err := fs.ReadDir(migrations.FS, ".")
	if err != nil {
		return nil, fmt.Errorf("failed to read migration files: %w", err)
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), suffix) {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)
	return files, nil
}

// withTx runs fn in a master transaction, committing on nil and rolling back otherwise.
func (r *repository) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := r.master.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// rebind rewrites ? placeholders to $1..$n for PostgreSQL.
func (r *repository) rebind(query string) string {
	if r.dialect != dialectPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

func toMillis(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

func fromMillis(v int64) time.Time {
	return time.UnixMilli(v).UTC()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func rowsAffected(res sql.Result) (int64, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return n, nil
}
