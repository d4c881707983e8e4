package migrate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/pressly/goose/v3"

	"github.com/beatvault/beatvault-backend/pkg/logger"
)

const DefaultDir = "pkg/migrate/migrations"

var ErrUnknownCommand = errors.New("unknown migrate command")

// Migrator applies the SQL migrations in one directory to Postgres.
type Migrator struct {
	provider *goose.Provider
	logg     *logger.Logger
}

func New(db *sql.DB, dir string, logg *logger.Logger) (*Migrator, error) {
	if db == nil {
		return nil, errors.New("db is required")
	}
	if dir == "" {
		return nil, errors.New("migrations dir is required")
	}
	provider, err := goose.NewProvider(goose.DialectPostgres, db, os.DirFS(dir))
	if err != nil {
		return nil, fmt.Errorf("goose provider: %w", err)
	}
	return &Migrator{provider: provider, logg: logg}, nil
}

// ParseVersion accepts the YYYYMMDDHHMMSS prefix of a migration file.
func ParseVersion(raw string) (int64, error) {
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("invalid version %q (expected YYYYMMDDHHMMSS)", raw)
	}
	return v, nil
}

// Apply runs up, down, redo, reset, status or to. target is only read by
// "to", which moves the schema up or down as needed.
func (m *Migrator) Apply(ctx context.Context, command string, target int64) error {
	switch command {
	case "up":
		results, err := m.provider.Up(ctx)
		m.report(ctx, results...)
		return err
	case "down":
		res, err := m.provider.Down(ctx)
		m.report(ctx, res)
		return err
	case "redo":
		res, err := m.provider.Down(ctx)
		m.report(ctx, res)
		if err != nil {
			return err
		}
		res, err = m.provider.UpByOne(ctx)
		m.report(ctx, res)
		return err
	case "reset":
		results, err := m.provider.DownTo(ctx, 0)
		m.report(ctx, results...)
		return err
	case "status":
		return m.status(ctx)
	case "to":
		return m.to(ctx, target)
	}
	return fmt.Errorf("%w %q", ErrUnknownCommand, command)
}

func (m *Migrator) to(ctx context.Context, target int64) error {
	current, err := m.provider.GetDBVersion(ctx)
	if err != nil {
		return fmt.Errorf("read db version: %w", err)
	}
	var results []*goose.MigrationResult
	switch {
	case current == target:
		return nil
	case current < target:
		results, err = m.provider.UpTo(ctx, target)
	default:
		results, err = m.provider.DownTo(ctx, target)
	}
	m.report(ctx, results...)
	return err
}

func (m *Migrator) status(ctx context.Context) error {
	statuses, err := m.provider.Status(ctx)
	if err != nil {
		return err
	}
	if m.logg == nil {
		return nil
	}
	for _, s := range statuses {
		fields := map[string]any{"version": s.Source.Version, "state": string(s.State)}
		if !s.AppliedAt.IsZero() {
			fields["applied_at"] = s.AppliedAt.UTC().Format(time.RFC3339)
		}
		m.logg.Info(m.logg.WithFields(ctx, fields), s.Source.Path)
	}
	return nil
}

func (m *Migrator) report(ctx context.Context, results ...*goose.MigrationResult) {
	if m.logg == nil {
		return
	}
	for _, r := range results {
		if r == nil || r.Source == nil {
			continue
		}
		m.logg.Info(m.logg.WithFields(ctx, map[string]any{
			"version":     r.Source.Version,
			"direction":   r.Direction,
			"duration_ms": r.Duration.Milliseconds(),
		}), "migration applied")
	}
}
