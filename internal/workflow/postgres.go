package workflow

import (
	"context"
	stderrors "errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"comfybridge/internal/pkg/errors"
)

// Querier is the subset of *pgxpool.Pool the source needs.
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

var _ Querier = (*pgxpool.Pool)(nil)

// PostgresSource reads templates from the workflows table:
//
//	CREATE TABLE workflows (
//	  name            text PRIMARY KEY,
//	  description     text NOT NULL DEFAULT '',
//	  definition_json jsonb NOT NULL,
//	  updated_at      timestamptz NOT NULL DEFAULT now(),
//	  deleted_at      timestamptz
//	);
type PostgresSource struct {
	db Querier
}

func NewPostgresSource(db Querier) *PostgresSource {
	return &PostgresSource{db: db}
}

func (s *PostgresSource) Load(ctx context.Context, name string) (Graph, error) {
	if !ValidName(name) {
		return nil, errors.ValidationField("workflow", "invalid workflow name: "+name)
	}

	var definition []byte
	err := s.db.QueryRow(ctx, `
		SELECT definition_json
		FROM workflows
		WHERE name=$1 AND deleted_at IS NULL
	`, name).Scan(&definition)
	if err != nil {
		if stderrors.Is(err, pgx.ErrNoRows) || isUndefinedTable(err) {
			return nil, errors.NotFound("workflow", name)
		}
		return nil, errors.Wrap(err, "workflow.load", "query workflow "+name)
	}
	return Parse(name, definition)
}

func (s *PostgresSource) List(ctx context.Context) ([]Info, error) {
	rows, err := s.db.Query(ctx, `
		SELECT name, description, updated_at
		FROM workflows
		WHERE deleted_at IS NULL
		ORDER BY name
	`)
	if err != nil {
		if isUndefinedTable(err) {
			return []Info{}, nil
		}
		return nil, errors.Wrap(err, "workflow.list", "query workflows")
	}
	defer rows.Close()

	out := []Info{}
	for rows.Next() {
		var info Info
		if err := rows.Scan(&info.Name, &info.Description, &info.UpdatedAt); err != nil {
			return nil, errors.Wrap(err, "workflow.list", "scan workflow")
		}
		out = append(out, info)
	}
	return out, rows.Err()
}

// 42P01 = undefined_table
func isUndefinedTable(err error) bool {
	var pgErr *pgconn.PgError
	if stderrors.As(err, &pgErr) {
		return pgErr.Code == "42P01"
	}
	return false
}
