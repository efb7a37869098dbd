package persistence

import (
	"context"
	"database/sql"
	"errors"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/petrijr/genflow/pkg/api"
)

// PostgresStore is a FlowStateStore backed by PostgreSQL.
//
// It expects an *sql.DB using a Postgres driver; OpenPostgres opens one with
// the pgx stdlib adapter.
type PostgresStore struct {
	db *sql.DB
}

var _ api.FlowStateStore = (*PostgresStore)(nil)

// OpenPostgres opens a Postgres database suitable for NewPostgresStore.
func OpenPostgres(dsn string) (*sql.DB, error) {
	return sql.Open("pgx", dsn)
}

// NewPostgresStore initializes the required schema in the given database and
// returns a new PostgresStore.
func NewPostgresStore(db *sql.DB) (*PostgresStore, error) {
	s := &PostgresStore{db: db}
	if err := s.initSchema(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) initSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS flow_states (
			flow_id TEXT PRIMARY KEY,
			flow_name TEXT NOT NULL,
			status TEXT NOT NULL,
			start_time BIGINT NOT NULL,
			done BOOLEAN NOT NULL,
			state BYTEA NOT NULL
		);`,
	)
	return err
}

func (s *PostgresStore) Create(ctx context.Context, fs *api.FlowState) error {
	data, err := EncodeState(fs)
	if err != nil {
		return err
	}

	// ON CONFLICT DO NOTHING + RowsAffected gives a portable duplicate
	// check without parsing driver-specific error codes.
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO flow_states (flow_id, flow_name, status, start_time, done, state)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (flow_id) DO NOTHING`,
		fs.FlowID,
		fs.Name,
		string(fs.Status),
		fs.StartTime.UnixNano(),
		stateDone(fs),
		data,
	)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return api.ErrAlreadyExists
	}
	return nil
}

func (s *PostgresStore) Load(ctx context.Context, flowID string) (*api.FlowState, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT state FROM flow_states WHERE flow_id = $1`, flowID).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, api.ErrNotFound
		}
		return nil, err
	}
	return DecodeState(data)
}

func (s *PostgresStore) Save(ctx context.Context, fs *api.FlowState) error {
	data, err := EncodeState(fs)
	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE flow_states
		SET flow_name = $1, status = $2, done = $3, state = $4
		WHERE flow_id = $5`,
		fs.Name,
		string(fs.Status),
		stateDone(fs),
		data,
		fs.FlowID,
	)
	if err != nil {
		return err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return api.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) List(ctx context.Context, q api.StateQuery) ([]*api.FlowStateSummary, string, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}

	query := `SELECT state FROM flow_states WHERE flow_id > $1`
	args := []any{q.ContinuationToken}
	if q.Name != "" {
		query += ` AND flow_name = $2 ORDER BY flow_id LIMIT $3`
		args = append(args, q.Name, limit+1)
	} else {
		query += ` ORDER BY flow_id LIMIT $2`
		args = append(args, limit+1)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, "", err
	}
	defer rows.Close()

	var page []*api.FlowStateSummary
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, "", err
		}
		fs, err := DecodeState(data)
		if err != nil {
			return nil, "", err
		}
		page = append(page, fs.Summary())
	}
	if err := rows.Err(); err != nil {
		return nil, "", err
	}

	token := ""
	if len(page) > limit {
		page = page[:limit]
		token = page[len(page)-1].FlowID
	}
	return page, token, nil
}
