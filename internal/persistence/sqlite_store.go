package persistence

import (
	"context"
	"database/sql"
	"errors"

	_ "modernc.org/sqlite"

	"github.com/petrijr/genflow/pkg/api"
)

// SQLiteStore is a FlowStateStore backed by SQLite.
//
// It expects an *sql.DB using a SQLite driver; OpenSQLite opens one with
// modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

var _ api.FlowStateStore = (*SQLiteStore)(nil)

// OpenSQLite opens a SQLite database suitable for NewSQLiteStore. Use the
// ":memory:" DSN for tests.
func OpenSQLite(dsn string) (*sql.DB, error) {
	return sql.Open("sqlite", dsn)
}

// NewSQLiteStore initializes the required schema in the given database and
// returns a new SQLiteStore.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS flow_states (
			flow_id TEXT PRIMARY KEY,
			flow_name TEXT NOT NULL,
			status TEXT NOT NULL,
			start_time INTEGER NOT NULL,
			done INTEGER NOT NULL,
			state BLOB NOT NULL
		);`,
	)
	return err
}

func (s *SQLiteStore) Create(ctx context.Context, fs *api.FlowState) error {
	data, err := EncodeState(fs)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var exists int
	err = tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM flow_states WHERE flow_id = ?`, fs.FlowID).Scan(&exists)
	if err != nil {
		return err
	}
	if exists > 0 {
		return api.ErrAlreadyExists
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO flow_states (flow_id, flow_name, status, start_time, done, state)
		VALUES (?, ?, ?, ?, ?, ?)`,
		fs.FlowID,
		fs.Name,
		string(fs.Status),
		fs.StartTime.UnixNano(),
		boolToInt(stateDone(fs)),
		data,
	)
	if err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLiteStore) Load(ctx context.Context, flowID string) (*api.FlowState, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT state FROM flow_states WHERE flow_id = ?`, flowID).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, api.ErrNotFound
		}
		return nil, err
	}
	return DecodeState(data)
}

func (s *SQLiteStore) Save(ctx context.Context, fs *api.FlowState) error {
	data, err := EncodeState(fs)
	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE flow_states
		SET flow_name = ?, status = ?, done = ?, state = ?
		WHERE flow_id = ?`,
		fs.Name,
		string(fs.Status),
		boolToInt(stateDone(fs)),
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

func (s *SQLiteStore) List(ctx context.Context, q api.StateQuery) ([]*api.FlowStateSummary, string, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}

	query := `SELECT state FROM flow_states WHERE flow_id > ?`
	args := []any{q.ContinuationToken}
	if q.Name != "" {
		query += ` AND flow_name = ?`
		args = append(args, q.Name)
	}
	// One extra row tells us whether a next page exists.
	query += ` ORDER BY flow_id LIMIT ?`
	args = append(args, limit+1)

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

func stateDone(fs *api.FlowState) bool {
	return fs.Operation != nil && fs.Operation.Done
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
