package genflow

import (
	"database/sql"

	"github.com/petrijr/genflow/internal/taskqueue"
	workerpkg "github.com/petrijr/genflow/pkg/worker"
)

// WorkerBundle wires together a dispatcher, a durable task queue, and a
// worker that consumes the queue. Both the flow states and the queued
// control messages live in the same database, so a restarted process picks
// up exactly where the previous one stopped.
type WorkerBundle struct {
	Dispatcher Dispatcher
	Worker     *workerpkg.Worker

	// queue is kept unexported; the public API focuses on Dispatcher and
	// Worker, and tests reach the queue through the worker.
	queue taskqueue.Queue
}

// NewSQLiteBundle constructs a durable dispatcher, queue, and worker combo
// sharing one SQLite database.
//
// Typical usage:
//
//	db, _ := genflow.OpenSQLite("file:flows.db?_journal=WAL")
//	bundle, err := genflow.NewSQLiteBundle(db)
//	// define flows on bundle.Dispatcher
//	// enqueue work via bundle.Worker
func NewSQLiteBundle(db *sql.DB, workerOpts ...workerpkg.Option) (*WorkerBundle, error) {
	d, err := NewSQLiteDispatcher(db)
	if err != nil {
		return nil, err
	}

	q, err := taskqueue.NewSQLiteQueue(db)
	if err != nil {
		return nil, err
	}

	return &WorkerBundle{
		Dispatcher: d,
		Worker:     workerpkg.New(d, q, workerOpts...),
		queue:      q,
	}, nil
}
