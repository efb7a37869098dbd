package genflow

import (
	"database/sql"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/petrijr/genflow/internal/dispatch"
	"github.com/petrijr/genflow/internal/persistence"
	"github.com/petrijr/genflow/pkg/api"
)

// Re-export key types so users don't need to dig into pkg/api.

type (
	Dispatcher         = api.Dispatcher
	Flow               = api.Flow
	FlowConfig         = api.FlowConfig
	StepsFunc          = api.StepsFunc
	AuthPolicy         = api.AuthPolicy
	Operation          = api.Operation
	FlowResult         = api.FlowResult
	FlowState          = api.FlowState
	FlowStateStore     = api.FlowStateStore
	FlowStateSummary   = api.FlowStateSummary
	StateQuery         = api.StateQuery
	FlowStream         = api.FlowStream
	Schema             = api.Schema
	Status             = api.Status
	Observer           = api.Observer
	LoggingObserver    = api.LoggingObserver
	CompositeObserver  = api.CompositeObserver
	NoopObserver       = api.NoopObserver
	Registry           = api.Registry
	RunOption          = api.RunOption
	ValidationError    = api.ValidationError
	AuthorizationError = api.AuthorizationError
	StepExecutionError = api.StepExecutionError

	FlowInvokeEnvelopeMessage = api.FlowInvokeEnvelopeMessage
	StartMessage              = api.StartMessage
	ScheduleMessage           = api.ScheduleMessage
	RunScheduledMessage       = api.RunScheduledMessage
	ResumeMessage             = api.ResumeMessage
	RetryMessage              = api.RetryMessage
	StateMessage              = api.StateMessage
)

// Re-export step helpers and common constructors.

var (
	RunStep      = api.RunStep
	WaitForEvent = api.WaitForEvent
	EmitChunk    = api.EmitChunk
	Sleep        = api.Sleep

	NewSchema  = api.NewSchema
	MustSchema = api.MustSchema

	NewLoggingObserver   = api.NewLoggingObserver
	NewCompositeObserver = api.NewCompositeObserver

	WithAuthContext = api.WithAuthContext
	WithLabels      = api.WithLabels
)

// Re-export status values for convenience.

const (
	StatusCreated = api.StatusCreated
	StatusRunning = api.StatusRunning
	StatusBlocked = api.StatusBlocked
	StatusDone    = api.StatusDone
	StatusFailed  = api.StatusFailed
)

// Sentinel errors, re-exported for errors.Is checks at call sites.

var (
	ErrNotFound      = api.ErrNotFound
	ErrAlreadyExists = api.ErrAlreadyExists
	ErrInvalidState  = api.ErrInvalidState
)

// DispatcherOption configures dispatcher construction.
type DispatcherOption = dispatch.Option

// WithObserver attaches an observer for flow and step lifecycle events.
var WithObserver = dispatch.WithObserver

// Dispatcher constructors. These wrap the internal packages so external
// callers never need to import them.

// NewInMemoryDispatcher returns a Dispatcher backed entirely by an in-memory
// store. Flow state does not survive a process restart.
func NewInMemoryDispatcher(opts ...DispatcherOption) Dispatcher {
	return dispatch.New(persistence.NewInMemoryStore(), opts...)
}

// NewSQLiteDispatcher returns a Dispatcher that persists flow state in a
// SQLite database.
func NewSQLiteDispatcher(db *sql.DB, opts ...DispatcherOption) (Dispatcher, error) {
	store, err := persistence.NewSQLiteStore(db)
	if err != nil {
		return nil, err
	}
	return dispatch.New(store, opts...), nil
}

// NewPostgresDispatcher returns a Dispatcher that persists flow state in
// PostgreSQL.
func NewPostgresDispatcher(db *sql.DB, opts ...DispatcherOption) (Dispatcher, error) {
	store, err := persistence.NewPostgresStore(db)
	if err != nil {
		return nil, err
	}
	return dispatch.New(store, opts...), nil
}

// NewRedisDispatcher returns a Dispatcher that persists flow state in Redis
// under the given key prefix.
func NewRedisDispatcher(client *redis.Client, prefix string, opts ...DispatcherOption) Dispatcher {
	return dispatch.New(persistence.NewRedisStore(client, prefix), opts...)
}

// NewMongoDispatcher returns a Dispatcher that persists flow state in
// MongoDB.
func NewMongoDispatcher(client *mongo.Client, dbName string, opts ...DispatcherOption) Dispatcher {
	return dispatch.New(persistence.NewMongoStore(client, dbName, ""), opts...)
}

// NewDispatcher returns a Dispatcher over a caller-provided state store.
// Use this to plug in a custom FlowStateStore implementation.
func NewDispatcher(store FlowStateStore, opts ...DispatcherOption) Dispatcher {
	return dispatch.New(store, opts...)
}

// OpenSQLite opens a SQLite database suitable for the SQLite-backed
// dispatcher, queue, and bundle. Use ":memory:" for tests.
var OpenSQLite = persistence.OpenSQLite

// OpenPostgres opens a PostgreSQL database via the pgx stdlib adapter.
var OpenPostgres = persistence.OpenPostgres
