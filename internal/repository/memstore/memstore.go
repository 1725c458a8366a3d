// Package memstore is an in-process implementation of repository.Store.
//
// It keeps every table in maps guarded by one mutex and emulates the parts of
// Postgres the services depend on. FOR UPDATE reads and writes take row locks
// that are held until the transaction ends, bounded by the transaction's lock
// timeout. A failed transaction rolls back every write it made. Constraint
// and missing-row failures surface as the same errors the Postgres store
// returns. Connections, messages, call sessions and reports check that the
// users they reference exist; profiles and subscriptions do not.
//
// Uncommitted writes are visible to other transactions. Use it for local
// development and tests, never for production data.
package memstore

import (
	"bytes"
	"context"
	"database/sql"
	"sort"
	"sync"
	"time"

	"github.com/DukeRupert/kinship/internal/repository"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

// DefaultLockTimeout bounds row lock waits when a transaction sets none.
const DefaultLockTimeout = 5 * time.Second

// Store implements repository.Store in memory.
type Store struct {
	*conn
}

// Option configures a Store.
type Option func(*state)

// WithClock overrides the clock used for database-side defaults such as now().
func WithClock(now func() time.Time) Option {
	return func(st *state) {
		st.now = now
	}
}

// New creates an empty Store.
func New(opts ...Option) *Store {
	st := &state{
		now:           time.Now,
		users:         make(map[uuid.UUID]repository.User),
		profiles:      make(map[uuid.UUID]repository.Profile),
		subscriptions: make(map[uuid.UUID]repository.Subscription),
		connections:   make(map[uuid.UUID]repository.Connection),
		sessions:      make(map[uuid.UUID]repository.CallSession),
		reports:       make(map[uuid.UUID]repository.Report),
		jobs:          make(map[uuid.UUID]repository.Job),
		locks:         make(map[string]*rowLock),
	}
	for _, opt := range opts {
		opt(st)
	}
	return &Store{conn: &conn{st: st}}
}

// ExecTx runs fn in a transaction. Writes are undone if fn returns an error
// or panics; row locks are released either way.
func (s *Store) ExecTx(ctx context.Context, fn func(q repository.Querier) error) (err error) {
	tx := &conn{
		st: s.st,
		tx: &txState{
			lockTimeout: DefaultLockTimeout,
			held:        make(map[string]*rowLock),
		},
	}
	defer func() {
		if p := recover(); p != nil {
			tx.rollback()
			tx.release()
			panic(p)
		}
		if err != nil {
			tx.rollback()
		}
		tx.release()
	}()
	return fn(tx)
}

var _ repository.Store = (*Store)(nil)

// =============================================================================
// State and locking
// =============================================================================

type state struct {
	mu  sync.Mutex
	now func() time.Time

	users         map[uuid.UUID]repository.User
	profiles      map[uuid.UUID]repository.Profile
	subscriptions map[uuid.UUID]repository.Subscription
	connections   map[uuid.UUID]repository.Connection
	messages      []repository.Message
	sessions      map[uuid.UUID]repository.CallSession
	reports       map[uuid.UUID]repository.Report
	corrections   []repository.UsageCorrection
	jobs          map[uuid.UUID]repository.Job

	locks map[string]*rowLock
}

type rowLock struct {
	ch chan struct{}
}

func (st *state) lockFor(key string) *rowLock {
	st.mu.Lock()
	defer st.mu.Unlock()
	l, ok := st.locks[key]
	if !ok {
		l = &rowLock{ch: make(chan struct{}, 1)}
		st.locks[key] = l
	}
	return l
}

type txState struct {
	lockTimeout time.Duration
	held        map[string]*rowLock
	undo        []func()
}

// conn executes queries either in autocommit mode (tx == nil) or inside a
// transaction.
type conn struct {
	st *state
	tx *txState
}

func lockTimeoutError() error {
	return &pgconn.PgError{
		Severity: "ERROR",
		Code:     repository.CodeLockNotAvailable,
		Message:  "canceling statement due to lock timeout",
	}
}

// lockRow blocks until the row lock for key is held. In a transaction the
// lock is kept until release; in autocommit mode the returned func frees it.
func (c *conn) lockRow(ctx context.Context, key string) (func(), error) {
	noop := func() {}
	if c.tx != nil {
		if _, ok := c.tx.held[key]; ok {
			return noop, nil
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	timeout := DefaultLockTimeout
	if c.tx != nil {
		timeout = c.tx.lockTimeout
	}
	l := c.st.lockFor(key)
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case l.ch <- struct{}{}:
	case <-timer.C:
		return nil, lockTimeoutError()
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	if c.tx != nil {
		c.tx.held[key] = l
		return noop, nil
	}
	return func() { <-l.ch }, nil
}

// tryLockRow takes the row lock only if it is free (SKIP LOCKED).
func (c *conn) tryLockRow(key string) bool {
	if c.tx != nil {
		if _, ok := c.tx.held[key]; ok {
			return true
		}
	}
	l := c.st.lockFor(key)
	select {
	case l.ch <- struct{}{}:
	default:
		return false
	}
	if c.tx != nil {
		c.tx.held[key] = l
	} else {
		<-l.ch
	}
	return true
}

// record registers an undo step. Must be called with st.mu held.
func (c *conn) record(undo func()) {
	if c.tx != nil {
		c.tx.undo = append(c.tx.undo, undo)
	}
}

func (c *conn) rollback() {
	c.st.mu.Lock()
	defer c.st.mu.Unlock()
	for i := len(c.tx.undo) - 1; i >= 0; i-- {
		c.tx.undo[i]()
	}
	c.tx.undo = nil
}

func (c *conn) release() {
	for key, l := range c.tx.held {
		<-l.ch
		delete(c.tx.held, key)
	}
}

// saveRow records how to restore m[k] to its current state.
func saveRow[K comparable, V any](c *conn, m map[K]V, k K) {
	prev, existed := m[k]
	c.record(func() {
		if existed {
			m[k] = prev
		} else {
			delete(m, k)
		}
	})
}

func rowKey(table string, id uuid.UUID) string {
	return table + ":" + id.String()
}

func uniqueViolation(constraint string) error {
	return &pgconn.PgError{
		Severity:       "ERROR",
		Code:           repository.CodeUniqueViolation,
		Message:        "duplicate key value violates unique constraint \"" + constraint + "\"",
		ConstraintName: constraint,
	}
}

func checkViolation(constraint string) error {
	return &pgconn.PgError{
		Severity:       "ERROR",
		Code:           repository.CodeCheckViolation,
		Message:        "new row violates check constraint \"" + constraint + "\"",
		ConstraintName: constraint,
	}
}

func foreignKeyViolation(constraint string) error {
	return &pgconn.PgError{
		Severity:       "ERROR",
		Code:           repository.CodeForeignKeyViolation,
		Message:        "insert violates foreign key constraint \"" + constraint + "\"",
		ConstraintName: constraint,
	}
}

// requireUsers reports a foreign key violation on table when any id has no
// users row. The caller holds st.mu.
func (st *state) requireUsers(table string, ids ...uuid.UUID) error {
	for _, id := range ids {
		if _, ok := st.users[id]; !ok {
			return foreignKeyViolation(table + "_user_fkey")
		}
	}
	return nil
}

func sortUUIDs(ids []uuid.UUID) {
	sort.Slice(ids, func(i, j int) bool {
		return bytes.Compare(ids[i][:], ids[j][:]) < 0
	})
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: true}
}

// SetLockTimeout sets the lock wait bound for the rest of the transaction.
func (c *conn) SetLockTimeout(ctx context.Context, timeout string) error {
	d, err := time.ParseDuration(timeout)
	if err != nil {
		return &pgconn.PgError{
			Severity: "ERROR",
			Code:     "22023",
			Message:  "invalid value for parameter \"lock_timeout\": \"" + timeout + "\"",
		}
	}
	if c.tx != nil && d > 0 {
		c.tx.lockTimeout = d
	}
	return nil
}

func removeFirst[T any](items []T, match func(T) bool) []T {
	for i := range items {
		if match(items[i]) {
			return append(items[:i], items[i+1:]...)
		}
	}
	return items
}
