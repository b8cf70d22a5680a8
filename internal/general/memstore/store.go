// Package memstore keeps rides, offers and user profiles in process memory.
// Transactions are serialized, so conditional updates behave like the Postgres CAS.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"ride-dispatch/internal/general/apperr"

	"github.com/google/uuid"
)

// Store implements ports.UnitOfWork. Rides, Offers and Users expose the store ports.
type Store struct {
	txMu sync.Mutex   // one writer at a time
	mu   sync.RWMutex // guards the maps below

	rides        map[string]*rideRow
	offers       map[string]*offerRow
	offersByRide map[string][]string
	events       map[string][]*eventRow
	users        map[string]*userRow

	now func() time.Time
}

func New() *Store {
	return &Store{
		rides:        make(map[string]*rideRow),
		offers:       make(map[string]*offerRow),
		offersByRide: make(map[string][]string),
		events:       make(map[string][]*eventRow),
		users:        make(map[string]*userRow),
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// Rides implements ports.RideStore.
type Rides struct{ *Store }

// Offers implements ports.OfferStore.
type Offers struct{ *Store }

// Users implements ports.UserStore and ports.PresenceMirror.
type Users struct{ *Store }

func (s *Store) Rides() *Rides   { return &Rides{s} }
func (s *Store) Offers() *Offers { return &Offers{s} }
func (s *Store) Users() *Users   { return &Users{s} }

type txKey struct{ store *Store }

type tx struct {
	undo []func()
}

// WithinTx runs fn with exclusive write access. Changes are undone if fn returns an error.
// Nested calls join the outer transaction.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{s}).(*tx); ok {
		return fn(ctx)
	}
	if err := ctx.Err(); err != nil {
		return apperr.Wrap(apperr.KindUnavailable, err, "transaction not started")
	}

	s.txMu.Lock()
	defer s.txMu.Unlock()

	t := &tx{}
	err := fn(context.WithValue(ctx, txKey{s}, t))
	if err != nil {
		s.mu.Lock()
		for i := len(t.undo) - 1; i >= 0; i-- {
			t.undo[i]()
		}
		s.mu.Unlock()
	}
	return err
}

// write runs mutate under the map lock, inside the caller's transaction or a one-shot one.
// mutate returns the undo step for its change (nil when nothing changed).
func (s *Store) write(ctx context.Context, mutate func() (func(), error)) error {
	t, ok := ctx.Value(txKey{s}).(*tx)
	if !ok {
		return s.WithinTx(ctx, func(ctx context.Context) error {
			return s.write(ctx, mutate)
		})
	}
	if err := ctx.Err(); err != nil {
		return apperr.Wrap(apperr.KindUnavailable, err, "store call aborted")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	undo, err := mutate()
	if undo != nil {
		t.undo = append(t.undo, undo)
	}
	return err
}

func (s *Store) read(ctx context.Context) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, apperr.Wrap(apperr.KindUnavailable, err, "store call aborted")
	}
	s.mu.RLock()
	return s.mu.RUnlock, nil
}

func newID(id string) string {
	if id == "" {
		return uuid.NewString()
	}
	return id
}

func sortNewestFirst[T any](items []T, createdAt func(T) time.Time) {
	sort.SliceStable(items, func(i, j int) bool {
		return createdAt(items[i]).After(createdAt(items[j]))
	})
}
