// Package guardtest provides in-memory guard stores for tests.
package guardtest

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/clinicapi/clinic/internal/platform/guard"
)

type txKey struct{}

// SerialTx runs every transaction under one mutex, which gives the
// serialisable behaviour the guards rely on from the real store.
type SerialTx struct {
	mu sync.Mutex
}

func (t *SerialTx) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(txKey{}) != nil {
		return fn(ctx)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return fn(context.WithValue(ctx, txKey{}, true))
}

type slotKey struct {
	doctor uuid.UUID
	at     time.Time
}

// Slots is an in-memory guard.SlotStore keyed by appointment id.
type Slots struct {
	mu    sync.Mutex
	byID  map[uuid.UUID]slotKey
	Locks int
}

func NewSlots() *Slots {
	return &Slots{byID: make(map[uuid.UUID]slotKey)}
}

// Book records appointment id at the slot, replacing its previous slot.
func (s *Slots) Book(id, doctorID uuid.UUID, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID[id] = slotKey{doctor: doctorID, at: guard.NormalizeSlot(at)}
}

// Release forgets appointment id.
func (s *Slots) Release(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.byID, id)
}

func (s *Slots) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byID)
}

func (s *Slots) LockSlot(ctx context.Context, doctorID uuid.UUID, at time.Time) error {
	s.mu.Lock()
	s.Locks++
	s.mu.Unlock()
	return ctx.Err()
}

func (s *Slots) SlotTaken(ctx context.Context, doctorID uuid.UUID, at time.Time, excluding uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	want := slotKey{doctor: doctorID, at: guard.NormalizeSlot(at)}
	for id, k := range s.byID {
		if id != excluding && k == want {
			return true, nil
		}
	}
	return false, nil
}

// References is an in-memory guard.ReferenceStore.
type References struct {
	mu   sync.Mutex
	rows map[guard.Kind]map[uuid.UUID]bool
	refs map[guard.Dependent]map[uuid.UUID]int64
}

func NewReferences() *References {
	return &References{
		rows: make(map[guard.Kind]map[uuid.UUID]bool),
		refs: make(map[guard.Dependent]map[uuid.UUID]int64),
	}
}

// Put marks kind/id as existing.
func (r *References) Put(kind guard.Kind, id uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.rows[kind] == nil {
		r.rows[kind] = make(map[uuid.UUID]bool)
	}
	r.rows[kind][id] = true
}

// Remove forgets kind/id.
func (r *References) Remove(kind guard.Kind, id uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.rows[kind], id)
}

// Reference adds delta references through dep to parent.
func (r *References) Reference(dep guard.Dependent, parent uuid.UUID, delta int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.refs[dep] == nil {
		r.refs[dep] = make(map[uuid.UUID]int64)
	}
	r.refs[dep][parent] += delta
}

func (r *References) LockRow(ctx context.Context, kind guard.Kind, id uuid.UUID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rows[kind][id], ctx.Err()
}

func (r *References) CountReferences(ctx context.Context, dep guard.Dependent, id uuid.UUID) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.refs[dep][id], ctx.Err()
}
