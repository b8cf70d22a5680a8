package presence

import (
	"context"
	"strings"
	"sync"
	"time"

	"ride-dispatch/internal/domain/geo"
	"ride-dispatch/internal/domain/user"
	"ride-dispatch/internal/general/logger"
	"ride-dispatch/internal/ports"
)

const (
	defaultMirrorTimeout = 2 * time.Second
	mirrorQueueSize      = 1024
)

// Record is the live presence of one identity.
type Record struct {
	Identity      string
	Role          user.Role
	VehicleTypeID string
	Online        bool
	Location      *geo.Point
	Handle        string
	UpdatedAt     time.Time
}

func (r *Record) clone() Record {
	out := *r
	if r.Location != nil {
		loc := *r.Location
		out.Location = &loc
	}
	return out
}

// Directory is the in-process registry of connected identities.
// Every change is copied to the mirror in the background, in order.
type Directory struct {
	log           *logger.Logger
	mirror        ports.PresenceMirror
	mirrorTimeout time.Duration
	onDrivers     func(online int)

	mu       sync.RWMutex
	records  map[string]*Record
	byHandle map[string]string // handle -> identity

	qmu    sync.RWMutex
	queue  chan mirrorOp
	closed bool
	done   chan struct{}
}

type Option func(*Directory)

// WithMirrorTimeout bounds every mirror call.
func WithMirrorTimeout(d time.Duration) Option {
	return func(dir *Directory) {
		if d > 0 {
			dir.mirrorTimeout = d
		}
	}
}

// WithOnlineDrivers is called with the online driver count after every change.
func WithOnlineDrivers(fn func(online int)) Option {
	return func(dir *Directory) { dir.onDrivers = fn }
}

func NewDirectory(mirror ports.PresenceMirror, log *logger.Logger, opts ...Option) *Directory {
	if mirror == nil {
		mirror = ports.NopMirror{}
	}
	dir := &Directory{
		log:           log,
		mirror:        mirror,
		mirrorTimeout: defaultMirrorTimeout,
		records:       make(map[string]*Record),
		byHandle:      make(map[string]string),
		queue:         make(chan mirrorOp, mirrorQueueSize),
		done:          make(chan struct{}),
	}
	for _, opt := range opts {
		opt(dir)
	}
	go dir.runMirror()
	return dir
}

// Connect registers the identity as online under rec.Handle, replacing any previous handle.
func (dir *Directory) Connect(ctx context.Context, rec Record) {
	rec.Identity = strings.TrimSpace(rec.Identity)
	if rec.Identity == "" {
		return
	}

	var displaced string
	dir.mu.Lock()
	if owner, ok := dir.byHandle[rec.Handle]; ok && owner != rec.Identity {
		if prev := dir.records[owner]; prev != nil && prev.Handle == rec.Handle {
			prev.Online = false
			prev.Handle = ""
			displaced = owner
		}
	}
	cur, ok := dir.records[rec.Identity]
	if !ok {
		cur = &Record{Identity: rec.Identity}
		dir.records[rec.Identity] = cur
	}
	if cur.Handle != "" && cur.Handle != rec.Handle {
		delete(dir.byHandle, cur.Handle)
	}
	cur.Role = rec.Role
	cur.VehicleTypeID = rec.VehicleTypeID
	cur.Online = true
	cur.Handle = rec.Handle
	if rec.Location != nil {
		loc := *rec.Location
		cur.Location = &loc
	}
	cur.UpdatedAt = time.Now().UTC()
	if rec.Handle != "" {
		dir.byHandle[rec.Handle] = rec.Identity
	}
	drivers := dir.onlineCountLocked(user.RoleDriver)
	dir.mu.Unlock()

	dir.reportDrivers(drivers)
	if displaced != "" {
		dir.enqueue(ctx, mirrorOp{kind: opOffline, identity: displaced})
	}
	dir.enqueue(ctx, mirrorOp{kind: opOnline, identity: rec.Identity, handle: rec.Handle})
	if rec.Location != nil {
		dir.enqueue(ctx, mirrorOp{kind: opPosition, identity: rec.Identity, point: *rec.Location})
	}
}

// UpdatePosition stores the last known coordinate of a connected identity.
// It reports false, and does nothing, when the identity is not online.
func (dir *Directory) UpdatePosition(ctx context.Context, identity string, point geo.Point) bool {
	dir.mu.Lock()
	cur, ok := dir.records[identity]
	if !ok || !cur.Online {
		dir.mu.Unlock()
		return false
	}
	loc := point
	cur.Location = &loc
	cur.UpdatedAt = time.Now().UTC()
	dir.mu.Unlock()

	dir.enqueue(ctx, mirrorOp{kind: opPosition, identity: identity, point: point})
	return true
}

// Disconnect takes the identity offline regardless of its handle.
func (dir *Directory) Disconnect(ctx context.Context, identity string) {
	dir.disconnect(ctx, identity, "", false)
}

// DisconnectHandle takes the identity offline only while handle is still its
// current one, so a stale socket closing after a reconnect is ignored.
func (dir *Directory) DisconnectHandle(ctx context.Context, identity, handle string) bool {
	return dir.disconnect(ctx, identity, handle, true)
}

func (dir *Directory) disconnect(ctx context.Context, identity, handle string, matchHandle bool) bool {
	dir.mu.Lock()
	cur, ok := dir.records[identity]
	if !ok || !cur.Online || (matchHandle && cur.Handle != handle) {
		dir.mu.Unlock()
		return false
	}
	if cur.Handle != "" {
		delete(dir.byHandle, cur.Handle)
	}
	cur.Online = false
	cur.Handle = ""
	cur.UpdatedAt = time.Now().UTC()
	drivers := dir.onlineCountLocked(user.RoleDriver)
	dir.mu.Unlock()

	dir.reportDrivers(drivers)
	dir.enqueue(ctx, mirrorOp{kind: opOffline, identity: identity})
	return true
}

// Lookup returns a copy of the identity's record.
func (dir *Directory) Lookup(identity string) (Record, bool) {
	dir.mu.RLock()
	defer dir.mu.RUnlock()
	cur, ok := dir.records[identity]
	if !ok {
		return Record{}, false
	}
	return cur.clone(), true
}

// OnlineDriversByVehicleType returns copies of the online drivers of one vehicle type.
func (dir *Directory) OnlineDriversByVehicleType(vehicleTypeID string) []Record {
	dir.mu.RLock()
	defer dir.mu.RUnlock()
	var out []Record
	for _, rec := range dir.records {
		if rec.Online && rec.Role == user.RoleDriver && rec.VehicleTypeID == vehicleTypeID {
			out = append(out, rec.clone())
		}
	}
	return out
}

// OnlineCount counts online identities of a role.
func (dir *Directory) OnlineCount(role user.Role) int {
	dir.mu.RLock()
	defer dir.mu.RUnlock()
	return dir.onlineCountLocked(role)
}

func (dir *Directory) onlineCountLocked(role user.Role) int {
	n := 0
	for _, rec := range dir.records {
		if rec.Online && rec.Role == role {
			n++
		}
	}
	return n
}

func (dir *Directory) reportDrivers(n int) {
	if dir.onDrivers != nil {
		dir.onDrivers(n)
	}
}

// Close stops the mirror worker after it drains the queued changes.
func (dir *Directory) Close() {
	dir.qmu.Lock()
	if !dir.closed {
		dir.closed = true
		close(dir.queue)
	}
	dir.qmu.Unlock()
	<-dir.done
}
