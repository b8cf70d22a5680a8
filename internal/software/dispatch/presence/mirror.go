package presence

import (
	"context"
	"errors"

	"ride-dispatch/internal/domain/geo"
	"ride-dispatch/internal/general/logger"
	"ride-dispatch/internal/ports"
)

// Mirrors copies every change to each mirror in turn. A failing mirror does
// not stop the others; their errors are joined.
type Mirrors []ports.PresenceMirror

func (ms Mirrors) MarkOnline(ctx context.Context, userID, handle string) error {
	var errs []error
	for _, m := range ms {
		errs = append(errs, m.MarkOnline(ctx, userID, handle))
	}
	return errors.Join(errs...)
}

func (ms Mirrors) MarkOffline(ctx context.Context, userID string) error {
	var errs []error
	for _, m := range ms {
		errs = append(errs, m.MarkOffline(ctx, userID))
	}
	return errors.Join(errs...)
}

func (ms Mirrors) UpdatePosition(ctx context.Context, userID string, point geo.Point) error {
	var errs []error
	for _, m := range ms {
		errs = append(errs, m.UpdatePosition(ctx, userID, point))
	}
	return errors.Join(errs...)
}

type opKind int

const (
	opOnline opKind = iota
	opOffline
	opPosition
)

func (k opKind) String() string {
	switch k {
	case opOnline:
		return "mark_online"
	case opOffline:
		return "mark_offline"
	default:
		return "update_position"
	}
}

type mirrorOp struct {
	kind      opKind
	identity  string
	handle    string
	point     geo.Point
	requestID string
}

// enqueue never blocks the caller; a full queue drops the change.
func (dir *Directory) enqueue(ctx context.Context, op mirrorOp) {
	op.requestID = logger.RequestID(ctx)

	dir.qmu.RLock()
	defer dir.qmu.RUnlock()
	if dir.closed {
		return
	}
	select {
	case dir.queue <- op:
	default:
		dir.log.Warn(ctx, "presence_mirror_overflow", "Presence mirror queue full, change dropped", map[string]any{
			"identity": op.identity, "op": op.kind.String(),
		})
	}
}

func (dir *Directory) runMirror() {
	defer close(dir.done)
	for op := range dir.queue {
		dir.apply(op)
	}
}

func (dir *Directory) apply(op mirrorOp) {
	ctx := logger.WithRequestID(context.Background(), op.requestID)
	ctx, cancel := context.WithTimeout(ctx, dir.mirrorTimeout)
	defer cancel()

	var err error
	switch op.kind {
	case opOnline:
		err = dir.mirror.MarkOnline(ctx, op.identity, op.handle)
	case opOffline:
		err = dir.mirror.MarkOffline(ctx, op.identity)
	case opPosition:
		err = dir.mirror.UpdatePosition(ctx, op.identity, op.point)
	}
	if err != nil {
		dir.log.Error(ctx, "presence_mirror_failed", "Failed to mirror presence change", err, map[string]any{
			"identity": op.identity, "op": op.kind.String(),
		})
	}
}
