// Package audit records the append-only event log of pairing and mesh
// trust decisions: who connected, from where, and what was granted.
// It's a thin wrapper over the same pairing_events table
// internal/pairing writes transition events to, so a human reviewing
// "what happened to my home server" sees one unified timeline rather
// than two disjoint logs.
package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/dorky-robot/salita-mesh/internal/idgen"
	"github.com/dorky-robot/salita-mesh/pkg/log"
	"github.com/dorky-robot/salita-mesh/storage"
)

// Logger records audit events. A storage write failure never blocks the
// request it's describing: audit logging is best-effort, the same
// posture the Rust daemon's tracing calls take around pairing state
// changes.
type Logger struct {
	db     storage.Storage
	logger log.Logger
}

// New returns a Logger backed by the given storage.
func New(db storage.Storage, logger log.Logger) *Logger {
	return &Logger{db: db, logger: logger}
}

// Event records one audit entry. detail, if non-nil, is marshaled to
// JSON and stored alongside the event type.
func (l *Logger) Event(ctx context.Context, token, eventType string, detail interface{}, now time.Time) {
	var data *string
	if detail != nil {
		encoded, err := json.Marshal(detail)
		if err != nil {
			l.logger.Warnf("audit: failed to encode event detail for %s: %v", eventType, err)
		} else {
			s := string(encoded)
			data = &s
		}
	}

	err := l.db.LogPairingEvent(ctx, storage.PairingEvent{
		ID:         idgen.New(),
		Token:      token,
		EventType:  eventType,
		EventData:  data,
		OccurredAt: now,
	})
	if err != nil {
		l.logger.Warnf("audit: failed to persist event %s: %v", eventType, err)
	}
}
