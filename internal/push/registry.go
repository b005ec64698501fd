// Package push keeps the live push sessions of this process.
package push

import (
	"encoding/json"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"planify-notification/pkg/metrics"
)

// Session is one live client connection.
type Session interface {
	ID() string
	Send(payload []byte) error
	IsOpen() bool
	Close() error
}

// Registry maps a user to at most one live session. Safe for concurrent use.
type Registry struct {
	sessions sync.Map // uuid.UUID -> Session
	active   atomic.Int64
	logger   *zap.Logger
}

func NewRegistry(logger *zap.Logger) *Registry {
	return &Registry{logger: logger}
}

// Register stores s for the user and returns the session it replaced, if any.
// The caller is expected to close the returned session.
func (r *Registry) Register(userID uuid.UUID, s Session) Session {
	prev, loaded := r.sessions.Swap(userID, s)
	if !loaded {
		metrics.SetActiveConnections(r.active.Add(1))
		r.logger.Info("push session registered",
			zap.String("user_id", userID.String()),
			zap.String("session_id", s.ID()),
		)
		return nil
	}

	old := prev.(Session)
	r.logger.Info("push session replaced",
		zap.String("user_id", userID.String()),
		zap.String("session_id", s.ID()),
		zap.String("replaced_session_id", old.ID()),
	)
	return old
}

// Unregister removes whatever session the user has.
func (r *Registry) Unregister(userID uuid.UUID) {
	if _, loaded := r.sessions.LoadAndDelete(userID); loaded {
		metrics.SetActiveConnections(r.active.Add(-1))
		r.logger.Info("push session unregistered", zap.String("user_id", userID.String()))
	}
}

// UnregisterSession removes the user's entry only if it is still s.
func (r *Registry) UnregisterSession(userID uuid.UUID, s Session) bool {
	if !r.sessions.CompareAndDelete(userID, s) {
		return false
	}
	metrics.SetActiveConnections(r.active.Add(-1))
	r.logger.Info("push session unregistered",
		zap.String("user_id", userID.String()),
		zap.String("session_id", s.ID()),
	)
	return true
}

// SendToUser delivers payload as JSON to the user's session. Best effort: it
// reports whether a frame was written and never returns an error.
func (r *Registry) SendToUser(userID uuid.UUID, payload any) bool {
	v, ok := r.sessions.Load(userID)
	if !ok {
		r.logger.Debug("user not connected, push skipped", zap.String("user_id", userID.String()))
		return false
	}
	s := v.(Session)

	if !s.IsOpen() {
		r.UnregisterSession(userID, s)
		r.logger.Debug("push session closed, push skipped", zap.String("user_id", userID.String()))
		return false
	}

	body, err := encode(payload)
	if err != nil {
		r.logger.Error("failed to encode push payload", zap.String("user_id", userID.String()), zap.Error(err))
		return false
	}

	if err := s.Send(body); err != nil {
		r.logger.Warn("push send failed",
			zap.String("user_id", userID.String()),
			zap.String("session_id", s.ID()),
			zap.Error(err),
		)
		return false
	}
	return true
}

// Broadcast sends payload to a snapshot of the open sessions and returns how many succeeded.
func (r *Registry) Broadcast(payload any) int {
	body, err := encode(payload)
	if err != nil {
		r.logger.Error("failed to encode broadcast payload", zap.Error(err))
		return 0
	}

	type entry struct {
		userID  uuid.UUID
		session Session
	}
	var snapshot []entry
	r.sessions.Range(func(k, v any) bool {
		snapshot = append(snapshot, entry{userID: k.(uuid.UUID), session: v.(Session)})
		return true
	})

	delivered := 0
	for _, e := range snapshot {
		if !e.session.IsOpen() {
			continue
		}
		if err := e.session.Send(body); err != nil {
			r.logger.Warn("broadcast send failed",
				zap.String("user_id", e.userID.String()),
				zap.Error(err),
			)
			continue
		}
		delivered++
	}
	return delivered
}

// IsOnline reports whether the user has an open session.
func (r *Registry) IsOnline(userID uuid.UUID) bool {
	v, ok := r.sessions.Load(userID)
	return ok && v.(Session).IsOpen()
}

// ActiveCount is the number of registered sessions.
func (r *Registry) ActiveCount() int {
	return int(r.active.Load())
}

// CloseAll closes every session, used on shutdown.
func (r *Registry) CloseAll() {
	r.sessions.Range(func(k, v any) bool {
		if r.sessions.CompareAndDelete(k, v) {
			metrics.SetActiveConnections(r.active.Add(-1))
		}
		_ = v.(Session).Close()
		return true
	})
}

func encode(payload any) ([]byte, error) {
	switch p := payload.(type) {
	case []byte:
		return p, nil
	case json.RawMessage:
		return p, nil
	default:
		return json.Marshal(payload)
	}
}
