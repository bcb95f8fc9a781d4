// internal/realtime/registry.go
package realtime

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// PendingUserID marks a session whose client has not registered yet.
const PendingUserID = "pending"

type Session struct {
	SocketID          string    `json:"socket_id"`
	UserID            string    `json:"user_id"`
	ConnectedAt       time.Time `json:"connected_at"`
	LastActivity      time.Time `json:"last_activity"`
	ReconnectAttempts int       `json:"reconnect_attempts"`
	Idle              bool      `json:"idle"`
}

// Registry indexes live sessions by socket id and by user id. A user id is
// in byUser only if the socket it points to is in bySocket with that user.
// Pending sessions are never indexed by user.
type Registry struct {
	mu       sync.RWMutex
	bySocket map[string]*Session
	byUser   map[string]string

	sweepInterval        time.Duration
	maxReconnectAttempts int
	onEvict              func(Session)
	now                  func() time.Time

	cancel context.CancelFunc
	done   chan struct{}
}

func NewRegistry(sweepInterval time.Duration, maxReconnectAttempts int) *Registry {
	if sweepInterval <= 0 {
		sweepInterval = 60 * time.Second
	}
	if maxReconnectAttempts <= 0 {
		maxReconnectAttempts = 10
	}
	return &Registry{
		bySocket:             make(map[string]*Session),
		byUser:               make(map[string]string),
		sweepInterval:        sweepInterval,
		maxReconnectAttempts: maxReconnectAttempts,
		now:                  time.Now,
	}
}

// OnEvict sets the callback run after a session is evicted for exceeding
// the reconnect ceiling. It is called without the registry lock held.
func (r *Registry) OnEvict(fn func(Session)) {
	r.mu.Lock()
	r.onEvict = fn
	r.mu.Unlock()
}

// RegisterUser inserts or replaces the session for s.SocketID.
func (r *Registry) RegisterUser(s Session) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s.UserID == "" {
		s.UserID = PendingUserID
	}
	now := r.now()
	if s.ConnectedAt.IsZero() {
		s.ConnectedAt = now
	}
	if s.LastActivity.IsZero() {
		s.LastActivity = now
	}

	if existing, ok := r.bySocket[s.SocketID]; ok {
		r.removeLocked(existing.SocketID)
	}

	session := s
	r.bySocket[s.SocketID] = &session
	if s.UserID != PendingUserID {
		r.byUser[s.UserID] = s.SocketID
	}

	logrus.WithFields(logrus.Fields{
		"socket_id": s.SocketID,
		"user_id":   s.UserID,
	}).Debug("Session registered")
}

// RemoveUser drops a session. Unknown ids are logged and ignored.
func (r *Registry) RemoveUser(socketID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.removeLocked(socketID) {
		logrus.WithField("socket_id", socketID).Debug("Remove of unknown session ignored")
		return false
	}
	return true
}

func (r *Registry) removeLocked(socketID string) bool {
	session, ok := r.bySocket[socketID]
	if !ok {
		return false
	}
	delete(r.bySocket, socketID)

	if r.byUser[session.UserID] == socketID {
		delete(r.byUser, session.UserID)
		// Point the user at another live session of theirs, newest activity first.
		var next *Session
		for _, other := range r.bySocket {
			if other.UserID != session.UserID {
				continue
			}
			if next == nil || other.LastActivity.After(next.LastActivity) {
				next = other
			}
		}
		if next != nil {
			r.byUser[session.UserID] = next.SocketID
		}
	}
	return true
}

func (r *Registry) GetUserBySocketID(socketID string) (Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	session, ok := r.bySocket[socketID]
	if !ok {
		return Session{}, false
	}
	return *session, true
}

func (r *Registry) GetUserByUserID(userID string) (Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	socketID, ok := r.byUser[userID]
	if !ok {
		return Session{}, false
	}
	session, ok := r.bySocket[socketID]
	if !ok {
		return Session{}, false
	}
	return *session, true
}

func (r *Registry) IsUserActive(userID string) bool {
	_, ok := r.GetUserByUserID(userID)
	return ok
}

// UpdateUserActivity refreshes the activity time and clears the reconnect counter.
func (r *Registry) UpdateUserActivity(socketID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	session, ok := r.bySocket[socketID]
	if !ok {
		return false
	}
	session.LastActivity = r.now()
	session.ReconnectAttempts = 0
	session.Idle = false
	return true
}

// IncrementReconnectAttempts bumps the failure counter and evicts the
// session once it exceeds the ceiling.
func (r *Registry) IncrementReconnectAttempts(socketID string) (int, bool) {
	r.mu.Lock()
	session, ok := r.bySocket[socketID]
	if !ok {
		r.mu.Unlock()
		return 0, false
	}
	session.ReconnectAttempts++
	attempts := session.ReconnectAttempts
	if attempts <= r.maxReconnectAttempts {
		r.mu.Unlock()
		return attempts, false
	}

	evicted := *session
	r.removeLocked(socketID)
	onEvict := r.onEvict
	r.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"socket_id": socketID,
		"user_id":   evicted.UserID,
		"attempts":  attempts,
	}).Warn("Evicting session after too many failed deliveries")

	if onEvict != nil {
		onEvict(evicted)
	}
	return attempts, true
}

// All returns a snapshot of every session ordered by connection time.
func (r *Registry) All() []Session {
	r.mu.RLock()
	sessions := make([]Session, 0, len(r.bySocket))
	for _, session := range r.bySocket {
		sessions = append(sessions, *session)
	}
	r.mu.RUnlock()

	sort.Slice(sessions, func(i, j int) bool {
		if sessions[i].ConnectedAt.Equal(sessions[j].ConnectedAt) {
			return sessions[i].SocketID < sessions[j].SocketID
		}
		return sessions[i].ConnectedAt.Before(sessions[j].ConnectedAt)
	})
	return sessions
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.bySocket)
}

// Start runs the idle sweep until ctx is done or Stop is called.
func (r *Registry) Start(ctx context.Context) {
	r.mu.Lock()
	if r.cancel != nil {
		r.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.done = make(chan struct{})
	done := r.done
	r.mu.Unlock()

	go func() {
		defer close(done)
		ticker := time.NewTicker(r.sweepInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.Sweep()
			}
		}
	}()
}

func (r *Registry) Stop() {
	r.mu.Lock()
	cancel, done := r.cancel, r.done
	r.cancel, r.done = nil, nil
	r.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}

// Sweep flags sessions idle for longer than the sweep interval. It never removes them.
func (r *Registry) Sweep() []Session {
	r.mu.Lock()
	now := r.now()
	var flagged []Session
	for _, session := range r.bySocket {
		if now.Sub(session.LastActivity) > r.sweepInterval {
			session.Idle = true
			flagged = append(flagged, *session)
		}
	}
	r.mu.Unlock()

	for _, session := range flagged {
		logrus.WithFields(logrus.Fields{
			"socket_id":     session.SocketID,
			"user_id":       session.UserID,
			"last_activity": session.LastActivity,
		}).Warn("Session inactive")
	}
	return flagged
}
