package wizard

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"onboard/internal/domain"
	"onboard/internal/draft"
	"onboard/internal/metrics"
	"onboard/pkg/errors"
	"onboard/pkg/logger"
)

// Resolution failure reasons, carried to the error page as ?reason=.
const (
	ReasonMissingID       = "missing_id"
	ReasonInvalidID       = "invalid_id"
	ReasonValidationError = "validation_error"
	ReasonUnknown         = "unknown"
)

// ResolutionError ends a session before any field is shown.
type ResolutionError struct {
	Reason string
	Err    error
}

func (e *ResolutionError) Error() string {
	if e.Err != nil {
		return "distributor resolution failed (" + e.Reason + "): " + e.Err.Error()
	}
	return "distributor resolution failed (" + e.Reason + ")"
}

func (e *ResolutionError) Unwrap() error { return e.Err }

// Redirect is the error page the client should navigate to.
func (e *ResolutionError) Redirect() string {
	return "/error?reason=" + e.Reason
}

// ReasonOf returns the resolution reason carried by err, or "unknown".
func ReasonOf(err error) string {
	var re *ResolutionError
	if errors.As(err, &re) && re.Reason != "" {
		return re.Reason
	}
	return ReasonUnknown
}

// StartRequest opens a new session or resumes an existing one.
type StartRequest struct {
	DistributorID string
	// ClientID switches the session to edit mode for an existing client.
	ClientID string
	// SessionID resumes a live session or restores its saved draft.
	SessionID string
	UserID    *uuid.UUID
}

type Options struct {
	Policy  Policy
	IdleTTL time.Duration
	Metrics *metrics.Metrics
	// Now is overridden in tests.
	Now func() time.Time
}

// Manager owns the live wizard sessions.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Controller

	remote  Remote
	drafts  draft.Store
	logger  logger.Logger
	policy  Policy
	idleTTL time.Duration
	metrics *metrics.Metrics
	now     func() time.Time
}

func NewManager(remote Remote, drafts draft.Store, log logger.Logger, opts Options) *Manager {
	if opts.Policy.predicates == nil {
		opts.Policy = StrictPolicy()
	}
	if opts.IdleTTL <= 0 {
		opts.IdleTTL = 2 * time.Hour
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Manager{
		sessions: make(map[string]*Controller),
		remote:   remote,
		drafts:   drafts,
		logger:   log,
		policy:   opts.Policy,
		idleTTL:  opts.IdleTTL,
		metrics:  opts.Metrics,
		now:      opts.Now,
	}
}

// Start resolves the distributor and returns a session positioned on the first
// step. In edit mode the stored client is loaded as the draft; otherwise a
// saved draft for the session id is restored when one exists.
func (m *Manager) Start(ctx context.Context, req StartRequest) (*Controller, error) {
	distributorID := strings.TrimSpace(req.DistributorID)
	if distributorID == "" {
		return nil, &ResolutionError{Reason: ReasonMissingID}
	}

	dist, err := m.remote.ResolveDistributor(ctx, distributorID)
	if err != nil {
		if errors.Is(err, errors.ErrDistributorNotFound) {
			return nil, &ResolutionError{Reason: ReasonInvalidID, Err: err}
		}
		m.logger.Error("Distributor lookup failed", map[string]interface{}{
			"distributor_id": distributorID,
			"error":          err.Error(),
		})
		return nil, &ResolutionError{Reason: ReasonValidationError, Err: err}
	}

	mode := domain.SubmitModeCreate
	if req.ClientID != "" {
		mode = domain.SubmitModeEdit
	}

	if req.SessionID != "" {
		if _, err := uuid.Parse(req.SessionID); err != nil {
			return nil, errors.ErrSessionNotFound
		}
		if c, ok := m.lookup(req.SessionID); ok {
			if c.resumable(dist.ID, mode, req.ClientID, req.UserID) {
				return c, nil
			}
		}
	}

	c := m.newController(dist, mode, req.UserID)
	if req.SessionID != "" && mode == domain.SubmitModeCreate {
		c.id = req.SessionID
	}

	switch mode {
	case domain.SubmitModeEdit:
		rec, err := m.remote.LoadClientForEdit(ctx, req.ClientID)
		if err != nil {
			if errors.Is(err, errors.ErrClientNotFound) {
				return nil, &ResolutionError{Reason: ReasonInvalidID, Err: err}
			}
			return nil, &ResolutionError{Reason: ReasonValidationError, Err: err}
		}
		// Unknown, foreign and unowned clients all look the same to the caller.
		if rec.DistributorID != dist.ID || !ownedBy(rec, req.UserID) {
			m.logger.Warn("Edit refused", map[string]interface{}{
				"distributor_id": dist.ID,
				"client_id":      req.ClientID,
				"signed_in":      req.UserID != nil,
			})
			return nil, &ResolutionError{Reason: ReasonInvalidID, Err: errors.ErrClientNotFound}
		}
		c.draft = rec.ToDraft()
		c.clientID = req.ClientID
	default:
		if saved, ok := m.drafts.Load(ctx, c.id); ok {
			c.draft = saved
		}
	}

	m.mu.Lock()
	m.sessions[c.id] = c
	m.mu.Unlock()

	m.metrics.IncrementSessionStarted(string(mode))
	m.logger.Info("Form session started", map[string]interface{}{
		"session_id":     c.id,
		"distributor_id": dist.ID,
		"mode":           string(mode),
	})
	return c, nil
}

// ownedBy reports whether the signed-in user may edit the client. Anonymous
// callers never own a client.
func ownedBy(rec *domain.ClientRecord, userID *uuid.UUID) bool {
	return userID != nil && rec.UserID != nil && *rec.UserID == *userID
}

func (m *Manager) newController(dist *domain.Distributor, mode domain.SubmitMode, userID *uuid.UUID) *Controller {
	return &Controller{
		id:          uuid.NewString(),
		distributor: *dist,
		userID:      userID,
		mode:        mode,
		step:        FirstStep,
		draft:       domain.NewFormDraft(),
		errors:      map[string]string{},
		staged:      map[ImageSlot]domain.ImageUpload{},
		touched:     m.now(),
		policy:      m.policy,
		remote:      m.remote,
		drafts:      m.drafts,
		logger:      m.logger,
		metrics:     m.metrics,
		now:         m.now,
	}
}

// Get returns a live session.
func (m *Manager) Get(id string) (*Controller, error) {
	c, ok := m.lookup(id)
	if !ok {
		return nil, errors.ErrSessionNotFound
	}
	return c, nil
}

func (m *Manager) lookup(id string) (*Controller, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.sessions[id]
	return c, ok
}

// Len reports the number of live sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// completedGrace keeps a finished session readable for a short while.
const completedGrace = time.Minute

// Evict drops completed sessions and sessions idle for longer than the TTL.
// Sessions with a submit in flight are kept. Saved drafts stay in the store.
func (m *Manager) Evict() int {
	now := m.now()
	cutoff := now.Add(-m.idleTTL)
	doneCutoff := now.Add(-completedGrace)

	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for id, c := range m.sessions {
		completed, busy := c.isDone()
		if busy {
			continue
		}
		touched := c.lastTouched()
		if (completed && touched.Before(doneCutoff)) || touched.Before(cutoff) {
			delete(m.sessions, id)
			removed++
		}
	}
	return removed
}

// Run evicts on every tick until ctx is cancelled.
func (m *Manager) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := m.Evict(); n > 0 {
				m.logger.Debug("Evicted form sessions", map[string]interface{}{"count": n})
			}
		}
	}
}
