package store

import (
	"context"
	"sync"
	"time"

	"tripfund/internal/models"
)

// MemoryStore is a mutex-guarded in-memory Store with the same semantics as
// GormStore. It backs the test suite and local development without Postgres.
type MemoryStore struct {
	mu      sync.RWMutex
	nextID  uint
	configs map[string]*models.PaymentConfig       // keyed by trip ID
	records map[string][]*models.ParticipantPayment // keyed by trip ID, append order
	events  []*models.GatewayEvent
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		configs: make(map[string]*models.PaymentConfig),
		records: make(map[string][]*models.ParticipantPayment),
	}
}

func (s *MemoryStore) CreateConfiguration(ctx context.Context, cfg *models.PaymentConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.configs[cfg.TripID]; ok {
		return ErrAlreadyExists
	}

	s.nextID++
	cfg.ID = s.nextID
	cfg.CreatedAt = time.Now()
	cfg.UpdatedAt = cfg.CreatedAt

	cp := *cfg
	s.configs[cfg.TripID] = &cp
	return nil
}

func (s *MemoryStore) GetConfiguration(ctx context.Context, tripID string) (*models.PaymentConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cfg, ok := s.configs[tripID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *cfg
	return &cp, nil
}

func (s *MemoryStore) AttachVirtualCard(ctx context.Context, tripID string, card CardDetails) (*models.PaymentConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cfg, ok := s.configs[tripID]
	if !ok {
		return nil, ErrNotFound
	}

	if cfg.HasVirtualCard() {
		cp := *cfg
		return &cp, ErrAlreadyAttached
	}

	ref := card.Ref
	cfg.VirtualCardRef = &ref
	cfg.VirtualCardLastFour = card.LastFour
	cfg.VirtualCardBrand = card.Brand
	cfg.VirtualCardExpMonth = card.ExpMonth
	cfg.VirtualCardExpYear = card.ExpYear
	cfg.UpdatedAt = time.Now()

	cp := *cfg
	return &cp, nil
}

func (s *MemoryStore) CreatePending(ctx context.Context, rec *models.ParticipantPayment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if latest := s.latestLocked(rec.TripID, rec.ParticipantID); latest != nil && blocksNewAttempt(latest.Status) {
		return ErrAlreadyExists
	}

	s.nextID++
	rec.ID = s.nextID
	rec.Status = models.PaymentStatusPending
	rec.CreatedAt = time.Now()
	rec.UpdatedAt = rec.CreatedAt

	cp := *rec
	s.records[rec.TripID] = append(s.records[rec.TripID], &cp)
	return nil
}

func (s *MemoryStore) MarkAuthorized(ctx context.Context, tripID, participantID, holdRef string) (*models.ParticipantPayment, error) {
	return s.markStatus(tripID, participantID, models.PaymentStatusAuthorized, func(rec *models.ParticipantPayment) {
		rec.HoldRef = holdRef
	})
}

func (s *MemoryStore) MarkFailed(ctx context.Context, tripID, participantID string) (*models.ParticipantPayment, error) {
	return s.markStatus(tripID, participantID, models.PaymentStatusFailed, nil)
}

func (s *MemoryStore) MarkVoided(ctx context.Context, tripID, participantID string) (*models.ParticipantPayment, error) {
	return s.markStatus(tripID, participantID, models.PaymentStatusVoided, nil)
}

func (s *MemoryStore) markStatus(tripID, participantID string, next models.PaymentStatus, mutate func(*models.ParticipantPayment)) (*models.ParticipantPayment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := s.latestLocked(tripID, participantID)
	if rec == nil {
		return nil, ErrNotFound
	}
	if !rec.Status.CanTransitionTo(next) {
		return nil, ErrInvalidTransition
	}

	rec.Status = next
	if mutate != nil {
		mutate(rec)
	}
	rec.UpdatedAt = time.Now()

	cp := *rec
	return &cp, nil
}

func (s *MemoryStore) latestLocked(tripID, participantID string) *models.ParticipantPayment {
	recs := s.records[tripID]
	for i := len(recs) - 1; i >= 0; i-- {
		if recs[i].ParticipantID == participantID {
			return recs[i]
		}
	}
	return nil
}

func (s *MemoryStore) ListByTrip(ctx context.Context, tripID string) ([]models.ParticipantPayment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listLocked(tripID), nil
}

func (s *MemoryStore) listLocked(tripID string) []models.ParticipantPayment {
	recs := s.records[tripID]
	out := make([]models.ParticipantPayment, 0, len(recs))
	for _, r := range recs {
		out = append(out, *r)
	}
	return out
}

func (s *MemoryStore) LatestByParticipant(ctx context.Context, tripID, participantID string) (*models.ParticipantPayment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec := s.latestLocked(tripID, participantID)
	if rec == nil {
		return nil, ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

func (s *MemoryStore) ListPendingOlderThan(ctx context.Context, cutoff time.Time) ([]models.ParticipantPayment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.ParticipantPayment
	for _, recs := range s.records {
		for _, r := range recs {
			if r.Status == models.PaymentStatusPending && r.CreatedAt.Before(cutoff) {
				out = append(out, *r)
			}
		}
	}
	return out, nil
}

func (s *MemoryStore) Snapshot(ctx context.Context, tripID string) (*models.PaymentConfig, []models.ParticipantPayment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cfg, ok := s.configs[tripID]
	if !ok {
		return nil, nil, ErrNotFound
	}
	cp := *cfg
	return &cp, s.listLocked(tripID), nil
}

func (s *MemoryStore) AppendEvent(ctx context.Context, ev *models.GatewayEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	ev.ID = s.nextID
	ev.CreatedAt = time.Now()

	cp := *ev
	s.events = append(s.events, &cp)
	return nil
}

// Events returns the recorded audit rows. Test helper.
func (s *MemoryStore) Events() []models.GatewayEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.GatewayEvent, 0, len(s.events))
	for _, ev := range s.events {
		out = append(out, *ev)
	}
	return out
}
