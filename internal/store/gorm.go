package store

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"tripfund/internal/models"
)

// GormStore is the Postgres-backed Store implementation.
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) CreateConfiguration(ctx context.Context, cfg *models.PaymentConfig) error {
	err := s.db.WithContext(ctx).Create(cfg).Error
	if err != nil {
		// The unique index on trip_id is the authority; a lost race between
		// the existence check in the coordinator and this insert lands here.
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrAlreadyExists
		}
		return err
	}
	return nil
}

func (s *GormStore) GetConfiguration(ctx context.Context, tripID string) (*models.PaymentConfig, error) {
	var cfg models.PaymentConfig
	err := s.db.WithContext(ctx).Where("trip_id = ?", tripID).First(&cfg).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &cfg, nil
}

func (s *GormStore) AttachVirtualCard(ctx context.Context, tripID string, card CardDetails) (*models.PaymentConfig, error) {
	var out *models.PaymentConfig
	var attachErr error

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var cfg models.PaymentConfig
		if err := tx.Where("trip_id = ?", tripID).First(&cfg).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}

		if cfg.HasVirtualCard() {
			out = &cfg
			attachErr = ErrAlreadyAttached
			return nil
		}

		// Guarded update: only the first attach wins.
		res := tx.Model(&models.PaymentConfig{}).
			Where("trip_id = ? AND virtual_card_ref IS NULL", tripID).
			Updates(map[string]interface{}{
				"virtual_card_ref":       card.Ref,
				"virtual_card_last_four": card.LastFour,
				"virtual_card_brand":     card.Brand,
				"virtual_card_exp_month": card.ExpMonth,
				"virtual_card_exp_year":  card.ExpYear,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			if err := tx.Where("trip_id = ?", tripID).First(&cfg).Error; err != nil {
				return err
			}
			out = &cfg
			attachErr = ErrAlreadyAttached
			return nil
		}

		if err := tx.Where("trip_id = ?", tripID).First(&cfg).Error; err != nil {
			return err
		}
		out = &cfg
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, attachErr
}

func (s *GormStore) CreatePending(ctx context.Context, rec *models.ParticipantPayment) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var latest models.ParticipantPayment
		err := tx.Where("trip_id = ? AND participant_id = ?", rec.TripID, rec.ParticipantID).
			Order("id desc").First(&latest).Error
		if err == nil && blocksNewAttempt(latest.Status) {
			return ErrAlreadyExists
		}
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		rec.Status = models.PaymentStatusPending
		return tx.Create(rec).Error
	})
}

// blocksNewAttempt reports whether an existing record forbids a new join
// attempt: a live record (pending/authorized) or a captured seat does;
// failed and voided records are audit history.
func blocksNewAttempt(status models.PaymentStatus) bool {
	return !status.Terminal() || status == models.PaymentStatusCaptured
}

func (s *GormStore) MarkAuthorized(ctx context.Context, tripID, participantID, holdRef string) (*models.ParticipantPayment, error) {
	return s.markStatus(ctx, tripID, participantID, models.PaymentStatusAuthorized, map[string]interface{}{
		"status":   models.PaymentStatusAuthorized,
		"hold_ref": holdRef,
	})
}

func (s *GormStore) MarkFailed(ctx context.Context, tripID, participantID string) (*models.ParticipantPayment, error) {
	return s.markStatus(ctx, tripID, participantID, models.PaymentStatusFailed, map[string]interface{}{
		"status": models.PaymentStatusFailed,
	})
}

func (s *GormStore) MarkVoided(ctx context.Context, tripID, participantID string) (*models.ParticipantPayment, error) {
	return s.markStatus(ctx, tripID, participantID, models.PaymentStatusVoided, map[string]interface{}{
		"status": models.PaymentStatusVoided,
	})
}

func (s *GormStore) markStatus(ctx context.Context, tripID, participantID string, next models.PaymentStatus, updates map[string]interface{}) (*models.ParticipantPayment, error) {
	var out models.ParticipantPayment

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rec models.ParticipantPayment
		err := tx.Where("trip_id = ? AND participant_id = ?", tripID, participantID).
			Order("id desc").First(&rec).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}

		if !rec.Status.CanTransitionTo(next) {
			return ErrInvalidTransition
		}

		// Guard on the source status so a concurrent transition surfaces as
		// a conflict instead of a silent overwrite.
		res := tx.Model(&models.ParticipantPayment{}).
			Where("id = ? AND status = ?", rec.ID, rec.Status).
			Updates(updates)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrInvalidTransition
		}

		if err := tx.First(&rec, rec.ID).Error; err != nil {
			return err
		}
		out = rec
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *GormStore) ListByTrip(ctx context.Context, tripID string) ([]models.ParticipantPayment, error) {
	var recs []models.ParticipantPayment
	err := s.db.WithContext(ctx).Where("trip_id = ?", tripID).Order("id asc").Find(&recs).Error
	if err != nil {
		return nil, err
	}
	return recs, nil
}

func (s *GormStore) LatestByParticipant(ctx context.Context, tripID, participantID string) (*models.ParticipantPayment, error) {
	var rec models.ParticipantPayment
	err := s.db.WithContext(ctx).Where("trip_id = ? AND participant_id = ?", tripID, participantID).
		Order("id desc").First(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &rec, nil
}

func (s *GormStore) ListPendingOlderThan(ctx context.Context, cutoff time.Time) ([]models.ParticipantPayment, error) {
	var recs []models.ParticipantPayment
	err := s.db.WithContext(ctx).
		Where("status = ? AND created_at < ?", models.PaymentStatusPending, cutoff).
		Order("id asc").Find(&recs).Error
	if err != nil {
		return nil, err
	}
	return recs, nil
}

func (s *GormStore) Snapshot(ctx context.Context, tripID string) (*models.PaymentConfig, []models.ParticipantPayment, error) {
	var cfg models.PaymentConfig
	var recs []models.ParticipantPayment

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("trip_id = ?", tripID).First(&cfg).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		return tx.Where("trip_id = ?", tripID).Order("id asc").Find(&recs).Error
	})
	if err != nil {
		return nil, nil, err
	}
	return &cfg, recs, nil
}

func (s *GormStore) AppendEvent(ctx context.Context, ev *models.GatewayEvent) error {
	return s.db.WithContext(ctx).Create(ev).Error
}
