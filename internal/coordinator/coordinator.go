package coordinator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"tripfund/internal/gateway"
	"tripfund/internal/models"
	"tripfund/internal/store"
)

// DefaultGatewayTimeout bounds a single gateway interaction, and with it the
// per-trip critical section. Deployments sizing lock TTLs use the same value.
const DefaultGatewayTimeout = 30 * time.Second

const (
	defaultRetryAttempts = 3
	defaultRetryBackoff  = 500 * time.Millisecond
)

// Coordinator serializes all mutations of a trip's payment state and
// orchestrates the gateway calls. The per-trip critical section spans the
// external call on the join and remove paths: the pending ledger record must
// exist before the hold is placed so a concurrent join cannot miss it.
type Coordinator struct {
	store   store.Store
	gateway gateway.Gateway
	locker  Locker

	gatewayTimeout time.Duration
	retryAttempts  int
	retryBackoff   time.Duration
}

// Params configures a Coordinator. Zero values fall back to defaults.
type Params struct {
	Store   store.Store
	Gateway gateway.Gateway
	Locker  Locker

	GatewayTimeout time.Duration
	RetryAttempts  int
	RetryBackoff   time.Duration
}

func New(p Params) *Coordinator {
	c := &Coordinator{
		store:          p.Store,
		gateway:        p.Gateway,
		locker:         p.Locker,
		gatewayTimeout: p.GatewayTimeout,
		retryAttempts:  p.RetryAttempts,
		retryBackoff:   p.RetryBackoff,
	}
	if c.locker == nil {
		c.locker = NewKeyedMutex()
	}
	if c.gatewayTimeout <= 0 {
		c.gatewayTimeout = DefaultGatewayTimeout
	}
	if c.retryAttempts <= 0 {
		c.retryAttempts = defaultRetryAttempts
	}
	if c.retryBackoff <= 0 {
		c.retryBackoff = defaultRetryBackoff
	}
	return c
}

// SetupParams is the host's payment configuration request for a trip.
type SetupParams struct {
	TripID          string
	HostID          string
	TotalCost       int64
	Currency        string
	MinParticipants int
}

// Setup creates the trip's payment configuration. When one already exists
// the existing configuration is returned with created=false; callers treat
// that as success rather than erroring the user flow.
func (c *Coordinator) Setup(ctx context.Context, p SetupParams) (*models.PaymentConfig, bool, error) {
	if p.TripID == "" || p.HostID == "" {
		return nil, false, fmt.Errorf("%w: trip_id and host_id are required", ErrInvalidArgument)
	}
	if p.TotalCost <= 0 {
		return nil, false, fmt.Errorf("%w: total_cost must be positive", ErrInvalidArgument)
	}
	if p.MinParticipants < 2 {
		return nil, false, fmt.Errorf("%w: min_participants must be at least 2", ErrInvalidArgument)
	}
	if p.Currency == "" {
		p.Currency = "usd"
	}
	if len(p.Currency) != 3 {
		return nil, false, fmt.Errorf("%w: currency must be a 3-letter code", ErrInvalidArgument)
	}

	unlock, err := c.locker.Lock(ctx, p.TripID)
	if err != nil {
		return nil, false, err
	}
	defer unlock()

	cfg := &models.PaymentConfig{
		TripID:          p.TripID,
		HostID:          p.HostID,
		TotalCost:       p.TotalCost,
		Currency:        p.Currency,
		MinParticipants: p.MinParticipants,
		PerSeatAmount:   models.PerSeatFor(p.TotalCost, p.MinParticipants),
	}

	err = c.store.CreateConfiguration(ctx, cfg)
	if errors.Is(err, store.ErrAlreadyExists) {
		existing, getErr := c.store.GetConfiguration(ctx, p.TripID)
		if getErr != nil {
			return nil, false, getErr
		}
		return existing, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return cfg, true, nil
}

// JoinResult is returned to a participant whose hold was placed.
type JoinResult struct {
	HoldRef      string
	ClientSecret string
	Amount       int64
	Currency     string
	Threshold    ThresholdView
}

// JoinWithPayment creates a pending ledger record for the participant and
// places a preauthorization hold for the configured per-seat amount. On
// decline the record is marked failed and the reason surfaced; on timeout
// the record stays pending for reconciliation.
func (c *Coordinator) JoinWithPayment(ctx context.Context, tripID, participantID, paymentMethod string) (*JoinResult, error) {
	if tripID == "" || participantID == "" {
		return nil, fmt.Errorf("%w: trip_id and participant_id are required", ErrInvalidArgument)
	}

	unlock, err := c.locker.Lock(ctx, tripID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	cfg, err := c.store.GetConfiguration(ctx, tripID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrConfigurationMissing
		}
		return nil, err
	}

	latest, err := c.store.LatestByParticipant(ctx, tripID, participantID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}
	if latest != nil {
		switch latest.Status {
		case models.PaymentStatusPending:
			return nil, ErrAlreadyPending
		case models.PaymentStatusAuthorized, models.PaymentStatusCaptured:
			return nil, ErrAlreadyAuthorized
		}
	}

	// The reference is assigned before the external call: it is both the
	// gateway idempotency key and the handle reconciliation looks up later.
	rec := &models.ParticipantPayment{
		TripID:        tripID,
		ParticipantID: participantID,
		Amount:        cfg.PerSeatAmount,
		Currency:      cfg.Currency,
		Reference:     fmt.Sprintf("join-%s-%s-%s", tripID, participantID, uuid.New().String()),
	}
	if err := c.store.CreatePending(ctx, rec); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			return nil, ErrAlreadyPending
		}
		return nil, err
	}

	gctx, cancel := context.WithTimeout(ctx, c.gatewayTimeout)
	defer cancel()

	var hold *gateway.Hold
	err = gateway.WithBackoff(gctx, c.retryAttempts, c.retryBackoff, func() error {
		h, herr := c.gateway.PlaceHold(gctx, &gateway.HoldRequest{
			Amount:        rec.Amount,
			Currency:      rec.Currency,
			Reference:     rec.Reference,
			Description:   fmt.Sprintf("Trip %s seat payment", tripID),
			PaymentMethod: paymentMethod,
		})
		if herr != nil {
			return herr
		}
		hold = h
		return nil
	})
	if err != nil {
		return nil, c.resolveHoldFailure(ctx, tripID, participantID, rec.Reference, err)
	}

	if _, err := c.store.MarkAuthorized(ctx, tripID, participantID, hold.Ref); err != nil {
		if errors.Is(err, store.ErrInvalidTransition) {
			log.Printf("ERROR: invalid transition marking %s/%s authorized; locking defect?", tripID, participantID)
		}
		return nil, err
	}

	c.audit(ctx, tripID, models.GatewayEventHoldPlaced, rec.Reference, map[string]interface{}{
		"hold_ref": hold.Ref,
		"amount":   rec.Amount,
		"currency": rec.Currency,
	})

	view, err := c.thresholdFor(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if view.ThresholdMet {
		log.Printf("trip %s: funding threshold met (%d/%d)", tripID, view.CurrentParticipants, view.MinParticipants)
	}

	return &JoinResult{
		HoldRef:      hold.Ref,
		ClientSecret: hold.ClientSecret,
		Amount:       rec.Amount,
		Currency:     rec.Currency,
		Threshold:    view,
	}, nil
}

// resolveHoldFailure translates a gateway failure on the join path. Timeouts
// leave the record pending (the hold may exist); everything else marks the
// record failed so the participant can retry.
func (c *Coordinator) resolveHoldFailure(ctx context.Context, tripID, participantID, reference string, err error) error {
	if errors.Is(err, gateway.ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
		log.Printf("trip %s: gateway timeout for %s, record left pending for reconciliation", tripID, participantID)
		return fmt.Errorf("%w: %v", ErrGatewayTimeout, err)
	}

	if _, markErr := c.store.MarkFailed(ctx, tripID, participantID); markErr != nil {
		log.Printf("ERROR: marking %s/%s failed after gateway error: %v", tripID, participantID, markErr)
	}

	var declined *gateway.DeclinedError
	if errors.As(err, &declined) {
		c.audit(ctx, tripID, models.GatewayEventDeclined, reference, map[string]interface{}{
			"reason": declined.Reason,
		})
		return &PaymentFailedError{Reason: declined.Reason, Err: err}
	}
	return &PaymentFailedError{Reason: "payment could not be processed", Err: err}
}

// RemoveParticipant voids the participant's authorized hold. Host only.
// Removal is never blocked by an already-issued virtual card; the threshold
// view simply reports the trip as under-funded afterwards.
func (c *Coordinator) RemoveParticipant(ctx context.Context, tripID, participantID, actorID string) (ThresholdView, error) {
	var view ThresholdView
	if tripID == "" || participantID == "" {
		return view, fmt.Errorf("%w: trip_id and participant_id are required", ErrInvalidArgument)
	}

	unlock, err := c.locker.Lock(ctx, tripID)
	if err != nil {
		return view, err
	}
	defer unlock()

	cfg, err := c.store.GetConfiguration(ctx, tripID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return view, ErrConfigurationMissing
		}
		return view, err
	}
	if cfg.HostID != actorID {
		return view, ErrNotHost
	}

	rec, err := c.store.LatestByParticipant(ctx, tripID, participantID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return view, ErrNothingToRemove
		}
		return view, err
	}
	switch rec.Status {
	case models.PaymentStatusAuthorized:
		// proceed
	case models.PaymentStatusVoided, models.PaymentStatusCaptured:
		return view, ErrAlreadyFinal
	default:
		return view, ErrNothingToRemove
	}

	gctx, cancel := context.WithTimeout(ctx, c.gatewayTimeout)
	defer cancel()

	err = gateway.WithBackoff(gctx, c.retryAttempts, c.retryBackoff, func() error {
		return c.gateway.VoidHold(gctx, rec.HoldRef)
	})
	if err != nil {
		if errors.Is(err, gateway.ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
			return view, fmt.Errorf("%w: %v", ErrGatewayTimeout, err)
		}
		return view, fmt.Errorf("void hold %s: %w", rec.HoldRef, err)
	}

	if _, err := c.store.MarkVoided(ctx, tripID, participantID); err != nil {
		if errors.Is(err, store.ErrInvalidTransition) {
			log.Printf("ERROR: invalid transition voiding %s/%s; locking defect?", tripID, participantID)
		}
		return view, err
	}

	c.audit(ctx, tripID, models.GatewayEventHoldVoided, rec.Reference, map[string]interface{}{
		"hold_ref": rec.HoldRef,
	})

	view, err = c.thresholdFor(ctx, cfg)
	if err != nil {
		return view, err
	}
	if cfg.HasVirtualCard() && !view.ThresholdMet {
		log.Printf("trip %s: below minimum after removal (%d/%d) with card %s already issued",
			tripID, view.CurrentParticipants, view.MinParticipants, *cfg.VirtualCardRef)
	}
	return view, nil
}

// CardResult describes the trip's virtual card.
type CardResult struct {
	CardRef       string
	LastFour      string
	Brand         string
	ExpMonth      int
	ExpYear       int
	FundedAmount  int64
	Currency      string
	AlreadyExists bool
}

// IssueVirtualCard issues the trip's funding card once the threshold is met.
// Idempotent: once a card exists it is returned as-is, never reissued. The
// card is funded at the configured total cost, not the sum of holds.
func (c *Coordinator) IssueVirtualCard(ctx context.Context, tripID, actorID string) (*CardResult, error) {
	if tripID == "" {
		return nil, fmt.Errorf("%w: trip_id is required", ErrInvalidArgument)
	}

	unlock, err := c.locker.Lock(ctx, tripID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	cfg, err := c.store.GetConfiguration(ctx, tripID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrConfigurationMissing
		}
		return nil, err
	}
	if cfg.HostID != actorID {
		return nil, ErrNotHost
	}

	if cfg.HasVirtualCard() {
		return cardResultFrom(cfg, true), nil
	}

	view, err := c.thresholdFor(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if !view.ThresholdMet {
		return nil, &ThresholdNotMetError{Current: view.CurrentParticipants, Required: view.MinParticipants}
	}

	gctx, cancel := context.WithTimeout(ctx, c.gatewayTimeout)
	defer cancel()

	var card *gateway.VirtualCard
	err = gateway.WithBackoff(gctx, c.retryAttempts, c.retryBackoff, func() error {
		vc, cerr := c.gateway.IssueVirtualCard(gctx, cfg.TotalCost, cfg.Currency)
		if cerr != nil {
			return cerr
		}
		card = vc
		return nil
	})
	if err != nil {
		if errors.Is(err, gateway.ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %v", ErrGatewayTimeout, err)
		}
		return nil, fmt.Errorf("issue virtual card: %w", err)
	}

	attached, err := c.store.AttachVirtualCard(ctx, tripID, store.CardDetails{
		Ref:      card.Ref,
		LastFour: card.LastFour,
		Brand:    card.Brand,
		ExpMonth: card.ExpMonth,
		ExpYear:  card.ExpYear,
	})
	if errors.Is(err, store.ErrAlreadyAttached) {
		// Lost an attach race; the stored card wins.
		return cardResultFrom(attached, true), nil
	}
	if err != nil {
		return nil, err
	}

	c.audit(ctx, tripID, models.GatewayEventCardIssued, card.Ref, map[string]interface{}{
		"funded_amount": cfg.TotalCost,
		"currency":      cfg.Currency,
		"last_four":     card.LastFour,
	})

	return cardResultFrom(attached, false), nil
}

func cardResultFrom(cfg *models.PaymentConfig, alreadyExists bool) *CardResult {
	res := &CardResult{
		LastFour:      cfg.VirtualCardLastFour,
		Brand:         cfg.VirtualCardBrand,
		ExpMonth:      cfg.VirtualCardExpMonth,
		ExpYear:       cfg.VirtualCardExpYear,
		FundedAmount:  cfg.TotalCost,
		Currency:      cfg.Currency,
		AlreadyExists: alreadyExists,
	}
	if cfg.VirtualCardRef != nil {
		res.CardRef = *cfg.VirtualCardRef
	}
	return res
}

// Status is the full read model for a trip.
type Status struct {
	Configuration *models.PaymentConfig       `json:"configuration"`
	Participants  []models.ParticipantPayment `json:"participants"`
	Threshold     ThresholdView               `json:"threshold_view"`
}

// GetStatus returns a consistent snapshot of the trip's payment state with
// the threshold recomputed from the ledger.
func (c *Coordinator) GetStatus(ctx context.Context, tripID string) (*Status, error) {
	cfg, recs, err := c.store.Snapshot(ctx, tripID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrConfigurationMissing
		}
		return nil, err
	}
	return &Status{
		Configuration: cfg,
		Participants:  recs,
		Threshold:     ComputeThreshold(cfg, recs),
	}, nil
}

// ReconcilePending resolves ledger records stuck in pending since before
// olderThan ago by asking the gateway what actually happened to the hold.
// Unreachable gateway outcomes are left for the next sweep. Returns the
// number of records resolved.
func (c *Coordinator) ReconcilePending(ctx context.Context, olderThan time.Duration) (int, error) {
	stale, err := c.store.ListPendingOlderThan(ctx, time.Now().Add(-olderThan))
	if err != nil {
		return 0, err
	}

	resolved := 0
	for _, rec := range stale {
		if ctx.Err() != nil {
			return resolved, ctx.Err()
		}
		if c.reconcileOne(ctx, rec) {
			resolved++
		}
	}
	return resolved, nil
}

func (c *Coordinator) reconcileOne(ctx context.Context, stale models.ParticipantPayment) bool {
	unlock, err := c.locker.Lock(ctx, stale.TripID)
	if err != nil {
		return false
	}
	defer unlock()

	// Re-check under the lock: the record may have resolved meanwhile.
	rec, err := c.store.LatestByParticipant(ctx, stale.TripID, stale.ParticipantID)
	if err != nil || rec.ID != stale.ID || rec.Status != models.PaymentStatusPending {
		return false
	}

	lookup, err := c.gateway.FindHoldByReference(ctx, rec.Reference)
	if err != nil {
		log.Printf("reconcile %s/%s: gateway lookup failed: %v", rec.TripID, rec.ParticipantID, err)
		return false
	}

	switch lookup.State {
	case gateway.HoldStateAuthorized, gateway.HoldStateCaptured:
		if _, err := c.store.MarkAuthorized(ctx, rec.TripID, rec.ParticipantID, lookup.Ref); err != nil {
			log.Printf("reconcile %s/%s: %v", rec.TripID, rec.ParticipantID, err)
			return false
		}
		log.Printf("reconcile %s/%s: hold %s confirmed, marked authorized", rec.TripID, rec.ParticipantID, lookup.Ref)
		return true
	case gateway.HoldStateCanceled, gateway.HoldStateNotFound:
		if _, err := c.store.MarkFailed(ctx, rec.TripID, rec.ParticipantID); err != nil {
			log.Printf("reconcile %s/%s: %v", rec.TripID, rec.ParticipantID, err)
			return false
		}
		log.Printf("reconcile %s/%s: no live hold at gateway, marked failed", rec.TripID, rec.ParticipantID)
		return true
	default:
		// Still processing at the gateway; leave for the next sweep.
		return false
	}
}

func (c *Coordinator) thresholdFor(ctx context.Context, cfg *models.PaymentConfig) (ThresholdView, error) {
	recs, err := c.store.ListByTrip(ctx, cfg.TripID)
	if err != nil {
		return ThresholdView{}, err
	}
	return ComputeThreshold(cfg, recs), nil
}

// audit records a gateway interaction. Failures are logged, never surfaced.
func (c *Coordinator) audit(ctx context.Context, tripID string, kind models.GatewayEventKind, reference string, metadata map[string]interface{}) {
	raw, err := json.Marshal(metadata)
	if err != nil {
		return
	}
	ev := &models.GatewayEvent{
		TripID:    tripID,
		Kind:      kind,
		Reference: reference,
		Metadata:  raw,
	}
	if err := c.store.AppendEvent(ctx, ev); err != nil {
		log.Printf("audit event for trip %s not recorded: %v", tripID, err)
	}
}
