package coordinator

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tripfund/internal/gateway"
	"tripfund/internal/models"
	"tripfund/internal/store"
)

// fakeGateway lets each test script the gateway's behavior per call.
type fakeGateway struct {
	mu sync.Mutex

	placeHold   func(ctx context.Context, req *gateway.HoldRequest) (*gateway.Hold, error)
	voidHold    func(ctx context.Context, holdRef string) error
	captureHold func(ctx context.Context, holdRef string) error
	issueCard   func(ctx context.Context, fundedAmount int64, currency string) (*gateway.VirtualCard, error)
	findHold    func(ctx context.Context, reference string) (*gateway.HoldLookup, error)

	holdCalls int
	cardCalls int
}

func (f *fakeGateway) PlaceHold(ctx context.Context, req *gateway.HoldRequest) (*gateway.Hold, error) {
	f.mu.Lock()
	f.holdCalls++
	n := f.holdCalls
	f.mu.Unlock()
	if f.placeHold != nil {
		return f.placeHold(ctx, req)
	}
	return &gateway.Hold{Ref: fmt.Sprintf("pi_%d", n), ClientSecret: fmt.Sprintf("pi_%d_secret", n)}, nil
}

func (f *fakeGateway) VoidHold(ctx context.Context, holdRef string) error {
	if f.voidHold != nil {
		return f.voidHold(ctx, holdRef)
	}
	return nil
}

func (f *fakeGateway) CaptureHold(ctx context.Context, holdRef string) error {
	if f.captureHold != nil {
		return f.captureHold(ctx, holdRef)
	}
	return nil
}

func (f *fakeGateway) IssueVirtualCard(ctx context.Context, fundedAmount int64, currency string) (*gateway.VirtualCard, error) {
	f.mu.Lock()
	f.cardCalls++
	f.mu.Unlock()
	if f.issueCard != nil {
		return f.issueCard(ctx, fundedAmount, currency)
	}
	return &gateway.VirtualCard{Ref: "ic_1", LastFour: "4242", Brand: "Visa", ExpMonth: 8, ExpYear: 2030}, nil
}

func (f *fakeGateway) FindHoldByReference(ctx context.Context, reference string) (*gateway.HoldLookup, error) {
	if f.findHold != nil {
		return f.findHold(ctx, reference)
	}
	return &gateway.HoldLookup{State: gateway.HoldStateNotFound}, nil
}

func newTestCoordinator(t *testing.T) (*Coordinator, *store.MemoryStore, *fakeGateway) {
	t.Helper()
	s := store.NewMemoryStore()
	g := &fakeGateway{}
	c := New(Params{
		Store:          s,
		Gateway:        g,
		GatewayTimeout: 2 * time.Second,
		RetryAttempts:  1,
		RetryBackoff:   time.Millisecond,
	})
	return c, s, g
}

func setupTrip(t *testing.T, c *Coordinator, totalCost int64, minParticipants int) *models.PaymentConfig {
	t.Helper()
	cfg, created, err := c.Setup(context.Background(), SetupParams{
		TripID:          "trip-1",
		HostID:          "host-1",
		TotalCost:       totalCost,
		Currency:        "usd",
		MinParticipants: minParticipants,
	})
	require.NoError(t, err)
	require.True(t, created)
	return cfg
}

func TestSetup_Validation(t *testing.T) {
	c, _, _ := newTestCoordinator(t)
	ctx := context.Background()

	_, _, err := c.Setup(ctx, SetupParams{TripID: "t", HostID: "h", TotalCost: 0, MinParticipants: 3})
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, _, err = c.Setup(ctx, SetupParams{TripID: "t", HostID: "h", TotalCost: 100, MinParticipants: 1})
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, _, err = c.Setup(ctx, SetupParams{TripID: "", HostID: "h", TotalCost: 100, MinParticipants: 2})
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestSetup_DuplicateReturnsExisting(t *testing.T) {
	c, _, _ := newTestCoordinator(t)
	ctx := context.Background()

	first := setupTrip(t, c, 9000, 3)

	cfg, created, err := c.Setup(ctx, SetupParams{
		TripID: "trip-1", HostID: "host-2", TotalCost: 50000, MinParticipants: 5, Currency: "eur",
	})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.TotalCost, cfg.TotalCost)
	assert.Equal(t, "host-1", cfg.HostID)
}

func TestSetup_CeilingDivision(t *testing.T) {
	c, _, _ := newTestCoordinator(t)

	cfg, created, err := c.Setup(context.Background(), SetupParams{
		TripID: "trip-odd", HostID: "host-1", TotalCost: 10000, MinParticipants: 3,
	})
	require.NoError(t, err)
	require.True(t, created)
	assert.Equal(t, int64(3334), cfg.PerSeatAmount)
	assert.GreaterOrEqual(t, cfg.PerSeatAmount*int64(cfg.MinParticipants), cfg.TotalCost)
	assert.Equal(t, "usd", cfg.Currency)
}

func TestJoin_Success(t *testing.T) {
	c, s, _ := newTestCoordinator(t)
	ctx := context.Background()
	setupTrip(t, c, 9000, 3)

	res, err := c.JoinWithPayment(ctx, "trip-1", "alice", "pm_card")
	require.NoError(t, err)
	assert.Equal(t, "pi_1", res.HoldRef)
	assert.NotEmpty(t, res.ClientSecret)
	assert.Equal(t, int64(3000), res.Amount)
	assert.Equal(t, 1, res.Threshold.CurrentParticipants)
	assert.False(t, res.Threshold.ThresholdMet)

	rec, err := s.LatestByParticipant(ctx, "trip-1", "alice")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusAuthorized, rec.Status)
	assert.Equal(t, "pi_1", rec.HoldRef)
}

func TestJoin_NoConfiguration(t *testing.T) {
	c, _, _ := newTestCoordinator(t)
	_, err := c.JoinWithPayment(context.Background(), "trip-1", "alice", "pm_card")
	assert.ErrorIs(t, err, ErrConfigurationMissing)
}

func TestJoin_ThresholdMetAtMinimum(t *testing.T) {
	c, _, _ := newTestCoordinator(t)
	ctx := context.Background()
	setupTrip(t, c, 9000, 3)

	for i, p := range []string{"alice", "bob"} {
		res, err := c.JoinWithPayment(ctx, "trip-1", p, "pm_card")
		require.NoError(t, err)
		assert.Equal(t, i+1, res.Threshold.CurrentParticipants)
		assert.False(t, res.Threshold.ThresholdMet)
	}

	res, err := c.JoinWithPayment(ctx, "trip-1", "carol", "pm_card")
	require.NoError(t, err)
	assert.True(t, res.Threshold.ThresholdMet)

	// The minimum is a floor: a fourth participant joins fine.
	res, err = c.JoinWithPayment(ctx, "trip-1", "dave", "pm_card")
	require.NoError(t, err)
	assert.Equal(t, 4, res.Threshold.CurrentParticipants)
	assert.True(t, res.Threshold.ThresholdMet)
}

func TestJoin_Declined(t *testing.T) {
	c, s, g := newTestCoordinator(t)
	ctx := context.Background()
	setupTrip(t, c, 9000, 3)

	g.placeHold = func(ctx context.Context, req *gateway.HoldRequest) (*gateway.Hold, error) {
		return nil, &gateway.DeclinedError{Reason: "insufficient_funds"}
	}

	_, err := c.JoinWithPayment(ctx, "trip-1", "alice", "pm_card")
	var pf *PaymentFailedError
	require.ErrorAs(t, err, &pf)
	assert.Equal(t, "insufficient_funds", pf.Reason)

	rec, err := s.LatestByParticipant(ctx, "trip-1", "alice")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusFailed, rec.Status)

	// Decline is not a seat: a retry with a working card succeeds.
	g.placeHold = nil
	res, err := c.JoinWithPayment(ctx, "trip-1", "alice", "pm_card")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Threshold.CurrentParticipants)
}

func TestJoin_TimeoutLeavesPending(t *testing.T) {
	c, s, g := newTestCoordinator(t)
	ctx := context.Background()
	setupTrip(t, c, 9000, 3)

	g.placeHold = func(ctx context.Context, req *gateway.HoldRequest) (*gateway.Hold, error) {
		return nil, gateway.ErrTimeout
	}

	_, err := c.JoinWithPayment(ctx, "trip-1", "alice", "pm_card")
	assert.ErrorIs(t, err, ErrGatewayTimeout)

	// The record stays pending for reconciliation, never auto-failed.
	rec, err := s.LatestByParticipant(ctx, "trip-1", "alice")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusPending, rec.Status)

	// And a pending record blocks a second attempt.
	_, err = c.JoinWithPayment(ctx, "trip-1", "alice", "pm_card")
	assert.ErrorIs(t, err, ErrAlreadyPending)
}

func TestJoin_AlreadyAuthorized(t *testing.T) {
	c, _, g := newTestCoordinator(t)
	ctx := context.Background()
	setupTrip(t, c, 9000, 3)

	_, err := c.JoinWithPayment(ctx, "trip-1", "alice", "pm_card")
	require.NoError(t, err)

	before := g.holdCalls
	_, err = c.JoinWithPayment(ctx, "trip-1", "alice", "pm_card")
	assert.ErrorIs(t, err, ErrAlreadyAuthorized)
	assert.Equal(t, before, g.holdCalls, "no second hold placed")
}

func TestJoin_RetriesTransientThenSucceeds(t *testing.T) {
	c, s, g := newTestCoordinator(t)
	ctx := context.Background()
	c.retryAttempts = 3
	setupTrip(t, c, 9000, 3)

	calls := 0
	g.placeHold = func(ctx context.Context, req *gateway.HoldRequest) (*gateway.Hold, error) {
		calls++
		if calls < 3 {
			return nil, &gateway.TransientError{Err: fmt.Errorf("gateway hiccup %d", calls)}
		}
		return &gateway.Hold{Ref: "pi_ok", ClientSecret: "sec"}, nil
	}

	res, err := c.JoinWithPayment(ctx, "trip-1", "alice", "pm_card")
	require.NoError(t, err)
	assert.Equal(t, "pi_ok", res.HoldRef)
	assert.Equal(t, 3, calls)

	rec, err := s.LatestByParticipant(ctx, "trip-1", "alice")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusAuthorized, rec.Status)
}

func TestRemoveParticipant_VoidsAndRecounts(t *testing.T) {
	c, s, g := newTestCoordinator(t)
	ctx := context.Background()
	setupTrip(t, c, 9000, 3)

	for _, p := range []string{"alice", "bob", "carol"} {
		_, err := c.JoinWithPayment(ctx, "trip-1", p, "pm_card")
		require.NoError(t, err)
	}

	var voided string
	g.voidHold = func(ctx context.Context, holdRef string) error {
		voided = holdRef
		return nil
	}

	view, err := c.RemoveParticipant(ctx, "trip-1", "bob", "host-1")
	require.NoError(t, err)
	assert.Equal(t, "pi_2", voided)
	assert.Equal(t, 2, view.CurrentParticipants)
	assert.False(t, view.ThresholdMet)

	rec, err := s.LatestByParticipant(ctx, "trip-1", "bob")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusVoided, rec.Status)

	// A replacement join restores the threshold.
	res, err := c.JoinWithPayment(ctx, "trip-1", "dave", "pm_card")
	require.NoError(t, err)
	assert.True(t, res.Threshold.ThresholdMet)

	// And the removed participant may rejoin on a fresh record.
	res, err = c.JoinWithPayment(ctx, "trip-1", "bob", "pm_card")
	require.NoError(t, err)
	assert.Equal(t, 4, res.Threshold.CurrentParticipants)
}

func TestRemoveParticipant_HostOnly(t *testing.T) {
	c, _, _ := newTestCoordinator(t)
	ctx := context.Background()
	setupTrip(t, c, 9000, 3)

	_, err := c.JoinWithPayment(ctx, "trip-1", "alice", "pm_card")
	require.NoError(t, err)

	_, err = c.RemoveParticipant(ctx, "trip-1", "alice", "alice")
	assert.ErrorIs(t, err, ErrNotHost)
}

func TestRemoveParticipant_NothingToRemove(t *testing.T) {
	c, s, g := newTestCoordinator(t)
	ctx := context.Background()
	setupTrip(t, c, 9000, 3)

	// Never joined.
	_, err := c.RemoveParticipant(ctx, "trip-1", "ghost", "host-1")
	assert.ErrorIs(t, err, ErrNothingToRemove)

	// Failed attempt holds no seat.
	g.placeHold = func(ctx context.Context, req *gateway.HoldRequest) (*gateway.Hold, error) {
		return nil, &gateway.DeclinedError{Reason: "card_declined"}
	}
	_, err = c.JoinWithPayment(ctx, "trip-1", "alice", "pm_card")
	require.Error(t, err)
	_, err = c.RemoveParticipant(ctx, "trip-1", "alice", "host-1")
	assert.ErrorIs(t, err, ErrNothingToRemove)

	// A pending record has no confirmed hold to void either.
	g.placeHold = func(ctx context.Context, req *gateway.HoldRequest) (*gateway.Hold, error) {
		return nil, gateway.ErrTimeout
	}
	_, err = c.JoinWithPayment(ctx, "trip-1", "bob", "pm_card")
	require.ErrorIs(t, err, ErrGatewayTimeout)
	_, err = c.RemoveParticipant(ctx, "trip-1", "bob", "host-1")
	assert.ErrorIs(t, err, ErrNothingToRemove)

	rec, err := s.LatestByParticipant(ctx, "trip-1", "bob")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusPending, rec.Status)
}

func TestRemoveParticipant_AlreadyVoided(t *testing.T) {
	c, _, _ := newTestCoordinator(t)
	ctx := context.Background()
	setupTrip(t, c, 9000, 3)

	_, err := c.JoinWithPayment(ctx, "trip-1", "alice", "pm_card")
	require.NoError(t, err)
	_, err = c.RemoveParticipant(ctx, "trip-1", "alice", "host-1")
	require.NoError(t, err)

	_, err = c.RemoveParticipant(ctx, "trip-1", "alice", "host-1")
	assert.ErrorIs(t, err, ErrAlreadyFinal)
}

func TestRemoveParticipant_VoidFailureKeepsAuthorized(t *testing.T) {
	c, s, g := newTestCoordinator(t)
	ctx := context.Background()
	setupTrip(t, c, 9000, 3)

	_, err := c.JoinWithPayment(ctx, "trip-1", "alice", "pm_card")
	require.NoError(t, err)

	g.voidHold = func(ctx context.Context, holdRef string) error {
		return fmt.Errorf("gateway rejected void")
	}

	_, err = c.RemoveParticipant(ctx, "trip-1", "alice", "host-1")
	require.Error(t, err)

	// The ledger only flips after the gateway confirms the void.
	rec, err := s.LatestByParticipant(ctx, "trip-1", "alice")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusAuthorized, rec.Status)
}

func fillToThreshold(t *testing.T, c *Coordinator) {
	t.Helper()
	for _, p := range []string{"alice", "bob", "carol"} {
		_, err := c.JoinWithPayment(context.Background(), "trip-1", p, "pm_card")
		require.NoError(t, err)
	}
}

func TestIssueVirtualCard_FundedAtTotalCost(t *testing.T) {
	c, _, g := newTestCoordinator(t)
	ctx := context.Background()
	setupTrip(t, c, 10000, 3)
	fillToThreshold(t, c)

	var funded int64
	g.issueCard = func(ctx context.Context, fundedAmount int64, currency string) (*gateway.VirtualCard, error) {
		funded = fundedAmount
		return &gateway.VirtualCard{Ref: "ic_1", LastFour: "4242", Brand: "Visa", ExpMonth: 8, ExpYear: 2030}, nil
	}

	res, err := c.IssueVirtualCard(ctx, "trip-1", "host-1")
	require.NoError(t, err)
	assert.False(t, res.AlreadyExists)
	assert.Equal(t, "ic_1", res.CardRef)

	// Funded at the configured total, not the 3x3334=10002 hold sum.
	assert.Equal(t, int64(10000), funded)
	assert.Equal(t, int64(10000), res.FundedAmount)
}

func TestIssueVirtualCard_Idempotent(t *testing.T) {
	c, _, g := newTestCoordinator(t)
	ctx := context.Background()
	setupTrip(t, c, 9000, 3)
	fillToThreshold(t, c)

	first, err := c.IssueVirtualCard(ctx, "trip-1", "host-1")
	require.NoError(t, err)
	require.False(t, first.AlreadyExists)

	second, err := c.IssueVirtualCard(ctx, "trip-1", "host-1")
	require.NoError(t, err)
	assert.True(t, second.AlreadyExists)
	assert.Equal(t, first.CardRef, second.CardRef)
	assert.Equal(t, first.LastFour, second.LastFour)
	assert.Equal(t, 1, g.cardCalls, "gateway asked to issue exactly once")
}

func TestIssueVirtualCard_ThresholdNotMet(t *testing.T) {
	c, _, g := newTestCoordinator(t)
	ctx := context.Background()
	setupTrip(t, c, 9000, 3)

	_, err := c.JoinWithPayment(ctx, "trip-1", "alice", "pm_card")
	require.NoError(t, err)

	_, err = c.IssueVirtualCard(ctx, "trip-1", "host-1")
	var tnm *ThresholdNotMetError
	require.ErrorAs(t, err, &tnm)
	assert.Equal(t, 1, tnm.Current)
	assert.Equal(t, 3, tnm.Required)
	assert.Zero(t, g.cardCalls)
}

func TestIssueVirtualCard_HostOnly(t *testing.T) {
	c, _, _ := newTestCoordinator(t)
	setupTrip(t, c, 9000, 3)
	fillToThreshold(t, c)

	_, err := c.IssueVirtualCard(context.Background(), "trip-1", "alice")
	assert.ErrorIs(t, err, ErrNotHost)
}

func TestJoinAfterCardIssued_CardUnchanged(t *testing.T) {
	c, s, _ := newTestCoordinator(t)
	ctx := context.Background()
	setupTrip(t, c, 9000, 3)
	fillToThreshold(t, c)

	first, err := c.IssueVirtualCard(ctx, "trip-1", "host-1")
	require.NoError(t, err)

	res, err := c.JoinWithPayment(ctx, "trip-1", "dave", "pm_card")
	require.NoError(t, err)
	assert.Equal(t, 4, res.Threshold.CurrentParticipants)

	cfg, err := s.GetConfiguration(ctx, "trip-1")
	require.NoError(t, err)
	require.NotNil(t, cfg.VirtualCardRef)
	assert.Equal(t, first.CardRef, *cfg.VirtualCardRef)
}

func TestRemoveAfterCardIssued_Allowed(t *testing.T) {
	c, _, _ := newTestCoordinator(t)
	ctx := context.Background()
	setupTrip(t, c, 9000, 3)
	fillToThreshold(t, c)

	_, err := c.IssueVirtualCard(ctx, "trip-1", "host-1")
	require.NoError(t, err)

	// Removal succeeds; the card stays issued and the view reports under-funded.
	view, err := c.RemoveParticipant(ctx, "trip-1", "carol", "host-1")
	require.NoError(t, err)
	assert.Equal(t, 2, view.CurrentParticipants)
	assert.False(t, view.ThresholdMet)
}

func TestGetStatus(t *testing.T) {
	c, _, _ := newTestCoordinator(t)
	ctx := context.Background()
	setupTrip(t, c, 9000, 3)

	_, err := c.JoinWithPayment(ctx, "trip-1", "alice", "pm_card")
	require.NoError(t, err)

	st, err := c.GetStatus(ctx, "trip-1")
	require.NoError(t, err)
	assert.Equal(t, "trip-1", st.Configuration.TripID)
	require.Len(t, st.Participants, 1)
	assert.Equal(t, models.PaymentStatusAuthorized, st.Participants[0].Status)
	assert.Equal(t, 1, st.Threshold.CurrentParticipants)

	_, err = c.GetStatus(ctx, "trip-9")
	assert.ErrorIs(t, err, ErrConfigurationMissing)
}

func TestReconcilePending_ConfirmsHold(t *testing.T) {
	c, s, g := newTestCoordinator(t)
	ctx := context.Background()
	setupTrip(t, c, 9000, 3)

	g.placeHold = func(ctx context.Context, req *gateway.HoldRequest) (*gateway.Hold, error) {
		return nil, gateway.ErrTimeout
	}
	_, err := c.JoinWithPayment(ctx, "trip-1", "alice", "pm_card")
	require.ErrorIs(t, err, ErrGatewayTimeout)

	// The gateway actually placed the hold; reconciliation finds it.
	g.findHold = func(ctx context.Context, reference string) (*gateway.HoldLookup, error) {
		return &gateway.HoldLookup{Ref: "pi_recovered", State: gateway.HoldStateAuthorized}, nil
	}

	resolved, err := c.ReconcilePending(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, resolved)

	rec, err := s.LatestByParticipant(ctx, "trip-1", "alice")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusAuthorized, rec.Status)
	assert.Equal(t, "pi_recovered", rec.HoldRef)
}

func TestReconcilePending_NoHoldFound(t *testing.T) {
	c, s, g := newTestCoordinator(t)
	ctx := context.Background()
	setupTrip(t, c, 9000, 3)

	g.placeHold = func(ctx context.Context, req *gateway.HoldRequest) (*gateway.Hold, error) {
		return nil, gateway.ErrTimeout
	}
	_, err := c.JoinWithPayment(ctx, "trip-1", "alice", "pm_card")
	require.ErrorIs(t, err, ErrGatewayTimeout)

	resolved, err := c.ReconcilePending(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, resolved)

	rec, err := s.LatestByParticipant(ctx, "trip-1", "alice")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusFailed, rec.Status)

	// The seat is retriable afterwards.
	g.placeHold = nil
	_, err = c.JoinWithPayment(ctx, "trip-1", "alice", "pm_card")
	require.NoError(t, err)
}

func TestReconcilePending_StillProcessingSkipped(t *testing.T) {
	c, s, g := newTestCoordinator(t)
	ctx := context.Background()
	setupTrip(t, c, 9000, 3)

	g.placeHold = func(ctx context.Context, req *gateway.HoldRequest) (*gateway.Hold, error) {
		return nil, gateway.ErrTimeout
	}
	_, err := c.JoinWithPayment(ctx, "trip-1", "alice", "pm_card")
	require.ErrorIs(t, err, ErrGatewayTimeout)

	g.findHold = func(ctx context.Context, reference string) (*gateway.HoldLookup, error) {
		return &gateway.HoldLookup{State: gateway.HoldStateProcessing}, nil
	}

	resolved, err := c.ReconcilePending(ctx, 0)
	require.NoError(t, err)
	assert.Zero(t, resolved)

	rec, err := s.LatestByParticipant(ctx, "trip-1", "alice")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusPending, rec.Status)
}

func TestConcurrentJoins_CountExact(t *testing.T) {
	c, _, _ := newTestCoordinator(t)
	ctx := context.Background()
	setupTrip(t, c, 100000, 10)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := c.JoinWithPayment(ctx, "trip-1", fmt.Sprintf("p-%d", i), "pm_card")
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	st, err := c.GetStatus(ctx, "trip-1")
	require.NoError(t, err)
	assert.Equal(t, 10, st.Threshold.CurrentParticipants)
	assert.True(t, st.Threshold.ThresholdMet)
}

func TestConcurrentDuplicateJoins_OneHold(t *testing.T) {
	c, _, g := newTestCoordinator(t)
	ctx := context.Background()
	setupTrip(t, c, 9000, 3)

	var wg sync.WaitGroup
	okCount := 0
	var mu sync.Mutex
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := c.JoinWithPayment(ctx, "trip-1", "alice", "pm_card"); err == nil {
				mu.Lock()
				okCount++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, okCount)
	assert.Equal(t, 1, g.holdCalls)
}
