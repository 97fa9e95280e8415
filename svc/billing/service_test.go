package billing_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/studykit/svc/billing"
	"github.com/dmitrymomot/studykit/svc/plan"
	"github.com/dmitrymomot/studykit/svc/subscription"
)

var now = time.Date(2025, 1, 15, 12, 0, 0, 0, time.UTC)

type fakeProvider struct {
	mu        sync.Mutex
	checkouts []billing.CheckoutRequest
	checkout  *billing.CheckoutLink
	checkErr  error
	portalURL string
	event     *subscription.Event
	parseErr  error
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) CreateCheckout(_ context.Context, req billing.CheckoutRequest) (*billing.CheckoutLink, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.checkouts = append(f.checkouts, req)
	if f.checkErr != nil {
		return nil, f.checkErr
	}
	link := *f.checkout
	return &link, nil
}

func (f *fakeProvider) PortalLink(_ context.Context, customerRef string) (*billing.PortalLink, error) {
	return &billing.PortalLink{URL: f.portalURL + "/" + customerRef}, nil
}

func (f *fakeProvider) ParseWebhook(_ context.Context, _ []byte, _ string) (*subscription.Event, error) {
	if f.parseErr != nil {
		return nil, f.parseErr
	}
	if f.event == nil {
		return nil, nil
	}
	e := *f.event
	return &e, nil
}

type fakeAccounts struct {
	mu       sync.Mutex
	accounts map[string]billing.Account
	setErr   error
}

func (f *fakeAccounts) Account(_ context.Context, userID string) (billing.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.accounts[userID]
	if !ok {
		return billing.Account{}, billing.ErrAccountNotFound
	}
	return a, nil
}

func (f *fakeAccounts) SetCustomerRef(_ context.Context, userID, ref string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.setErr != nil {
		return f.setErr
	}
	a := f.accounts[userID]
	if a.Subscription.CustomerRef == "" {
		a.Subscription.CustomerRef = ref
	}
	f.accounts[userID] = a
	return nil
}

type countingApplier struct {
	mu    sync.Mutex
	calls int
	err   error
	inner billing.Applier
}

func (c *countingApplier) Apply(ctx context.Context, e subscription.Event) (subscription.Outcome, error) {
	c.mu.Lock()
	c.calls++
	err := c.err
	c.mu.Unlock()
	if err != nil {
		return subscription.Outcome{}, err
	}
	return c.inner.Apply(ctx, e)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newBillingService(p billing.Provider, accounts billing.AccountStore, applier billing.Applier) *billing.Service {
	return billing.NewService(p, accounts, applier,
		billing.Config{Timeout: time.Second, DedupeTTL: time.Hour, SuccessURL: "https://app/ok", CancelURL: "https://app/cancel"},
		billing.WithLogger(quietLogger()),
		billing.WithClock(func() time.Time { return now }),
	)
}

func TestCheckoutStoresCustomerRefAfterProvider(t *testing.T) {
	t.Parallel()

	accounts := &fakeAccounts{accounts: map[string]billing.Account{
		"u1": {UserID: "u1", Email: "ann@example.com", Subscription: plan.Default()},
	}}
	p := &fakeProvider{checkout: &billing.CheckoutLink{URL: "https://pay/1", SessionID: "cs_1", CustomerRef: "cus_1"}}
	svc := newBillingService(p, accounts, nil)

	link, err := svc.Checkout(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "https://pay/1", link.URL)

	require.Len(t, p.checkouts, 1)
	assert.Equal(t, "https://app/ok", p.checkouts[0].SuccessURL)
	assert.Empty(t, p.checkouts[0].CustomerRef)

	acc, _ := accounts.Account(context.Background(), "u1")
	assert.Equal(t, "cus_1", acc.Subscription.CustomerRef)
}

func TestCheckoutProviderFailureLeavesStateUntouched(t *testing.T) {
	t.Parallel()

	accounts := &fakeAccounts{accounts: map[string]billing.Account{
		"u1": {UserID: "u1", Subscription: plan.Default()},
	}}
	p := &fakeProvider{checkErr: errors.New("timeout")}
	svc := newBillingService(p, accounts, nil)

	_, err := svc.Checkout(context.Background(), "u1")
	assert.ErrorIs(t, err, billing.ErrProviderFailed)

	acc, _ := accounts.Account(context.Background(), "u1")
	assert.Empty(t, acc.Subscription.CustomerRef)
}

func TestCheckoutRejectsActivePro(t *testing.T) {
	t.Parallel()

	end := now.Add(24 * time.Hour)
	accounts := &fakeAccounts{accounts: map[string]billing.Account{
		"u1": {UserID: "u1", Subscription: plan.Subscription{Tier: plan.TierPro, Status: plan.StatusActive, End: &end}},
	}}
	svc := newBillingService(&fakeProvider{}, accounts, nil)

	_, err := svc.Checkout(context.Background(), "u1")
	assert.ErrorIs(t, err, billing.ErrAlreadySubscribed)
}

func TestBillingDisabled(t *testing.T) {
	t.Parallel()

	svc := newBillingService(nil, &fakeAccounts{}, nil)
	ctx := context.Background()

	_, err := svc.Checkout(ctx, "u1")
	assert.ErrorIs(t, err, billing.ErrBillingDisabled)
	_, err = svc.Portal(ctx, "u1")
	assert.ErrorIs(t, err, billing.ErrBillingDisabled)
	_, err = svc.HandleWebhook(ctx, []byte("{}"), "sig")
	assert.ErrorIs(t, err, billing.ErrBillingDisabled)
	assert.Equal(t, "none", svc.ProviderName())
}

func TestPortal(t *testing.T) {
	t.Parallel()

	accounts := &fakeAccounts{accounts: map[string]billing.Account{
		"u1": {UserID: "u1", Subscription: plan.Subscription{Tier: plan.TierFree, Status: plan.StatusActive, CustomerRef: "cus_1"}},
		"u2": {UserID: "u2", Subscription: plan.Default()},
	}}
	svc := newBillingService(&fakeProvider{portalURL: "https://portal"}, accounts, nil)

	link, err := svc.Portal(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "https://portal/cus_1", link.URL)

	_, err = svc.Portal(context.Background(), "u2")
	assert.ErrorIs(t, err, billing.ErrNoBillingAccount)

	_, err = svc.Portal(context.Background(), "missing")
	assert.ErrorIs(t, err, billing.ErrAccountNotFound)
}

func TestHandleWebhookDeduplicatesDeliveries(t *testing.T) {
	t.Parallel()

	store := subscription.NewMemoryStore(subscription.Owner{UserID: "u1", Subscription: plan.Default()})
	subs := subscription.NewService(store,
		subscription.WithClock(func() time.Time { return now }),
		subscription.WithLogger(quietLogger()),
	)
	applier := &countingApplier{inner: subs}
	p := &fakeProvider{event: &subscription.Event{
		ID: "evt_1", Kind: subscription.CheckoutCompleted, UserID: "u1", SubscriptionRef: "sub_1", CustomerRef: "cus_1",
	}}
	svc := newBillingService(p, &fakeAccounts{}, applier)
	ctx := context.Background()

	res, err := svc.HandleWebhook(ctx, []byte("{}"), "sig")
	require.NoError(t, err)
	assert.Equal(t, billing.WebhookProcessed, res)

	res, err = svc.HandleWebhook(ctx, []byte("{}"), "sig")
	require.NoError(t, err)
	assert.Equal(t, billing.WebhookDuplicate, res)
	assert.Equal(t, 1, applier.calls)

	o, ok := store.Get("u1")
	require.True(t, ok)
	assert.True(t, o.Subscription.IsPro(now))
	assert.Equal(t, "sub_1", o.Subscription.SubscriptionRef)
}

func TestHandleWebhookReleasesKeyOnFailure(t *testing.T) {
	t.Parallel()

	store := subscription.NewMemoryStore(subscription.Owner{UserID: "u1", Subscription: plan.Default()})
	applier := &countingApplier{
		err:   errors.New("database down"),
		inner: subscription.NewService(store, subscription.WithLogger(quietLogger())),
	}
	p := &fakeProvider{event: &subscription.Event{ID: "evt_2", Kind: subscription.CheckoutCompleted, UserID: "u1"}}
	svc := newBillingService(p, &fakeAccounts{}, applier)
	ctx := context.Background()

	_, err := svc.HandleWebhook(ctx, []byte("{}"), "sig")
	require.Error(t, err)

	applier.mu.Lock()
	applier.err = nil
	applier.mu.Unlock()

	res, err := svc.HandleWebhook(ctx, []byte("{}"), "sig")
	require.NoError(t, err)
	assert.Equal(t, billing.WebhookProcessed, res)
	assert.Equal(t, 2, applier.calls)
}

func TestHandleWebhookOutcomes(t *testing.T) {
	t.Parallel()

	store := subscription.NewMemoryStore(subscription.Owner{UserID: "u1", Subscription: plan.Default()})
	subs := subscription.NewService(store, subscription.WithLogger(quietLogger()))
	ctx := context.Background()

	t.Run("ignored", func(t *testing.T) {
		t.Parallel()
		svc := newBillingService(&fakeProvider{}, &fakeAccounts{}, subs)
		res, err := svc.HandleWebhook(ctx, []byte("{}"), "sig")
		require.NoError(t, err)
		assert.Equal(t, billing.WebhookIgnored, res)
	})

	t.Run("unmatched", func(t *testing.T) {
		t.Parallel()
		p := &fakeProvider{event: &subscription.Event{ID: "evt_3", Kind: subscription.SubscriptionDeleted, SubscriptionRef: "sub_unknown"}}
		svc := newBillingService(p, &fakeAccounts{}, subs)
		res, err := svc.HandleWebhook(ctx, []byte("{}"), "sig")
		require.NoError(t, err)
		assert.Equal(t, billing.WebhookUnmatched, res)
	})

	t.Run("invalid signature", func(t *testing.T) {
		t.Parallel()
		svc := newBillingService(&fakeProvider{parseErr: billing.ErrInvalidSignature}, &fakeAccounts{}, subs)
		_, err := svc.HandleWebhook(ctx, []byte("{}"), "bad")
		assert.ErrorIs(t, err, billing.ErrInvalidSignature)
	})
}
