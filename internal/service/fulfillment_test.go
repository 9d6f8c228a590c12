package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stagehall/boxoffice/internal/model"
	"github.com/stagehall/boxoffice/internal/payment"
	"github.com/stagehall/boxoffice/internal/seating"
)

// In-memory stores mirroring the conditional-write semantics of the
// repositories. Single-goroutine tests, so no locking.

type fakeOrders struct {
	orders      map[uint64]*model.Order
	items       map[uint64][]model.LineItem
	transitions int
}

func (f *fakeOrders) GetByID(_ context.Context, id uint64) (*model.Order, error) {
	o, ok := f.orders[id]
	if !ok {
		return nil, errors.New("order not found")
	}
	cp := *o
	return &cp, nil
}

func (f *fakeOrders) LineItems(_ context.Context, orderID uint64) ([]model.LineItem, error) {
	return f.items[orderID], nil
}

func (f *fakeOrders) TransitionStatusTx(_ context.Context, _ *sql.Tx, orderID uint64, from, to string) (bool, error) {
	f.transitions++
	o, ok := f.orders[orderID]
	if !ok || o.Status != from {
		return false, nil
	}
	o.Status = to
	return true, nil
}

func (f *fakeOrders) ListOrphaned(_ context.Context, _ time.Time) ([]uint64, error) {
	var ids []uint64
	for id, o := range f.orders {
		if o.Status == model.OrderPending {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

type fakePerformances struct {
	perfs        map[uint64]*model.Performance
	releaseCalls int
}

func (f *fakePerformances) LockTx(_ context.Context, _ *sql.Tx, id uint64) (*model.Performance, error) {
	p, ok := f.perfs[id]
	if !ok {
		return nil, errors.New("performance not found")
	}
	cp := *p
	return &cp, nil
}

func (f *fakePerformances) ReleaseSeatsTx(_ context.Context, _ *sql.Tx, quantities map[uint64]int) error {
	f.releaseCalls++
	for id, q := range quantities {
		f.perfs[id].AvailableSeats += q
	}
	return nil
}

type fakePayments struct {
	payments map[uint64]*model.Payment
	loseNext bool // force the conditional write to lose
}

func (f *fakePayments) GetByID(_ context.Context, id uint64) (*model.Payment, error) {
	p, ok := f.payments[id]
	if !ok {
		return nil, errors.New("payment not found")
	}
	cp := *p
	return &cp, nil
}

func (f *fakePayments) TransitionStatusTx(_ context.Context, _ *sql.Tx, paymentID uint64, to string) (bool, error) {
	if f.loseNext {
		f.loseNext = false
		return false, nil
	}
	p, ok := f.payments[paymentID]
	if !ok || p.Status != model.PaymentPending {
		return false, nil
	}
	p.Status = to
	return true, nil
}

type fakeTickets struct {
	byOrder     map[uint64][]model.Ticket
	occupied    map[uint64]map[seating.SeatRef]bool
	createCalls int
}

func (f *fakeTickets) ExistsForOrderTx(_ context.Context, _ *sql.Tx, orderID uint64) (bool, error) {
	return len(f.byOrder[orderID]) > 0, nil
}

func (f *fakeTickets) CreateBatchTx(_ context.Context, _ *sql.Tx, tickets []model.Ticket) error {
	f.createCalls++
	for _, t := range tickets {
		f.byOrder[t.OrderID] = append(f.byOrder[t.OrderID], t)
		if f.occupied[t.PerformanceID] == nil {
			f.occupied[t.PerformanceID] = make(map[seating.SeatRef]bool)
		}
		ref := seating.SeatRef{Row: t.Row, Seat: t.Seat}
		if f.occupied[t.PerformanceID][ref] {
			return errors.New("duplicate seat")
		}
		f.occupied[t.PerformanceID][ref] = true
	}
	return nil
}

func (f *fakeTickets) OccupiedTx(_ context.Context, _ *sql.Tx, performanceID uint64) (map[seating.SeatRef]bool, error) {
	out := make(map[seating.SeatRef]bool, len(f.occupied[performanceID]))
	for ref := range f.occupied[performanceID] {
		out[ref] = true
	}
	return out, nil
}

func (f *fakeTickets) ListByOrder(_ context.Context, orderID uint64) ([]model.Ticket, error) {
	return f.byOrder[orderID], nil
}

type fakeCoupons struct {
	releaseCalls int
}

func (f *fakeCoupons) ReleaseTx(_ context.Context, _ *sql.Tx, _ uint64) error {
	f.releaseCalls++
	return nil
}

type fakeProvider struct {
	tx    payment.Transaction
	calls int
}

func (f *fakeProvider) CreatePayment(context.Context, payment.CreateRequest) (*payment.Transaction, error) {
	return nil, errors.New("not used")
}

func (f *fakeProvider) GetPayment(context.Context, string) (*payment.Transaction, error) {
	f.calls++
	cp := f.tx
	return &cp, nil
}

type countingMailer struct {
	calls int
}

func (m *countingMailer) SendOrderConfirmation(context.Context, *model.Order, []model.Ticket) error {
	m.calls++
	return nil
}

type fulfillmentFixture struct {
	svc    *FulfillmentService
	orders *fakeOrders
	perfs  *fakePerformances
	pays   *fakePayments
	ticks  *fakeTickets
	coups  *fakeCoupons
	prov   *fakeProvider
	mail   *countingMailer
}

// newFixture wires a pending order of 2 seats on performance 1 with a
// pending payment, the state left behind by a successful checkout.
func newFixture() *fulfillmentFixture {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)

	f := &fulfillmentFixture{
		orders: &fakeOrders{
			orders: map[uint64]*model.Order{
				1: {ID: 1, PublicID: "order-1", Status: model.OrderPending,
					Total: decimal.RequireFromString("50.00"), Currency: "EUR"},
			},
			items: map[uint64][]model.LineItem{
				1: {{ID: 1, OrderID: 1, PerformanceID: 1, Quantity: 2,
					UnitPrice: decimal.RequireFromString("25.00")}},
			},
		},
		perfs: &fakePerformances{
			perfs: map[uint64]*model.Performance{
				1: {ID: 1, Rows: 3, SeatsPerRow: 10, TotalSeats: 30, AvailableSeats: 28,
					Status: model.PerformancePublished},
			},
		},
		pays: &fakePayments{
			payments: map[uint64]*model.Payment{
				7: {ID: 7, OrderID: 1, ProviderTxID: "tr_1", Status: model.PaymentPending},
			},
		},
		ticks: &fakeTickets{
			byOrder:  make(map[uint64][]model.Ticket),
			occupied: make(map[uint64]map[seating.SeatRef]bool),
		},
		coups: &fakeCoupons{},
		prov:  &fakeProvider{tx: payment.Transaction{ID: "tr_1", Status: payment.StatusPaid}},
		mail:  &countingMailer{},
	}
	f.svc = &FulfillmentService{
		Orders:       f.orders,
		Performances: f.perfs,
		Payments:     f.pays,
		Tickets:      f.ticks,
		Coupons:      f.coups,
		Provider:     f.prov,
		Mailer:       f.mail,
		Renderer:     TextTicketRenderer{},
		Log:          logrus.NewEntry(l),
		RunTx: func(_ context.Context, fn func(tx *sql.Tx) error) error {
			return fn(nil)
		},
	}
	return f
}

func TestProcessPaymentSuccessGeneratesTickets(t *testing.T) {
	f := newFixture()

	require.NoError(t, f.svc.ProcessPayment(context.Background(), 7))

	assert.Equal(t, model.PaymentSucceeded, f.pays.payments[7].Status)
	assert.Equal(t, model.OrderPaid, f.orders.orders[1].Status)
	assert.Len(t, f.ticks.byOrder[1], 2)
	assert.Equal(t, 1, f.ticks.createCalls)
	assert.Equal(t, 1, f.mail.calls)
	assert.Equal(t, 0, f.perfs.releaseCalls)
}

func TestDuplicateDeliveriesCreateTicketsOnce(t *testing.T) {
	f := newFixture()

	require.NoError(t, f.svc.ProcessPayment(context.Background(), 7))
	require.NoError(t, f.svc.ProcessPayment(context.Background(), 7))

	// Same final state as a single delivery: one ticket batch, one
	// confirmation, one provider lookup (the replay short-circuits on
	// the terminal payment before consulting the provider).
	assert.Len(t, f.ticks.byOrder[1], 2)
	assert.Equal(t, 1, f.ticks.createCalls)
	assert.Equal(t, 1, f.mail.calls)
	assert.Equal(t, 1, f.prov.calls)
	assert.Equal(t, model.OrderPaid, f.orders.orders[1].Status)
}

func TestTransitionLoserTakesNoSideEffects(t *testing.T) {
	f := newFixture()
	f.pays.loseNext = true // a concurrent delivery wins the conditional write

	require.NoError(t, f.svc.ProcessPayment(context.Background(), 7))

	assert.Equal(t, 0, f.ticks.createCalls)
	assert.Equal(t, 0, f.mail.calls)
	assert.Equal(t, 0, f.orders.transitions)
	assert.Equal(t, model.OrderPending, f.orders.orders[1].Status)
}

func TestSucceededPaymentResumesAfterCrash(t *testing.T) {
	// Crash window: payment and order committed, ticket generation never
	// ran. The next delivery must finish the job.
	f := newFixture()
	f.pays.payments[7].Status = model.PaymentSucceeded
	f.orders.orders[1].Status = model.OrderPaid

	require.NoError(t, f.svc.ProcessPayment(context.Background(), 7))

	assert.Len(t, f.ticks.byOrder[1], 2)
	assert.Equal(t, 1, f.ticks.createCalls)
	assert.Equal(t, 1, f.mail.calls)
	assert.Equal(t, 0, f.prov.calls)
}

func TestFailedPaymentReleasesOrder(t *testing.T) {
	f := newFixture()
	f.prov.tx = payment.Transaction{ID: "tr_1", Status: payment.StatusFailed}

	require.NoError(t, f.svc.ProcessPayment(context.Background(), 7))

	assert.Equal(t, model.PaymentFailed, f.pays.payments[7].Status)
	assert.Equal(t, model.OrderFailed, f.orders.orders[1].Status)
	assert.Equal(t, 30, f.perfs.perfs[1].AvailableSeats)
	assert.Equal(t, 1, f.coups.releaseCalls)
	assert.Empty(t, f.ticks.byOrder[1])
}

func TestTerminalFailedPaymentShortCircuits(t *testing.T) {
	f := newFixture()
	f.pays.payments[7].Status = model.PaymentFailed
	f.orders.orders[1].Status = model.OrderFailed

	require.NoError(t, f.svc.ProcessPayment(context.Background(), 7))

	assert.Equal(t, 0, f.prov.calls)
	assert.Equal(t, 0, f.perfs.releaseCalls)
	assert.Equal(t, 0, f.ticks.createCalls)
}

func TestOpenPaymentIsANoop(t *testing.T) {
	f := newFixture()
	f.prov.tx = payment.Transaction{ID: "tr_1", Status: payment.StatusOpen}

	require.NoError(t, f.svc.ProcessPayment(context.Background(), 7))

	assert.Equal(t, model.PaymentPending, f.pays.payments[7].Status)
	assert.Equal(t, model.OrderPending, f.orders.orders[1].Status)
	assert.Equal(t, 0, f.ticks.createCalls)
}

func TestReleaseOrderIsIdempotent(t *testing.T) {
	f := newFixture()

	require.NoError(t, f.svc.ReleaseOrder(context.Background(), 1, model.OrderCancelled))
	require.NoError(t, f.svc.ReleaseOrder(context.Background(), 1, model.OrderCancelled))

	// Seats come back exactly once; the second call loses the PENDING
	// guard and does nothing.
	assert.Equal(t, 30, f.perfs.perfs[1].AvailableSeats)
	assert.Equal(t, 1, f.perfs.releaseCalls)
	assert.Equal(t, 1, f.coups.releaseCalls)
	assert.Equal(t, model.OrderCancelled, f.orders.orders[1].Status)
}

func TestReleaseRaceWithWebhookFailure(t *testing.T) {
	// Cleanup sweep and a failure webhook race: whichever runs second
	// must not double-release.
	f := newFixture()
	f.prov.tx = payment.Transaction{ID: "tr_1", Status: payment.StatusFailed}

	require.NoError(t, f.svc.ReleaseOrder(context.Background(), 1, model.OrderCancelled))
	require.NoError(t, f.svc.ProcessPayment(context.Background(), 7))

	assert.Equal(t, 30, f.perfs.perfs[1].AvailableSeats)
	assert.Equal(t, 1, f.perfs.releaseCalls)
	assert.Equal(t, 1, f.coups.releaseCalls)
	// The webhook still settles the payment; the order keeps the sweep's
	// terminal status.
	assert.Equal(t, model.PaymentFailed, f.pays.payments[7].Status)
	assert.Equal(t, model.OrderCancelled, f.orders.orders[1].Status)
}

func TestCleanupOrphansReleasesPendingOrders(t *testing.T) {
	f := newFixture()

	released, err := f.svc.CleanupOrphans(context.Background(), 2*time.Hour)
	require.NoError(t, err)

	assert.Equal(t, 1, released)
	assert.Equal(t, model.OrderCancelled, f.orders.orders[1].Status)
	assert.Equal(t, 30, f.perfs.perfs[1].AvailableSeats)
}
