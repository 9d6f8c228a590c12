package service

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/stagehall/boxoffice/internal/cache"
	"github.com/stagehall/boxoffice/internal/database"
	"github.com/stagehall/boxoffice/internal/model"
	"github.com/stagehall/boxoffice/internal/payment"
	"github.com/stagehall/boxoffice/internal/seating"
)

// Narrow store surfaces consumed by fulfillment. Satisfied by the
// repository types; tests substitute in-memory fakes.
type orderStore interface {
	GetByID(ctx context.Context, id uint64) (*model.Order, error)
	LineItems(ctx context.Context, orderID uint64) ([]model.LineItem, error)
	TransitionStatusTx(ctx context.Context, tx *sql.Tx, orderID uint64, from, to string) (bool, error)
	ListOrphaned(ctx context.Context, cutoff time.Time) ([]uint64, error)
}

type performanceStore interface {
	LockTx(ctx context.Context, tx *sql.Tx, id uint64) (*model.Performance, error)
	ReleaseSeatsTx(ctx context.Context, tx *sql.Tx, quantities map[uint64]int) error
}

type paymentStore interface {
	GetByID(ctx context.Context, id uint64) (*model.Payment, error)
	TransitionStatusTx(ctx context.Context, tx *sql.Tx, paymentID uint64, to string) (bool, error)
}

type ticketStore interface {
	ExistsForOrderTx(ctx context.Context, tx *sql.Tx, orderID uint64) (bool, error)
	CreateBatchTx(ctx context.Context, tx *sql.Tx, tickets []model.Ticket) error
	OccupiedTx(ctx context.Context, tx *sql.Tx, performanceID uint64) (map[seating.SeatRef]bool, error)
	ListByOrder(ctx context.Context, orderID uint64) ([]model.Ticket, error)
}

type couponStore interface {
	ReleaseTx(ctx context.Context, tx *sql.Tx, orderID uint64) error
}

// FulfillmentService finalizes or rolls back orders when the payment
// provider calls back. Every path is idempotent: duplicate webhook
// deliveries, crashed retries and the orphan-cleanup sweep all converge on
// the same final state.
type FulfillmentService struct {
	DB           *sql.DB
	Orders       orderStore
	Performances performanceStore
	Payments     paymentStore
	Tickets      ticketStore
	Coupons      couponStore
	Provider     payment.Provider
	Mailer       Mailer
	Renderer     TicketRenderer
	Cache        *cache.Availability
	Log          *logrus.Entry

	// RunTx overrides the transaction runner. Nil uses DB via
	// database.WithTx; tests substitute a pass-through.
	RunTx func(ctx context.Context, fn func(tx *sql.Tx) error) error
}

func (s *FulfillmentService) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	if s.RunTx != nil {
		return s.RunTx(ctx, fn)
	}
	return database.WithTx(ctx, s.DB, fn)
}

// ProcessPayment handles one webhook delivery (or retry) for a payment.
// A payment that already failed or was cancelled short-circuits with no
// side effects; one that already succeeded resumes fulfillment, which
// covers a crash between the status commit and ticket generation and is
// itself a no-op once tickets exist. Open payments consult the provider,
// the authoritative source for the outcome.
func (s *FulfillmentService) ProcessPayment(ctx context.Context, paymentID uint64) error {
	p, err := s.Payments.GetByID(ctx, paymentID)
	if err != nil {
		return err
	}
	switch p.Status {
	case model.PaymentSucceeded:
		return s.ensureFulfilled(ctx, p.OrderID)
	case model.PaymentFailed, model.PaymentCancelled:
		s.Log.WithField("payment", p.ID).Debug("payment already terminal, skipping")
		return nil
	}

	providerTx, err := s.Provider.GetPayment(ctx, p.ProviderTxID)
	if err != nil {
		return fmt.Errorf("fetch provider state: %w", err)
	}
	if !providerTx.Terminal() {
		// Still open at the provider; the next webhook will settle it.
		return nil
	}

	if providerTx.Succeeded() {
		return s.fulfill(ctx, p)
	}

	target := model.PaymentFailed
	if providerTx.Status == payment.StatusCancelled {
		target = model.PaymentCancelled
	}
	return s.rollback(ctx, p, target)
}

// fulfill marks the payment and order paid, then generates tickets. The
// status transition is a conditional write: of two concurrent deliveries
// that both saw PENDING, only one wins the update and proceeds; the
// loser leaves fulfillment entirely to the winner (a crashed winner is
// recovered by the next delivery's resume path).
func (s *FulfillmentService) fulfill(ctx context.Context, p *model.Payment) error {
	var won bool
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		var err error
		won, err = s.Payments.TransitionStatusTx(ctx, tx, p.ID, model.PaymentSucceeded)
		if err != nil {
			return err
		}
		if !won {
			return nil
		}
		orderPaid, err := s.Orders.TransitionStatusTx(ctx, tx, p.OrderID, model.OrderPending, model.OrderPaid)
		if err != nil {
			return err
		}
		if !orderPaid {
			// The cleanup sweep released the order before the money
			// arrived; the charge needs manual follow-up.
			s.Log.WithFields(logrus.Fields{"payment": p.ID, "order": p.OrderID}).
				Warn("payment succeeded but order no longer pending, manual refund may be required")
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("record payment success: %w", err)
	}
	if !won {
		return nil
	}
	return s.ensureFulfilled(ctx, p.OrderID)
}

// ensureFulfilled generates tickets for a paid order if they do not exist
// yet. Side effects (document render, confirmation email) fire only when
// tickets were freshly created, so replayed deliveries stay silent.
func (s *FulfillmentService) ensureFulfilled(ctx context.Context, orderID uint64) error {
	order, err := s.Orders.GetByID(ctx, orderID)
	if err != nil {
		return err
	}
	if order.Status != model.OrderPaid {
		return nil // released before the money arrived; nothing to fulfill
	}

	tickets, created, err := s.generateTickets(ctx, order.ID)
	if err != nil {
		return err
	}
	if !created {
		return nil
	}

	// Both side effects are best-effort: a failed document render or a
	// lost confirmation email never unwinds paid tickets.
	for _, t := range tickets {
		if _, err := s.Renderer.Render(ctx, t); err != nil {
			s.Log.WithError(err).WithField("ticket", t.ID).Warn("ticket document render failed")
		}
	}
	if err := s.Mailer.SendOrderConfirmation(ctx, order, tickets); err != nil {
		s.Log.WithError(err).WithField("order", order.PublicID).
			Warn("confirmation email failed")
	}
	return nil
}

// generateTickets materializes concrete seats for every line item of the
// order in one transaction, reporting whether this call created them.
// Performance rows are locked (in id order) first, so the existence check
// and the occupied sets are read only after any concurrent fulfillment on
// the same performances has committed; line items needing accessibility
// run last so ordinary assignments do not eat the edge-zone seats first.
func (s *FulfillmentService) generateTickets(ctx context.Context, orderID uint64) ([]model.Ticket, bool, error) {
	items, err := s.Orders.LineItems(ctx, orderID)
	if err != nil {
		return nil, false, err
	}

	var tickets []model.Ticket
	created := false
	err = s.inTx(ctx, func(tx *sql.Tx) error {
		perfIDs := make(map[uint64]int)
		for _, it := range items {
			perfIDs[it.PerformanceID]++
		}
		perfs := make(map[uint64]*model.Performance, len(perfIDs))
		occupied := make(map[uint64]map[seating.SeatRef]bool, len(perfIDs))
		for _, id := range sortedKeys(perfIDs) {
			perf, err := s.Performances.LockTx(ctx, tx, id)
			if err != nil {
				return err
			}
			occ, err := s.Tickets.OccupiedTx(ctx, tx, id)
			if err != nil {
				return err
			}
			perfs[id] = perf
			occupied[id] = occ
		}

		exists, err := s.Tickets.ExistsForOrderTx(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if exists {
			return nil
		}

		for _, it := range items {
			perf := perfs[it.PerformanceID]
			occ := occupied[it.PerformanceID]
			seats := seating.Assign(occ, perf.Rows, perf.SeatsPerRow, it.Quantity, it.NeedsAccessibility)
			if len(seats) < it.Quantity {
				return fmt.Errorf("performance %d: only %d of %d seats assignable",
					it.PerformanceID, len(seats), it.Quantity)
			}
			for _, seat := range seats {
				occ[seating.SeatRef{Row: seat.Row, Seat: seat.Seat}] = true
				tickets = append(tickets, model.Ticket{
					OrderID:       orderID,
					PerformanceID: it.PerformanceID,
					Row:           seat.Row,
					Seat:          seat.Seat,
					Accessible:    seat.Accessible,
				})
			}
		}
		created = true
		return s.Tickets.CreateBatchTx(ctx, tx, tickets)
	})
	if err != nil {
		return nil, false, fmt.Errorf("generate tickets for order %d: %w", orderID, err)
	}
	if !created {
		tickets, err = s.Tickets.ListByOrder(ctx, orderID)
		if err != nil {
			return nil, false, err
		}
	}
	return tickets, created, nil
}

// rollback marks the payment terminal and releases the order's inventory
// commitment.
func (s *FulfillmentService) rollback(ctx context.Context, p *model.Payment, paymentStatus string) error {
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := s.Payments.TransitionStatusTx(ctx, tx, p.ID, paymentStatus); err != nil {
			return err
		}
		return s.releaseOrderTx(ctx, tx, p.OrderID, model.OrderFailed)
	})
	if err != nil {
		return fmt.Errorf("roll back payment %d: %w", p.ID, err)
	}
	s.invalidateOrder(ctx, p.OrderID)
	return nil
}

// ReleaseOrder reverses the inventory commitment of a pending order. It
// is the single shared release path used by both the webhook failure
// branch and the orphan-cleanup sweep; the conditional PENDING -> target
// transition makes it idempotent under races between the two.
func (s *FulfillmentService) ReleaseOrder(ctx context.Context, orderID uint64, targetStatus string) error {
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		return s.releaseOrderTx(ctx, tx, orderID, targetStatus)
	})
	if err != nil {
		return fmt.Errorf("release order %d: %w", orderID, err)
	}
	s.invalidateOrder(ctx, orderID)
	return nil
}

// releaseOrderTx performs the release inside an existing transaction:
// flip the order out of PENDING (aborting silently if someone else
// already did), then restore seat counts and return the coupon
// redemption, all atomically with the status flip.
func (s *FulfillmentService) releaseOrderTx(ctx context.Context, tx *sql.Tx, orderID uint64, targetStatus string) error {
	won, err := s.Orders.TransitionStatusTx(ctx, tx, orderID, model.OrderPending, targetStatus)
	if err != nil {
		return err
	}
	if !won {
		return nil // already released or fulfilled; nothing to undo
	}
	items, err := s.Orders.LineItems(ctx, orderID)
	if err != nil {
		return err
	}
	quantities := make(map[uint64]int)
	for _, it := range items {
		quantities[it.PerformanceID] += it.Quantity
	}
	if err := s.Performances.ReleaseSeatsTx(ctx, tx, quantities); err != nil {
		return err
	}
	return s.Coupons.ReleaseTx(ctx, tx, orderID)
}

// CleanupOrphans releases every order stuck pending past the cutoff whose
// callback evidently is not coming. Returns the number of orders
// released.
func (s *FulfillmentService) CleanupOrphans(ctx context.Context, olderThan time.Duration) (int, error) {
	ids, err := s.Orders.ListOrphaned(ctx, time.Now().UTC().Add(-olderThan))
	if err != nil {
		return 0, err
	}
	released := 0
	for _, id := range ids {
		if err := s.ReleaseOrder(ctx, id, model.OrderCancelled); err != nil {
			s.Log.WithError(err).WithField("order", id).Error("orphan release failed")
			continue
		}
		released++
	}
	if released > 0 {
		s.Log.WithField("released", released).Info("orphaned orders released")
	}
	return released, nil
}

func (s *FulfillmentService) invalidateOrder(ctx context.Context, orderID uint64) {
	items, err := s.Orders.LineItems(ctx, orderID)
	if err != nil {
		return
	}
	ids := make([]uint64, 0, len(items))
	for _, it := range items {
		ids = append(ids, it.PerformanceID)
	}
	s.Cache.Invalidate(ctx, ids...)
}

// sortedKeys mirrors the lock-ordering rule used by the repositories.
func sortedKeys(m map[uint64]int) []uint64 {
	keys := make([]uint64, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}
