package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/clovermart/api/internal/domain"
	"github.com/clovermart/api/internal/payments"
	"github.com/clovermart/api/internal/platform/events"
	"github.com/clovermart/api/internal/repositories"
)

const (
	orderEventCreated          = "order.created"
	orderEventStatusChanged    = "order.status.changed"
	orderEventPaymentConfirmed = "order.payment.confirmed"
)

var (
	// ErrOrderInvalidInput signals the caller provided invalid data.
	ErrOrderInvalidInput = errors.New("order: invalid input")
	// ErrOrderNotFound indicates the order could not be located.
	ErrOrderNotFound = errors.New("order: not found")
	// ErrInvalidTransition indicates a disallowed status move was attempted.
	ErrInvalidTransition = errors.New("order: invalid status transition")
	// ErrOrderConflict indicates optimistic concurrency conflicts.
	ErrOrderConflict = errors.New("order: conflict")
)

// OrderEvent is the payload handed to the event publisher.
type OrderEvent = events.OrderEvent

// OrderEventPublisher publishes order lifecycle events for downstream consumers.
type OrderEventPublisher interface {
	PublishOrderEvent(ctx context.Context, event OrderEvent) (string, error)
}

// courierStatusPatterns maps shipping partner phrasing onto the state
// machine. Matched in order; more specific phrases come first.
var courierStatusPatterns = []struct {
	substring string
	status    domain.OrderStatus
}{
	{"out for delivery", domain.OrderStatusOutForDelivery},
	{"delivered", domain.OrderStatusDelivered},
	{"shipped", domain.OrderStatusShipped},
	{"dispatch", domain.OrderStatusShipped},
	{"cancel", domain.OrderStatusCancelled},
	{"returned", domain.OrderStatusCancelled},
}

// RefundGateway reverses captured gateway payments when a paid online order
// is cancelled. *payments.Manager satisfies it.
type RefundGateway interface {
	Refund(ctx context.Context, paymentCtx payments.PaymentContext, req payments.RefundRequest) (payments.PaymentDetails, error)
	LookupPayment(ctx context.Context, paymentCtx payments.PaymentContext, req payments.LookupRequest) (payments.PaymentDetails, error)
}

// OrderServiceDeps bundles collaborators required to construct the order service.
type OrderServiceDeps struct {
	Orders     repositories.OrderRepository
	Catalog    repositories.CatalogRepository
	UnitOfWork repositories.UnitOfWork
	Verifier   ProofVerifier
	Refunds    RefundGateway
	Events     OrderEventPublisher
	Clock      func() time.Time
	Logger     func(ctx context.Context, event string, fields map[string]any)
}

type orderService struct {
	orders     repositories.OrderRepository
	catalog    repositories.CatalogRepository
	unitOfWork repositories.UnitOfWork
	verifier   ProofVerifier
	refunds    RefundGateway
	events     OrderEventPublisher
	clock      func() time.Time
	logger     func(context.Context, string, map[string]any)
}

// NewOrderService wires dependencies into a concrete OrderService implementation.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Orders == nil {
		return nil, errors.New("order service: order repository is required")
	}

	unit := deps.UnitOfWork
	if unit == nil {
		unit = noopUnitOfWork{}
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &orderService{
		orders:     deps.Orders,
		catalog:    deps.Catalog,
		unitOfWork: unit,
		verifier:   deps.Verifier,
		refunds:    deps.Refunds,
		events:     deps.Events,
		clock: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

func (s *orderService) GetOrder(ctx context.Context, orderID string) (Order, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}
	return order, nil
}

func (s *orderService) GetOrderByNumber(ctx context.Context, number string) (Order, error) {
	number = strings.TrimSpace(number)
	if number == "" {
		return Order{}, fmt.Errorf("%w: order number is required", ErrOrderInvalidInput)
	}

	order, err := s.orders.FindByNumber(ctx, number)
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}
	return order, nil
}

func (s *orderService) ListOrders(ctx context.Context, filter OrderListFilter) (domain.CursorPage[Order], error) {
	page, err := s.orders.List(ctx, filter)
	if err != nil {
		return domain.CursorPage[Order]{}, s.mapRepositoryError(err)
	}
	return page, nil
}

func (s *orderService) TransitionStatus(ctx context.Context, cmd OrderStatusTransitionCommand) (Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	target, ok := domain.ParseOrderStatus(string(cmd.TargetStatus))
	if !ok {
		return Order{}, fmt.Errorf("%w: unknown status %q", ErrOrderInvalidInput, cmd.TargetStatus)
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}

	return s.transition(ctx, order, target, transitionOptions{
		note:  cmd.Note,
		actor: cmd.ActorID,
	})
}

func (s *orderService) Cancel(ctx context.Context, cmd CancelOrderCommand) (Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}

	return s.transition(ctx, order, domain.OrderStatusCancelled, transitionOptions{
		note:    cmd.Reason,
		actor:   cmd.ActorID,
		reason:  cmd.Reason,
		restock: cmd.Restock,
	})
}

func (s *orderService) ConfirmPayment(ctx context.Context, cmd ConfirmPaymentCommand) (Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	proof := domain.PaymentProof{
		ProviderOrderID: strings.TrimSpace(cmd.Proof.ProviderOrderID),
		PaymentID:       strings.TrimSpace(cmd.Proof.PaymentID),
		Signature:       strings.TrimSpace(cmd.Proof.Signature),
	}
	if proof.ProviderOrderID == "" || proof.PaymentID == "" || proof.Signature == "" {
		return Order{}, ErrPaymentProofMissing
	}
	if s.verifier == nil {
		return Order{}, errors.New("order: proof verifier not configured")
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}

	if order.PaymentStatus == domain.PaymentStatusPaid {
		if order.PaymentProof != nil && order.PaymentProof.PaymentID == proof.PaymentID {
			return order, nil
		}
		return Order{}, fmt.Errorf("%w: order %s already paid with a different payment", ErrOrderConflict, orderID)
	}

	if !s.verifier.Verify(proof.ProviderOrderID, proof.PaymentID, proof.Signature) {
		return Order{}, ErrPaymentVerificationFailed
	}

	now := s.clock()
	order.PaymentStatus = domain.PaymentStatusPaid
	order.PaymentProof = &proof
	order.Version++
	order.UpdatedAt = now

	if err := s.persist(ctx, order); err != nil {
		return Order{}, err
	}

	s.publishEvent(ctx, OrderEvent{
		Name:        orderEventPaymentConfirmed,
		OrderID:     order.ID,
		OrderNumber: order.Number,
		UserID:      order.UserID,
		Status:      string(order.Status),
		OccurredAt:  now,
		Payload:     map[string]any{"paymentId": proof.PaymentID},
	})

	return order, nil
}

func (s *orderService) RecordCourierEvent(ctx context.Context, cmd CourierEventCommand) (Order, error) {
	number := strings.TrimSpace(cmd.OrderNumber)
	if number == "" {
		return Order{}, fmt.Errorf("%w: order number is required", ErrOrderInvalidInput)
	}

	order, err := s.orders.FindByNumber(ctx, number)
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}

	target, ok := mapCourierStatus(cmd.StatusText)
	if !ok {
		s.logger(ctx, "order.courier.status.unknown", map[string]any{
			"order":  order.ID,
			"status": cmd.StatusText,
		})
		return order, nil
	}

	if order.Status == target {
		return order, nil
	}

	if awb := strings.TrimSpace(cmd.TrackingNumber); awb != "" {
		order.TrackingNumber = awb
	}

	stepTime := cmd.OccurredAt
	if stepTime.IsZero() {
		stepTime = s.clock()
	}

	return s.transition(ctx, order, target, transitionOptions{
		note:     cmd.Note,
		actor:    "courier",
		reason:   cmd.Note,
		stepTime: stepTime,
	})
}

type transitionOptions struct {
	note     string
	actor    string
	reason   string
	restock  bool
	stepTime time.Time
}

func (s *orderService) transition(ctx context.Context, order Order, target domain.OrderStatus, opts transitionOptions) (Order, error) {
	if order.Status == target {
		return order, nil
	}
	if !order.Status.CanTransitionTo(target) {
		return Order{}, fmt.Errorf("%w: %s to %s", ErrInvalidTransition, order.Status, target)
	}

	now := s.clock()
	stepTime := opts.stepTime
	if stepTime.IsZero() {
		stepTime = now
	}
	actor := strings.TrimSpace(opts.actor)
	note := strings.TrimSpace(opts.note)
	prev := order.Status

	if target == domain.OrderStatusCancelled {
		markCancelled(&order, stepTime, actor, note)
		s.refundPayment(ctx, &order, note)
	} else {
		markThrough(&order, target, stepTime, actor, note)
		if target == domain.OrderStatusDelivered {
			order.DeliveredAt = &stepTime
			if order.PaymentMethod == domain.PaymentMethodCashOnDelivery && order.PaymentStatus == domain.PaymentStatusPending {
				order.PaymentStatus = domain.PaymentStatusPaid
			}
		}
	}

	order.Status = target
	order.Version++
	order.UpdatedAt = now

	if err := s.persist(ctx, order); err != nil {
		return Order{}, err
	}

	if opts.restock {
		s.restoreStock(ctx, order, now)
	}

	s.publishEvent(ctx, OrderEvent{
		Name:        orderEventStatusChanged,
		OrderID:     order.ID,
		OrderNumber: order.Number,
		UserID:      order.UserID,
		Status:      string(order.Status),
		OccurredAt:  now,
		Payload: map[string]any{
			"previousStatus": string(prev),
			"note":           note,
			"actor":          actor,
		},
	})

	return order, nil
}

// markThrough completes every tracking step at or before the target rank.
// The note and actor land only on the exact target step.
func markThrough(order *Order, target domain.OrderStatus, stepTime time.Time, actor, note string) {
	for _, status := range domain.StatusesThrough(target) {
		idx := trackingIndex(order, status)
		if idx < 0 {
			order.Tracking = append(order.Tracking, domain.TrackingStep{Status: status})
			idx = len(order.Tracking) - 1
		}
		step := &order.Tracking[idx]
		if !step.Completed {
			step.Completed = true
			step.Timestamp = stepTime
		}
		if status == target {
			step.Note = note
			step.Actor = actor
			step.Timestamp = stepTime
		}
	}
}

func markCancelled(order *Order, stepTime time.Time, actor, reason string) {
	idx := trackingIndex(order, domain.OrderStatusCancelled)
	if idx < 0 {
		order.Tracking = append(order.Tracking, domain.TrackingStep{Status: domain.OrderStatusCancelled})
		idx = len(order.Tracking) - 1
	}
	step := &order.Tracking[idx]
	step.Completed = true
	step.Timestamp = stepTime
	step.Note = reason
	step.Actor = actor

	order.CancelledAt = &stepTime
	order.CancelledBy = actor
	order.CancelReason = reason
}

func trackingIndex(order *Order, status domain.OrderStatus) int {
	for i := range order.Tracking {
		if order.Tracking[i].Status == status {
			return i
		}
	}
	return -1
}

// restoreStock re-adds each line best-effort; a failed line is logged and
// the remaining lines still run.
func (s *orderService) restoreStock(ctx context.Context, order Order, now time.Time) {
	if s.catalog == nil {
		return
	}
	for _, item := range order.Items {
		line := repositories.StockLine{
			ProductID:    item.ProductID,
			VariantLabel: item.VariantLabel,
			Quantity:     item.Quantity,
		}
		if err := s.catalog.RestoreStock(ctx, line, now); err != nil {
			s.logger(ctx, "order.stock.restore.failed", map[string]any{
				"order":   order.ID,
				"product": item.ProductID,
				"variant": item.VariantLabel,
				"error":   err.Error(),
			})
		}
	}
}

// refundPayment reverses the gateway charge for an order that was paid
// online before cancellation. The gateway is checked first so a charge the
// partner already reversed is not refunded twice. A failed refund leaves the
// payment marked paid and is logged for support to retry.
func (s *orderService) refundPayment(ctx context.Context, order *Order, reason string) {
	if s.refunds == nil {
		return
	}
	if order.PaymentMethod != domain.PaymentMethodOnline || order.PaymentStatus != domain.PaymentStatusPaid {
		return
	}
	if order.PaymentProof == nil || order.PaymentProof.PaymentID == "" {
		return
	}

	paymentCtx := payments.PaymentContext{Currency: order.Currency}
	paymentID := order.PaymentProof.PaymentID

	if details, err := s.refunds.LookupPayment(ctx, paymentCtx, payments.LookupRequest{PaymentID: paymentID}); err == nil && details.Status == payments.StatusRefunded {
		order.PaymentStatus = domain.PaymentStatusRefunded
		return
	}

	_, err := s.refunds.Refund(ctx, paymentCtx, payments.RefundRequest{
		PaymentID:      paymentID,
		Reason:         reason,
		IdempotencyKey: "refund-" + order.ID,
		Metadata: map[string]string{
			"orderId":     order.ID,
			"orderNumber": order.Number,
		},
	})
	if err != nil {
		s.logger(ctx, "order.refund.failed", map[string]any{
			"order":   order.ID,
			"payment": paymentID,
			"error":   err.Error(),
		})
		return
	}

	order.PaymentStatus = domain.PaymentStatusRefunded
	s.logger(ctx, "order.refund.issued", map[string]any{
		"order":   order.ID,
		"payment": paymentID,
	})
}

func (s *orderService) persist(ctx context.Context, order Order) error {
	return s.unitOfWork.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.orders.Update(txCtx, order); err != nil {
			return s.mapRepositoryError(err)
		}
		return nil
	})
}

func (s *orderService) publishEvent(ctx context.Context, event OrderEvent) {
	if s.events == nil {
		return
	}
	if _, err := s.events.PublishOrderEvent(ctx, event); err != nil {
		s.logger(ctx, "order.event.publish.failed", map[string]any{
			"event": event.Name,
			"order": event.OrderID,
			"error": err.Error(),
		})
	}
}

func (s *orderService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrOrderNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrOrderConflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("order: repository unavailable: %w", err)
		}
	}

	return err
}

func mapCourierStatus(raw string) (domain.OrderStatus, bool) {
	text := strings.ToLower(strings.TrimSpace(raw))
	if text == "" {
		return "", false
	}
	for _, pattern := range courierStatusPatterns {
		if strings.Contains(text, pattern.substring) {
			return pattern.status, true
		}
	}
	return "", false
}

type noopUnitOfWork struct{}

func (noopUnitOfWork) RunInTx(ctx context.Context, fn func(context.Context) error) error {
	return fn(ctx)
}
