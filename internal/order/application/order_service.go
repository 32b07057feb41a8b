package application

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	orderDomain "github.com/davicafu/hexashop/internal/order/domain"
	sharedBus "github.com/davicafu/hexashop/internal/shared/infra/platform/bus"
	sharedCache "github.com/davicafu/hexashop/internal/shared/infra/platform/cache"
)

const (
	reasonPaymentFailed = "Payment failed"
	reasonExpired       = "Pending order expired"
)

// OrderService define los casos de uso de pedidos.
type OrderService struct {
	repo      orderDomain.OrderRepository
	carts     orderDomain.CartGateway
	catalog   orderDomain.ProductCatalog
	cache     sharedCache.Cache
	publisher sharedBus.EventPublisher
	log       *zap.Logger
	now       func() time.Time
}

func NewOrderService(
	repo orderDomain.OrderRepository,
	carts orderDomain.CartGateway,
	catalog orderDomain.ProductCatalog,
	cache sharedCache.Cache,
	publisher sharedBus.EventPublisher,
	log *zap.Logger,
) *OrderService {
	return &OrderService{
		repo:      repo,
		carts:     carts,
		catalog:   catalog,
		cache:     cache,
		publisher: publisher,
		log:       log,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// CreateOrder convierte el carrito del usuario en un pedido Pending.
// Los productos que no se pueden consultar se omiten.
func (s *OrderService) CreateOrder(ctx context.Context, customer orderDomain.Customer) (*orderDomain.Order, error) {
	if customer.ID == "" {
		return nil, orderDomain.ErrMissingUser
	}
	if customer.Email == "" || customer.Name == "" {
		s.log.Warn("User email or name missing", zap.String("user_id", customer.ID))
		return nil, orderDomain.ErrMissingContact
	}

	lines, err := s.carts.GetCart(ctx, customer)
	if err != nil {
		s.log.Error("Failed to fetch cart", zap.String("user_id", customer.ID), zap.Error(err))
		return nil, err
	}
	if len(lines) == 0 {
		s.log.Warn("Cart is empty", zap.String("user_id", customer.ID))
		return nil, orderDomain.ErrCartEmpty
	}

	items := make([]orderDomain.OrderItem, 0, len(lines))
	for _, line := range lines {
		p, err := s.catalog.GetProduct(ctx, line.ProductID)
		if err != nil {
			s.log.Error("Error fetching product, skipping", zap.String("product_id", line.ProductID), zap.Error(err))
			continue
		}
		items = append(items, orderDomain.OrderItem{
			ProductID: p.ID,
			Name:      p.Name,
			Price:     p.Price,
			Image:     p.Image,
			Quantity:  line.Quantity,
		})
	}

	o, err := orderDomain.NewOrder(customer.ID, items, s.now())
	if err != nil {
		s.log.Warn("No valid products in cart", zap.String("user_id", customer.ID), zap.Error(err))
		return nil, err
	}

	if err := s.repo.Create(ctx, o); err != nil {
		s.log.Error("Failed to save order", zap.String("user_id", customer.ID), zap.Error(err))
		return nil, err
	}
	s.log.Info("Order saved", zap.String("order_id", o.ID.String()), zap.Float64("total", o.TotalAmount))

	sharedCache.Invalidate(ctx, s.cache, s.log, orderDomain.OrdersCacheKey(customer.ID))

	s.publish(ctx, orderDomain.OrderCreated, orderDomain.OrderCreatedEvent{
		OrderID:     o.ID.String(),
		UserID:      o.UserID,
		UserEmail:   customer.Email,
		UserName:    customer.Name,
		Items:       o.Lines(),
		TotalAmount: o.TotalAmount,
		Status:      o.Status,
		CreatedAt:   o.CreatedAt,
	})

	// El pedido ya existe: un fallo al vaciar el carrito no lo deshace
	if err := s.carts.ClearCart(ctx, customer); err != nil {
		s.log.Warn("Failed to clear cart after order", zap.String("user_id", customer.ID), zap.Error(err))
	}
	return o, nil
}

// GetUserOrders usa cache-aside sobre orders:{userId}.
func (s *OrderService) GetUserOrders(ctx context.Context, userID string) ([]*orderDomain.Order, bool, error) {
	orders, cached, err := sharedCache.GetOrLoad(ctx, s.cache, orderDomain.OrdersCacheKey(userID),
		sharedCache.FixedTTL[[]*orderDomain.Order](sharedCache.TTLOrders),
		func(ctx context.Context) ([]*orderDomain.Order, error) {
			found, err := s.repo.ListByUser(ctx, userID)
			if err != nil {
				return nil, err
			}
			if found == nil {
				found = []*orderDomain.Order{}
			}
			return found, nil
		}, s.log)
	if err != nil {
		s.log.Error("Failed to fetch orders", zap.String("user_id", userID), zap.Error(err))
		return nil, false, err
	}
	return orders, cached, nil
}

// MarkOrderPaid marca como pagado un pedido del propio usuario.
func (s *OrderService) MarkOrderPaid(ctx context.Context, customer orderDomain.Customer, orderID uuid.UUID) (*orderDomain.Order, error) {
	if customer.Email == "" || customer.Name == "" {
		return nil, orderDomain.ErrMissingContact
	}

	o, err := s.repo.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	// Un pedido ajeno se trata como inexistente
	if o.UserID != customer.ID {
		return nil, orderDomain.ErrOrderNotFound
	}

	if err := o.MarkPaid("", s.now()); err != nil {
		s.log.Info("Order cannot be marked as paid", zap.String("order_id", orderID.String()), zap.Error(err))
		return nil, err
	}
	if err := s.repo.Transition(ctx, o, orderDomain.StatusPending); err != nil {
		return nil, err
	}
	s.log.Info("Order status updated to Paid", zap.String("order_id", orderID.String()))

	sharedCache.Invalidate(ctx, s.cache, s.log, orderDomain.OrdersCacheKey(o.UserID))
	s.publishPaid(ctx, o, customer)
	return o, nil
}

// ApplyPaymentSuccess procesa payment.success. Repetir el evento no tiene efecto.
func (s *OrderService) ApplyPaymentSuccess(ctx context.Context, evt orderDomain.PaymentSuccessEvent) error {
	o, ok, err := s.loadForEvent(ctx, evt.OrderID)
	if !ok {
		return err
	}

	if err := o.MarkPaid(evt.PaymentID, s.now()); err != nil {
		s.log.Info("ℹ️ Payment success ignored", zap.String("order_id", evt.OrderID), zap.String("status", string(o.Status)), zap.Error(err))
		return nil
	}
	if err := s.repo.Transition(ctx, o, orderDomain.StatusPending); err != nil {
		if errors.Is(err, orderDomain.ErrStaleStatus) {
			s.log.Info("ℹ️ Order already transitioned", zap.String("order_id", evt.OrderID))
			return nil
		}
		return err
	}
	s.log.Info("✅ Order marked as paid", zap.String("order_id", evt.OrderID), zap.String("payment_id", evt.PaymentID))

	sharedCache.Invalidate(ctx, s.cache, s.log, orderDomain.OrdersCacheKey(o.UserID))
	s.publishPaid(ctx, o, orderDomain.Customer{ID: o.UserID})
	return nil
}

// ApplyPaymentFailed cancela el pedido Pending y publica order.cancelled
// para que el catálogo devuelva el stock.
func (s *OrderService) ApplyPaymentFailed(ctx context.Context, evt orderDomain.PaymentFailedEvent) error {
	o, ok, err := s.loadForEvent(ctx, evt.OrderID)
	if !ok {
		return err
	}

	reason := evt.Reason
	if reason == "" {
		reason = reasonPaymentFailed
	}
	if err := o.Cancel(reason, s.now()); err != nil {
		s.log.Info("ℹ️ Payment failure ignored", zap.String("order_id", evt.OrderID), zap.String("status", string(o.Status)), zap.Error(err))
		return nil
	}
	if err := s.repo.Transition(ctx, o, orderDomain.StatusPending); err != nil {
		if errors.Is(err, orderDomain.ErrStaleStatus) {
			s.log.Info("ℹ️ Order already transitioned", zap.String("order_id", evt.OrderID))
			return nil
		}
		return err
	}
	s.log.Info("❌ Order cancelled due to payment failure", zap.String("order_id", evt.OrderID))

	sharedCache.Invalidate(ctx, s.cache, s.log, orderDomain.OrdersCacheKey(o.UserID))
	s.publishCancelled(ctx, o)
	return nil
}

// CancelOldPendingOrders cancela los pedidos Pending más antiguos que olderThan.
// Lo invoca el job periódico de limpieza.
func (s *OrderService) CancelOldPendingOrders(ctx context.Context, olderThan time.Duration) (int, error) {
	now := s.now()
	cancelled, err := s.repo.CancelPendingBefore(ctx, now.Add(-olderThan), now, reasonExpired)
	if err != nil {
		s.log.Error("Error cancelling old pending orders", zap.Error(err))
		return 0, err
	}

	users := make(map[string]struct{}, len(cancelled))
	for _, o := range cancelled {
		if _, seen := users[o.UserID]; !seen {
			users[o.UserID] = struct{}{}
			sharedCache.Invalidate(ctx, s.cache, s.log, orderDomain.OrdersCacheKey(o.UserID))
		}
		s.publishCancelled(ctx, o)
	}

	s.log.Info("Cancelled old pending orders", zap.Int("count", len(cancelled)))
	return len(cancelled), nil
}

// loadForEvent devuelve ok=false cuando el evento no se puede aplicar.
// Un id inválido o un pedido inexistente no son reintentables.
func (s *OrderService) loadForEvent(ctx context.Context, rawID string) (*orderDomain.Order, bool, error) {
	id, err := uuid.Parse(rawID)
	if err != nil {
		s.log.Warn("Event with invalid order id", zap.String("order_id", rawID))
		return nil, false, nil
	}
	o, err := s.repo.GetByID(ctx, id)
	if errors.Is(err, orderDomain.ErrOrderNotFound) {
		s.log.Warn("Order not found for payment event", zap.String("order_id", rawID))
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return o, true, nil
}

func (s *OrderService) publishPaid(ctx context.Context, o *orderDomain.Order, customer orderDomain.Customer) {
	evt := orderDomain.OrderPaidEvent{
		OrderID:     o.ID.String(),
		UserID:      o.UserID,
		UserEmail:   customer.Email,
		UserName:    customer.Name,
		PaymentID:   o.PaymentID,
		TotalAmount: o.TotalAmount,
		Status:      o.Status,
		Items:       o.Lines(),
	}
	if o.PaidAt != nil {
		evt.PaidAt = *o.PaidAt
	}
	s.publish(ctx, orderDomain.OrderPaid, evt)
}

func (s *OrderService) publishCancelled(ctx context.Context, o *orderDomain.Order) {
	evt := orderDomain.OrderCancelledEvent{
		OrderID: o.ID.String(),
		UserID:  o.UserID,
		Reason:  o.CancellationReason,
		Items:   o.Lines(),
	}
	if o.CancelledAt != nil {
		evt.CancelledAt = *o.CancelledAt
	}
	s.publish(ctx, orderDomain.OrderCancelled, evt)
}

// publish espera al Producer pero nunca falla el caso de uso.
func (s *OrderService) publish(ctx context.Context, topic string, payload interface{}) {
	if s.publisher == nil {
		return
	}
	res, err := s.publisher.Publish(ctx, topic, payload)
	if err != nil {
		s.log.Warn("Kafka publish failed (non-blocking)", zap.String("topic", topic), zap.Error(err))
		return
	}
	if res.Queued {
		s.log.Info("Event queued until broker is available", zap.String("topic", topic))
	}
}
