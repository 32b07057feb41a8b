package events

import (
	"context"
	"time"

	"go.uber.org/zap"

	orderDomain "github.com/davicafu/hexashop/internal/order/domain"
	domainEvents "github.com/davicafu/hexashop/internal/shared/domain/events"
	sharedEvents "github.com/davicafu/hexashop/internal/shared/infra/events"
	sharedUtils "github.com/davicafu/hexashop/internal/shared/infra/utils"
)

const handlerTimeout = 5 * time.Second

// PaymentService es lo que el consumidor necesita del servicio de pedidos.
type PaymentService interface {
	ApplyPaymentSuccess(ctx context.Context, evt orderDomain.PaymentSuccessEvent) error
	ApplyPaymentFailed(ctx context.Context, evt orderDomain.PaymentFailedEvent) error
}

type OrderConsumer struct {
	service PaymentService
	log     *zap.Logger
}

func NewOrderConsumer(service PaymentService, logger *zap.Logger) *OrderConsumer {
	return &OrderConsumer{service: service, log: logger}
}

// Register asocia los topics consumidos con sus handlers.
func (c *OrderConsumer) Register(r *sharedEvents.Router) error {
	handlers := map[string]sharedEvents.HandlerFunc{
		orderDomain.PaymentSuccess: c.handlePaymentSuccess,
		orderDomain.PaymentFailed:  c.handlePaymentFailed,
		orderDomain.ProductUpdated: c.handleProductUpdated,
		orderDomain.CartUpdated:    c.handleCartUpdated,
	}
	for topic, h := range handlers {
		if err := r.Register(topic, h); err != nil {
			return err
		}
	}
	return nil
}

func (c *OrderConsumer) handlePaymentSuccess(ctx context.Context, evt domainEvents.Event) error {
	return sharedUtils.UnmarshalAndHandle(evt.Payload, func(e orderDomain.PaymentSuccessEvent) error {
		c.log.Info("💳 Processing payment success event", zap.String("order_id", e.OrderID), zap.String("payment_id", e.PaymentID))
		return c.withTimeout(ctx, evt, func(ctx context.Context) error {
			return c.service.ApplyPaymentSuccess(ctx, e)
		})
	})
}

func (c *OrderConsumer) handlePaymentFailed(ctx context.Context, evt domainEvents.Event) error {
	return sharedUtils.UnmarshalAndHandle(evt.Payload, func(e orderDomain.PaymentFailedEvent) error {
		c.log.Info("💳 Processing payment failed event", zap.String("order_id", e.OrderID), zap.String("reason", e.Reason))
		return c.withTimeout(ctx, evt, func(ctx context.Context) error {
			return c.service.ApplyPaymentFailed(ctx, e)
		})
	})
}

// Los pedidos guardan una foto del precio; solo se registra el cambio.
func (c *OrderConsumer) handleProductUpdated(ctx context.Context, evt domainEvents.Event) error {
	return sharedUtils.UnmarshalAndHandle(evt.Payload, func(e orderDomain.ProductUpdatedEvent) error {
		c.log.Info("Processing product updated event",
			zap.String("product_id", e.ProductID),
			zap.Float64("price", e.Price),
			zap.Int("stock", e.Stock),
		)
		return nil
	})
}

func (c *OrderConsumer) handleCartUpdated(ctx context.Context, evt domainEvents.Event) error {
	return sharedUtils.UnmarshalAndHandle(evt.Payload, func(e orderDomain.CartUpdatedEvent) error {
		c.log.Info("Processing cart updated event",
			zap.String("user_id", e.UserID),
			zap.String("cart_id", e.CartID),
			zap.String("action", e.Action),
		)
		return nil
	})
}

func (c *OrderConsumer) withTimeout(ctx context.Context, evt domainEvents.Event, action func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, handlerTimeout)
	defer cancel()

	if err := action(ctx); err != nil {
		c.log.Error("❌ Error handling event",
			zap.String("topic", evt.Topic),
			zap.String("correlation_id", evt.CorrelationID),
			zap.Error(err),
		)
		return err
	}
	return nil
}
