package events

import (
	"context"
	"time"

	"go.uber.org/zap"

	productDomain "github.com/davicafu/hexashop/internal/product/domain"
	domainEvents "github.com/davicafu/hexashop/internal/shared/domain/events"
	sharedEvents "github.com/davicafu/hexashop/internal/shared/infra/events"
	sharedUtils "github.com/davicafu/hexashop/internal/shared/infra/utils"
)

const handlerTimeout = 5 * time.Second

// StockService es la interfaz que define los métodos que el consumidor necesita.
type StockService interface {
	ReduceStockForOrder(ctx context.Context, evt productDomain.OrderCreatedEvent) error
	RestoreStockForOrder(ctx context.Context, evt productDomain.OrderCancelledEvent) error
}

// ProductConsumer traduce los eventos de pedidos a movimientos de stock.
type ProductConsumer struct {
	service StockService
	log     *zap.Logger
}

func NewProductConsumer(service StockService, logger *zap.Logger) *ProductConsumer {
	return &ProductConsumer{
		service: service,
		log:     logger,
	}
}

// Register asocia los topics consumidos con sus handlers.
func (c *ProductConsumer) Register(r *sharedEvents.Router) error {
	if err := r.Register(productDomain.OrderCreated, c.handleOrderCreated); err != nil {
		return err
	}
	return r.Register(productDomain.OrderCancelled, c.handleOrderCancelled)
}

func (c *ProductConsumer) handleOrderCreated(ctx context.Context, evt domainEvents.Event) error {
	return sharedUtils.UnmarshalAndHandle(evt.Payload, func(e productDomain.OrderCreatedEvent) error {
		return c.withTimeout(ctx, evt, func(ctx context.Context) error {
			return c.service.ReduceStockForOrder(ctx, e)
		})
	})
}

func (c *ProductConsumer) handleOrderCancelled(ctx context.Context, evt domainEvents.Event) error {
	return sharedUtils.UnmarshalAndHandle(evt.Payload, func(e productDomain.OrderCancelledEvent) error {
		return c.withTimeout(ctx, evt, func(ctx context.Context) error {
			return c.service.RestoreStockForOrder(ctx, e)
		})
	})
}

// Helper para ejecutar la acción con contexto limitado y log.
func (c *ProductConsumer) withTimeout(ctx context.Context, evt domainEvents.Event, action func(ctx context.Context) error) error {
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
