package events

import (
	"context"
	"time"

	"go.uber.org/zap"

	cartDomain "github.com/davicafu/hexashop/internal/cart/domain"
	domainEvents "github.com/davicafu/hexashop/internal/shared/domain/events"
	sharedEvents "github.com/davicafu/hexashop/internal/shared/infra/events"
	sharedUtils "github.com/davicafu/hexashop/internal/shared/infra/utils"
)

const handlerTimeout = 5 * time.Second

// CatalogSync es lo que el consumidor necesita del servicio de carrito.
type CatalogSync interface {
	RemoveDeletedProduct(ctx context.Context, productID string) error
	RefreshCartsWithProduct(ctx context.Context, productID string) (int, error)
}

// CartConsumer mantiene los carritos alineados con los cambios del catálogo.
type CartConsumer struct {
	service CatalogSync
	log     *zap.Logger
}

func NewCartConsumer(service CatalogSync, logger *zap.Logger) *CartConsumer {
	return &CartConsumer{service: service, log: logger}
}

// Register asocia los topics consumidos con sus handlers.
func (c *CartConsumer) Register(r *sharedEvents.Router) error {
	handlers := map[string]sharedEvents.HandlerFunc{
		cartDomain.ProductUpdated:    c.handleProductUpdated,
		cartDomain.ProductDeleted:    c.handleProductDeleted,
		cartDomain.ProductOutOfStock: c.handleOutOfStock,
		cartDomain.PriceChanged:      c.handlePriceChanged,
	}
	for topic, h := range handlers {
		if err := r.Register(topic, h); err != nil {
			return err
		}
	}
	return nil
}

func (c *CartConsumer) handleProductDeleted(ctx context.Context, evt domainEvents.Event) error {
	return sharedUtils.UnmarshalAndHandle(evt.Payload, func(e cartDomain.ProductDeletedEvent) error {
		c.log.Info("🗑️ Processing product deleted - Removing from carts", zap.String("product_id", e.ProductID))
		return c.withTimeout(ctx, evt, func(ctx context.Context) error {
			return c.service.RemoveDeletedProduct(ctx, e.ProductID)
		})
	})
}

func (c *CartConsumer) handleProductUpdated(ctx context.Context, evt domainEvents.Event) error {
	return sharedUtils.UnmarshalAndHandle(evt.Payload, func(e cartDomain.ProductUpdatedEvent) error {
		return c.withTimeout(ctx, evt, func(ctx context.Context) error {
			n, err := c.service.RefreshCartsWithProduct(ctx, e.ProductID)
			if err != nil {
				return err
			}
			if n > 0 && e.Stock == 0 {
				c.log.Warn("Product is out of stock and present in carts", zap.String("product_id", e.ProductID), zap.Int("carts", n))
			}
			return nil
		})
	})
}

func (c *CartConsumer) handleOutOfStock(ctx context.Context, evt domainEvents.Event) error {
	return sharedUtils.UnmarshalAndHandle(evt.Payload, func(e cartDomain.OutOfStockEvent) error {
		return c.withTimeout(ctx, evt, func(ctx context.Context) error {
			n, err := c.service.RefreshCartsWithProduct(ctx, e.ProductID)
			if err != nil {
				return err
			}
			if n > 0 {
				c.log.Warn("Product is out of stock and present in carts",
					zap.String("product_id", e.ProductID),
					zap.String("product_name", e.ProductName),
					zap.Int("carts", n),
				)
			}
			return nil
		})
	})
}

func (c *CartConsumer) handlePriceChanged(ctx context.Context, evt domainEvents.Event) error {
	return sharedUtils.UnmarshalAndHandle(evt.Payload, func(e cartDomain.PriceChangedEvent) error {
		return c.withTimeout(ctx, evt, func(ctx context.Context) error {
			n, err := c.service.RefreshCartsWithProduct(ctx, e.ProductID)
			if err != nil || n == 0 {
				return err
			}

			fields := []zap.Field{
				zap.String("product_id", e.ProductID),
				zap.Float64("old_price", e.OldPrice),
				zap.Float64("new_price", e.NewPrice),
				zap.Int("carts", n),
			}
			if e.OldPrice > 0 {
				fields = append(fields, zap.Float64("change_pct", (e.NewPrice-e.OldPrice)/e.OldPrice*100))
			}
			c.log.Info(sharedUtils.Ternary(e.NewPrice < e.OldPrice,
				"🎉 Price drop for product in carts",
				"💰 Price changed for product in carts"), fields...)
			return nil
		})
	})
}

func (c *CartConsumer) withTimeout(ctx context.Context, evt domainEvents.Event, action func(ctx context.Context) error) error {
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
