package application

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	productDomain "github.com/davicafu/hexashop/internal/product/domain"
	sharedBus "github.com/davicafu/hexashop/internal/shared/infra/platform/bus"
	sharedCache "github.com/davicafu/hexashop/internal/shared/infra/platform/cache"
	sharedUtils "github.com/davicafu/hexashop/internal/shared/infra/utils"
)

// ProductService define los casos de uso del catálogo.
// Incorpora repositorio, caché, publicador de eventos y logger.
type ProductService struct {
	repo      productDomain.ProductRepository
	cache     sharedCache.Cache
	publisher sharedBus.EventPublisher
	log       *zap.Logger
	now       func() time.Time
}

func NewProductService(repo productDomain.ProductRepository, cache sharedCache.Cache, publisher sharedBus.EventPublisher, log *zap.Logger) *ProductService {
	return &ProductService{
		repo:      repo,
		cache:     cache,
		publisher: publisher,
		log:       log,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// CreateProduct valida, guarda y publica product.created.
func (s *ProductService) CreateProduct(ctx context.Context, p *productDomain.Product) (*productDomain.Product, error) {
	p.Normalize()
	if err := p.Validate(); err != nil {
		s.log.Warn("Invalid product", zap.String("name", p.Name), zap.Error(err))
		return nil, err
	}

	if _, err := s.repo.FindByName(ctx, p.Name); err == nil {
		s.log.Warn("Product exists", zap.String("name", p.Name))
		return nil, productDomain.ErrProductAlreadyExists
	} else if !errors.Is(err, productDomain.ErrProductNotFound) {
		return nil, err
	}

	now := s.now()
	p.ID = uuid.NewString()
	p.CreatedAt = now
	p.UpdatedAt = now

	if err := s.repo.Create(ctx, p); err != nil {
		s.log.Error("Failed to create product", zap.Error(err))
		return nil, err
	}
	s.log.Info("Product added", zap.String("product_id", p.ID))

	// Los listados cacheados ya no reflejan el catálogo
	sharedCache.InvalidatePattern(ctx, s.cache, s.log, productDomain.ProductListPattern)

	s.publish(ctx, productDomain.ProductCreated, productDomain.ProductCreatedEvent{
		ProductID: p.ID,
		Name:      p.Name,
		Price:     p.Price,
		Category:  p.Category,
		Stock:     p.Stock,
		CreatedAt: p.CreatedAt,
	})
	return p, nil
}

// GetProduct usa cache-aside sobre product:{id}. El bool indica si vino de caché.
func (s *ProductService) GetProduct(ctx context.Context, id string) (*productDomain.Product, bool, error) {
	p, cached, err := sharedCache.GetOrLoad(ctx, s.cache, productDomain.ProductCacheKeyByID(id),
		sharedCache.FixedTTL[*productDomain.Product](sharedCache.TTLProduct),
		func(ctx context.Context) (*productDomain.Product, error) {
			var found *productDomain.Product
			err := sharedUtils.RetryIf(ctx, 3, 100*time.Millisecond, isTransient, func() error {
				var errRetry error
				found, errRetry = s.repo.GetByID(ctx, id)
				return errRetry
			})
			return found, err
		}, s.log)
	if err != nil {
		if errors.Is(err, productDomain.ErrProductNotFound) {
			s.log.Warn("Product not found", zap.String("product_id", id))
		} else {
			s.log.Error("Failed to fetch product", zap.String("product_id", id), zap.Error(err))
		}
		return nil, false, err
	}
	return p, cached, nil
}

// ListProducts usa cache-aside sobre la clave derivada de la consulta.
// Un listado vacío se cachea con un TTL corto.
func (s *ProductService) ListProducts(ctx context.Context, q productDomain.ListQuery) (*productDomain.ProductPage, bool, error) {
	key := productDomain.ProductListCacheKey(q)
	nq := q.Normalized()

	ttlFor := func(page *productDomain.ProductPage) int {
		if len(page.Items) == 0 {
			return sharedCache.TTLEmptyListing
		}
		return sharedCache.TTLProductList
	}

	page, cached, err := sharedCache.GetOrLoad(ctx, s.cache, key, ttlFor,
		func(ctx context.Context) (*productDomain.ProductPage, error) {
			items, total, err := s.repo.List(ctx, nq.Criteria(), nq.PageSpec(), nq.SortSpec())
			if err != nil {
				return nil, err
			}
			if items == nil {
				items = []*productDomain.Product{}
			}
			return &productDomain.ProductPage{
				Items: items,
				Total: total,
				Page:  nq.Page,
				Pages: int(math.Ceil(float64(total) / float64(nq.Limit))),
			}, nil
		}, s.log)
	if err != nil {
		s.log.Error("Failed to list products", zap.String("key", key), zap.Error(err))
		return nil, false, err
	}
	return page, cached, nil
}

// UpdateProduct aplica el patch y publica product.updated, y además
// product.price.changed y product.out.of.stock cuando corresponde.
func (s *ProductService) UpdateProduct(ctx context.Context, id string, patch productDomain.ProductPatch) (*productDomain.Product, error) {
	if err := patch.Validate(); err != nil {
		return nil, err
	}

	// El stock solo se escribe si viene en el patch: las reducciones por pedido no se pisan
	before, p, err := s.repo.UpdateFields(ctx, id, patch, s.now())
	if err != nil {
		if !errors.Is(err, productDomain.ErrProductNotFound) {
			s.log.Error("Failed to update product", zap.String("product_id", id), zap.Error(err))
		}
		return nil, err
	}
	oldPrice, oldStock := before.Price, before.Stock

	s.invalidateProduct(ctx, id)

	s.publish(ctx, productDomain.ProductUpdated, productDomain.ProductUpdatedEvent{
		ProductID: p.ID,
		Name:      p.Name,
		Price:     p.Price,
		Category:  p.Category,
		Stock:     p.Stock,
		UpdatedAt: p.UpdatedAt,
	})
	if p.Price != oldPrice {
		s.publish(ctx, productDomain.PriceChanged, productDomain.PriceChangedEvent{
			ProductID:   p.ID,
			ProductName: p.Name,
			OldPrice:    oldPrice,
			NewPrice:    p.Price,
		})
	}
	if p.Stock == 0 && oldStock > 0 {
		s.publish(ctx, productDomain.ProductOutOfStock, productDomain.OutOfStockEvent{
			ProductID:   p.ID,
			ProductName: p.Name,
		})
	}
	return p, nil
}

// DeleteProduct borra el producto y publica product.deleted.
func (s *ProductService) DeleteProduct(ctx context.Context, id string) error {
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.DeleteByID(ctx, id); err != nil {
		return err
	}

	s.invalidateProduct(ctx, id)

	s.publish(ctx, productDomain.ProductDeleted, productDomain.ProductDeletedEvent{
		ProductID: id,
		Name:      p.Name,
		DeletedAt: s.now(),
	})
	return nil
}

// ReduceStockForOrder descuenta el stock de cada línea del pedido. Es seguro ante
// redelivery: el repositorio marca el pedido como aplicado en cada producto.
// Un producto inexistente se ignora; los fallos del store se acumulan y se devuelven.
func (s *ProductService) ReduceStockForOrder(ctx context.Context, evt productDomain.OrderCreatedEvent) error {
	s.log.Info("📦 Processing order created - Reducing stock", zap.String("order_id", evt.OrderID))

	var errs []error
	for _, line := range mergeLines(evt.Items) {
		change, err := s.repo.ReduceStock(ctx, line.ProductID, evt.OrderID, line.Quantity)
		if errors.Is(err, productDomain.ErrProductNotFound) {
			s.log.Warn("Product in order not found, skipping", zap.String("product_id", line.ProductID), zap.String("order_id", evt.OrderID))
			continue
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("reduce stock %s: %w", line.ProductID, err))
			continue
		}
		if !change.Applied {
			s.log.Info("ℹ️ Stock already reduced for order, skipping",
				zap.String("product_id", line.ProductID), zap.String("order_id", evt.OrderID))
			continue
		}

		s.log.Info("✅ Stock reduced for product",
			zap.String("product_id", line.ProductID),
			zap.Int("quantity", line.Quantity),
			zap.Int("new_stock", change.Stock),
		)
		s.invalidateProduct(ctx, line.ProductID)

		if change.Stock == 0 {
			s.publish(ctx, productDomain.ProductOutOfStock, productDomain.OutOfStockEvent{
				ProductID:   change.ProductID,
				ProductName: change.Name,
				OrderID:     evt.OrderID,
			})
		}
	}
	return errors.Join(errs...)
}

// RestoreStockForOrder devuelve el stock de un pedido cancelado. Solo actúa sobre
// los productos a los que ese pedido había descontado stock.
func (s *ProductService) RestoreStockForOrder(ctx context.Context, evt productDomain.OrderCancelledEvent) error {
	s.log.Info("↩️ Processing order cancelled - Restoring stock", zap.String("order_id", evt.OrderID))

	var errs []error
	for _, line := range mergeLines(evt.Items) {
		change, err := s.repo.RestoreStock(ctx, line.ProductID, evt.OrderID, line.Quantity)
		if errors.Is(err, productDomain.ErrProductNotFound) {
			s.log.Warn("Product in cancelled order not found, skipping", zap.String("product_id", line.ProductID))
			continue
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("restore stock %s: %w", line.ProductID, err))
			continue
		}
		if !change.Applied {
			s.log.Info("ℹ️ Nothing to restore for order", zap.String("product_id", line.ProductID), zap.String("order_id", evt.OrderID))
			continue
		}

		s.log.Info("✅ Stock restored for product",
			zap.String("product_id", line.ProductID),
			zap.Int("quantity", line.Quantity),
			zap.Int("new_stock", change.Stock),
		)
		s.invalidateProduct(ctx, line.ProductID)
	}
	return errors.Join(errs...)
}

func (s *ProductService) invalidateProduct(ctx context.Context, id string) {
	sharedCache.Invalidate(ctx, s.cache, s.log, productDomain.ProductCacheKeyByID(id))
	sharedCache.InvalidatePattern(ctx, s.cache, s.log, productDomain.ProductListPattern)
}

// publish no bloquea el caso de uso: un fallo ya deja el evento en cola.
func (s *ProductService) publish(ctx context.Context, topic string, payload interface{}) {
	if s.publisher == nil {
		return
	}
	if _, err := s.publisher.Publish(ctx, topic, payload); err != nil {
		s.log.Warn("Kafka publish failed (non-blocking)", zap.String("topic", topic), zap.Error(err))
	}
}

// mergeLines suma cantidades del mismo producto manteniendo el orden de aparición.
func mergeLines(lines []productDomain.OrderLine) []productDomain.OrderLine {
	idx := make(map[string]int, len(lines))
	var merged []productDomain.OrderLine
	for _, l := range lines {
		if l.ProductID == "" || l.Quantity <= 0 {
			continue
		}
		if i, ok := idx[l.ProductID]; ok {
			merged[i].Quantity += l.Quantity
			continue
		}
		idx[l.ProductID] = len(merged)
		merged = append(merged, l)
	}
	return merged
}

func isTransient(err error) bool {
	return !errors.Is(err, productDomain.ErrProductNotFound) &&
		!errors.Is(err, context.Canceled) &&
		!errors.Is(err, context.DeadlineExceeded)
}
