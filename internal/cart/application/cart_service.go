package application

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	cartDomain "github.com/davicafu/hexashop/internal/cart/domain"
	sharedBus "github.com/davicafu/hexashop/internal/shared/infra/platform/bus"
	sharedCache "github.com/davicafu/hexashop/internal/shared/infra/platform/cache"
)

// Consultas concurrentes al catálogo al construir la vista del carrito.
const enrichConcurrency = 8

// CartService define los casos de uso del carrito.
type CartService struct {
	repo      cartDomain.CartRepository
	catalog   cartDomain.ProductCatalog
	cache     sharedCache.Cache
	publisher sharedBus.EventPublisher
	log       *zap.Logger
	now       func() time.Time
}

func NewCartService(repo cartDomain.CartRepository, catalog cartDomain.ProductCatalog, cache sharedCache.Cache, publisher sharedBus.EventPublisher, log *zap.Logger) *CartService {
	return &CartService{
		repo:      repo,
		catalog:   catalog,
		cache:     cache,
		publisher: publisher,
		log:       log,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// AddToCart valida el producto contra el catálogo, guarda la línea e invalida cart:{userId}.
func (s *CartService) AddToCart(ctx context.Context, userID, productID string, qty int) (*cartDomain.CartView, error) {
	if qty < 1 {
		return nil, cartDomain.ErrInvalidQuantity
	}
	if productID == "" {
		return nil, cartDomain.ErrInvalidProductID
	}

	product, err := s.catalog.GetProduct(ctx, productID)
	if err != nil {
		if errors.Is(err, cartDomain.ErrProductUnavailable) {
			s.log.Warn("Product not found via Product Service", zap.String("product_id", productID))
		} else {
			s.log.Error("Product Service unavailable", zap.String("product_id", productID), zap.Error(err))
		}
		return nil, err
	}

	now := s.now()
	cart, err := s.repo.GetByUser(ctx, userID)
	switch {
	case errors.Is(err, cartDomain.ErrCartNotFound):
		cart = cartDomain.NewCart(userID, now)
		s.log.Info("Created new cart for user", zap.String("user_id", userID))
	case err != nil:
		return nil, err
	}

	if err := cart.AddItem(productID, qty, now); err != nil {
		return nil, err
	}
	if err := s.repo.Save(ctx, cart); err != nil {
		s.log.Error("Failed to save cart", zap.String("user_id", userID), zap.Error(err))
		return nil, err
	}
	s.log.Info("Item added to cart", zap.String("user_id", userID), zap.String("product_id", productID), zap.Int("quantity", qty))

	sharedCache.Invalidate(ctx, s.cache, s.log, cartDomain.CartCacheKey(userID))

	s.publish(ctx, cartDomain.CartItemAdded, cartDomain.ItemAddedEvent{
		CartID:      cart.ID.String(),
		UserID:      userID,
		ProductID:   productID,
		ProductName: product.Name,
		Quantity:    qty,
		AddedAt:     now,
	})

	return s.view(ctx, cart), nil
}

// GetCart usa cache-aside sobre cart:{userId}. Un carrito vacío es ErrCartNotFound.
func (s *CartService) GetCart(ctx context.Context, userID string) (*cartDomain.CartView, bool, error) {
	view, cached, err := sharedCache.GetOrLoad(ctx, s.cache, cartDomain.CartCacheKey(userID),
		sharedCache.FixedTTL[*cartDomain.CartView](sharedCache.TTLCart),
		func(ctx context.Context) (*cartDomain.CartView, error) {
			cart, err := s.repo.GetByUser(ctx, userID)
			if err != nil {
				return nil, err
			}
			if cart.IsEmpty() {
				return nil, cartDomain.ErrCartNotFound
			}
			return s.view(ctx, cart), nil
		}, s.log)
	if err != nil {
		if errors.Is(err, cartDomain.ErrCartNotFound) {
			s.log.Info("Cart not found or empty", zap.String("user_id", userID))
		} else {
			s.log.Error("Failed to fetch cart", zap.String("user_id", userID), zap.Error(err))
		}
		return nil, false, err
	}
	return view, cached, nil
}

// ClearCart borra el carrito. Es idempotente: sin carrito no hace nada.
func (s *CartService) ClearCart(ctx context.Context, userID string) error {
	cart, err := s.repo.GetByUser(ctx, userID)
	if errors.Is(err, cartDomain.ErrCartNotFound) {
		sharedCache.Invalidate(ctx, s.cache, s.log, cartDomain.CartCacheKey(userID))
		return nil
	}
	if err != nil {
		return err
	}

	if err := s.repo.DeleteByUser(ctx, userID); err != nil {
		s.log.Error("Failed to clear cart", zap.String("user_id", userID), zap.Error(err))
		return err
	}
	s.log.Info("Cart cleared", zap.String("user_id", userID))

	sharedCache.Invalidate(ctx, s.cache, s.log, cartDomain.CartCacheKey(userID))

	s.publish(ctx, cartDomain.CartCleared, cartDomain.CartClearedEvent{
		CartID:    cart.ID.String(),
		UserID:    userID,
		ClearedAt: s.now(),
	})
	return nil
}

// RemoveItem quita un producto; si el carrito queda vacío se borra.
func (s *CartService) RemoveItem(ctx context.Context, userID, productID string) (*cartDomain.CartView, error) {
	cart, err := s.repo.GetByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	if !cart.RemoveItem(productID, now) {
		return nil, cartDomain.ErrItemNotInCart
	}

	if cart.IsEmpty() {
		err = s.repo.DeleteByUser(ctx, userID)
	} else {
		err = s.repo.Save(ctx, cart)
	}
	if err != nil {
		return nil, err
	}

	sharedCache.Invalidate(ctx, s.cache, s.log, cartDomain.CartCacheKey(userID))

	s.publish(ctx, cartDomain.CartItemRemoved, cartDomain.ItemRemovedEvent{
		CartID:    cart.ID.String(),
		UserID:    userID,
		ProductID: productID,
		RemovedAt: now,
	})
	return s.view(ctx, cart), nil
}

// DeleteAbandonedCarts publica cart.abandoned por cada carrito con líneas sin
// actividad desde hace olderThan y los borra. Lo invoca el job de limpieza.
func (s *CartService) DeleteAbandonedCarts(ctx context.Context, olderThan time.Duration) (int64, error) {
	now := s.now()
	cutoff := now.Add(-olderThan)

	carts, err := s.repo.ListUpdatedBefore(ctx, cutoff)
	if err != nil {
		s.log.Error("Cart cleanup failed", zap.Error(err))
		return 0, err
	}
	for _, c := range carts {
		if c.IsEmpty() {
			continue
		}
		s.publish(ctx, cartDomain.CartAbandoned, cartDomain.CartAbandonedEvent{
			CartID:      c.ID.String(),
			UserID:      c.UserID,
			ItemsCount:  len(c.Items),
			LastUpdated: c.UpdatedAt,
			AbandonedAt: now,
		})
	}

	deleted, err := s.repo.DeleteUpdatedBefore(ctx, cutoff)
	if err != nil {
		s.log.Error("Cart cleanup failed", zap.Error(err))
		return 0, err
	}
	for _, c := range carts {
		sharedCache.Invalidate(ctx, s.cache, s.log, cartDomain.CartCacheKey(c.UserID))
	}

	s.log.Info("Deleted old carts", zap.Int64("count", deleted))
	return deleted, nil
}

// RemoveDeletedProduct quita un producto borrado de todos los carritos.
func (s *CartService) RemoveDeletedProduct(ctx context.Context, productID string) error {
	users, err := s.repo.RemoveProduct(ctx, productID)
	if err != nil {
		return err
	}
	for _, u := range users {
		sharedCache.Invalidate(ctx, s.cache, s.log, cartDomain.CartCacheKey(u))
	}
	s.log.Info("Product removed from carts", zap.String("product_id", productID), zap.Int("carts", len(users)))
	return nil
}

// RefreshCartsWithProduct invalida las vistas cacheadas que contienen el producto,
// que embeben su precio y stock. Devuelve cuántos carritos lo contienen.
func (s *CartService) RefreshCartsWithProduct(ctx context.Context, productID string) (int, error) {
	users, err := s.repo.FindUsersWithProduct(ctx, productID)
	if err != nil {
		return 0, err
	}
	for _, u := range users {
		sharedCache.Invalidate(ctx, s.cache, s.log, cartDomain.CartCacheKey(u))
	}
	return len(users), nil
}

// view resuelve cada línea contra el catálogo. Un producto que no responde
// queda con Product nil y no suma al total.
func (s *CartService) view(ctx context.Context, cart *cartDomain.Cart) *cartDomain.CartView {
	items := make([]cartDomain.CartItemView, len(cart.Items))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(enrichConcurrency)
	for i, it := range cart.Items {
		items[i] = cartDomain.CartItemView{ProductID: it.ProductID, Quantity: it.Quantity}
		g.Go(func() error {
			p, err := s.catalog.GetProduct(gctx, it.ProductID)
			if err != nil {
				s.log.Warn("Could not resolve cart product", zap.String("product_id", it.ProductID), zap.Error(err))
				return nil
			}
			items[i].Product = p
			return nil
		})
	}
	_ = g.Wait()

	var total float64
	for _, it := range items {
		if it.Product != nil {
			total += it.Product.Price * float64(it.Quantity)
		}
	}

	return &cartDomain.CartView{
		ID:        cart.ID,
		UserID:    cart.UserID,
		Items:     items,
		Total:     total,
		CreatedAt: cart.CreatedAt,
		UpdatedAt: cart.UpdatedAt,
	}
}

// publish no bloquea el caso de uso: un fallo ya deja el evento en cola.
func (s *CartService) publish(ctx context.Context, topic string, payload interface{}) {
	if s.publisher == nil {
		return
	}
	if _, err := s.publisher.Publish(ctx, topic, payload); err != nil {
		s.log.Warn("Kafka publish failed (non-blocking)", zap.String("topic", topic), zap.Error(err))
	}
}
