package services

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	cartDomain "github.com/davicafu/hexashop/internal/cart/domain"
	"github.com/davicafu/hexashop/internal/shared/infra/httpclient"
)

// ProductClient implementa ProductCatalog contra la API del servicio de productos.
type ProductClient struct {
	http *httpclient.Client
}

var _ cartDomain.ProductCatalog = (*ProductClient)(nil)

func NewProductClient(client *httpclient.Client) *ProductClient {
	return &ProductClient{http: client}
}

// GetProduct traduce el 404 remoto a ErrProductUnavailable.
func (c *ProductClient) GetProduct(ctx context.Context, productID string) (*cartDomain.ProductSummary, error) {
	var p cartDomain.ProductSummary
	err := c.http.GetJSON(ctx, "/api/products/"+url.PathEscape(productID), nil, &p)
	if errors.Is(err, httpclient.ErrNotFound) {
		return nil, cartDomain.ErrProductUnavailable
	}
	if err != nil {
		return nil, fmt.Errorf("product service %s: %w", productID, err)
	}
	return &p, nil
}
