package services

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	orderDomain "github.com/davicafu/hexashop/internal/order/domain"
	"github.com/davicafu/hexashop/internal/shared/infra/httpclient"
	"github.com/davicafu/hexashop/pkg/utils"
)

// CartClient implementa CartGateway contra la API del servicio de carrito.
type CartClient struct {
	http *httpclient.Client
}

var _ orderDomain.CartGateway = (*CartClient)(nil)

func NewCartClient(client *httpclient.Client) *CartClient {
	return &CartClient{http: client}
}

// GetCart devuelve las líneas del carrito; un carrito inexistente equivale a vacío.
func (c *CartClient) GetCart(ctx context.Context, customer orderDomain.Customer) ([]orderDomain.CartLine, error) {
	var view struct {
		Items []orderDomain.CartLine `json:"items"`
	}
	err := c.http.GetJSON(ctx, "/api/cart", identityHeaders(customer), &view)
	if errors.Is(err, httpclient.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("cart service: %w", err)
	}
	return view.Items, nil
}

func (c *CartClient) ClearCart(ctx context.Context, customer orderDomain.Customer) error {
	if err := c.http.Delete(ctx, "/api/cart", identityHeaders(customer)); err != nil {
		return fmt.Errorf("cart service: %w", err)
	}
	return nil
}

// ProductClient implementa ProductCatalog contra la API del catálogo.
type ProductClient struct {
	http *httpclient.Client
}

var _ orderDomain.ProductCatalog = (*ProductClient)(nil)

func NewProductClient(client *httpclient.Client) *ProductClient {
	return &ProductClient{http: client}
}

func (c *ProductClient) GetProduct(ctx context.Context, productID string) (*orderDomain.ProductInfo, error) {
	var p orderDomain.ProductInfo
	if err := c.http.GetJSON(ctx, "/api/products/"+url.PathEscape(productID), nil, &p); err != nil {
		return nil, fmt.Errorf("product service %s: %w", productID, err)
	}
	return &p, nil
}

func identityHeaders(customer orderDomain.Customer) map[string]string {
	return map[string]string{
		utils.HeaderUserID:    customer.ID,
		utils.HeaderUserEmail: customer.Email,
		utils.HeaderUserName:  customer.Name,
	}
}
