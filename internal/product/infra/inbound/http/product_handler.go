package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/davicafu/hexashop/internal/product/application"
	productDomain "github.com/davicafu/hexashop/internal/product/domain"
	"github.com/davicafu/hexashop/pkg/utils"
)

// ProductHandler encapsula los endpoints HTTP del catálogo.
type ProductHandler struct {
	service *application.ProductService
}

func NewProductHandler(service *application.ProductService) *ProductHandler {
	return &ProductHandler{service: service}
}

type productRequest struct {
	Name        string                  `json:"name" binding:"required"`
	Price       *float64                `json:"price" binding:"required"`
	Description string                  `json:"description"`
	Image       string                  `json:"image"`
	Category    string                  `json:"category"`
	Stock       int                     `json:"stock"`
	Variants    []productDomain.Variant `json:"variants"`
}

// CreateProduct endpoint POST /api/products
func (h *ProductHandler) CreateProduct(c *gin.Context) {
	var req productRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.SendBadRequest(c, err.Error())
		return
	}

	p, err := h.service.CreateProduct(c.Request.Context(), &productDomain.Product{
		Name:        req.Name,
		Price:       *req.Price,
		Description: req.Description,
		Image:       req.Image,
		Category:    req.Category,
		Stock:       req.Stock,
		Variants:    req.Variants,
	})
	if err != nil {
		h.sendError(c, err)
		return
	}
	utils.SendSuccess(c, http.StatusCreated, p)
}

// GetProduct endpoint GET /api/products/:id
func (h *ProductHandler) GetProduct(c *gin.Context) {
	p, cached, err := h.service.GetProduct(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.sendError(c, err)
		return
	}
	utils.SendCached(c, p, cached)
}

// ListProducts endpoint GET /api/products con filtros, paginación y ordenamiento
func (h *ProductHandler) ListProducts(c *gin.Context) {
	page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
	if err != nil {
		utils.SendBadRequest(c, "invalid page")
		return
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(productDomain.DefaultPageSize)))
	if err != nil {
		utils.SendBadRequest(c, "invalid limit")
		return
	}

	q := productDomain.ListQuery{
		Page:     page,
		Limit:    limit,
		Category: c.Query("category"),
		SortBy:   c.Query("sortBy"),
		Order:    c.Query("order"),
	}
	if q.MinPrice, err = optionalFloat(c.Query("minPrice")); err != nil {
		utils.SendBadRequest(c, "invalid minPrice")
		return
	}
	if q.MaxPrice, err = optionalFloat(c.Query("maxPrice")); err != nil {
		utils.SendBadRequest(c, "invalid maxPrice")
		return
	}

	result, cached, err := h.service.ListProducts(c.Request.Context(), q)
	if err != nil {
		h.sendError(c, err)
		return
	}
	utils.SendCached(c, result, cached)
}

// UpdateProduct endpoint PUT /api/products/:id
func (h *ProductHandler) UpdateProduct(c *gin.Context) {
	// Punteros para que los campos sean opcionales en el JSON
	var req struct {
		Name        *string  `json:"name,omitempty"`
		Price       *float64 `json:"price,omitempty"`
		Description *string  `json:"description,omitempty"`
		Image       *string  `json:"image,omitempty"`
		Category    *string  `json:"category,omitempty"`
		Stock       *int     `json:"stock,omitempty"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.SendBadRequest(c, err.Error())
		return
	}

	p, err := h.service.UpdateProduct(c.Request.Context(), c.Param("id"), productDomain.ProductPatch{
		Name:        req.Name,
		Price:       req.Price,
		Description: req.Description,
		Image:       req.Image,
		Category:    req.Category,
		Stock:       req.Stock,
	})
	if err != nil {
		h.sendError(c, err)
		return
	}
	utils.SendSuccess(c, http.StatusOK, p)
}

// DeleteProduct endpoint DELETE /api/products/:id
func (h *ProductHandler) DeleteProduct(c *gin.Context) {
	if err := h.service.DeleteProduct(c.Request.Context(), c.Param("id")); err != nil {
		h.sendError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *ProductHandler) sendError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, productDomain.ErrProductNotFound):
		utils.SendNotFound(c, err.Error())
	case errors.Is(err, productDomain.ErrProductAlreadyExists):
		utils.SendConflict(c, err.Error())
	case errors.Is(err, productDomain.ErrInvalidProduct),
		errors.Is(err, productDomain.ErrInvalidPrice),
		errors.Is(err, productDomain.ErrInvalidStock):
		utils.SendBadRequest(c, err.Error())
	default:
		utils.SendInternalServerError(c, "internal server error")
	}
}

func optionalFloat(raw string) (*float64, error) {
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, err
	}
	return &v, nil
}
