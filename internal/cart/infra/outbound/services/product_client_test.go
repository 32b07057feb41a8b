package services

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	cartDomain "github.com/davicafu/hexashop/internal/cart/domain"
	"github.com/davicafu/hexashop/internal/shared/infra/httpclient"
)

func TestProductClient_Found(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/products/p-1", r.URL.Path)
		_, _ = w.Write([]byte(`{"data":{"id":"p-1","name":"Taza","price":9.5,"category":"hogar","stock":3},"cached":false}`))
	}))
	defer srv.Close()

	p, err := NewProductClient(httpclient.New(srv.URL, time.Second, zap.NewNop())).
		GetProduct(context.Background(), "p-1")

	require.NoError(t, err)
	assert.Equal(t, cartDomain.ProductSummary{ID: "p-1", Name: "Taza", Price: 9.5, Category: "hogar", Stock: 3}, *p)
}

func TestProductClient_NotFoundIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":{"message":"product not found"}}`))
	}))
	defer srv.Close()

	_, err := NewProductClient(httpclient.New(srv.URL, time.Second, zap.NewNop())).
		GetProduct(context.Background(), "missing")

	assert.ErrorIs(t, err, cartDomain.ErrProductUnavailable)
}

func TestProductClient_ServerErrorIsNotUnavailable(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := NewProductClient(httpclient.New(srv.URL, time.Second, zap.NewNop())).
		GetProduct(context.Background(), "p-1")

	require.Error(t, err)
	assert.NotErrorIs(t, err, cartDomain.ErrProductUnavailable)
	assert.Greater(t, atomic.LoadInt32(&calls), int32(1), "los 5xx se reintentan")
}
