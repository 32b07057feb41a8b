package httpclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	sharedUtils "github.com/davicafu/hexashop/internal/shared/infra/utils"
)

// ErrNotFound se devuelve cuando el servicio remoto responde 404.
var ErrNotFound = errors.New("remote resource not found")

// StatusError es una respuesta no 2xx distinta de 404.
type StatusError struct {
	Method string
	URL    string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: unexpected status %d: %s", e.Method, e.URL, e.Code, e.Body)
}

// Client llama a otros servicios de hexashop por HTTP y desempaqueta el
// envelope {"data": ...} que devuelven sus handlers.
type Client struct {
	baseURL  string
	http     *http.Client
	log      *zap.Logger
	attempts int
	delay    time.Duration
}

func New(baseURL string, timeout time.Duration, log *zap.Logger) *Client {
	return &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		http:     &http.Client{Timeout: timeout},
		log:      log,
		attempts: 3,
		delay:    200 * time.Millisecond,
	}
}

// GetJSON hace GET sobre path y decodifica el campo data en dest.
func (c *Client) GetJSON(ctx context.Context, path string, headers map[string]string, dest interface{}) error {
	body, err := c.do(ctx, http.MethodGet, path, headers)
	if err != nil {
		return err
	}

	envelope := struct {
		Data json.RawMessage `json:"data"`
	}{}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return fmt.Errorf("decode response from %s: %w", path, err)
	}
	if len(envelope.Data) == 0 || string(envelope.Data) == "null" {
		return ErrNotFound
	}
	return json.Unmarshal(envelope.Data, dest)
}

// Delete hace DELETE sobre path; cualquier 2xx es éxito.
func (c *Client) Delete(ctx context.Context, path string, headers map[string]string) error {
	_, err := c.do(ctx, http.MethodDelete, path, headers)
	return err
}

func (c *Client) do(ctx context.Context, method, path string, headers map[string]string) ([]byte, error) {
	url := c.baseURL + path
	var body []byte

	err := sharedUtils.RetryIf(ctx, c.attempts, c.delay, retryable, func() error {
		req, err := http.NewRequestWithContext(ctx, method, url, nil)
		if err != nil {
			return err
		}
		req.Header.Set("Accept", "application/json")
		for k, v := range headers {
			if v != "" {
				req.Header.Set(k, v)
			}
		}

		resp, err := c.http.Do(req)
		if err != nil {
			c.log.Warn("Remote call failed", zap.String("method", method), zap.String("url", url), zap.Error(err))
			return err
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if err != nil {
			return err
		}

		switch {
		case resp.StatusCode == http.StatusNotFound:
			return ErrNotFound
		case resp.StatusCode < 200 || resp.StatusCode > 299:
			return &StatusError{Method: method, URL: url, Code: resp.StatusCode, Body: strings.TrimSpace(string(data))}
		}
		body = data
		return nil
	})
	return body, err
}

// retryable: errores de red y 5xx. Los 4xx son definitivos.
func retryable(err error) bool {
	if errors.Is(err, ErrNotFound) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code >= 500
	}
	return true
}
