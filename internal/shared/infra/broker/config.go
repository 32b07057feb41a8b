package broker

import (
	"time"

	"github.com/davicafu/hexashop/internal/config"
)

const (
	DefaultConnectTimeout = 5 * time.Second
	DefaultSendTimeout    = 5 * time.Second
	DefaultRetryBackoff   = 5 * time.Second
	DefaultMaxPending     = 10000
)

// Config agrupa lo necesario para hablar con el broker.
type Config struct {
	Brokers        []string
	ClientID       string
	ConnectTimeout time.Duration
	SendTimeout    time.Duration
	RetryBackoff   time.Duration
	MaxPending     int
}

// FromConfig traduce la configuración de la aplicación.
func FromConfig(cfg config.Kafka) Config {
	return Config{
		Brokers:        cfg.Brokers,
		ClientID:       cfg.ClientID,
		ConnectTimeout: cfg.ConnectTimeout,
		SendTimeout:    cfg.SendTimeout,
		RetryBackoff:   cfg.RetryBackoff,
		MaxPending:     cfg.MaxPending,
	}.WithDefaults()
}

// WithDefaults rellena los valores a cero con los defaults.
func (c Config) WithDefaults() Config {
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = DefaultConnectTimeout
	}
	if c.SendTimeout <= 0 {
		c.SendTimeout = DefaultSendTimeout
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = DefaultRetryBackoff
	}
	if c.MaxPending <= 0 {
		c.MaxPending = DefaultMaxPending
	}
	return c
}
