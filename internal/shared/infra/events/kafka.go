package events

import (
	"context"
	"errors"
	"fmt"

	"github.com/segmentio/kafka-go"

	"github.com/davicafu/hexashop/internal/shared/infra/broker"
)

// NewKafkaWriter crea un writer multi-topic: el topic va en cada mensaje.
func NewKafkaWriter(cfg broker.Config) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
		WriteTimeout:           cfg.SendTimeout,
		// Los reintentos los gestiona la cola de pendientes.
		MaxAttempts: 1,
		Transport: &kafka.Transport{
			ClientID:    cfg.ClientID,
			DialTimeout: cfg.ConnectTimeout,
		},
	}
}

// KafkaDial devuelve una sonda que abre y cierra una conexión con el primer broker disponible.
func KafkaDial(cfg broker.Config) broker.DialFunc {
	dialer := &kafka.Dialer{ClientID: cfg.ClientID, Timeout: cfg.ConnectTimeout}
	return func(ctx context.Context) error {
		if len(cfg.Brokers) == 0 {
			return errors.New("no kafka brokers configured")
		}
		var errs []error
		for _, addr := range cfg.Brokers {
			conn, err := dialer.DialContext(ctx, "tcp", addr)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", addr, err))
				continue
			}
			_ = conn.Close()
			return nil
		}
		return errors.Join(errs...)
	}
}

// KafkaReaders crea lectores de grupo que escuchan varios topics a la vez.
func KafkaReaders(cfg broker.Config) ReaderFactory {
	return func(groupID string, topics []string) MessageReader {
		return kafka.NewReader(kafka.ReaderConfig{
			Brokers:     cfg.Brokers,
			GroupID:     groupID,
			GroupTopics: topics,
			StartOffset: kafka.LastOffset,
			MinBytes:    1,
			MaxBytes:    10e6, // 10MB
			Dialer:      &kafka.Dialer{ClientID: cfg.ClientID, Timeout: cfg.ConnectTimeout},
		})
	}
}
