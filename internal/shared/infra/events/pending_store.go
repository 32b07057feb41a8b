package events

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
)

// PendingStore guarda la cola de pendientes entre reinicios.
type PendingStore interface {
	Load(ctx context.Context) ([]PendingMessage, error)
	Save(ctx context.Context, msgs []PendingMessage) error
}

// FilePendingStore guarda la cola de pendientes en un fichero JSON.
type FilePendingStore struct {
	filePath string
	mu       sync.Mutex
}

// NewFilePendingStore usa <dir>/<service>-pending.json.
func NewFilePendingStore(dir, service string) *FilePendingStore {
	return &FilePendingStore{filePath: filepath.Join(dir, service+"-pending.json")}
}

var _ PendingStore = (*FilePendingStore)(nil)

// Save sobrescribe el snapshot. Con una cola vacía se borra el fichero.
func (s *FilePendingStore) Save(ctx context.Context, msgs []PendingMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(msgs) == 0 {
		if err := os.Remove(s.filePath); err != nil && !os.IsNotExist(err) {
			return err
		}
		return nil
	}

	data, err := json.MarshalIndent(msgs, "", "  ")
	if err != nil {
		return err
	}

	// Escribimos a un temporal y renombramos para no dejar un snapshot a medias.
	tmp := s.filePath + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, s.filePath)
}

// Load devuelve el snapshot; si no existe o está vacío, una lista vacía.
func (s *FilePendingStore) Load(ctx context.Context) ([]PendingMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return []PendingMessage{}, nil
		}
		return nil, err
	}
	if len(data) == 0 {
		return []PendingMessage{}, nil
	}

	var msgs []PendingMessage
	if err := json.Unmarshal(data, &msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}
