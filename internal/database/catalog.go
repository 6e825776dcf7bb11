package database

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/gluk-w/claworc/webconsole/internal/protocol"
)

// Catalog serves connections and mints session ids from the local database.
// It stands in for the backend's REST collaborators when
// CONNECTION_SOURCE=local.
type Catalog struct{}

// GetConnection returns the descriptor for id.
func (Catalog) GetConnection(ctx context.Context, id string) (protocol.ConnectionDescriptor, error) {
	c, err := GetConnection(id)
	if err != nil {
		return protocol.ConnectionDescriptor{}, fmt.Errorf("get connection: %w", err)
	}
	d := c.Descriptor()
	if err := d.Normalize(); err != nil {
		return protocol.ConnectionDescriptor{}, err
	}
	return d, nil
}

// ListConnections returns every valid descriptor in catalog order.
func (Catalog) ListConnections(ctx context.Context) ([]protocol.ConnectionDescriptor, error) {
	conns, err := ListConnections()
	if err != nil {
		return nil, fmt.Errorf("list connections: %w", err)
	}
	out := make([]protocol.ConnectionDescriptor, 0, len(conns))
	for _, c := range conns {
		d := c.Descriptor()
		if err := d.Normalize(); err != nil {
			log.Printf("[catalog] skipping %s: %v", c.ID, err)
			continue
		}
		out = append(out, d)
	}
	return out, nil
}

// CreateSession records a new session id for connectionID.
func (Catalog) CreateSession(ctx context.Context, connectionID string) (string, error) {
	if _, err := GetConnection(connectionID); err != nil {
		return "", fmt.Errorf("create session: %w", err)
	}
	s := LocalSession{ID: uuid.New().String(), ConnectionID: connectionID}
	if err := DB.WithContext(ctx).Create(&s).Error; err != nil {
		return "", fmt.Errorf("create session: %w", err)
	}
	return s.ID, nil
}

// CloseSession marks a session closed. Unknown or already closed sessions
// are not an error.
func (Catalog) CloseSession(ctx context.Context, sessionID string) error {
	var s LocalSession
	err := DB.WithContext(ctx).Where("id = ?", sessionID).First(&s).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("close session: %w", err)
	}
	if s.ClosedAt != nil {
		return nil
	}
	return DB.WithContext(ctx).Model(&s).Update("closed_at", time.Now()).Error
}
