package database

import (
	"time"

	"github.com/gluk-w/claworc/webconsole/internal/protocol"
)

// Connection is a saved remote endpoint in the local catalog.
type Connection struct {
	ID          string    `gorm:"primaryKey;size:64" json:"id"`
	Protocol    string    `gorm:"not null" json:"protocol"`
	Host        string    `gorm:"not null" json:"host"`
	Port        int       `gorm:"not null;default:0" json:"port"`
	Username    string    `json:"username"`
	DisplayName string    `json:"display_name"`
	SortOrder   int       `gorm:"not null;default:0" json:"sort_order"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// Descriptor converts the row to the descriptor the registry consumes.
func (c Connection) Descriptor() protocol.ConnectionDescriptor {
	return protocol.ConnectionDescriptor{
		ID:          c.ID,
		Protocol:    protocol.Kind(c.Protocol),
		Host:        c.Host,
		Port:        c.Port,
		Username:    c.Username,
		DisplayName: c.DisplayName,
	}
}

// LocalSession is a session id minted by the local catalog.
type LocalSession struct {
	ID           string     `gorm:"primaryKey;size:64" json:"id"`
	ConnectionID string     `gorm:"not null;index" json:"connection_id"`
	CreatedAt    time.Time  `gorm:"autoCreateTime" json:"created_at"`
	ClosedAt     *time.Time `json:"closed_at,omitempty"`
}

type Setting struct {
	Key       string    `gorm:"primaryKey" json:"key"`
	Value     string    `gorm:"not null" json:"value"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
