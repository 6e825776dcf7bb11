package database

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/gluk-w/claworc/webconsole/internal/backend"
	"github.com/gluk-w/claworc/webconsole/internal/config"
	"github.com/gluk-w/claworc/webconsole/internal/protocol"
)

var DB *gorm.DB

func Init() error {
	dbPath := config.Cfg.DatabasePath
	dbDir := filepath.Dir(dbPath)
	if dbDir != "" {
		if err := os.MkdirAll(dbDir, 0755); err != nil {
			return fmt.Errorf("create db directory: %w", err)
		}
	}

	var err error
	DB, err = gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}

	sqlDB, err := DB.DB()
	if err != nil {
		return fmt.Errorf("get sql.DB: %w", err)
	}
	if _, err := sqlDB.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return fmt.Errorf("set WAL mode: %w", err)
	}

	return Migrate(DB)
}

// Migrate creates or updates the catalog tables.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&Connection{}, &LocalSession{}, &Setting{}); err != nil {
		return fmt.Errorf("auto-migrate: %w", err)
	}
	return nil
}

func Close() error {
	if DB != nil {
		sqlDB, err := DB.DB()
		if err != nil {
			return err
		}
		return sqlDB.Close()
	}
	return nil
}

func GetSetting(key string) (string, error) {
	var s Setting
	if err := DB.Where("key = ?", key).First(&s).Error; err != nil {
		return "", err
	}
	return s.Value, nil
}

func SetSetting(key, value string) error {
	return DB.Where("key = ?", key).Assign(Setting{Value: value}).FirstOrCreate(&Setting{Key: key}).Error
}

func DeleteSetting(key string) error {
	return DB.Where("key = ?", key).Delete(&Setting{}).Error
}

// Connection helpers

func ListConnections() ([]Connection, error) {
	var conns []Connection
	if err := DB.Order("sort_order, id").Find(&conns).Error; err != nil {
		return nil, err
	}
	return conns, nil
}

// GetConnection returns one connection, wrapping backend.ErrNotFound when
// the id is unknown so callers treat both sources alike.
func GetConnection(id string) (*Connection, error) {
	var c Connection
	if err := DB.Where("id = ?", id).First(&c).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("connection %s: %w", id, backend.ErrNotFound)
		}
		return nil, err
	}
	return &c, nil
}

// SaveConnection validates d and inserts or replaces its row.
func SaveConnection(d protocol.ConnectionDescriptor) error {
	if err := d.Normalize(); err != nil {
		return err
	}
	if d.Host == "" {
		return fmt.Errorf("connection %s: missing host", d.ID)
	}
	c := Connection{
		ID:          d.ID,
		Protocol:    string(d.Protocol),
		Host:        d.Host,
		Port:        d.Port,
		Username:    d.Username,
		DisplayName: d.DisplayName,
	}

	var existing Connection
	err := DB.Where("id = ?", d.ID).First(&existing).Error
	switch {
	case err == nil:
		return DB.Model(&existing).Updates(map[string]interface{}{
			"protocol":     c.Protocol,
			"host":         c.Host,
			"port":         c.Port,
			"username":     c.Username,
			"display_name": c.DisplayName,
		}).Error
	case errors.Is(err, gorm.ErrRecordNotFound):
		var maxOrder int
		DB.Model(&Connection{}).Select("COALESCE(MAX(sort_order), 0)").Scan(&maxOrder)
		c.SortOrder = maxOrder + 1
		return DB.Create(&c).Error
	default:
		return err
	}
}

func DeleteConnection(id string) error {
	res := DB.Where("id = ?", id).Delete(&Connection{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("connection %s: %w", id, backend.ErrNotFound)
	}
	return nil
}
