package history

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/vango-go/vai-mentor/pkg/core/transcript"
)

// historyEntry is one stored transcript.
type historyEntry struct {
	Key       string `gorm:"column:history_key;primaryKey;size:191"`
	Payload   string `gorm:"type:text;not null"`
	UpdatedAt time.Time
}

func (historyEntry) TableName() string { return "conversation_history" }

// SQLStore keeps one row per key in a relational database.
type SQLStore struct {
	db *gorm.DB
}

// OpenSQLStore opens a sqlite or postgres database and migrates the table.
func OpenSQLStore(kind StoreType, dsn string) (*SQLStore, error) {
	var dialector gorm.Dialector
	switch kind {
	case StoreTypeSQLite:
		if dsn == "" {
			dsn = "vai-mentor.db"
		}
		dialector = sqlite.Open(dsn)
	case StoreTypePostgres:
		if dsn == "" {
			return nil, fmt.Errorf("history: postgres requires a dsn")
		}
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("history: unsupported sql store type: %s", kind)
	}

	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}
	return NewSQLStore(db)
}

// NewSQLStore wraps an open database and migrates the table.
func NewSQLStore(db *gorm.DB) (*SQLStore, error) {
	if err := db.AutoMigrate(&historyEntry{}); err != nil {
		return nil, fmt.Errorf("history: migrate: %w", err)
	}
	return &SQLStore{db: db}, nil
}

func (s *SQLStore) Load(ctx context.Context, key string) ([]transcript.Turn, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}
	var entry historyEntry
	err := s.db.WithContext(ctx).Where("history_key = ?", key).Take(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("history: select: %w", err)
	}
	return decodeTurns([]byte(entry.Payload))
}

func (s *SQLStore) Save(ctx context.Context, key string, turns []transcript.Turn) error {
	if err := validateKey(key); err != nil {
		return err
	}
	raw, err := encodeTurns(turns)
	if err != nil {
		return err
	}
	entry := historyEntry{Key: key, Payload: string(raw), UpdatedAt: time.Now().UTC()}
	err = s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "history_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"payload", "updated_at"}),
	}).Create(&entry).Error
	if err != nil {
		return fmt.Errorf("history: upsert: %w", err)
	}
	return nil
}

func (s *SQLStore) Delete(ctx context.Context, key string) error {
	if err := validateKey(key); err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Where("history_key = ?", key).Delete(&historyEntry{}).Error; err != nil {
		return fmt.Errorf("history: delete: %w", err)
	}
	return nil
}

func (s *SQLStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Ping checks the database connection.
func (s *SQLStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
