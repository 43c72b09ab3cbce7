package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// pgUniqueViolation is the SQLSTATE for a duplicate key.
const pgUniqueViolation = "23505"

type playerRecord struct {
	ID         string `gorm:"primaryKey;type:varchar(64)"`
	Username   string `gorm:"type:varchar(64);not null"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
	LastSeenAt time.Time `gorm:"index"`
}

func (playerRecord) TableName() string { return "players" }

type GormStore struct {
	db  *gorm.DB
	log *zap.Logger
}

// OpenPostgres connects to dsn and migrates the players table.
func OpenPostgres(dsn string, log *zap.Logger) (*GormStore, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	return NewGormStore(db, log)
}

func NewGormStore(db *gorm.DB, log *zap.Logger) (*GormStore, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if err := db.AutoMigrate(&playerRecord{}); err != nil {
		return nil, fmt.Errorf("migrate players: %w", err)
	}
	return &GormStore{db: db, log: log}, nil
}

func (s *GormStore) Register(ctx context.Context, id, username string) error {
	now := time.Now()
	rec := playerRecord{ID: id, Username: username, LastSeenAt: now}
	err := s.db.WithContext(ctx).Create(&rec).Error
	if isUniqueViolation(err) {
		s.log.Debug("player already registered", zap.String("player_id", id))
		err = s.db.WithContext(ctx).Model(&playerRecord{}).
			Where("id = ?", id).
			Updates(map[string]any{"username": username, "last_seen_at": now}).Error
	}
	if err != nil {
		return fmt.Errorf("register %s: %w", id, err)
	}
	return nil
}

func (s *GormStore) Lookup(ctx context.Context, id string) (Player, error) {
	var rec playerRecord
	err := s.db.WithContext(ctx).First(&rec, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Player{}, ErrNotFound
	}
	if err != nil {
		return Player{}, fmt.Errorf("lookup %s: %w", id, err)
	}
	return Player{ID: rec.ID, Username: rec.Username, CreatedAt: rec.CreatedAt, LastSeenAt: rec.LastSeenAt}, nil
}

func (s *GormStore) Touch(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Model(&playerRecord{}).Where("id = ?", id).Update("last_seen_at", time.Now())
	if res.Error != nil {
		return fmt.Errorf("touch %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}
