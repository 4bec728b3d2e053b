package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/DoyleJ11/gameroom/pkg/domain"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

const (
	RoomStatusActive = "active"
	RoomStatusEnded  = "ended"
)

type RoomRecord struct {
	ID         uint      `gorm:"primaryKey"`
	Code       string    `gorm:"size:16;uniqueIndex;not null"`
	Visibility string    `gorm:"size:10;not null;default:'public'"`
	Status     string    `gorm:"size:20;not null;default:'active'"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

type LogRecord struct {
	ID       uint      `gorm:"primaryKey"`
	RoomCode string    `gorm:"size:16;not null;index"`
	EntryID  string    `gorm:"size:36;not null;uniqueIndex"`
	Kind     string    `gorm:"size:16;not null"`
	AuthorID string    `gorm:"size:64"`
	Text     string    `gorm:"type:text"`
	At       time.Time `gorm:"not null"`
}

// Gorm is a Journal backed by Postgres through gorm.
type Gorm struct {
	db  *gorm.DB
	log *zap.Logger
}

// OpenPostgres connects to dsn and migrates the journal tables.
func OpenPostgres(dsn string, log *zap.Logger) (*Gorm, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("store.OpenPostgres: %w", err)
	}
	return NewGorm(db, log)
}

func NewGorm(db *gorm.DB, log *zap.Logger) (*Gorm, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if err := db.AutoMigrate(&RoomRecord{}, &LogRecord{}); err != nil {
		return nil, fmt.Errorf("store.NewGorm: migrate: %w", err)
	}
	return &Gorm{db: db, log: log}, nil
}

func (g *Gorm) SaveRoom(ctx context.Context, code string, visibility domain.Visibility) error {
	rec := RoomRecord{Code: code, Visibility: string(visibility), Status: RoomStatusActive}
	res := g.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "code"}}, DoNothing: true}).
		Create(&rec)
	if res.Error != nil {
		return fmt.Errorf("store.SaveRoom: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrExists
	}
	return nil
}

func (g *Gorm) AppendLog(ctx context.Context, code string, entry domain.LogEntry) error {
	rec := LogRecord{
		RoomCode: code,
		EntryID:  entry.ID,
		Kind:     string(entry.Kind),
		AuthorID: entry.AuthorID,
		Text:     entry.Text,
		At:       entry.At,
	}
	if err := g.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return fmt.Errorf("store.AppendLog: %w", err)
	}
	return nil
}

func (g *Gorm) MarkEnded(ctx context.Context, code string) error {
	res := g.db.WithContext(ctx).
		Model(&RoomRecord{}).
		Where("code = ?", code).
		Update("status", RoomStatusEnded)
	if res.Error != nil {
		return fmt.Errorf("store.MarkEnded: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (g *Gorm) LoadRoom(ctx context.Context, code string) (Restored, error) {
	var rec RoomRecord
	err := g.db.WithContext(ctx).Where("code = ?", code).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Restored{}, ErrNotFound
	}
	if err != nil {
		return Restored{}, fmt.Errorf("store.LoadRoom: %w", err)
	}

	var logs []LogRecord
	if err := g.db.WithContext(ctx).
		Where("room_code = ?", code).
		Order("id ASC"). // serial id is insertion order; clocks can step back
		Find(&logs).Error; err != nil {
		return Restored{}, fmt.Errorf("store.LoadRoom: log: %w", err)
	}

	out := Restored{
		Code:       rec.Code,
		Visibility: domain.Visibility(rec.Visibility),
		Ended:      rec.Status == RoomStatusEnded,
		Log:        make([]domain.LogEntry, 0, len(logs)),
	}
	for _, l := range logs {
		out.Log = append(out.Log, domain.LogEntry{
			ID:       l.EntryID,
			Kind:     domain.LogKind(l.Kind),
			AuthorID: l.AuthorID,
			Text:     l.Text,
			At:       l.At,
		})
	}
	g.log.Debug("room restored", zap.String("room", code), zap.Int("entries", len(out.Log)))
	return out, nil
}

func (g *Gorm) Close() error {
	sqlDB, err := g.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
