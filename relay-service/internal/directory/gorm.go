package directory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/weiawesome/wes-io-live/peer-relay/relay-service/internal/domain"
)

// UserModel is the GORM model for presence records.
type UserModel struct {
	ID          string    `gorm:"primaryKey;type:varchar(64)"`
	Username    string    `gorm:"type:varchar(128);not null"`
	DisplayName string    `gorm:"type:varchar(160);not null"`
	LastSeenAt  time.Time `gorm:"index;not null"`
}

// TableName returns the table name for GORM.
func (UserModel) TableName() string {
	return "relay_users"
}

// ToDomain converts the model to a domain record.
func (m *UserModel) ToDomain() *domain.UserRecord {
	return &domain.UserRecord{
		ID:          m.ID,
		Username:    m.Username,
		DisplayName: m.DisplayName,
		LastSeenAt:  m.LastSeenAt,
	}
}

// GormDirectory stores presence in a relational database.
type GormDirectory struct {
	db  *gorm.DB
	now func() time.Time
}

// NewGormDirectory migrates the users table and returns the directory.
func NewGormDirectory(db *gorm.DB, opts ...Option) (*GormDirectory, error) {
	if err := db.AutoMigrate(&UserModel{}); err != nil {
		return nil, fmt.Errorf("failed to migrate relay_users: %w", err)
	}
	o := buildOptions(opts)
	return &GormDirectory{db: db, now: o.now}, nil
}

func (d *GormDirectory) Upsert(ctx context.Context, id, displayName string) (*domain.UserRecord, error) {
	if id == "" {
		return nil, ErrInvalidUser
	}

	model := &UserModel{
		ID:          id,
		Username:    domain.UsernameFrom(displayName),
		DisplayName: displayName,
		LastSeenAt:  d.now().UTC(),
	}
	result := d.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"username", "display_name", "last_seen_at"}),
	}).Create(model)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to upsert user %s: %w", id, result.Error)
	}
	return model.ToDomain(), nil
}

func (d *GormDirectory) Get(ctx context.Context, id string) (*domain.UserRecord, error) {
	var model UserModel
	result := d.db.WithContext(ctx).First(&model, "id = ?", id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, result.Error
	}
	return model.ToDomain(), nil
}

// ActiveSince returns matching records, most recently seen first.
func (d *GormDirectory) ActiveSince(ctx context.Context, window time.Duration) ([]*domain.UserRecord, error) {
	cutoff := d.now().Add(-window).UTC()

	var models []UserModel
	result := d.db.WithContext(ctx).
		Where("last_seen_at >= ?", cutoff).
		Order("last_seen_at DESC").
		Find(&models)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to query active users: %w", result.Error)
	}

	out := make([]*domain.UserRecord, 0, len(models))
	for i := range models {
		out = append(out, models[i].ToDomain())
	}
	return out, nil
}

// Prune deletes records not seen since before. It is not part of Directory;
// the relay runs it periodically when a retention is configured.
func (d *GormDirectory) Prune(ctx context.Context, before time.Time) (int64, error) {
	result := d.db.WithContext(ctx).Where("last_seen_at < ?", before.UTC()).Delete(&UserModel{})
	return result.RowsAffected, result.Error
}

func (d *GormDirectory) Close() error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
