package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm/clause"
)

// ErrUserNotFound is returned when a user does not exist.
var ErrUserNotFound = errors.New("user not found")

// User is a Telegram account known to the bot.
//
// Rows are created lazily on first contact and updated in place afterwards.
// The schema is owned by the migration scripts, not by this model.
type User struct {
	UserID    int64     `gorm:"column:user_id;primaryKey" json:"user_id"`
	Username  string    `gorm:"column:username;size:255" json:"username,omitempty"`
	Language  string    `gorm:"column:language;size:10;not null;default:en" json:"language"`
	CreatedAt time.Time `gorm:"column:created_at" json:"created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at" json:"updated_at"`
}

// TableName overrides the GORM table name.
func (User) TableName() string {
	return "users"
}

// Stats summarizes the user table for status surfaces.
type Stats struct {
	TotalUsers int64            `json:"total_users"`
	ByLanguage map[string]int64 `json:"by_language"`
}

// EnsureUser creates the user on first contact or refreshes the username
// on subsequent ones. The stored language is never touched by this path.
func (s *Store) EnsureUser(ctx context.Context, userID int64, username string) (*User, error) {
	if s.db == nil {
		return nil, ErrNotConnected
	}

	user := User{
		UserID:   userID,
		Username: username,
		Language: "en",
	}

	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"username":   username,
			"updated_at": time.Now(),
		}),
	}).Create(&user).Error
	if err != nil {
		return nil, fmt.Errorf("failed to ensure user %d: %w", userID, err)
	}

	// Re-read so the caller sees the stored language, not the insert default.
	return s.GetUser(ctx, userID)
}

// GetUser retrieves a user by Telegram ID.
func (s *Store) GetUser(ctx context.Context, userID int64) (*User, error) {
	if s.db == nil {
		return nil, ErrNotConnected
	}

	var user User
	err := s.db.WithContext(ctx).First(&user, "user_id = ?", userID).Error
	if err != nil {
		return nil, convertNotFoundError(err, ErrUserNotFound)
	}

	return &user, nil
}

// SetLanguage updates the preferred language of an existing user.
func (s *Store) SetLanguage(ctx context.Context, userID int64, language string) error {
	if s.db == nil {
		return ErrNotConnected
	}

	result := s.db.WithContext(ctx).Model(&User{}).
		Where("user_id = ?", userID).
		Updates(map[string]interface{}{
			"language":   language,
			"updated_at": time.Now(),
		})
	if result.Error != nil {
		return fmt.Errorf("failed to set language for user %d: %w", userID, result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrUserNotFound
	}

	return nil
}

// CountUsers returns the total number of known users.
func (s *Store) CountUsers(ctx context.Context) (int64, error) {
	if s.db == nil {
		return 0, ErrNotConnected
	}

	var count int64
	if err := s.db.WithContext(ctx).Model(&User{}).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count users: %w", err)
	}

	return count, nil
}

// CountByLanguage returns per-language user counts.
func (s *Store) CountByLanguage(ctx context.Context) (map[string]int64, error) {
	if s.db == nil {
		return nil, ErrNotConnected
	}

	type row struct {
		Language string
		Count    int64
	}

	var rows []row
	err := s.db.WithContext(ctx).Model(&User{}).
		Select("language, count(*) as count").
		Group("language").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to count users by language: %w", err)
	}

	counts := make(map[string]int64, len(rows))
	for _, r := range rows {
		counts[r.Language] = r.Count
	}

	return counts, nil
}

// GetStats collects aggregate user statistics.
func (s *Store) GetStats(ctx context.Context) (*Stats, error) {
	total, err := s.CountUsers(ctx)
	if err != nil {
		return nil, err
	}

	byLanguage, err := s.CountByLanguage(ctx)
	if err != nil {
		return nil, err
	}

	return &Stats{TotalUsers: total, ByLanguage: byLanguage}, nil
}

// ListRecentUsers returns the most recently updated users, newest first.
func (s *Store) ListRecentUsers(ctx context.Context, limit int) ([]User, error) {
	if s.db == nil {
		return nil, ErrNotConnected
	}
	if limit <= 0 {
		limit = 10
	}

	var users []User
	err := s.db.WithContext(ctx).
		Order("updated_at DESC").
		Limit(limit).
		Find(&users).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}

	return users, nil
}
