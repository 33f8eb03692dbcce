package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"main/pkg/conn"
)

type sessionRow struct {
	UserID       string  `gorm:"primaryKey;column:user_id"`
	Identity     string  `gorm:"column:identity"`
	SessionToken *string `gorm:"column:session_token"`
	Connected    bool    `gorm:"column:connected"`
	UpdatedAt    time.Time
}

func (sessionRow) TableName() string { return "user_sessions" }

type subscriptionRow struct {
	ID        string `gorm:"primaryKey;column:id"`
	UserID    string `gorm:"column:user_id;uniqueIndex:idx_user_channel"`
	ChannelID string `gorm:"column:channel_id;uniqueIndex:idx_user_channel"`
	Title     string `gorm:"column:title"`
	Enabled   bool   `gorm:"column:enabled"`
	CreatedAt time.Time
}

func (subscriptionRow) TableName() string { return "channel_subscriptions" }

// Postgres persists session records and subscriptions through gorm.
type Postgres struct {
	client *conn.Client
}

// NewPostgres wraps an open connection and migrates the schema.
func NewPostgres(client *conn.Client) (*Postgres, error) {
	if client == nil || client.DB() == nil {
		return nil, errors.New("store: nil postgres client")
	}
	if err := client.DB().AutoMigrate(&sessionRow{}, &subscriptionRow{}); err != nil {
		return nil, err
	}
	return &Postgres{client: client}, nil
}

var _ Store = (*Postgres)(nil)

// GetSession returns the persisted record for userID, or nil when absent.
func (p *Postgres) GetSession(ctx context.Context, userID string) (*SessionRecord, error) {
	var row sessionRow
	err := p.client.DB().WithContext(ctx).First(&row, "user_id = ?", userID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return rowToRecord(&row), nil
}

// SaveSession upserts the record keyed by user id.
func (p *Postgres) SaveSession(ctx context.Context, rec *SessionRecord) error {
	if rec == nil || rec.UserID == "" {
		return errors.New("store: empty session record")
	}
	row := sessionRow{
		UserID:    rec.UserID,
		Identity:  rec.Identity,
		Connected: rec.Connected,
		UpdatedAt: time.Now().UTC(),
	}
	if rec.SessionToken != "" {
		token := rec.SessionToken
		row.SessionToken = &token
	}
	return p.client.DB().WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"identity", "session_token", "connected", "updated_at"}),
	}).Create(&row).Error
}

// ClearSessionToken nulls the credential and marks the user disconnected.
func (p *Postgres) ClearSessionToken(ctx context.Context, userID string) error {
	return p.client.DB().WithContext(ctx).
		Model(&sessionRow{}).
		Where("user_id = ?", userID).
		Updates(map[string]any{
			"session_token": nil,
			"connected":     false,
			"updated_at":    time.Now().UTC(),
		}).Error
}

// ListSubscriptions returns all subscriptions for the user.
func (p *Postgres) ListSubscriptions(ctx context.Context, userID string) ([]Subscription, error) {
	return p.listSubscriptions(ctx, userID, false)
}

// ListEnabledSubscriptions returns only enabled subscriptions.
func (p *Postgres) ListEnabledSubscriptions(ctx context.Context, userID string) ([]Subscription, error) {
	return p.listSubscriptions(ctx, userID, true)
}

func (p *Postgres) listSubscriptions(ctx context.Context, userID string, enabledOnly bool) ([]Subscription, error) {
	q := p.client.DB().WithContext(ctx).Where("user_id = ?", userID)
	if enabledOnly {
		q = q.Where("enabled = ?", true)
	}
	var rows []subscriptionRow
	if err := q.Order("created_at").Find(&rows).Error; err != nil {
		return nil, err
	}
	subs := make([]Subscription, len(rows))
	for i := range rows {
		subs[i] = Subscription{
			UserID:    rows[i].UserID,
			ChannelID: rows[i].ChannelID,
			Title:     rows[i].Title,
			Enabled:   rows[i].Enabled,
			CreatedAt: rows[i].CreatedAt,
		}
	}
	return subs, nil
}

// UpsertSubscription creates or re-enables the (user, channel) row.
func (p *Postgres) UpsertSubscription(ctx context.Context, sub Subscription) error {
	if sub.UserID == "" || sub.ChannelID == "" {
		return errors.New("store: empty subscription key")
	}
	row := subscriptionRow{
		ID:        uuid.New().String(),
		UserID:    sub.UserID,
		ChannelID: sub.ChannelID,
		Title:     sub.Title,
		Enabled:   true,
		CreatedAt: time.Now().UTC(),
	}
	return p.client.DB().WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "channel_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"title", "enabled"}),
	}).Create(&row).Error
}

// DisableSubscription soft-deactivates the (user, channel) row.
func (p *Postgres) DisableSubscription(ctx context.Context, userID, channelID string) error {
	return p.client.DB().WithContext(ctx).
		Model(&subscriptionRow{}).
		Where("user_id = ? AND channel_id = ?", userID, channelID).
		Update("enabled", false).Error
}

func rowToRecord(row *sessionRow) *SessionRecord {
	rec := &SessionRecord{
		UserID:    row.UserID,
		Identity:  row.Identity,
		Connected: row.Connected,
		UpdatedAt: row.UpdatedAt,
	}
	if row.SessionToken != nil {
		rec.SessionToken = *row.SessionToken
	}
	return rec
}
