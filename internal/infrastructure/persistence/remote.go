package persistence

import (
	"context"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"openchat/internal/domain/chat"
	"openchat/internal/infrastructure/database"
	"openchat/internal/utils/idgen"
	"openchat/internal/utils/platformerrors"
)

func init() {
	database.RegisterSchemaForAutoMigrate(ThreadRecord{})
}

// ThreadRecord is the database schema for persisted threads. Messages are
// stored as a jsonb document; the record is keyed by the session-local thread
// id so saves issued before the create resolves still land on the same row.
type ThreadRecord struct {
	ID        uint           `gorm:"primarykey"`
	RemoteID  string         `gorm:"type:varchar(50);uniqueIndex;not null"`
	LocalID   string         `gorm:"type:varchar(64);uniqueIndex;not null"`
	UserID    string         `gorm:"type:varchar(64);index;not null"`
	Title     string         `gorm:"type:varchar(256)"`
	Messages  JSONMessages   `gorm:"type:jsonb"`
	CreatedAt time.Time
	UpdatedAt time.Time
	DeletedAt gorm.DeletedAt `gorm:"index"`
}

// JSONMessages is a custom type for []chat.Message stored as JSON
type JSONMessages []chat.Message

func (j JSONMessages) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

func (j *JSONMessages) Scan(value any) error {
	if value == nil {
		*j = nil
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return nil
	}
	return json.Unmarshal(bytes, j)
}

// RemoteBackend persists threads as document rows for authenticated sessions.
type RemoteBackend struct {
	db     *gorm.DB
	userID string
	log    zerolog.Logger
}

// NewRemoteBackend creates a backend scoped to one user.
func NewRemoteBackend(db *gorm.DB, userID string, log zerolog.Logger) *RemoteBackend {
	return &RemoteBackend{db: db, userID: userID, log: log}
}

// Create inserts a new thread row and returns the minted remote id.
func (b *RemoteBackend) Create(ctx context.Context, t *chat.Thread) (string, error) {
	remoteID, err := idgen.GenerateSecureID("conv", 16)
	if err != nil {
		return "", platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeInternal, "unable to generate remote id", err)
	}

	record := b.toRecord(t)
	record.RemoteID = remoteID
	if err := b.db.WithContext(ctx).Create(&record).Error; err != nil {
		return "", platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeInternal, "unable to create thread", err)
	}
	return remoteID, nil
}

// Save upserts the thread row keyed by its local id.
func (b *RemoteBackend) Save(ctx context.Context, t *chat.Thread) error {
	record := b.toRecord(t)
	if record.RemoteID == "" {
		// The create has not resolved yet; mint an id so the upsert can land.
		remoteID, err := idgen.GenerateSecureID("conv", 16)
		if err != nil {
			return platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeInternal, "unable to generate remote id", err)
		}
		record.RemoteID = remoteID
	}

	err := b.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "local_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"title", "messages", "updated_at"}),
	}).Create(&record).Error
	if err != nil {
		return platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeInternal, "unable to save thread", err)
	}
	return nil
}

// Delete soft-deletes the thread row.
func (b *RemoteBackend) Delete(ctx context.Context, t *chat.Thread) error {
	err := b.db.WithContext(ctx).
		Where("local_id = ? AND user_id = ?", t.ID, b.userID).
		Delete(&ThreadRecord{}).Error
	if err != nil {
		return platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeInternal, "unable to delete thread", err)
	}
	return nil
}

// Load returns the user's threads, most recently created first.
func (b *RemoteBackend) Load(ctx context.Context) ([]*chat.Thread, error) {
	var records []ThreadRecord
	err := b.db.WithContext(ctx).
		Where("user_id = ?", b.userID).
		Order("created_at DESC").
		Find(&records).Error
	if err != nil {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeInternal, "unable to load threads", err)
	}

	threads := make([]*chat.Thread, 0, len(records))
	for _, r := range records {
		threads = append(threads, r.toThread())
	}
	return threads, nil
}

func (b *RemoteBackend) toRecord(t *chat.Thread) ThreadRecord {
	return ThreadRecord{
		RemoteID:  t.RemoteID,
		LocalID:   t.ID,
		UserID:    b.userID,
		Title:     t.Title,
		Messages:  JSONMessages(t.Messages),
		CreatedAt: t.CreatedAt,
		UpdatedAt: t.UpdatedAt,
	}
}

func (r ThreadRecord) toThread() *chat.Thread {
	return &chat.Thread{
		ID:        r.LocalID,
		RemoteID:  r.RemoteID,
		Title:     r.Title,
		Messages:  []chat.Message(r.Messages),
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

var _ chat.Backend = (*RemoteBackend)(nil)

// String implements fmt.Stringer for logging.
func (b *RemoteBackend) String() string {
	return fmt.Sprintf("remote(user=%s)", b.userID)
}
