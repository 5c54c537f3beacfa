package outbox

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/gikundiro/fanpay-backend/pkg/db/models"
	"github.com/gikundiro/fanpay-backend/pkg/enums"
)

const maxDeadLetterError = 1024

var errNoTx = errors.New("transaction required")

// Store owns the outbox_events and outbox_dlq tables. Row-level methods take
// the caller's transaction so state changes and their events commit together.
type Store struct {
	db  *gorm.DB
	now func() time.Time
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db, now: time.Now}
}

func (s *Store) Append(tx *gorm.DB, row models.OutboxEvent) error {
	if tx == nil {
		return errNoTx
	}
	return tx.Create(&row).Error
}

// Claim locks the oldest unpublished rows still under the attempt ceiling.
// SKIP LOCKED lets several relays drain the table without double publishing.
func (s *Store) Claim(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error) {
	if tx == nil {
		return nil, errNoTx
	}
	var rows []models.OutboxEvent
	err := tx.
		Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
		Where("published_at IS NULL AND attempt_count < ?", maxAttempts).
		Order("created_at, id").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

func (s *Store) MarkPublished(tx *gorm.DB, id uuid.UUID) error {
	return tx.Model(&models.OutboxEvent{}).
		Where("id = ?", id).
		Update("published_at", s.now().UTC()).Error
}

// MarkRetry records a failed attempt; the row stays claimable.
func (s *Store) MarkRetry(tx *gorm.DB, id uuid.UUID, cause error) error {
	return tx.Model(&models.OutboxEvent{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"attempt_count": gorm.Expr("attempt_count + 1"),
			"last_error":    clip(cause.Error()),
		}).Error
}

// DeadLetter copies the row into outbox_dlq and parks it at parkAt attempts
// so Claim never returns it again.
func (s *Store) DeadLetter(tx *gorm.DB, row models.OutboxEvent, reason enums.OutboxDLQErrorReason, cause error, parkAt int) error {
	if tx == nil {
		return errNoTx
	}
	if !reason.IsValid() {
		return errors.New("unknown dead letter reason " + string(reason))
	}
	msg := clip(cause.Error())
	entry := models.DeadLetterOf(row, reason, msg, s.now())
	if err := tx.Create(&entry).Error; err != nil {
		return err
	}
	return tx.Model(&models.OutboxEvent{}).
		Where("id = ?", row.ID).
		Updates(map[string]any{
			"attempt_count": parkAt,
			"last_error":    msg,
		}).Error
}

// DeadLetterFor returns the dead letter recorded for an outbox row, or nil.
func (s *Store) DeadLetterFor(ctx context.Context, eventID uuid.UUID) (*models.OutboxDLQ, error) {
	var entry models.OutboxDLQ
	err := s.db.WithContext(ctx).Where("event_id = ?", eventID).First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// PrunePublished deletes up to limit rows published before cutoff, oldest
// first, and reports how many went.
func (s *Store) PrunePublished(ctx context.Context, cutoff time.Time, limit int) (int64, error) {
	oldest := s.db.WithContext(ctx).
		Model(&models.OutboxEvent{}).
		Select("id").
		Where("published_at IS NOT NULL AND published_at < ?", cutoff).
		Order("published_at").
		Limit(limit)
	res := s.db.WithContext(ctx).Where("id IN (?)", oldest).Delete(&models.OutboxEvent{})
	return res.RowsAffected, res.Error
}

// PruneDeadLetters deletes up to limit dead letters recorded before cutoff
// along with the parked outbox rows they were copied from.
func (s *Store) PruneDeadLetters(ctx context.Context, cutoff time.Time, limit int) (int64, error) {
	var pruned int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var batch []models.OutboxDLQ
		if err := tx.Select("id", "event_id").
			Where("failed_at < ?", cutoff).
			Order("failed_at").
			Limit(limit).
			Find(&batch).Error; err != nil {
			return err
		}
		if len(batch) == 0 {
			return nil
		}
		ids := make([]uuid.UUID, len(batch))
		events := make([]uuid.UUID, len(batch))
		for i, d := range batch {
			ids[i], events[i] = d.ID, d.EventID
		}
		if err := tx.Where("id IN ? AND published_at IS NULL", events).Delete(&models.OutboxEvent{}).Error; err != nil {
			return err
		}
		res := tx.Where("id IN ?", ids).Delete(&models.OutboxDLQ{})
		pruned = res.RowsAffected
		return res.Error
	})
	return pruned, err
}

func clip(msg string) string {
	if len(msg) > maxDeadLetterError {
		return msg[:maxDeadLetterError]
	}
	return msg
}
