// Package audit appends state transitions to the audit_log table. Entries
// are never updated or deleted; the database rules enforce the same.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/gikundiro/fanpay-backend/pkg/db/models"
	pkgerrors "github.com/gikundiro/fanpay-backend/pkg/errors"
	"github.com/gikundiro/fanpay-backend/pkg/pagination"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	ActionPaymentSettle  = "payment.settle"
	ActionPaymentHold    = "payment.hold"
	ActionPaymentRelease = "payment.release"
	ActionPaymentFail    = "payment.fail"
	ActionSmsAttach      = "sms.attach"
	ActionSmsDismiss     = "sms.dismiss"
	ActionSmsRetry       = "sms.retry"
	ActionPromptCreate   = "parser.prompt.create"
	ActionPromptActivate = "parser.prompt.activate"
)

const (
	EntityPayment      = "payment"
	EntitySms          = "sms"
	EntityParserPrompt = "parser_prompt"
)

// Entry is one transition. Before and After may be any JSON-encodable value.
type Entry struct {
	Action     string
	EntityType string
	EntityID   string
	Before     any
	After      any
	ActorID    *uuid.UUID
	At         time.Time
}

// Filter narrows List. Empty fields match everything.
type Filter struct {
	EntityType string
	EntityID   string
	Action     string
	Limit      int
	Cursor     string
}

// ListResult is one page of entries, newest first.
type ListResult struct {
	Items  []models.AuditLogEntry `json:"items"`
	Cursor string                 `json:"cursor"`
}

type Recorder struct {
	db    *gorm.DB
	clock func() time.Time
}

func NewRecorder(db *gorm.DB) *Recorder {
	return &Recorder{db: db, clock: time.Now}
}

// Record appends entry using tx so the entry commits or rolls back with the
// transition it describes.
func (r *Recorder) Record(ctx context.Context, tx *gorm.DB, entry Entry) error {
	if strings.TrimSpace(entry.Action) == "" || strings.TrimSpace(entry.EntityType) == "" || strings.TrimSpace(entry.EntityID) == "" {
		return fmt.Errorf("audit entry requires action, entity type and entity id")
	}
	before, err := snapshot(entry.Before)
	if err != nil {
		return fmt.Errorf("audit before snapshot: %w", err)
	}
	after, err := snapshot(entry.After)
	if err != nil {
		return fmt.Errorf("audit after snapshot: %w", err)
	}
	at := entry.At
	if at.IsZero() {
		at = r.clock()
	}

	conn := tx
	if conn == nil {
		conn = r.db
	}
	row := models.AuditLogEntry{
		ID:         uuid.New(),
		Action:     entry.Action,
		EntityType: entry.EntityType,
		EntityID:   entry.EntityID,
		Before:     before,
		After:      after,
		ActorID:    entry.ActorID,
		At:         at.UTC(),
	}
	return conn.WithContext(ctx).Create(&row).Error
}

// List returns entries newest first with cursor pagination.
func (r *Recorder) List(ctx context.Context, filter Filter) (*ListResult, error) {
	limit := pagination.NormalizeLimit(filter.Limit)
	query := r.db.WithContext(ctx).Model(&models.AuditLogEntry{})
	if v := strings.TrimSpace(filter.EntityType); v != "" {
		query = query.Where("entity_type = ?", v)
	}
	if v := strings.TrimSpace(filter.EntityID); v != "" {
		query = query.Where("entity_id = ?", v)
	}
	if v := strings.TrimSpace(filter.Action); v != "" {
		query = query.Where("action = ?", v)
	}
	if filter.Cursor != "" {
		cursor, err := pagination.Decode(filter.Cursor)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
		}
		query = query.Where("(at < ?) OR (at = ? AND id < ?)", cursor.At, cursor.At, cursor.ID)
	}

	var rows []models.AuditLogEntry
	if err := query.Order("at DESC, id DESC").Limit(limit + 1).Find(&rows).Error; err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list audit log")
	}

	items, next := pagination.Page(rows, limit, func(row models.AuditLogEntry) pagination.Cursor {
		return pagination.Cursor{At: row.At, ID: row.ID}
	})
	return &ListResult{Items: items, Cursor: next}, nil
}

func snapshot(v any) (json.RawMessage, error) {
	switch typed := v.(type) {
	case nil:
		return nil, nil
	case json.RawMessage:
		return typed, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	if string(data) == "null" {
		return nil, nil
	}
	return data, nil
}
