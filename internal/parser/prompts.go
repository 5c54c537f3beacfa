package parser

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/gikundiro/fanpay-backend/internal/audit"
	"github.com/gikundiro/fanpay-backend/internal/repo"
	"github.com/gikundiro/fanpay-backend/pkg/auth"
	"github.com/gikundiro/fanpay-backend/pkg/db"
	"github.com/gikundiro/fanpay-backend/pkg/db/models"
	"github.com/gikundiro/fanpay-backend/pkg/enums"
	pkgerrors "github.com/gikundiro/fanpay-backend/pkg/errors"
	"github.com/gikundiro/fanpay-backend/pkg/logger"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// PromptRepository stores classifier prompt versions.
type PromptRepository struct {
	repo.Base
}

func NewPromptRepository(conn *gorm.DB) *PromptRepository {
	return &PromptRepository{Base: repo.NewBase(conn)}
}

func (r *PromptRepository) List(ctx context.Context) ([]models.SmsParserPrompt, error) {
	var rows []models.SmsParserPrompt
	err := r.DB(ctx).Order("version DESC").Find(&rows).Error
	return rows, err
}

// Active returns nil when no version is active.
func (r *PromptRepository) Active(ctx context.Context) (*models.SmsParserPrompt, error) {
	var row models.SmsParserPrompt
	err := r.DB(ctx).Where("is_active = ?", true).Order("version DESC").First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *PromptRepository) Get(ctx context.Context, id uuid.UUID) (*models.SmsParserPrompt, error) {
	return r.getTx(ctx, r.DB(ctx), id)
}

func (r *PromptRepository) getTx(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*models.SmsParserPrompt, error) {
	return r.find(r.Tx(ctx, tx), id)
}

// lockTx reads id under a row lock so concurrent activations serialize.
func (r *PromptRepository) lockTx(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*models.SmsParserPrompt, error) {
	return r.find(r.Locked(ctx, tx), id)
}

func (r *PromptRepository) find(query *gorm.DB, id uuid.UUID) (*models.SmsParserPrompt, error) {
	var row models.SmsParserPrompt
	err := query.Where("id = ?", id).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "parser prompt not found")
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load parser prompt")
	}
	return &row, nil
}

func (r *PromptRepository) maxVersionTx(ctx context.Context, tx *gorm.DB) (int, error) {
	var highest int
	err := r.Tx(ctx, tx).Model(&models.SmsParserPrompt{}).Select("COALESCE(MAX(version), 0)").Scan(&highest).Error
	return highest, err
}

func (r *PromptRepository) activateTx(ctx context.Context, tx *gorm.DB, id uuid.UUID) error {
	if err := r.Tx(ctx, tx).
		Model(&models.SmsParserPrompt{}).
		Where("is_active = ? AND id <> ?", true, id).
		Update("is_active", false).Error; err != nil {
		return err
	}
	return r.Tx(ctx, tx).
		Model(&models.SmsParserPrompt{}).
		Where("id = ?", id).
		Update("is_active", true).Error
}

type CreatePromptInput struct {
	Label   string
	Body    string
	Version *int
}

type TestInput struct {
	Text       string
	PromptBody string
	PromptID   *uuid.UUID
}

type PromptServiceParams struct {
	DB         txRunner
	Repository *PromptRepository
	Parser     *Parser
	Audit      auditRecorder
	Logger     *logger.Logger
	Clock      func() time.Time
}

type auditRecorder interface {
	Record(ctx context.Context, tx *gorm.DB, entry audit.Entry) error
}

// PromptService manages the prompt versions sent to the classifier. Every
// operation requires the parser update permission.
type PromptService struct {
	db     txRunner
	repo   *PromptRepository
	parser *Parser
	audit  auditRecorder
	logg   *logger.Logger
	clock  func() time.Time
}

func NewPromptService(params PromptServiceParams) (*PromptService, error) {
	if params.DB == nil || params.Repository == nil || params.Parser == nil || params.Audit == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "prompt service dependencies required")
	}
	clock := params.Clock
	if clock == nil {
		clock = time.Now
	}
	return &PromptService{
		db:     params.DB,
		repo:   params.Repository,
		parser: params.Parser,
		audit:  params.Audit,
		logg:   params.Logger,
		clock:  clock,
	}, nil
}

func requireParserUpdate(caps auth.Capabilities) error {
	if !caps.Authenticated() {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	if !caps.Has(enums.PermissionSmsParserUpdate) {
		return pkgerrors.New(pkgerrors.CodeForbidden, "missing permission "+enums.PermissionSmsParserUpdate.String())
	}
	return nil
}

func (s *PromptService) List(ctx context.Context, caps auth.Capabilities) ([]models.SmsParserPrompt, error) {
	if err := requireParserUpdate(caps); err != nil {
		return nil, err
	}
	rows, err := s.repo.List(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list parser prompts")
	}
	return rows, nil
}

// Active returns nil when no prompt is active.
func (s *PromptService) Active(ctx context.Context, caps auth.Capabilities) (*models.SmsParserPrompt, error) {
	if err := requireParserUpdate(caps); err != nil {
		return nil, err
	}
	row, err := s.repo.Active(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load active parser prompt")
	}
	return row, nil
}

// Create stores a new inactive version. Without an explicit version the next
// one after the current maximum is used.
func (s *PromptService) Create(ctx context.Context, caps auth.Capabilities, in CreatePromptInput) (*models.SmsParserPrompt, error) {
	if err := requireParserUpdate(caps); err != nil {
		return nil, err
	}
	label := strings.TrimSpace(in.Label)
	body := strings.TrimSpace(in.Body)
	if label == "" || body == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "label and body are required")
	}
	if in.Version != nil && *in.Version < 1 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "version must be positive")
	}

	actor := caps.UserID()
	now := s.clock().UTC()
	var created models.SmsParserPrompt
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		version := 0
		if in.Version != nil {
			version = *in.Version
		} else {
			highest, err := s.repo.maxVersionTx(ctx, tx)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read prompt versions")
			}
			version = highest + 1
		}
		created = models.SmsParserPrompt{
			ID:        uuid.New(),
			Label:     label,
			Body:      body,
			Version:   version,
			CreatedBy: &actor,
			CreatedAt: now,
		}
		if err := tx.WithContext(ctx).Create(&created).Error; err != nil {
			if db.IsUniqueViolation(err, "") {
				return pkgerrors.New(pkgerrors.CodeConflict, "prompt version already exists")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create parser prompt")
		}
		return s.audit.Record(ctx, tx, audit.Entry{
			Action:     audit.ActionPromptCreate,
			EntityType: audit.EntityParserPrompt,
			EntityID:   created.ID.String(),
			After:      created,
			ActorID:    &actor,
			At:         now,
		})
	})
	if err != nil {
		return nil, err
	}
	if s.logg != nil {
		logCtx := s.logg.WithFields(s.logg.WithUserID(ctx, actor.String()), map[string]any{
			"prompt_id": created.ID.String(),
			"version":   created.Version,
		})
		s.logg.Info(logCtx, "parser prompt created")
	}
	return &created, nil
}

// Activate makes id the only active version.
func (s *PromptService) Activate(ctx context.Context, caps auth.Capabilities, id uuid.UUID) (*models.SmsParserPrompt, error) {
	if err := requireParserUpdate(caps); err != nil {
		return nil, err
	}
	actor := caps.UserID()
	now := s.clock().UTC()
	var updated models.SmsParserPrompt
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		before, err := s.repo.lockTx(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := s.repo.activateTx(ctx, tx, id); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "activate parser prompt")
		}
		updated = *before
		updated.IsActive = true
		return s.audit.Record(ctx, tx, audit.Entry{
			Action:     audit.ActionPromptActivate,
			EntityType: audit.EntityParserPrompt,
			EntityID:   id.String(),
			Before:     before,
			After:      updated,
			ActorID:    &actor,
			At:         now,
		})
	})
	if err != nil {
		return nil, err
	}
	if s.logg != nil {
		logCtx := s.logg.WithFields(s.logg.WithUserID(ctx, actor.String()), map[string]any{
			"prompt_id": id.String(),
			"version":   updated.Version,
		})
		s.logg.Info(logCtx, "parser prompt activated")
	}
	return &updated, nil
}

// Test parses sample text with the selected prompt and stores nothing.
func (s *PromptService) Test(ctx context.Context, caps auth.Capabilities, in TestInput) (Result, error) {
	if err := requireParserUpdate(caps); err != nil {
		return Result{}, err
	}
	if strings.TrimSpace(in.Text) == "" {
		return Result{}, pkgerrors.New(pkgerrors.CodeValidation, "text is required")
	}
	return s.parser.ParseSample(ctx, in.Text, SampleOptions{PromptBody: in.PromptBody, PromptID: in.PromptID})
}
