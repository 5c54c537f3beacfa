package parser

import (
	"context"
	"errors"
	"time"

	"github.com/gikundiro/fanpay-backend/pkg/db/models"
	"github.com/gikundiro/fanpay-backend/pkg/enums"
	pkgerrors "github.com/gikundiro/fanpay-backend/pkg/errors"
	"github.com/gikundiro/fanpay-backend/pkg/logger"
	"gorm.io/gorm"
)

// ErrParseFailure marks an SMS whose text yielded no usable amount. The raw
// record is moved to error and never enters matching.
var ErrParseFailure = errors.New("sms could not be parsed")

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type ServiceParams struct {
	DB         txRunner
	Repository *Repository
	Parser     *Parser
	Logger     *logger.Logger
	Clock      func() time.Time
}

type Service struct {
	db     txRunner
	repo   *Repository
	parser *Parser
	logg   *logger.Logger
	clock  func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	if params.DB == nil || params.Repository == nil || params.Parser == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "parser service dependencies required")
	}
	clock := params.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Service{
		db:     params.DB,
		repo:   params.Repository,
		parser: params.Parser,
		logg:   params.Logger,
		clock:  clock,
	}, nil
}

// ParseAndStore parses raw and persists the result together with the raw
// status. On unparseable text the stored row carries no amount and
// ErrParseFailure is returned alongside it.
func (s *Service) ParseAndStore(ctx context.Context, raw *models.SmsRaw) (*models.SmsParsed, error) {
	if raw == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "sms record required")
	}
	result := s.parser.Parse(ctx, raw.Text)
	if !result.Parsed() {
		result.Amount = nil
		result.Confidence = 0
	}
	now := s.clock().UTC()

	var stored *models.SmsParsed
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		row, err := s.repo.UpsertTx(ctx, tx, raw.ID, result, now)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "store parsed sms")
		}
		stored = row

		status := enums.SmsStatusParsed
		if !result.Parsed() && !row.Matched() {
			status = enums.SmsStatusError
		}
		if err := s.repo.SetRawStatusTx(ctx, tx, raw.ID, status, now); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update sms status")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.logg != nil {
		logCtx := s.logg.WithFields(s.logg.WithSmsID(ctx, raw.ID.String()), map[string]any{
			"parser_version": stored.ParserVersion,
			"confidence":     stored.Confidence,
			"degraded":       result.Degraded,
		})
		if stored.Matched() {
			s.logg.Info(logCtx, "sms already matched; parse result kept")
		} else if !result.Parsed() {
			s.logg.Warn(logCtx, "sms unparseable")
		} else {
			s.logg.Info(logCtx, "sms parsed")
		}
	}
	if !stored.Matched() && !result.Parsed() {
		return stored, ErrParseFailure
	}
	return stored, nil
}
