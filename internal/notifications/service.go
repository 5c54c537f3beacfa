// Package notifications tells payers their payment went through. Delivery
// runs behind the notifier circuit breaker.
package notifications

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/gikundiro/fanpay-backend/pkg/breaker"
	"github.com/gikundiro/fanpay-backend/pkg/enums"
	pkgerrors "github.com/gikundiro/fanpay-backend/pkg/errors"
	"github.com/gikundiro/fanpay-backend/pkg/logger"
	"github.com/gikundiro/fanpay-backend/pkg/outbox/payloads"
)

type ServiceParams struct {
	Sender   Sender
	Breaker  *breaker.Breaker
	SenderID string
	Logger   *logger.Logger
}

type Service struct {
	sender   Sender
	breaker  *breaker.Breaker
	senderID string
	logg     *logger.Logger
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Sender == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "notification sender required")
	}
	if params.Breaker == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "notifier breaker required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "logger required")
	}
	return &Service{
		sender:   params.Sender,
		breaker:  params.Breaker,
		senderID: params.SenderID,
		logg:     params.Logger,
	}, nil
}

// NotifyPaymentConfirmed sends the payer a confirmation. Payments without a
// known phone are skipped. While the breaker rejects calls the message is
// dropped and nil returned; other send errors are returned for redelivery.
func (s *Service) NotifyPaymentConfirmed(ctx context.Context, evt payloads.PaymentConfirmedEvent) error {
	logCtx := s.logg.WithSmsID(s.logg.WithPaymentID(ctx, evt.PaymentID.String()), evt.SmsID.String())
	to := strings.TrimSpace(evt.PayerPhone)
	if to == "" {
		s.logg.Info(logCtx, "payer phone unknown; confirmation skipped")
		return nil
	}

	msg := Message{To: to, From: s.senderID, Text: confirmationText(evt)}
	err := s.breaker.Do(ctx, func(ctx context.Context) error {
		return s.sender.Send(ctx, msg)
	})
	if err == nil {
		s.logg.Info(logCtx, "payment confirmation sent")
		return nil
	}
	if breaker.IsBreakerError(err) {
		s.logg.Warn(s.logg.WithField(logCtx, "error", err.Error()), "notifier unavailable; confirmation dropped")
		return nil
	}
	return err
}

func confirmationText(evt payloads.PaymentConfirmedEvent) string {
	return fmt.Sprintf("Murakoze! We received %s %s for your %s. Ref %s.",
		groupThousands(evt.Amount), evt.Currency, kindLabel(evt.Kind), shortRef(evt.PaymentID.String()))
}

func kindLabel(kind enums.PaymentKind) string {
	switch kind {
	case enums.PaymentKindTicket:
		return "ticket"
	case enums.PaymentKindMembership:
		return "membership"
	case enums.PaymentKindShop:
		return "shop order"
	case enums.PaymentKindDonation:
		return "donation"
	}
	return "payment"
}

func shortRef(id string) string {
	id = strings.ToUpper(strings.ReplaceAll(id, "-", ""))
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func groupThousands(n int64) string {
	s := strconv.FormatInt(n, 10)
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}
	var b strings.Builder
	for i, r := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	if neg {
		return "-" + b.String()
	}
	return b.String()
}
