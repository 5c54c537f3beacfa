package enums

import (
	"fmt"
	"strings"
)

// PaymentStatus is the settlement state of a payment. Allowed moves live in
// internal/settlement.
type PaymentStatus string

const (
	PaymentStatusPending      PaymentStatus = "pending"
	PaymentStatusConfirmed    PaymentStatus = "confirmed"
	PaymentStatusFailed       PaymentStatus = "failed"
	PaymentStatusManualReview PaymentStatus = "manual_review"
)

var paymentStatuses = newSet("payment status",
	PaymentStatusPending, PaymentStatusConfirmed, PaymentStatusFailed, PaymentStatusManualReview)

func (p PaymentStatus) String() string { return string(p) }
func (p PaymentStatus) IsValid() bool  { return paymentStatuses.has(p) }

func ParsePaymentStatus(raw string) (PaymentStatus, error) {
	return paymentStatuses.parse(raw)
}

// PaymentKind names the dependent entity a payment settles.
type PaymentKind string

const (
	PaymentKindTicket     PaymentKind = "ticket"
	PaymentKindMembership PaymentKind = "membership"
	PaymentKindShop       PaymentKind = "shop"
	PaymentKindDonation   PaymentKind = "donation"
)

var paymentKinds = newSet("payment kind",
	PaymentKindTicket, PaymentKindMembership, PaymentKindShop, PaymentKindDonation)

func (k PaymentKind) String() string { return string(k) }
func (k PaymentKind) IsValid() bool  { return paymentKinds.has(k) }

func ParsePaymentKind(raw string) (PaymentKind, error) {
	return paymentKinds.parse(raw)
}

// Currency is the denomination of a payment or SMS amount. Only the Rwandan
// franc is accepted.
type Currency string

const CurrencyRWF Currency = "RWF"

func (c Currency) String() string { return string(c) }
func (c Currency) IsValid() bool  { return c == CurrencyRWF }

// ParseCurrency accepts the spellings carriers use in receipts.
func ParseCurrency(raw string) (Currency, error) {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "RWF", "FRW", "RF":
		return CurrencyRWF, nil
	}
	return "", fmt.Errorf("invalid currency %q", raw)
}
