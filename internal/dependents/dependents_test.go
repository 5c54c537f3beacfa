package dependents

import (
	"context"
	"testing"
	"time"

	"github.com/gikundiro/fanpay-backend/pkg/db/dbtest"
	"github.com/gikundiro/fanpay-backend/pkg/db/models"
	"github.com/gikundiro/fanpay-backend/pkg/enums"
	pkgerrors "github.com/gikundiro/fanpay-backend/pkg/errors"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

var settledAt = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func TestTicketOrderSettlesOnce(t *testing.T) {
	conn := dbtest.Open(t)
	ctx := context.Background()
	order := models.TicketOrder{ID: uuid.New(), Status: enums.TicketOrderStatusPending, Amount: 15000}
	require.NoError(t, conn.Create(&order).Error)

	dep, err := NewRegistry().For(enums.PaymentKindTicket)
	require.NoError(t, err)

	require.NoError(t, dep.MarkSettled(ctx, conn, order.ID, Settlement{SmsRef: "sms-1", At: settledAt}))

	var got models.TicketOrder
	require.NoError(t, conn.First(&got, "id = ?", order.ID).Error)
	require.Equal(t, enums.TicketOrderStatusPaid, got.Status)
	require.Equal(t, "sms-1", *got.SmsRef)
	require.True(t, got.PaidAt.Equal(settledAt))

	err = dep.MarkSettled(ctx, conn, order.ID, Settlement{SmsRef: "sms-2", At: settledAt})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict), "got %v", err)
}

func TestMembershipActivatesForOneYear(t *testing.T) {
	conn := dbtest.Open(t)
	ctx := context.Background()
	m := models.Membership{ID: uuid.New(), Status: enums.MembershipStatusPending, Amount: 50000}
	require.NoError(t, conn.Create(&m).Error)

	require.NoError(t, Memberships{}.MarkSettled(ctx, conn, m.ID, Settlement{At: settledAt}))

	var got models.Membership
	require.NoError(t, conn.First(&got, "id = ?", m.ID).Error)
	require.Equal(t, enums.MembershipStatusActive, got.Status)
	require.True(t, got.StartedAt.Equal(settledAt))
	require.True(t, got.ExpiresAt.Equal(settledAt.AddDate(0, 0, 365)))

	require.NoError(t, Memberships{}.MarkFailed(ctx, conn, m.ID, settledAt.Add(time.Hour)))
	require.NoError(t, conn.First(&got, "id = ?", m.ID).Error)
	require.Equal(t, enums.MembershipStatusCancelled, got.Status)
}

func TestShopAndDonationTransitions(t *testing.T) {
	conn := dbtest.Open(t)
	ctx := context.Background()
	shop := models.ShopOrder{ID: uuid.New(), Status: enums.ShopOrderStatusPending, Amount: 8000}
	donation := models.Donation{ID: uuid.New(), Status: enums.DonationStatusPending, Amount: 2000}
	require.NoError(t, conn.Create(&shop).Error)
	require.NoError(t, conn.Create(&donation).Error)

	require.NoError(t, ShopOrders{}.MarkSettled(ctx, conn, shop.ID, Settlement{At: settledAt}))
	require.NoError(t, Donations{}.MarkFailed(ctx, conn, donation.ID, settledAt))

	var gotShop models.ShopOrder
	require.NoError(t, conn.First(&gotShop, "id = ?", shop.ID).Error)
	require.Equal(t, enums.ShopOrderStatusConfirmed, gotShop.Status)

	var gotDonation models.Donation
	require.NoError(t, conn.First(&gotDonation, "id = ?", donation.ID).Error)
	require.Equal(t, enums.DonationStatusFailed, gotDonation.Status)

	err := Donations{}.MarkSettled(ctx, conn, donation.ID, Settlement{At: settledAt})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
}

func TestMissingEntityIsStateConflict(t *testing.T) {
	conn := dbtest.Open(t)
	err := ShopOrders{}.MarkSettled(context.Background(), conn, uuid.New(), Settlement{At: settledAt})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
}

func TestRegistryUnknownKind(t *testing.T) {
	_, err := NewRegistry().For(enums.PaymentKind("raffle"))
	require.Error(t, err)
}
