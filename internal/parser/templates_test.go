package parser

import (
	"testing"

	"github.com/gikundiro/fanpay-backend/pkg/enums"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	mtnReceived = "You have received 15,000 RWF from JOHN DOE (250788123456) on your mobile money account at 2025-06-01 12:00:00. " +
		"Your new balance: 20,000 RWF. Financial Transaction Id: 7781234567."
	mtnReceivedNoRef = "You have received 15,000 RWF from JOHN DOE (250788123456) on your mobile money account."
	airtelReceived   = "Received RWF 5000 from 250733123456 JANE. Trans ID: AB12345."
	mtnTransfer      = "Your payment of 12,000 RWF to FANPAY LTD has been completed. TxId: 99887766."
	genericReceipt   = "Payment 7,500 FRW received. Ref ABC-778."
	unrelatedText    = "Your bundle expires tomorrow. Dial *345# to renew."
)

func TestExtractCarrierTemplates(t *testing.T) {
	cases := []struct {
		name       string
		text       string
		amount     int64
		reference  string
		payerMask  string
		template   string
		version    string
		confidence float64
		exact      bool
	}{
		{"mtn received", mtnReceived, 15000, "7781234567", "*********456", "mtn_momo_received", "template:mtn_momo_received:v1", 0.92, true},
		{"mtn received without reference", mtnReceivedNoRef, 15000, "", "*********456", "mtn_momo_received", "template:mtn_momo_received:v1", 0.82, false},
		{"mtn received carrier masked", "You have received 15000 RWF from 0788xxxxxx Ref: TXA123", 15000, "TXA123", "0788******", "mtn_momo_received", "template:mtn_momo_received:v1", 0.92, true},
		{"airtel received", airtelReceived, 5000, "AB12345", "*********456", "airtel_money_received", "template:airtel_money_received:v1", 0.90, true},
		{"mtn merchant payment", mtnTransfer, 12000, "99887766", "", "mtn_momo_transfer", "template:mtn_momo_transfer:v1", 0.88, true},
		{"generic receipt", genericReceipt, 7500, "ABC-778", "", "generic", genericParserVersion, genericConfidence, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f, confidence, version := extract(tc.text)
			require.NotNil(t, f.Amount)
			assert.Equal(t, tc.amount, *f.Amount)
			assert.Equal(t, enums.CurrencyRWF, f.Currency)
			assert.Equal(t, tc.template, f.Template)
			assert.Equal(t, tc.version, version)
			assert.InDelta(t, tc.confidence, confidence, 0.0001)
			assert.Equal(t, tc.exact, f.Exact)
			if tc.reference == "" {
				assert.Nil(t, f.Reference)
			} else {
				require.NotNil(t, f.Reference)
				assert.Equal(t, tc.reference, *f.Reference)
			}
			if tc.payerMask == "" {
				assert.Nil(t, f.PayerMask)
			} else {
				require.NotNil(t, f.PayerMask)
				assert.Equal(t, tc.payerMask, *f.PayerMask)
			}
		})
	}
}

func TestExtractUnparseable(t *testing.T) {
	f, confidence, _ := extract(unrelatedText)
	assert.Nil(t, f.Amount)
	assert.Zero(t, confidence)
}

func TestParseAmount(t *testing.T) {
	cases := map[string]struct {
		want int64
		ok   bool
	}{
		"15,000":    {15000, true},
		"15000.00":  {15000, true},
		"1,250,000": {1250000, true},
		"15000.50":  {0, false},
		"0":         {0, false},
		"":          {0, false},
	}
	for raw, tc := range cases {
		got, ok := parseAmount(raw)
		assert.Equal(t, tc.ok, ok, raw)
		assert.Equal(t, tc.want, got, raw)
	}
}

func TestRedactPhones(t *testing.T) {
	redacted := RedactPhones(mtnReceived)
	assert.NotContains(t, redacted, "250788123456")
	assert.Contains(t, redacted, "*********456")
	assert.Contains(t, redacted, "15,000 RWF")
}
