package logger

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	pkgerrors "github.com/gikundiro/fanpay-backend/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func newBuffered(opts Options) (*Logger, *bytes.Buffer) {
	buf := &bytes.Buffer{}
	opts.Output = buf
	opts.Format = FormatJSON
	if opts.ServiceName == "" {
		opts.ServiceName = "test"
	}
	return New(opts), buf
}

func TestLoggerErrorIncludesContextFields(t *testing.T) {
	log, buf := newBuffered(Options{Level: ParseLevel("debug")})

	ctx := log.WithRequestID(context.Background(), "req-123")
	ctx = log.WithSmsID(ctx, "sms-1")
	log.Error(ctx, "boom", errors.New("boom"))

	require.Contains(t, buf.String(), `"request_id":"req-123"`)
	require.Contains(t, buf.String(), `"sms_id":"sms-1"`)
	require.Contains(t, buf.String(), `"error":"boom"`)
	require.Contains(t, buf.String(), `"stack"`)
}

func TestLoggerErrorCodeAndStack(t *testing.T) {
	log, buf := newBuffered(Options{})
	log.Error(context.Background(), "rejected", pkgerrors.New(pkgerrors.CodeMatchConflict, "already matched"))
	require.Contains(t, buf.String(), `"code":"MATCH_CONFLICT"`)
	require.NotContains(t, buf.String(), `"stack"`)

	buf.Reset()
	log.Error(context.Background(), "db", pkgerrors.New(pkgerrors.CodeDependency, "down"))
	require.Contains(t, buf.String(), `"stack"`)
}

func TestLoggerWarnStackToggle(t *testing.T) {
	log, buf := newBuffered(Options{WarnStack: true})
	log.Warn(context.Background(), "warny")
	require.Contains(t, buf.String(), `"stack"`)

	quiet, buf := newBuffered(Options{})
	quiet.Warn(context.Background(), "warny")
	require.NotContains(t, buf.String(), `"stack"`)
}

func TestLoggerFieldsDoNotLeakAcrossContexts(t *testing.T) {
	log, buf := newBuffered(Options{})

	base := context.Background()
	_ = log.WithPaymentID(base, "pay-1")
	log.Info(base, "plain")

	require.NotContains(t, buf.String(), "pay-1")
}

func TestLoggerMasksSensitiveFields(t *testing.T) {
	log, buf := newBuffered(Options{})
	phone := "+250788123456"
	ctx := log.WithFields(context.Background(), map[string]any{"from": phone, "to": &phone, "amount": 5000})
	log.Info(ctx, "inbound")

	require.NotContains(t, buf.String(), phone)
	require.Contains(t, buf.String(), `"from":"**********456"`)
	require.Contains(t, buf.String(), `"amount":5000`)
}

func TestMask(t *testing.T) {
	require.Equal(t, "***", Mask("abc"))
	require.Equal(t, "", Mask(nil))
	require.Equal(t, "**345", Mask(" 12345 "))
}

func TestParseLevelDefaults(t *testing.T) {
	require.Equal(t, zerolog.InfoLevel, ParseLevel(""))
	require.Equal(t, zerolog.InfoLevel, ParseLevel("invalid"))
	require.Equal(t, zerolog.DebugLevel, ParseLevel(" DEBUG "))
}

func TestMaskIsRuneAware(t *testing.T) {
	require.Equal(t, "**llé", Mask("Paillé"[1:]))
	require.Equal(t, "", Mask(42))
}

func TestWithFieldsOrdersKeys(t *testing.T) {
	log, buf := newBuffered(Options{})
	log.Info(log.WithFields(context.Background(), map[string]any{"b": 2, "a": 1}), "ordered")
	require.Less(t, strings.Index(buf.String(), `"a":1`), strings.Index(buf.String(), `"b":2`))
}
