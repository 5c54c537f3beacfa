package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
)

func TestMetadataForKnownCodes(t *testing.T) {
	tests := []struct {
		code      Code
		status    int
		retryable bool
		detailsOK bool
		expose    bool
	}{
		{code: CodeValidation, status: http.StatusBadRequest, detailsOK: true, expose: true},
		{code: CodeUnauthorized, status: http.StatusUnauthorized, expose: true},
		{code: CodeForbidden, status: http.StatusForbidden, expose: true},
		{code: CodeNotFound, status: http.StatusNotFound, expose: true},
		{code: CodeStateConflict, status: http.StatusUnprocessableEntity, detailsOK: true, expose: true},
		{code: CodeMatchConflict, status: http.StatusConflict, detailsOK: true, expose: true},
		{code: CodeIdempotency, status: http.StatusConflict, detailsOK: true, expose: true},
		{code: CodeRateLimit, status: http.StatusTooManyRequests, expose: true},
		{code: CodeInternal, status: http.StatusInternalServerError, retryable: true},
		{code: CodeDependency, status: http.StatusServiceUnavailable, retryable: true, detailsOK: true},
	}

	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			m := MetadataFor(tt.code)
			require.Equal(t, tt.status, m.HTTPStatus)
			require.Equal(t, tt.retryable, m.Retryable)
			require.Equal(t, tt.detailsOK, m.DetailsAllowed)
			require.Equal(t, tt.expose, m.ExposeMessage)
			require.NotEmpty(t, m.PublicMessage)
		})
	}
}

func TestMetadataForUnknownCodeDefaultsToInternal(t *testing.T) {
	require.Equal(t, http.StatusInternalServerError, MetadataFor("SOMETHING_UNKNOWN").HTTPStatus)
}

func TestWrapKeepsCauseAndCode(t *testing.T) {
	cause := stdErrors.New("connection refused")
	wrapped := Wrap(CodeDependency, cause, "load sms")
	require.ErrorIs(t, wrapped, cause)
	require.Equal(t, CodeDependency, wrapped.Code())
	require.Equal(t, "DEPENDENCY_ERROR: load sms: connection refused", wrapped.Error())

	require.Equal(t, "NOT_FOUND: sms not found", New(CodeNotFound, "sms not found").Error())
	require.Nil(t, Wrap(CodeConflict, nil, "x").Unwrap())

	detailed := Newf(CodeValidation, "amount %d out of range", 0).WithDetails(map[string]any{"field": "amount"})
	require.Equal(t, "amount 0 out of range", detailed.Message())
	require.NotNil(t, detailed.Details())
}

func TestNilErrorIsInternal(t *testing.T) {
	var e *Error
	require.Equal(t, CodeInternal, e.Code())
	require.Empty(t, e.Error())
	require.Nil(t, e.WithDetails("x"))
}

func TestIsCodeAndAs(t *testing.T) {
	err := fmt.Errorf("settle: %w", New(CodeMatchConflict, "sms already matched"))
	require.True(t, IsCode(err, CodeMatchConflict))
	require.False(t, IsCode(err, CodeNotFound))
	require.False(t, IsCode(nil, CodeInternal))
	require.False(t, IsCode(Wrap(CodeDependency, New(CodeNotFound, "sms"), "load"), CodeNotFound))
	require.Nil(t, As(nil))
	require.Nil(t, As(stdErrors.New("plain")))
}

func TestRetryable(t *testing.T) {
	require.False(t, Retryable(nil))
	require.True(t, Retryable(stdErrors.New("socket closed")))
	require.True(t, Retryable(New(CodeDependency, "db down")))
	require.False(t, Retryable(New(CodeNotFound, "gone")))
}

func TestDumpExtractsPostgresFields(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "23505", ConstraintName: "sms_raw_dedup_key_key", TableName: "sms_raw", Message: "duplicate key"}
	err := Wrap(CodeConflict, fmt.Errorf("insert: %w", pgErr), "store sms")

	d := Dump(err)
	require.Equal(t, CodeConflict, d.Code)
	require.Len(t, d.Chain, 3)
	require.NotNil(t, d.Postgres)
	require.Equal(t, "23505", d.Postgres.Code)

	fields := d.Fields()
	require.Equal(t, "sms_raw_dedup_key_key", fields["pg_constraint"])
	require.Equal(t, CodeConflict, fields["error_code"])

	plain := Dump(stdErrors.New("boom"))
	require.Nil(t, plain.Postgres)
	require.NotContains(t, plain.Fields(), "pg_code")
	require.Equal(t, ErrorDump{}, Dump(nil))
}
