package db

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
)

func TestIsUniqueViolation(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "23505", ConstraintName: "sms_raw_dedup_key_key"}
	wrapped := fmt.Errorf("insert sms: %w", pgErr)

	require.True(t, IsUniqueViolation(wrapped, ""))
	require.True(t, IsUniqueViolation(wrapped, "sms_raw_dedup_key_key"))
	require.False(t, IsUniqueViolation(wrapped, "payments_sms_parsed_id_key"))

	sqliteErr := errors.New("UNIQUE constraint failed: sms_manual_resolutions.sms_id")
	require.True(t, IsUniqueViolation(sqliteErr, ""))
	require.True(t, IsUniqueViolation(sqliteErr, "sms_manual_resolutions.sms_id"))

	require.False(t, IsUniqueViolation(errors.New("connection reset"), ""))
	require.False(t, IsUniqueViolation(nil, ""))
}
