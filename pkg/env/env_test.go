package env

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGetAndFirst(t *testing.T) {
	t.Setenv("FANPAY_TEST_A", "  ")
	t.Setenv("FANPAY_TEST_B", " b ")

	require.Equal(t, "fallback", Get("FANPAY_TEST_A", "fallback"))
	require.Equal(t, "b", Get("FANPAY_TEST_B", "fallback"))
	require.Equal(t, "b", First("FANPAY_TEST_A", "FANPAY_TEST_B"))
	require.Empty(t, First("FANPAY_TEST_MISSING"))
}
