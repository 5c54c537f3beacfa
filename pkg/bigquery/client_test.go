package bigquery

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
	"google.golang.org/api/googleapi"

	"github.com/gikundiro/fanpay-backend/pkg/config"
)

func TestTablesFromConfig(t *testing.T) {
	tables := tablesFrom(config.BigQueryConfig{Dataset: "fanpay", ReconciliationTable: " reconciliation_events "})
	require.Equal(t, "reconciliation_events", tables.Reconciliation)
	require.Equal(t, []string{"reconciliation_events"}, tables.names())

	require.Empty(t, tablesFrom(config.BigQueryConfig{}).names())
}

func TestNewClientValidatesConfig(t *testing.T) {
	ctx := context.Background()
	_, err := NewClient(ctx, config.GCPConfig{}, config.BigQueryConfig{Dataset: "d", ReconciliationTable: "t"}, nil)
	require.ErrorContains(t, err, "project")

	_, err = NewClient(ctx, config.GCPConfig{ProjectID: "p"}, config.BigQueryConfig{ReconciliationTable: "t"}, nil)
	require.ErrorContains(t, err, "dataset")

	_, err = NewClient(ctx, config.GCPConfig{ProjectID: "p"}, config.BigQueryConfig{Dataset: "d"}, nil)
	require.ErrorContains(t, err, "tables")
}

func TestUnconnectedClient(t *testing.T) {
	var c *Client
	require.Empty(t, c.Tables().Reconciliation)
	require.ErrorIs(t, c.Put(context.Background(), "reconciliation_events", []any{1}), errNotConnected)
	require.ErrorIs(t, c.Ping(context.Background()), errNotConnected)
	require.NoError(t, c.Close())
}

func TestLookupError(t *testing.T) {
	err := lookupError("table", "reconciliation_events", &googleapi.Error{Code: http.StatusNotFound})
	require.EqualError(t, err, `bigquery table "reconciliation_events" does not exist`)

	cause := &googleapi.Error{Code: http.StatusForbidden}
	err = lookupError("dataset", "fanpay", cause)
	require.True(t, errors.Is(err, cause))
}
