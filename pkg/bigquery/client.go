// Package bigquery connects to the analytics dataset that holds the
// reconciliation fact table.
package bigquery

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/googleapi"

	"github.com/gikundiro/fanpay-backend/pkg/config"
	"github.com/gikundiro/fanpay-backend/pkg/logger"
)

const lookupTimeout = 10 * time.Second

var errNotConnected = errors.New("bigquery client not initialized")

// Client is a dataset handle plus the names of the tables this service
// writes. Construction fails when any of them is missing.
type Client struct {
	api     *bigquery.Client
	dataset *bigquery.Dataset
	tables  Tables
}

// Tables names the tables inside the dataset.
type Tables struct {
	Reconciliation string
}

func (t Tables) names() []string {
	var out []string
	if name := strings.TrimSpace(t.Reconciliation); name != "" {
		out = append(out, name)
	}
	return out
}

func tablesFrom(cfg config.BigQueryConfig) Tables {
	return Tables{Reconciliation: strings.TrimSpace(cfg.ReconciliationTable)}
}

func NewClient(ctx context.Context, gcp config.GCPConfig, cfg config.BigQueryConfig, logg *logger.Logger) (*Client, error) {
	project := strings.TrimSpace(gcp.ProjectID)
	dataset := strings.TrimSpace(cfg.Dataset)
	tables := tablesFrom(cfg)
	switch {
	case project == "":
		return nil, errors.New("gcp project id is required")
	case dataset == "":
		return nil, errors.New("bigquery dataset is required")
	case len(tables.names()) == 0:
		return nil, errors.New("no bigquery tables configured")
	}

	api, err := bigquery.NewClient(ctx, project, gcp.ClientOptions()...)
	if err != nil {
		return nil, fmt.Errorf("connect bigquery: %w", err)
	}
	c := &Client{api: api, dataset: api.Dataset(dataset), tables: tables}
	if err := c.Ping(ctx); err != nil {
		_ = api.Close()
		return nil, err
	}
	if logg != nil {
		logg.Info(logg.WithFields(ctx, map[string]any{"project": project, "dataset": dataset}), "bigquery connected")
	}
	return c, nil
}

// Ping checks that the dataset and every configured table exist.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.dataset == nil {
		return errNotConnected
	}
	ctx, cancel := context.WithTimeout(ctx, lookupTimeout)
	defer cancel()

	if _, err := c.dataset.Metadata(ctx); err != nil {
		return lookupError("dataset", c.dataset.DatasetID, err)
	}
	for _, name := range c.tables.names() {
		if _, err := c.dataset.Table(name).Metadata(ctx); err != nil {
			return lookupError("table", name, err)
		}
	}
	return nil
}

func lookupError(kind, name string, err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && apiErr.Code == http.StatusNotFound {
		return fmt.Errorf("bigquery %s %q does not exist", kind, name)
	}
	return fmt.Errorf("look up bigquery %s %q: %w", kind, name, err)
}

// Tables returns the configured table names.
func (c *Client) Tables() Tables {
	if c == nil {
		return Tables{}
	}
	return c.tables
}

// Put streams rows into table. Rows that implement bigquery.ValueSaver
// choose their own insert ids, which BigQuery uses to drop resends.
func (c *Client) Put(ctx context.Context, table string, rows []any) error {
	if c == nil || c.dataset == nil {
		return errNotConnected
	}
	table = strings.TrimSpace(table)
	if table == "" {
		return errors.New("bigquery table name is required")
	}
	if len(rows) == 0 {
		return nil
	}
	return c.dataset.Table(table).Inserter().Put(ctx, rows)
}

func (c *Client) Close() error {
	if c == nil || c.api == nil {
		return nil
	}
	return c.api.Close()
}
