package telemetry

import (
	"context"

	"github.com/pulseapm/alert-engine/pkg/query"
)

// Executor runs abstract telemetry queries. The orchestrator depends on this
// contract only; rendering and transport live behind it.
type Executor interface {
	GetMetricDistribution(ctx context.Context, req *query.Request) (*query.Result, error)
}

// StoreClient is the low-level store access used by the repository layer.
// Kept as an interface so tests can mock the store.
type StoreClient interface {
	ExecuteQuery(ctx context.Context, sql string) ([]map[string]interface{}, error)
	InsertIntoStream(ctx context.Context, streamName string, columns []string, values []interface{}) error
	ExecuteDDL(ctx context.Context, sql string) error
	StreamExists(ctx context.Context, name string) (bool, error)
}

// Ensure Client implements both contracts
var (
	_ Executor    = (*Client)(nil)
	_ StoreClient = (*Client)(nil)
)
