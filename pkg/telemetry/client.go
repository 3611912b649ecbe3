// Package telemetry talks to the Timeplus store: it renders abstract query
// requests into the store's SQL dialect, executes them, and gives the
// repository layer raw stream access.
package telemetry

import (
	"context"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	proton "github.com/timeplus-io/proton-go-driver/v2"
	"github.com/timeplus-io/proton-go-driver/v2/lib/driver"

	"github.com/pulseapm/alert-engine/pkg/config"
	"github.com/pulseapm/alert-engine/pkg/models"
	"github.com/pulseapm/alert-engine/pkg/query"
)

// Client wraps the Proton driver connection
type Client struct {
	conn         driver.Conn
	workspace    string
	queryTimeout time.Duration
}

// NewClient connects to the telemetry store and verifies the connection
func NewClient(cfg *config.TimeplusConfig) (*Client, error) {
	logrus.Infof("Connecting to Timeplus at %s (workspace: %s)", cfg.Address, cfg.Workspace)

	address := cfg.Address
	address = strings.TrimPrefix(address, "http://")
	address = strings.TrimPrefix(address, "https://")

	host := address
	port := "8464" // default native port
	if strings.Contains(address, ":") {
		parts := strings.Split(address, ":")
		host = parts[0]
		port = parts[1]
	}
	connectionAddr := host + ":" + port

	opts := &proton.Options{
		Addr: []string{connectionAddr},
		Auth: proton.Auth{
			Database: cfg.Workspace,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		DialTimeout:     10 * time.Second,
		MaxOpenConns:    20,
		MaxIdleConns:    10,
		ConnMaxLifetime: time.Hour,
		Compression: &proton.Compression{
			Method: proton.CompressionLZ4,
		},
	}

	conn, err := proton.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open connection to Timeplus: %w", err)
	}

	// Test connection with retries
	var pingErr error
	for i := 0; i < 5; i++ {
		pingCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		pingErr = conn.Ping(pingCtx)
		cancel()
		if pingErr == nil {
			break
		}
		logrus.Warnf("Failed to ping Timeplus (attempt %d/5): %v", i+1, pingErr)
		time.Sleep(2 * time.Second)
	}
	if pingErr != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping Timeplus after multiple attempts: %w", pingErr)
	}

	timeout := time.Duration(cfg.QueryTimeout) * time.Second
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	logrus.Info("Successfully connected to Timeplus")
	return &Client{conn: conn, workspace: cfg.Workspace, queryTimeout: timeout}, nil
}

// Close closes the underlying connection
func (c *Client) Close() error {
	return c.conn.Close()
}

// GetMetricDistribution renders and executes one metric query. The query
// carries the executor-owned timeout; a timeout surfaces like any other
// query error and is not retried here, the next scheduled cycle self-corrects.
func (c *Client) GetMetricDistribution(ctx context.Context, req *query.Request) (*query.Result, error) {
	sql, err := RenderSQL(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrQueryExecution, err)
	}
	logrus.Debugf("Executing metric query: %s", sql)

	queryCtx, cancel := context.WithTimeout(ctx, c.queryTimeout)
	defer cancel()

	rows, err := c.conn.Query(queryCtx, sql)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrQueryExecution, err)
	}
	defer rows.Close()

	columnNames := rows.Columns()
	columnTypes := rows.ColumnTypes()

	result := &query.Result{Fields: columnNames}
	for rows.Next() {
		scanArgs := make([]interface{}, len(columnNames))
		for i, ct := range columnTypes {
			scanArgs[i] = reflect.New(ct.ScanType()).Interface()
		}
		if err := rows.Scan(scanArgs...); err != nil {
			return nil, fmt.Errorf("%w: failed to scan row: %v", models.ErrQueryExecution, err)
		}
		row := make([]string, len(columnNames))
		for i := range columnNames {
			row[i] = formatCell(reflect.ValueOf(scanArgs[i]).Elem().Interface())
		}
		result.Rows = append(result.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrQueryExecution, err)
	}

	logrus.Debugf("Metric query returned %d rows", len(result.Rows))
	return result, nil
}

// formatCell renders a scanned store value into the string form the
// evaluator parses
func formatCell(val interface{}) string {
	switch v := val.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32)
	case time.Time:
		return v.UTC().Format(time.RFC3339)
	case *float64:
		if v == nil {
			return ""
		}
		return strconv.FormatFloat(*v, 'f', -1, 64)
	default:
		return fmt.Sprintf("%v", v)
	}
}

// ExecuteQuery executes a query and returns the result rows as maps
func (c *Client) ExecuteQuery(ctx context.Context, sql string) ([]map[string]interface{}, error) {
	queryCtx, cancel := context.WithTimeout(ctx, c.queryTimeout)
	defer cancel()

	rows, err := c.conn.Query(queryCtx, sql)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer rows.Close()

	columnNames := rows.Columns()
	columnTypes := rows.ColumnTypes()

	result := make([]map[string]interface{}, 0)
	for rows.Next() {
		scanArgs := make([]interface{}, len(columnNames))
		for i, ct := range columnTypes {
			scanArgs[i] = reflect.New(ct.ScanType()).Interface()
		}
		if err := rows.Scan(scanArgs...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		rowMap := make(map[string]interface{})
		for i, name := range columnNames {
			rowMap[name] = reflect.ValueOf(scanArgs[i]).Elem().Interface()
		}
		result = append(result, rowMap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return result, nil
}

// InsertIntoStream inserts one row into a stream
func (c *Client) InsertIntoStream(ctx context.Context, streamName string, columns []string, values []interface{}) error {
	columnList := strings.Join(columns, ", ")

	formattedValues := make([]string, len(values))
	for i, val := range values {
		switch v := val.(type) {
		case nil:
			formattedValues[i] = "null"
		case string:
			formattedValues[i] = fmt.Sprintf("'%s'", strings.ReplaceAll(v, "'", "''"))
		case time.Time:
			formattedValues[i] = fmt.Sprintf("'%s'", v.UTC().Format("2006-01-02 15:04:05.000"))
		case bool:
			formattedValues[i] = fmt.Sprintf("%t", v)
		case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
			formattedValues[i] = fmt.Sprintf("%d", v)
		case float32, float64:
			formattedValues[i] = fmt.Sprintf("%f", v)
		default:
			formattedValues[i] = fmt.Sprintf("'%v'", v)
		}
	}

	sql := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		streamName, columnList, strings.Join(formattedValues, ", "))

	if err := c.conn.Exec(ctx, sql); err != nil {
		return fmt.Errorf("failed to insert into stream '%s': %w", streamName, err)
	}
	return nil
}

// ExecuteDDL executes a DDL statement like CREATE or DROP
func (c *Client) ExecuteDDL(ctx context.Context, sql string) error {
	if err := c.conn.Exec(ctx, sql); err != nil {
		return fmt.Errorf("failed to execute DDL query '%s': %w", sql, err)
	}
	return nil
}

// StreamExists checks if a stream exists
func (c *Client) StreamExists(ctx context.Context, name string) (bool, error) {
	escapedName := strings.ReplaceAll(name, "'", "''")
	sql := fmt.Sprintf("SHOW STREAMS LIKE '%s'", escapedName)
	rows, err := c.conn.Query(ctx, sql)
	if err != nil {
		return false, fmt.Errorf("failed to execute SHOW STREAMS: %w", err)
	}
	defer rows.Close()

	exists := rows.Next()
	if rows.Err() != nil {
		return false, fmt.Errorf("error checking rows from SHOW STREAMS: %w", rows.Err())
	}
	return exists, nil
}
