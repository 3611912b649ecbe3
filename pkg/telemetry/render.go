package telemetry

import (
	"fmt"
	"strings"
	"time"

	"github.com/pulseapm/alert-engine/pkg/query"
)

// Telemetry stream per data type
const (
	TracesStream     = "otel_traces"
	LogsStream       = "otel_logs"
	VitalsStream     = "app_vitals"
	ExceptionsStream = "otel_exceptions"
)

func streamFor(dt query.DataType) (string, error) {
	switch dt {
	case query.DataTypeTraces:
		return TracesStream, nil
	case query.DataTypeLogs:
		return LogsStream, nil
	case query.DataTypeMetrics:
		return VitalsStream, nil
	case query.DataTypeExceptions:
		return ExceptionsStream, nil
	}
	return "", fmt.Errorf("unknown data type %q", dt)
}

// RenderSQL renders an abstract query request into Timeplus SQL. Requests
// always run against the historical table() view of a stream, never the
// streaming head.
func RenderSQL(req *query.Request) (string, error) {
	if req == nil {
		return "", fmt.Errorf("nil query request")
	}
	stream, err := streamFor(req.DataType)
	if err != nil {
		return "", err
	}
	if len(req.Select) == 0 {
		return "", fmt.Errorf("query request has an empty select list")
	}

	selects := make([]string, 0, len(req.Select))
	for _, field := range req.Select {
		rendered, err := renderSelect(field)
		if err != nil {
			return "", err
		}
		selects = append(selects, rendered)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "SELECT %s FROM table(%s)", strings.Join(selects, ", "), stream)

	conditions, err := renderConditions(req)
	if err != nil {
		return "", err
	}
	sb.WriteString(" WHERE " + strings.Join(conditions, " AND "))

	if len(req.GroupBy) > 0 {
		sb.WriteString(" GROUP BY " + strings.Join(req.GroupBy, ", "))
	}
	if len(req.OrderBy) > 0 {
		orders := make([]string, 0, len(req.OrderBy))
		for _, o := range req.OrderBy {
			orders = append(orders, fmt.Sprintf("%s %s", o.Field, o.Direction))
		}
		sb.WriteString(" ORDER BY " + strings.Join(orders, ", "))
	}
	if req.Limit > 0 {
		fmt.Fprintf(&sb, " LIMIT %d", req.Limit)
	}

	return sb.String(), nil
}

func renderSelect(field query.SelectField) (string, error) {
	switch field.Function {
	case query.FuncColumn:
		if len(field.Params) != 1 {
			return "", fmt.Errorf("column select needs exactly one param")
		}
		return fmt.Sprintf("%s AS %s", field.Params[0], field.Alias), nil
	case query.FuncTimeBucket:
		if len(field.Params) != 1 {
			return "", fmt.Errorf("time_bucket select needs exactly one param")
		}
		return fmt.Sprintf("to_start_of_interval(_tp_time, INTERVAL %s MINUTE) AS %s", field.Params[0], field.Alias), nil
	case query.FuncAverage:
		if len(field.Params) != 1 {
			return "", fmt.Errorf("avg select needs exactly one param")
		}
		return fmt.Sprintf("avg(%s) AS %s", field.Params[0], field.Alias), nil
	case query.FuncQuantile:
		if len(field.Params) != 2 {
			return "", fmt.Errorf("quantile select needs column and level params")
		}
		return fmt.Sprintf("quantile(%s)(%s) AS %s", field.Params[1], field.Params[0], field.Alias), nil
	case query.FuncRate:
		if len(field.Params) != 1 {
			return "", fmt.Errorf("rate select needs exactly one predicate param")
		}
		return fmt.Sprintf("count_if(%s) / count() AS %s", field.Params[0], field.Alias), nil
	case query.FuncCount:
		return fmt.Sprintf("count() AS %s", field.Alias), nil
	default:
		return "", fmt.Errorf("unknown select function %q", field.Function)
	}
}

func renderConditions(req *query.Request) ([]string, error) {
	conditions := []string{
		fmt.Sprintf("_tp_time >= '%s'", sqlTimestamp(req.TimeRange.Start)),
		fmt.Sprintf("_tp_time < '%s'", sqlTimestamp(req.TimeRange.End)),
	}
	for _, f := range req.Filters {
		switch f.Operator {
		case query.FilterEQ:
			if len(f.Values) != 1 {
				return nil, fmt.Errorf("EQ filter on %q needs exactly one value", f.Field)
			}
			conditions = append(conditions, fmt.Sprintf("%s = '%s'", f.Field, escape(f.Values[0])))
		case query.FilterIN:
			quoted := make([]string, 0, len(f.Values))
			for _, v := range f.Values {
				quoted = append(quoted, fmt.Sprintf("'%s'", escape(v)))
			}
			conditions = append(conditions, fmt.Sprintf("%s IN (%s)", f.Field, strings.Join(quoted, ", ")))
		case query.FilterLIKE:
			if len(f.Values) != 1 {
				return nil, fmt.Errorf("LIKE filter on %q needs exactly one value", f.Field)
			}
			conditions = append(conditions, fmt.Sprintf("ilike(%s, '%s')", f.Field, escape(f.Values[0])))
		case query.FilterAdditional:
			if len(f.Values) != 1 {
				return nil, fmt.Errorf("ADDITIONAL filter needs exactly one predicate")
			}
			conditions = append(conditions, f.Values[0])
		default:
			return nil, fmt.Errorf("unknown filter operator %q", f.Operator)
		}
	}
	return conditions, nil
}

// sqlTimestamp converts an ISO-8601 timestamp into the store's literal format
func sqlTimestamp(iso string) string {
	t, err := time.Parse(time.RFC3339, iso)
	if err != nil {
		return iso
	}
	return t.UTC().Format("2006-01-02 15:04:05")
}

func escape(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}
