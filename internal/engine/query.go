package engine

import (
	"fmt"
	"strconv"
	"strings"

	"mockcrm-backend/internal/metadata"
	"mockcrm-backend/internal/store"
)

const (
	defaultLimit = 50
	maxLimit     = 100
)

// ListParams holds the parsed query surface for a list request: pagination,
// an updated_since cursor and exact-match field filters.
type ListParams struct {
	Limit        int
	Offset       int
	UpdatedSince string
	Filters      map[string]any // schema field -> coerced value
	filterOrder  []string
}

// ParseListParams validates the raw query map against the schema. Unknown
// field names are rejected rather than silently ignored.
func ParseListParams(schema *metadata.Schema, query map[string]string) (*ListParams, error) {
	p := &ListParams{
		Limit:   defaultLimit,
		Filters: make(map[string]any),
	}
	var details []ErrorDetail

	for key, raw := range query {
		switch key {
		case "limit":
			n, err := strconv.Atoi(raw)
			if err != nil || n < 1 {
				details = append(details, ErrorDetail{
					Field: "limit", Rule: "range",
					Message: "limit must be a positive integer",
				})
				continue
			}
			if n > maxLimit {
				n = maxLimit
			}
			p.Limit = n
		case "offset":
			n, err := strconv.Atoi(raw)
			if err != nil || n < 0 {
				details = append(details, ErrorDetail{
					Field: "offset", Rule: "range",
					Message: "offset must be a non-negative integer",
				})
				continue
			}
			p.Offset = n
		case "updated_since":
			p.UpdatedSince = raw
		default:
			field := schema.GetField(key)
			if field == nil {
				details = append(details, ErrorDetail{
					Field: key, Rule: "unknown",
					Message: fmt.Sprintf("unknown filter field: %s", key),
				})
				continue
			}
			v, err := coerceFilterValue(field, raw)
			if err != nil {
				details = append(details, ErrorDetail{
					Field: key, Rule: "type",
					Message: err.Error(),
				})
				continue
			}
			p.Filters[key] = v
			p.filterOrder = append(p.filterOrder, key)
		}
	}

	if len(details) > 0 {
		return nil, ValidationError(details)
	}
	return p, nil
}

func coerceFilterValue(field *metadata.Field, raw string) (any, error) {
	switch field.Type {
	case "int":
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%s must be an integer", field.Name)
		}
		return n, nil
	case "decimal":
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("%s must be a number", field.Name)
		}
		return f, nil
	default:
		return raw, nil
	}
}

// BuildSelect renders the list query: filters ANDed together, newest first.
func (p *ListParams) BuildSelect(dialect store.Dialect, table string) (string, []any) {
	pb := dialect.NewParamBuilder()
	var sb strings.Builder
	sb.WriteString("SELECT * FROM " + table)
	p.writeWhere(&sb, pb)
	sb.WriteString(" ORDER BY created_at DESC")
	sb.WriteString(fmt.Sprintf(" LIMIT %s OFFSET %s", pb.Add(p.Limit), pb.Add(p.Offset)))
	return sb.String(), pb.Params()
}

// BuildCount renders the matching COUNT(*) query for pagination metadata.
func (p *ListParams) BuildCount(dialect store.Dialect, table string) (string, []any) {
	pb := dialect.NewParamBuilder()
	var sb strings.Builder
	sb.WriteString("SELECT COUNT(*) AS count FROM " + table)
	p.writeWhere(&sb, pb)
	return sb.String(), pb.Params()
}

func (p *ListParams) writeWhere(sb *strings.Builder, pb store.ParamBuilder) {
	var clauses []string
	for _, name := range p.filterOrder {
		clauses = append(clauses, fmt.Sprintf("%s = %s", name, pb.Add(p.Filters[name])))
	}
	if p.UpdatedSince != "" {
		clauses = append(clauses, fmt.Sprintf("updated_at > %s", pb.Add(p.UpdatedSince)))
	}
	if len(clauses) > 0 {
		sb.WriteString(" WHERE " + strings.Join(clauses, " AND "))
	}
}
