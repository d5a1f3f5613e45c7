package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/dbglance/dbglance/pkg/dataview"
)

// parseFilters turns "column:op:value" expressions into filter values,
// e.g. "age:>=:30", "status:in:new,open,null", "price:between:10,20",
// "deleted_at:null". Values parse as numbers when they look like numbers,
// the literal "null" means SQL NULL.
func parseFilters(exprs []string) ([]dataview.Filter, error) {
	res := make([]dataview.Filter, 0, len(exprs))
	for _, expr := range exprs {
		f, err := parseFilter(expr)
		if err != nil {
			return nil, err
		}
		res = append(res, f)
	}
	return res, nil
}

func parseFilter(expr string) (dataview.Filter, error) {
	parts := strings.SplitN(expr, ":", 3)
	if len(parts) < 2 {
		return nil, fmt.Errorf("bad filter %q, want column:op[:value]", expr)
	}
	col, op := parts[0], strings.ToLower(parts[1])
	value := ""
	if len(parts) == 3 {
		value = parts[2]
	}

	switch op {
	case "null":
		return dataview.IsNull{Column: col}, nil
	case "notnull":
		return dataview.NotNull{Column: col}, nil
	case "=", "eq":
		return dataview.Equals{Column: col, Value: parseValue(value)}, nil
	case "in":
		var vals []any
		for _, v := range strings.Split(value, ",") {
			vals = append(vals, parseValue(strings.TrimSpace(v)))
		}
		return dataview.In{Column: col, Values: vals}, nil
	case ">", ">=", "<", "<=":
		n, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return nil, fmt.Errorf("filter %q needs a numeric value: %w", expr, err)
		}
		return dataview.Compare{Column: col, Op: dataview.CompareOp(op), Value: n}, nil
	case "between":
		bounds := strings.SplitN(value, ",", 2)
		if len(bounds) != 2 {
			return nil, fmt.Errorf("filter %q needs two bounds like 10,20", expr)
		}
		start, err := strconv.ParseFloat(strings.TrimSpace(bounds[0]), 64)
		if err != nil {
			return nil, fmt.Errorf("filter %q has a bad start bound: %w", expr, err)
		}
		end, err := strconv.ParseFloat(strings.TrimSpace(bounds[1]), 64)
		if err != nil {
			return nil, fmt.Errorf("filter %q has a bad end bound: %w", expr, err)
		}
		return dataview.Between{Column: col, Start: &start, End: &end}, nil
	}
	return nil, fmt.Errorf("unknown filter operator %q in %q", op, expr)
}

// parseValue guesses the type of a literal: "null" is NULL, integers and floats
// bind as numbers, everything else stays a string.
func parseValue(s string) any {
	if strings.EqualFold(s, "null") {
		return nil
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return s
}

// parseAssignments turns "col=value" pairs into a value map for insert/update.
func parseAssignments(pairs []string) (map[string]any, error) {
	res := map[string]any{}
	for _, p := range pairs {
		col, value, found := strings.Cut(p, "=")
		if !found || col == "" {
			return nil, fmt.Errorf("bad assignment %q, want col=value", p)
		}
		res[col] = parseValue(value)
	}
	return res, nil
}
