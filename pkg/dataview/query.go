package dataview

import (
	"fmt"
	"strings"

	"github.com/go-pkgz/stringutils"
)

// SortDir is the browse sort direction. Empty means engine-default order.
type SortDir string

// sort directions
const (
	NoSort SortDir = ""
	Asc    SortDir = "asc"
	Desc   SortDir = "desc"
)

// BrowseRequest describes one table-browsing call.
type BrowseRequest struct {
	Table      string
	Page       int // 1-based, values below 1 read the first page
	PageSize   int
	Search     string // free-text, matched with LIKE across every column
	SortColumn string
	SortDir    SortDir
	Filters    []Filter
}

// QueryResult is the outcome of any read operation.
type QueryResult struct {
	Columns    []string
	Rows       [][]any
	RowCount   int
	TotalCount int64 // UnknownTotal when not computed or truncated
	Limit      int
	Offset     int
}

// browseQueries is the SQL pair for one browse call: the paginated select and the
// matching count. CountSQL is empty when the exact count is skipped.
type browseQueries struct {
	SelectSQL    string
	SelectParams []any
	CountSQL     string
	CountParams  []any
	Limit        int
	Offset       int
}

// composeBrowse builds the browse select and its parallel count query from cached
// schema, applying search, filters, sort and clamped pagination.
func composeBrowse(t TableSchema, req BrowseRequest, limits Limits) (browseQueries, error) {
	cols := t.ColumnNames()

	if req.SortColumn != "" && !stringutils.Contains(req.SortColumn, cols) {
		return browseQueries{}, &SchemaError{Table: t.Name, Column: req.SortColumn}
	}
	switch req.SortDir {
	case NoSort, Asc, Desc:
	default:
		return browseQueries{}, &ValidationError{Msg: fmt.Sprintf("unknown sort direction %q", req.SortDir)}
	}

	where, params, err := composeWhere(cols, req.Search, req.Filters)
	if err != nil {
		return browseQueries{}, err
	}

	// rowid is always projected first under a private alias; tables without one
	// get a NULL placeholder so the row shape stays stable
	proj := make([]string, 0, len(cols)+1)
	if t.HasRowID {
		proj = append(proj, "rowid AS "+Quote(rowIDColumn))
	} else {
		proj = append(proj, "NULL AS "+Quote(rowIDColumn))
	}
	for _, c := range cols {
		proj = append(proj, Quote(c))
	}

	var sb strings.Builder
	sb.WriteString("SELECT " + strings.Join(proj, ", ") + " FROM " + Quote(t.Name))
	if where != "" {
		sb.WriteString(" WHERE " + where)
	}
	if req.SortColumn != "" && req.SortDir != NoSort {
		sb.WriteString(fmt.Sprintf(" ORDER BY %s %s", Quote(req.SortColumn), strings.ToUpper(string(req.SortDir))))
	}

	page := req.Page
	if page < 1 {
		page = 1
	}
	limit := limits.PageSize(req.PageSize)
	offset := (page - 1) * limit
	sb.WriteString(" LIMIT ? OFFSET ?")
	selectParams := append(append([]any{}, params...), limit, offset)

	q := browseQueries{SelectSQL: sb.String(), SelectParams: selectParams, Limit: limit, Offset: offset}

	if !limits.SkipExactCount(req.PageSize) {
		countSQL := "SELECT COUNT(*) FROM " + Quote(t.Name)
		if where != "" {
			countSQL += " WHERE " + where
		}
		q.CountSQL = countSQL
		q.CountParams = params
	}
	return q, nil
}

// composeWhere assembles the WHERE body: free-text search OR'd across all columns,
// AND'd with each filter's fragment. Empty result means no WHERE clause.
func composeWhere(cols []string, search string, filters []Filter) (string, []any, error) {
	var parts []string
	var params []any

	if search != "" {
		likes := make([]string, len(cols))
		for i, c := range cols {
			likes[i] = Quote(c) + " LIKE ?"
			params = append(params, "%"+search+"%")
		}
		parts = append(parts, "("+strings.Join(likes, " OR ")+")")
	}

	for _, f := range squashFilters(filters) {
		frag, fparams, err := f.fragment()
		if err != nil {
			return "", nil, err
		}
		parts = append(parts, frag)
		params = append(params, fparams...)
	}

	return strings.Join(parts, " AND "), params, nil
}
