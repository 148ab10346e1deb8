package backend

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
)

const singleObject = "application/vnd.pgrst.object+json"

// Query is a request against one table under /rest/v1, built fluently:
//
//	c.From("tasks").Select("*").Eq("project_id", id).Order("created_at", false).Execute(ctx, &tasks)
type Query struct {
	client *Client
	table  string
	token  string
	method string
	filter url.Values
	body   interface{}
	single bool
}

// From starts a query on table
func (c *Client) From(table string) *Query {
	return &Query{
		client: c,
		table:  table,
		method: http.MethodGet,
		filter: url.Values{},
	}
}

// Auth sets the bearer token for the request
func (q *Query) Auth(token string) *Query {
	q.token = token
	return q
}

// Select chooses the columns to return
func (q *Query) Select(columns string) *Query {
	q.filter.Set("select", columns)
	return q
}

// Eq adds a column=eq.value filter
func (q *Query) Eq(column, value string) *Query {
	q.filter.Add(column, "eq."+value)
	return q
}

// Order sorts by column
func (q *Query) Order(column string, ascending bool) *Query {
	dir := "desc"
	if ascending {
		dir = "asc"
	}
	q.filter.Set("order", column+"."+dir)
	return q
}

// Single expects exactly one row and decodes it as an object
func (q *Query) Single() *Query {
	q.single = true
	return q
}

// Insert turns the query into an insert of one row. The inserted row is
// returned as an object
func (q *Query) Insert(row interface{}) *Query {
	q.method = http.MethodPost
	q.body = row
	q.single = true
	return q
}

// Update turns the query into a patch of every row matching the filters
func (q *Query) Update(patch interface{}) *Query {
	q.method = http.MethodPatch
	q.body = patch
	return q
}

// Delete turns the query into a delete of every row matching the filters
func (q *Query) Delete() *Query {
	q.method = http.MethodDelete
	return q
}

func (q *Query) op() string {
	switch q.method {
	case http.MethodPost:
		return "insert"
	case http.MethodPatch:
		return "update"
	case http.MethodDelete:
		return "delete"
	}
	return "select"
}

// Execute runs the query and decodes the result into dest (may be nil).
// Updates and deletes that touch no row return ErrNotFound
func (q *Query) Execute(ctx context.Context, dest interface{}) error {
	header := http.Header{}
	if q.single {
		header.Set("Accept", singleObject)
	}
	if q.method != http.MethodGet {
		header.Set("Prefer", "return=representation")
	}

	resp, err := q.client.do(ctx, request{
		op:     q.op(),
		method: q.method,
		path:   "/rest/v1/" + q.table,
		query:  q.filter,
		header: header,
		token:  q.token,
		body:   q.body,
		table:  q.table,
	})
	if err != nil {
		return fmt.Errorf("%s %s: %w", q.op(), q.table, err)
	}

	if q.method == http.MethodPatch || q.method == http.MethodDelete {
		var rows []map[string]interface{}
		if err := decode(resp.body, &rows); err != nil {
			return err
		}
		if len(rows) == 0 {
			return fmt.Errorf("%s %s: %w", q.op(), q.table, ErrNotFound)
		}
	}

	return decode(resp.body, dest)
}
