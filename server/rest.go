package server

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/existflow/promanage/internal/model"
)

const singleObject = "application/vnd.pgrst.object+json"

// query is a parsed filter/order/select request
type query struct {
	where   []string
	args    []interface{}
	order   string
	project []string
}

func (t *table) parseQuery(params url.Values) (query, *restError) {
	var q query

	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		for _, v := range params[key] {
			switch key {
			case "select":
				if v == "*" || v == "" {
					continue
				}
				for _, col := range strings.Split(v, ",") {
					col = strings.TrimSpace(col)
					if _, ok := t.cols[col]; !ok {
						return q, t.unknownColumn(col)
					}
					q.project = append(q.project, col)
				}
			case "order":
				parts := strings.Split(v, ".")
				if _, ok := t.cols[parts[0]]; !ok {
					return q, t.unknownColumn(parts[0])
				}
				dir := "ASC"
				if len(parts) > 1 && parts[1] == "desc" {
					dir = "DESC"
				}
				q.order = parts[0] + " " + dir
			default:
				if _, ok := t.cols[key]; !ok {
					return q, t.unknownColumn(key)
				}
				op, val, _ := strings.Cut(v, ".")
				switch {
				case op == "eq":
					q.where = append(q.where, key+" = ?")
					q.args = append(q.args, val)
				case op == "neq":
					q.where = append(q.where, key+" <> ?")
					q.args = append(q.args, val)
				case op == "is" && val == "null":
					q.where = append(q.where, key+" IS NULL")
				default:
					return q, newRestError(http.StatusBadRequest, "PGRST100", fmt.Sprintf(`failed to parse filter (%s)`, v))
				}
			}
		}
	}
	return q, nil
}

func (t *table) unknownColumn(col string) *restError {
	return newRestError(http.StatusBadRequest, "42703", fmt.Sprintf("column %s.%s does not exist", t.name, col))
}

// scope returns the WHERE clause with the row filter applied
func (t *table) scope(q query, userID string) (string, []interface{}) {
	where := append([]string{t.rowFilter}, q.where...)
	args := append([]interface{}{userID}, q.args...)
	return strings.Join(where, " AND "), args
}

func (t *table) selectRows(ctx context.Context, st store, where string, args []interface{}, order string) ([]map[string]interface{}, error) {
	sqlText := "SELECT " + strings.Join(t.columns, ", ") + " FROM " + t.name + " WHERE " + where
	if order != "" {
		sqlText += " ORDER BY " + order
	}

	rows, err := st.query(ctx, sqlText, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]map[string]interface{}, 0)
	for rows.Next() {
		vals := make([]sql.NullString, len(t.columns))
		ptrs := make([]interface{}, len(vals))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make(map[string]interface{}, len(t.columns))
		for i, col := range t.columns {
			if vals[i].Valid {
				row[col] = vals[i].String
			} else {
				row[col] = nil
			}
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func (t *table) selectByIDs(ctx context.Context, st store, ids []string) ([]map[string]interface{}, error) {
	if len(ids) == 0 {
		return []map[string]interface{}{}, nil
	}
	marks := strings.TrimSuffix(strings.Repeat("?, ", len(ids)), ", ")
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	rows, err := t.selectRows(ctx, st, "id IN ("+marks+")", args, "")
	if err != nil {
		return nil, err
	}

	byID := make(map[string]map[string]interface{}, len(rows))
	for _, r := range rows {
		byID[r["id"].(string)] = r
	}
	out := make([]map[string]interface{}, 0, len(ids))
	for _, id := range ids {
		if r, ok := byID[id]; ok {
			out = append(out, r)
		}
	}
	return out, nil
}

// value converts a JSON value for column name into its stored TEXT form
func (t *table) value(name string, v interface{}) (interface{}, *restError) {
	col := t.cols[name]
	if v == nil {
		if col.required {
			return nil, t.notNull(name)
		}
		return nil, nil
	}

	var s string
	switch x := v.(type) {
	case string:
		s = x
	case float64, bool:
		s = fmt.Sprint(x)
	default:
		return nil, newRestError(http.StatusBadRequest, "22P02", fmt.Sprintf("invalid input syntax for column %s", name))
	}

	switch col.kind {
	case kindEnum:
		for _, allowed := range col.values {
			if s == allowed {
				return s, nil
			}
		}
		return nil, newRestError(http.StatusBadRequest, "22P02", fmt.Sprintf(`invalid input value for enum %s: "%s"`, col.enum, s))
	case kindDate:
		raw := s
		if len(raw) > len(model.DateLayout) {
			raw = raw[:len(model.DateLayout)]
		}
		if _, err := time.Parse(model.DateLayout, raw); err != nil {
			return nil, newRestError(http.StatusBadRequest, "22007", fmt.Sprintf(`invalid input syntax for type date: "%s"`, s))
		}
		return raw, nil
	case kindTimestamp:
		ts, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return nil, newRestError(http.StatusBadRequest, "22007", fmt.Sprintf(`invalid input syntax for type timestamp with time zone: "%s"`, s))
		}
		return stamp(ts), nil
	}
	return s, nil
}

func (t *table) notNull(col string) *restError {
	return newRestError(http.StatusBadRequest, "23502",
		fmt.Sprintf(`null value in column "%s" of relation "%s" violates not-null constraint`, col, t.name))
}

func (t *table) missingColumn(col string) *restError {
	return newRestError(http.StatusBadRequest, "PGRST204",
		fmt.Sprintf("Could not find the '%s' column of '%s' in the schema cache", col, t.name))
}

// decodeBody reads a JSON object or an array of objects
func decodeBody(c echo.Context) ([]map[string]interface{}, *restError) {
	data, err := io.ReadAll(io.LimitReader(c.Request().Body, 1<<20))
	if err != nil {
		return nil, newRestError(http.StatusBadRequest, "PGRST102", "Empty or invalid json")
	}

	var raw interface{}
	if err := sonic.Unmarshal(data, &raw); err != nil {
		return nil, newRestError(http.StatusBadRequest, "PGRST102", "Empty or invalid json")
	}

	switch v := raw.(type) {
	case map[string]interface{}:
		return []map[string]interface{}{v}, nil
	case []interface{}:
		out := make([]map[string]interface{}, 0, len(v))
		for _, item := range v {
			m, ok := item.(map[string]interface{})
			if !ok {
				return nil, newRestError(http.StatusBadRequest, "PGRST102", "All object keys must match")
			}
			out = append(out, m)
		}
		return out, nil
	}
	return nil, newRestError(http.StatusBadRequest, "PGRST102", "Empty or invalid json")
}

func wantsRepresentation(c echo.Context) bool {
	return strings.Contains(c.Request().Header.Get("Prefer"), "return=representation")
}

func project(rows []map[string]interface{}, cols []string) []map[string]interface{} {
	if len(cols) == 0 {
		return rows
	}
	out := make([]map[string]interface{}, len(rows))
	for i, r := range rows {
		p := make(map[string]interface{}, len(cols))
		for _, col := range cols {
			p[col] = r[col]
		}
		out[i] = p
	}
	return out
}

// writeRows answers with an array, or a single object when the client asked for one
func writeRows(c echo.Context, status int, rows []map[string]interface{}) error {
	if c.Request().Header.Get(echo.HeaderAccept) == singleObject {
		if len(rows) != 1 {
			return writeRestError(c, newRestError(http.StatusNotAcceptable, "PGRST116",
				"JSON object requested, multiple (or no) rows returned").
				withDetails(fmt.Sprintf("The result contains %d rows", len(rows))))
		}
		return c.JSON(status, rows[0])
	}
	return c.JSON(status, rows)
}

func (s *Server) handleSelect(c echo.Context) error {
	t, rerr := lookupTable(c.Param("table"))
	if rerr != nil {
		return writeRestError(c, rerr)
	}
	q, rerr := t.parseQuery(c.QueryParams())
	if rerr != nil {
		return writeRestError(c, rerr)
	}

	where, args := t.scope(q, currentUserID(c))
	rows, err := t.selectRows(c.Request().Context(), s.store(), where, args, q.order)
	if err != nil {
		return writeRestError(c, err)
	}
	return writeRows(c, http.StatusOK, project(rows, q.project))
}

func (s *Server) handleInsert(c echo.Context) error {
	t, rerr := lookupTable(c.Param("table"))
	if rerr != nil {
		return writeRestError(c, rerr)
	}
	q, rerr := t.parseQuery(c.QueryParams())
	if rerr != nil {
		return writeRestError(c, rerr)
	}
	input, rerr := decodeBody(c)
	if rerr != nil {
		return writeRestError(c, rerr)
	}

	now := stamp(s.now())
	rows := make([]map[string]interface{}, 0, len(input))
	for _, in := range input {
		row := map[string]interface{}{"id": uuid.NewString(), "created_at": now}
		for name, v := range in {
			col, ok := t.cols[name]
			if !ok || !col.insert {
				return writeRestError(c, t.missingColumn(name))
			}
			val, rerr := t.value(name, v)
			if rerr != nil {
				return writeRestError(c, rerr)
			}
			row[name] = val
		}
		for _, name := range t.columns {
			col := t.cols[name]
			if _, ok := row[name]; ok {
				continue
			}
			if col.def != "" {
				row[name] = col.def
			} else if col.required {
				return writeRestError(c, t.notNull(name))
			}
		}
		rows = append(rows, row)
	}

	ctx := c.Request().Context()
	userID := currentUserID(c)
	ids := make([]string, len(rows))
	var out []map[string]interface{}
	err := s.inTx(ctx, func(st store) error {
		for i, row := range rows {
			ok, err := t.owns(ctx, st, userID, row)
			if err != nil {
				return err
			}
			if !ok {
				return newRestError(http.StatusForbidden, "42501",
					fmt.Sprintf(`new row violates row-level security policy for table "%s"`, t.name))
			}

			cols := make([]string, 0, len(row))
			args := make([]interface{}, 0, len(row))
			for _, name := range t.columns {
				if v, ok := row[name]; ok {
					cols = append(cols, name)
					args = append(args, v)
				}
			}
			marks := strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ")
			if _, err := st.exec(ctx, "INSERT INTO "+t.name+" ("+strings.Join(cols, ", ")+") VALUES ("+marks+")", args...); err != nil {
				return err
			}
			ids[i] = row["id"].(string)
		}
		var err error
		out, err = t.selectByIDs(ctx, st, ids)
		return err
	})
	if err != nil {
		return writeRestError(c, err)
	}

	if !wantsRepresentation(c) {
		return c.NoContent(http.StatusCreated)
	}
	return writeRows(c, http.StatusCreated, project(out, q.project))
}

func (s *Server) handleUpdate(c echo.Context) error {
	t, rerr := lookupTable(c.Param("table"))
	if rerr != nil {
		return writeRestError(c, rerr)
	}
	q, rerr := t.parseQuery(c.QueryParams())
	if rerr != nil {
		return writeRestError(c, rerr)
	}
	input, rerr := decodeBody(c)
	if rerr != nil {
		return writeRestError(c, rerr)
	}
	if len(input) != 1 {
		return writeRestError(c, newRestError(http.StatusBadRequest, "PGRST102", "Expected a single object"))
	}

	names := make([]string, 0, len(input[0]))
	for name := range input[0] {
		names = append(names, name)
	}
	sort.Strings(names)

	sets := make([]string, 0, len(names))
	setArgs := make([]interface{}, 0, len(names))
	for _, name := range names {
		col, ok := t.cols[name]
		if !ok || !col.update {
			return writeRestError(c, t.missingColumn(name))
		}
		val, rerr := t.value(name, input[0][name])
		if rerr != nil {
			return writeRestError(c, rerr)
		}
		sets = append(sets, name+" = ?")
		setArgs = append(setArgs, val)
	}

	ctx := c.Request().Context()
	where, args := t.scope(q, currentUserID(c))
	var out []map[string]interface{}
	err := s.inTx(ctx, func(st store) error {
		matched, err := t.selectRows(ctx, st, where, args, "")
		if err != nil {
			return err
		}
		ids := make([]string, len(matched))
		for i, r := range matched {
			ids[i] = r["id"].(string)
		}
		if len(ids) > 0 && len(sets) > 0 {
			marks := strings.TrimSuffix(strings.Repeat("?, ", len(ids)), ", ")
			updateArgs := append([]interface{}{}, setArgs...)
			for _, id := range ids {
				updateArgs = append(updateArgs, id)
			}
			if _, err := st.exec(ctx, "UPDATE "+t.name+" SET "+strings.Join(sets, ", ")+" WHERE id IN ("+marks+")", updateArgs...); err != nil {
				return err
			}
		}
		out, err = t.selectByIDs(ctx, st, ids)
		return err
	})
	if err != nil {
		return writeRestError(c, err)
	}

	if !wantsRepresentation(c) {
		return c.NoContent(http.StatusNoContent)
	}
	return writeRows(c, http.StatusOK, project(out, q.project))
}

func (s *Server) handleDelete(c echo.Context) error {
	t, rerr := lookupTable(c.Param("table"))
	if rerr != nil {
		return writeRestError(c, rerr)
	}
	q, rerr := t.parseQuery(c.QueryParams())
	if rerr != nil {
		return writeRestError(c, rerr)
	}
	if len(q.where) == 0 {
		return writeRestError(c, newRestError(http.StatusBadRequest, "21000", "DELETE requires a WHERE clause"))
	}

	ctx := c.Request().Context()
	where, args := t.scope(q, currentUserID(c))
	var out []map[string]interface{}
	err := s.inTx(ctx, func(st store) error {
		var err error
		out, err = t.selectRows(ctx, st, where, args, "")
		if err != nil || len(out) == 0 {
			return err
		}
		if _, err := st.exec(ctx, "DELETE FROM "+t.name+" WHERE "+where, args...); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return writeRestError(c, err)
	}

	if !wantsRepresentation(c) {
		return c.NoContent(http.StatusNoContent)
	}
	return writeRows(c, http.StatusOK, project(out, q.project))
}
