package repository

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"
)

// Statement is a parameterized SQL statement ready for the driver. Values are
// always bound, never concatenated into SQL text.
type Statement struct {
	SQL  string
	Args []any
}

var (
	// ErrEmptyRecordSet rejects insert calls with nothing to insert.
	ErrEmptyRecordSet = errors.New("statement: empty record set")
	// ErrEmptyUpdate rejects updates whose SET clause would be empty.
	ErrEmptyUpdate = errors.New("statement: no columns to update")
	// ErrColumnMismatch rejects batches whose records define different column sets.
	ErrColumnMismatch = errors.New("statement: record column set mismatch")
)

// BuildInsert produces one multi-row INSERT for the batch. The column list is
// derived from the defined keys of the first record; every later record must
// define exactly the same columns.
func BuildInsert(table string, records []Record) (Statement, error) {
	if len(records) == 0 {
		return Statement{}, ErrEmptyRecordSet
	}

	cols := records[0].Columns()
	if len(cols) == 0 {
		return Statement{}, ErrEmptyRecordSet
	}

	var (
		args   = make([]any, 0, len(records)*len(cols))
		values = make([]string, 0, len(records))
		n      = 1
	)
	for i, rec := range records {
		if len(rec) != len(cols) {
			return Statement{}, fmt.Errorf("%w: record %d defines %d columns, want %d", ErrColumnMismatch, i, len(rec), len(cols))
		}
		holders := make([]string, len(cols))
		for j, col := range cols {
			v, ok := rec[col]
			if !ok {
				return Statement{}, fmt.Errorf("%w: record %d is missing column %q", ErrColumnMismatch, i, col)
			}
			coerced, err := coerceValue(v)
			if err != nil {
				return Statement{}, err
			}
			args = append(args, coerced)
			holders[j] = placeholder(n)
			n++
		}
		values = append(values, "("+strings.Join(holders, ", ")+")")
	}

	sql := fmt.Sprintf("INSERT INTO %s (%s) VALUES %s", table, strings.Join(cols, ", "), strings.Join(values, ", "))
	return Statement{SQL: sql, Args: args}, nil
}

// BuildUpdate produces an UPDATE ... WHERE id statement from every defined
// non-identifier column. Nothing to update is a caller error, not a no-op.
func BuildUpdate(table, idColumn string, rec Record, id any) (Statement, error) {
	var (
		sets []string
		args []any
		n    = 1
	)
	for _, col := range rec.Columns() {
		if col == idColumn {
			continue
		}
		coerced, err := coerceValue(rec[col])
		if err != nil {
			return Statement{}, err
		}
		sets = append(sets, col+" = "+placeholder(n))
		args = append(args, coerced)
		n++
	}
	if len(sets) == 0 {
		return Statement{}, ErrEmptyUpdate
	}

	args = append(args, id)
	sql := fmt.Sprintf("UPDATE %s SET %s WHERE %s = %s", table, strings.Join(sets, ", "), idColumn, placeholder(n))
	return Statement{SQL: sql, Args: args}, nil
}

// BuildUpsert produces an INSERT ... ON CONFLICT on the identifier that
// overwrites every non-identifier column with the incoming value.
func BuildUpsert(table, idColumn string, rec Record) (Statement, error) {
	if _, ok := rec[idColumn]; !ok {
		return Statement{}, fmt.Errorf("%w: upsert record is missing column %q", ErrColumnMismatch, idColumn)
	}

	cols := rec.Columns()
	var (
		holders = make([]string, len(cols))
		args    = make([]any, 0, len(cols))
		updates []string
	)
	for i, col := range cols {
		coerced, err := coerceValue(rec[col])
		if err != nil {
			return Statement{}, err
		}
		args = append(args, coerced)
		holders[i] = placeholder(i + 1)
		if col != idColumn {
			updates = append(updates, col+" = EXCLUDED."+col)
		}
	}
	if len(updates) == 0 {
		return Statement{}, ErrEmptyUpdate
	}

	sql := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (%s) DO UPDATE SET %s",
		table, strings.Join(cols, ", "), strings.Join(holders, ", "), idColumn, strings.Join(updates, ", "))
	return Statement{SQL: sql, Args: args}, nil
}

// BuildSelect produces a SELECT * honoring where, order, and bound options.
func BuildSelect(table string, opts ...SelectOption) Statement {
	q := applySelectOptions(opts)

	var b strings.Builder
	b.WriteString("SELECT * FROM ")
	b.WriteString(table)

	args := appendWhere(&b, q, 1)
	if q.orderBy != "" {
		b.WriteString(" ORDER BY ")
		b.WriteString(q.orderBy)
		b.WriteString(" ")
		b.WriteString(string(q.orderDir.normalize()))
	}
	if q.hasLimit {
		b.WriteString(" LIMIT ")
		b.WriteString(placeholder(len(args) + 1))
		b.WriteString(" OFFSET ")
		b.WriteString(placeholder(len(args) + 2))
		args = append(args, q.limit, q.offset)
	}
	return Statement{SQL: b.String(), Args: args}
}

// BuildSelectByID produces the single-row lookup for one identifier.
func BuildSelectByID(table, idColumn string, id any) Statement {
	return Statement{
		SQL:  fmt.Sprintf("SELECT * FROM %s WHERE %s = $1 LIMIT 1", table, idColumn),
		Args: []any{id},
	}
}

// BuildCount produces a COUNT(*) honoring the same filter options as
// BuildSelect so paginated reads count against the identical predicate.
func BuildCount(table string, opts ...SelectOption) Statement {
	q := applySelectOptions(opts)

	var b strings.Builder
	b.WriteString("SELECT COUNT(*) FROM ")
	b.WriteString(table)
	args := appendWhere(&b, q, 1)
	return Statement{SQL: b.String(), Args: args}
}

// BuildExists produces an existence probe for one identifier.
func BuildExists(table, idColumn string, id any) Statement {
	return Statement{
		SQL:  fmt.Sprintf("SELECT EXISTS (SELECT 1 FROM %s WHERE %s = $1)", table, idColumn),
		Args: []any{id},
	}
}

// BuildDelete produces a DELETE for one identifier.
func BuildDelete(table, idColumn string, id any) Statement {
	return Statement{
		SQL:  fmt.Sprintf("DELETE FROM %s WHERE %s = $1", table, idColumn),
		Args: []any{id},
	}
}

func appendWhere(b *strings.Builder, q selectQuery, start int) []any {
	if q.where == "" {
		return nil
	}
	b.WriteString(" WHERE ")
	b.WriteString(renumberPlaceholders(q.where, start))
	return append([]any(nil), q.whereArgs...)
}

// renumberPlaceholders rewrites ? placeholders in a filter fragment into the
// statement's positional $n parameters.
func renumberPlaceholders(fragment string, start int) string {
	var b strings.Builder
	b.Grow(len(fragment) + 4)
	n := start
	for _, r := range fragment {
		if r == '?' {
			b.WriteString(placeholder(n))
			n++
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func placeholder(n int) string {
	return "$" + strconv.Itoa(n)
}

// coerceValue normalizes a record value for binding: nil stays NULL, times
// and byte slices pass through, structured values become JSON text, scalars
// bind directly.
func coerceValue(v any) (any, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case time.Time, *time.Time:
		return t, nil
	case []byte:
		return t, nil
	case json.RawMessage:
		return string(t), nil
	}

	switch reflect.TypeOf(v).Kind() {
	case reflect.Map, reflect.Slice, reflect.Array, reflect.Struct:
		encoded, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("statement: encode value: %w", err)
		}
		return string(encoded), nil
	case reflect.Ptr:
		rv := reflect.ValueOf(v)
		if rv.IsNil() {
			return nil, nil
		}
		return coerceValue(rv.Elem().Interface())
	}
	return v, nil
}
