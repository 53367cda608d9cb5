package store

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

const timestampLayout = "2006-01-02T15:04:05.000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

func parseTime(s string) time.Time {
	if t, err := time.Parse(timestampLayout, s); err == nil {
		return t
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t
	}
	if t, err := time.Parse("2006-01-02 15:04:05", s); err == nil {
		return t
	}
	return time.Time{}
}

// fieldSet is a decoded JSON object. Lookups accept a column's snake_case
// name and its camelCase alias; the camelCase spelling wins when a payload
// carries both.
type fieldSet map[string]json.RawMessage

func decodeFields(data []byte) (fieldSet, error) {
	var f fieldSet
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, validationError("payload must be a JSON object: %v", err)
	}
	return f, nil
}

func (f fieldSet) lookup(column string) (json.RawMessage, bool) {
	if camel := camelCase(column); camel != column {
		if raw, ok := f[camel]; ok {
			return raw, true
		}
	}
	raw, ok := f[column]
	return raw, ok
}

// present treats an explicit JSON null as absent.
func (f fieldSet) present(column string) (json.RawMessage, bool) {
	raw, ok := f.lookup(column)
	if !ok || isNull(raw) {
		return nil, false
	}
	return raw, true
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

func (f fieldSet) str(column string, dst **string) error {
	raw, ok := f.present(column)
	if !ok {
		return nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		var n json.Number
		if nerr := json.Unmarshal(raw, &n); nerr != nil {
			return validationError("%s must be a string", column)
		}
		s = n.String()
	}
	*dst = &s
	return nil
}

// nullableStr distinguishes "absent" (dst untouched) from an explicit null,
// which clears the column.
func (f fieldSet) nullableStr(column string, dst **NullableString) error {
	raw, ok := f.lookup(column)
	if !ok {
		return nil
	}
	if isNull(raw) {
		*dst = &NullableString{}
		return nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return validationError("%s must be a string or null", column)
	}
	*dst = &NullableString{Value: s, Valid: true}
	return nil
}

func (f fieldSet) boolean(column string, dst **bool) error {
	raw, ok := f.present(column)
	if !ok {
		return nil
	}
	b, err := parseBool(raw)
	if err != nil {
		return validationError("%s must be a boolean", column)
	}
	*dst = &b
	return nil
}

func (f fieldSet) integer(column string, dst **int64) error {
	raw, ok := f.present(column)
	if !ok {
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		var s string
		if serr := json.Unmarshal(raw, &s); serr != nil {
			return validationError("%s must be a number", column)
		}
		n = json.Number(s)
	}
	v, err := n.Int64()
	if err != nil {
		return validationError("%s must be an integer", column)
	}
	*dst = &v
	return nil
}

func (f fieldSet) stringList(column string, dst **[]string) error {
	raw, ok := f.present(column)
	if !ok {
		return nil
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err != nil {
		var s string
		if serr := json.Unmarshal(raw, &s); serr != nil {
			return validationError("%s must be a list of strings", column)
		}
		list = parseTagText(s)
	}
	list = cleanTags(list)
	*dst = &list
	return nil
}

func parseBool(raw json.RawMessage) (bool, error) {
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return b, nil
	}
	var n float64
	if err := json.Unmarshal(raw, &n); err == nil {
		return n != 0, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return false, err
	}
	return strconv.ParseBool(strings.TrimSpace(s))
}

// parseTagText accepts either JSON array text or a comma separated list.
func parseTagText(s string) []string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "[") {
		var list []string
		if err := json.Unmarshal([]byte(s), &list); err == nil {
			return list
		}
	}
	return strings.Split(s, ",")
}

func cleanTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// decodeTags turns the stored column into a list. NULL, empty and malformed
// text all yield an empty, non-nil slice.
func decodeTags(col sql.NullString) []string {
	if !col.Valid || strings.TrimSpace(col.String) == "" {
		return []string{}
	}
	var tags []string
	if err := json.Unmarshal([]byte(col.String), &tags); err != nil || tags == nil {
		return []string{}
	}
	return tags
}

func encodeTags(tags []string) string {
	if tags == nil {
		tags = []string{}
	}
	b, _ := json.Marshal(tags)
	return string(b)
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func camelCase(column string) string {
	parts := strings.Split(column, "_")
	for i := 1; i < len(parts); i++ {
		if parts[i] != "" {
			parts[i] = strings.ToUpper(parts[i][:1]) + parts[i][1:]
		}
	}
	return strings.Join(parts, "")
}

// NullableString is a patch value for a nullable column. Valid=false sets
// the column to NULL.
type NullableString struct {
	Value string
	Valid bool
}

func (n NullableString) arg() any {
	if !n.Valid {
		return nil
	}
	return n.Value
}

// assignment is one column = value pair of an INSERT or UPDATE.
type assignment struct {
	column string
	value  any
}

type assignments []assignment

func (a *assignments) add(column string, value any) {
	*a = append(*a, assignment{column: column, value: value})
}

func (a assignments) has(column string) bool {
	for _, x := range a {
		if x.column == column {
			return true
		}
	}
	return false
}

// insertSQL builds an INSERT for the given assignments. verb is "INSERT" or
// "INSERT OR IGNORE".
func insertSQL(verb, table string, sets assignments) (string, []any) {
	cols := make([]string, len(sets))
	marks := make([]string, len(sets))
	args := make([]any, len(sets))
	for i, s := range sets {
		cols[i] = s.column
		marks[i] = "?"
		args[i] = s.value
	}
	return verb + " INTO " + table + " (" + strings.Join(cols, ", ") + ") VALUES (" + strings.Join(marks, ", ") + ")", args
}

// updateSQL builds an UPDATE touching only the given columns plus
// updated_at, which is always re-stamped.
func updateSQL(table, keyColumn string, key any, sets assignments, now string) (string, []any) {
	clauses := make([]string, 0, len(sets)+1)
	args := make([]any, 0, len(sets)+2)
	for _, s := range sets {
		clauses = append(clauses, s.column+" = ?")
		args = append(args, s.value)
	}
	clauses = append(clauses, "updated_at = ?")
	args = append(args, now, key)
	return "UPDATE " + table + " SET " + strings.Join(clauses, ", ") + " WHERE " + keyColumn + " = ?", args
}

// likePattern builds a case-insensitive substring pattern for LIKE ... ESCAPE '\'.
func likePattern(q string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + strings.ToLower(r.Replace(q)) + "%"
}

type rowScanner interface {
	Scan(dest ...any) error
}

func nullString(s sql.NullString) string {
	if s.Valid {
		return s.String
	}
	return ""
}
