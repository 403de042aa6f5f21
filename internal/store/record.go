package store

import (
	"encoding/json"
	"strconv"
	"time"
)

// Record is a typed view over the string fields of a hash record. Empty
// strings mean absent; getters return the zero value for absent or
// malformed fields.
type Record map[string]string

// String returns the raw field value
func (r Record) String(field string) string {
	return r[field]
}

// Int parses an integer field
func (r Record) Int(field string) int {
	n, err := strconv.Atoi(r[field])
	if err != nil {
		return 0
	}
	return n
}

// Int64 parses a 64-bit integer field
func (r Record) Int64(field string) int64 {
	n, err := strconv.ParseInt(r[field], 10, 64)
	if err != nil {
		return 0
	}
	return n
}

// Bool parses a boolean field
func (r Record) Bool(field string) bool {
	b, err := strconv.ParseBool(r[field])
	return err == nil && b
}

// Time parses an RFC 3339 timestamp field, returning nil when absent
func (r Record) Time(field string) *time.Time {
	v := r[field]
	if v == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return nil
	}
	return &t
}

// Duration parses a duration field such as "30m"
func (r Record) Duration(field string) time.Duration {
	d, err := time.ParseDuration(r[field])
	if err != nil {
		return 0
	}
	return d
}

// Strings decodes a JSON encoded string list field
func (r Record) Strings(field string) []string {
	v := r[field]
	if v == "" {
		return nil
	}
	var out []string
	if err := json.Unmarshal([]byte(v), &out); err != nil {
		return nil
	}
	return out
}

// SetString sets a raw field value
func (r Record) SetString(field, value string) {
	r[field] = value
}

// SetInt sets an integer field
func (r Record) SetInt(field string, n int) {
	r[field] = strconv.Itoa(n)
}

// SetInt64 sets a 64-bit integer field
func (r Record) SetInt64(field string, n int64) {
	r[field] = strconv.FormatInt(n, 10)
}

// SetBool sets a boolean field
func (r Record) SetBool(field string, b bool) {
	r[field] = strconv.FormatBool(b)
}

// SetTime sets a timestamp field. A nil time clears the field.
func (r Record) SetTime(field string, t *time.Time) {
	if t == nil {
		r[field] = ""
		return
	}
	r[field] = t.UTC().Format(time.RFC3339Nano)
}

// SetDuration sets a duration field
func (r Record) SetDuration(field string, d time.Duration) {
	r[field] = d.String()
}

// SetStrings sets a JSON encoded string list field
func (r Record) SetStrings(field string, values []string) {
	if values == nil {
		values = []string{}
	}
	data, _ := json.Marshal(values)
	r[field] = string(data)
}
