// Package ttlfield is the only sanctioned way to set or remove automatic
// deletion timestamp fields on cached documents. The cache reaper deletes any
// document whose deletion field has passed; a field that is present but empty
// parses as the zero time and would be purged immediately. Removing such a
// field therefore always uses an explicit field delete, never a null or empty
// assignment.
package ttlfield

import (
	"fmt"
	"time"
)

// Fields carrying an automatic deletion policy. Writes setting one of these
// to an empty value are rejected before they reach a store.
var registry = map[string]struct{}{
	"end_date":  {},
	"delete_at": {},
}

// IsTTLField reports whether field carries an automatic deletion policy.
func IsTTLField(field string) bool {
	_, ok := registry[field]
	return ok
}

// Update is a validated set of hash field operations for a single document.
// Fields in Set are written, fields in Del are explicitly removed.
type Update struct {
	Set map[string]string
	Del []string
}

func NewUpdate() *Update {
	return &Update{Set: make(map[string]string)}
}

// SetField stages a plain field write.
func (u *Update) SetField(field, value string) {
	u.Set[field] = value
}

// SetTime stages a timestamp write in RFC 3339 form.
func (u *Update) SetTime(field string, t time.Time) {
	u.Set[field] = t.UTC().Format(time.RFC3339)
}

// RemoveField stages an explicit field delete. This is the only valid way to
// clear a TTL-bearing field.
func (u *Update) RemoveField(field string) {
	delete(u.Set, field)
	u.Del = append(u.Del, field)
}

// Validate rejects any staged write that would persist a TTL-bearing field
// without a concrete timestamp.
func (u *Update) Validate() error {
	for field, value := range u.Set {
		if !IsTTLField(field) {
			continue
		}
		if value == "" {
			return fmt.Errorf("ttlfield: refusing to set %q to an empty value, remove the field instead", field)
		}
		if _, err := time.Parse(time.RFC3339, value); err != nil {
			return fmt.Errorf("ttlfield: %q must be a RFC 3339 timestamp: %w", field, err)
		}
	}
	return nil
}

// Args returns the staged writes as a flat field/value list for HSet.
func (u *Update) Args() []interface{} {
	args := make([]interface{}, 0, len(u.Set)*2)
	for field, value := range u.Set {
		args = append(args, field, value)
	}
	return args
}

// ParseDeletionTime parses a stored deletion timestamp. The zero time with
// ok=false means the value is unusable and must not be treated as "delete
// now" by a reaper.
func ParseDeletionTime(value string) (time.Time, bool) {
	if value == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
