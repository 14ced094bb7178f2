package provider

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/rs/zerolog"
)

const redacted = "[REDACTED]"

// Credentials are decrypted connection secrets handed to a Factory. The
// values are reachable only through Get and Lookup; every formatting path
// (fmt verbs, JSON, zerolog) prints the reference and key names only.
type Credentials struct {
	ref    string
	values map[string]string
}

// NewCredentials wraps values under the connection reference ref.
func NewCredentials(ref string, values map[string]string) Credentials {
	cp := make(map[string]string, len(values))
	for k, v := range values {
		cp[k] = v
	}
	return Credentials{ref: ref, values: cp}
}

// Ref returns the connection reference the credentials were resolved from.
func (c Credentials) Ref() string { return c.ref }

// IsZero reports whether no credentials were supplied.
func (c Credentials) IsZero() bool { return c.ref == "" && len(c.values) == 0 }

// Get returns the value for key, or "".
func (c Credentials) Get(key string) string { return c.values[key] }

// Lookup returns the value for key and whether it was present.
func (c Credentials) Lookup(key string) (string, bool) {
	v, ok := c.values[key]
	return v, ok
}

// Keys returns the sorted key names.
func (c Credentials) Keys() []string {
	keys := make([]string, 0, len(c.values))
	for k := range c.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// String implements fmt.Stringer without exposing values.
func (c Credentials) String() string {
	return fmt.Sprintf("credentials{ref=%q keys=%v values=%s}", c.ref, c.Keys(), redacted)
}

// GoString covers the %#v verb.
func (c Credentials) GoString() string { return c.String() }

// MarshalJSON implements json.Marshaler without exposing values.
func (c Credentials) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Ref  string   `json:"ref"`
		Keys []string `json:"keys"`
	}{Ref: c.ref, Keys: c.Keys()})
}

// MarshalZerologObject implements zerolog.LogObjectMarshaler.
func (c Credentials) MarshalZerologObject(e *zerolog.Event) {
	e.Str("ref", c.ref).Strs("keys", c.Keys()).Str("values", redacted)
}
