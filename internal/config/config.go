// Package config defines the canonical, serializable configuration model for
// the transfer application. It is intentionally small and explicit so that
// jobs can be loaded from disk (or posted over HTTP) and passed through the
// program without additional glue code.
//
// Design goals:
//
//  1. Stability: Changes to this package should be additive and backwards-
//     compatible whenever possible.
//  2. Clarity: Field names in Go mirror the JSON/YAML structure used in job
//     files under configs/jobs/.
//  3. Minimalism: Decoding is performed by encoding/json and yaml.v3, with a
//     light Options helper for typed access to free-form settings.
//
// Example (trimmed):
//
//	{
//	  "job":      "people_load",
//	  "database": { "host": "localhost", "port": 9000, "database": "default" },
//	  "source":   { "kind": "file", "path": "people.csv", "has_header": true },
//	  "target":   { "kind": "database", "table": "people" },
//	  "columns":  [ { "name": "id", "type": "UInt8" } ]
//	}
package config

import "encoding/json"

// Pipeline describes one full transfer job. It is the top-level object
// decoded from a job file.
type Pipeline struct {
	// Job labels logs and metrics for this run.
	Job string `json:"job" yaml:"job"`

	// Database holds the connection parameters for the analytical database.
	Database ConnParams `json:"database" yaml:"database"`

	// Source and Target describe the two ends of the transfer. Exactly one of
	// them must be a file and the other a database table.
	Source Endpoint `json:"source" yaml:"source"`
	Target Endpoint `json:"target" yaml:"target"`

	// Columns is the confirmed column set the data moves through. Required
	// in both directions: the loaded contract for file sources, the exported
	// projection for database sources.
	Columns []Column `json:"columns,omitempty" yaml:"columns,omitempty"`

	// InvalidPolicy selects what happens to cells that fail numeric coercion:
	// "sentinel" (default), "null", or "reject".
	InvalidPolicy string `json:"invalid_policy,omitempty" yaml:"invalid_policy,omitempty"`

	Runtime RuntimeConfig `json:"runtime" yaml:"runtime"`
}

// Column pairs a destination column name with its declared type tag.
type Column struct {
	Name string `json:"name" yaml:"name"`
	Type string `json:"type" yaml:"type"`
}

// ConnParams configures the database connection. Fields left empty here can
// be filled from the environment, see ApplyEnv.
type ConnParams struct {
	Host     string `json:"host" yaml:"host"`
	Port     int    `json:"port" yaml:"port"`
	Database string `json:"database" yaml:"database"`
	Username string `json:"username" yaml:"username"`

	// Password authenticates over the native protocol. AccessToken, when set,
	// wins and switches the connection to HTTP bearer auth. Prefer supplying
	// either via the environment rather than in job files.
	Password    string `json:"password,omitempty" yaml:"password,omitempty"`
	AccessToken string `json:"access_token,omitempty" yaml:"access_token,omitempty"`

	Secure bool `json:"secure,omitempty" yaml:"secure,omitempty"`
}

// Endpoint describes one side of a transfer. Kind selects which fields apply.
type Endpoint struct {
	// Kind is "file" or "database".
	Kind string `json:"kind" yaml:"kind"`

	// File endpoints. As a source, Path names the file to read; as a target,
	// Path names the directory exports are written into.
	Path      string `json:"path,omitempty" yaml:"path,omitempty"`
	Delimiter string `json:"delimiter,omitempty" yaml:"delimiter,omitempty"`
	HasHeader bool   `json:"has_header,omitempty" yaml:"has_header,omitempty"`

	// Database endpoints.
	Table string `json:"table,omitempty" yaml:"table,omitempty"`

	// Options is a free-form bag for endpoint-specific extras that do not
	// warrant first-class fields (e.g. "lazy_quotes", "trim_space").
	Options Options `json:"options,omitempty" yaml:"options,omitempty"`
}

// DelimiterRune returns the endpoint's delimiter as a rune, or def when the
// field is empty.
func (e Endpoint) DelimiterRune(def rune) rune {
	if e.Delimiter == "" {
		return def
	}
	return []rune(e.Delimiter)[0]
}

// RuntimeConfig controls batching and probing behavior.
type RuntimeConfig struct {
	// BatchSize caps how many rows accumulate before a flush. Zero means the
	// engine default.
	BatchSize int `json:"batch_size" yaml:"batch_size"`

	// SampleWindow caps how many rows type inference examines. Zero means the
	// probe default.
	SampleWindow int `json:"sample_window" yaml:"sample_window"`
}

// Options is a small helper to fetch typed values from arbitrary JSON/YAML
// maps without introducing third-party configuration libraries. It purposefully
// performs only minimal type coercion and returns provided defaults when a key
// is absent or of an unexpected type.
type Options map[string]any

// String returns the string value for key or def if key is missing or not a string.
func (o Options) String(key, def string) string {
	if v, ok := o[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return def
}

// Bool returns the bool value for key or def if key is missing or not a bool.
func (o Options) Bool(key string, def bool) bool {
	if v, ok := o[key]; ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return def
}

// Int returns the int value for key or def. JSON numbers are decoded as
// float64 by encoding/json, so this method accepts float64 and casts to int.
// If the value is neither float64 nor int, def is returned.
func (o Options) Int(key string, def int) int {
	if v, ok := o[key]; ok {
		switch n := v.(type) {
		case float64:
			return int(n)
		case int:
			return n
		}
	}
	return def
}

// Rune returns the first rune of a string value for key, or def if key is
// missing or empty. This is useful for single-character parser settings such as
// a delimiter.
func (o Options) Rune(key string, def rune) rune {
	if v, ok := o[key]; ok {
		if s, ok := v.(string); ok && len(s) > 0 {
			return []rune(s)[0]
		}
	}
	return def
}

// StringMap returns a map[string]string for key when the value is an object
// whose values are strings. Non-string values are ignored. Returns an empty map
// when the key is missing or the value is not an object.
func (o Options) StringMap(key string) map[string]string {
	res := map[string]string{}
	if v, ok := o[key]; ok {
		if m, ok := v.(map[string]any); ok {
			for k, vv := range m {
				if s, ok := vv.(string); ok {
					res[k] = s
				}
			}
		}
	}
	return res
}

// StringSlice returns a []string for key when the value is an array of strings
// (or an array of interface values containing strings). Returns nil when the
// key is missing or the value is not an array.
func (o Options) StringSlice(key string) []string {
	if v, ok := o[key]; ok {
		switch vv := v.(type) {
		case []any:
			out := make([]string, 0, len(vv))
			for _, x := range vv {
				if s, ok := x.(string); ok {
					out = append(out, s)
				}
			}
			return out
		case []string:
			return vv
		}
	}
	return nil
}

// Any returns the raw value for key (which may itself be a nested
// map[string]any, []any, or primitive). This is useful for retrieving nested
// configuration blocks that will be unmarshaled into a typed struct by the
// caller.
func (o Options) Any(key string) any {
	if v, ok := o[key]; ok {
		return v
	}
	return nil
}

// UnmarshalJSON implements json.Unmarshaler so that a missing or null "options"
// object in JSON decodes to a non-nil, empty Options map. This simplifies call
// sites by removing the need to nil-check Options values.
func (o *Options) UnmarshalJSON(b []byte) error {
	var tmp map[string]any
	if len(b) == 0 || string(b) == "null" {
		*o = Options{}
		return nil
	}
	if err := json.Unmarshal(b, &tmp); err != nil {
		return err
	}
	*o = Options(tmp)
	return nil
}
