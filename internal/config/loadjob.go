package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"chferry/internal/schema"
	"chferry/internal/transfer"
	"chferry/internal/transformer"
)

// Load reads a job file and decodes it by extension: .yaml/.yml via yaml.v3,
// everything else as JSON.
func Load(path string) (*Pipeline, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read job file: %w", err)
	}

	var p Pipeline
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &p); err != nil {
			return nil, fmt.Errorf("decode %s: %w", path, err)
		}
	default:
		if err := json.Unmarshal(b, &p); err != nil {
			return nil, fmt.Errorf("decode %s: %w", path, err)
		}
	}
	return &p, nil
}

// Marshal renders the pipeline as indented JSON, for the web UI to offer as a
// downloadable job file.
func Marshal(p Pipeline) ([]byte, error) {
	return json.MarshalIndent(p, "", "  ")
}

// ParsePolicy maps the job file's invalid_policy string onto the coercion
// policy. Empty means the sentinel default.
func ParsePolicy(s string) (transformer.InvalidPolicy, error) {
	switch s {
	case "", "sentinel":
		return transformer.PolicySentinel, nil
	case "null":
		return transformer.PolicyNull, nil
	case "reject":
		return transformer.PolicyReject, nil
	default:
		return transformer.PolicySentinel, fmt.Errorf("unknown invalid_policy %q", s)
	}
}

// ToJob converts a decoded pipeline into the engine's job form.
func (p Pipeline) ToJob() (transfer.Job, error) {
	policy, err := ParsePolicy(p.InvalidPolicy)
	if err != nil {
		return transfer.Job{}, err
	}

	cols := make([]schema.Column, len(p.Columns))
	for i, c := range p.Columns {
		cols[i] = schema.Column{Name: c.Name, Type: schema.ParseTag(c.Type)}
	}

	return transfer.Job{
		Name:    p.Job,
		Source:  toEndpoint(p.Source),
		Target:  toEndpoint(p.Target),
		Columns: cols,
		Policy:  policy,
	}, nil
}

func toEndpoint(e Endpoint) transfer.Endpoint {
	ep := transfer.Endpoint{
		Kind:      transfer.EndpointKind(e.Kind),
		Path:      e.Path,
		Delimiter: e.DelimiterRune(0),
		HasHeader: e.HasHeader,
		Table:     e.Table,
	}
	// Parser extras live in the free-form options bag. Only keys that are
	// actually present become overrides; the engine keeps its defaults
	// otherwise.
	if _, ok := e.Options["trim_space"]; ok {
		v := e.Options.Bool("trim_space", true)
		ep.TrimSpace = &v
	}
	if _, ok := e.Options["lazy_quotes"]; ok {
		v := e.Options.Bool("lazy_quotes", true)
		ep.LazyQuotes = &v
	}
	return ep
}
