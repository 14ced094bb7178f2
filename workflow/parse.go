package workflow

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.yaml.in/yaml/v3"

	"github.com/kbukum/flowkit/errors"
)

// Parse decodes a JSON workflow document. Unknown top-level or node fields are
// rejected.
func Parse(data []byte) (*Workflow, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	var wf Workflow
	if err := dec.Decode(&wf); err != nil {
		return nil, errors.InvalidDefinition("decoding workflow json: %v", err).WithCause(err)
	}
	return &wf, nil
}

// ParseYAML decodes a YAML workflow document with the same shape as the JSON
// format.
func ParseYAML(data []byte) (*Workflow, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var wf Workflow
	if err := dec.Decode(&wf); err != nil {
		return nil, errors.InvalidDefinition("decoding workflow yaml: %v", err).WithCause(err)
	}
	return &wf, nil
}

// LoadFile reads a workflow from disk, choosing the decoder by extension
// (.json, .yaml, .yml).
func LoadFile(path string) (*Workflow, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("workflow: reading %s: %w", path, err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return ParseYAML(data)
	case ".json":
		return Parse(data)
	default:
		return nil, errors.InvalidDefinition("unsupported workflow file extension %q", filepath.Ext(path))
	}
}

// Snapshot serializes wf as JSON. The result is what a run records as its
// definition snapshot.
func (wf *Workflow) Snapshot() ([]byte, error) {
	return json.Marshal(wf)
}
