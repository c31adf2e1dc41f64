package signal

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"path"

	"github.com/dkeye/copilot/internal/domain"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schemas/*.json
var schemaFS embed.FS

var schemaFiles = map[domain.EventKind]string{
	domain.EventJoinInterview:  "interview.json",
	domain.EventLeaveInterview: "interview.json",
	domain.EventStop:           "interview.json",
	domain.EventTranscript:     "transcript.json",
	domain.EventSuggestions:    "suggestions.json",
	domain.EventSpeech:         "speech.json",
	domain.EventVisual:         "visual.json",
	domain.EventLandmarks:      "landmarks.json",
	domain.EventQualityEnable:  "quality.json",
}

// Schemas checks the required fields of inbound events.
type Schemas struct {
	byKind map[domain.EventKind]*jsonschema.Schema
}

func LoadSchemas() (*Schemas, error) {
	compiler := jsonschema.NewCompiler()
	compiled := make(map[string]*jsonschema.Schema)
	s := &Schemas{byKind: make(map[domain.EventKind]*jsonschema.Schema)}
	for kind, file := range schemaFiles {
		if sch, ok := compiled[file]; ok {
			s.byKind[kind] = sch
			continue
		}
		raw, err := schemaFS.ReadFile(path.Join("schemas", file))
		if err != nil {
			return nil, fmt.Errorf("read schema %s: %w", file, err)
		}
		url := "mem://schemas/" + file
		if err := compiler.AddResource(url, bytes.NewReader(raw)); err != nil {
			return nil, fmt.Errorf("add schema resource %s: %w", file, err)
		}
		sch, err := compiler.Compile(url)
		if err != nil {
			return nil, fmt.Errorf("compile schema %s: %w", file, err)
		}
		compiled[file] = sch
		s.byKind[kind] = sch
	}
	return s, nil
}

// Validate passes kinds without a schema.
func (s *Schemas) Validate(kind domain.EventKind, raw []byte) error {
	sch, ok := s.byKind[kind]
	if !ok {
		return nil
	}
	var payload any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return err
	}
	return sch.Validate(payload)
}
