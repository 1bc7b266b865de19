package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

const attemptSchemaURL = "schema://attempt.json"

// attemptSchema describes the upload response.
const attemptSchema = `{
  "type": "object",
  "required": ["attempt_id", "storage"],
  "properties": {
    "attempt_id": {"type": ["string", "integer"], "minLength": 1},
    "storage": {
      "type": "object",
      "required": ["bucket", "path"],
      "properties": {
        "bucket": {"type": "string"},
        "path": {"type": "string"},
        "url": {"type": "string"}
      }
    }
  }
}`

var (
	compileOnce sync.Once
	compiled    *jsonschema.Schema
	compileErr  error
)

func attemptValidator() (*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		doc, err := jsonschema.UnmarshalJSON(strings.NewReader(attemptSchema))
		if err != nil {
			compileErr = fmt.Errorf("parse schema: %w", err)
			return
		}
		c := jsonschema.NewCompiler()
		if err := c.AddResource(attemptSchemaURL, doc); err != nil {
			compileErr = fmt.Errorf("add resource: %w", err)
			return
		}
		compiled, compileErr = c.Compile(attemptSchemaURL)
	})
	return compiled, compileErr
}

// decodeAttempt validates raw against the attempt schema and decodes it.
func decodeAttempt(raw []byte) (*Attempt, error) {
	parsed, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return nil, &ErrInvalidResponse{Content: raw, Err: fmt.Errorf("invalid JSON: %w", err)}
	}

	sch, err := attemptValidator()
	if err != nil {
		return nil, &ErrInvalidResponse{Content: raw, Err: fmt.Errorf("compile schema: %w", err)}
	}
	if err := sch.Validate(parsed); err != nil {
		return nil, &ErrInvalidResponse{Content: raw, Err: fmt.Errorf("schema validation failed: %w", err)}
	}

	var a Attempt
	if err := json.Unmarshal(raw, &a); err != nil {
		return nil, &ErrInvalidResponse{Content: raw, Err: err}
	}
	return &a, nil
}
