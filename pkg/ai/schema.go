package ai

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schemas/*.json
var schemaFS embed.FS

const (
	evaluationSchemaURL = "https://codearena.local/schemas/evaluation.schema.json"
	questionSchemaURL   = "https://codearena.local/schemas/question.schema.json"
)

var (
	schemaOnce       sync.Once
	schemaErr        error
	evaluationSchema *jsonschema.Schema
	questionSchema   *jsonschema.Schema
)

func loadSchemas() error {
	schemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		resources := map[string]string{
			evaluationSchemaURL: "schemas/evaluation.schema.json",
			questionSchemaURL:   "schemas/question.schema.json",
		}
		for url, path := range resources {
			raw, err := schemaFS.ReadFile(path)
			if err != nil {
				schemaErr = fmt.Errorf("read schema %s: %w", path, err)
				return
			}
			if err := compiler.AddResource(url, bytes.NewReader(raw)); err != nil {
				schemaErr = fmt.Errorf("add schema %s: %w", path, err)
				return
			}
		}

		if evaluationSchema, schemaErr = compiler.Compile(evaluationSchemaURL); schemaErr != nil {
			return
		}
		questionSchema, schemaErr = compiler.Compile(questionSchemaURL)
	})
	return schemaErr
}

// decodeModelJSON validates the model reply against schema and decodes it into target.
func decodeModelJSON(content string, schema *jsonschema.Schema, target interface{}) error {
	cleaned := stripCodeFence(content)
	if cleaned == "" {
		return fmt.Errorf("%w: empty reply", ErrMalformedModelResponse)
	}

	var document interface{}
	if err := json.Unmarshal([]byte(cleaned), &document); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedModelResponse, err)
	}

	if err := schema.Validate(document); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedModelResponse, err)
	}

	if err := json.Unmarshal([]byte(cleaned), target); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedModelResponse, err)
	}

	return nil
}

// Models occasionally wrap JSON in Markdown fences even when asked not to.
func stripCodeFence(content string) string {
	content = strings.TrimSpace(content)
	if !strings.HasPrefix(content, "```") {
		return content
	}

	content = strings.TrimPrefix(content, "```")
	content = strings.TrimPrefix(content, "json")
	content = strings.TrimSuffix(strings.TrimSpace(content), "```")
	return strings.TrimSpace(content)
}
