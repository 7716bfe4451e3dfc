// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/invopop/jsonschema"

	"github.com/kadirpekel/vectra/pkg/config"
)

// SchemaCmd generates JSON Schema from the config structs. Editors and
// CI pipelines can use it to validate config files before deployment.
// Output is written to stdout for flexibility (can be redirected).
type SchemaCmd struct {
	// Compact enables compact JSON output (no indentation)
	Compact bool `short:"c" help:"Compact JSON output (no indentation)."`
}

// Run executes the schema generation command.
func (c *SchemaCmd) Run() error {
	reflector := &jsonschema.Reflector{
		// Disallow additional properties for strict validation
		AllowAdditionalProperties: false,
		// Inline all definitions (no $ref) so single-file consumers work
		DoNotReference: true,
	}

	schema := reflector.Reflect(&config.Config{})

	schema.ID = "https://github.com/kadirpekel/vectra/schemas/config.json"
	schema.Title = "Vectra Configuration Schema"
	schema.Description = "Configuration schema for the vectra retrieval-augmented generation engine"
	schema.Version = "http://json-schema.org/draft-07/schema#"

	schema.Examples = []interface{}{
		map[string]interface{}{
			"embedding": map[string]interface{}{
				"provider": "openai",
				"model":    "text-embedding-3-small",
				"api_key":  "${OPENAI_API_KEY}",
			},
			"llm": map[string]interface{}{
				"provider": "anthropic",
				"model":    "claude-sonnet-4-20250514",
				"api_key":  "${ANTHROPIC_API_KEY}",
			},
			"database": map[string]interface{}{
				"type":         "chromem",
				"collection":   "documents",
				"persist_path": ".vectra/index",
			},
		},
	}

	encoder := json.NewEncoder(os.Stdout)
	if !c.Compact {
		encoder.SetIndent("", "  ")
	}

	if err := encoder.Encode(schema); err != nil {
		return fmt.Errorf("failed to encode schema: %w", err)
	}

	return nil
}
