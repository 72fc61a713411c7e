package config

import (
	"strings"

	"github.com/pkg/errors"
	"github.com/xeipuuv/gojsonschema"
)

// metadataSchema lists the keys the matrix builder reads unconditionally.
// A channel's platforms and tests are only read once it has a version to build,
// so they are type-checked here and left for the builder to require.
var metadataSchema = map[string]interface{}{
	"type":     "object",
	"required": []string{"app", "channels"},
	"properties": map[string]interface{}{
		"app": map[string]interface{}{
			"type":      "string",
			"minLength": 1,
		},
		"semver": map[string]interface{}{
			"type": "boolean",
		},
		"channels": map[string]interface{}{
			"type": "array",
			"items": map[string]interface{}{
				"type":     "object",
				"required": []string{"name"},
				"properties": map[string]interface{}{
					"name": map[string]interface{}{
						"type":      "string",
						"minLength": 1,
					},
					"stable": map[string]interface{}{
						"type": "boolean",
					},
					"platforms": map[string]interface{}{
						"type": "array",
						"items": map[string]interface{}{
							"type": "string",
						},
					},
					"tests": map[string]interface{}{
						"type":     "object",
						"required": []string{"enabled"},
						"properties": map[string]interface{}{
							"enabled": map[string]interface{}{
								"type": "boolean",
							},
							"type": map[string]interface{}{
								"type": "string",
							},
						},
					},
				},
			},
		},
	},
}

func validate(doc interface{}) error {
	schemaLoader := gojsonschema.NewGoLoader(metadataSchema)
	jsonLoader := gojsonschema.NewGoLoader(doc)
	result, err := gojsonschema.Validate(schemaLoader, jsonLoader)
	if err != nil {
		return errors.Wrap(err, "validate")
	}

	if result.Valid() {
		return nil
	}

	msgs := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		msgs = append(msgs, e.String())
	}
	return errors.Errorf("invalid metadata: %s", strings.Join(msgs, "; "))
}
