// Package schemas embeds the JSON Schemas for promptbench input files.
package schemas

import _ "embed"

//go:embed prompt.schema.json
var PromptSchemaJSON string
