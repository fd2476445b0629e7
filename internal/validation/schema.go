package validation

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"github.com/spboyer/promptbench/schemas"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"gopkg.in/yaml.v3"
)

// defaultPrinter is used to format schema validation error messages.
var defaultPrinter = message.NewPrinter(language.English)

// promptSchema is the compiled JSON Schema for prompt YAML files.
var promptSchema *jsonschema.Schema

func init() {
	sch, err := compile(schemas.PromptSchemaJSON, "prompt.schema.json")
	if err != nil {
		panic(fmt.Sprintf("failed to compile embedded prompt.schema.json: %v", err))
	}
	promptSchema = sch
}

// ValidatePromptFile validates a prompt YAML file at the given path.
func ValidatePromptFile(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading prompt file: %w", err)
	}
	return ValidatePromptBytes(data), nil
}

// ValidatePromptBytes validates raw YAML bytes against the prompt schema.
func ValidatePromptBytes(data []byte) []string {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return []string{fmt.Sprintf("YAML parse error: %v", err)}
	}
	return Check(promptSchema, doc)
}

// CompileSchema compiles a caller supplied JSON Schema document, such as the
// output schema of a run.
func CompileSchema(doc map[string]any) (*jsonschema.Schema, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encoding schema: %w", err)
	}
	return compile(string(raw), "output.schema.json")
}

// Check validates instance against schema and returns one message per
// violation, or nil when the instance conforms.
func Check(schema *jsonschema.Schema, instance any) []string {
	normalized, err := normalize(instance)
	if err != nil {
		return []string{fmt.Sprintf("schema: %v", err)}
	}

	err = schema.Validate(normalized)
	if err == nil {
		return nil
	}
	ve, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return []string{fmt.Sprintf("schema: %v", err)}
	}
	var errs []string
	collectSchemaErrors(ve, &errs)
	return errs
}

// CheckOutput parses a model output as JSON and validates it against doc.
func CheckOutput(doc map[string]any, output string) []string {
	schema, err := CompileSchema(doc)
	if err != nil {
		return []string{fmt.Sprintf("invalid schema: %v", err)}
	}

	instance, err := jsonschema.UnmarshalJSON(strings.NewReader(output))
	if err != nil {
		return []string{fmt.Sprintf("output is not valid JSON: %v", err)}
	}
	return Check(schema, instance)
}

func compile(raw string, name string) (*jsonschema.Schema, error) {
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", name, err)
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(name, doc); err != nil {
		return nil, fmt.Errorf("adding %s resource: %w", name, err)
	}
	return compiler.Compile(name)
}

// normalize round-trips v through JSON so that numbers from YAML or Go
// structs reach the validator in the form it expects.
func normalize(v any) (any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return jsonschema.UnmarshalJSON(bytes.NewReader(raw))
}

func collectSchemaErrors(ve *jsonschema.ValidationError, errs *[]string) {
	if len(ve.Causes) == 0 {
		loc := "/"
		if len(ve.InstanceLocation) > 0 {
			loc = "/" + strings.Join(ve.InstanceLocation, "/")
		}
		*errs = append(*errs, fmt.Sprintf("%s: %s", loc, ve.ErrorKind.LocalizedString(defaultPrinter)))
		return
	}
	for _, c := range ve.Causes {
		collectSchemaErrors(c, errs)
	}
}
