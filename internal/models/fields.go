package models

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/go-viper/mapstructure/v2"
)

// Fields is a set of dotted-path assignments addressed at a stored Run,
// e.g. "results.2.status". Paths use the same names as the json/bson tags so
// a document store can apply them as-is ($set), and each concurrent writer
// only ever touches its own result index.
type Fields map[string]any

// ResultPath returns the path of a field within the Result at index i.
func ResultPath(i int, field string) string {
	return "results." + strconv.Itoa(i) + "." + field
}

// RunningFields marks result i as running.
func RunningFields(i int) Fields {
	return Fields{
		ResultPath(i, "status"): StatusRunning,
	}
}

// CompletedFields records a successful invocation on result i.
func CompletedFields(i int, r Result) Fields {
	return Fields{
		ResultPath(i, "output"):           r.Output,
		ResultPath(i, "structuredOutput"): r.StructuredOutput,
		ResultPath(i, "tokensIn"):         r.TokensIn,
		ResultPath(i, "tokensOut"):        r.TokensOut,
		ResultPath(i, "latencyMs"):        r.LatencyMs,
		ResultPath(i, "cost"):             r.Cost,
		ResultPath(i, "status"):           StatusCompleted,
	}
}

// FailedFields records a failed invocation on result i.
func FailedFields(i int, message string) Fields {
	return Fields{
		ResultPath(i, "error"):  message,
		ResultPath(i, "status"): StatusFailed,
	}
}

// ValidationFields replaces the validation block wholesale.
func ValidationFields(validatorModel string, verdicts []Verdict) Fields {
	if verdicts == nil {
		verdicts = []Verdict{}
	}
	return Fields{
		"validation.enabled":        true,
		"validation.validatorModel": validatorModel,
		"validation.results":        verdicts,
	}
}

// Apply assigns every path in f onto r. It is used by stores that keep Runs
// as Go values rather than documents.
func (r *Run) Apply(f Fields) error {
	for path, value := range f {
		if err := r.applyOne(path, value); err != nil {
			return fmt.Errorf("applying %q: %w", path, err)
		}
	}
	return nil
}

func (r *Run) applyOne(path string, value any) error {
	parts := strings.Split(path, ".")

	switch {
	case len(parts) == 3 && parts[0] == "results":
		i, err := strconv.Atoi(parts[1])
		if err != nil {
			return fmt.Errorf("invalid result index %q", parts[1])
		}
		if i < 0 || i >= len(r.Results) {
			return fmt.Errorf("result index %d out of range [0,%d)", i, len(r.Results))
		}
		return r.Results[i].set(parts[2], value)
	case len(parts) == 2 && parts[0] == "validation":
		return r.Validation.set(parts[1], value)
	default:
		return fmt.Errorf("unsupported path")
	}
}

func (res *Result) set(field string, value any) error {
	switch field {
	case "status":
		return decode(value, &res.Status)
	case "output":
		return decode(value, &res.Output)
	case "structuredOutput":
		res.StructuredOutput = value
		return nil
	case "tokensIn":
		return decode(value, &res.TokensIn)
	case "tokensOut":
		return decode(value, &res.TokensOut)
	case "latencyMs":
		return decode(value, &res.LatencyMs)
	case "cost":
		switch v := value.(type) {
		case nil:
			res.Cost = nil
		case *float64:
			res.Cost = v
		default:
			var f float64
			if err := decode(v, &f); err != nil {
				return err
			}
			res.Cost = &f
		}
		return nil
	case "error":
		return decode(value, &res.Error)
	default:
		return fmt.Errorf("unknown result field %q", field)
	}
}

func (v *Validation) set(field string, value any) error {
	switch field {
	case "enabled":
		return decode(value, &v.Enabled)
	case "validatorModel":
		return decode(value, &v.ValidatorModel)
	case "results":
		var verdicts []Verdict
		if err := decode(value, &verdicts); err != nil {
			return err
		}
		if verdicts == nil {
			verdicts = []Verdict{}
		}
		v.Results = verdicts
		return nil
	default:
		return fmt.Errorf("unknown validation field %q", field)
	}
}

// decode converts loosely typed values (for example float64 numbers from a
// JSON round trip) into the typed field.
func decode(value any, target any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           target,
	})
	if err != nil {
		return err
	}
	return dec.Decode(value)
}
