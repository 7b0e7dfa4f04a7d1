package pipeline

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"

	"go-ocr-throughput/internal/engine"
	"go-ocr-throughput/internal/model"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	return v
}

// messages maps validation tags to friendly error messages
var messages = map[string]string{
	"required":   "the field '%s' is required",
	"gte":        "the field '%s' must be greater than or equal to %s",
	"oneof":      "the field '%s' must be one of [%s]",
	"startswith": "the field '%s' must start with '%s'",
}

// SpecError lists every invalid field of a RunSpec
type SpecError struct {
	Fields map[string]string // field path -> message
}

func (e *SpecError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	msgs := make([]string, len(keys))
	for i, k := range keys {
		msgs[i] = e.Fields[k]
	}
	return "invalid run spec: " + strings.Join(msgs, "; ")
}

// ValidateSpec checks a RunSpec before anything is enumerated or spawned
func ValidateSpec(spec model.RunSpec) error {
	fields := make(map[string]string)

	if err := validate.Struct(spec); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return fmt.Errorf("invalid run spec: %w", err)
		}
		for _, fe := range verrs {
			// drop the root struct name from the namespace
			path := fe.Namespace()
			if i := strings.IndexByte(path, '.'); i >= 0 {
				path = path[i+1:]
			}
			fields[path] = parseMessage(path, fe)
		}
	}

	if spec.Engine.Backend != "" {
		if _, err := engine.Lookup(spec.Engine.Backend); err != nil {
			fields["engine.backend"] = fmt.Sprintf("the field 'engine.backend' must be one of [%s]",
				strings.Join(engine.Backends(), " "))
		}
	}

	if len(fields) > 0 {
		return &SpecError{Fields: fields}
	}
	return nil
}

func parseMessage(field string, fe validator.FieldError) string {
	msg, ok := messages[fe.Tag()]
	if !ok {
		return fmt.Sprintf("the field '%s' is invalid: %s", field, fe.Tag())
	}
	if strings.Count(msg, "%s") == 2 {
		return fmt.Sprintf(msg, field, fe.Param())
	}
	return fmt.Sprintf(msg, field)
}
