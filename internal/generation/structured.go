package generation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/invopop/jsonschema"
)

var (
	validate = validator.New(validator.WithRequiredStructEnabled())

	schemaCache sync.Map // reflect.Type -> json.RawMessage
)

// SchemaFor derives the JSON schema of T from its struct and json tags.
// Fields without omitempty are required and additional properties are
// disallowed, matching what strict structured-output modes expect.
func SchemaFor[T any]() (json.RawMessage, error) {
	typ := reflect.TypeOf((*T)(nil)).Elem()
	if cached, ok := schemaCache.Load(typ); ok {
		return cached.(json.RawMessage), nil
	}

	reflector := &jsonschema.Reflector{
		DoNotReference: true,
		ExpandedStruct: true,
	}
	schema := reflector.ReflectFromType(typ)
	schema.Version = ""

	raw, err := json.Marshal(schema)
	if err != nil {
		return nil, fmt.Errorf("marshal schema for %s: %w", typ, err)
	}
	schemaCache.Store(typ, json.RawMessage(raw))
	return raw, nil
}

// schemaName derives a stable response format name from T.
func schemaName(typ reflect.Type) string {
	for typ.Kind() == reflect.Pointer || typ.Kind() == reflect.Slice {
		typ = typ.Elem()
	}
	name := strings.ToLower(typ.Name())
	if name == "" {
		return "result"
	}
	return name
}

// InvokeStructured runs req through e and decodes the completion into T.
// When req.Schema is empty the schema is derived from T. Content that is not
// valid JSON for T, fails T's validate struct tags, or fails SelfValidator, is
// retried as a schema validation failure.
func InvokeStructured[T any](ctx context.Context, e *Executor, req Request) (T, error) {
	var zero T

	if len(req.Schema) == 0 {
		schema, err := SchemaFor[T]()
		if err != nil {
			return zero, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
		}
		req.Schema = schema
	}
	if req.SchemaName == "" {
		req.SchemaName = schemaName(reflect.TypeOf((*T)(nil)).Elem())
	}

	var result T
	req.Decode = func(content string) error {
		raw := ExtractJSON(content)
		if raw == "" {
			return fmt.Errorf("%w: no JSON document in completion", ErrSchemaValidation)
		}

		var value T
		if err := json.Unmarshal([]byte(raw), &value); err != nil {
			return fmt.Errorf("%w: %v", ErrSchemaValidation, err)
		}
		if err := validateValue(value); err != nil {
			return fmt.Errorf("%w: %v", ErrSchemaValidation, err)
		}
		result = value
		return nil
	}

	if _, err := e.Invoke(ctx, req); err != nil {
		return zero, err
	}
	return result, nil
}

// SelfValidator is implemented by result types with rules struct tags
// cannot express. Validate runs after the tag checks pass.
type SelfValidator interface {
	Validate() error
}

// validateValue applies validate struct tags to structs and pointers to
// structs, then SelfValidator when T (not *T) implements it.
func validateValue(v any) error {
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return errors.New("null result")
		}
		rv = rv.Elem()
	}
	if rv.Kind() == reflect.Struct {
		if err := validate.Struct(rv.Interface()); err != nil {
			return err
		}
	}
	if sv, ok := v.(SelfValidator); ok {
		return sv.Validate()
	}
	return nil
}
