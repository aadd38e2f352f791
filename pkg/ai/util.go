package ai

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	"github.com/invopop/jsonschema"
	"github.com/kaptinlin/jsonrepair"
)

// GenerateSchema reflects a Go type into the JSON Schema sent along with
// structured-output requests. Additional properties are disallowed and the
// schema is inlined so providers that reject $ref definitions accept it.
func GenerateSchema(value any) any {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}

	t := reflect.TypeOf(value)
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}

	return reflector.Reflect(reflect.New(t).Interface())
}

// UnmarshalFlexible parses model output into the target, tolerating the
// malformations chat models produce around JSON: a strict parse is tried
// first, then a double-encoded string payload is unwrapped, and finally the
// input is run through jsonrepair for unquoted keys, trailing commas, or a
// truncated closing bracket.
//
// A topic payload like `{topic: 'Cell Transport', key_concepts: [osmosis,]}`
// comes back usable instead of failing the page.
func UnmarshalFlexible(input string, out any) error {
	input = strings.TrimSpace(input)

	if err := json.Unmarshal([]byte(input), out); err == nil {
		return nil
	}

	// Some models return the object JSON-encoded a second time, as one
	// string value.
	var unwrapped string
	if err := json.Unmarshal([]byte(input), &unwrapped); err == nil {
		unwrapped = strings.TrimSpace(unwrapped)
		if err := json.Unmarshal([]byte(unwrapped), out); err == nil {
			return nil
		}
		input = unwrapped
	}

	repaired, err := jsonrepair.JSONRepair(dropDoubledBrace(input))
	if err != nil {
		return fmt.Errorf("json repair failed: %w (input: %s)", err, input)
	}
	if err := json.Unmarshal([]byte(repaired), out); err != nil {
		return fmt.Errorf("unmarshal failed after repair: input=%s repaired=%s", input, repaired)
	}
	return nil
}

// dropDoubledBrace removes the stray second `{` some models emit at the
// start of an object, which jsonrepair turns into a nested object instead.
func dropDoubledBrace(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "{") {
		rest := strings.TrimSpace(s[1:])
		if strings.HasPrefix(rest, "{") {
			return rest
		}
	}
	return s
}
