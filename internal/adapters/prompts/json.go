package prompts

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/manthysbr/firewerk/internal/core/domain"
)

//go:embed schema.json
var schemaJSON []byte

var compileSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("prompts.json", bytes.NewReader(schemaJSON)); err != nil {
		return nil, fmt.Errorf("add schema: %w", err)
	}
	return compiler.Compile("prompts.json")
})

// readJSON reads an array of objects. Text, id and variant fields accept the
// same spellings as CSV headers; any other top-level field naming a
// parameter is folded into Parameters.
func readJSON(path string) ([]domain.PromptItem, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return decodeJSON(data)
}

func decodeJSON(data []byte) ([]domain.PromptItem, error) {
	schema, err := compileSchema()
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	var doc any
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("unmarshal: %w", err)
	}
	if err := schema.Validate(doc); err != nil {
		return nil, fmt.Errorf("json does not match schema: %w", err)
	}

	rows, _ := doc.([]any)
	items := make([]domain.PromptItem, 0, len(rows))
	for n, raw := range rows {
		obj, _ := raw.(map[string]any)
		item := domain.PromptItem{}
		for field, v := range obj {
			key := domain.ParseParamKey(field)
			switch {
			case contains(idColumns, string(key)):
				item.ID = scalar(v)
			case contains(payloadColumns, string(key)):
				item.Payload = strings.TrimSpace(scalar(v))
			case contains(variantColumns, string(key)):
				if raw := strings.TrimSpace(scalar(v)); raw != "" {
					count, err := strconv.Atoi(raw)
					if err != nil {
						return nil, fmt.Errorf("item %d: %s %q: %w", n+1, field, raw, err)
					}
					item.VariantCount = count
				}
			case key == "parameters":
				params, _ := v.(map[string]any)
				for pk, pv := range params {
					item.Parameters = setParam(item.Parameters, domain.ParseParamKey(pk), scalar(pv))
				}
			default:
				item.Parameters = setParam(item.Parameters, key, scalar(v))
			}
		}
		if item.Payload == "" {
			continue
		}
		items = append(items, item.Normalized())
	}
	return items, nil
}

func setParam(p domain.Parameters, key domain.ParamKey, value string) domain.Parameters {
	if strings.TrimSpace(value) == "" {
		return p
	}
	if p == nil {
		p = domain.Parameters{}
	}
	p[key] = value
	return p
}

func scalar(v any) string {
	switch v := v.(type) {
	case nil:
		return ""
	case string:
		return v
	case json.Number:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}
