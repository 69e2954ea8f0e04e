package prompts

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/manthysbr/firewerk/internal/core/domain"
)

// column roles recognized in tabular files, keyed by normalized header.
var (
	idColumns      = []string{"prompt_id", "id"}
	payloadColumns = []string{"prompt_text", "text", "prompt", "payload"}
	variantColumns = []string{"variants", "variant_count"}
)

type header struct {
	id, payload, variants int
	params                map[int]domain.ParamKey
}

func parseHeader(cells []string) (header, error) {
	h := header{id: -1, payload: -1, variants: -1, params: map[int]domain.ParamKey{}}
	for i, cell := range cells {
		key := domain.ParseParamKey(strings.TrimPrefix(cell, "\ufeff"))
		switch {
		case h.id < 0 && contains(idColumns, string(key)):
			h.id = i
		case h.payload < 0 && contains(payloadColumns, string(key)):
			h.payload = i
		case h.variants < 0 && contains(variantColumns, string(key)):
			h.variants = i
		case key != "":
			h.params[i] = key
		}
	}
	if h.payload < 0 {
		return h, fmt.Errorf("missing prompt text column (one of %s)", strings.Join(payloadColumns, ", "))
	}
	return h, nil
}

// itemsFromRows converts a header row plus data rows. Rows whose prompt
// text is blank are skipped.
func itemsFromRows(rows [][]string) ([]domain.PromptItem, error) {
	if len(rows) == 0 {
		return []domain.PromptItem{}, nil
	}
	h, err := parseHeader(rows[0])
	if err != nil {
		return nil, err
	}
	items := make([]domain.PromptItem, 0, len(rows)-1)
	for n, row := range rows[1:] {
		payload := strings.TrimSpace(cell(row, h.payload))
		if payload == "" {
			continue
		}
		item := domain.PromptItem{
			ID:      strings.TrimSpace(cell(row, h.id)),
			Payload: payload,
		}
		if raw := strings.TrimSpace(cell(row, h.variants)); raw != "" {
			v, err := strconv.Atoi(raw)
			if err != nil {
				return nil, fmt.Errorf("row %d: variants %q: %w", n+2, raw, err)
			}
			item.VariantCount = v
		}
		for i, key := range h.params {
			if v := strings.TrimSpace(cell(row, i)); v != "" {
				if item.Parameters == nil {
					item.Parameters = domain.Parameters{}
				}
				item.Parameters[key] = v
			}
		}
		items = append(items, item.Normalized())
	}
	return items, nil
}

func cell(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return row[i]
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
