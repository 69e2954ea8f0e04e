package prompts

import (
	"encoding/csv"
	"os"

	"github.com/manthysbr/firewerk/internal/core/domain"
)

func readCSV(path string) ([]domain.PromptItem, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true
	rows, err := r.ReadAll()
	if err != nil {
		return nil, err
	}
	return itemsFromRows(rows)
}
