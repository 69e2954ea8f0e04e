package prompts

import (
	"fmt"

	"github.com/xuri/excelize/v2"

	"github.com/manthysbr/firewerk/internal/core/domain"
)

// readXLSX reads the first sheet with the same columns as CSV.
func readXLSX(path string) ([]domain.PromptItem, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("workbook has no sheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheets[0], err)
	}
	return itemsFromRows(rows)
}
