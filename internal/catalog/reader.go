// Package catalog reads the vendor-published licensing reference CSV that
// maps products to the service plans they contain.
package catalog

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/planscope/planscope/internal/domain"
)

// Normalized names of the columns the reader consumes.
const (
	ColumnProductDisplayName = "Product_Display_Name"
	ColumnStringID           = "String_Id"
	ColumnGUID               = "GUID"
	ColumnServicePlanID      = "Service_Plan_Id"
	ColumnServicePlanName    = "Service_Plan_Name"
	ColumnFriendlyNames      = "Service_Plans_Included_Friendly_Names"
)

var requiredColumns = []string{
	ColumnProductDisplayName,
	ColumnStringID,
	ColumnGUID,
	ColumnServicePlanID,
	ColumnServicePlanName,
	ColumnFriendlyNames,
}

// ReadFile parses the catalog CSV at path.
func ReadFile(path string) ([]domain.CatalogRow, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: open %s: %w", path, err)
	}
	defer f.Close()
	return Read(f)
}

// Read parses catalog rows from r. Columns are located by normalized header
// name, so incidental spacing or punctuation changes in the vendor file do
// not break parsing. Field values are trimmed, SKU GUIDs are canonicalised,
// and entirely empty rows are dropped. Rows lacking a service plan id are
// kept; the index builder decides what to do with them.
func Read(r io.Reader) ([]domain.CatalogRow, error) {
	reader := csv.NewReader(r)
	// The vendor file occasionally carries ragged rows.
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("catalog: read csv: %w", err)
	}
	if len(records) == 0 {
		return nil, errors.New("catalog: file is empty")
	}

	columns, err := resolveColumns(records[0])
	if err != nil {
		return nil, err
	}

	rows := make([]domain.CatalogRow, 0, len(records)-1)
	for _, record := range records[1:] {
		row := domain.CatalogRow{
			ProductDisplayName:                columns.value(record, ColumnProductDisplayName),
			StringID:                          columns.value(record, ColumnStringID),
			SKUGUID:                           canonicalGUID(columns.value(record, ColumnGUID)),
			ServicePlanID:                     columns.value(record, ColumnServicePlanID),
			ServicePlanName:                   columns.value(record, ColumnServicePlanName),
			ServicePlansIncludedFriendlyNames: columns.value(record, ColumnFriendlyNames),
		}
		if rowIsEmpty(row) {
			continue
		}
		rows = append(rows, row)
	}
	return rows, nil
}

type columnIndex map[string]int

func resolveColumns(header []string) (columnIndex, error) {
	index := make(columnIndex, len(header))
	for i, cell := range header {
		normalized := NormalizeHeader(cell)
		if normalized == "" {
			continue
		}
		if _, ok := index[strings.ToLower(normalized)]; !ok {
			index[strings.ToLower(normalized)] = i
		}
	}
	for _, required := range requiredColumns {
		if _, ok := index[strings.ToLower(required)]; !ok {
			return nil, fmt.Errorf("catalog: missing required column %q", required)
		}
	}
	return index, nil
}

func (c columnIndex) value(record []string, column string) string {
	i, ok := c[strings.ToLower(column)]
	if !ok || i >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[i])
}

func rowIsEmpty(row domain.CatalogRow) bool {
	return row.ProductDisplayName == "" &&
		row.StringID == "" &&
		row.SKUGUID == "" &&
		row.ServicePlanID == "" &&
		row.ServicePlanName == "" &&
		row.ServicePlansIncludedFriendlyNames == ""
}
