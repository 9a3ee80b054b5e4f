// Package dataset loads the labelled sensor CSV the classifier is trained on.
package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/dravya-labs/dravya/pkg/models"
	"github.com/samber/lo"
)

// ErrMissingColumns is returned when the header lacks a required column.
var ErrMissingColumns = errors.New("dataset missing required columns")

// Row is one labelled observation.
type Row struct {
	Features [6]float64
	Label    string
}

// Dataset is an in-memory labelled sensor table.
type Dataset struct {
	Rows []Row
}

// Load reads a CSV dataset from disk.
func Load(path string) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open dataset: %w", err)
	}
	defer f.Close()

	ds, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("dataset %s: %w", path, err)
	}
	return ds, nil
}

// Parse reads a CSV dataset with a header row. Columns may appear in any order;
// extra columns are ignored.
func Parse(r io.Reader) (*Dataset, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	headers, err := reader.Read()
	if err != nil {
		if err == io.EOF {
			return nil, fmt.Errorf("file is empty")
		}
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	index := make(map[string]int, len(headers))
	for i, h := range headers {
		index[strings.TrimPrefix(strings.TrimSpace(h), "\ufeff")] = i
	}

	required := append(append([]string{}, models.FeatureColumns...), models.LabelColumn)
	missing := lo.Filter(required, func(c string, _ int) bool {
		_, ok := index[c]
		return !ok
	})
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrMissingColumns, strings.Join(missing, ", "))
	}

	ds := &Dataset{}
	line := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("failed to parse line %d: %w", line, err)
		}

		var row Row
		for i, col := range models.FeatureColumns {
			cell, ok := cellAt(record, index[col])
			if !ok {
				return nil, fmt.Errorf("line %d: column %s is empty", line, col)
			}
			v, err := strconv.ParseFloat(cell, 64)
			if err != nil {
				return nil, fmt.Errorf("line %d: column %s: %w", line, col, err)
			}
			row.Features[i] = v
		}
		label, ok := cellAt(record, index[models.LabelColumn])
		if !ok {
			return nil, fmt.Errorf("line %d: column %s is empty", line, models.LabelColumn)
		}
		row.Label = label
		ds.Rows = append(ds.Rows, row)
	}

	if len(ds.Rows) == 0 {
		return nil, fmt.Errorf("no data rows")
	}
	return ds, nil
}

func cellAt(record []string, i int) (string, bool) {
	if i >= len(record) {
		return "", false
	}
	v := strings.TrimSpace(record[i])
	return v, v != ""
}

// Labels returns the sorted distinct labels.
func (d *Dataset) Labels() []string {
	labels := lo.Uniq(lo.Map(d.Rows, func(r Row, _ int) string { return r.Label }))
	sort.Strings(labels)
	return labels
}

// Len returns the number of rows.
func (d *Dataset) Len() int {
	return len(d.Rows)
}
