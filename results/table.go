// Package results collects per-input attack outcomes into a CSV-backed table.
package results

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"strconv"

	"advbnn/attack"
	"advbnn/models"
	"advbnn/utils"
)

// Columns is the fixed header of every result table.
var Columns = []string{
	"model", "dataset", "hidden_size", "activation", "architecture", "epochs", "lr", "n_inputs", "seed",
	"attack_method", "epsilon", "n_samples", "input_idx", "test_acc", "adv_acc", "softmax_rob",
}

// Point is one sweep coordinate: a trained model plus the attack applied to it.
type Point struct {
	models.Hyperparams
	Method   string
	Epsilon  float64
	NSamples int
}

// Record is one row: the sweep point, the attacked input and its outcome.
// TestAcc and AdvAcc are batch-level values repeated on every row of the batch.
type Record struct {
	Point
	InputIdx   int
	TestAcc    float64
	AdvAcc     float64
	SoftmaxRob float64
}

// Table is an ordered, append-only collection of records.
type Table struct {
	Records []Record
}

func (t *Table) Len() int { return len(t.Records) }

// Record appends one row per element of m.Robustness.
func (t *Table) Record(p Point, m attack.Metrics) {
	for i, r := range m.Robustness {
		t.Records = append(t.Records, Record{
			Point:      p,
			InputIdx:   i,
			TestAcc:    m.TestAcc,
			AdvAcc:     m.AdvAcc,
			SoftmaxRob: r,
		})
	}
}

// Append adds every record of other.
func (t *Table) Append(other *Table) {
	t.Records = append(t.Records, other.Records...)
}

func ftoa(v float64) string { return strconv.FormatFloat(v, 'g', -1, 64) }

func (r Record) row() []string {
	return []string{
		r.Kind, r.Dataset, strconv.Itoa(r.Hidden), r.Activation, r.Architecture,
		strconv.Itoa(r.Epochs), ftoa(r.LR), strconv.Itoa(r.Inputs), strconv.FormatInt(r.Seed, 10),
		r.Method, ftoa(r.Epsilon), strconv.Itoa(r.NSamples), strconv.Itoa(r.InputIdx),
		ftoa(r.TestAcc), ftoa(r.AdvAcc), ftoa(r.SoftmaxRob),
	}
}

// Persist writes the table as CSV with a header, replacing path atomically.
func (t *Table) Persist(path string) error {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(Columns); err != nil {
		return err
	}
	for _, r := range t.Records {
		if err := w.Write(r.row()); err != nil {
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}
	return utils.WriteFileAtomic(path, buf.Bytes())
}

// Load parses a table written by Persist.
func Load(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", path, utils.ErrMissingArtifact)
		}
		return nil, err
	}
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%s: %v: %w", path, err, utils.ErrSchemaMismatch)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%s: empty file: %w", path, utils.ErrSchemaMismatch)
	}
	if err := checkHeader(rows[0]); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	t := &Table{Records: make([]Record, 0, len(rows)-1)}
	for i, row := range rows[1:] {
		r, err := parseRow(row)
		if err != nil {
			return nil, fmt.Errorf("%s line %d: %w", path, i+2, err)
		}
		t.Records = append(t.Records, r)
	}
	return t, nil
}

// Merge concatenates the tables at paths in order.
func Merge(paths ...string) (*Table, error) {
	out := &Table{}
	for _, p := range paths {
		t, err := Load(p)
		if err != nil {
			return nil, err
		}
		out.Append(t)
	}
	return out, nil
}

func checkHeader(h []string) error {
	if len(h) != len(Columns) {
		return fmt.Errorf("header has %d columns, want %d: %w", len(h), len(Columns), utils.ErrSchemaMismatch)
	}
	for i, c := range Columns {
		if h[i] != c {
			return fmt.Errorf("column %d is %q, want %q: %w", i, h[i], c, utils.ErrSchemaMismatch)
		}
	}
	return nil
}

// cellParser accumulates the first parse error so a row can be decoded in one pass.
type cellParser struct {
	row []string
	err error
}

func (p *cellParser) int(i int) int {
	v, err := strconv.Atoi(p.row[i])
	if err != nil && p.err == nil {
		p.err = fmt.Errorf("column %s: %v: %w", Columns[i], err, utils.ErrSchemaMismatch)
	}
	return v
}

func (p *cellParser) float(i int) float64 {
	v, err := strconv.ParseFloat(p.row[i], 64)
	if err != nil && p.err == nil {
		p.err = fmt.Errorf("column %s: %v: %w", Columns[i], err, utils.ErrSchemaMismatch)
	}
	return v
}

func parseRow(row []string) (Record, error) {
	if len(row) != len(Columns) {
		return Record{}, fmt.Errorf("%d cells, want %d: %w", len(row), len(Columns), utils.ErrSchemaMismatch)
	}
	p := &cellParser{row: row}
	r := Record{
		Point: Point{
			Hyperparams: models.Hyperparams{
				Kind:         row[0],
				Dataset:      row[1],
				Hidden:       p.int(2),
				Activation:   row[3],
				Architecture: row[4],
				Epochs:       p.int(5),
				LR:           p.float(6),
				Inputs:       p.int(7),
				Seed:         int64(p.int(8)),
			},
			Method:   row[9],
			Epsilon:  p.float(10),
			NSamples: p.int(11),
		},
		InputIdx:   p.int(12),
		TestAcc:    p.float(13),
		AdvAcc:     p.float(14),
		SoftmaxRob: p.float(15),
	}
	return r, p.err
}

// Value returns the named column of r as a float, for numeric columns.
func (r Record) Value(column string) (float64, error) {
	switch column {
	case "hidden_size":
		return float64(r.Hidden), nil
	case "epochs":
		return float64(r.Epochs), nil
	case "lr":
		return r.LR, nil
	case "n_inputs":
		return float64(r.Inputs), nil
	case "seed":
		return float64(r.Seed), nil
	case "epsilon":
		return r.Epsilon, nil
	case "n_samples":
		return float64(r.NSamples), nil
	case "input_idx":
		return float64(r.InputIdx), nil
	case "test_acc":
		return r.TestAcc, nil
	case "adv_acc":
		return r.AdvAcc, nil
	case "softmax_rob":
		return r.SoftmaxRob, nil
	}
	return 0, fmt.Errorf("column %q is not numeric", column)
}

// Label returns the named column of r formatted as in the CSV file.
func (r Record) Label(column string) (string, error) {
	for i, c := range Columns {
		if c == column {
			return r.row()[i], nil
		}
	}
	return "", fmt.Errorf("unknown column %q", column)
}
