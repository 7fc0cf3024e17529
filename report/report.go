// Package report renders result tables as standalone pgfplots documents.
package report

import (
	"bytes"
	"fmt"
	"sort"
	"strconv"
	"text/template"
	"time"

	"gonum.org/v1/gonum/stat"

	"advbnn/report/mappings"
	"advbnn/report/templates"
	"advbnn/results"
	"advbnn/utils"
)

// LineOptions configures Lineplot.
type LineOptions struct {
	Title  string
	Source string
	X      string   // default "epsilon"
	Y      []string // default adv_acc and softmax_rob
	Style  string   // column splitting the series, default "n_samples"
}

func (o *LineOptions) defaults() {
	if o.X == "" {
		o.X = "epsilon"
	}
	if len(o.Y) == 0 {
		o.Y = []string{"adv_acc", "softmax_rob"}
	}
	if o.Style == "" {
		o.Style = "n_samples"
	}
}

// ScatterOptions configures Scatterplot.
type ScatterOptions struct {
	Title  string
	Source string
	X      string // default "test_acc"
	Y      string // default "softmax_rob"
	Hue    string // default "n_samples"
	Style  string // default "hidden_size"
}

func (o *ScatterOptions) defaults() {
	if o.X == "" {
		o.X = "test_acc"
	}
	if o.Y == "" {
		o.Y = "softmax_rob"
	}
	if o.Hue == "" {
		o.Hue = "n_samples"
	}
	if o.Style == "" {
		o.Style = "hidden_size"
	}
}

// Lineplot draws one axis per Y column; every series is a value of the style column and
// plots the mean of Y over the rows sharing each X value.
func Lineplot(t *results.Table, opts LineOptions) (string, error) {
	opts.defaults()
	if t.Len() == 0 {
		return "", fmt.Errorf("cannot plot an empty table")
	}
	groups, order, err := groupBy(t, opts.Style)
	if err != nil {
		return "", err
	}
	data := templates.LineplotData{
		GeneratedDate: time.Now().Format(time.RFC3339),
		Source:        opts.Source,
		Title:         opts.Title,
		XLabel:        mappings.GetColumnMapping(opts.X).Label,
	}
	for _, y := range opts.Y {
		m := mappings.GetColumnMapping(y)
		axis := templates.Axis{YLabel: m.Label}
		lo, hi := 0.0, 0.0
		for i, label := range order {
			xs, ys, err := meanBy(groups[label], opts.X, y)
			if err != nil {
				return "", err
			}
			coords := make([]string, len(xs))
			for k := range xs {
				coords[k] = coord(xs[k], ys[k])
				if (i == 0 && k == 0) || ys[k] < lo {
					lo = ys[k]
				}
				if (i == 0 && k == 0) || ys[k] > hi {
					hi = ys[k]
				}
			}
			axis.Series = append(axis.Series, templates.Series{
				LegendEntry: mappings.GetColumnMapping(opts.Style).Label + " = " + label,
				Style:       fmt.Sprintf("%s, mark=%s, %s", mappings.GetColor(i), mappings.GetMark(i), mappings.GetLineStyle(i)),
				Coordinates: coords,
			})
		}
		axis.YMin, axis.YMax = bound(m.Min, lo, hi, false), bound(m.Max, lo, hi, true)
		data.Axes = append(data.Axes, axis)
	}
	return render("lineplot", templates.LineplotTemplate, data)
}

// Scatterplot draws every row as a point, one series per (hue, style) pair:
// hue picks the colour, style the mark.
func Scatterplot(t *results.Table, opts ScatterOptions) (string, error) {
	opts.defaults()
	if t.Len() == 0 {
		return "", fmt.Errorf("cannot plot an empty table")
	}
	hues, hueOrder, err := groupBy(t, opts.Hue)
	if err != nil {
		return "", err
	}
	styleIdx := map[string]int{}
	_, styleOrder, err := groupBy(t, opts.Style)
	if err != nil {
		return "", err
	}
	for i, s := range styleOrder {
		styleIdx[s] = i
	}

	xm, ym := mappings.GetColumnMapping(opts.X), mappings.GetColumnMapping(opts.Y)
	data := templates.ScatterData{
		GeneratedDate: time.Now().Format(time.RFC3339),
		Source:        opts.Source,
		Title:         opts.Title,
		XLabel:        xm.Label,
		YLabel:        ym.Label,
	}
	var allX, allY []float64
	for h, hue := range hueOrder {
		byStyle, order, err := groupBy(&results.Table{Records: hues[hue]}, opts.Style)
		if err != nil {
			return "", err
		}
		for _, style := range order {
			s := templates.Series{
				LegendEntry: fmt.Sprintf("%s = %s, %s = %s", mappings.GetColumnMapping(opts.Hue).Label, hue, mappings.GetColumnMapping(opts.Style).Label, style),
				Style:       fmt.Sprintf("%s, mark=%s", mappings.GetColor(h), mappings.GetMark(styleIdx[style])),
			}
			for _, r := range byStyle[style] {
				x, err := r.Value(opts.X)
				if err != nil {
					return "", err
				}
				y, err := r.Value(opts.Y)
				if err != nil {
					return "", err
				}
				allX, allY = append(allX, x), append(allY, y)
				s.Coordinates = append(s.Coordinates, coord(x, y))
			}
			data.Series = append(data.Series, s)
		}
	}
	xlo, xhi := extent(allX)
	ylo, yhi := extent(allY)
	data.XMin, data.XMax = bound(xm.Min, xlo, xhi, false), bound(xm.Max, xlo, xhi, true)
	data.YMin, data.YMax = bound(ym.Min, ylo, yhi, false), bound(ym.Max, ylo, yhi, true)
	return render("scatterplot", templates.ScatterTemplate, data)
}

// Write stores a rendered document at path.
func Write(path, doc string) error {
	return utils.WriteFileAtomic(path, []byte(doc))
}

func render(name, tmpl string, data interface{}) (string, error) {
	t, err := template.New(name).Parse(tmpl)
	if err != nil {
		return "", fmt.Errorf("failed to parse %s template: %w", name, err)
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to execute %s template: %w", name, err)
	}
	return buf.String(), nil
}

// groupBy splits records by the formatted value of column; order is sorted numerically
// when every label parses as a number, lexically otherwise.
func groupBy(t *results.Table, column string) (map[string][]results.Record, []string, error) {
	groups := map[string][]results.Record{}
	var order []string
	for _, r := range t.Records {
		label, err := r.Label(column)
		if err != nil {
			return nil, nil, err
		}
		if _, ok := groups[label]; !ok {
			order = append(order, label)
		}
		groups[label] = append(groups[label], r)
	}
	sort.SliceStable(order, func(i, j int) bool {
		a, errA := strconv.ParseFloat(order[i], 64)
		b, errB := strconv.ParseFloat(order[j], 64)
		if errA == nil && errB == nil {
			return a < b
		}
		return order[i] < order[j]
	})
	return groups, order, nil
}

// meanBy returns the sorted distinct values of x and the mean of y at each.
func meanBy(records []results.Record, x, y string) ([]float64, []float64, error) {
	vals := map[float64][]float64{}
	for _, r := range records {
		xv, err := r.Value(x)
		if err != nil {
			return nil, nil, err
		}
		yv, err := r.Value(y)
		if err != nil {
			return nil, nil, err
		}
		vals[xv] = append(vals[xv], yv)
	}
	xs := make([]float64, 0, len(vals))
	for xv := range vals {
		xs = append(xs, xv)
	}
	sort.Float64s(xs)
	ys := make([]float64, len(xs))
	for i, xv := range xs {
		ys[i] = stat.Mean(vals[xv], nil)
	}
	return xs, ys, nil
}

func extent(v []float64) (lo, hi float64) {
	if len(v) == 0 {
		return 0, 1
	}
	lo, hi = v[0], v[0]
	for _, x := range v[1:] {
		lo, hi = min(lo, x), max(hi, x)
	}
	return lo, hi
}

// bound resolves a mapping limit; "auto" pads the data range by 5%.
func bound(limit interface{}, lo, hi float64, upper bool) string {
	if f, ok := limit.(float64); ok {
		return strconv.FormatFloat(f, 'g', -1, 64)
	}
	pad := 0.05 * (hi - lo)
	if pad == 0 {
		pad = 0.5
	}
	if upper {
		return strconv.FormatFloat(hi+pad, 'g', 6, 64)
	}
	return strconv.FormatFloat(lo-pad, 'g', 6, 64)
}

func coord(x, y float64) string {
	return fmt.Sprintf("(%s,%s)", strconv.FormatFloat(x, 'g', -1, 64), strconv.FormatFloat(y, 'g', 6, 64))
}
