package chart

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	gochart "github.com/wcharczuk/go-chart/v2"

	"github.com/ada-analyst/console/internal/models"
)

// Fixed export size of the chart image.
const (
	ImageWidth  = 1000
	ImageHeight = 600
)

// maxTicks caps the number of category labels drawn on the x axis.
const maxTicks = 20

// Exporter turns a figure into PNG bytes.
type Exporter interface {
	ExportPNG(ctx context.Context, fig *models.Figure, width, height int) ([]byte, error)
}

// Renderer draws figures with go-chart.
type Renderer struct{}

// NewRenderer creates a Renderer.
func NewRenderer() *Renderer {
	return &Renderer{}
}

// ExportPNG renders fig at the given size.
func (r *Renderer) ExportPNG(ctx context.Context, fig *models.Figure, width, height int) (img []byte, err error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid image size %dx%d", width, height)
	}

	spec, err := Parse(fig)
	if err != nil {
		return nil, err
	}

	// go-chart panics on some degenerate inputs instead of returning errors.
	defer func() {
		if rec := recover(); rec != nil {
			img, err = nil, fmt.Errorf("rendering chart: %v", rec)
		}
	}()

	var buf bytes.Buffer
	switch spec.Traces[0].Type {
	case "bar":
		err = renderBar(&buf, spec, width, height)
	case "pie":
		err = renderPie(&buf, spec, width, height)
	case "histogram":
		err = renderHistogram(&buf, spec, width, height)
	default:
		err = renderXY(&buf, spec, width, height)
	}
	if err != nil {
		return nil, fmt.Errorf("rendering chart: %w", err)
	}
	return buf.Bytes(), nil
}

func renderBar(buf *bytes.Buffer, spec *Spec, width, height int) error {
	var bars []gochart.Value
	multi := countType(spec, "bar") > 1

	for _, tr := range spec.Traces {
		if tr.Type != "bar" {
			continue
		}
		ys, ok := floats(tr.Y)
		if !ok {
			return fmt.Errorf("bar values must be numeric")
		}
		xs := labels(tr.X)
		for i, y := range ys {
			if math.IsNaN(y) {
				continue
			}
			label := ""
			if i < len(xs) {
				label = xs[i]
			}
			if multi && tr.Name != "" {
				label = fmt.Sprintf("%s (%s)", label, tr.Name)
			}
			bars = append(bars, gochart.Value{Value: y, Label: label})
		}
	}
	if len(bars) == 0 {
		return ErrNoTraces
	}

	return barChart(spec.Title, bars, width, height).Render(gochart.PNG, buf)
}

func renderHistogram(buf *bytes.Buffer, spec *Spec, width, height int) error {
	tr := spec.Traces[0]
	raw := tr.X
	if len(raw) == 0 {
		raw = tr.Y
	}
	values, ok := floats(raw)
	if !ok {
		return fmt.Errorf("histogram values must be numeric")
	}

	var clean []float64
	for _, v := range values {
		if !math.IsNaN(v) {
			clean = append(clean, v)
		}
	}
	if len(clean) == 0 {
		return ErrNoTraces
	}

	return barChart(spec.Title, Histogram(clean), width, height).Render(gochart.PNG, buf)
}

// Histogram bins values with Sturges' rule and labels each bin by its lower
// edge.
func Histogram(values []float64) []gochart.Value {
	lo, hi := values[0], values[0]
	for _, v := range values {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}

	bins := int(math.Ceil(math.Log2(float64(len(values))))) + 1
	if bins > 30 {
		bins = 30
	}
	if hi == lo {
		bins = 1
	}
	step := (hi - lo) / float64(bins)

	counts := make([]float64, bins)
	for _, v := range values {
		i := bins - 1
		if step > 0 {
			i = int((v - lo) / step)
			if i >= bins {
				i = bins - 1
			}
		}
		counts[i]++
	}

	out := make([]gochart.Value, bins)
	for i := range counts {
		out[i] = gochart.Value{Value: counts[i], Label: fmt.Sprintf("%.3g", lo+float64(i)*step)}
	}
	return out
}

func barChart(title string, bars []gochart.Value, width, height int) gochart.BarChart {
	avail := width - 120
	slot := avail / len(bars)
	if slot < 2 {
		slot = 2
	}
	barWidth := slot * 2 / 3
	if barWidth < 1 {
		barWidth = 1
	}

	// Bars grow from zero, so the value range always includes it.
	lo, hi := 0.0, 0.0
	for _, b := range bars {
		lo = math.Min(lo, b.Value)
		hi = math.Max(hi, b.Value)
	}
	if lo == hi {
		hi = lo + 1
	}

	return gochart.BarChart{
		Title:      title,
		Width:      width,
		Height:     height,
		BarWidth:   barWidth,
		BarSpacing: slot - barWidth,
		Background: gochart.Style{Padding: gochart.Box{Top: 60, Left: 20, Right: 20, Bottom: 20}},
		YAxis:      gochart.YAxis{Range: &gochart.ContinuousRange{Min: lo, Max: hi * 1.1}},
		Bars:       bars,
	}
}

func renderPie(buf *bytes.Buffer, spec *Spec, width, height int) error {
	tr := spec.Traces[0]
	values, ok := floats(tr.Values)
	if !ok {
		return fmt.Errorf("pie values must be numeric")
	}
	names := labels(tr.Labels)

	var slices []gochart.Value
	for i, v := range values {
		if math.IsNaN(v) || v <= 0 {
			continue
		}
		label := ""
		if i < len(names) {
			label = names[i]
		}
		slices = append(slices, gochart.Value{Value: v, Label: label})
	}
	if len(slices) == 0 {
		return ErrNoTraces
	}

	pie := gochart.PieChart{
		Title:  spec.Title,
		Width:  width,
		Height: height,
		Values: slices,
	}
	return pie.Render(gochart.PNG, buf)
}

func renderXY(buf *bytes.Buffer, spec *Spec, width, height int) error {
	graph := gochart.Chart{
		Title:      spec.Title,
		Width:      width,
		Height:     height,
		Background: gochart.Style{Padding: gochart.Box{Top: 60, Left: 20, Right: 20, Bottom: 20}},
		XAxis:      gochart.XAxis{Name: spec.XTitle},
		YAxis:      gochart.YAxis{Name: spec.YTitle},
	}

	categories := map[string]int{}
	var order []string
	var xr, yr extent
	timeAxis := false

	for _, tr := range spec.Traces {
		ys, ok := floats(tr.Y)
		if !ok {
			return fmt.Errorf("y values of %q must be numeric", tr.Name)
		}
		style := lineStyle(tr)

		if xs, ok := floats(tr.X); ok && len(tr.X) > 0 {
			x, y := dropNaN(xs, ys)
			xr.add(x...)
			yr.add(y...)
			graph.Series = append(graph.Series, gochart.ContinuousSeries{Name: tr.Name, Style: style, XValues: x, YValues: y})
			continue
		}
		if ts, ok := times(tr.X); ok {
			var tx []time.Time
			var ty []float64
			for i, t := range ts {
				if i < len(ys) && !math.IsNaN(ys[i]) {
					tx = append(tx, t)
					ty = append(ty, ys[i])
					xr.add(gochart.TimeToFloat64(t))
				}
			}
			yr.add(ty...)
			timeAxis = true
			graph.Series = append(graph.Series, gochart.TimeSeries{Name: tr.Name, Style: style, XValues: tx, YValues: ty})
			continue
		}

		// Categorical x: plot against category positions.
		names := labels(tr.X)
		if len(names) == 0 {
			names = make([]string, len(ys))
			for i := range names {
				names[i] = fmt.Sprint(i)
			}
		}
		xs := make([]float64, len(names))
		for i, name := range names {
			pos, seen := categories[name]
			if !seen {
				pos = len(order)
				categories[name] = pos
				order = append(order, name)
			}
			xs[i] = float64(pos)
		}
		x, y := dropNaN(xs, ys)
		xr.add(x...)
		yr.add(y...)
		graph.Series = append(graph.Series, gochart.ContinuousSeries{Name: tr.Name, Style: style, XValues: x, YValues: y})
	}

	if len(graph.Series) == 0 || !xr.valid {
		return ErrNoTraces
	}

	// go-chart cannot scale an axis whose values are all equal.
	if xr.flat() {
		pad := 0.5
		if timeAxis {
			t0 := time.Unix(0, 0)
			pad = gochart.TimeToFloat64(t0.Add(12*time.Hour)) - gochart.TimeToFloat64(t0)
		}
		graph.XAxis.Range = xr.padded(pad)
	}
	if yr.flat() {
		pad := math.Abs(yr.min) * 0.1
		if pad == 0 {
			pad = 1
		}
		graph.YAxis.Range = yr.padded(pad)
	}
	if len(order) > 0 {
		graph.XAxis.Ticks = categoryTicks(order)
	}
	if len(graph.Series) > 1 {
		graph.Elements = []gochart.Renderable{gochart.Legend(&graph)}
	}

	return graph.Render(gochart.PNG, buf)
}

// extent tracks the smallest and largest value seen on one axis.
type extent struct {
	min, max float64
	valid    bool
}

func (e *extent) add(vs ...float64) {
	for _, v := range vs {
		if !e.valid {
			e.min, e.max, e.valid = v, v, true
			continue
		}
		e.min = math.Min(e.min, v)
		e.max = math.Max(e.max, v)
	}
}

func (e extent) flat() bool {
	return e.valid && e.min == e.max
}

func (e extent) padded(pad float64) *gochart.ContinuousRange {
	return &gochart.ContinuousRange{Min: e.min - pad, Max: e.max + pad}
}

func lineStyle(tr Trace) gochart.Style {
	if strings.Contains(tr.Mode, "markers") && !strings.Contains(tr.Mode, "lines") {
		return gochart.Style{StrokeWidth: gochart.Disabled, DotWidth: 4}
	}
	return gochart.Style{StrokeWidth: 2}
}

func categoryTicks(order []string) []gochart.Tick {
	stride := 1
	if len(order) > maxTicks {
		stride = (len(order) + maxTicks - 1) / maxTicks
	}
	var ticks []gochart.Tick
	for i := 0; i < len(order); i += stride {
		ticks = append(ticks, gochart.Tick{Value: float64(i), Label: order[i]})
	}
	return ticks
}

func dropNaN(xs, ys []float64) ([]float64, []float64) {
	var x, y []float64
	for i := range xs {
		if i >= len(ys) || math.IsNaN(xs[i]) || math.IsNaN(ys[i]) {
			continue
		}
		x = append(x, xs[i])
		y = append(y, ys[i])
	}
	return x, y
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func times(values []any) ([]time.Time, bool) {
	if len(values) == 0 {
		return nil, false
	}
	out := make([]time.Time, len(values))
	for i, v := range values {
		s, ok := v.(string)
		if !ok {
			return nil, false
		}
		t, err := parseTime(s)
		if err != nil {
			return nil, false
		}
		out[i] = t
	}
	return out, true
}

func parseTime(s string) (time.Time, error) {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, errors.New("not a time")
}

func countType(spec *Spec, typ string) int {
	n := 0
	for _, tr := range spec.Traces {
		if tr.Type == typ {
			n++
		}
	}
	return n
}
