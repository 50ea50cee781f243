// Package chart exports a rendered plot specification to a PNG image.
package chart

import (
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/ada-analyst/console/internal/models"
)

// ErrNoTraces is returned for a figure without any drawable trace.
var ErrNoTraces = errors.New("figure has no traces")

// Trace is the subset of a plot trace the exporter understands.
type Trace struct {
	Type   string
	Name   string
	Mode   string
	X      []any
	Y      []any
	Labels []any
	Values []any
}

// Spec is a parsed figure.
type Spec struct {
	Title  string
	XTitle string
	YTitle string
	Traces []Trace
}

type rawTrace struct {
	Type   string          `json:"type"`
	Name   string          `json:"name"`
	Mode   string          `json:"mode"`
	X      json.RawMessage `json:"x"`
	Y      json.RawMessage `json:"y"`
	Labels json.RawMessage `json:"labels"`
	Values json.RawMessage `json:"values"`
}

type rawLayout struct {
	Title json.RawMessage `json:"title"`
	XAxis struct {
		Title json.RawMessage `json:"title"`
	} `json:"xaxis"`
	YAxis struct {
		Title json.RawMessage `json:"title"`
	} `json:"yaxis"`
}

// typedArray is the compact {dtype, bdata} array encoding produced by newer
// plotting libraries for numeric columns.
type typedArray struct {
	Dtype string `json:"dtype"`
	Bdata string `json:"bdata"`
}

// Parse decodes a figure into a Spec.
func Parse(fig *models.Figure) (*Spec, error) {
	if fig.Empty() {
		return nil, ErrNoTraces
	}

	var raws []rawTrace
	if err := json.Unmarshal(fig.Data, &raws); err != nil {
		return nil, fmt.Errorf("decoding figure data: %w", err)
	}

	spec := &Spec{}
	if len(fig.Layout) > 0 {
		var layout rawLayout
		if err := json.Unmarshal(fig.Layout, &layout); err != nil {
			return nil, fmt.Errorf("decoding figure layout: %w", err)
		}
		spec.Title = titleText(layout.Title)
		spec.XTitle = titleText(layout.XAxis.Title)
		spec.YTitle = titleText(layout.YAxis.Title)
	}

	for i, rt := range raws {
		tr := Trace{Type: strings.ToLower(rt.Type), Name: rt.Name, Mode: rt.Mode}
		if tr.Type == "" {
			tr.Type = "scatter"
		}
		var err error
		if tr.X, err = decodeArray(rt.X); err != nil {
			return nil, fmt.Errorf("trace %d x: %w", i, err)
		}
		if tr.Y, err = decodeArray(rt.Y); err != nil {
			return nil, fmt.Errorf("trace %d y: %w", i, err)
		}
		if tr.Labels, err = decodeArray(rt.Labels); err != nil {
			return nil, fmt.Errorf("trace %d labels: %w", i, err)
		}
		if tr.Values, err = decodeArray(rt.Values); err != nil {
			return nil, fmt.Errorf("trace %d values: %w", i, err)
		}
		spec.Traces = append(spec.Traces, tr)
	}

	if len(spec.Traces) == 0 {
		return nil, ErrNoTraces
	}
	return spec, nil
}

func titleText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s
	}
	var obj struct {
		Text string `json:"text"`
	}
	if json.Unmarshal(raw, &obj) == nil {
		return obj.Text
	}
	return ""
}

func decodeArray(raw json.RawMessage) ([]any, error) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return nil, nil
	}

	switch trimmed[0] {
	case '[':
		var out []any
		if err := json.Unmarshal(raw, &out); err != nil {
			return nil, err
		}
		return out, nil
	case '{':
		var ta typedArray
		if err := json.Unmarshal(raw, &ta); err != nil {
			return nil, err
		}
		return decodeTyped(ta)
	default:
		return nil, fmt.Errorf("unsupported array encoding")
	}
}

func decodeTyped(ta typedArray) ([]any, error) {
	buf, err := base64.StdEncoding.DecodeString(ta.Bdata)
	if err != nil {
		return nil, fmt.Errorf("decoding bdata: %w", err)
	}

	var size int
	var read func([]byte) float64
	le := binary.LittleEndian
	switch ta.Dtype {
	case "f8":
		size, read = 8, func(b []byte) float64 { return math.Float64frombits(le.Uint64(b)) }
	case "f4":
		size, read = 4, func(b []byte) float64 { return float64(math.Float32frombits(le.Uint32(b))) }
	case "i4":
		size, read = 4, func(b []byte) float64 { return float64(int32(le.Uint32(b))) }
	case "u4":
		size, read = 4, func(b []byte) float64 { return float64(le.Uint32(b)) }
	case "i2":
		size, read = 2, func(b []byte) float64 { return float64(int16(le.Uint16(b))) }
	case "u2":
		size, read = 2, func(b []byte) float64 { return float64(le.Uint16(b)) }
	case "i1":
		size, read = 1, func(b []byte) float64 { return float64(int8(b[0])) }
	case "u1", "u1c":
		size, read = 1, func(b []byte) float64 { return float64(b[0]) }
	default:
		return nil, fmt.Errorf("unsupported dtype %q", ta.Dtype)
	}

	if len(buf)%size != 0 {
		return nil, fmt.Errorf("bdata length %d is not a multiple of %d", len(buf), size)
	}
	out := make([]any, 0, len(buf)/size)
	for i := 0; i < len(buf); i += size {
		out = append(out, read(buf[i:i+size]))
	}
	return out, nil
}

// floats converts values to float64. It reports false if any value is not
// numeric; nulls become NaN.
func floats(values []any) ([]float64, bool) {
	out := make([]float64, len(values))
	for i, v := range values {
		switch n := v.(type) {
		case float64:
			out[i] = n
		case nil:
			out[i] = math.NaN()
		case bool:
			if n {
				out[i] = 1
			}
		default:
			return nil, false
		}
	}
	return out, true
}

func labels(values []any) []string {
	out := make([]string, len(values))
	for i, v := range values {
		switch s := v.(type) {
		case string:
			out[i] = s
		case float64:
			out[i] = strconv.FormatFloat(s, 'g', -1, 64)
		case nil:
			out[i] = ""
		default:
			out[i] = fmt.Sprint(s)
		}
	}
	return out
}
