package charts

import (
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"

	echarts "github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/google/uuid"
)

// Known chart tags. The planner's enumeration is advisory: models are
// instructed to mirror the user's own wording, so tags arrive in
// variants like "bar_chart" or "scatter plot". Unknown tags resolve to
// auto-detection instead of being rejected.
const (
	TagBar           = "bar"
	TagHorizontalBar = "horizontal_bar"
	TagLine          = "line"
	TagArea          = "area"
	TagPie           = "pie"
	TagScatter       = "scatter"
	TagHistogram     = "histogram"
	TagCount         = "count"
)

var knownTags = map[string]bool{
	TagBar:           true,
	TagHorizontalBar: true,
	TagLine:          true,
	TagArea:          true,
	TagPie:           true,
	TagScatter:       true,
	TagHistogram:     true,
	TagCount:         true,
}

// Normalize maps a model-supplied chart tag onto the known set.
// Returns "" when the tag is empty or unrecognized, which callers
// treat as "auto-detect".
func Normalize(tag string) string {
	tag = strings.ToLower(strings.TrimSpace(tag))
	tag = strings.ReplaceAll(tag, " ", "_")
	for _, suffix := range []string{"_chart", "_plot", "_graph"} {
		tag = strings.TrimSuffix(tag, suffix)
	}
	if knownTags[tag] {
		return tag
	}
	return ""
}

// Renderer writes charts as standalone HTML files under a fixed
// directory and returns their paths.
type Renderer struct {
	dir string
}

type renderable interface {
	Render(w io.Writer) error
}

func NewRenderer(dir string) *Renderer {
	return &Renderer{dir: dir}
}

// Render produces a chart for the given tag over parallel label/value
// slices. An unknown or empty tag auto-detects: histograms need no
// labels, everything else defaults to a bar chart.
func (r *Renderer) Render(tag, title string, labels []string, values []float64) (string, error) {
	if len(values) == 0 {
		return "", fmt.Errorf("no values to chart")
	}

	tag = Normalize(tag)
	if tag == "" {
		if len(labels) == 0 {
			tag = TagHistogram
		} else {
			tag = TagBar
		}
	}
	if len(labels) == 0 && tag != TagHistogram {
		labels = defaultLabels(len(values))
	}

	var chart renderable

	switch tag {
	case TagBar, TagCount:
		chart = barChart(title, labels, values, false)
	case TagHorizontalBar:
		chart = barChart(title, labels, values, true)
	case TagLine:
		chart = lineChart(title, labels, values, false)
	case TagArea:
		chart = lineChart(title, labels, values, true)
	case TagPie:
		chart = pieChart(title, labels, values)
	case TagScatter:
		chart = scatterChart(title, labels, values)
	case TagHistogram:
		binLabels, counts := histogram(values, 10)
		chart = barChart(title, binLabels, counts, false)
	default:
		chart = barChart(title, labels, values, false)
	}

	if err := os.MkdirAll(r.dir, 0755); err != nil {
		return "", err
	}
	path := filepath.Join(r.dir, uuid.NewString()+".html")

	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	if err := chart.Render(f); err != nil {
		return "", err
	}
	return path, nil
}

func barChart(title string, labels []string, values []float64, horizontal bool) *echarts.Bar {
	bar := echarts.NewBar()
	bar.SetGlobalOptions(echarts.WithTitleOpts(opts.Title{Title: title}))

	data := make([]opts.BarData, len(values))
	for i, v := range values {
		data[i] = opts.BarData{Value: v}
	}
	bar.SetXAxis(labels).AddSeries("value", data)
	if horizontal {
		bar.XYReversal()
	}
	return bar
}

func lineChart(title string, labels []string, values []float64, area bool) *echarts.Line {
	line := echarts.NewLine()
	line.SetGlobalOptions(echarts.WithTitleOpts(opts.Title{Title: title}))

	data := make([]opts.LineData, len(values))
	for i, v := range values {
		data[i] = opts.LineData{Value: v}
	}
	line.SetXAxis(labels).AddSeries("value", data)
	if area {
		line.SetSeriesOptions(echarts.WithAreaStyleOpts(opts.AreaStyle{Opacity: 0.3}))
	}
	return line
}

func pieChart(title string, labels []string, values []float64) *echarts.Pie {
	pie := echarts.NewPie()
	pie.SetGlobalOptions(echarts.WithTitleOpts(opts.Title{Title: title}))

	data := make([]opts.PieData, len(values))
	for i, v := range values {
		data[i] = opts.PieData{Name: labels[i], Value: v}
	}
	pie.AddSeries("value", data)
	return pie
}

func scatterChart(title string, labels []string, values []float64) *echarts.Scatter {
	scatter := echarts.NewScatter()
	scatter.SetGlobalOptions(echarts.WithTitleOpts(opts.Title{Title: title}))

	data := make([]opts.ScatterData, len(values))
	for i, v := range values {
		data[i] = opts.ScatterData{Value: v}
	}
	scatter.SetXAxis(labels).AddSeries("value", data)
	return scatter
}

func histogram(values []float64, bins int) ([]string, []float64) {
	min, max := values[0], values[0]
	for _, v := range values[1:] {
		min = math.Min(min, v)
		max = math.Max(max, v)
	}
	if min == max {
		return []string{fmt.Sprintf("%.4g", min)}, []float64{float64(len(values))}
	}

	width := (max - min) / float64(bins)
	counts := make([]float64, bins)
	labels := make([]string, bins)
	for i := range labels {
		labels[i] = fmt.Sprintf("%.4g–%.4g", min+float64(i)*width, min+float64(i+1)*width)
	}
	for _, v := range values {
		idx := int((v - min) / width)
		if idx >= bins {
			idx = bins - 1
		}
		counts[idx]++
	}
	return labels, counts
}

func defaultLabels(n int) []string {
	labels := make([]string, n)
	for i := range labels {
		labels[i] = fmt.Sprintf("%d", i+1)
	}
	return labels
}
