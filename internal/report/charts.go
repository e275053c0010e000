package report

import (
	"bytes"
	"fmt"
	"image/color"
	"io"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/annotation.catalog/internal/catalog"
)

var categoryColors = []color.RGBA{
	{R: 31, G: 119, B: 180, A: 255},
	{R: 255, G: 127, B: 14, A: 255},
	{R: 44, G: 160, B: 44, A: 255},
	{R: 214, G: 39, B: 40, A: 255},
}

// AreaHistogram renders a PNG histogram of box areas with one
// translucent series per category.
func AreaHistogram(cat *catalog.Catalog, bins int) ([]byte, error) {
	if len(cat.Annotations) == 0 {
		return nil, ErrNoAnnotations
	}
	if bins < 1 {
		return nil, fmt.Errorf("histogram needs at least one bin, got %d", bins)
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("Box area - %s", cat.Info.Description)
	p.X.Label.Text = "Area (px²)"
	p.Y.Label.Text = "Boxes"

	series := 0
	for _, c := range Build(cat).Categories {
		var vals plotter.Values
		for _, ann := range cat.Annotations {
			if ann.CategoryID == c.ID {
				vals = append(vals, ann.Area)
			}
		}
		if len(vals) == 0 {
			continue
		}
		h, err := plotter.NewHist(vals, bins)
		if err != nil {
			return nil, fmt.Errorf("category %s: %w", c.Name, err)
		}
		col := categoryColors[series%len(categoryColors)]
		col.A = 160
		h.FillColor = col
		h.LineStyle.Width = vg.Points(0.5)
		p.Add(h)
		p.Legend.Add(c.Name, h)
		series++
	}
	p.Legend.Top = true

	wt, err := p.WriterTo(8*vg.Inch, 4*vg.Inch, "png")
	if err != nil {
		return nil, fmt.Errorf("failed to render histogram: %w", err)
	}
	var buf bytes.Buffer
	if _, err := wt.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("failed to render histogram: %w", err)
	}
	return buf.Bytes(), nil
}

// RenderHTML writes an HTML page with the boxes per category and, when
// the report has splits, the boxes per split and category.
func RenderHTML(r *Report, w io.Writer) error {
	names := make([]string, 0, len(r.Categories))
	counts := make([]opts.BarData, 0, len(r.Categories))
	for _, c := range r.Categories {
		names = append(names, c.Name)
		counts = append(counts, opts.BarData{Value: c.Annotations})
	}

	byCategory := charts.NewBar()
	byCategory.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Catalog report", Width: "900px", Height: "480px"}),
		charts.WithTitleOpts(opts.Title{Title: "Boxes per category", Subtitle: fmt.Sprintf("%s images=%d annotations=%d", r.Description, r.Images, r.Annotations)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)
	byCategory.SetXAxis(names).
		AddSeries("boxes", counts,
			charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Position: "top"}),
		)

	page := components.NewPage()
	page.AddCharts(byCategory)

	if len(r.Splits) > 0 {
		splitNames := make([]string, 0, len(r.Splits))
		for _, s := range r.Splits {
			splitNames = append(splitNames, s.Name)
		}
		bySplit := charts.NewBar()
		bySplit.SetGlobalOptions(
			charts.WithInitializationOpts(opts.Initialization{Width: "900px", Height: "480px"}),
			charts.WithTitleOpts(opts.Title{Title: "Boxes per split"}),
			charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
			charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		)
		bySplit.SetXAxis(splitNames)
		for _, name := range names {
			data := make([]opts.BarData, 0, len(r.Splits))
			for _, s := range r.Splits {
				data = append(data, opts.BarData{Value: s.ByCategory[name]})
			}
			bySplit.AddSeries(name, data, charts.WithBarChartOpts(opts.BarChart{Stack: "boxes"}))
		}
		page.AddCharts(bySplit)
	}

	return page.Render(w)
}
