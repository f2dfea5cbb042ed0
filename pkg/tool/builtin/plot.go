// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package builtin

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/teradata-labs/spindle/pkg/artifact"
	"github.com/teradata-labs/spindle/pkg/tool"
)

// PlotRender renders a named table as an SVG chart and stores it as a
// chart artifact.
type PlotRender struct {
	env *Env
}

// NewPlotRender returns the plot.render tool bound to env.
func NewPlotRender(env *Env) *PlotRender { return &PlotRender{env: env} }

func (p *PlotRender) Name() string { return "plot.render" }

func (p *PlotRender) Description() string {
	return "Render a named table as an SVG chart (bar, line, scatter or pie) and store it as an artifact."
}

func (p *PlotRender) InputSchema() *tool.JSONSchema {
	return tool.NewObjectSchema("plot.render input",
		map[string]*tool.JSONSchema{
			"input": tool.NewStringSchema("Name of the table to plot"),
			"type":  tool.NewStringSchema("Chart type").WithEnum("bar", "line", "scatter", "pie"),
			"x_col": tool.NewStringSchema("Column for the x axis (category labels for pie)"),
			"y_col": tool.NewStringSchema("Numeric column for the y axis (slice size for pie)"),
			"title": tool.NewStringSchema("Chart title").WithLength(0, 200),
		},
		[]string{"input", "type", "x_col", "y_col"})
}

const (
	chartWidth   = 640
	chartHeight  = 400
	chartPadding = 48
	maxPoints    = 200
)

func (p *PlotRender) Execute(ctx context.Context, params map[string]any) (*tool.Result, error) {
	t, err := p.env.Table(stringArg(params, "input"))
	if err != nil {
		return errorResult("missing_table", err.Error(),
			"reference the output name of an earlier step", true), nil
	}

	xCol := stringArg(params, "x_col")
	yCol := stringArg(params, "y_col")
	for _, c := range []string{xCol, yCol} {
		if !t.HasColumn(c) {
			return nil, fmt.Errorf("no such column: %s", c)
		}
	}
	if len(t.Rows) == 0 {
		return errorResult("empty_input", "cannot plot an empty table",
			"check the filters applied in earlier steps", true), nil
	}

	rows := t.Rows
	if len(rows) > maxPoints {
		rows = rows[:maxPoints]
	}
	labels := make([]string, len(rows))
	values := make([]float64, len(rows))
	for i, row := range rows {
		labels[i] = fmt.Sprint(row[xCol])
		f, ok := numeric(row[yCol])
		if !ok {
			return nil, fmt.Errorf("type mismatch: column %s has non-numeric value %v", yCol, row[yCol])
		}
		values[i] = f
	}

	chartType := stringArg(params, "type")
	title := stringArg(params, "title")
	if title == "" {
		title = fmt.Sprintf("%s by %s", yCol, xCol)
	}

	var svg string
	switch chartType {
	case "bar":
		svg = renderBar(title, labels, values)
	case "line", "scatter":
		svg = renderXY(title, chartType, labels, values)
	case "pie":
		svg = renderPie(title, labels, values)
	default:
		return nil, fmt.Errorf("unknown chart type: %s", chartType)
	}

	name := fmt.Sprintf("%s_%s.svg", sanitizeName(chartType), sanitizeName(yCol))
	a, err := p.env.Artifacts.Put(ctx, p.env.RequestID, artifact.KindChart, name,
		"image/svg+xml", []byte(svg), map[string]string{
			"chart_type": chartType,
			"x_col":      xCol,
			"y_col":      yCol,
			"title":      title,
		})
	if err != nil {
		return nil, fmt.Errorf("failed to store chart: %w", err)
	}

	return &tool.Result{
		Success:  true,
		Data:     map[string]any{"artifact_id": a.ID, "path": a.Path},
		RowCount: len(rows),
		Metadata: map[string]any{"chart_type": chartType, "checksum": a.Checksum},
	}, nil
}

func renderBar(title string, labels []string, values []float64) string {
	var b strings.Builder
	svgHeader(&b, title)

	maxVal := maxOf(values)
	if maxVal <= 0 {
		maxVal = 1
	}
	plotW := float64(chartWidth - 2*chartPadding)
	plotH := float64(chartHeight - 2*chartPadding)
	barW := plotW / float64(len(values))

	for i, v := range values {
		h := plotH * (v / maxVal)
		if h < 0 {
			h = 0
		}
		x := float64(chartPadding) + float64(i)*barW
		y := float64(chartHeight-chartPadding) - h
		fmt.Fprintf(&b, `<rect x="%.1f" y="%.1f" width="%.1f" height="%.1f" fill="#4472c4"/>`,
			x+1, y, barW-2, h)
		b.WriteString("\n")
		svgLabel(&b, x+barW/2, float64(chartHeight-chartPadding)+14, labels[i])
	}
	svgAxes(&b, maxVal)
	b.WriteString("</svg>\n")
	return b.String()
}

func renderXY(title, kind string, labels []string, values []float64) string {
	var b strings.Builder
	svgHeader(&b, title)

	maxVal := maxOf(values)
	minVal := minOf(values)
	if maxVal == minVal {
		maxVal = minVal + 1
	}
	plotW := float64(chartWidth - 2*chartPadding)
	plotH := float64(chartHeight - 2*chartPadding)

	points := make([][2]float64, len(values))
	for i, v := range values {
		x := float64(chartPadding)
		if len(values) > 1 {
			x += plotW * float64(i) / float64(len(values)-1)
		}
		y := float64(chartHeight-chartPadding) - plotH*(v-minVal)/(maxVal-minVal)
		points[i] = [2]float64{x, y}
	}

	if kind == "line" {
		var path strings.Builder
		for i, pt := range points {
			cmd := "L"
			if i == 0 {
				cmd = "M"
			}
			fmt.Fprintf(&path, "%s%.1f,%.1f ", cmd, pt[0], pt[1])
		}
		fmt.Fprintf(&b, `<path d="%s" fill="none" stroke="#4472c4" stroke-width="2"/>`,
			strings.TrimSpace(path.String()))
		b.WriteString("\n")
	}
	for i, pt := range points {
		fmt.Fprintf(&b, `<circle cx="%.1f" cy="%.1f" r="3" fill="#4472c4"/>`, pt[0], pt[1])
		b.WriteString("\n")
		if len(points) <= 20 {
			svgLabel(&b, pt[0], float64(chartHeight-chartPadding)+14, labels[i])
		}
	}
	svgAxes(&b, maxVal)
	b.WriteString("</svg>\n")
	return b.String()
}

func renderPie(title string, labels []string, values []float64) string {
	var b strings.Builder
	svgHeader(&b, title)

	var total float64
	for _, v := range values {
		if v > 0 {
			total += v
		}
	}
	if total == 0 {
		total = 1
	}
	cx, cy, r := float64(chartWidth)/2, float64(chartHeight)/2, 140.0
	palette := []string{"#4472c4", "#ed7d31", "#a5a5a5", "#ffc000", "#5b9bd5", "#70ad47", "#264478", "#9e480e"}

	angle := -math.Pi / 2
	for i, v := range values {
		if v <= 0 {
			continue
		}
		frac := v / total
		next := angle + frac*2*math.Pi
		x1, y1 := cx+r*math.Cos(angle), cy+r*math.Sin(angle)
		x2, y2 := cx+r*math.Cos(next), cy+r*math.Sin(next)
		large := 0
		if frac > 0.5 {
			large = 1
		}
		fmt.Fprintf(&b, `<path d="M%.1f,%.1f L%.1f,%.1f A%.1f,%.1f 0 %d 1 %.1f,%.1f Z" fill="%s"/>`,
			cx, cy, x1, y1, r, r, large, x2, y2, palette[i%len(palette)])
		b.WriteString("\n")
		mid := (angle + next) / 2
		svgLabel(&b, cx+(r+24)*math.Cos(mid), cy+(r+24)*math.Sin(mid), labels[i])
		angle = next
	}
	b.WriteString("</svg>\n")
	return b.String()
}

func svgHeader(b *strings.Builder, title string) {
	fmt.Fprintf(b, `<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d" viewBox="0 0 %d %d">`,
		chartWidth, chartHeight, chartWidth, chartHeight)
	b.WriteString("\n")
	fmt.Fprintf(b, `<rect width="%d" height="%d" fill="white"/>`, chartWidth, chartHeight)
	b.WriteString("\n")
	fmt.Fprintf(b, `<text x="%d" y="24" text-anchor="middle" font-family="sans-serif" font-size="16">%s</text>`,
		chartWidth/2, escapeXML(title))
	b.WriteString("\n")
}

func svgAxes(b *strings.Builder, maxVal float64) {
	fmt.Fprintf(b, `<line x1="%d" y1="%d" x2="%d" y2="%d" stroke="#333"/>`,
		chartPadding, chartHeight-chartPadding, chartWidth-chartPadding, chartHeight-chartPadding)
	b.WriteString("\n")
	fmt.Fprintf(b, `<line x1="%d" y1="%d" x2="%d" y2="%d" stroke="#333"/>`,
		chartPadding, chartPadding, chartPadding, chartHeight-chartPadding)
	b.WriteString("\n")
	fmt.Fprintf(b, `<text x="%d" y="%d" text-anchor="end" font-family="sans-serif" font-size="10">%s</text>`,
		chartPadding-4, chartPadding+4, formatNumber(maxVal))
	b.WriteString("\n")
}

func svgLabel(b *strings.Builder, x, y float64, text string) {
	if len(text) > 12 {
		text = text[:11] + "…"
	}
	fmt.Fprintf(b, `<text x="%.1f" y="%.1f" text-anchor="middle" font-family="sans-serif" font-size="10">%s</text>`,
		x, y, escapeXML(text))
	b.WriteString("\n")
}

func escapeXML(s string) string {
	r := strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", `"`, "&quot;")
	return r.Replace(s)
}

func formatNumber(f float64) string {
	if f == math.Trunc(f) {
		return fmt.Sprintf("%.0f", f)
	}
	return fmt.Sprintf("%.2f", f)
}

func sanitizeName(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_', r == '-':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}

func maxOf(values []float64) float64 {
	m := values[0]
	for _, v := range values[1:] {
		if v > m {
			m = v
		}
	}
	return m
}

func minOf(values []float64) float64 {
	m := values[0]
	for _, v := range values[1:] {
		if v < m {
			m = v
		}
	}
	return m
}
