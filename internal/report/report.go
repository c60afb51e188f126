package report

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	echartstypes "github.com/go-echarts/go-echarts/v2/types"

	"evcore/internal/store/decisionlog"
	"evcore/internal/types"
)

// 中文说明：
// 评估历史可视化：EV 曲线 + 置信度曲线 + 动作分布，输出 HTML，
// 需要时再用 headless Chrome 截成 PNG。

const (
	colorBackground    = "#060c1b"
	colorTextPrimary   = "#eceff4"
	colorTextSecondary = "#9ca3af"
	colorEV            = "#3b82f6"
	colorConfidence    = "#fbbf24"
	colorExit          = "#f87171"
	colorAdd           = "#34d399"

	chartWidthPx  = 1400
	chartHeightPx = 420
)

// Reporter 把决策日志渲染成报表文件。
type Reporter struct {
	outDir  string
	capture bool
}

// NewReporter capture=false 时只出 HTML，不启动无头浏览器。
func NewReporter(outDir string, capture bool) *Reporter {
	if strings.TrimSpace(outDir) == "" {
		outDir = "data/reports"
	}
	return &Reporter{outDir: outDir, capture: capture}
}

// RenderHTML 生成指定符号的评估历史页面，返回落盘路径。
func (r *Reporter) RenderHTML(symbol string, records []decisionlog.Record) (string, error) {
	if len(records) == 0 {
		return "", fmt.Errorf("report: no records for %s", symbol)
	}
	html, err := buildPage(symbol, records)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(r.outDir, 0o755); err != nil {
		return "", fmt.Errorf("report: create dir: %w", err)
	}
	name := fmt.Sprintf("%s_decisions_%s.html", strings.ToLower(types.NormalizeSymbol(symbol)), time.Now().UTC().Format("20060102T150405"))
	path := filepath.Join(r.outDir, name)
	if err := os.WriteFile(path, html, 0o644); err != nil {
		return "", fmt.Errorf("report: write %s: %w", path, err)
	}
	return path, nil
}

// RenderPNG 渲染页面并截成 PNG。Chrome 不可用时返回错误，调用方可降级到 HTML。
func (r *Reporter) RenderPNG(ctx context.Context, symbol string, records []decisionlog.Record) ([]byte, error) {
	if !r.capture {
		return nil, fmt.Errorf("report: PNG capture disabled")
	}
	if err := ensureHeadlessAvailable(ctx); err != nil {
		return nil, err
	}
	html, err := buildPage(symbol, records)
	if err != nil {
		return nil, err
	}
	height := chartHeightPx*2 + 120
	return renderHTMLToPNG(ctx, html, chartWidthPx, height)
}

func buildPage(symbol string, records []decisionlog.Record) ([]byte, error) {
	page := components.NewPage()
	page.SetLayout(components.PageFlexLayout)
	page.AddCharts(buildEVChart(symbol, records), buildActionChart(symbol, records))

	var buf bytes.Buffer
	if err := page.Render(&buf); err != nil {
		return nil, fmt.Errorf("report: render: %w", err)
	}
	return buf.Bytes(), nil
}

func buildEVChart(symbol string, records []decisionlog.Record) *charts.Line {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			Theme:           echartstypes.ThemeWesteros,
			Width:           fmt.Sprintf("%dpx", chartWidthPx),
			Height:          fmt.Sprintf("%dpx", chartHeightPx),
			BackgroundColor: colorBackground,
		}),
		charts.WithTitleOpts(opts.Title{
			Title:      fmt.Sprintf("EV / Confidence %s", symbol),
			Left:       "left",
			TitleStyle: &opts.TextStyle{Color: colorTextPrimary},
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), TextStyle: &opts.TextStyle{Color: colorTextSecondary}}),
	)
	xAxis := make([]string, len(records))
	evData := make([]opts.LineData, len(records))
	confData := make([]opts.LineData, len(records))
	// 日志按时间倒序返回，图上按时间正序画。
	for i := range records {
		rec := records[len(records)-1-i]
		xAxis[i] = rec.GeneratedAt.Format("01-02 15:04")
		evData[i] = opts.LineData{Value: rec.EV}
		confData[i] = opts.LineData{Value: rec.Confidence / 100}
	}
	line.SetXAxis(xAxis)
	line.AddSeries("EV", evData, charts.WithLineStyleOpts(opts.LineStyle{Color: colorEV, Width: 2}))
	line.AddSeries("Confidence", confData, charts.WithLineStyleOpts(opts.LineStyle{Color: colorConfidence, Width: 2}))
	line.SetSeriesOptions(charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}))
	return line
}

func buildActionChart(symbol string, records []decisionlog.Record) *charts.Bar {
	counts := make(map[types.Action]int, len(types.AllActions))
	for _, rec := range records {
		counts[rec.Action]++
	}
	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			Theme:           echartstypes.ThemeWesteros,
			Width:           fmt.Sprintf("%dpx", chartWidthPx),
			Height:          fmt.Sprintf("%dpx", chartHeightPx),
			BackgroundColor: colorBackground,
		}),
		charts.WithTitleOpts(opts.Title{
			Title:      fmt.Sprintf("Action distribution %s", symbol),
			Left:       "left",
			TitleStyle: &opts.TextStyle{Color: colorTextPrimary},
		}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(false)}),
	)
	xAxis := make([]string, 0, len(types.AllActions))
	data := make([]opts.BarData, 0, len(types.AllActions))
	for _, action := range types.AllActions {
		xAxis = append(xAxis, string(action))
		color := colorAdd
		if action.IsExit() {
			color = colorExit
		}
		data = append(data, opts.BarData{
			Value:     counts[action],
			ItemStyle: &opts.ItemStyle{Color: color, Opacity: opts.Float(0.7)},
		})
	}
	bar.SetXAxis(xAxis)
	bar.AddSeries("count", data)
	return bar
}

var (
	headlessOnce sync.Once
	headlessErr  error
)

func ensureHeadlessAvailable(ctx context.Context) error {
	headlessOnce.Do(func() {
		targetCtx := ctx
		if targetCtx == nil {
			targetCtx = context.Background()
		}
		parent, cancel := chromedp.NewContext(targetCtx)
		if cancel != nil {
			defer cancel()
		}
		headlessErr = chromedp.Run(parent)
	})
	return headlessErr
}

func renderHTMLToPNG(ctx context.Context, html []byte, width, height int) ([]byte, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	parent, cancel := chromedp.NewContext(ctx)
	defer cancel()

	timeoutCtx, cancelTimeout := context.WithTimeout(parent, 20*time.Second)
	defer cancelTimeout()

	dataURI := "data:text/html;base64," + base64.StdEncoding.EncodeToString(html)
	var screenshot []byte
	tasks := chromedp.Tasks{
		chromedp.EmulateViewport(int64(width), int64(height)),
		chromedp.Navigate(dataURI),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(1500 * time.Millisecond),
		chromedp.FullScreenshot(&screenshot, 0),
	}
	if err := chromedp.Run(timeoutCtx, tasks); err != nil {
		return nil, fmt.Errorf("report: screenshot: %w", err)
	}
	return screenshot, nil
}
