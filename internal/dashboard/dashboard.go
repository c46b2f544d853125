package dashboard

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	ui "github.com/gizak/termui/v3"
	"github.com/gizak/termui/v3/widgets"

	"github.com/torosent/rangefetch/internal/metrics"
	"github.com/torosent/rangefetch/internal/resource"
)

// RunConfig holds run parameters for display.
type RunConfig struct {
	Range       resource.Range
	Workers     int
	URLTemplate string
	Store       string
	Timeout     time.Duration
	ConfigFile  string
}

// Dashboard renders a live terminal UI for a fetch run.
type Dashboard struct {
	collector    *metrics.Collector
	ctx          context.Context
	cancel       context.CancelFunc
	shutdownFunc func()
	wg           sync.WaitGroup
	mu           sync.Mutex

	// Widgets
	grid           *ui.Grid
	summaryPara    *widgets.Paragraph
	progressGauge  *widgets.Gauge
	outcomeChart   *widgets.BarChart
	latencySparkle *widgets.SparklineGroup
	latencyPara    *widgets.Paragraph
	failureList    *widgets.List

	latencyHistory []float64
	startTime      time.Time
	cfg            RunConfig
}

// New creates a new Dashboard. shutdownFunc is called when the user presses q.
func New(collector *metrics.Collector, cfg RunConfig, shutdownFunc func()) (*Dashboard, error) {
	if err := ui.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize termui: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	d := &Dashboard{
		collector:      collector,
		ctx:            ctx,
		cancel:         cancel,
		shutdownFunc:   shutdownFunc,
		latencyHistory: make([]float64, 0, 100),
		startTime:      time.Now(),
		cfg:            cfg,
	}

	d.initWidgets()
	d.setupGrid()

	return d, nil
}

// initWidgets initializes all dashboard widgets.
func (d *Dashboard) initWidgets() {
	d.summaryPara = widgets.NewParagraph()
	d.summaryPara.Title = "Run"
	d.summaryPara.Text = "Initializing..."
	d.summaryPara.BorderStyle.Fg = ui.ColorCyan

	d.progressGauge = widgets.NewGauge()
	d.progressGauge.Title = "Progress"
	d.progressGauge.BarColor = ui.ColorBlue
	d.progressGauge.BorderStyle.Fg = ui.ColorCyan
	d.progressGauge.LabelStyle = ui.NewStyle(ui.ColorWhite)

	d.outcomeChart = widgets.NewBarChart()
	d.outcomeChart.Title = "Outcomes"
	d.outcomeChart.Labels = []string{"Fetched", "Skipped", "Failed"}
	d.outcomeChart.Data = []float64{0, 0, 0}
	d.outcomeChart.BarWidth = 9
	d.outcomeChart.BarColors = []ui.Color{ui.ColorGreen, ui.ColorYellow, ui.ColorRed}
	d.outcomeChart.NumStyles = []ui.Style{ui.NewStyle(ui.ColorBlack)}
	d.outcomeChart.BorderStyle.Fg = ui.ColorCyan

	sparkline := widgets.NewSparkline()
	sparkline.Title = "P99 (ms)"
	sparkline.LineColor = ui.ColorGreen
	sparkline.Data = []float64{0}

	d.latencySparkle = widgets.NewSparklineGroup(sparkline)
	d.latencySparkle.Title = "Fetch Latency"
	d.latencySparkle.BorderStyle.Fg = ui.ColorCyan

	d.latencyPara = widgets.NewParagraph()
	d.latencyPara.Title = "Latency Stats"
	d.latencyPara.Text = "Min: 0ms\nMean: 0ms\nP50: 0ms\nP90: 0ms\nP99: 0ms"
	d.latencyPara.BorderStyle.Fg = ui.ColorCyan

	d.failureList = widgets.NewList()
	d.failureList.Title = "Failures"
	d.failureList.Rows = []string{"No failures"}
	d.failureList.TextStyle = ui.NewStyle(ui.ColorYellow)
	d.failureList.BorderStyle.Fg = ui.ColorCyan
}

// setupGrid configures the layout grid.
func (d *Dashboard) setupGrid() {
	termWidth, termHeight := ui.TerminalDimensions()

	d.grid = ui.NewGrid()
	d.grid.SetRect(0, 0, termWidth, termHeight)

	d.grid.Set(
		ui.NewRow(0.16,
			ui.NewCol(1.0, d.summaryPara),
		),
		ui.NewRow(0.14,
			ui.NewCol(1.0, d.progressGauge),
		),
		ui.NewRow(0.35,
			ui.NewCol(0.4, d.outcomeChart),
			ui.NewCol(0.6, d.latencySparkle),
		),
		ui.NewRow(0.35,
			ui.NewCol(0.4, d.latencyPara),
			ui.NewCol(0.6, d.failureList),
		),
	)
}

// Start begins the dashboard update loop.
func (d *Dashboard) Start() {
	d.wg.Add(1)
	go d.run()
}

// Stop stops the dashboard and restores the terminal.
func (d *Dashboard) Stop() {
	d.cancel()
	d.wg.Wait()
	ui.Close()
	// Give terminal time to restore
	time.Sleep(100 * time.Millisecond)
}

// run is the main dashboard update loop.
func (d *Dashboard) run() {
	defer d.wg.Done()

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	uiEvents := ui.PollEvents()

	d.render()

	for {
		select {
		case <-d.ctx.Done():
			for len(uiEvents) > 0 {
				<-uiEvents
			}
			return
		case e := <-uiEvents:
			select {
			case <-d.ctx.Done():
				return
			default:
			}

			switch e.ID {
			case "q", "<C-c>":
				if d.shutdownFunc != nil {
					d.shutdownFunc()
				}
				// Keep rendering until Stop cancels the context.
			case "<Resize>":
				payload := e.Payload.(ui.Resize)
				d.grid.SetRect(0, 0, payload.Width, payload.Height)
				ui.Clear()
				d.render()
			}
		case <-ticker.C:
			d.collector.Snapshot()
			d.update(d.collector.Stats(time.Since(d.startTime)))
			d.render()
		}
	}
}

// update refreshes all widget data from stats.
func (d *Dashboard) update(stats metrics.Stats) {
	d.mu.Lock()
	defer d.mu.Unlock()

	total := int64(d.cfg.Range.Len())

	if stats.Fetched+stats.Failed > 0 {
		d.latencyHistory = append(d.latencyHistory, stats.P99LatencyMs)
		if len(d.latencyHistory) > 100 {
			d.latencyHistory = d.latencyHistory[1:]
		}
		d.latencySparkle.Sparklines[0].Data = d.latencyHistory
		d.latencySparkle.Title = fmt.Sprintf(
			"Fetch Latency | P99: %.2fms | Min: %.2fms | Max: %.2fms",
			stats.P99LatencyMs,
			stats.MinLatencyMs,
			stats.MaxLatencyMs,
		)
	}

	d.progressGauge.Percent = progressPercent(stats.Processed, total)
	d.progressGauge.Label = fmt.Sprintf("%d / %d (%.1f/s)", stats.Processed, total, stats.ItemsPerSec)

	d.outcomeChart.Data = []float64{float64(stats.Fetched), float64(stats.Skipped), float64(stats.Failed)}

	d.summaryPara.Text = fmt.Sprintf(
		"Source: %s\nStore: %s\n%s | Elapsed: %s",
		d.cfg.URLTemplate,
		d.cfg.Store,
		formatRunParams(d.cfg),
		stats.Duration.Round(time.Second),
	)

	d.latencyPara.Text = fmt.Sprintf(
		"Min:  %.2fms\nMean: %.2fms\nP50:  %.2fms\nP90:  %.2fms\nP99:  %.2fms\nBytes: %d",
		stats.MinLatencyMs,
		stats.MeanLatencyMs,
		stats.P50LatencyMs,
		stats.P90LatencyMs,
		stats.P99LatencyMs,
		stats.Bytes,
	)

	d.failureList.Rows = formatFailureRows(stats)
}

// render draws all widgets to the screen.
func (d *Dashboard) render() {
	d.mu.Lock()
	defer d.mu.Unlock()

	ui.Render(d.grid)
}

func progressPercent(processed, total int64) int {
	if total <= 0 {
		return 100
	}
	pct := int(processed * 100 / total)
	if pct > 100 {
		pct = 100
	}
	return pct
}

func formatFailureRows(stats metrics.Stats) []string {
	rows := stats.FailureKinds()
	if len(rows) == 0 {
		return []string{"[No failures](fg:green)"}
	}
	formatted := make([]string, 0, len(rows))
	for _, row := range rows {
		share := 0.0
		if stats.Failed > 0 {
			share = float64(row.Count) / float64(stats.Failed) * 100
		}
		formatted = append(formatted, fmt.Sprintf("[%s](fg:red) %d (%.0f%%)", row.Label, row.Count, share))
	}
	return formatted
}

// formatRunParams formats the run configuration for display.
func formatRunParams(cfg RunConfig) string {
	parts := []string{fmt.Sprintf("Range: %s", cfg.Range)}

	if cfg.Workers > 0 {
		parts = append(parts, fmt.Sprintf("Workers: %d", cfg.Workers))
	}
	if cfg.Timeout > 0 {
		parts = append(parts, fmt.Sprintf("Timeout: %s", cfg.Timeout))
	}
	if cfg.ConfigFile != "" {
		parts = append(parts, fmt.Sprintf("Config: %s", cfg.ConfigFile))
	}

	return strings.Join(parts, " | ")
}
