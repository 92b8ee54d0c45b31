package analysis

import (
	"fmt"
	"os"
	"strconv"
	"time"

	chart "github.com/wcharczuk/go-chart/v2"
)

const (
	chartWidth  = 1280
	chartHeight = 640
)

func renderToFile(path string, render func(f *os.File) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := render(f); err != nil {
		f.Close() //nolint:errcheck
		return fmt.Errorf("render %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	return nil
}

// renderHourProfile draws request volume by hour of day.
func renderHourProfile(path string, hourTotals []int) error {
	bars := make([]chart.Value, 0, len(hourTotals))
	for hour, total := range hourTotals {
		bars = append(bars, chart.Value{
			Label: strconv.Itoa(hour),
			Value: float64(total),
		})
	}
	graph := chart.BarChart{
		Title:    "Service requests by hour of day",
		Width:    chartWidth,
		Height:   chartHeight,
		BarWidth: 30,
		Bars:     bars,
	}
	return renderToFile(path, func(f *os.File) error {
		return graph.Render(chart.PNG, f)
	})
}

// renderBoroughVolume draws per-borough volume; each label carries the
// resolution rate so one image answers both halves of the question.
func renderBoroughVolume(path string, stats []BoroughStat) error {
	bars := make([]chart.Value, 0, len(stats))
	for _, s := range stats {
		bars = append(bars, chart.Value{
			Label: fmt.Sprintf("%s (%.0f%%)", s.Borough, 100*s.Rate),
			Value: float64(s.Total),
		})
	}
	graph := chart.BarChart{
		Title:    "Request volume and resolution rate by borough",
		Width:    chartWidth,
		Height:   chartHeight,
		BarWidth: 80,
		Bars:     bars,
	}
	return renderToFile(path, func(f *os.File) error {
		return graph.Render(chart.PNG, f)
	})
}

// renderMonthlyTrend draws the monthly series and its moving average.
func renderMonthlyTrend(path string, stats []MonthStat) error {
	if len(stats) == 1 {
		// A lone month still renders: repeat the point so the flat line has
		// a nonzero x range.
		stats = append(stats, stats[0])
	}
	xs := make([]time.Time, 0, len(stats))
	volumes := make([]float64, 0, len(stats))
	averages := make([]float64, 0, len(stats))
	for i, s := range stats {
		month, err := time.Parse("2006-01", s.Month)
		if err != nil {
			return fmt.Errorf("parse month %q: %w", s.Month, err)
		}
		if i > 0 && stats[i-1].Month == s.Month {
			month = month.AddDate(0, 1, 0)
		}
		xs = append(xs, month)
		volumes = append(volumes, float64(s.Total))
		averages = append(averages, s.MovingAvg)
	}

	graph := chart.Chart{
		Title:  "Monthly request volume",
		Width:  chartWidth,
		Height: chartHeight,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeValueFormatterWithFormat("2006-01"),
		},
		Series: []chart.Series{
			chart.TimeSeries{
				Name:    "monthly volume",
				XValues: xs,
				YValues: volumes,
			},
			chart.TimeSeries{
				Name:    "3-month moving avg",
				XValues: xs,
				YValues: averages,
				Style: chart.Style{
					StrokeDashArray: []float64{5.0, 5.0},
				},
			},
		},
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}
	return renderToFile(path, func(f *os.File) error {
		return graph.Render(chart.PNG, f)
	})
}
