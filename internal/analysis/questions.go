package analysis

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strconv"
)

// DefaultQuestions returns the fixed Q1..Q5 battery.
func DefaultQuestions() []Question {
	return []Question{
		{
			ID:    "Q1",
			Title: "Agency workload and resolution rate",
			Run:   runAgencyWorkload,
		},
		{
			ID:    "Q2",
			Title: "Complaint types by resolution duration",
			Run:   runResolutionDifficulty,
		},
		{
			ID:    "Q3",
			Title: "Requests by day-of-week and hour-of-day",
			Run:   runTemporalPatterns,
		},
		{
			ID:    "Q4",
			Title: "Borough volume and resolution comparison",
			Run:   runBoroughComparison,
		},
		{
			ID:    "Q5",
			Title: "Monthly volume trend with moving average",
			Run:   runMonthlyTrend,
		},
	}
}

// AgencyStat is one Q1 row.
type AgencyStat struct {
	Agency   string
	Total    int
	Closed   int
	Rate     float64
	AvgHours sql.NullFloat64
}

func queryAgencyStats(ctx context.Context, db *sql.DB) ([]AgencyStat, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT
			a.name,
			COUNT(*) AS total_requests,
			SUM(CASE WHEN sr.closed_date IS NOT NULL THEN 1 ELSE 0 END) AS closed_requests,
			AVG(
				CASE
					WHEN sr.closed_date IS NOT NULL AND sr.created_date IS NOT NULL
					THEN (julianday(sr.closed_date) - julianday(sr.created_date)) * 24.0
				END
			) AS avg_resolution_hours
		FROM service_requests sr
		JOIN agency a ON a.id = sr.agency_id
		GROUP BY a.name
		ORDER BY total_requests DESC`)
	if err != nil {
		return nil, fmt.Errorf("query agency stats: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	var stats []AgencyStat
	for rows.Next() {
		var s AgencyStat
		if err := rows.Scan(&s.Agency, &s.Total, &s.Closed, &s.AvgHours); err != nil {
			return nil, fmt.Errorf("scan agency stats: %w", err)
		}
		if s.Total > 0 {
			s.Rate = float64(s.Closed) / float64(s.Total)
		}
		stats = append(stats, s)
	}
	return stats, rows.Err()
}

func runAgencyWorkload(ctx context.Context, db *sql.DB, outDir string) ([]string, error) {
	stats, err := queryAgencyStats(ctx, db)
	if err != nil {
		return nil, err
	}
	if len(stats) == 0 {
		return nil, fmt.Errorf("no agency rows in store")
	}

	csvRows := make([][]string, 0, len(stats))
	for _, s := range stats {
		avg := ""
		if s.AvgHours.Valid {
			avg = strconv.FormatFloat(s.AvgHours.Float64, 'f', 2, 64)
		}
		csvRows = append(csvRows, []string{
			s.Agency,
			strconv.Itoa(s.Total),
			strconv.Itoa(s.Closed),
			strconv.FormatFloat(s.Rate, 'f', 4, 64),
			avg,
		})
	}
	path := filepath.Join(outDir, "q1_agency_workload.csv")
	header := []string{"agency", "total_requests", "closed_requests", "resolution_rate", "avg_resolution_hours"}
	if err := writeCSV(path, header, csvRows); err != nil {
		return nil, err
	}
	return []string{path}, nil
}

func runResolutionDifficulty(ctx context.Context, db *sql.DB, outDir string) ([]string, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT
			ct.name,
			COUNT(*) AS total_requests,
			AVG(julianday(sr.closed_date) - julianday(sr.created_date)) AS avg_days,
			MIN(julianday(sr.closed_date) - julianday(sr.created_date)) AS min_days,
			MAX(julianday(sr.closed_date) - julianday(sr.created_date)) AS max_days
		FROM service_requests sr
		JOIN complaint_type ct ON ct.id = sr.complaint_type_id
		WHERE sr.closed_date IS NOT NULL AND sr.created_date IS NOT NULL
		GROUP BY ct.name
		ORDER BY avg_days DESC`)
	if err != nil {
		return nil, fmt.Errorf("query resolution difficulty: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	var csvRows [][]string
	for rows.Next() {
		var name string
		var total int
		var avg, min, max float64
		if err := rows.Scan(&name, &total, &avg, &min, &max); err != nil {
			return nil, fmt.Errorf("scan resolution difficulty: %w", err)
		}
		csvRows = append(csvRows, []string{
			name,
			strconv.Itoa(total),
			strconv.FormatFloat(avg, 'f', 2, 64),
			strconv.FormatFloat(min, 'f', 2, 64),
			strconv.FormatFloat(max, 'f', 2, 64),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(csvRows) == 0 {
		return nil, fmt.Errorf("no complaint types with both dates present")
	}

	path := filepath.Join(outDir, "q2_resolution_difficulty.csv")
	header := []string{"complaint_type", "total_requests", "avg_resolution_days", "min_resolution_days", "max_resolution_days"}
	if err := writeCSV(path, header, csvRows); err != nil {
		return nil, err
	}
	return []string{path}, nil
}

func runTemporalPatterns(ctx context.Context, db *sql.DB, outDir string) ([]string, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT
			CAST(strftime('%w', created_date) AS INTEGER) AS dow,
			CAST(strftime('%H', created_date) AS INTEGER) AS hour,
			COUNT(*) AS total
		FROM service_requests
		WHERE created_date IS NOT NULL
		GROUP BY dow, hour`)
	if err != nil {
		return nil, fmt.Errorf("query temporal patterns: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	// 7x24 grid, Sunday first to match strftime('%w').
	var grid [7][24]int
	var seen int
	for rows.Next() {
		var dow, hour, total int
		if err := rows.Scan(&dow, &hour, &total); err != nil {
			return nil, fmt.Errorf("scan temporal patterns: %w", err)
		}
		if dow < 0 || dow > 6 || hour < 0 || hour > 23 {
			continue
		}
		grid[dow][hour] = total
		seen += total
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if seen == 0 {
		return nil, fmt.Errorf("no requests with a created date")
	}

	weekdays := []string{"Sunday", "Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday"}
	csvRows := make([][]string, 0, 7*24)
	hourTotals := make([]int, 24)
	for dow := range grid {
		for hour := range grid[dow] {
			csvRows = append(csvRows, []string{
				weekdays[dow],
				strconv.Itoa(hour),
				strconv.Itoa(grid[dow][hour]),
			})
			hourTotals[hour] += grid[dow][hour]
		}
	}

	csvPath := filepath.Join(outDir, "q3_temporal_patterns.csv")
	if err := writeCSV(csvPath, []string{"weekday", "hour", "total_requests"}, csvRows); err != nil {
		return nil, err
	}

	pngPath := filepath.Join(outDir, "q3_temporal_patterns.png")
	if err := renderHourProfile(pngPath, hourTotals); err != nil {
		return nil, err
	}
	return []string{csvPath, pngPath}, nil
}

// BoroughStat is one Q4 row.
type BoroughStat struct {
	Borough string
	Total   int
	Closed  int
	Rate    float64
}

func queryBoroughStats(ctx context.Context, db *sql.DB) ([]BoroughStat, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT
			b.name,
			COUNT(*) AS total_requests,
			SUM(CASE WHEN sr.closed_date IS NOT NULL THEN 1 ELSE 0 END) AS closed_requests
		FROM service_requests sr
		JOIN borough b ON b.id = sr.borough_id
		GROUP BY b.name
		ORDER BY total_requests DESC`)
	if err != nil {
		return nil, fmt.Errorf("query borough stats: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	var stats []BoroughStat
	for rows.Next() {
		var s BoroughStat
		if err := rows.Scan(&s.Borough, &s.Total, &s.Closed); err != nil {
			return nil, fmt.Errorf("scan borough stats: %w", err)
		}
		if s.Total > 0 {
			s.Rate = float64(s.Closed) / float64(s.Total)
		}
		stats = append(stats, s)
	}
	return stats, rows.Err()
}

func runBoroughComparison(ctx context.Context, db *sql.DB, outDir string) ([]string, error) {
	stats, err := queryBoroughStats(ctx, db)
	if err != nil {
		return nil, err
	}
	if len(stats) == 0 {
		return nil, fmt.Errorf("no borough rows in store")
	}

	csvRows := make([][]string, 0, len(stats))
	for _, s := range stats {
		csvRows = append(csvRows, []string{
			s.Borough,
			strconv.Itoa(s.Total),
			strconv.Itoa(s.Closed),
			strconv.FormatFloat(s.Rate, 'f', 4, 64),
		})
	}
	csvPath := filepath.Join(outDir, "q4_borough_stats.csv")
	header := []string{"borough", "total_requests", "closed_requests", "resolution_rate"}
	if err := writeCSV(csvPath, header, csvRows); err != nil {
		return nil, err
	}

	pngPath := filepath.Join(outDir, "q4_borough_stats.png")
	if err := renderBoroughVolume(pngPath, stats); err != nil {
		return nil, err
	}
	return []string{csvPath, pngPath}, nil
}

// MonthStat is one Q5 point.
type MonthStat struct {
	Month     string
	Total     int
	MovingAvg float64
}

func queryMonthlyVolume(ctx context.Context, db *sql.DB) ([]MonthStat, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT strftime('%Y-%m', created_date) AS month, COUNT(*) AS total
		FROM service_requests
		WHERE created_date IS NOT NULL
		GROUP BY month
		ORDER BY month`)
	if err != nil {
		return nil, fmt.Errorf("query monthly volume: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	var stats []MonthStat
	for rows.Next() {
		var s MonthStat
		if err := rows.Scan(&s.Month, &s.Total); err != nil {
			return nil, fmt.Errorf("scan monthly volume: %w", err)
		}
		stats = append(stats, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	applyMovingAverage(stats, 3)
	return stats, nil
}

// applyMovingAverage fills MovingAvg with a trailing window average. Early
// points average over however many months exist so far.
func applyMovingAverage(stats []MonthStat, window int) {
	for i := range stats {
		lo := i - window + 1
		if lo < 0 {
			lo = 0
		}
		var sum int
		for j := lo; j <= i; j++ {
			sum += stats[j].Total
		}
		stats[i].MovingAvg = float64(sum) / float64(i-lo+1)
	}
}

func runMonthlyTrend(ctx context.Context, db *sql.DB, outDir string) ([]string, error) {
	stats, err := queryMonthlyVolume(ctx, db)
	if err != nil {
		return nil, err
	}
	if len(stats) == 0 {
		return nil, fmt.Errorf("no requests with a created date")
	}

	csvRows := make([][]string, 0, len(stats))
	for _, s := range stats {
		csvRows = append(csvRows, []string{
			s.Month,
			strconv.Itoa(s.Total),
			strconv.FormatFloat(s.MovingAvg, 'f', 2, 64),
		})
	}
	csvPath := filepath.Join(outDir, "q5_monthly_trend.csv")
	if err := writeCSV(csvPath, []string{"month", "total_requests", "moving_avg_3mo"}, csvRows); err != nil {
		return nil, err
	}

	pngPath := filepath.Join(outDir, "q5_monthly_trend.png")
	if err := renderMonthlyTrend(pngPath, stats); err != nil {
		return nil, err
	}
	return []string{csvPath, pngPath}, nil
}
