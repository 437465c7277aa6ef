package export

import (
	"encoding/csv"
	"math"
	"os"
	"path/filepath"
	"sort"
	"time"

	chart "github.com/wcharczuk/go-chart/v2"

	"spread-radar/internal/market"
)

// Downsample keeps at most max rows, evenly spaced and including both ends.
func Downsample(rows []market.OpportunityRow, max int) []market.OpportunityRow {
	if max <= 0 || len(rows) <= max {
		return rows
	}
	if max == 1 {
		return rows[len(rows)-1:]
	}

	result := make([]market.OpportunityRow, 0, max)
	step := float64(len(rows)-1) / float64(max-1)
	for i := 0; i < max; i++ {
		idx := int(math.Round(step * float64(i)))
		if idx >= len(rows) {
			idx = len(rows) - 1
		}
		result = append(result, rows[idx])
	}
	return result
}

// WriteHistoryCSV writes persisted rows to a fresh file.
func WriteHistoryCSV(path string, rows []market.OpportunityRow) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write(Header); err != nil {
		return err
	}
	for _, row := range rows {
		if err := writer.Write(Record(row)); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// WriteHistoryPNG plots net spread in bps over time, one series per symbol.
func WriteHistoryPNG(path string, rows []market.OpportunityRow) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	bySymbol := make(map[string][]market.OpportunityRow)
	for _, row := range rows {
		bySymbol[row.Symbol] = append(bySymbol[row.Symbol], row)
	}
	symbols := make([]string, 0, len(bySymbol))
	for sym := range bySymbol {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)

	series := make([]chart.Series, 0, len(symbols))
	for _, sym := range symbols {
		points := bySymbol[sym]
		sort.SliceStable(points, func(i, j int) bool { return points[i].Timestamp.Before(points[j].Timestamp) })

		x := make([]time.Time, len(points))
		y := make([]float64, len(points))
		for i, p := range points {
			x[i] = p.Timestamp
			y[i] = p.NetBps().InexactFloat64()
		}
		// go-chart needs at least two points per series
		if len(points) == 1 {
			x = append(x, x[0].Add(time.Second))
			y = append(y, y[0])
		}
		series = append(series, chart.TimeSeries{Name: sym, XValues: x, YValues: y})
	}

	bpsFormatter := func(v interface{}) string {
		return chart.FloatValueFormatterWithFormat(v, "%.1f")
	}
	graph := chart.Chart{
		Width:  1280,
		Height: 720,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeValueFormatter,
		},
		YAxis: chart.YAxis{
			Name:           "Net spread (bps)",
			ValueFormatter: bpsFormatter,
		},
		Series: series,
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return graph.Render(chart.PNG, file)
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
