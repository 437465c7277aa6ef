package export

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"

	"spread-radar/internal/market"
)

// Header is the column set of every opportunity CSV.
var Header = []string{
	"ts", "symbol", "buy_ex", "ask", "ask_depth_usd",
	"sell_ex", "bid", "bid_depth_usd",
	"gross_bps", "net_bps", "pnl_est_usd",
}

// Record formats one row for the CSV sink.
func Record(row market.OpportunityRow) []string {
	return []string{
		market.FormatTimestamp(row.Timestamp),
		row.Symbol,
		row.BuyVenue,
		market.FormatPrice(row.Ask),
		market.FormatUSD(row.AskDepthUSD, 2),
		row.SellVenue,
		market.FormatPrice(row.Bid),
		market.FormatUSD(row.BidDepthUSD, 2),
		market.FormatBps(row.Gross),
		market.FormatBps(row.Net),
		market.FormatUSD(row.PnLUSD, 4),
	}
}

// CSVSink appends rows to a file. The file is opened and closed on every write so
// other processes can tail it.
type CSVSink struct {
	path string
	mu   sync.Mutex
}

// NewCSVSink builds a sink for path. Nothing touches the filesystem until Prepare or Append.
func NewCSVSink(path string) *CSVSink {
	return &CSVSink{path: path}
}

func (s *CSVSink) Name() string { return "CSV" }

// Path returns the target file.
func (s *CSVSink) Path() string { return s.path }

// Prepare creates the file with its header when it does not exist yet.
func (s *CSVSink) Prepare() error {
	return s.write(nil)
}

// Append writes rows, preceded by the header when the file is new.
func (s *CSVSink) Append(_ context.Context, rows []market.OpportunityRow) error {
	if len(rows) == 0 {
		return nil
	}
	return s.write(rows)
}

func (s *CSVSink) write(rows []market.OpportunityRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.path == "" {
		return errors.New("csv path not configured")
	}
	if err := ensureDir(s.path); err != nil {
		return err
	}

	_, statErr := os.Stat(s.path)
	fresh := errors.Is(statErr, fs.ErrNotExist)

	file, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}

	writer := csv.NewWriter(file)
	if fresh {
		if err := writer.Write(Header); err != nil {
			_ = file.Close()
			return fmt.Errorf("write header: %w", err)
		}
	}
	for _, row := range rows {
		if err := writer.Write(Record(row)); err != nil {
			_ = file.Close()
			return fmt.Errorf("write row: %w", err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		_ = file.Close()
		return err
	}
	return file.Close()
}
