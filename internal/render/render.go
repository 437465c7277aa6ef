// Package render draws scanner output on a terminal.
package render

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"spread-radar/internal/market"
	"spread-radar/internal/scanner"
)

// DefaultEvery matches the drain cadence of the desktop radar.
const DefaultEvery = 150 * time.Millisecond

var (
	headerStyle = lipgloss.NewStyle().Bold(true)
	statusStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#ffd166"))
	columnStyle = lipgloss.NewStyle().Faint(true)

	posStyle = lipgloss.NewStyle().Background(lipgloss.Color("#0f3d0f")).Foreground(lipgloss.Color("#e8ffe8"))
	midStyle = lipgloss.NewStyle().Background(lipgloss.Color("#3d3d0f")).Foreground(lipgloss.Color("#fff3c2"))
	negStyle = lipgloss.NewStyle().Background(lipgloss.Color("#3d0f0f")).Foreground(lipgloss.Color("#ffe8e8"))
)

type column struct {
	title string
	width int
}

var columns = []column{
	{"Symbol", 11}, {"Buy@", 10}, {"Ask", 16}, {"AskDepth$", 12},
	{"Sell@", 10}, {"Bid", 16}, {"BidDepth$", 12},
	{"Gross bps", 10}, {"Net bps", 9}, {"PnL est $", 10}, {"Time", 19},
}

// Options configure a Renderer.
type Options struct {
	Output io.Writer
	Every  time.Duration
	Plain  bool
}

// Renderer prints snapshots and status lines.
type Renderer struct {
	out   io.Writer
	every time.Duration
	plain bool
}

// New builds a Renderer.
func New(opts Options) *Renderer {
	if opts.Every <= 0 {
		opts.Every = DefaultEvery
	}
	return &Renderer{out: opts.Output, every: opts.Every, plain: opts.Plain}
}

// Drain consumes in on its own schedule until ctx ends or in is closed. Within one tick
// only the newest snapshot is drawn since each one supersedes the last.
func (r *Renderer) Drain(ctx context.Context, in <-chan scanner.Message) error {
	ticker := time.NewTicker(r.every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		var latest *scanner.Snapshot
	batch:
		for {
			select {
			case msg, ok := <-in:
				if !ok {
					if latest != nil {
						r.Snapshot(*latest)
					}
					return nil
				}
				switch msg.Kind {
				case scanner.KindRows:
					snap := msg.Snapshot
					latest = &snap
				case scanner.KindStatus:
					r.Status(msg.Status)
				}
			default:
				break batch
			}
		}
		if latest != nil {
			r.Snapshot(*latest)
		}
	}
}

// Status prints a transient status line.
func (r *Renderer) Status(text string) {
	fmt.Fprintln(r.out, r.style(statusStyle, text))
}

// Snapshot prints a full table.
func (r *Renderer) Snapshot(snap scanner.Snapshot) {
	fmt.Fprint(r.out, r.Table(snap))
}

// Table formats a snapshot as header, column titles and one coloured line per row.
func (r *Renderer) Table(snap scanner.Snapshot) string {
	var b strings.Builder
	b.WriteString(r.style(headerStyle, snap.Header))
	b.WriteByte('\n')

	titles := make([]string, len(columns))
	for i, c := range columns {
		titles[i] = c.title
	}
	b.WriteString(r.style(columnStyle, line(titles)))
	b.WriteByte('\n')

	for _, row := range snap.Rows {
		b.WriteString(r.style(styleFor(row.Class()), line(Cells(row))))
		b.WriteByte('\n')
	}
	return b.String()
}

// Cells are the display values of a row, in column order.
func Cells(row market.OpportunityRow) []string {
	return []string{
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
		market.FormatTimestamp(row.Timestamp),
	}
}

func line(cells []string) string {
	parts := make([]string, len(cells))
	for i, cell := range cells {
		width := 0
		if i < len(columns) {
			width = columns[i].width
		}
		parts[i] = fmt.Sprintf("%-*s", width, cell)
	}
	return strings.TrimRight(strings.Join(parts, " "), " ")
}

func styleFor(class market.Class) lipgloss.Style {
	switch class {
	case market.ClassPositive:
		return posStyle
	case market.ClassMid:
		return midStyle
	default:
		return negStyle
	}
}

func (r *Renderer) style(s lipgloss.Style, text string) string {
	if r.plain {
		return text
	}
	return s.Render(text)
}
