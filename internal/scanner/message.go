package scanner

import "spread-radar/internal/market"

// Kind tells the consumer how to read a Message.
type Kind string

const (
	KindRows   Kind = "rows"
	KindStatus Kind = "status"
)

// Snapshot is one complete cycle. It replaces whatever the consumer showed before.
type Snapshot struct {
	Header string
	Rows   []market.OpportunityRow
}

// Message travels from the scanner to its single consumer.
type Message struct {
	Kind     Kind
	Snapshot Snapshot
	Status   string
}

// RowsMessage wraps a snapshot.
func RowsMessage(s Snapshot) Message { return Message{Kind: KindRows, Snapshot: s} }

// StatusMessage wraps a transient status line.
func StatusMessage(text string) Message { return Message{Kind: KindStatus, Status: text} }
