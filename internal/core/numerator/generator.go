package numerator

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Generator hands out ticket numbers.
//
// Implementations must increment a persistent counter atomically and should
// run inside the caller's transaction so that a rolled back document does not
// consume a number.
type Generator interface {
	// GetNextNumber returns the next ticket for cfg at the given instant.
	GetNextNumber(ctx context.Context, cfg Config, at time.Time) (string, error)
}

// Ticket is a parsed ticket number.
type Ticket struct {
	Prefix string
	Date   time.Time // day and minute of creation, local time
	Seq    int64
}

// Parse splits a PREFIX-ddmmyy-hhmm-NN ticket.
func Parse(s string) (Ticket, error) {
	parts := strings.Split(s, "-")
	if len(parts) != 4 {
		return Ticket{}, fmt.Errorf("ticket %q: expected 4 parts", s)
	}
	at, err := time.ParseInLocation("020106 1504", parts[1]+" "+parts[2], time.Local)
	if err != nil {
		return Ticket{}, fmt.Errorf("ticket %q: %w", s, err)
	}
	seq, err := strconv.ParseInt(parts[3], 10, 64)
	if err != nil {
		return Ticket{}, fmt.Errorf("ticket %q: %w", s, err)
	}
	return Ticket{Prefix: parts[0], Date: at, Seq: seq}, nil
}

// Less orders tickets of the same prefix by day, then by sequence.
func Less(a, b Ticket) bool {
	ay, am, ad := a.Date.Date()
	by, bm, bd := b.Date.Date()
	if ay != by || am != bm || ad != bd {
		return a.Date.Before(b.Date)
	}
	return a.Seq < b.Seq
}
