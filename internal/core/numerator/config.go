// Package numerator provides domain contracts for ticket numbering.
package numerator

import (
	"fmt"
	"time"
)

// Ticket prefixes per document type.
const (
	PrefixRequest     = "PED"
	PrefixRequisition = "SC"
	PrefixOrder       = "OC"
)

// Reset periods.
const (
	ResetDay   = "day"
	ResetMonth = "month"
	ResetYear  = "year"
	ResetNever = "never"
)

// Config holds numbering configuration.
type Config struct {
	// Prefix added to all numbers (PED, SC, OC)
	Prefix string

	// PadWidth is the minimum width of the sequence part (default 2)
	PadWidth int

	// ResetPeriod: "day", "month", "year", "never"
	ResetPeriod string
}

// TicketConfig returns the per-day ticket configuration for prefix.
func TicketConfig(prefix string) Config {
	return Config{
		Prefix:      prefix,
		PadWidth:    2,
		ResetPeriod: ResetDay,
	}
}

// Key builds the counter key for cfg at the given instant.
func Key(cfg Config, at time.Time) string {
	switch cfg.ResetPeriod {
	case ResetDay:
		return fmt.Sprintf("%s_%s", cfg.Prefix, at.Format("2006_01_02"))
	case ResetMonth:
		return fmt.Sprintf("%s_%s", cfg.Prefix, at.Format("2006_01"))
	case ResetYear:
		return fmt.Sprintf("%s_%s", cfg.Prefix, at.Format("2006"))
	default:
		return cfg.Prefix
	}
}

// Format renders PREFIX-ddmmyy-hhmm-NN.
func Format(cfg Config, at time.Time, seq int64) string {
	pad := cfg.PadWidth
	if pad <= 0 {
		pad = 2
	}
	return fmt.Sprintf("%s-%s-%s-%0*d", cfg.Prefix, at.Format("020106"), at.Format("1504"), pad, seq)
}
