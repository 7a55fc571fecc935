package numerator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormat(t *testing.T) {
	at := time.Date(2026, time.March, 14, 9, 5, 0, 0, time.Local)

	assert.Equal(t, "PED-140326-0905-01", Format(TicketConfig(PrefixRequest), at, 1))
	assert.Equal(t, "OC-140326-0905-12", Format(TicketConfig(PrefixOrder), at, 12))
	assert.Equal(t, "SC-140326-0905-100", Format(TicketConfig(PrefixRequisition), at, 100))
}

func TestKey_ResetsDaily(t *testing.T) {
	cfg := TicketConfig(PrefixRequest)
	morning := time.Date(2026, time.March, 14, 8, 0, 0, 0, time.Local)
	evening := time.Date(2026, time.March, 14, 23, 59, 0, 0, time.Local)
	nextDay := time.Date(2026, time.March, 15, 0, 1, 0, 0, time.Local)

	assert.Equal(t, Key(cfg, morning), Key(cfg, evening))
	assert.NotEqual(t, Key(cfg, morning), Key(cfg, nextDay))
	assert.NotEqual(t, Key(cfg, morning), Key(TicketConfig(PrefixOrder), morning))
}

func TestParse(t *testing.T) {
	tk, err := Parse("SC-140326-0930-07")
	require.NoError(t, err)

	assert.Equal(t, "SC", tk.Prefix)
	assert.Equal(t, int64(7), tk.Seq)
	assert.Equal(t, 14, tk.Date.Day())
	assert.Equal(t, 30, tk.Date.Minute())

	_, err = Parse("SC-140326-07")
	assert.Error(t, err)
}

func TestMockGenerator_StrictlyIncreasing(t *testing.T) {
	gen := &MockGenerator{}
	cfg := TicketConfig(PrefixRequest)
	start := time.Date(2026, time.March, 14, 7, 0, 0, 0, time.Local)

	seen := make(map[string]bool)
	var prev Ticket
	for i := 0; i < 100; i++ {
		at := start.Add(time.Duration(i) * 7 * time.Minute)
		num, err := gen.GetNextNumber(context.Background(), cfg, at)
		require.NoError(t, err)
		require.False(t, seen[num], "duplicate ticket %s", num)
		seen[num] = true

		tk, err := Parse(num)
		require.NoError(t, err)
		if i > 0 {
			assert.True(t, Less(prev, tk), "%v should sort before %v", prev, tk)
		}
		prev = tk
	}
}
