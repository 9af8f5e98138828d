package schedule

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"
)

// Stats counts what happened since the scheduler started.
type Stats struct {
	Cycles    int
	Successes int
	Failures  int
	Restarts  int
	LastCycle time.Time
}

// Stats returns a snapshot of the counters.
func (s *Scheduler) Stats() Stats {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	return s.stats
}

// PrintSummary writes the counters as a table.
func PrintSummary(w io.Writer, st Stats) error {
	last := "-"
	if !st.LastCycle.IsZero() {
		last = st.LastCycle.Format(time.DateTime)
	}
	table := tablewriter.NewWriter(w)
	table.Header("Cycles", "Successful", "Failed", "Session restarts", "Last cycle")
	if err := table.Append([]string{
		strconv.Itoa(st.Cycles),
		strconv.Itoa(st.Successes),
		strconv.Itoa(st.Failures),
		strconv.Itoa(st.Restarts),
		last,
	}); err != nil {
		return fmt.Errorf("could not render summary: %w", err)
	}
	return table.Render()
}
