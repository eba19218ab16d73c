package report

import (
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/lipgloss"
)

var (
	syncedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))  // gray
	addedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("10")) // green
)

// Print writes one line per entry and a summary.
func Print(w io.Writer, r *Report) {
	for _, e := range r.Items {
		t := e.Local
		line := fmt.Sprintf("%s | %-30.30s | %-32s | %12s %s", t.Date.Format(time.DateOnly), t.Label, t.VendorID, t.Amount.StringFixed(2), t.Currency)
		if e.Status == Synced {
			fmt.Fprintln(w, syncedStyle.Render("= "+line))
			continue
		}
		fmt.Fprintln(w, addedStyle.Render("+ "+line))
	}

	if r.MissingCount() == 0 {
		fmt.Fprintf(w, "\nPlan: All %d transaction(s) are in sync\n", r.InSyncCount())
	} else {
		fmt.Fprintf(w, "\nPlan: %d transaction(s) will be added, %d already in sync\n", r.MissingCount(), r.InSyncCount())
	}
}
