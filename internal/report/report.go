// Package report renders dealer tables, policies and simulation summaries as
// fixed-width text or CSV. Rows are totals and columns are up-cards.
package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/MJE43/blackjack-policy/internal/blackjack"
	"github.com/MJE43/blackjack-policy/internal/dealer"
	"github.com/MJE43/blackjack-policy/internal/simulate"
	"github.com/MJE43/blackjack-policy/internal/solver"
	"github.com/MJE43/blackjack-policy/internal/store"
)

func newTab(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
}

func upCardHeader(first string) []string {
	header := []string{first}
	for _, up := range blackjack.UpCards() {
		header = append(header, blackjack.Card(up).String())
	}
	return header
}

func writeTabRow(w io.Writer, cells []string) {
	for i, c := range cells {
		if i > 0 {
			fmt.Fprint(w, "\t")
		}
		fmt.Fprint(w, c)
	}
	fmt.Fprint(w, "\t\n")
}

func dealerRows(t dealer.OutcomeTable) [][]string {
	rows := make([][]string, 0, len(blackjack.UpCards()))
	for _, up := range blackjack.UpCards() {
		row := []string{blackjack.Card(up).String()}
		for _, o := range dealer.AllOutcomes {
			row = append(row, strconv.FormatFloat(t.Probability(up, o), 'f', 6, 64))
		}
		rows = append(rows, row)
	}
	return rows
}

func dealerHeader() []string {
	header := []string{"up"}
	for _, o := range dealer.AllOutcomes {
		header = append(header, o.String())
	}
	return header
}

// DealerTable writes the outcome probabilities, one row per up-card.
func DealerTable(w io.Writer, t dealer.OutcomeTable) error {
	tw := newTab(w)
	writeTabRow(tw, dealerHeader())
	for _, row := range dealerRows(t) {
		writeTabRow(tw, row)
	}
	return tw.Flush()
}

// DealerCSV writes the outcome probabilities as CSV.
func DealerCSV(w io.Writer, t dealer.OutcomeTable) error {
	cw := csv.NewWriter(w)
	_ = cw.Write(dealerHeader())
	for _, row := range dealerRows(t) {
		_ = cw.Write(row)
	}
	cw.Flush()
	return cw.Error()
}

func policyRow(r solver.Row) []string {
	row := []string{r.Label}
	for _, c := range r.Cells {
		row = append(row, c.Action.Short())
	}
	return row
}

// Policy writes the hit/stand grid: the hard block, a blank line, then the
// usable-ace block.
func Policy(w io.Writer, p solver.Policy) error {
	tw := newTab(w)
	writeTabRow(tw, upCardHeader("hard"))
	for _, r := range p.Hard {
		writeTabRow(tw, policyRow(r))
	}
	fmt.Fprint(tw, "\t\n")
	writeTabRow(tw, upCardHeader("soft"))
	for _, r := range p.Soft {
		writeTabRow(tw, policyRow(r))
	}
	return tw.Flush()
}

// PolicyCSV writes one record per cell: row label, up-card, action and the
// optimal expected cost.
func PolicyCSV(w io.Writer, p solver.Policy) error {
	cw := csv.NewWriter(w)
	_ = cw.Write([]string{"total", "soft", "up_card", "action", "cost"})
	for _, r := range p.Rows() {
		for _, c := range r.Cells {
			_ = cw.Write([]string{
				r.Label,
				strconv.FormatBool(r.Soft),
				blackjack.Card(c.UpCard).String(),
				c.Action.String(),
				strconv.FormatFloat(c.Cost, 'f', -1, 64),
			})
		}
	}
	cw.Flush()
	return cw.Error()
}

// Runs lists stored runs, newest first.
func Runs(w io.Writer, runs []store.Run) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tKIND\tHORIZON\tTIMESTEP\tCREATED")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%s\n", r.ID, r.Kind, r.Horizon, r.Timestep, r.CreatedAt.Format("2006-01-02 15:04:05"))
	}
	return tw.Flush()
}

// Summary writes a simulation summary with grouped digits.
func Summary(w io.Writer, s simulate.Summary) error {
	pr := message.NewPrinter(language.English)
	_, err := pr.Fprintf(w,
		"hands         %d\nnot beaten    %d (%.4f ± %.4f)\nexact         %.4f\ndeviation     %.2f σ\nplayer busts  %d\ndealer busts  %d\n",
		s.Hands, s.NotBeaten, s.Rate, s.StdErr, s.Expected, s.Deviation(), s.PlayerBusts, s.DealerBusts)
	if err != nil {
		return err
	}
	if s.TimedOut {
		_, err = fmt.Fprintln(w, "timed out before every hand was played")
	}
	return err
}
