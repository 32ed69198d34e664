// Package output renders helix runs for the terminal.
//
// A [Printer] writes a run header, one line per live stream event, and a
// final view of the matter table with status icons, the running tally and
// the terminal hint (Done, Close or Retry). Styling uses lipgloss; color is
// dropped automatically when the writer is not a terminal.
package output

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/muesli/termenv"

	"helixhub/internal/progress"
	"helixhub/internal/stream"
)

// Hint is the terminal action offered once a run ends.
type Hint string

const (
	// HintDone means every matter succeeded and the notice was committed.
	HintDone Hint = "Done"

	// HintRetry means the server accepted the request but some matters failed.
	HintRetry Hint = "Retry"

	// HintClose means the run could not start; there is nothing to retry.
	HintClose Hint = "Close"
)

// HintFor picks the hint for a finished run.
func HintFor(committed, accepted bool) Hint {
	switch {
	case committed:
		return HintDone
	case accepted:
		return HintRetry
	default:
		return HintClose
	}
}

// NoticeRow is one line of the notice listing.
type NoticeRow struct {
	ClientID string
	Status   string
	CCLDate  string
	Matters  int
}

// Printer writes styled run output.
type Printer struct {
	w           io.Writer
	styles      styles
	truncateLen int
}

// NewPrinter creates a [Printer] writing to stdout.
func NewPrinter() *Printer {
	return NewPrinterWithWriter(os.Stdout)
}

// NewPrinterWithWriter creates a [Printer] writing to w.
func NewPrinterWithWriter(w io.Writer) *Printer {
	r := lipgloss.NewRenderer(w)
	return &Printer{
		w:           w,
		styles:      newStyles(r),
		truncateLen: 80,
	}
}

// SetColor disables styling when enabled is false.
func (p *Printer) SetColor(enabled bool) {
	if enabled {
		return
	}
	r := lipgloss.NewRenderer(p.w)
	r.SetColorProfile(termenv.Ascii)
	p.styles = newStyles(r)
}

// SetTruncateLength bounds rendered messages. Values below 4 are ignored.
func (p *Printer) SetTruncateLength(n int) {
	if n >= 4 {
		p.truncateLen = n
	}
}

// RunHeader announces an operation.
func (p *Printer) RunHeader(op, clientID string, matters int) {
	fmt.Fprintf(p.w, "%s %s %s\n",
		p.styles.accent.Render("●"),
		p.styles.bold.Render(op),
		p.styles.muted.Render(fmt.Sprintf("%s (%d %s)", clientID, matters, plural(matters, "matter", "matters"))))
}

// Attempt announces a retry. The first attempt prints nothing.
func (p *Printer) Attempt(attempt, maxAttempts int) {
	if attempt <= 1 {
		return
	}
	fmt.Fprintf(p.w, "%s retrying (%d/%d)\n", p.styles.warn.Render("!"), attempt, maxAttempts)
}

// Event prints one live line for a stream event. Unknown and terminal
// events print nothing; the final view covers them.
func (p *Printer) Event(ev stream.Event) {
	switch ev.Type {
	case stream.EventTypeProgress:
		if ev.Step != "" {
			fmt.Fprintf(p.w, "  %s %s\n", p.styles.muted.Render("→"), p.truncate(ev.Step))
		}
	case stream.EventTypeMatterStart:
		fmt.Fprintf(p.w, "  %s %s\n", p.styles.accent.Render("…"), ev.DisplayNumber)
	case stream.EventTypeMatterComplete:
		p.matterLine(progress.Entry{
			DisplayNumber: ev.DisplayNumber,
			Status:        progress.ResolveOutcome(ev),
			Error:         ev.Error,
			Message:       ev.Message,
		})
	case stream.EventTypeError:
		msg := ev.Error
		if msg == "" {
			msg = "stream reported an error"
		}
		fmt.Fprintf(p.w, "  %s %s\n", p.styles.err.Render("✗"), p.truncate(msg))
	}
}

// Final renders the matter table, the local counts, the server's tally when
// one was reported, and the hint.
func (p *Printer) Final(t progress.Table, server *stream.Tally, errMsg string, hint Hint) {
	fmt.Fprintln(p.w)
	for _, e := range t.Entries() {
		p.matterLine(e)
	}

	s := t.Summary()
	parts := []string{
		p.styles.success.Render(fmt.Sprintf("%d succeeded", s.Success)),
		p.styles.err.Render(fmt.Sprintf("%d failed", s.Failed)),
		p.styles.muted.Render(fmt.Sprintf("%d skipped", s.Skipped)),
	}
	if !t.Done() {
		parts = append(parts, p.styles.warn.Render(fmt.Sprintf("%d unfinished", s.Pending+s.Updating)))
	}
	fmt.Fprintf(p.w, "%s  %s\n", p.styles.label.Render("Total:"), strings.Join(parts, " | "))

	if server != nil {
		fmt.Fprintf(p.w, "%s %s\n", p.styles.label.Render("Server:"), p.styles.muted.Render(
			fmt.Sprintf("%d succeeded | %d failed | %d skipped of %d", server.Success, server.Failed, server.Skipped, server.Total)))
	}

	if errMsg != "" {
		fmt.Fprintf(p.w, "%s %s\n", p.styles.err.Render("✗"), p.truncate(errMsg))
	}
	p.hint(hint)
}

// Banner prints a single-line "could not start" error followed by the Close hint.
func (p *Printer) Banner(err error) {
	fmt.Fprintf(p.w, "%s %s\n", p.styles.err.Render("✗"), err.Error())
	p.hint(HintClose)
}

// Plan prints a dry-run preview.
func (p *Printer) Plan(op, clientID, from, next, method, url string, matters []progress.MatterRef) {
	if next == "" {
		next = from + " (unchanged)"
	}
	fmt.Fprintf(p.w, "%s %s %s\n", p.styles.accent.Render("●"), p.styles.bold.Render("Dry run:"), op)
	fmt.Fprintf(p.w, "  %s %s\n", p.styles.label.Render("client:  "), clientID)
	fmt.Fprintf(p.w, "  %s %s → %s\n", p.styles.label.Render("status:  "), from, next)
	fmt.Fprintf(p.w, "  %s %s %s\n", p.styles.label.Render("request: "), method, url)
	fmt.Fprintf(p.w, "  %s %d\n", p.styles.label.Render("matters: "), len(matters))
	for _, m := range matters {
		fmt.Fprintf(p.w, "    %s %s\n", p.styles.muted.Render("○"), m.DisplayNumber)
	}
}

// Notices prints the notice listing as a table.
func (p *Printer) Notices(rows []NoticeRow) {
	if len(rows) == 0 {
		fmt.Fprintln(p.w, p.styles.muted.Render("No notices."))
		return
	}

	data := make([][]string, 0, len(rows))
	for _, r := range rows {
		date := r.CCLDate
		if date == "" {
			date = "-"
		}
		data = append(data, []string{r.ClientID, r.Status, date, fmt.Sprintf("%d", r.Matters)})
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(p.styles.faint).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return p.styles.header
			}
			return p.styles.cell
		}).
		Headers("CLIENT", "STATUS", "CCL DATE", "MATTERS").
		Rows(data...)

	fmt.Fprintln(p.w, t.String())
}

// MatterRefs lists matters with their IDs.
func (p *Printer) MatterRefs(matters []progress.MatterRef) {
	for _, m := range matters {
		fmt.Fprintf(p.w, "  %s %s %s\n", p.styles.faint.Render("○"), m.DisplayNumber, p.styles.muted.Render("("+m.MatterID+")"))
	}
}

// Success prints a one-line success message.
func (p *Printer) Success(format string, a ...any) {
	fmt.Fprintf(p.w, "%s %s\n", p.styles.success.Render("✓"), fmt.Sprintf(format, a...))
}

func (p *Printer) matterLine(e progress.Entry) {
	line := fmt.Sprintf("  %s %s", p.icon(e.Status), e.DisplayNumber)
	detail := e.Error
	if detail == "" {
		detail = e.Message
	}
	if detail != "" {
		line += " " + p.styles.muted.Render(p.truncate(detail))
	}
	fmt.Fprintln(p.w, line)
}

func (p *Printer) icon(s progress.Status) string {
	switch s {
	case progress.StatusSuccess:
		return p.styles.success.Render("✓")
	case progress.StatusFailed:
		return p.styles.err.Render("✗")
	case progress.StatusSkipped:
		return p.styles.muted.Render("–")
	case progress.StatusUpdating:
		return p.styles.accent.Render("…")
	default:
		return p.styles.faint.Render("○")
	}
}

func (p *Printer) hint(h Hint) {
	var text string
	switch h {
	case HintDone:
		text = p.styles.success.Render("[Done]")
	case HintRetry:
		text = p.styles.warn.Render("[Retry]") + p.styles.muted.Render(" run again, or pass --retry N")
	default:
		text = p.styles.muted.Render("[Close]")
	}
	fmt.Fprintln(p.w, text)
}

func (p *Printer) truncate(s string) string {
	runes := []rune(s)
	if len(runes) <= p.truncateLen {
		return s
	}
	return string(runes[:p.truncateLen-3]) + "..."
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
