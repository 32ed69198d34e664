package output

import "github.com/charmbracelet/lipgloss"

var (
	purple = lipgloss.Color("99")
	green  = lipgloss.Color("76")
	red    = lipgloss.Color("204")
	yellow = lipgloss.Color("214")
	dim    = lipgloss.Color("243")
	faint  = lipgloss.Color("238")
)

type styles struct {
	accent  lipgloss.Style
	success lipgloss.Style
	err     lipgloss.Style
	warn    lipgloss.Style
	muted   lipgloss.Style
	faint   lipgloss.Style
	bold    lipgloss.Style
	label   lipgloss.Style
	header  lipgloss.Style
	cell    lipgloss.Style
}

// newStyles binds the palette to r so color detection follows r's writer.
func newStyles(r *lipgloss.Renderer) styles {
	return styles{
		accent:  r.NewStyle().Foreground(purple),
		success: r.NewStyle().Foreground(green),
		err:     r.NewStyle().Foreground(red),
		warn:    r.NewStyle().Foreground(yellow),
		muted:   r.NewStyle().Foreground(dim),
		faint:   r.NewStyle().Foreground(faint),
		bold:    r.NewStyle().Bold(true),
		label:   r.NewStyle().Foreground(dim),
		header:  r.NewStyle().Foreground(purple).Bold(true).Padding(0, 1),
		cell:    r.NewStyle().Padding(0, 1),
	}
}
