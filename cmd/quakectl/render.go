package main

import (
	"fmt"
	"io"
	"math"
	"strings"
	"unicode/utf8"

	"github.com/charmbracelet/lipgloss"

	"github.com/couchcryptid/quake-globe/internal/domain"
	"github.com/couchcryptid/quake-globe/internal/heatmap"
	"github.com/couchcryptid/quake-globe/internal/scene"
	"github.com/couchcryptid/quake-globe/internal/viewer"
)

const placeWidth = 44

// printer writes controller output. Colors are dropped automatically when w
// is not a terminal.
type printer struct {
	w        io.Writer
	title    lipgloss.Style
	colHead  lipgloss.Style
	dim      lipgloss.Style
	notice   lipgloss.Style
	bandText map[string]lipgloss.Style
}

func newPrinter(w io.Writer) *printer {
	r := lipgloss.NewRenderer(w)
	p := &printer{
		w:        w,
		title:    r.NewStyle().Bold(true),
		colHead:  r.NewStyle().Foreground(lipgloss.Color("245")),
		dim:      r.NewStyle().Foreground(lipgloss.Color("240")),
		notice:   r.NewStyle().Bold(true).Foreground(lipgloss.Color("9")),
		bandText: make(map[string]lipgloss.Style, len(domain.Bands)),
	}
	for _, b := range domain.Bands {
		p.bandText[b.Color] = r.NewStyle().Foreground(lipgloss.Color(b.Color))
	}
	return p
}

// Notify satisfies viewer.Notifier.
func (p *printer) Notify(msg string) {
	fmt.Fprintln(p.w, p.notice.Render(msg))
}

func (p *printer) mag(m float64, text string) string {
	return p.bandText[domain.BandFor(m).Color].Render(text)
}

// magAt colors text by the magnitude of event i, uncolored if i is out of range.
func (p *printer) magAt(set domain.EventSet, i int, text string) string {
	e, ok := set.At(i)
	if !ok {
		return text
	}
	return p.mag(e.Magnitude, text)
}

func (p *printer) header(s viewer.Snapshot) {
	fmt.Fprintf(p.w, "%s  %s\n",
		p.title.Render(s.Window.Label()),
		p.dim.Render(fmt.Sprintf("%d events, %s, generation %d", s.Events.Len(), s.Mode, s.Generation)),
	)
}

func (p *printer) summary(bar viewer.SummaryBar, set domain.EventSet) {
	fmt.Fprintln(p.w, p.title.Render(bar.Header))
	for _, e := range bar.Entries {
		fmt.Fprintf(p.w, "  %s %s\n", p.dim.Render(fmt.Sprintf("[%d]", e.Ref.Index)), p.magAt(set, e.Ref.Index, e.Label))
	}
	if bar.ViewAll != "" {
		fmt.Fprintln(p.w, "  "+p.dim.Render("("+bar.ViewAll+": -table)"))
	}
}

func (p *printer) table(t viewer.Table, set domain.EventSet) {
	cols := t.Columns
	fmt.Fprintln(p.w, p.colHead.Render(fmt.Sprintf("%5s  %-4s  %-10s  %-*s  %s", "#", cols[0], cols[1], placeWidth, cols[2], cols[3])))
	if t.Placeholder != "" {
		fmt.Fprintln(p.w, p.dim.Render(t.Placeholder))
		return
	}
	for _, row := range t.Rows {
		fmt.Fprintf(p.w, "%5d  %s  %-10s  %-*s  %s\n",
			row.Ref.Index,
			p.magAt(set, row.Ref.Index, fmt.Sprintf("%-4s", row.Magnitude)),
			row.Depth,
			placeWidth, truncate(row.Place, placeWidth),
			row.Time,
		)
	}
}

// hotspots lists density cells, each with the event nearest its center.
func (p *printer) hotspots(spots []heatmap.Hotspot, set domain.EventSet, g *scene.Globe) {
	fmt.Fprintln(p.w, p.title.Render("Hotspots:"))
	if len(spots) == 0 {
		fmt.Fprintln(p.w, "  "+p.dim.Render("none in view"))
		return
	}
	for _, h := range spots {
		line := fmt.Sprintf("  weight %6.1f  events %3d  at (%4.0f, %4.0f)", h.Weight, h.Count, h.X, h.Y)
		if e, ok := nearestEvent(h, set, g); ok {
			line += "  " + p.mag(e.Magnitude, fmt.Sprintf("%.1f - %s", e.Magnitude, e.Place))
		}
		fmt.Fprintln(p.w, line)
	}
}

func (p *printer) camera(target string, c scene.Camera) {
	fmt.Fprintf(p.w, "%s %s  lon %.4f  lat %.4f  altitude %.0f m  pitch %.0f°\n",
		p.title.Render("Camera"), p.dim.Render("("+target+")"),
		c.Center.Lon(), c.Center.Lat(), c.Altitude, c.PitchDeg)
}

// nearestEvent picks the strongest visible event closest to the hotspot
// center. Events are sorted by magnitude, so ties keep the stronger one.
func nearestEvent(h heatmap.Hotspot, set domain.EventSet, g *scene.Globe) (domain.Event, bool) {
	best, found := domain.Event{}, false
	bestDist := math.Inf(1)
	for _, e := range set.Events() {
		x, y, ok := g.Project(e.Point())
		if !ok {
			continue
		}
		if d := math.Hypot(x-h.X, y-h.Y); d < bestDist {
			best, bestDist, found = e, d, true
		}
	}
	return best, found
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return strings.TrimSpace(string(r[:n-1])) + "…"
}
