package main

import (
	"fmt"
	"io"
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"

	"ApartmentHunter/internal/app"
	"ApartmentHunter/internal/domain"
)

const titleWidth = 40

func renderStatus(w io.Writer, s domain.StatusSummary, recent []domain.Listing) {
	overview := table.NewWriter()
	overview.SetOutputMirror(w)
	overview.SetTitle("Listing store")
	overview.AppendRows([]table.Row{
		{"Total listings", s.TotalListings},
		{"Passed filters", s.PassedListings},
		{"Seen today", s.SeenToday},
		{"Seen this week", s.SeenThisWeek},
		{"Price min", optionalInt(s.PriceMin)},
		{"Price max", optionalInt(s.PriceMax)},
		{"Price avg", optionalFloat(s.PriceAvg)},
		{"Scan sessions", s.Sessions},
	})
	if last := s.LastSession; last != nil {
		overview.AppendRow(table.Row{"Last scan", fmt.Sprintf("%s at %s (%d new, %d passed)",
			last.Status, last.StartedAt.Local().Format("2006-01-02 15:04"), last.New, last.Passed)})
	}
	overview.Render()

	if len(s.BySource) > 0 {
		sources := table.NewWriter()
		sources.SetOutputMirror(w)
		sources.AppendHeader(table.Row{"Source", "Listings"})
		for _, sc := range s.BySource {
			sources.AppendRow(table.Row{sc.Source, sc.Count})
		}
		sources.Render()
	}

	if len(recent) > 0 {
		listings := table.NewWriter()
		listings.SetOutputMirror(w)
		listings.SetTitle("Recent matches")
		listings.AppendHeader(table.Row{"Title", "Price", "Rooms", "Location", "Last seen", "URL"})
		for _, l := range recent {
			listings.AppendRow(table.Row{
				truncate(l.Title, titleWidth),
				optionalInt(l.Price),
				optionalFloat(l.Rooms),
				l.Location,
				l.LastSeenAt.Local().Format("2006-01-02 15:04"),
				l.URL,
			})
		}
		listings.Render()
	}
}

func renderChecks(w io.Writer, results []app.CheckResult) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.AppendHeader(table.Row{"Check", "Result", "Detail"})
	for _, r := range results {
		result := "ok"
		if !r.OK {
			result = "FAIL"
		}
		t.AppendRow(table.Row{r.Name, result, r.Detail})
	}
	t.Render()
}

func optionalInt(v *int) string {
	if v == nil {
		return "-"
	}
	return strconv.Itoa(*v)
}

func optionalFloat(v *float64) string {
	if v == nil {
		return "-"
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit-1]) + "…"
}
