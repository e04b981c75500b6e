package services

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"lastsold-monitor/models"
	"lastsold-monitor/utils"
)

// InsightService builds sales statistics over the recorded seen-set.
type InsightService struct {
	logger *utils.Logger
}

func NewInsightService(logger *utils.Logger) *InsightService {
	if logger == nil {
		logger = utils.NewNopLogger()
	}
	return &InsightService{logger: logger}
}

// Generate computes overall and per-card statistics. Entries whose price
// cannot be read are counted but left out of the price figures.
func (s *InsightService) Generate(entries []models.SeenEntry) *models.SalesReport {
	report := &models.SalesReport{
		ByCondition: make(map[string]int),
	}
	if len(entries) == 0 {
		return report
	}
	report.TotalSales = len(entries)

	var prices []float64
	perCard := make(map[string]*models.CardStats)
	cardPrices := make(map[string][]float64)

	for i := range entries {
		e := entries[i]
		report.ByCondition[e.Condition]++

		cs, ok := perCard[e.CardURL]
		if !ok {
			cs = &models.CardStats{CardURL: e.CardURL}
			perCard[e.CardURL] = cs
		}
		cs.Sales++
		if cs.Title == "" {
			cs.Title = e.Title
		}
		if e.FirstObservedAt.After(cs.LastSeen) {
			cs.LastSeen = e.FirstObservedAt
		}

		p, err := strconv.ParseFloat(e.Price, 64)
		if err != nil {
			s.logger.Warn("[insights] Unreadable price %q for %s: %v", e.Price, e.Key, err)
			continue
		}
		prices = append(prices, p)
		cardPrices[e.CardURL] = append(cardPrices[e.CardURL], p)
		if report.MostExpensive == nil || p > mustPrice(report.MostExpensive.Price) {
			report.MostExpensive = &entries[i]
		}
	}

	if len(prices) > 0 {
		report.AveragePrice = round2(stat.Mean(prices, nil))
		report.MedianPrice = round2(median(prices))
		report.MinPrice = round2(floats.Min(prices))
		report.MaxPrice = round2(floats.Max(prices))
	}

	for url, cs := range perCard {
		if ps := cardPrices[url]; len(ps) > 0 {
			cs.AveragePrice = round2(stat.Mean(ps, nil))
			cs.MinPrice = round2(floats.Min(ps))
			cs.MaxPrice = round2(floats.Max(ps))
		}
		report.Cards = append(report.Cards, *cs)
	}
	sort.Slice(report.Cards, func(i, j int) bool {
		if report.Cards[i].Sales != report.Cards[j].Sales {
			return report.Cards[i].Sales > report.Cards[j].Sales
		}
		return report.Cards[i].CardURL < report.Cards[j].CardURL
	})

	return report
}

// Print renders the report as tables.
func (s *InsightService) Print(w io.Writer, r *models.SalesReport) {
	fmt.Fprintf(w, "\n  📊 LAST SOLD INSIGHTS\n\n")

	overview := table.NewWriter()
	overview.SetOutputMirror(w)
	overview.SetTitle("Overview")
	overview.AppendRows([]table.Row{
		{"Total sales recorded", r.TotalSales},
		{"Cards monitored", len(r.Cards)},
	})
	if r.TotalSales > 0 && r.MaxPrice > 0 {
		overview.AppendSeparator()
		overview.AppendRows([]table.Row{
			{"Average price", money(r.AveragePrice)},
			{"Median price", money(r.MedianPrice)},
			{"Minimum price", money(r.MinPrice)},
			{"Maximum price", money(r.MaxPrice)},
		})
	}
	if r.MostExpensive != nil {
		overview.AppendSeparator()
		overview.AppendRow(table.Row{"Most expensive sale", fmt.Sprintf("%s $%s (%s, %s)",
			truncate(titleOrURL(r.MostExpensive.Title, r.MostExpensive.CardURL), 40),
			r.MostExpensive.Price, r.MostExpensive.Condition, r.MostExpensive.SoldAt)})
	}
	overview.SetStyle(table.StyleRounded)
	overview.Render()

	if len(r.Cards) > 0 {
		cards := table.NewWriter()
		cards.SetOutputMirror(w)
		cards.SetTitle("Sales by card")
		cards.AppendHeader(table.Row{"#", "Card", "Sales", "Avg", "Min", "Max", "Last seen"})
		for i, c := range r.Cards {
			cards.AppendRow(table.Row{
				i + 1,
				truncate(titleOrURL(c.Title, c.CardURL), 40),
				c.Sales,
				money(c.AveragePrice),
				money(c.MinPrice),
				money(c.MaxPrice),
				c.LastSeen.Format("2006-01-02 15:04"),
			})
		}
		cards.SetColumnConfigs([]table.ColumnConfig{
			{Number: 3, Align: text.AlignRight},
			{Number: 4, Align: text.AlignRight},
			{Number: 5, Align: text.AlignRight},
			{Number: 6, Align: text.AlignRight},
		})
		cards.SetStyle(table.StyleRounded)
		cards.Render()
	}

	if len(r.ByCondition) > 0 {
		type condCount struct {
			cond  string
			count int
		}
		var conds []condCount
		for c, n := range r.ByCondition {
			conds = append(conds, condCount{c, n})
		}
		sort.Slice(conds, func(i, j int) bool {
			if conds[i].count != conds[j].count {
				return conds[i].count > conds[j].count
			}
			return conds[i].cond < conds[j].cond
		})

		byCond := table.NewWriter()
		byCond.SetOutputMirror(w)
		byCond.SetTitle("Sales by condition")
		for _, cc := range conds {
			byCond.AppendRow(table.Row{cc.cond, strings.Repeat("█", min(cc.count, 40)), cc.count})
		}
		byCond.SetStyle(table.StyleRounded)
		byCond.Render()
	}
	fmt.Fprintln(w)
}

func median(xs []float64) float64 {
	sorted := append([]float64(nil), xs...)
	sort.Float64s(sorted)
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

func mustPrice(s string) float64 {
	p, _ := strconv.ParseFloat(s, 64)
	return p
}

func money(f float64) string { return fmt.Sprintf("$%.2f", f) }

func titleOrURL(title, url string) string {
	if title != "" {
		return title
	}
	return url
}

func round2(f float64) float64 {
	return float64(int(f*100+0.5)) / 100
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
