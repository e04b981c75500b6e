package tcgplayer

import (
	"errors"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"lastsold-monitor/models"
)

// ErrSalesTableMissing means the rendered page had no latest-sales section
// at all, which is different from a section with zero rows.
var ErrSalesTableMissing = errors.New("latest sales table not found in markup")

// Selectors are the CSS queries used to cut a product page into sale rows.
type Selectors struct {
	Container string `yaml:"container"`
	Row       string `yaml:"row"`
	Date      string `yaml:"date"`
	Condition string `yaml:"condition"`
	Price     string `yaml:"price"`
	Title     string `yaml:"title"`
	Chart     string `yaml:"chart"`
}

// DefaultSelectors match the TCGplayer product page layout.
func DefaultSelectors() Selectors {
	return Selectors{
		Container: ".latest-sales-table",
		Row:       ".latest-sales-table tbody tr",
		Date:      ".latest-sales-table__tbody__date",
		Condition: ".latest-sales-table__tbody__condition",
		Price:     ".latest-sales-table__tbody__price",
		Title:     "h1.product-details__name",
		Chart:     ".martech-charts-chart, div.chart-container",
	}
}

// WithDefaults fills every empty selector from DefaultSelectors.
func (s Selectors) WithDefaults() Selectors {
	d := DefaultSelectors()
	fill := func(v *string, def string) {
		if strings.TrimSpace(*v) == "" {
			*v = def
		}
	}
	fill(&s.Container, d.Container)
	fill(&s.Row, d.Row)
	fill(&s.Date, d.Date)
	fill(&s.Condition, d.Condition)
	fill(&s.Price, d.Price)
	fill(&s.Title, d.Title)
	fill(&s.Chart, d.Chart)
	return s
}

// Segmenter splits rendered markup into raw candidate rows.
type Segmenter struct {
	sel Selectors
}

// NewSegmenter creates a Segmenter; empty selectors fall back to defaults.
func NewSegmenter(sel Selectors) *Segmenter {
	return &Segmenter{sel: sel.WithDefaults()}
}

// Segment returns one Candidate per visible sale row, in page order.
func (s *Segmenter) Segment(markup string) ([]models.Candidate, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return nil, fmt.Errorf("segment: parse markup: %w", err)
	}

	if doc.Find(s.sel.Container).Length() == 0 {
		return nil, ErrSalesTableMissing
	}

	title := cellText(doc.Find(s.sel.Title).First())

	var candidates []models.Candidate
	doc.Find(s.sel.Row).Each(func(i int, row *goquery.Selection) {
		c := models.Candidate{
			Index:        i,
			Title:        title,
			RawDate:      cellText(row.Find(s.sel.Date).First()),
			RawCondition: cellText(row.Find(s.sel.Condition).First()),
			RawPrice:     cellText(row.Find(s.sel.Price).First()),
		}
		// header or spacer rows carry none of the cells
		if c.RawDate == "" && c.RawCondition == "" && c.RawPrice == "" {
			return
		}
		candidates = append(candidates, c)
	})
	return candidates, nil
}

func cellText(sel *goquery.Selection) string {
	return strings.Join(strings.Fields(sel.Text()), " ")
}
