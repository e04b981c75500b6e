package tcgplayer

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"lastsold-monitor/models"
)

const productPage = `<!doctype html>
<html><body>
<div class="product-details">
  <h1 class="product-details__name">Pikachu - 020/M-P</h1>
</div>
<section class="latest-sales">
  <table class="latest-sales-table">
    <thead><tr><th>Date</th><th>Condition</th><th>Qty</th><th>Price</th></tr></thead>
    <tbody>
      <tr>
        <td class="latest-sales-table__tbody__date">3/9/2024</td>
        <td class="latest-sales-table__tbody__condition"><span>Near Mint Holofoil</span></td>
        <td class="latest-sales-table__tbody__quantity">1</td>
        <td class="latest-sales-table__tbody__price">$1,234.56</td>
      </tr>
      <tr>
        <td class="latest-sales-table__tbody__date"> 2 days
            ago </td>
        <td class="latest-sales-table__tbody__condition">LP</td>
        <td class="latest-sales-table__tbody__quantity">2</td>
        <td class="latest-sales-table__tbody__price">$12.00</td>
      </tr>
      <tr class="spacer"><td colspan="4"></td></tr>
    </tbody>
  </table>
</section>
</body></html>`

func TestSegmentRows(t *testing.T) {
	got, err := NewSegmenter(Selectors{}).Segment(productPage)
	if err != nil {
		t.Fatalf("Segment: %v", err)
	}

	want := []models.Candidate{
		{Index: 0, Title: "Pikachu - 020/M-P", RawDate: "3/9/2024", RawCondition: "Near Mint Holofoil", RawPrice: "$1,234.56"},
		{Index: 1, Title: "Pikachu - 020/M-P", RawDate: "2 days ago", RawCondition: "LP", RawPrice: "$12.00"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Segment mismatch (-want +got):\n%s", diff)
	}
}

func TestSegmentMissingTable(t *testing.T) {
	_, err := NewSegmenter(Selectors{}).Segment(`<html><body><h1>Access denied</h1></body></html>`)
	if !errors.Is(err, ErrSalesTableMissing) {
		t.Errorf("expected ErrSalesTableMissing, got %v", err)
	}
}

func TestSegmentEmptyTable(t *testing.T) {
	got, err := NewSegmenter(Selectors{}).Segment(`<table class="latest-sales-table"><tbody></tbody></table>`)
	if err != nil {
		t.Fatalf("Segment: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected no candidates, got %d", len(got))
	}
}

func TestSegmentCustomSelectors(t *testing.T) {
	markup := `<ul class="sales"><li><i class="d">Jan 2, 2024</i><i class="c">NM</i><i class="p">$3.00</i></li></ul>`
	seg := NewSegmenter(Selectors{Container: "ul.sales", Row: "ul.sales li", Date: ".d", Condition: ".c", Price: ".p"})

	got, err := seg.Segment(markup)
	if err != nil {
		t.Fatalf("Segment: %v", err)
	}
	want := []models.Candidate{{Index: 0, RawDate: "Jan 2, 2024", RawCondition: "NM", RawPrice: "$3.00"}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Segment mismatch (-want +got):\n%s", diff)
	}
}

func TestCardNameFromURL(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{"https://www.tcgplayer.com/product/649586/pokemon-japan-m-p-promotional-cards-pikachu-020-m-p", "Pokemon Japan M P Promotional Cards Pikachu 020 M P"},
		{"https://www.tcgplayer.com/product/593355/pokemon-sv-prismatic-evolutions-elite-trainer-box?page=1&Language=English", "Pokemon Sv Prismatic Evolutions Elite Trainer Box"},
		{"https://example.com/whatever", "Unknown Card"},
	}
	for _, tt := range tests {
		if got := CardNameFromURL(tt.url); got != tt.want {
			t.Errorf("CardNameFromURL(%q) = %q; want %q", tt.url, got, tt.want)
		}
	}
}
