package services

import (
	"bytes"
	"testing"
	"time"

	"lastsold-monitor/models"
	"lastsold-monitor/utils"
)

const (
	pikachu = "https://www.tcgplayer.com/product/649586/pikachu"
	etb     = "https://www.tcgplayer.com/product/501234/elite-trainer-box"
)

func sampleEntries() []models.SeenEntry {
	day := time.Date(2024, time.March, 10, 12, 0, 0, 0, time.UTC)
	return []models.SeenEntry{
		{CardURL: pikachu, Key: "a", Title: "Pikachu", Price: "10.00", Condition: "Near Mint", SoldAt: "2024-03-09", FirstObservedAt: day},
		{CardURL: pikachu, Key: "b", Title: "Pikachu", Price: "20.00", Condition: "Lightly Played", SoldAt: "2024-03-08", FirstObservedAt: day.Add(time.Hour)},
		{CardURL: pikachu, Key: "c", Title: "Pikachu", Price: "30.00", Condition: "Near Mint", SoldAt: "2024-03-07", FirstObservedAt: day},
		{CardURL: etb, Key: "d", Title: "Elite Trainer Box", Price: "150.00", Condition: "Sealed", SoldAt: "2024-03-09", FirstObservedAt: day},
		{CardURL: etb, Key: "e", Title: "Elite Trainer Box", Price: "40.00", Condition: "Near Mint", SoldAt: "2024-03-06", FirstObservedAt: day},
	}
}

func TestInsightCounts(t *testing.T) {
	svc := NewInsightService(utils.NewNopLogger())
	r := svc.Generate(sampleEntries())
	if r.TotalSales != 5 {
		t.Errorf("TotalSales: got %d, want 5", r.TotalSales)
	}
	if len(r.Cards) != 2 {
		t.Fatalf("Cards: got %d, want 2", len(r.Cards))
	}
	if r.ByCondition["Near Mint"] != 3 {
		t.Errorf("ByCondition[Near Mint]: got %d, want 3", r.ByCondition["Near Mint"])
	}
}

func TestInsightPrices(t *testing.T) {
	svc := NewInsightService(utils.NewNopLogger())
	r := svc.Generate(sampleEntries())
	if r.AveragePrice != 50 {
		t.Errorf("AveragePrice: got %.2f, want 50", r.AveragePrice)
	}
	if r.MedianPrice != 30 {
		t.Errorf("MedianPrice: got %.2f, want 30", r.MedianPrice)
	}
	if r.MinPrice != 10 {
		t.Errorf("MinPrice: got %.2f, want 10", r.MinPrice)
	}
	if r.MaxPrice != 150 {
		t.Errorf("MaxPrice: got %.2f, want 150", r.MaxPrice)
	}
}

func TestInsightMostExpensive(t *testing.T) {
	svc := NewInsightService(utils.NewNopLogger())
	r := svc.Generate(sampleEntries())
	if r.MostExpensive == nil {
		t.Fatal("MostExpensive should not be nil")
	}
	if r.MostExpensive.Key != "d" {
		t.Errorf("MostExpensive: got %q, want %q", r.MostExpensive.Key, "d")
	}
}

func TestInsightPerCard(t *testing.T) {
	svc := NewInsightService(utils.NewNopLogger())
	r := svc.Generate(sampleEntries())

	first := r.Cards[0]
	if first.CardURL != pikachu || first.Sales != 3 {
		t.Fatalf("first card: got %s with %d sales", first.CardURL, first.Sales)
	}
	if first.AveragePrice != 20 || first.MinPrice != 10 || first.MaxPrice != 30 {
		t.Errorf("pikachu prices: got avg %.2f min %.2f max %.2f", first.AveragePrice, first.MinPrice, first.MaxPrice)
	}
	want := time.Date(2024, time.March, 10, 13, 0, 0, 0, time.UTC)
	if !first.LastSeen.Equal(want) {
		t.Errorf("LastSeen: got %v, want %v", first.LastSeen, want)
	}
}

func TestInsightUnreadablePrice(t *testing.T) {
	entries := []models.SeenEntry{
		{CardURL: pikachu, Key: "a", Price: "n/a", Condition: "Near Mint"},
		{CardURL: pikachu, Key: "b", Price: "4.50", Condition: "Near Mint"},
	}
	r := NewInsightService(nil).Generate(entries)
	if r.TotalSales != 2 {
		t.Errorf("TotalSales: got %d, want 2", r.TotalSales)
	}
	if r.AveragePrice != 4.5 {
		t.Errorf("AveragePrice: got %.2f, want 4.50", r.AveragePrice)
	}
}

func TestInsightEmpty(t *testing.T) {
	svc := NewInsightService(utils.NewNopLogger())
	r := svc.Generate(nil)
	if r.TotalSales != 0 {
		t.Errorf("expected zero sales, got %d", r.TotalSales)
	}
	if r.MostExpensive != nil {
		t.Error("MostExpensive should be nil for empty input")
	}

	var buf bytes.Buffer
	svc.Print(&buf, r)
	if !bytes.Contains(buf.Bytes(), []byte("Total sales recorded")) {
		t.Errorf("overview missing from output:\n%s", buf.String())
	}
}

func TestInsightPrint(t *testing.T) {
	svc := NewInsightService(utils.NewNopLogger())
	var buf bytes.Buffer
	svc.Print(&buf, svc.Generate(sampleEntries()))

	for _, want := range []string{"Elite Trainer Box", "$150.00", "Sales by card", "Lightly Played"} {
		if !bytes.Contains(buf.Bytes(), []byte(want)) {
			t.Errorf("output missing %q:\n%s", want, buf.String())
		}
	}
}
