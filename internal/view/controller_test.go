package view

import (
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/onnwee/locamap/internal/location"
	"github.com/onnwee/locamap/internal/syncerr"
)

func records(countries ...string) []location.Location {
	out := make([]location.Location, len(countries))
	for i, c := range countries {
		out[i] = location.Location{ID: fmt.Sprintf("r%d", i), Country: c}
	}
	return out
}

func repeat(country string, n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = country
	}
	return out
}

func ids(locs []location.Location) []string {
	out := make([]string, len(locs))
	for i, l := range locs {
		out[i] = l.ID
	}
	return out
}

func TestPageCount(t *testing.T) {
	for n := 0; n <= 50; n++ {
		want := int(math.Max(1, math.Ceil(float64(n)/PageSize)))
		if got := PageCount(n); got != want {
			t.Errorf("PageCount(%d) = %d, want %d", n, got, want)
		}
	}
}

func TestController_PageCountMatchesFilter(t *testing.T) {
	c := NewController()
	recs := records(append(append(repeat("KR", 15), repeat("FR", 7)...), repeat("", 3)...)...)
	c.Apply(recs)

	tests := []struct {
		key  string
		want int
	}{
		{All, 4},
		{"KR", 3},
		{"FR", 1},
		{"JP", 1},
	}
	for _, tt := range tests {
		if got := c.PageCount(tt.key); got != tt.want {
			t.Errorf("PageCount(%q) = %d, want %d", tt.key, got, tt.want)
		}
	}
}

func TestController_SlicesAreContiguous(t *testing.T) {
	c := NewController()
	recs := records(repeat("KR", 17)...)
	c.Apply(recs)

	var seen []string
	for p := 1; p <= c.PageCount("KR"); p++ {
		if _, err := c.SetPage("KR", p); err != nil {
			t.Fatal(err)
		}
		items := c.List("KR").Items
		if len(items) > PageSize {
			t.Fatalf("page %d has %d items", p, len(items))
		}
		seen = append(seen, ids(items)...)
	}
	if fmt.Sprint(seen) != fmt.Sprint(ids(recs)) {
		t.Errorf("pages concatenated = %v, want replica order %v", seen, ids(recs))
	}
}

func TestController_SelectResetsOnlyThatCategory(t *testing.T) {
	c := NewController()
	c.Apply(records(append(repeat("KR", 20), repeat("FR", 20)...)...))

	c.SetPage("KR", 3)
	c.SetPage("FR", 2)

	if err := c.SelectCategory("KR"); err != nil {
		t.Fatal(err)
	}
	if got := c.CurrentPage("KR"); got != 1 {
		t.Errorf("KR page = %d, want reset to 1", got)
	}
	if got := c.CurrentPage("FR"); got != 2 {
		t.Errorf("FR page = %d, want preserved 2", got)
	}
	if c.Active() != "KR" {
		t.Errorf("Active() = %q", c.Active())
	}
}

func TestController_SingleRecordScenario(t *testing.T) {
	c := NewController()
	c.Apply([]location.Location{{ID: "a", Country: "KR"}})

	if err := c.SelectCategory("KR"); err != nil {
		t.Fatal(err)
	}
	if _, err := c.SetPage("KR", 1); err != nil {
		t.Fatal(err)
	}
	if got := ids(c.List("KR").Items); fmt.Sprint(got) != "[a]" {
		t.Errorf("List(KR) = %v, want [a]", got)
	}
	if got := c.Categories(); fmt.Sprint(got) != "[KR]" {
		t.Errorf("Categories() = %v, want [KR]", got)
	}
	if got := c.Tabs(); fmt.Sprint(got) != "[all KR]" {
		t.Errorf("Tabs() = %v, want [all KR]", got)
	}
}

func TestController_ClampsAfterShrink(t *testing.T) {
	c := NewController()
	c.Apply(records(repeat("KR", 21)...))
	c.SetPage("KR", 3)
	c.SetPage(All, 3)

	c.Apply(records(repeat("KR", 8)...))

	if got := c.CurrentPage("KR"); got != 2 {
		t.Errorf("KR page = %d, want clamped to 2", got)
	}
	if got := c.CurrentPage(All); got != 2 {
		t.Errorf("all page = %d, want clamped to 2", got)
	}
	if len(c.List("KR").Items) != 1 {
		t.Error("clamped page should render the last record")
	}
}

func TestController_ActiveCategoryDisappears(t *testing.T) {
	c := NewController()
	c.Apply(records("KR", "FR"))
	c.SelectCategory("FR")

	c.Apply(records("KR"))

	if c.Active() != All {
		t.Errorf("Active() = %q, want fallback to all", c.Active())
	}
	if c.ActiveList().Key != All {
		t.Error("ActiveList should render the all tab")
	}
}

func TestController_Validation(t *testing.T) {
	c := NewController()
	c.Apply(records("KR"))

	if err := c.SelectCategory("JP"); !errors.Is(err, ErrUnknownCategory) || !errors.Is(err, syncerr.ErrValidation) {
		t.Errorf("SelectCategory(JP) = %v", err)
	}
	if _, err := c.SetPage("KR", 0); !errors.Is(err, ErrInvalidPage) {
		t.Errorf("SetPage(0) = %v, want ErrInvalidPage", err)
	}
	got, err := c.SetPage("KR", 99)
	if err != nil || got != 1 {
		t.Errorf("SetPage(99) = %d, %v, want 1, nil", got, err)
	}
}

func TestCategories(t *testing.T) {
	got := Categories(records("KR", "", "FR", "KR", "all", "JP"))
	if fmt.Sprint(got) != "[KR FR JP]" {
		t.Errorf("Categories() = %v, want [KR FR JP]", got)
	}
}

func TestSlice_OutOfRange(t *testing.T) {
	recs := records("a", "b")
	if len(Slice(recs, 2)) != 0 || len(Slice(recs, 0)) != 0 {
		t.Error("out of range pages should be empty")
	}
	if len(Slice(nil, 1)) != 0 {
		t.Error("empty replica should give an empty first page")
	}
}
