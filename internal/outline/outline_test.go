package outline

import (
	"testing"

	"github.com/hpungsan/nbaudit/internal/extract"
)

func levels(ls ...int) []extract.Heading {
	hs := make([]extract.Heading, len(ls))
	for i, l := range ls {
		hs[i] = extract.Heading{Level: l, CellID: "c"}
	}
	return hs
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		levels []int
		want   []Finding
	}{
		{"empty", nil, nil},
		{"well formed", []int{1, 2, 3, 2, 3}, nil},
		{"single", []int{3}, nil},
		{"skip", []int{1, 3}, []Finding{{Kind: Skip, From: 2, To: 3}}},
		{"skip after descend", []int{1, 2, 4}, []Finding{{Kind: Skip, From: 3, To: 4}}},
		{"out of order", []int{2, 1}, []Finding{{Kind: OutOfOrder, From: 2, To: 1}}},
		{"returning to first level is fine", []int{1, 2, 1}, nil},
		{"skip takes precedence", []int{2, 1, 3}, []Finding{
			{Kind: OutOfOrder, From: 2, To: 1},
			{Kind: Skip, From: 2, To: 3},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Validate(levels(tt.levels...))
			if len(got) != len(tt.want) {
				t.Fatalf("Validate(%v) = %+v, want %+v", tt.levels, got, tt.want)
			}
			for i := range got {
				if got[i].Kind != tt.want[i].Kind || got[i].From != tt.want[i].From || got[i].To != tt.want[i].To {
					t.Errorf("finding[%d] = %+v, want %+v", i, got[i], tt.want[i])
				}
			}
		})
	}
}

// highestLevel is pinned to the first heading's level. A document opening
// with h3 flags every later h2 and h1 against h3, not against the
// shallowest level seen so far.
func TestValidate_HighestLevelNeverUpdates(t *testing.T) {
	got := Validate(levels(3, 2, 1, 2))
	want := []Finding{
		{Kind: OutOfOrder, From: 3, To: 2},
		{Kind: OutOfOrder, From: 3, To: 1},
		{Kind: OutOfOrder, From: 3, To: 2},
	}
	if len(got) != len(want) {
		t.Fatalf("Validate() = %+v, want %+v", got, want)
	}
	for i := range want {
		if got[i].Kind != want[i].Kind || got[i].From != want[i].From || got[i].To != want[i].To {
			t.Errorf("finding[%d] = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestValidate_CarriesCellAndText(t *testing.T) {
	hs := []extract.Heading{
		{Level: 1, Text: "Title", CellID: "a"},
		{Level: 3, Text: "Deep", CellID: "b"},
	}
	got := Validate(hs)
	if len(got) != 1 || got[0].CellID != "b" || got[0].Heading != "Deep" {
		t.Errorf("Validate() = %+v, want finding on cell b", got)
	}
}

func TestMissingTopLevel(t *testing.T) {
	cells := []Cell{{ID: "code", IsMarkdown: false}, {ID: "md1", IsMarkdown: true}, {ID: "md2", IsMarkdown: true}}

	if id, ok := MissingTopLevel(cells, levels(2, 3)); !ok || id != "md1" {
		t.Errorf("MissingTopLevel() = %q, %v; want md1, true", id, ok)
	}
	if _, ok := MissingTopLevel(cells, levels(2, 1)); ok {
		t.Error("document with an h1 should not report missing top level")
	}
	if _, ok := MissingTopLevel([]Cell{{ID: "code"}}, nil); ok {
		t.Error("document without markdown cells has nowhere to attach the finding")
	}
	if id, ok := MissingTopLevel(cells, nil); !ok || id != "md1" {
		t.Errorf("no headings at all: got %q, %v; want md1, true", id, ok)
	}
}
