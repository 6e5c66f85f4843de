package extract

import (
	"testing"
)

func TestMarkdownImages(t *testing.T) {
	tests := []struct {
		name        string
		src         string
		wantSources []string
		wantMissing bool
	}{
		{"with alt", "![a cat](cat.png)", []string{"cat.png"}, false},
		{"without alt", "![](cat.png)", []string{"cat.png"}, true},
		{"mixed", "![](a.png) and ![b](b.png)", []string{"a.png", "b.png"}, true},
		{"none", "just text", nil, false},
		{"empty source", "![alt]()", nil, false},
		{"url", "![chart](https://example.com/c.png)", []string{"https://example.com/c.png"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			refs, missing := MarkdownImages(tt.src, "c1")
			if missing != tt.wantMissing {
				t.Errorf("missingAlt = %v, want %v", missing, tt.wantMissing)
			}
			if len(refs) != len(tt.wantSources) {
				t.Fatalf("got %d refs, want %d", len(refs), len(tt.wantSources))
			}
			for i, r := range refs {
				if r.Source != tt.wantSources[i] {
					t.Errorf("refs[%d].Source = %q, want %q", i, r.Source, tt.wantSources[i])
				}
				if r.CellID != "c1" {
					t.Errorf("refs[%d].CellID = %q, want c1", i, r.CellID)
				}
			}
		})
	}
}

func TestMarkdownImages_HasAltPerRef(t *testing.T) {
	refs, _ := MarkdownImages("![](a.png) ![b](b.png)", "c")
	if len(refs) != 2 {
		t.Fatalf("got %d refs, want 2", len(refs))
	}
	if refs[0].HasAlt || !refs[1].HasAlt {
		t.Errorf("HasAlt = %v, %v; want false, true", refs[0].HasAlt, refs[1].HasAlt)
	}
}

func TestHTMLImages(t *testing.T) {
	markup := `<div><img src="a.png" alt="chart"><p><img src=" b.png "></p><img src="c.png" alt=""></div>`
	refs := HTMLImages(markup, "c1")
	if len(refs) != 3 {
		t.Fatalf("got %d refs, want 3", len(refs))
	}
	want := []struct {
		src    string
		hasAlt bool
	}{{"a.png", true}, {"b.png", false}, {"c.png", false}}
	for i, w := range want {
		if refs[i].Source != w.src || refs[i].HasAlt != w.hasAlt {
			t.Errorf("refs[%d] = %+v, want src %q hasAlt %v", i, refs[i], w.src, w.hasAlt)
		}
	}
}

func TestMarkdownCell(t *testing.T) {
	src := "# Title\n\n![](plot.png)\n\n<img src=\"logo.png\" alt=\"Logo\">\n"
	c := MarkdownCell(src, "c1")
	if !c.MissingAlt {
		t.Error("expected MissingAlt from markdown image")
	}
	if len(c.Images) != 2 {
		t.Fatalf("got %d images, want 2", len(c.Images))
	}

	ok := MarkdownCell("<img src=\"x.png\" alt=\"X\"> ![x](y.png)", "c2")
	if ok.MissingAlt {
		t.Error("all images carry alt text")
	}
}

func TestCodeCell(t *testing.T) {
	c := CodeCell(`<img src="data:image/png;base64,AAAA">`, "c1")
	if !c.MissingAlt || len(c.Images) != 1 {
		t.Errorf("CodeCell() = %+v, want one image missing alt", c)
	}
	if empty := CodeCell("", "c1"); empty.MissingAlt || len(empty.Images) != 0 {
		t.Errorf("CodeCell(\"\") = %+v, want empty", empty)
	}
}

func TestHeadings(t *testing.T) {
	src := "# Intro\nSome text\n<h2>Setup</h2>\n### Details  \n#NotAHeading\n<H4>Upper</H4>\n"
	got := Headings(src, "c1")

	want := []struct {
		level int
		text  string
	}{{1, "Intro"}, {2, "Setup"}, {3, "Details"}, {4, "Upper"}}
	if len(got) != len(want) {
		t.Fatalf("got %d headings %+v, want %d", len(got), got, len(want))
	}
	for i, w := range want {
		if got[i].Level != w.level || got[i].Text != w.text {
			t.Errorf("headings[%d] = h%d %q, want h%d %q", i, got[i].Level, got[i].Text, w.level, w.text)
		}
		if got[i].CellID != "c1" {
			t.Errorf("headings[%d].CellID = %q", i, got[i].CellID)
		}
	}
}

func TestHeadings_HTMLRequiresMatchingClose(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want int
	}{
		{"matching", "<h2>A</h2>", 1},
		{"mismatched", "<h2>A</h3>", 0},
		{"split across lines", "<h2>A\n</h2>", 0},
		{"two on one line", "<h2>A</h2><h3>B</h3>", 2},
		{"first close wins", "<h2>A</h2> tail </h2>", 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Headings(tt.src, "c"); len(got) != tt.want {
				t.Errorf("Headings(%q) = %+v, want %d", tt.src, got, tt.want)
			}
		})
	}
}

// Headings come back in source order across both syntaxes. Collecting all
// markdown headings first and then all HTML headings would report this cell
// as Second, First; the outline is checked against what a reader sees, so
// byte-offset order is used instead.
func TestHeadings_EncounterOrder(t *testing.T) {
	src := "<h3>First</h3>\n# Second\n"
	got := Headings(src, "c")
	if len(got) != 2 || got[0].Text != "First" || got[1].Text != "Second" {
		t.Errorf("Headings() = %+v, want First then Second", got)
	}
}

// Lines inside fenced code are not headings. This departs from a plain
// line scan, which would also report "# comment" and "<h2>fake</h2>" and
// then flag a skipped level for code that is never rendered as a heading.
func TestHeadings_IgnoresFencedCode(t *testing.T) {
	src := "# Real\n```python\n# comment\n<h2>fake</h2>\n```\n## Also real\n~~~\n# unclosed fence\n"
	got := Headings(src, "c")
	if len(got) != 2 {
		t.Fatalf("got %d headings %+v, want 2", len(got), got)
	}
	if got[0].Text != "Real" || got[1].Text != "Also real" {
		t.Errorf("Headings() = %+v", got)
	}
}

func TestFencedRanges(t *testing.T) {
	text := "a\n```\ncode\n````\nb\n~~~\nc\n```\n~~~\n"
	ranges := fencedRanges(text)
	if len(ranges) != 2 {
		t.Fatalf("got %d ranges %v, want 2", len(ranges), ranges)
	}
	if insideFence(0, ranges) {
		t.Error("offset 0 should be outside fences")
	}
	if !insideFence(len("a\n```\n"), ranges) {
		t.Error("code line should be inside the first fence")
	}
}
