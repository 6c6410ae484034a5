package docmodel

import (
	"testing"
)

func joinText(runs []Run) string {
	var out string
	for _, r := range runs {
		if r.Break {
			out += "\n"
			continue
		}
		out += r.Text
	}
	return out
}

func TestBuildHeadingsAndParagraphs(t *testing.T) {
	blocks := Build(`<h1>Title</h1><h3 style="text-align: center">Sub</h3><p style="text-align: right">Body</p>`)
	if len(blocks) != 3 {
		t.Fatalf("expected 3 blocks, got %d", len(blocks))
	}
	if blocks[0].Kind != KindHeading || blocks[0].Level != 1 || joinText(blocks[0].Runs) != "Title" {
		t.Errorf("unexpected first block: %+v", blocks[0])
	}
	if blocks[1].Level != 3 || blocks[1].Align != "center" {
		t.Errorf("expected centered h3, got %+v", blocks[1])
	}
	if blocks[2].Kind != KindParagraph || blocks[2].Align != "right" {
		t.Errorf("expected right-aligned paragraph, got %+v", blocks[2])
	}
}

func TestBuildInlineFormattingComposes(t *testing.T) {
	blocks := Build(`<p><em>it <a href="https://example.com"><strong>bold link</strong></a></em> tail</p>`)
	if len(blocks) != 1 {
		t.Fatalf("expected 1 block, got %d", len(blocks))
	}
	runs := blocks[0].Runs
	if len(runs) != 3 {
		t.Fatalf("expected 3 runs, got %d: %+v", len(runs), runs)
	}
	if !runs[0].Italic || runs[0].Bold || runs[0].Link != "" {
		t.Errorf("run 0 should be italic only: %+v", runs[0])
	}
	if !runs[1].Italic || !runs[1].Bold || runs[1].Link != "https://example.com" {
		t.Errorf("run 1 should compose italic+bold+link: %+v", runs[1])
	}
	if runs[2].Italic || runs[2].Bold || runs[2].Link != "" {
		t.Errorf("run 2 must not inherit closed formatting: %+v", runs[2])
	}
}

func TestBuildWhitespaceBetweenInlineSiblings(t *testing.T) {
	blocks := Build(`<p><strong>A</strong> <em>B</em></p>`)
	if len(blocks) != 1 {
		t.Fatalf("expected 1 block, got %d", len(blocks))
	}
	runs := blocks[0].Runs
	if got := joinText(runs); got != "A B" {
		t.Fatalf("adjacent formatted words must stay separated, got %q", got)
	}
	if len(runs) != 3 {
		t.Fatalf("expected 3 runs, got %d: %+v", len(runs), runs)
	}
	if runs[1].Text != " " || runs[1].Bold || runs[1].Italic {
		t.Errorf("separator run should carry no formatting: %+v", runs[1])
	}

	// loose inline content at block level separates the same way
	loose := Build(`<strong>A</strong> <em>B</em>`)
	if len(loose) != 1 || joinText(loose[0].Runs) != "A B" {
		t.Errorf("loose inline siblings lost their separator: %+v", loose)
	}

	// a separator with nothing after it is dropped, not emitted
	trailing := Build(`<p><strong>A</strong> </p>`)
	if len(trailing) != 1 || joinText(trailing[0].Runs) != "A" {
		t.Errorf("dangling separator must be trimmed: %+v", trailing)
	}
}

func TestBuildSpanAttributeBounds(t *testing.T) {
	blocks := Build(`<table><tr><td colspan="3">a</td><td colspan="99999999999999999999">b</td><td rowspan="1001">c</td></tr></table>`)
	if len(blocks) != 1 || len(blocks[0].Rows) != 1 {
		t.Fatalf("expected one row, got %+v", blocks)
	}
	cells := blocks[0].Rows[0]
	if cells[0].ColSpan != 3 {
		t.Errorf("plain span should parse, got %d", cells[0].ColSpan)
	}
	if cells[1].ColSpan != 0 {
		t.Errorf("overflowing span must be treated as absent, got %d", cells[1].ColSpan)
	}
	if cells[2].RowSpan != 0 {
		t.Errorf("span beyond the cap must be treated as absent, got %d", cells[2].RowSpan)
	}
}

func TestBuildNestedLists(t *testing.T) {
	blocks := Build(`<ul><li>a</li><li>b<ol><li>b1</li><li>b2</li></ol></li><li>c</li></ul>`)
	want := []struct {
		text    string
		level   int
		ordered bool
	}{
		{"a", 0, false},
		{"b", 0, false},
		{"b1", 1, true},
		{"b2", 1, true},
		{"c", 0, false},
	}
	if len(blocks) != len(want) {
		t.Fatalf("expected %d items, got %d: %+v", len(want), len(blocks), blocks)
	}
	for i, w := range want {
		got := blocks[i]
		if got.Kind != KindListItem || joinText(got.Runs) != w.text || got.Level != w.level || got.Ordered != w.ordered {
			t.Errorf("item %d: want %+v, got %+v", i, w, got)
		}
	}
}

func TestBuildBlockquoteDepth(t *testing.T) {
	blocks := Build(`<blockquote><p>outer</p><blockquote><p>inner</p></blockquote><ul><li>quoted item</li></ul></blockquote><p>after</p>`)
	if len(blocks) != 4 {
		t.Fatalf("expected 4 blocks, got %d: %+v", len(blocks), blocks)
	}
	if blocks[0].Quote != 1 || joinText(blocks[0].Runs) != "outer" {
		t.Errorf("outer quote wrong: %+v", blocks[0])
	}
	if blocks[1].Quote != 2 || joinText(blocks[1].Runs) != "inner" {
		t.Errorf("inner quote wrong: %+v", blocks[1])
	}
	if blocks[2].Kind != KindListItem || blocks[2].Quote != 1 {
		t.Errorf("quoted list item wrong: %+v", blocks[2])
	}
	if blocks[3].Quote != 0 {
		t.Errorf("trailing paragraph must not be quoted: %+v", blocks[3])
	}
}

func TestBuildCodeBlockPreservesLines(t *testing.T) {
	blocks := Build("<pre><code>first\nsecond\n\nfourth</code></pre>")
	if len(blocks) != 1 || blocks[0].Kind != KindCodeBlock {
		t.Fatalf("expected one code block, got %+v", blocks)
	}
	runs := blocks[0].Runs
	// one run per line, break runs between
	var lines []string
	current := ""
	for _, r := range runs {
		if !r.Code && !r.Break {
			t.Errorf("code block run missing code flag: %+v", r)
		}
		if r.Break {
			lines = append(lines, current)
			current = ""
			continue
		}
		current += r.Text
	}
	lines = append(lines, current)
	want := []string{"first", "second", "", "fourth"}
	if len(lines) != len(want) {
		t.Fatalf("expected %d lines, got %d: %q", len(want), len(lines), lines)
	}
	for i := range want {
		if lines[i] != want[i] {
			t.Errorf("line %d: want %q, got %q", i, want[i], lines[i])
		}
	}
}

func TestBuildTables(t *testing.T) {
	blocks := Build(`<table><thead><tr><th>H1</th><th>H2</th></tr></thead><tbody><tr><td colspan="2">wide</td></tr></tbody></table>`)
	if len(blocks) != 1 || blocks[0].Kind != KindTable {
		t.Fatalf("expected one table, got %+v", blocks)
	}
	rows := blocks[0].Rows
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	if !rows[0][0].Header || !rows[0][1].Header {
		t.Errorf("first row cells should be headers: %+v", rows[0])
	}
	if rows[1][0].Header || rows[1][0].ColSpan != 2 {
		t.Errorf("body cell should span 2 columns: %+v", rows[1][0])
	}
}

func TestBuildEmptyTablePlaceholder(t *testing.T) {
	blocks := Build(`<table></table>`)
	if len(blocks) != 1 || blocks[0].Kind != KindTable {
		t.Fatalf("expected one table, got %+v", blocks)
	}
	if len(blocks[0].Rows) != 1 || len(blocks[0].Rows[0]) != 1 {
		t.Errorf("empty table must produce a single placeholder cell: %+v", blocks[0].Rows)
	}
}

func TestBuildRuleAndBreak(t *testing.T) {
	blocks := Build(`<p>a<br>b</p><hr><p>c</p>`)
	if len(blocks) != 3 {
		t.Fatalf("expected 3 blocks, got %d: %+v", len(blocks), blocks)
	}
	runs := blocks[0].Runs
	if len(runs) != 3 || !runs[1].Break {
		t.Errorf("expected explicit break run: %+v", runs)
	}
	if blocks[1].Kind != KindRule {
		t.Errorf("expected rule block, got %+v", blocks[1])
	}
}

func TestBuildUnknownElementsTransparent(t *testing.T) {
	blocks := Build(`<div><details><summary>More</summary><p>hidden</p></details></div>`)
	var texts []string
	for _, b := range blocks {
		texts = append(texts, joinText(b.Runs))
	}
	if len(blocks) != 2 {
		t.Fatalf("expected 2 blocks (summary text + paragraph), got %d: %v", len(blocks), texts)
	}
	if texts[0] != "More" || texts[1] != "hidden" {
		t.Errorf("unexpected texts: %v", texts)
	}
}

func TestBuildEmptyAndMalformed(t *testing.T) {
	if blocks := Build(""); len(blocks) != 0 {
		t.Errorf("empty input should yield no blocks, got %+v", blocks)
	}
	// builder must not panic on anything the sanitizer lets through
	_ = Build("<p><b>unclosed")
	_ = Build("plain text only")
}
