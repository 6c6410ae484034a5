package docmodel

import (
	"strconv"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Build parses sanitized markup and walks it depth-first into a block
// sequence. It never fails: only allow-listed constructs reach this
// point, and anything unrecognized is treated transparently (children
// walked, element itself contributing no node).
func Build(sanitized string) []Block {
	nodes, err := html.ParseFragment(strings.NewReader(sanitized), &html.Node{
		Type:     html.ElementNode,
		Data:     "body",
		DataAtom: atom.Body,
	})
	if err != nil {
		return nil
	}

	b := &builder{}
	for _, n := range nodes {
		b.walkBlock(n, 0)
	}
	b.flushParagraph(0)
	return b.blocks
}

// inlineContext carries the formatting accumulated while descending
// nested inline elements. It is a value type: each recursion level
// copies and extends it, so sibling branches never leak state into one
// another.
type inlineContext struct {
	bold      bool
	italic    bool
	underline bool
	strike    bool
	code      bool
	link      string
}

type builder struct {
	blocks []Block
	// pending collects loose inline content found directly at block
	// level; it becomes an implicit paragraph at the next block boundary.
	pending []Run
}

func (b *builder) emit(block Block, quote int) {
	block.Quote = quote
	b.blocks = append(b.blocks, block)
}

func (b *builder) flushParagraph(quote int) {
	runs := trimTrailingSpace(b.pending)
	b.pending = nil
	if len(runs) == 0 {
		return
	}
	b.emit(Block{Kind: KindParagraph, Runs: runs}, quote)
}

func (b *builder) walkBlock(n *html.Node, quote int) {
	switch n.Type {
	case html.TextNode:
		// whitespace between blocks is dropped, but whitespace between
		// loose inline siblings still separates their words; appendInline
		// makes that distinction via the pending runs.
		appendInline(&b.pending, n, inlineContext{})
		return
	case html.ElementNode:
		// handled below
	default:
		return
	}

	switch n.Data {
	case "h1", "h2", "h3", "h4", "h5", "h6":
		b.flushParagraph(quote)
		level := int(n.Data[1] - '0')
		b.emit(Block{
			Kind:  KindHeading,
			Level: level,
			Align: alignOf(n),
			Runs:  collectInline(n, inlineContext{}),
		}, quote)
	case "p":
		b.flushParagraph(quote)
		b.emit(Block{
			Kind:  KindParagraph,
			Align: alignOf(n),
			Runs:  collectInline(n, inlineContext{}),
		}, quote)
	case "ul", "ol":
		b.flushParagraph(quote)
		b.walkList(n, 0, n.Data == "ol", quote)
	case "blockquote":
		b.flushParagraph(quote)
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			b.walkBlock(c, quote+1)
		}
		b.flushParagraph(quote + 1)
	case "pre":
		b.flushParagraph(quote)
		b.emit(Block{Kind: KindCodeBlock, Runs: codeRuns(n)}, quote)
	case "table":
		b.flushParagraph(quote)
		b.emit(Block{Kind: KindTable, Rows: tableRows(n)}, quote)
	case "hr":
		b.flushParagraph(quote)
		b.emit(Block{Kind: KindRule}, quote)
	case "br":
		b.pending = append(b.pending, Run{Break: true})
	case "a", "strong", "b", "em", "i", "u", "s", "strike", "del", "code", "mark", "span", "sub", "sup":
		// inline content loose at block level joins the pending paragraph
		appendInline(&b.pending, n, inlineContext{})
	default:
		// div, details, summary, dl, anything else: transparent
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			b.walkBlock(c, quote)
		}
	}
}

// walkList flattens a (possibly nested) list into consecutive ListItem
// blocks. Nested lists restart one level deeper; direct inline content
// of each item becomes that item's runs.
func (b *builder) walkList(list *html.Node, level int, ordered bool, quote int) {
	for li := list.FirstChild; li != nil; li = li.NextSibling {
		if li.Type != html.ElementNode || li.Data != "li" {
			continue
		}

		var runs []Run
		var nested []*html.Node
		for c := li.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == html.ElementNode && (c.Data == "ul" || c.Data == "ol") {
				nested = append(nested, c)
				continue
			}
			appendInline(&runs, c, inlineContext{})
		}

		b.emit(Block{Kind: KindListItem, Level: level, Ordered: ordered, Runs: trimTrailingSpace(runs)}, quote)

		for _, sub := range nested {
			b.walkList(sub, level+1, sub.Data == "ol", quote)
		}
	}
}

// collectInline gathers the formatted runs under n, threading the
// inline context through recursive descent so nested formatting
// composes.
func collectInline(n *html.Node, ctx inlineContext) []Run {
	var runs []Run
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		appendInline(&runs, c, ctx)
	}
	return trimTrailingSpace(runs)
}

// trimTrailingSpace drops separator runs left dangling at the end of a
// run sequence.
func trimTrailingSpace(runs []Run) []Run {
	for len(runs) > 0 && runs[len(runs)-1] == (Run{Text: " "}) {
		runs = runs[:len(runs)-1]
	}
	return runs
}

func appendInline(runs *[]Run, n *html.Node, ctx inlineContext) {
	switch n.Type {
	case html.TextNode:
		if strings.TrimSpace(n.Data) == "" {
			// collapse to a single word separator when runs precede;
			// a trailing separator is trimmed at the block boundary
			if len(*runs) > 0 {
				last := (*runs)[len(*runs)-1]
				if !last.Break && !strings.HasSuffix(last.Text, " ") {
					*runs = append(*runs, Run{Text: " "})
				}
			}
			return
		}
		*runs = append(*runs, Run{
			Text:      n.Data,
			Bold:      ctx.bold,
			Italic:    ctx.italic,
			Underline: ctx.underline,
			Strike:    ctx.strike,
			Code:      ctx.code,
			Link:      ctx.link,
		})
		return
	case html.ElementNode:
		// handled below
	default:
		return
	}

	child := ctx
	switch n.Data {
	case "strong", "b":
		child.bold = true
	case "em", "i":
		child.italic = true
	case "u":
		child.underline = true
	case "s", "strike", "del":
		child.strike = true
	case "code":
		child.code = true
	case "a":
		if href := attrValue(n, "href"); href != "" {
			child.link = href
		}
	case "br":
		*runs = append(*runs, Run{Break: true})
		return
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		appendInline(runs, c, child)
	}
}

// codeRuns renders a preformatted block as one run per source line with
// explicit breaks between lines. Content is preserved verbatim.
func codeRuns(pre *html.Node) []Run {
	var raw strings.Builder
	var walkText func(*html.Node)
	walkText = func(n *html.Node) {
		if n.Type == html.TextNode {
			raw.WriteString(n.Data)
			return
		}
		if n.Type == html.ElementNode && n.Data == "br" {
			raw.WriteString("\n")
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walkText(c)
		}
	}
	walkText(pre)

	text := strings.TrimSuffix(strings.TrimPrefix(raw.String(), "\n"), "\n")
	lines := strings.Split(text, "\n")
	runs := make([]Run, 0, len(lines)*2)
	for i, line := range lines {
		if i > 0 {
			runs = append(runs, Run{Break: true})
		}
		runs = append(runs, Run{Text: line, Code: true})
	}
	return runs
}

// tableRows builds the row/cell grid. An empty table still yields one
// placeholder cell so encoders always have a structurally valid grid.
func tableRows(table *html.Node) [][]Cell {
	var rows [][]Cell
	var walkRows func(*html.Node)
	walkRows = func(n *html.Node) {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type != html.ElementNode {
				continue
			}
			switch c.Data {
			case "tr":
				if row := tableCells(c); len(row) > 0 {
					rows = append(rows, row)
				}
			case "thead", "tbody", "tfoot":
				walkRows(c)
			}
		}
	}
	walkRows(table)

	if len(rows) == 0 {
		return [][]Cell{{{}}}
	}
	return rows
}

func tableCells(tr *html.Node) []Cell {
	var cells []Cell
	for c := tr.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.ElementNode || (c.Data != "td" && c.Data != "th") {
			continue
		}
		cells = append(cells, Cell{
			Header:  c.Data == "th",
			ColSpan: intAttr(c, "colspan"),
			RowSpan: intAttr(c, "rowspan"),
			Runs:    collectInline(c, inlineContext{}),
		})
	}
	return cells
}

func alignOf(n *html.Node) string {
	style := attrValue(n, "style")
	for _, decl := range strings.Split(style, ";") {
		name, value, found := strings.Cut(decl, ":")
		if !found || strings.TrimSpace(name) != "text-align" {
			continue
		}
		switch v := strings.TrimSpace(value); v {
		case "left", "center", "right", "justify":
			return v
		}
	}
	return ""
}

func attrValue(n *html.Node, name string) string {
	for _, a := range n.Attr {
		if a.Key == name {
			return a.Val
		}
	}
	return ""
}

// intAttr parses a span attribute. The sanitizer passes these values
// through untouched, so anything non-numeric or outside a plausible
// span range is treated as absent.
func intAttr(n *html.Node, name string) int {
	value, err := strconv.Atoi(attrValue(n, name))
	if err != nil || value < 0 || value > 1000 {
		return 0
	}
	return value
}
