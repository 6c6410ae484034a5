// Package docmodel turns sanitized artifact markup into the block and
// inline node tree that format-specific encoders consume. The tree is
// ephemeral: it is rebuilt from stored content on every export.
package docmodel

// Kind identifies a block-level node.
type Kind int

const (
	KindParagraph Kind = iota
	KindHeading
	KindListItem
	KindCodeBlock
	KindTable
	KindRule
)

// Run is a span of text with accumulated inline formatting. Break runs
// carry no text and mark an explicit line break.
type Run struct {
	Text      string
	Bold      bool
	Italic    bool
	Underline bool
	Strike    bool
	Code      bool
	Link      string
	Break     bool
}

// Cell is one table cell. Header cells get bold, shaded styling in the
// encoders.
type Cell struct {
	Header  bool
	ColSpan int
	RowSpan int
	Runs    []Run
}

// Block is one block-level node.
//
// Level is the heading level (1-6) for headings and the nesting depth
// (0-based) for list items. Quote is the enclosing blockquote depth,
// zero outside quotes; it applies to any kind of block.
type Block struct {
	Kind    Kind
	Level   int
	Ordered bool
	Align   string
	Quote   int
	Runs    []Run
	Rows    [][]Cell
}
