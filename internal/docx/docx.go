// Package docx serializes a docmodel block tree into a WordprocessingML
// package. Output is deterministic for a given tree: parts are written
// in a fixed order with zeroed archive timestamps, so tests can diff
// structurally.
package docx

import (
	"archive/zip"
	"bytes"
	"fmt"
	"strings"

	"atelier/api/internal/docmodel"
)

const (
	// half-points: 11pt body, 10pt code
	bodySize = 22
	codeSize = 20

	codeFont    = "Consolas"
	linkColor   = "0563C1"
	headerShade = "D9D9D9"

	// twips per list/quote indent step
	indentStep = 720
)

// Encode produces a complete .docx package from a block tree. Encoding
// a well-formed tree does not fail; an error here means the underlying
// packer rejected the document and no partial bytes are returned.
func Encode(blocks []docmodel.Block) ([]byte, error) {
	doc := newDocument()
	body := doc.renderBody(blocks)

	parts := []struct {
		name string
		data string
	}{
		{"[Content_Types].xml", contentTypesXML},
		{"_rels/.rels", packageRelsXML},
		{"word/document.xml", documentXML(body)},
		{"word/styles.xml", stylesXML},
		{"word/numbering.xml", doc.numberingXML()},
		{"word/_rels/document.xml.rels", doc.documentRelsXML()},
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, part := range parts {
		w, err := zw.CreateHeader(&zip.FileHeader{Name: part.name, Method: zip.Deflate})
		if err != nil {
			return nil, fmt.Errorf("create part %s: %w", part.name, err)
		}
		if _, err := w.Write([]byte(part.data)); err != nil {
			return nil, fmt.Errorf("write part %s: %w", part.name, err)
		}
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("close package: %w", err)
	}
	return buf.Bytes(), nil
}

// document accumulates state that spans the whole package: hyperlink
// relationships and numbering instances allocated per list group.
type document struct {
	relTargets []string
	relByURL   map[string]string
	// numbering instances: numID -> abstract definition (0 ordered, 1 bullet)
	numAbstract []int
}

func newDocument() *document {
	return &document{relByURL: map[string]string{}}
}

func (d *document) hyperlinkRel(url string) string {
	if id, ok := d.relByURL[url]; ok {
		return id
	}
	// rId1/rId2 are reserved for styles and numbering
	id := fmt.Sprintf("rId%d", len(d.relTargets)+3)
	d.relTargets = append(d.relTargets, url)
	d.relByURL[url] = id
	return id
}

// newNum allocates a numbering instance so each contiguous list starts
// its counters fresh instead of continuing a previous list's sequence.
func (d *document) newNum(ordered bool) int {
	abstract := 1
	if ordered {
		abstract = 0
	}
	d.numAbstract = append(d.numAbstract, abstract)
	return len(d.numAbstract)
}

func (d *document) renderBody(blocks []docmodel.Block) string {
	var b strings.Builder

	// numbering instances for the list group currently being emitted;
	// -1 means not yet allocated
	orderedNum, bulletNum := -1, -1

	for _, block := range blocks {
		if block.Kind != docmodel.KindListItem {
			orderedNum, bulletNum = -1, -1
		}

		switch block.Kind {
		case docmodel.KindHeading:
			d.writeParagraph(&b, block, headingStyle(block.Level), 0)
		case docmodel.KindParagraph:
			d.writeParagraph(&b, block, "", 0)
		case docmodel.KindListItem:
			num := 0
			if block.Ordered {
				if orderedNum < 0 {
					orderedNum = d.newNum(true)
				}
				num = orderedNum
			} else {
				if bulletNum < 0 {
					bulletNum = d.newNum(false)
				}
				num = bulletNum
			}
			d.writeParagraph(&b, block, "", num)
		case docmodel.KindCodeBlock:
			d.writeParagraph(&b, block, "", 0)
		case docmodel.KindTable:
			d.writeTable(&b, block)
		case docmodel.KindRule:
			b.WriteString(`<w:p><w:pPr><w:pBdr><w:bottom w:val="single" w:sz="6" w:space="1" w:color="auto"/></w:pBdr></w:pPr></w:p>`)
		}
	}

	// a body must contain at least one block-level element besides sectPr
	if len(blocks) == 0 {
		b.WriteString(`<w:p/>`)
	}
	return b.String()
}

func headingStyle(level int) string {
	if level > 3 {
		level = 3
	}
	return fmt.Sprintf("Heading%d", level)
}

func (d *document) writeParagraph(b *strings.Builder, block docmodel.Block, style string, numID int) {
	b.WriteString(`<w:p>`)
	d.writeParagraphProps(b, block, style, numID)
	d.writeRuns(b, block)
	b.WriteString(`</w:p>`)
}

func (d *document) writeParagraphProps(b *strings.Builder, block docmodel.Block, style string, numID int) {
	var props strings.Builder
	if style != "" {
		fmt.Fprintf(&props, `<w:pStyle w:val="%s"/>`, style)
	}
	if numID > 0 {
		fmt.Fprintf(&props, `<w:numPr><w:ilvl w:val="%d"/><w:numId w:val="%d"/></w:numPr>`, block.Level, numID)
	}
	if block.Quote > 0 {
		props.WriteString(`<w:pBdr><w:left w:val="single" w:sz="12" w:space="8" w:color="CCCCCC"/></w:pBdr>`)
		fmt.Fprintf(&props, `<w:ind w:left="%d"/>`, block.Quote*indentStep)
	}
	if block.Kind == docmodel.KindCodeBlock {
		props.WriteString(`<w:shd w:val="clear" w:color="auto" w:fill="F2F2F2"/>`)
	}
	if jc := justification(block.Align); jc != "" {
		fmt.Fprintf(&props, `<w:jc w:val="%s"/>`, jc)
	}
	if props.Len() > 0 {
		b.WriteString(`<w:pPr>`)
		b.WriteString(props.String())
		b.WriteString(`</w:pPr>`)
	}
}

func justification(align string) string {
	switch align {
	case "left":
		return "left"
	case "center":
		return "center"
	case "right":
		return "right"
	case "justify":
		return "both"
	}
	return ""
}

func (d *document) writeRuns(b *strings.Builder, block docmodel.Block) {
	for _, run := range block.Runs {
		if run.Break {
			b.WriteString(`<w:r><w:br/></w:r>`)
			continue
		}
		if run.Link != "" {
			fmt.Fprintf(b, `<w:hyperlink r:id="%s">`, d.hyperlinkRel(run.Link))
			writeRun(b, run)
			b.WriteString(`</w:hyperlink>`)
			continue
		}
		writeRun(b, run)
	}
}

func writeRun(b *strings.Builder, run docmodel.Run) {
	var props strings.Builder
	if run.Bold {
		props.WriteString(`<w:b/>`)
	}
	if run.Italic {
		props.WriteString(`<w:i/>`)
	}
	if run.Strike {
		props.WriteString(`<w:strike/>`)
	}
	if run.Code {
		fmt.Fprintf(&props, `<w:rFonts w:ascii="%s" w:hAnsi="%s"/><w:sz w:val="%d"/>`, codeFont, codeFont, codeSize)
	}
	if run.Link != "" {
		// fixed hyperlink treatment: accent color plus underline
		fmt.Fprintf(&props, `<w:color w:val="%s"/>`, linkColor)
	}
	if run.Underline || run.Link != "" {
		props.WriteString(`<w:u w:val="single"/>`)
	}

	b.WriteString(`<w:r>`)
	if props.Len() > 0 {
		b.WriteString(`<w:rPr>`)
		b.WriteString(props.String())
		b.WriteString(`</w:rPr>`)
	}
	fmt.Fprintf(b, `<w:t xml:space="preserve">%s</w:t>`, escapeXML(run.Text))
	b.WriteString(`</w:r>`)
}

func (d *document) writeTable(b *strings.Builder, block docmodel.Block) {
	b.WriteString(`<w:tbl><w:tblPr><w:tblStyle w:val="TableGrid"/><w:tblW w:w="0" w:type="auto"/>` +
		`<w:tblBorders>` +
		`<w:top w:val="single" w:sz="4" w:space="0" w:color="auto"/>` +
		`<w:left w:val="single" w:sz="4" w:space="0" w:color="auto"/>` +
		`<w:bottom w:val="single" w:sz="4" w:space="0" w:color="auto"/>` +
		`<w:right w:val="single" w:sz="4" w:space="0" w:color="auto"/>` +
		`<w:insideH w:val="single" w:sz="4" w:space="0" w:color="auto"/>` +
		`<w:insideV w:val="single" w:sz="4" w:space="0" w:color="auto"/>` +
		`</w:tblBorders></w:tblPr>`)

	for _, row := range block.Rows {
		b.WriteString(`<w:tr>`)
		for _, cell := range row {
			b.WriteString(`<w:tc><w:tcPr>`)
			if cell.ColSpan > 1 {
				fmt.Fprintf(b, `<w:gridSpan w:val="%d"/>`, cell.ColSpan)
			}
			if cell.RowSpan > 1 {
				b.WriteString(`<w:vMerge w:val="restart"/>`)
			}
			if cell.Header {
				fmt.Fprintf(b, `<w:shd w:val="clear" w:color="auto" w:fill="%s"/>`, headerShade)
			}
			b.WriteString(`</w:tcPr><w:p>`)
			runs := cell.Runs
			if cell.Header {
				runs = boldened(runs)
			}
			d.writeRuns(b, docmodel.Block{Runs: runs})
			b.WriteString(`</w:p></w:tc>`)
		}
		b.WriteString(`</w:tr>`)
	}
	b.WriteString(`</w:tbl>`)
	// a table may not be the last element of a body; always follow with
	// an empty paragraph
	b.WriteString(`<w:p/>`)
}

func boldened(runs []docmodel.Run) []docmodel.Run {
	out := make([]docmodel.Run, len(runs))
	for i, r := range runs {
		r.Bold = true
		out[i] = r
	}
	return out
}

func documentXML(body string) string {
	return xmlHeader +
		`<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main" ` +
		`xmlns:r="http://schemas.openxmlformats.org/officeDocument/2006/relationships">` +
		`<w:body>` + body +
		`<w:sectPr><w:pgSz w:w="12240" w:h="15840"/>` +
		`<w:pgMar w:top="1080" w:right="1080" w:bottom="1080" w:left="1080" w:header="720" w:footer="720"/>` +
		`</w:sectPr></w:body></w:document>`
}

func (d *document) documentRelsXML() string {
	var b strings.Builder
	b.WriteString(xmlHeader)
	b.WriteString(`<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">`)
	b.WriteString(`<Relationship Id="rId1" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/styles" Target="styles.xml"/>`)
	b.WriteString(`<Relationship Id="rId2" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/numbering" Target="numbering.xml"/>`)
	for i, target := range d.relTargets {
		fmt.Fprintf(&b, `<Relationship Id="rId%d" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/hyperlink" Target="%s" TargetMode="External"/>`,
			i+3, escapeXML(target))
	}
	b.WriteString(`</Relationships>`)
	return b.String()
}

// numberingXML declares two abstract definitions (ordered and bullet)
// with nine levels each, then one instance per list group encountered
// in the body. Ordered levels cycle decimal, lower-letter, lower-roman;
// bullet levels cycle their glyphs the same way.
func (d *document) numberingXML() string {
	orderedFormats := [3]string{"decimal", "lowerLetter", "lowerRoman"}
	bulletGlyphs := [3]string{"", "o", ""}
	bulletFonts := [3]string{"Symbol", "Courier New", "Wingdings"}

	var b strings.Builder
	b.WriteString(xmlHeader)
	b.WriteString(`<w:numbering xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">`)

	b.WriteString(`<w:abstractNum w:abstractNumId="0">`)
	for lvl := 0; lvl < 9; lvl++ {
		fmt.Fprintf(&b, `<w:lvl w:ilvl="%d"><w:start w:val="1"/><w:numFmt w:val="%s"/><w:lvlText w:val="%%%d."/><w:lvlJc w:val="left"/><w:pPr><w:ind w:left="%d" w:hanging="360"/></w:pPr></w:lvl>`,
			lvl, orderedFormats[lvl%3], lvl+1, (lvl+1)*indentStep)
	}
	b.WriteString(`</w:abstractNum>`)

	b.WriteString(`<w:abstractNum w:abstractNumId="1">`)
	for lvl := 0; lvl < 9; lvl++ {
		font := bulletFonts[lvl%3]
		fmt.Fprintf(&b, `<w:lvl w:ilvl="%d"><w:start w:val="1"/><w:numFmt w:val="bullet"/><w:lvlText w:val="%s"/><w:lvlJc w:val="left"/><w:pPr><w:ind w:left="%d" w:hanging="360"/></w:pPr><w:rPr><w:rFonts w:ascii="%s" w:hAnsi="%s" w:hint="default"/></w:rPr></w:lvl>`,
			lvl, bulletGlyphs[lvl%3], (lvl+1)*indentStep, font, font)
	}
	b.WriteString(`</w:abstractNum>`)

	for i, abstract := range d.numAbstract {
		fmt.Fprintf(&b, `<w:num w:numId="%d"><w:abstractNumId w:val="%d"/></w:num>`, i+1, abstract)
	}

	b.WriteString(`</w:numbering>`)
	return b.String()
}

const xmlHeader = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>` + "\n"

const contentTypesXML = xmlHeader +
	`<Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types">` +
	`<Default Extension="rels" ContentType="application/vnd.openxmlformats-package.relationships+xml"/>` +
	`<Default Extension="xml" ContentType="application/xml"/>` +
	`<Override PartName="/word/document.xml" ContentType="application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"/>` +
	`<Override PartName="/word/styles.xml" ContentType="application/vnd.openxmlformats-officedocument.wordprocessingml.styles+xml"/>` +
	`<Override PartName="/word/numbering.xml" ContentType="application/vnd.openxmlformats-officedocument.wordprocessingml.numbering+xml"/>` +
	`</Types>`

const packageRelsXML = xmlHeader +
	`<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">` +
	`<Relationship Id="rId1" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/officeDocument" Target="word/document.xml"/>` +
	`</Relationships>`

const stylesXML = xmlHeader +
	`<w:styles xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">` +
	`<w:docDefaults><w:rPrDefault><w:rPr>` +
	`<w:rFonts w:ascii="Calibri" w:hAnsi="Calibri"/><w:sz w:val="22"/>` +
	`</w:rPr></w:rPrDefault>` +
	`<w:pPrDefault><w:pPr><w:spacing w:after="160" w:line="259" w:lineRule="auto"/></w:pPr></w:pPrDefault>` +
	`</w:docDefaults>` +
	`<w:style w:type="paragraph" w:default="1" w:styleId="Normal"><w:name w:val="Normal"/></w:style>` +
	`<w:style w:type="paragraph" w:styleId="Heading1"><w:name w:val="heading 1"/><w:basedOn w:val="Normal"/>` +
	`<w:pPr><w:spacing w:before="240" w:after="120"/><w:outlineLvl w:val="0"/></w:pPr>` +
	`<w:rPr><w:b/><w:sz w:val="32"/></w:rPr></w:style>` +
	`<w:style w:type="paragraph" w:styleId="Heading2"><w:name w:val="heading 2"/><w:basedOn w:val="Normal"/>` +
	`<w:pPr><w:spacing w:before="200" w:after="100"/><w:outlineLvl w:val="1"/></w:pPr>` +
	`<w:rPr><w:b/><w:sz w:val="28"/></w:rPr></w:style>` +
	`<w:style w:type="paragraph" w:styleId="Heading3"><w:name w:val="heading 3"/><w:basedOn w:val="Normal"/>` +
	`<w:pPr><w:spacing w:before="160" w:after="80"/><w:outlineLvl w:val="2"/></w:pPr>` +
	`<w:rPr><w:b/><w:sz w:val="26"/></w:rPr></w:style>` +
	`</w:styles>`

var xmlEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&apos;",
)

func escapeXML(s string) string {
	return xmlEscaper.Replace(s)
}
