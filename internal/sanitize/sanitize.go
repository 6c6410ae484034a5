// Package sanitize filters artifact markup down to the editor-supported
// subset of HTML before it is stored or rendered anywhere.
package sanitize

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var policy = newPolicy()

var strict = bluemonday.StrictPolicy()

func newPolicy() *bluemonday.Policy {
	p := bluemonday.NewPolicy()

	p.AllowElements(
		"h1", "h2", "h3", "h4", "h5", "h6",
		"p", "blockquote", "pre", "hr", "br", "div",
		"ul", "ol", "li", "dl", "dt", "dd",
		"strong", "b", "em", "i", "u", "s", "strike", "del",
		"sub", "sup", "code", "mark", "span",
		"table", "thead", "tbody", "tfoot", "tr", "th", "td",
		"caption", "colgroup", "col",
		"details", "summary",
	)

	p.AllowAttrs("href", "title", "target", "rel").OnElements("a")
	p.AllowElements("a")
	p.AllowAttrs("src", "alt", "title", "width", "height").OnElements("img")
	p.AllowElements("img")
	p.AllowAttrs("colspan", "rowspan").OnElements("td", "th")

	// data-* attributes carry editor metadata and are harmless once
	// everything executable is gone.
	p.AllowDataAttributes()

	p.AllowURLSchemes("http", "https", "mailto")
	p.RequireParseableURLs(true)

	p.AllowStyles("text-align").MatchingEnum("left", "center", "right", "justify").Globally()
	p.AllowStyles("color", "background-color").Globally()

	// Disallowed elements normally drop only their tags; these lose
	// their contents as well.
	p.SkipElementsContent(
		"script", "style", "iframe", "object", "embed", "noscript",
		"form", "input", "textarea", "select", "option", "button", "label",
	)

	return p
}

// Sanitize strips everything outside the allow-list. It is total:
// malformed or hostile markup degrades to a well-formed subset, never an
// error, and sanitized output is a fixed point (sanitizing twice changes
// nothing).
func Sanitize(raw string) string {
	return policy.Sanitize(raw)
}

// PlainText strips all markup, yielding whitespace-normalized text for
// search indexing. A space is forced at every tag boundary so adjacent
// block contents do not run together once the tags are gone.
func PlainText(raw string) string {
	spaced := strings.ReplaceAll(raw, "<", " <")
	text := html.UnescapeString(strict.Sanitize(spaced))
	return strings.Join(strings.Fields(text), " ")
}
