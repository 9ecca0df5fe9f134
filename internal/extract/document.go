package extract

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/kailas-cloud/peersearch/internal/domain/text"
)

// UnknownLanguage is returned by Language when the document does not declare one.
const UnknownLanguage = "unknown"

// skippedElements hold text that is never rendered as document content.
var skippedElements = map[atom.Atom]struct{}{
	atom.Script:   {},
	atom.Style:    {},
	atom.Template: {},
	atom.Noscript: {},
}

// Document is a parsed HTML page. Parsing is tolerant: broken nesting is repaired
// by the HTML5 tree builder instead of being rejected.
type Document struct {
	root *html.Node
}

// Parse builds a Document from raw markup. It never fails; unreadable input yields an empty page.
func Parse(raw string) *Document {
	root, err := html.Parse(strings.NewReader(raw))
	if err != nil {
		root = &html.Node{Type: html.DocumentNode}
	}
	return &Document{root: root}
}

// Words returns the indexable tokens of the body.
func (d *Document) Words() []string {
	body := d.body()
	if body == nil {
		return nil
	}
	var words []string
	eachText(body, func(s string) {
		words = append(words, text.Words(s)...)
	})
	return words
}

// Language returns the primary subtag of the lang attribute of the html element
// ("en" for "en-US"), or UnknownLanguage.
func (d *Document) Language() string {
	el := findFirst(d.root, isElement(atom.Html))
	if el == nil {
		return UnknownLanguage
	}
	lang, ok := attr(el, "lang")
	if !ok {
		return UnknownLanguage
	}
	primary, _, _ := strings.Cut(strings.TrimSpace(lang), "-")
	if primary == "" {
		return UnknownLanguage
	}
	return strings.ToLower(primary)
}

func (d *Document) body() *html.Node {
	return findFirst(d.root, isElement(atom.Body))
}

// findFirst returns the first node in document order satisfying match.
func findFirst(n *html.Node, match func(*html.Node) bool) *html.Node {
	if match(n) {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findFirst(c, match); found != nil {
			return found
		}
	}
	return nil
}

func isElement(a atom.Atom) func(*html.Node) bool {
	return func(n *html.Node) bool {
		return n.Type == html.ElementNode && n.DataAtom == a
	}
}

func attr(n *html.Node, key string) (string, bool) {
	if n.Type != html.ElementNode {
		return "", false
	}
	for _, a := range n.Attr {
		if a.Namespace == "" && strings.EqualFold(a.Key, key) {
			return a.Val, true
		}
	}
	return "", false
}

// eachText calls fn for every text run below n, in document order, skipping non-content elements.
func eachText(n *html.Node, fn func(string)) {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		switch c.Type {
		case html.TextNode:
			fn(c.Data)
		case html.ElementNode:
			if _, skip := skippedElements[c.DataAtom]; skip {
				continue
			}
			eachText(c, fn)
		}
	}
}

// innerText joins the text runs below n with single spaces.
func innerText(n *html.Node) string {
	var parts []string
	eachText(n, func(s string) { parts = append(parts, s) })
	return strings.Join(parts, " ")
}
