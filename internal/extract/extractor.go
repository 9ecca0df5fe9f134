// Package extract turns raw HTML into indexable words and, for a given query,
// into a scored document summary.
package extract

import (
	stdhtml "html"
	"regexp"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/kailas-cloud/peersearch/internal/domain/document"
	"github.com/kailas-cloud/peersearch/internal/domain/text"
)

// Extract candidates must be strictly longer than MinExtractLen and strictly shorter than MaxExtractLen characters.
const (
	MinExtractLen = 50
	MaxExtractLen = 350
)

const (
	firstWordBonus = 4
	termBonus      = 1
)

var repeatedSpaceRegex = regexp.MustCompile(`\s+`)

// Extractor builds query results from parsed documents. It is safe for concurrent use.
type Extractor struct {
	policyPool sync.Pool
}

// New creates an Extractor.
func New() *Extractor {
	return &Extractor{
		policyPool: sync.Pool{
			New: func() any {
				return bluemonday.StrictPolicy()
			},
		},
	}
}

// Parse is a shortcut for the package level Parse.
func (e *Extractor) Parse(raw string) *Document { return Parse(raw) }

// IntoResult summarises doc for a query whose positive terms are given.
// ok is false when the document has neither a title nor a first-level heading,
// or neither a description nor a matching extract.
func (e *Extractor) IntoResult(
	doc *Document, cid string, meta document.Metadata, positiveTerms []string,
) (result document.Result, ok bool) {
	title := nonBlankText(findFirst(doc.root, isElement(atom.Title)))

	var h1 *string
	if title == nil {
		h1 = nonBlankText(findFirst(doc.root, isElement(atom.H1)))
	}
	if title == nil && h1 == nil {
		return document.Result{}, false
	}

	description := e.description(doc)

	body := doc.body()
	var extract *string
	if body != nil {
		extract = bestExtract(body, positiveTerms)
	}
	if description == nil && extract == nil {
		return document.Result{}, false
	}

	termCounts := make([]document.WordCount, len(positiveTerms))
	var wordCount document.WordCount
	if body != nil {
		termIndex := make(map[string]int, len(positiveTerms))
		for i, t := range positiveTerms {
			if _, dup := termIndex[t]; !dup {
				termIndex[t] = i
			}
		}
		countWords(body, document.Emphasis(0).With(body.Data), termIndex, termCounts, &wordCount)
	}

	return document.Result{
		CID:         cid,
		Paths:       meta.Paths,
		Title:       title,
		H1:          h1,
		Description: description,
		Extract:     extract,
		TermCounts:  termCounts,
		WordCount:   wordCount,
	}, true
}

// description returns the cleaned content of the first meta[name=description].
// A present content attribute counts even when it cleans down to nothing.
func (e *Extractor) description(doc *Document) *string {
	meta := findFirst(doc.root, func(n *html.Node) bool {
		if !isElement(atom.Meta)(n) {
			return false
		}
		name, _ := attr(n, "name")
		return strings.EqualFold(strings.TrimSpace(name), "description")
	})
	if meta == nil {
		return nil
	}
	content, ok := attr(meta, "content")
	if !ok {
		return nil
	}

	policy := e.policyPool.Get().(*bluemonday.Policy)
	defer e.policyPool.Put(policy)

	cleaned := strings.TrimSpace(stdhtml.UnescapeString(repeatedSpaceRegex.ReplaceAllString(
		policy.Sanitize(content), " ",
	)))
	return &cleaned
}

func nonBlankText(n *html.Node) *string {
	if n == nil {
		return nil
	}
	s := strings.TrimSpace(innerText(n))
	if s == "" {
		return nil
	}
	return &s
}

// bestExtract picks the highest scoring text run of acceptable length. The first run wins ties.
func bestExtract(body *html.Node, positiveTerms []string) *string {
	terms := make(map[string]struct{}, len(positiveTerms))
	for _, t := range positiveTerms {
		terms[t] = struct{}{}
	}

	var best string
	bestScore := 0
	eachText(body, func(run string) {
		n := utf8.RuneCountInString(run)
		if n <= MinExtractLen || n >= MaxExtractLen {
			return
		}
		if score := extractScore(run, terms); score > bestScore {
			best, bestScore = run, score
		}
	})
	if bestScore == 0 {
		return nil
	}
	return &best
}

// extractScore rewards a run that opens with a query term, then every distinct
// query term found in the rest of the run.
func extractScore(run string, terms map[string]struct{}) int {
	words := text.Words(run)
	if len(words) == 0 {
		return 0
	}
	score := 0
	if _, ok := terms[words[0]]; ok {
		score += firstWordBonus
	}
	rest := make(map[string]struct{}, len(words)-1)
	for _, w := range words[1:] {
		rest[w] = struct{}{}
	}
	for t := range terms {
		if _, ok := rest[t]; ok {
			score += termBonus
		}
	}
	return score
}

// countWords walks n depth first. e is the emphasis inherited from the ancestors of n;
// each child gets its own copy extended with its own tag.
func countWords(
	n *html.Node, e document.Emphasis,
	termIndex map[string]int, termCounts []document.WordCount, total *document.WordCount,
) {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		switch c.Type {
		case html.ElementNode:
			if _, skip := skippedElements[c.DataAtom]; skip {
				continue
			}
			countWords(c, e.With(c.Data), termIndex, termCounts, total)
		case html.TextNode:
			for _, w := range text.Words(c.Data) {
				if i, ok := termIndex[w]; ok {
					termCounts[i].Add(e)
				}
				total.Add(e)
			}
		}
	}
}
