package document

// Emphasis is the set of structural contexts active at some point of a document.
// Values are passed by copy down the tree, so a flag set on one branch never leaks to its siblings.
type Emphasis uint16

// Emphasis flags.
const (
	H1 Emphasis = 1 << iota
	H2
	H3
	H4
	H5
	H6
	Strong
	Em
	Small
	Strike
)

var emphasisTags = map[string]Emphasis{
	"h1":     H1,
	"h2":     H2,
	"h3":     H3,
	"h4":     H4,
	"h5":     H5,
	"h6":     H6,
	"strong": Strong,
	"em":     Em,
	"small":  Small,
	"s":      Strike,
}

// With returns e plus the flag of tag, if tag is an emphasis element.
// Flags are only ever added.
func (e Emphasis) With(tag string) Emphasis {
	return e | emphasisTags[tag]
}

// Has reports whether every flag of f is set in e.
func (e Emphasis) Has(f Emphasis) bool { return e&f == f }

// WordCount counts word occurrences per emphasis context.
// One occurrence increments every counter whose context is active.
type WordCount struct {
	H1     uint32 `json:"h1"`
	H2     uint32 `json:"h2"`
	H3     uint32 `json:"h3"`
	H4     uint32 `json:"h4"`
	H5     uint32 `json:"h5"`
	H6     uint32 `json:"h6"`
	Strong uint32 `json:"strong"`
	Em     uint32 `json:"em"`
	Small  uint32 `json:"small"`
	S      uint32 `json:"s"`
}

// Add records one occurrence under e.
func (wc *WordCount) Add(e Emphasis) {
	inc := func(flag Emphasis, c *uint32) {
		if e.Has(flag) {
			*c++
		}
	}
	inc(H1, &wc.H1)
	inc(H2, &wc.H2)
	inc(H3, &wc.H3)
	inc(H4, &wc.H4)
	inc(H5, &wc.H5)
	inc(H6, &wc.H6)
	inc(Strong, &wc.Strong)
	inc(Em, &wc.Em)
	inc(Small, &wc.Small)
	inc(Strike, &wc.S)
}

// Result is the projection of one document for one query. It is built once and never mutated.
type Result struct {
	CID         string      `json:"cid"`
	Paths       []string    `json:"paths"`
	IconCID     *string     `json:"icon_cid,omitempty"`
	Domain      *string     `json:"domain,omitempty"`
	Title       *string     `json:"title,omitempty"`
	H1          *string     `json:"h1,omitempty"`
	Description *string     `json:"description,omitempty"`
	Extract     *string     `json:"extract,omitempty"`
	TermCounts  []WordCount `json:"term_counts"`
	WordCount   WordCount   `json:"word_count"`
}

// DisplayTitle returns the title, falling back to the first-level heading.
func (r *Result) DisplayTitle() string {
	switch {
	case r.Title != nil:
		return *r.Title
	case r.H1 != nil:
		return *r.H1
	default:
		return ""
	}
}

// Match is a Result with its query score.
type Match struct {
	Result Result `json:"result"`
	Score  uint32 `json:"score"`
}
