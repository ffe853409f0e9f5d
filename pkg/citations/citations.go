// Package citations parses and rewrites the inline source markers that
// answers carry, in the form "[N → Page X]" or "[N]".
package citations

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// Pattern matches a citation marker. Group 1 is the document number and
// group 2 the optional page number.
var Pattern = regexp.MustCompile(`\[(\d+)(?:\s*→\s*Page\s*(\d+))?\]`)

var (
	boldMarker         = regexp.MustCompile(`\*\*`)
	repeatedBlanks     = regexp.MustCompile(`[ \t]{2,}`)
	blankBeforePunct   = regexp.MustCompile(`[ \t]+([.,;:!?])`)
	blankBeforeNewline = regexp.MustCompile(`[ \t]+\n`)
)

const (
	SourceUploaded = "uploaded"
	SourceCompany  = "company"
)

// Citation is one marker found in a text. Start and End are byte offsets.
type Citation struct {
	Raw       string `json:"raw"`
	DocNumber int    `json:"doc_number"`
	Page      int    `json:"page,omitempty"`
	HasPage   bool   `json:"has_page"`
	Start     int    `json:"start"`
	End       int    `json:"end"`
}

// Label renders the marker in canonical form.
func (c Citation) Label() string {
	if c.HasPage {
		return fmt.Sprintf("[%d → Page %d]", c.DocNumber, c.Page)
	}
	return fmt.Sprintf("[%d]", c.DocNumber)
}

type FragmentKind string

const (
	FragmentText     FragmentKind = "text"
	FragmentCitation FragmentKind = "citation"
)

// Fragment is a run of plain text or a single citation marker.
type Fragment struct {
	Kind     FragmentKind `json:"kind"`
	Text     string       `json:"text"`
	Citation *Citation    `json:"citation,omitempty"`
}

// DocRef describes the document behind a prompt-side document number.
type DocRef struct {
	Filename    string
	Type        string
	DownloadURL string
}

// Source is a cited document after renumbering.
type Source struct {
	Filename       string `json:"filename" bson:"filename"`
	Type           string `json:"type" bson:"type"`
	DownloadURL    string `json:"download_url,omitempty" bson:"download_url,omitempty"`
	CitationNumber int    `json:"citation_number" bson:"citation_number"`
}

// Find returns every marker in text, left to right.
func Find(text string) []Citation {
	matches := Pattern.FindAllStringSubmatchIndex(text, -1)
	out := make([]Citation, 0, len(matches))
	for _, m := range matches {
		c := Citation{Raw: text[m[0]:m[1]], Start: m[0], End: m[1]}
		c.DocNumber, _ = strconv.Atoi(text[m[2]:m[3]])
		if m[4] >= 0 {
			c.Page, _ = strconv.Atoi(text[m[4]:m[5]])
			c.HasPage = true
		}
		out = append(out, c)
	}
	return out
}

// Fragments splits text into alternating text and citation fragments.
// Joining the Text of every fragment yields the input unchanged.
func Fragments(text string) []Fragment {
	var out []Fragment
	pos := 0
	for _, c := range Find(text) {
		if c.Start > pos {
			out = append(out, Fragment{Kind: FragmentText, Text: text[pos:c.Start]})
		}
		cit := c
		out = append(out, Fragment{Kind: FragmentCitation, Text: c.Raw, Citation: &cit})
		pos = c.End
	}
	if pos < len(text) {
		out = append(out, Fragment{Kind: FragmentText, Text: text[pos:]})
	}
	return out
}

// Strip removes all markers, tidying the whitespace they leave behind.
func Strip(text string) string {
	out := Pattern.ReplaceAllString(text, "")
	out = repeatedBlanks.ReplaceAllString(out, " ")
	out = blankBeforePunct.ReplaceAllString(out, "$1")
	out = blankBeforeNewline.ReplaceAllString(out, "\n")
	return strings.TrimSpace(out)
}

// CleanResponse drops Markdown bold markers and surrounding whitespace.
func CleanResponse(text string) string {
	return strings.TrimSpace(boldMarker.ReplaceAllString(text, ""))
}

// SourceAnchor is the anchor id clients use to link a marker to its source entry.
func SourceAnchor(n int) string {
	return "source-" + strconv.Itoa(n)
}

// Renumber rewrites prompt-side document numbers so that each cited file gets
// a single number, assigned 1..k in ascending order of the first document
// number citing it. Markers that reference unknown documents are left as is.
func Renumber(text string, mapping map[int]DocRef) (string, []Source) {
	cited := map[int]struct{}{}
	for _, c := range Find(text) {
		cited[c.DocNumber] = struct{}{}
	}
	docNums := make([]int, 0, len(cited))
	for n := range cited {
		docNums = append(docNums, n)
	}
	sort.Ints(docNums)

	byFilename := map[string]int{}
	renumber := map[int]int{}
	var sources []Source
	for _, old := range docNums {
		ref, ok := mapping[old]
		if !ok {
			continue
		}
		n, seen := byFilename[ref.Filename]
		if !seen {
			n = len(sources) + 1
			byFilename[ref.Filename] = n
			sources = append(sources, Source{
				Filename:       iconFor(ref.Type) + " " + ref.Filename,
				Type:           ref.Type,
				DownloadURL:    ref.DownloadURL,
				CitationNumber: n,
			})
		}
		renumber[old] = n
	}

	updated := Pattern.ReplaceAllStringFunc(text, func(raw string) string {
		c := Find(raw)[0]
		n, ok := renumber[c.DocNumber]
		if !ok {
			return raw
		}
		c.DocNumber = n
		return c.Label()
	})

	if sources == nil {
		sources = []Source{}
	}
	return updated, sources
}

func iconFor(sourceType string) string {
	if sourceType == SourceUploaded {
		return "📤"
	}
	return "📁"
}
