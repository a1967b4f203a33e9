// Markdown derivations: table of contents, H2 sections, heading slugs and the
// plain-text search projection.

package docs

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	imageRe      = regexp.MustCompile(`!\[[^\]]*\]\([^)]*\)`)
	linkRe       = regexp.MustCompile(`\[[^\]]*\]\([^)]*\)`)
	linkTextRe   = regexp.MustCompile(`\[([^\]]*)\]\([^)]*\)`)
	inlineCodeRe = regexp.MustCompile("`+")
	emphasisRe   = regexp.MustCompile(`[*_~]`)
	spaceRe      = regexp.MustCompile(`\s+`)
)

// Slugger generates GitHub-style heading ids, suffixing duplicates with -1,
// -2, and so on. Blank headings fall back to "section".
type Slugger struct {
	seen map[string]int
}

// NewSlugger returns a fresh Slugger with no reserved ids.
func NewSlugger() *Slugger {
	return &Slugger{seen: map[string]int{}}
}

// Slug returns the id for a heading text, unique within this Slugger.
func (s *Slugger) Slug(text string) string {
	base := slugify(text)
	if base == "" {
		base = "section"
	}
	n, ok := s.seen[base]
	s.seen[base] = n + 1
	if !ok {
		return base
	}
	return base + "-" + strconv.Itoa(n)
}

func slugify(text string) string {
	text = stripInlineMarkers(text)
	text = strings.ToLower(text)
	var b strings.Builder
	for _, r := range text {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-':
			b.WriteRune(r)
		case r == ' ', r == '\t':
			b.WriteRune(' ')
		}
	}
	fields := strings.Fields(b.String())
	return strings.Join(fields, "-")
}

// stripInlineMarkers removes inline markdown markers from a heading line while
// keeping the visible text: code ticks, emphasis punctuation, link and image
// syntax (link text survives, URLs do not).
func stripInlineMarkers(text string) string {
	text = imageRe.ReplaceAllString(text, "")
	text = linkTextRe.ReplaceAllString(text, "$1")
	text = inlineCodeRe.ReplaceAllString(text, "")
	text = emphasisRe.ReplaceAllString(text, "")
	return strings.TrimSpace(text)
}

// fenceMask marks which lines sit inside a fenced code block, including the
// fence marker lines themselves. Fences are resolved by matching openers with
// closers up front: an opener that never closes is treated as literal text so
// that the rest of the document is not swallowed.
func fenceMask(lines []string) []bool {
	mask := make([]bool, len(lines))
	open := -1
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if !strings.HasPrefix(trimmed, "```") && !strings.HasPrefix(trimmed, "~~~") {
			continue
		}
		if open < 0 {
			open = i
			continue
		}
		for j := open; j <= i; j++ {
			mask[j] = true
		}
		open = -1
	}
	return mask
}

// Outline extracts the table of contents (H2/H3 headings outside fenced code)
// and the H2-delimited sections of a markdown body. Both share one Slugger so
// section ids match TOC ids.
func Outline(markdown string) ([]Heading, []Section) {
	lines := strings.Split(markdown, "\n")
	mask := fenceMask(lines)
	slugger := NewSlugger()

	toc := []Heading{}
	sections := []Section{}
	var cur *Section
	flush := func() {
		if cur != nil {
			cur.Content = strings.TrimRight(cur.Content, "\n")
			sections = append(sections, *cur)
			cur = nil
		}
	}

	for i, line := range lines {
		if !mask[i] {
			switch {
			case strings.HasPrefix(line, "## ") && !strings.HasPrefix(line, "###"):
				text := stripInlineMarkers(strings.TrimPrefix(line, "## "))
				id := slugger.Slug(text)
				toc = append(toc, Heading{Level: 2, Text: text, ID: id})
				flush()
				cur = &Section{Heading: text, ID: id}
				continue
			case strings.HasPrefix(line, "### "):
				text := stripInlineMarkers(strings.TrimPrefix(line, "### "))
				toc = append(toc, Heading{Level: 3, Text: text, ID: slugger.Slug(text)})
			}
		}
		if cur != nil {
			cur.Content += line + "\n"
		}
	}
	flush()
	return toc, sections
}

// PlainText projects markdown to a search-oriented plain text string: fenced
// code is dropped, images and links are removed entirely, heading markers and
// emphasis punctuation are stripped and whitespace is collapsed. This is a
// lossy transform for indexing, not a renderer.
func PlainText(markdown string) string {
	lines := strings.Split(markdown, "\n")
	mask := fenceMask(lines)
	var kept []string
	for i, line := range lines {
		if mask[i] {
			continue
		}
		line = strings.TrimLeft(line, "#")
		kept = append(kept, line)
	}
	text := strings.Join(kept, "\n")
	text = imageRe.ReplaceAllString(text, " ")
	text = linkRe.ReplaceAllString(text, " ")
	text = inlineCodeRe.ReplaceAllString(text, "")
	text = emphasisRe.ReplaceAllString(text, "")
	return strings.TrimSpace(spaceRe.ReplaceAllString(text, " "))
}
