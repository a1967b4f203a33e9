// Frontmatter parsing, validation and serialization for document files.

package docs

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const frontmatterDelim = "---"

// rawFrontmatter mirrors the on-disk frontmatter block. The date-ish fields
// decode into any so that a YAML timestamp (an unquoted date) can be told
// apart from a string and from an absent key.
type rawFrontmatter struct {
	Slug           string            `yaml:"slug"`
	Title          string            `yaml:"title"`
	Stage          string            `yaml:"stage"`
	Summary        string            `yaml:"summary"`
	UpdatedAt      any               `yaml:"updatedAt"`
	Version        any               `yaml:"version"`
	LastReviewedAt any               `yaml:"lastReviewedAt"`
	Owners         []string          `yaml:"owners"`
	Topics         []string          `yaml:"topics"`
	Collection     string            `yaml:"collection"`
	Order          *int              `yaml:"order"`
	Archived       bool              `yaml:"archived"`
	Visibility     string            `yaml:"visibility"`
	RelatedSlugs   []string          `yaml:"relatedSlugs"`
	Citations      []Citation        `yaml:"citations"`
	Approvals      []Approval        `yaml:"approvals"`
	CanonicalFor   []string          `yaml:"canonicalFor"`
	Facts          map[string]string `yaml:"facts"`
	Audit          []AuditEntry      `yaml:"audit"`
}

// Parse parses a document file into a Document, validating the frontmatter
// and computing all derived projections. file is used for error reporting and
// recorded as the document's backing path.
func Parse(file string, raw []byte) (*Document, error) {
	fmBlock, body, err := splitFrontmatter(file, string(raw))
	if err != nil {
		return nil, err
	}

	var fm rawFrontmatter
	if err := yaml.Unmarshal([]byte(fmBlock), &fm); err != nil {
		return nil, fmt.Errorf("%s: invalid frontmatter: %w", file, err)
	}

	meta, err := validate(file, &fm)
	if err != nil {
		return nil, err
	}

	markdown := NormalizeMarkdown(body)
	toc, sections := Outline(markdown)
	doc := &Document{
		Meta:        *meta,
		Markdown:    markdown,
		TOC:         toc,
		Sections:    sections,
		SearchText:  PlainText(markdown),
		ContentHash: ContentHash(meta, markdown),
		Path:        file,
	}
	return doc, nil
}

// NormalizeMarkdown right-trims the body and appends exactly one trailing
// newline so that serialization is deterministic.
func NormalizeMarkdown(body string) string {
	return strings.TrimRight(body, " \t\r\n") + "\n"
}

func splitFrontmatter(file, content string) (fm, body string, err error) {
	if !strings.HasPrefix(content, frontmatterDelim+"\n") {
		return "", "", &FieldError{File: file, Field: "frontmatter", Reason: "block is missing (file must start with ---)"}
	}
	rest := content[len(frontmatterDelim)+1:]
	end := closingDelim(rest)
	if end < 0 {
		return "", "", &FieldError{File: file, Field: "frontmatter", Reason: "block is unterminated (missing closing ---)"}
	}
	fm = rest[:end]
	body = rest[end+len(frontmatterDelim):]
	// Drop the delimiter's own line break and the blank separator line that
	// Format writes. Leading blank lines are not body content; keeping any of
	// them would grow the markdown by one line on every parse/format cycle.
	body = strings.TrimLeft(body, "\n")
	return fm, body, nil
}

// closingDelim returns the offset of the closing delimiter, which must be a
// whole line: ---- or ---text does not terminate the block. Returns -1 when
// the block never closes.
func closingDelim(rest string) int {
	if isDelimLine(rest, 0) {
		return 0
	}
	for search := 0; ; {
		i := strings.Index(rest[search:], "\n"+frontmatterDelim)
		if i < 0 {
			return -1
		}
		at := search + i + 1
		if isDelimLine(rest, at) {
			return at
		}
		search = at
	}
}

func isDelimLine(s string, at int) bool {
	if !strings.HasPrefix(s[at:], frontmatterDelim) {
		return false
	}
	end := at + len(frontmatterDelim)
	return end == len(s) || s[end] == '\n'
}

// dateField coerces a decoded YAML value into a string, distinguishing a
// missing key from a value of the wrong type. Unquoted ISO dates decode as
// time.Time and are rejected with a pointed message since they are the most
// common authoring mistake.
func dateField(file, field string, v any) (string, error) {
	switch t := v.(type) {
	case nil:
		return "", nil
	case string:
		return t, nil
	case time.Time:
		return "", &FieldError{File: file, Field: field, Reason: "must be a quoted string, not a YAML date (write \"" + t.Format("2006-01-02") + "\")"}
	default:
		return "", &FieldError{File: file, Field: field, Reason: fmt.Sprintf("must be a string, got %T", v)}
	}
}

func validate(file string, fm *rawFrontmatter) (*Meta, error) {
	if strings.TrimSpace(fm.Slug) == "" {
		return nil, &FieldError{File: file, Field: "slug", Reason: "is required"}
	}
	if fm.Title == "" {
		return nil, &FieldError{File: file, Field: "title", Reason: "is required"}
	}
	if fm.Stage == "" {
		return nil, &FieldError{File: file, Field: "stage", Reason: "is required"}
	}
	if !ValidStage(Stage(fm.Stage)) {
		return nil, &FieldError{File: file, Field: "stage", Reason: fmt.Sprintf("must be one of draft, final, official (got %q)", fm.Stage)}
	}
	if fm.Summary == "" {
		return nil, &FieldError{File: file, Field: "summary", Reason: "is required"}
	}

	updatedAt, err := dateField(file, "updatedAt", fm.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if updatedAt == "" {
		return nil, &FieldError{File: file, Field: "updatedAt", Reason: "is required"}
	}
	version, err := dateField(file, "version", fm.Version)
	if err != nil {
		return nil, err
	}
	if version == "" {
		version = updatedAt
	}
	lastReviewedAt, err := dateField(file, "lastReviewedAt", fm.LastReviewedAt)
	if err != nil {
		return nil, err
	}

	visibility := Visibility(fm.Visibility)
	if fm.Visibility == "" {
		visibility = VisibilityPublic
	}
	if !ValidVisibility(visibility) {
		return nil, &FieldError{File: file, Field: "visibility", Reason: fmt.Sprintf("must be one of public, internal, private (got %q)", fm.Visibility)}
	}

	meta := &Meta{
		Slug:           strings.TrimSpace(fm.Slug),
		Version:        version,
		Title:          fm.Title,
		Stage:          Stage(fm.Stage),
		Summary:        fm.Summary,
		UpdatedAt:      updatedAt,
		LastReviewedAt: lastReviewedAt,
		Owners:         emptyIfNil(fm.Owners),
		Topics:         emptyIfNil(fm.Topics),
		Collection:     fm.Collection,
		Order:          fm.Order,
		Archived:       fm.Archived,
		Visibility:     visibility,
		RelatedSlugs:   emptyIfNil(fm.RelatedSlugs),
		Citations:      fm.Citations,
		Approvals:      fm.Approvals,
		CanonicalFor:   emptyIfNil(fm.CanonicalFor),
		Facts:          fm.Facts,
		Audit:          fm.Audit,
	}
	if meta.Citations == nil {
		meta.Citations = []Citation{}
	}
	if meta.Approvals == nil {
		meta.Approvals = []Approval{}
	}
	if meta.Facts == nil {
		meta.Facts = map[string]string{}
	}
	if meta.Audit == nil {
		meta.Audit = []AuditEntry{}
	}
	return meta, nil
}

func emptyIfNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// Format serializes a document back to its on-disk representation. The
// frontmatter is written by hand in a fixed key order with date-ish values
// double-quoted, so parse(format(doc)) round-trips and diffs stay minimal.
func Format(meta *Meta, markdown string) []byte {
	var b strings.Builder
	b.WriteString(frontmatterDelim + "\n")
	writeScalar(&b, "slug", meta.Slug)
	writeScalar(&b, "version", meta.Version)
	writeScalar(&b, "title", meta.Title)
	writeScalar(&b, "stage", string(meta.Stage))
	writeScalar(&b, "summary", meta.Summary)
	writeScalar(&b, "updatedAt", meta.UpdatedAt)
	if meta.LastReviewedAt != "" {
		writeScalar(&b, "lastReviewedAt", meta.LastReviewedAt)
	}
	writeList(&b, "owners", meta.Owners)
	writeList(&b, "topics", meta.Topics)
	if meta.Collection != "" {
		writeScalar(&b, "collection", meta.Collection)
	}
	if meta.Order != nil {
		b.WriteString("order: " + strconv.Itoa(*meta.Order) + "\n")
	}
	b.WriteString("archived: " + strconv.FormatBool(meta.Archived) + "\n")
	writeScalar(&b, "visibility", string(meta.Visibility))
	writeList(&b, "relatedSlugs", meta.RelatedSlugs)
	if len(meta.Citations) > 0 {
		b.WriteString("citations:\n")
		for _, c := range meta.Citations {
			b.WriteString("  - label: " + quote(c.Label) + "\n")
			if c.URL != "" {
				b.WriteString("    url: " + quote(c.URL) + "\n")
			}
		}
	}
	if len(meta.Approvals) > 0 {
		b.WriteString("approvals:\n")
		for _, a := range meta.Approvals {
			b.WriteString("  - name: " + quote(a.Name) + "\n")
			b.WriteString("    date: " + quote(a.Date) + "\n")
		}
	}
	writeList(&b, "canonicalFor", meta.CanonicalFor)
	if len(meta.Facts) > 0 {
		b.WriteString("facts:\n")
		keys := make([]string, 0, len(meta.Facts))
		for k := range meta.Facts {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			b.WriteString("  " + quote(k) + ": " + quote(meta.Facts[k]) + "\n")
		}
	}
	if len(meta.Audit) > 0 {
		b.WriteString("audit:\n")
		for _, e := range meta.Audit {
			b.WriteString("  - at: " + quote(e.At) + "\n")
			b.WriteString("    action: " + quote(e.Action) + "\n")
			if e.Actor != "" {
				b.WriteString("    actor: " + quote(e.Actor) + "\n")
			}
			if e.Note != "" {
				b.WriteString("    note: " + quote(e.Note) + "\n")
			}
		}
	}
	b.WriteString(frontmatterDelim + "\n\n")
	b.WriteString(NormalizeMarkdown(markdown))
	return []byte(b.String())
}

func writeScalar(b *strings.Builder, key, val string) {
	b.WriteString(key + ": " + quote(val) + "\n")
}

func writeList(b *strings.Builder, key string, vals []string) {
	if len(vals) == 0 {
		return
	}
	b.WriteString(key + ":\n")
	for _, v := range vals {
		b.WriteString("  - " + quote(v) + "\n")
	}
}

// quote renders a YAML double-quoted scalar. strconv.Quote produces C-style
// escapes, which the YAML double-quoted style accepts.
func quote(s string) string {
	return strconv.Quote(s)
}
