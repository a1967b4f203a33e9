// Package docs defines the document domain model: frontmatter metadata,
// markdown derivations (table of contents, sections, search text), audience
// redaction, and the governance content hash.
//
// A document is identified by the (slug, version) pair. The slug is a stable
// human-chosen identifier shared across versions; the version is a free-form
// string, conventionally an ISO date, unique per slug.
package docs

import (
	"fmt"
)

// Stage is the governance status of a document version.
type Stage string

const (
	// StageDraft is the initial stage of every new document.
	StageDraft Stage = "draft"
	// StageFinal marks content-complete documents awaiting review.
	StageFinal Stage = "final"
	// StageOfficial marks reviewed documents that carry governance guarantees.
	StageOfficial Stage = "official"
)

// ValidStage reports whether s is a known stage value.
func ValidStage(s Stage) bool {
	return s == StageDraft || s == StageFinal || s == StageOfficial
}

// Visibility controls which export modes may surface a document.
type Visibility string

const (
	// VisibilityPublic documents are eligible for the public export.
	VisibilityPublic Visibility = "public"
	// VisibilityInternal documents are restricted to internal surfaces.
	VisibilityInternal Visibility = "internal"
	// VisibilityPrivate documents never leave internal tooling.
	VisibilityPrivate Visibility = "private"
)

// ValidVisibility reports whether v is a known visibility value.
func ValidVisibility(v Visibility) bool {
	return v == VisibilityPublic || v == VisibilityInternal || v == VisibilityPrivate
}

// Audience is the redaction level requested by a reader.
// private readers see everything, internal readers see internal and public
// regions, public readers see only unmarked content.
type Audience string

const (
	// AudiencePublic sees only unmarked content.
	AudiencePublic Audience = "public"
	// AudienceInternal sees public and internal-marked content.
	AudienceInternal Audience = "internal"
	// AudiencePrivate sees all content.
	AudiencePrivate Audience = "private"
)

// ValidAudience reports whether a is a known audience value.
func ValidAudience(a Audience) bool {
	return a == AudiencePublic || a == AudienceInternal || a == AudiencePrivate
}

func audienceRank(a Audience) int {
	switch a {
	case AudienceInternal:
		return 1
	case AudiencePrivate:
		return 2
	default:
		return 0
	}
}

// Citation is a reference backing claims made in a document.
type Citation struct {
	Label string `json:"label" yaml:"label"`
	URL   string `json:"url,omitempty" yaml:"url,omitempty"`
}

// Approval records a sign-off on a document version.
type Approval struct {
	Name string `json:"name" yaml:"name"`
	Date string `json:"date" yaml:"date"`
}

// AuditEntry is one append-only record of a lifecycle mutation.
type AuditEntry struct {
	At     string `json:"at" yaml:"at"`
	Action string `json:"action" yaml:"action"`
	Actor  string `json:"actor,omitempty" yaml:"actor,omitempty"`
	Note   string `json:"note,omitempty" yaml:"note,omitempty"`
}

// Meta is the frontmatter of a document version.
type Meta struct {
	Slug           string            `json:"slug"`
	Version        string            `json:"version"`
	Title          string            `json:"title"`
	Stage          Stage             `json:"stage"`
	Summary        string            `json:"summary"`
	UpdatedAt      string            `json:"updatedAt"`
	LastReviewedAt string            `json:"lastReviewedAt,omitempty"`
	Owners         []string          `json:"owners,omitempty"`
	Topics         []string          `json:"topics,omitempty"`
	Collection     string            `json:"collection,omitempty"`
	Order          *int              `json:"order,omitempty"`
	Archived       bool              `json:"archived"`
	Visibility     Visibility        `json:"visibility"`
	RelatedSlugs   []string          `json:"relatedSlugs,omitempty"`
	Citations      []Citation        `json:"citations,omitempty"`
	Approvals      []Approval        `json:"approvals,omitempty"`
	CanonicalFor   []string          `json:"canonicalFor,omitempty"`
	Facts          map[string]string `json:"facts,omitempty"`
	Audit          []AuditEntry      `json:"audit,omitempty"`
}

// Heading is one table-of-contents entry.
type Heading struct {
	Level int    `json:"level"`
	Text  string `json:"text"`
	ID    string `json:"id"`
}

// Section is one H2-delimited region of the document body.
type Section struct {
	Heading string `json:"heading"`
	ID      string `json:"id"`
	Content string `json:"content"`
}

// Document is a fully parsed document version with derived projections.
// Markdown always ends with exactly one trailing newline. TOC, Sections and
// SearchText are derived from Markdown; ContentHash is always computed over
// the raw (unredacted) body so it identifies the version.
type Document struct {
	Meta
	Markdown    string    `json:"markdown"`
	TOC         []Heading `json:"toc"`
	Sections    []Section `json:"sections"`
	SearchText  string    `json:"searchText"`
	ContentHash string    `json:"contentHash"`
	Path        string    `json:"path"`
}

// Redacted returns a copy of the document with the markdown body filtered to
// the requested audience. TOC, Sections and SearchText are recomputed from
// the redacted body, so no marked region above the audience survives in any
// serialized projection. ContentHash keeps identifying the raw content.
func (d *Document) Redacted(aud Audience) *Document {
	c := *d
	c.Markdown = Redact(d.Markdown, aud)
	if c.Markdown != d.Markdown {
		c.TOC, c.Sections = Outline(c.Markdown)
		c.SearchText = PlainText(c.Markdown)
	}
	return &c
}

// FieldError reports an invalid or missing frontmatter field in a specific file.
type FieldError struct {
	File   string
	Field  string
	Reason string
}

// Error implements the error interface.
func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: frontmatter field %q %s", e.File, e.Field, e.Reason)
}
