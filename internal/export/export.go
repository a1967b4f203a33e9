// Package export derives the machine-readable artifacts downstream AI and
// search tooling consumes: the document index, search index, chunked text,
// embeddings manifest, claims extraction and the update feed.
//
// Every artifact is a pure function of the repository state, so two runs over
// the same corpus are byte-identical. Chunk ids and the build id are derived
// from content hashes, never from timestamps.
package export

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/docforge/docforge/internal/docs"
	"github.com/docforge/docforge/internal/repository"
)

// SchemaVersion identifies the artifact schema generation. Bump on any
// breaking field change.
const SchemaVersion = 1

// IndexVersion is one version entry of the document index.
type IndexVersion struct {
	Version     string `json:"version"`
	Stage       string `json:"stage"`
	UpdatedAt   string `json:"updatedAt"`
	ContentHash string `json:"contentHash"`
	URL         string `json:"url"`
	RawURL      string `json:"rawUrl"`
}

// IndexDoc is one slug entry of the document index.
type IndexDoc struct {
	Slug     string         `json:"slug"`
	Title    string         `json:"title"`
	Summary  string         `json:"summary"`
	URL      string         `json:"url"`
	RawURL   string         `json:"rawUrl"`
	Versions []IndexVersion `json:"versions"`
}

// DocIndex is the full, schema-versioned per-slug index.
type DocIndex struct {
	SchemaVersion int        `json:"schemaVersion"`
	Docs          []IndexDoc `json:"docs"`
}

// SearchDoc is one flattened latest-version summary with its search text.
type SearchDoc struct {
	Slug       string   `json:"slug"`
	Version    string   `json:"version"`
	Title      string   `json:"title"`
	Summary    string   `json:"summary"`
	Topics     []string `json:"topics,omitempty"`
	Collection string   `json:"collection,omitempty"`
	URL        string   `json:"url"`
	SearchText string   `json:"searchText"`
}

// SearchIndex is the flattened latest-doc search artifact.
type SearchIndex struct {
	SchemaVersion int         `json:"schemaVersion"`
	Docs          []SearchDoc `json:"docs"`
}

// Chunk is one H2 section of a document, or the whole document when it has no
// H2 sections. The id is stable across runs as long as the content is.
type Chunk struct {
	ID      string `json:"id"`
	Slug    string `json:"slug"`
	Version string `json:"version"`
	Title   string `json:"title"`
	Heading string `json:"heading,omitempty"`
	URL     string `json:"url"`
	Text    string `json:"text"`
	Hash    string `json:"hash"`
}

// ChunkExport is the chunked-text artifact.
type ChunkExport struct {
	SchemaVersion int     `json:"schemaVersion"`
	Chunks        []Chunk `json:"chunks"`
}

// ManifestEntry pairs a chunk id with its content hash. Full text is omitted
// so re-embedding pipelines can diff cheaply.
type ManifestEntry struct {
	ChunkID string `json:"chunkId"`
	Hash    string `json:"hash"`
}

// EmbeddingsManifest lists every chunk's id and hash.
type EmbeddingsManifest struct {
	SchemaVersion int             `json:"schemaVersion"`
	Entries       []ManifestEntry `json:"entries"`
}

// DocClaims lists the bare numbers and ISO dates found in one document.
type DocClaims struct {
	Slug    string   `json:"slug"`
	Version string   `json:"version"`
	Numbers []string `json:"numbers,omitempty"`
	Dates   []string `json:"dates,omitempty"`
}

// ClaimsExport is the numeric/date claims artifact for fact-checking tooling.
type ClaimsExport struct {
	SchemaVersion int         `json:"schemaVersion"`
	Docs          []DocClaims `json:"docs"`
}

// FeedDoc is one per-version entry of the update feed.
type FeedDoc struct {
	Slug        string `json:"slug"`
	Version     string `json:"version"`
	UpdatedAt   string `json:"updatedAt"`
	ContentHash string `json:"contentHash"`
}

// UpdateFeed is the change-polling artifact: one aggregate build id plus the
// per-doc hash list.
type UpdateFeed struct {
	SchemaVersion int       `json:"schemaVersion"`
	BuildID       string    `json:"buildId"`
	Docs          []FeedDoc `json:"docs"`
}

var (
	dateClaimRe   = regexp.MustCompile(`\b\d{4}-\d{2}-\d{2}\b`)
	numberClaimRe = regexp.MustCompile(`\b\d+(\.\d+)?\b`)
)

// Generator derives artifacts from a repository.
type Generator struct {
	repo *repository.Repository
}

// New returns a generator over the repository. The repository's export mode
// (public vs internal) decides which documents the artifacts surface.
func New(repo *repository.Repository) *Generator {
	return &Generator{repo: repo}
}

func docURL(slug string) string              { return "/docs/" + slug }
func versionURL(slug, version string) string { return "/docs/" + slug + "/v/" + version }
func rawURL(slug string) string              { return "/raw/" + slug }
func rawVersionURL(slug, version string) string {
	return "/raw/v/" + slug + "/" + version
}

// ChunkID derives the stable id of a section chunk.
func ChunkID(slug, version, sectionID string) string {
	sum := sha256.Sum256([]byte(slug + "@" + version + "#" + sectionID))
	return hex.EncodeToString(sum[:])[:16]
}

// BuildID derives the aggregate corpus fingerprint from per-version content
// hashes. Input order does not matter; the lines are sorted before hashing.
func BuildID(ds []*docs.Document) string {
	lines := make([]string, 0, len(ds))
	for _, d := range ds {
		lines = append(lines, d.Slug+"@"+d.Version+":"+d.ContentHash)
	}
	sort.Strings(lines)
	sum := sha256.Sum256([]byte(strings.Join(lines, "\n")))
	return hex.EncodeToString(sum[:])
}

// visibleDocs returns every version of every visible slug, redacted for the
// repository's export mode, newest first per slug.
func (g *Generator) visibleDocs(ctx context.Context) ([]*docs.Document, error) {
	slugs, err := g.repo.ListSlugs(ctx)
	if err != nil {
		return nil, err
	}
	var out []*docs.Document
	for _, slug := range slugs {
		vs, err := g.repo.ListVersions(ctx, slug, repository.Options{})
		if err != nil {
			return nil, err
		}
		out = append(out, vs...)
	}
	return out, nil
}

// DocIndex builds the full per-slug document index.
func (g *Generator) DocIndex(ctx context.Context) (*DocIndex, error) {
	all, err := g.visibleDocs(ctx)
	if err != nil {
		return nil, err
	}
	bySlug := map[string][]*docs.Document{}
	var slugs []string
	for _, d := range all {
		if bySlug[d.Slug] == nil {
			slugs = append(slugs, d.Slug)
		}
		bySlug[d.Slug] = append(bySlug[d.Slug], d)
	}
	sort.Strings(slugs)

	idx := &DocIndex{SchemaVersion: SchemaVersion}
	for _, slug := range slugs {
		vs := bySlug[slug]
		latest := vs[0]
		entry := IndexDoc{
			Slug:    slug,
			Title:   latest.Title,
			Summary: latest.Summary,
			URL:     docURL(slug),
			RawURL:  rawURL(slug),
		}
		for _, d := range vs {
			entry.Versions = append(entry.Versions, IndexVersion{
				Version:     d.Version,
				Stage:       string(d.Stage),
				UpdatedAt:   d.UpdatedAt,
				ContentHash: d.ContentHash,
				URL:         versionURL(slug, d.Version),
				RawURL:      rawVersionURL(slug, d.Version),
			})
		}
		idx.Docs = append(idx.Docs, entry)
	}
	return idx, nil
}

// SearchIndex builds the flattened latest-doc search artifact.
func (g *Generator) SearchIndex(ctx context.Context) (*SearchIndex, error) {
	latest, err := g.latestDocs(ctx)
	if err != nil {
		return nil, err
	}
	idx := &SearchIndex{SchemaVersion: SchemaVersion}
	for _, d := range latest {
		idx.Docs = append(idx.Docs, SearchDoc{
			Slug:       d.Slug,
			Version:    d.Version,
			Title:      d.Title,
			Summary:    d.Summary,
			Topics:     d.Topics,
			Collection: d.Collection,
			URL:        docURL(d.Slug),
			SearchText: d.SearchText,
		})
	}
	return idx, nil
}

func (g *Generator) latestDocs(ctx context.Context) ([]*docs.Document, error) {
	slugs, err := g.repo.ListSlugs(ctx)
	if err != nil {
		return nil, err
	}
	var out []*docs.Document
	for _, slug := range slugs {
		d, err := g.repo.GetLatest(ctx, slug, repository.Options{})
		if err != nil {
			return nil, err
		}
		if d != nil {
			out = append(out, d)
		}
	}
	return out, nil
}

// Chunks builds the chunked-text export from the latest version of every
// visible slug.
func (g *Generator) Chunks(ctx context.Context) (*ChunkExport, error) {
	latest, err := g.latestDocs(ctx)
	if err != nil {
		return nil, err
	}
	out := &ChunkExport{SchemaVersion: SchemaVersion}
	for _, d := range latest {
		if len(d.Sections) == 0 {
			// Whole-doc fallback for documents without H2 structure.
			text := docs.PlainText(d.Markdown)
			out.Chunks = append(out.Chunks, Chunk{
				ID:      ChunkID(d.Slug, d.Version, ""),
				Slug:    d.Slug,
				Version: d.Version,
				Title:   d.Title,
				URL:     docURL(d.Slug),
				Text:    text,
				Hash:    docs.HashText(text),
			})
			continue
		}
		for _, s := range d.Sections {
			text := docs.PlainText(s.Content)
			out.Chunks = append(out.Chunks, Chunk{
				ID:      ChunkID(d.Slug, d.Version, s.ID),
				Slug:    d.Slug,
				Version: d.Version,
				Title:   d.Title,
				Heading: s.Heading,
				URL:     docURL(d.Slug) + "#" + s.ID,
				Text:    text,
				Hash:    docs.HashText(text),
			})
		}
	}
	return out, nil
}

// EmbeddingsManifest builds the incremental re-embedding manifest.
func (g *Generator) EmbeddingsManifest(ctx context.Context) (*EmbeddingsManifest, error) {
	chunks, err := g.Chunks(ctx)
	if err != nil {
		return nil, err
	}
	m := &EmbeddingsManifest{SchemaVersion: SchemaVersion}
	for _, c := range chunks.Chunks {
		m.Entries = append(m.Entries, ManifestEntry{ChunkID: c.ID, Hash: c.Hash})
	}
	return m, nil
}

// Claims extracts bare numbers and ISO dates from the latest version of every
// visible slug. Dates are matched first so a date's digits never double as
// standalone numbers.
func (g *Generator) Claims(ctx context.Context) (*ClaimsExport, error) {
	latest, err := g.latestDocs(ctx)
	if err != nil {
		return nil, err
	}
	out := &ClaimsExport{SchemaVersion: SchemaVersion}
	for _, d := range latest {
		text := d.SearchText
		dates := dedupe(dateClaimRe.FindAllString(text, -1))
		text = dateClaimRe.ReplaceAllString(text, " ")
		numbers := dedupe(numberClaimRe.FindAllString(text, -1))
		if len(dates) == 0 && len(numbers) == 0 {
			continue
		}
		out.Docs = append(out.Docs, DocClaims{
			Slug:    d.Slug,
			Version: d.Version,
			Numbers: numbers,
			Dates:   dates,
		})
	}
	return out, nil
}

func dedupe(in []string) []string {
	seen := map[string]bool{}
	var out []string
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

// UpdateFeed builds the change-polling feed over every visible version.
func (g *Generator) UpdateFeed(ctx context.Context) (*UpdateFeed, error) {
	all, err := g.visibleDocs(ctx)
	if err != nil {
		return nil, err
	}
	feed := &UpdateFeed{SchemaVersion: SchemaVersion, BuildID: BuildID(all)}
	for _, d := range all {
		feed.Docs = append(feed.Docs, FeedDoc{
			Slug:        d.Slug,
			Version:     d.Version,
			UpdatedAt:   d.UpdatedAt,
			ContentHash: d.ContentHash,
		})
	}
	sort.Slice(feed.Docs, func(i, j int) bool {
		if feed.Docs[i].Slug != feed.Docs[j].Slug {
			return feed.Docs[i].Slug < feed.Docs[j].Slug
		}
		return feed.Docs[i].Version < feed.Docs[j].Version
	})
	return feed, nil
}

// WriteAll generates every artifact plus its JSON Schema into dir.
func (g *Generator) WriteAll(ctx context.Context, dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create export dir: %w", err)
	}
	artifacts := []struct {
		name  string
		build func(context.Context) (any, error)
	}{
		{"doc-index", func(ctx context.Context) (any, error) { return g.DocIndex(ctx) }},
		{"search-index", func(ctx context.Context) (any, error) { return g.SearchIndex(ctx) }},
		{"chunks", func(ctx context.Context) (any, error) { return g.Chunks(ctx) }},
		{"embeddings-manifest", func(ctx context.Context) (any, error) { return g.EmbeddingsManifest(ctx) }},
		{"claims", func(ctx context.Context) (any, error) { return g.Claims(ctx) }},
		{"update-feed", func(ctx context.Context) (any, error) { return g.UpdateFeed(ctx) }},
	}
	for _, a := range artifacts {
		v, err := a.build(ctx)
		if err != nil {
			return fmt.Errorf("failed to build %s: %w", a.name, err)
		}
		if err := writeJSON(filepath.Join(dir, a.name+".json"), v); err != nil {
			return err
		}
		schema, err := SchemaFor(v)
		if err != nil {
			return fmt.Errorf("failed to derive %s schema: %w", a.name, err)
		}
		if err := os.WriteFile(filepath.Join(dir, a.name+".schema.json"), schema, 0o644); err != nil {
			return fmt.Errorf("failed to write %s schema: %w", a.name, err)
		}
	}
	return nil
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", path, err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
