// Package repository loads the document corpus from a workspace into an
// in-memory record set and answers slug/version/collection queries.
//
// The repository is a read-through cache: the first query parses every entry,
// later queries reuse the parsed set until Invalidate is called. Every
// lifecycle mutation invalidates, so readers within the process always see
// fresh state. Invalid frontmatter anywhere in the corpus fails the whole
// load; a missing document on lookup returns nil, not an error.
package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/docforge/docforge/internal/docs"
	"github.com/docforge/docforge/internal/workspace"
)

// Repository caches parsed documents and applies visibility filtering.
type Repository struct {
	ws           workspace.Workspace
	publicExport bool

	mu     sync.RWMutex
	loaded bool
	all    []*docs.Document
	bySlug map[string][]*docs.Document
}

// New returns a repository over the workspace. When publicExport is set the
// default query paths only surface official, public documents.
func New(ws workspace.Workspace, publicExport bool) *Repository {
	return &Repository{ws: ws, publicExport: publicExport}
}

// PublicExport reports whether the repository runs in public-export mode.
func (r *Repository) PublicExport() bool {
	return r.publicExport
}

// Invalidate drops the cached corpus; the next query reloads from storage.
func (r *Repository) Invalidate() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.loaded = false
	r.all = nil
	r.bySlug = nil
}

// Load forces a reload of the corpus, failing fast on the first file with
// invalid frontmatter.
func (r *Repository) Load(ctx context.Context) error {
	r.Invalidate()
	return r.ensure(ctx)
}

func (r *Repository) ensure(ctx context.Context) error {
	r.mu.RLock()
	loaded := r.loaded
	r.mu.RUnlock()
	if loaded {
		return nil
	}

	names, err := r.ws.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to scan documents: %w", err)
	}
	sort.Strings(names)

	all := make([]*docs.Document, 0, len(names))
	bySlug := make(map[string][]*docs.Document)
	for _, name := range names {
		data, err := r.ws.Read(ctx, name)
		if err != nil {
			return fmt.Errorf("failed to read document: %w", err)
		}
		doc, err := docs.Parse(name, data)
		if err != nil {
			return err
		}
		all = append(all, doc)
		bySlug[doc.Slug] = append(bySlug[doc.Slug], doc)
	}
	// Newest first: updatedAt descending, then version descending. ISO date
	// strings order correctly under plain string comparison.
	for _, vs := range bySlug {
		sort.Slice(vs, func(i, j int) bool {
			if vs[i].UpdatedAt != vs[j].UpdatedAt {
				return vs[i].UpdatedAt > vs[j].UpdatedAt
			}
			return vs[i].Version > vs[j].Version
		})
	}

	r.mu.Lock()
	r.all = all
	r.bySlug = bySlug
	r.loaded = true
	r.mu.Unlock()
	return nil
}

// Options controls filtering and redaction on query paths.
type Options struct {
	// IncludeArchived also returns unpublished versions.
	IncludeArchived bool
	// IncludeHidden bypasses public-export filtering. Reserved for internal
	// tooling (QA, admin); never set on the public-facing path.
	IncludeHidden bool
	// Raw skips audience redaction of the markdown body.
	Raw bool
	// Audience selects the redaction level. Empty means public in
	// public-export mode and private otherwise. In public-export mode the
	// audience is capped at public unless IncludeHidden is set, so a caller
	// on the public path cannot request internal or private content.
	Audience docs.Audience
}

func (r *Repository) effectiveAudience(o Options) docs.Audience {
	if r.publicExport && !o.IncludeHidden {
		return docs.AudiencePublic
	}
	if o.Audience != "" {
		return o.Audience
	}
	return docs.AudiencePrivate
}

func (r *Repository) visible(d *docs.Document, o Options) bool {
	if d.Archived && !o.IncludeArchived {
		return false
	}
	if r.publicExport && !o.IncludeHidden {
		if d.Stage != docs.StageOfficial || d.Visibility != docs.VisibilityPublic {
			return false
		}
	}
	return true
}

func (r *Repository) project(d *docs.Document, o Options) *docs.Document {
	if d == nil {
		return d
	}
	// Raw, like a requested audience, is only honored off the public path.
	if o.Raw && (!r.publicExport || o.IncludeHidden) {
		return d
	}
	return d.Redacted(r.effectiveAudience(o))
}

// All returns every parsed document, unfiltered and unredacted. Used by the
// QA validator and the lifecycle engine.
func (r *Repository) All(ctx context.Context) ([]*docs.Document, error) {
	if err := r.ensure(ctx); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*docs.Document, len(r.all))
	copy(out, r.all)
	return out, nil
}

// ListSlugs returns all distinct slugs, lexicographically sorted.
func (r *Repository) ListSlugs(ctx context.Context) ([]string, error) {
	if err := r.ensure(ctx); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	slugs := make([]string, 0, len(r.bySlug))
	for s := range r.bySlug {
		slugs = append(slugs, s)
	}
	sort.Strings(slugs)
	return slugs, nil
}

// ListVersions returns a slug's versions, newest first.
func (r *Repository) ListVersions(ctx context.Context, slug string, o Options) ([]*docs.Document, error) {
	if err := r.ensure(ctx); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*docs.Document
	for _, d := range r.bySlug[slug] {
		if r.visible(d, o) {
			out = append(out, r.project(d, o))
		}
	}
	return out, nil
}

// GetVersion returns the exact (slug, version) document, or nil when absent.
func (r *Repository) GetVersion(ctx context.Context, slug, version string, o Options) (*docs.Document, error) {
	if err := r.ensure(ctx); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, d := range r.bySlug[slug] {
		if d.Version == version && r.visible(d, o) {
			return r.project(d, o), nil
		}
	}
	return nil, nil
}

// GetLatest returns the newest visible version of a slug, or nil when no
// version passes the filters.
func (r *Repository) GetLatest(ctx context.Context, slug string, o Options) (*docs.Document, error) {
	vs, err := r.ListVersions(ctx, slug, o)
	if err != nil {
		return nil, err
	}
	if len(vs) == 0 {
		return nil, nil
	}
	return vs[0], nil
}

// latestPerSlug returns the newest visible version of every slug.
func (r *Repository) latestPerSlug(ctx context.Context, o Options) ([]*docs.Document, error) {
	slugs, err := r.ListSlugs(ctx)
	if err != nil {
		return nil, err
	}
	var out []*docs.Document
	for _, s := range slugs {
		d, err := r.GetLatest(ctx, s, o)
		if err != nil {
			return nil, err
		}
		if d != nil {
			out = append(out, d)
		}
	}
	return out, nil
}
