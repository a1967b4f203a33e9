// Package lifecycle implements the document workflow state machine:
// draft → final → official, with publish/unpublish as an orthogonal axis.
//
// The engine is defined once over a workspace.Workspace, so the same
// transition rules run against the directory backend and the SQLite backend.
// Every mutation validates its preconditions before any write, appends one
// audit entry, rewrites the whole file, invalidates the repository cache and,
// when a git service is attached, commits the change.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/docforge/docforge/internal/docs"
	"github.com/docforge/docforge/internal/gitsvc"
	"github.com/docforge/docforge/internal/repository"
	"github.com/docforge/docforge/internal/workspace"
)

var (
	// ErrArchivedPublishedConflict is returned when both the archived and
	// published convenience aliases are passed together.
	ErrArchivedPublishedConflict = errors.New("archived and published are mutually exclusive")
	// ErrDuplicateVersion is returned when the target (slug, version) already exists.
	ErrDuplicateVersion = errors.New("document version already exists")
	// ErrFileExists is returned when the target filename is already taken,
	// even by a different slug.
	ErrFileExists = errors.New("target file already exists")
	// ErrNotFound is returned when the addressed document does not exist.
	ErrNotFound = errors.New("document not found")
)

const dateLayout = "2006-01-02"

// Engine mutates document files through a workspace.
type Engine struct {
	ws    workspace.Workspace
	repo  *repository.Repository
	git   *gitsvc.Service
	clock func() time.Time
	actor string
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock injects the time source used for audit entries, default versions
// and review-date stamping.
func WithClock(clock func() time.Time) Option {
	return func(e *Engine) { e.clock = clock }
}

// WithActor sets the ambient actor identity recorded in audit entries and
// git commits.
func WithActor(actor string) Option {
	return func(e *Engine) { e.actor = actor }
}

// WithGit attaches a git service; each mutation is then committed.
func WithGit(git *gitsvc.Service) Option {
	return func(e *Engine) { e.git = git }
}

// New returns an engine over the workspace. The repository is invalidated
// after every mutation so readers see fresh state.
func New(ws workspace.Workspace, repo *repository.Repository, opts ...Option) *Engine {
	e := &Engine{ws: ws, repo: repo, clock: time.Now}
	for _, o := range opts {
		o(e)
	}
	return e
}

// FileName derives the deterministic on-disk name for a document version.
// The scheme is load-bearing for collision detection.
func FileName(slug, version string) string {
	return sanitize(slug) + "__" + sanitize(version) + ".md"
}

func sanitize(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9',
			r == '.', r == '_', r == '-':
			b.WriteRune(r)
		default:
			b.WriteRune('-')
		}
	}
	return b.String()
}

// resolveArchived folds the archived/published aliases into one flag.
// Passing both is a hard error, never a silent override.
func resolveArchived(def bool, archived, published *bool) (bool, error) {
	if archived != nil && published != nil {
		return false, ErrArchivedPublishedConflict
	}
	if archived != nil {
		return *archived, nil
	}
	if published != nil {
		return !*published, nil
	}
	return def, nil
}

func (e *Engine) today() string {
	return e.clock().Format(dateLayout)
}

func (e *Engine) appendAudit(meta *docs.Meta, action, note string) {
	meta.Audit = append(meta.Audit, docs.AuditEntry{
		At:     e.clock().UTC().Format(time.RFC3339),
		Action: action,
		Actor:  e.actor,
		Note:   note,
	})
}

// write serializes the document, persists it, invalidates the cache and
// commits when git is attached.
func (e *Engine) write(ctx context.Context, meta *docs.Meta, markdown, action string) (*docs.Document, error) {
	name := FileName(meta.Slug, meta.Version)
	if err := e.ws.Write(ctx, name, docs.Format(meta, markdown)); err != nil {
		return nil, err
	}
	e.repo.Invalidate()
	e.commit(ctx, fmt.Sprintf("%s %s@%s", action, meta.Slug, meta.Version))
	return e.repo.GetVersion(ctx, meta.Slug, meta.Version, repository.Options{
		IncludeArchived: true, IncludeHidden: true, Raw: true,
	})
}

func (e *Engine) commit(ctx context.Context, msg string) {
	if e.git == nil {
		return
	}
	if err := e.git.CommitAll(ctx, e.actor, msg); err != nil {
		slog.ErrorContext(ctx, "Failed to commit content change", "msg", msg, "err", err)
	}
}

// load fetches the raw stored document, ignoring all visibility filters.
func (e *Engine) load(ctx context.Context, slug, version string) (*docs.Document, error) {
	d, err := e.repo.GetVersion(ctx, slug, version, repository.Options{
		IncludeArchived: true, IncludeHidden: true, Raw: true,
	})
	if err != nil {
		return nil, err
	}
	if d == nil {
		return nil, fmt.Errorf("%s@%s: %w", slug, version, ErrNotFound)
	}
	return d, nil
}

// CreateParams describes a new document version. Archived and Published are
// mutually exclusive aliases; when neither is set new documents start
// unpublished (archived).
type CreateParams struct {
	Slug         string
	Version      string
	Title        string
	Summary      string
	Markdown     string
	Stage        docs.Stage
	Visibility   docs.Visibility
	UpdatedAt    string
	Collection   string
	Order        *int
	Owners       []string
	Topics       []string
	RelatedSlugs []string
	CanonicalFor []string
	Citations    []docs.Citation
	Approvals    []docs.Approval
	Facts        map[string]string
	Archived     *bool
	Published    *bool
}

// Create writes a new document file. Defaults: stage draft, archived true,
// visibility public, updatedAt today, version = updatedAt.
func (e *Engine) Create(ctx context.Context, p CreateParams) (*docs.Document, error) {
	if strings.TrimSpace(p.Slug) == "" {
		return nil, errors.New("slug is required")
	}
	if p.Title == "" {
		return nil, errors.New("title is required")
	}
	if p.Summary == "" {
		return nil, errors.New("summary is required")
	}
	archived, err := resolveArchived(true, p.Archived, p.Published)
	if err != nil {
		return nil, err
	}
	stage := p.Stage
	if stage == "" {
		stage = docs.StageDraft
	}
	if !docs.ValidStage(stage) {
		return nil, fmt.Errorf("invalid stage %q", stage)
	}
	visibility := p.Visibility
	if visibility == "" {
		visibility = docs.VisibilityPublic
	}
	if !docs.ValidVisibility(visibility) {
		return nil, fmt.Errorf("invalid visibility %q", visibility)
	}
	updatedAt := p.UpdatedAt
	if updatedAt == "" {
		updatedAt = e.today()
	}
	version := p.Version
	if version == "" {
		version = updatedAt
	}

	if existing, err := e.repo.GetVersion(ctx, p.Slug, version, repository.Options{
		IncludeArchived: true, IncludeHidden: true, Raw: true,
	}); err != nil {
		return nil, err
	} else if existing != nil {
		return nil, fmt.Errorf("%s@%s: %w", p.Slug, version, ErrDuplicateVersion)
	}
	// Filename collision is checked independently of logical duplication: a
	// different slug can sanitize to the same file name.
	name := FileName(p.Slug, version)
	if exists, err := e.ws.Exists(ctx, name); err != nil {
		return nil, err
	} else if exists {
		return nil, fmt.Errorf("%s: %w", name, ErrFileExists)
	}

	meta := &docs.Meta{
		Slug:         strings.TrimSpace(p.Slug),
		Version:      version,
		Title:        p.Title,
		Stage:        stage,
		Summary:      p.Summary,
		UpdatedAt:    updatedAt,
		Owners:       p.Owners,
		Topics:       p.Topics,
		Collection:   p.Collection,
		Order:        p.Order,
		Archived:     archived,
		Visibility:   visibility,
		RelatedSlugs: p.RelatedSlugs,
		CanonicalFor: p.CanonicalFor,
		Citations:    p.Citations,
		Approvals:    p.Approvals,
		Facts:        p.Facts,
	}
	if stage == docs.StageOfficial {
		meta.LastReviewedAt = e.today()
	}
	e.appendAudit(meta, "create", "")
	return e.write(ctx, meta, p.Markdown, "create")
}

// CloneOptions controls Clone. Archived and Published are mutually exclusive
// overrides; by default a clone is a fresh unpublished draft.
type CloneOptions struct {
	// IncludeArchived clones from the latest version even when every version
	// is unpublished.
	IncludeArchived bool
	Archived        *bool
	Published       *bool
}

// Clone copies the latest version of a slug into a new version, forcing the
// stage back to draft and the clone to unpublished unless overridden.
func (e *Engine) Clone(ctx context.Context, slug, newVersion string, o CloneOptions) (*docs.Document, error) {
	if newVersion == "" {
		return nil, errors.New("new version is required")
	}
	archived, err := resolveArchived(true, o.Archived, o.Published)
	if err != nil {
		return nil, err
	}
	base, err := e.repo.GetLatest(ctx, slug, repository.Options{
		IncludeArchived: o.IncludeArchived, IncludeHidden: true, Raw: true,
	})
	if err != nil {
		return nil, err
	}
	if base == nil {
		return nil, fmt.Errorf("%s: %w", slug, ErrNotFound)
	}
	if existing, err := e.repo.GetVersion(ctx, slug, newVersion, repository.Options{
		IncludeArchived: true, IncludeHidden: true, Raw: true,
	}); err != nil {
		return nil, err
	} else if existing != nil {
		return nil, fmt.Errorf("%s@%s: %w", slug, newVersion, ErrDuplicateVersion)
	}
	name := FileName(slug, newVersion)
	if exists, err := e.ws.Exists(ctx, name); err != nil {
		return nil, err
	} else if exists {
		return nil, fmt.Errorf("%s: %w", name, ErrFileExists)
	}

	meta := base.Meta
	meta.Version = newVersion
	meta.UpdatedAt = e.today()
	meta.Stage = docs.StageDraft
	meta.LastReviewedAt = "" // a draft carries no review date
	meta.Archived = archived
	meta.Audit = append([]docs.AuditEntry{}, base.Audit...)
	e.appendAudit(&meta, "clone", "from "+base.Version)
	return e.write(ctx, &meta, base.Markdown, "clone")
}

// PatchParams carries partial frontmatter updates; nil fields are untouched.
// Patching never resets stage or archived.
type PatchParams struct {
	Title        *string
	Summary      *string
	UpdatedAt    *string
	Collection   *string
	Order        *int
	Visibility   *docs.Visibility
	Owners       *[]string
	Topics       *[]string
	RelatedSlugs *[]string
	CanonicalFor *[]string
	Citations    *[]docs.Citation
	Approvals    *[]docs.Approval
	Facts        *map[string]string
	Markdown     *string
}

// Patch merges a partial frontmatter update and/or replaces the markdown body.
func (e *Engine) Patch(ctx context.Context, slug, version string, p PatchParams) (*docs.Document, error) {
	d, err := e.load(ctx, slug, version)
	if err != nil {
		return nil, err
	}
	meta := d.Meta
	if p.Title != nil {
		meta.Title = *p.Title
	}
	if p.Summary != nil {
		meta.Summary = *p.Summary
	}
	if p.UpdatedAt != nil {
		meta.UpdatedAt = *p.UpdatedAt
	}
	if p.Collection != nil {
		meta.Collection = *p.Collection
	}
	if p.Order != nil {
		meta.Order = p.Order
	}
	if p.Visibility != nil {
		if !docs.ValidVisibility(*p.Visibility) {
			return nil, fmt.Errorf("invalid visibility %q", *p.Visibility)
		}
		meta.Visibility = *p.Visibility
	}
	if p.Owners != nil {
		meta.Owners = *p.Owners
	}
	if p.Topics != nil {
		meta.Topics = *p.Topics
	}
	if p.RelatedSlugs != nil {
		meta.RelatedSlugs = *p.RelatedSlugs
	}
	if p.CanonicalFor != nil {
		meta.CanonicalFor = *p.CanonicalFor
	}
	if p.Citations != nil {
		meta.Citations = *p.Citations
	}
	if p.Approvals != nil {
		meta.Approvals = *p.Approvals
	}
	if p.Facts != nil {
		meta.Facts = *p.Facts
	}
	markdown := d.Markdown
	if p.Markdown != nil {
		markdown = *p.Markdown
	}
	e.appendAudit(&meta, "patch", "")
	return e.write(ctx, &meta, markdown, "patch")
}

// SetStage transitions a document version. Promoting to official stamps
// lastReviewedAt (explicit reviewedAt or today) and appends any approvals;
// leaving official clears lastReviewedAt so a demoted document never carries
// a stale review date.
func (e *Engine) SetStage(ctx context.Context, slug, version string, stage docs.Stage, reviewedAt string, approvals []docs.Approval) (*docs.Document, error) {
	if !docs.ValidStage(stage) {
		return nil, fmt.Errorf("invalid stage %q", stage)
	}
	d, err := e.load(ctx, slug, version)
	if err != nil {
		return nil, err
	}
	meta := d.Meta
	meta.Stage = stage
	if stage == docs.StageOfficial {
		if reviewedAt == "" {
			reviewedAt = e.today()
		}
		meta.LastReviewedAt = reviewedAt
		meta.Approvals = append(meta.Approvals, approvals...)
	} else {
		meta.LastReviewedAt = ""
	}
	e.appendAudit(&meta, "set-stage", string(stage))
	return e.write(ctx, &meta, d.Markdown, "set-stage")
}

// Publish makes a version visible in default listings.
func (e *Engine) Publish(ctx context.Context, slug, version string) (*docs.Document, error) {
	return e.setArchived(ctx, slug, version, false, "publish")
}

// Unpublish hides a version from default listings without touching its stage.
func (e *Engine) Unpublish(ctx context.Context, slug, version string) (*docs.Document, error) {
	return e.setArchived(ctx, slug, version, true, "unpublish")
}

func (e *Engine) setArchived(ctx context.Context, slug, version string, archived bool, action string) (*docs.Document, error) {
	d, err := e.load(ctx, slug, version)
	if err != nil {
		return nil, err
	}
	meta := d.Meta
	meta.Archived = archived
	e.appendAudit(&meta, action, "")
	return e.write(ctx, &meta, d.Markdown, action)
}

// Delete removes one version's file.
func (e *Engine) Delete(ctx context.Context, slug, version string) error {
	d, err := e.load(ctx, slug, version)
	if err != nil {
		return err
	}
	if err := e.ws.Delete(ctx, d.Path); err != nil {
		return err
	}
	e.repo.Invalidate()
	e.commit(ctx, fmt.Sprintf("delete %s@%s", slug, version))
	return nil
}

// DeleteAllVersions removes every file of a slug and returns how many were
// deleted. Deleting a slug with no versions is an error.
func (e *Engine) DeleteAllVersions(ctx context.Context, slug string) (int, error) {
	vs, err := e.repo.ListVersions(ctx, slug, repository.Options{
		IncludeArchived: true, IncludeHidden: true, Raw: true,
	})
	if err != nil {
		return 0, err
	}
	if len(vs) == 0 {
		return 0, fmt.Errorf("%s: %w", slug, ErrNotFound)
	}
	for _, d := range vs {
		if err := e.ws.Delete(ctx, d.Path); err != nil {
			return 0, err
		}
	}
	e.repo.Invalidate()
	e.commit(ctx, fmt.Sprintf("delete %s (all versions)", slug))
	return len(vs), nil
}
