package lifecycle

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/docforge/docforge/internal/docs"
	"github.com/docforge/docforge/internal/qa"
	"github.com/docforge/docforge/internal/repository"
	"github.com/docforge/docforge/internal/workspace"
)

// The whole suite runs against both storage bindings: the state machine is
// defined once, so its contract is tested once.
func forEachBackend(t *testing.T, fn func(t *testing.T, ws workspace.Workspace)) {
	t.Helper()
	t.Run("dir", func(t *testing.T) {
		ws, err := workspace.NewDir(t.TempDir())
		if err != nil {
			t.Fatalf("NewDir: %v", err)
		}
		fn(t, ws)
	})
	t.Run("sqlite", func(t *testing.T) {
		db, err := workspace.OpenSQLite(filepath.Join(t.TempDir(), "docs.db"))
		if err != nil {
			t.Fatalf("OpenSQLite: %v", err)
		}
		t.Cleanup(func() { _ = db.Close() })
		fn(t, db)
	})
}

var testNow = time.Date(2026, 3, 15, 10, 30, 0, 0, time.UTC)

func newEngine(ws workspace.Workspace) (*Engine, *repository.Repository) {
	repo := repository.New(ws, false)
	e := New(ws, repo, WithClock(func() time.Time { return testNow }), WithActor("ana"))
	return e, repo
}

func mustCreate(t *testing.T, e *Engine, p CreateParams) *docs.Document {
	t.Helper()
	d, err := e.Create(context.Background(), p)
	if err != nil {
		t.Fatalf("Create(%s@%s): %v", p.Slug, p.Version, err)
	}
	return d
}

func TestCreateDefaults(t *testing.T) {
	forEachBackend(t, func(t *testing.T, ws workspace.Workspace) {
		e, _ := newEngine(ws)
		d := mustCreate(t, e, CreateParams{Slug: "a", Title: "A", Summary: "s", Markdown: "## H\n"})
		if d.Stage != docs.StageDraft {
			t.Errorf("stage = %q, want draft", d.Stage)
		}
		if !d.Archived {
			t.Error("new docs must start unpublished")
		}
		if d.UpdatedAt != "2026-03-15" {
			t.Errorf("updatedAt = %q, want today", d.UpdatedAt)
		}
		if d.Version != "2026-03-15" {
			t.Errorf("version = %q, want updatedAt", d.Version)
		}
		if d.Visibility != docs.VisibilityPublic {
			t.Errorf("visibility = %q, want public", d.Visibility)
		}
		if len(d.Audit) != 1 || d.Audit[0].Action != "create" || d.Audit[0].Actor != "ana" {
			t.Errorf("audit = %+v", d.Audit)
		}
	})
}

func TestCreateRejectsDuplicates(t *testing.T) {
	forEachBackend(t, func(t *testing.T, ws workspace.Workspace) {
		e, _ := newEngine(ws)
		p := CreateParams{Slug: "a", Version: "v1", Title: "A", Summary: "s"}
		mustCreate(t, e, p)
		if _, err := e.Create(context.Background(), p); !errors.Is(err, ErrDuplicateVersion) {
			t.Errorf("err = %v, want ErrDuplicateVersion", err)
		}
	})
}

func TestCreateRejectsFilenameCollision(t *testing.T) {
	forEachBackend(t, func(t *testing.T, ws workspace.Workspace) {
		e, _ := newEngine(ws)
		// "a/b" and "a-b" sanitize to the same file name without being the
		// same logical document.
		mustCreate(t, e, CreateParams{Slug: "a/b", Version: "v1", Title: "A", Summary: "s"})
		_, err := e.Create(context.Background(), CreateParams{Slug: "a-b", Version: "v1", Title: "B", Summary: "s"})
		if !errors.Is(err, ErrFileExists) {
			t.Errorf("err = %v, want ErrFileExists", err)
		}
	})
}

func TestArchivedPublishedMutuallyExclusive(t *testing.T) {
	forEachBackend(t, func(t *testing.T, ws workspace.Workspace) {
		e, _ := newEngine(ws)
		yes, no := true, false
		_, err := e.Create(context.Background(), CreateParams{
			Slug: "a", Title: "A", Summary: "s", Archived: &yes, Published: &no,
		})
		if !errors.Is(err, ErrArchivedPublishedConflict) {
			t.Errorf("err = %v, want ErrArchivedPublishedConflict", err)
		}
		mustCreate(t, e, CreateParams{Slug: "b", Version: "v1", Title: "B", Summary: "s"})
		_, err = e.Clone(context.Background(), "b", "v2", CloneOptions{
			IncludeArchived: true, Archived: &yes, Published: &no,
		})
		if !errors.Is(err, ErrArchivedPublishedConflict) {
			t.Errorf("clone err = %v, want ErrArchivedPublishedConflict", err)
		}
	})
}

func TestClone(t *testing.T) {
	forEachBackend(t, func(t *testing.T, ws workspace.Workspace) {
		e, _ := newEngine(ws)
		ctx := context.Background()
		mustCreate(t, e, CreateParams{
			Slug: "a", Version: "v1", Title: "A", Summary: "s", Markdown: "## H\nbody\n",
			Stage: docs.StageOfficial, Owners: []string{"ana"}, Published: boolPtr(true),
		})

		d, err := e.Clone(ctx, "a", "v2", CloneOptions{})
		if err != nil {
			t.Fatalf("Clone: %v", err)
		}
		if d.Stage != docs.StageDraft {
			t.Errorf("clone stage = %q, want draft", d.Stage)
		}
		if !d.Archived {
			t.Error("clone must start unpublished")
		}
		if d.LastReviewedAt != "" {
			t.Errorf("clone carried review date %q", d.LastReviewedAt)
		}
		if d.Markdown != "## H\nbody\n" {
			t.Errorf("clone body = %q", d.Markdown)
		}
		if d.Title != "A" || len(d.Owners) != 1 {
			t.Error("clone should copy frontmatter")
		}
		last := d.Audit[len(d.Audit)-1]
		if last.Action != "clone" || last.Note != "from v1" {
			t.Errorf("clone audit = %+v", last)
		}

		if _, err := e.Clone(ctx, "a", "v2", CloneOptions{}); !errors.Is(err, ErrDuplicateVersion) {
			t.Errorf("duplicate clone err = %v", err)
		}
		if _, err := e.Clone(ctx, "nope", "v1", CloneOptions{}); !errors.Is(err, ErrNotFound) {
			t.Errorf("missing base err = %v", err)
		}
	})
}

func TestCloneFromArchivedOnly(t *testing.T) {
	forEachBackend(t, func(t *testing.T, ws workspace.Workspace) {
		e, _ := newEngine(ws)
		ctx := context.Background()
		mustCreate(t, e, CreateParams{Slug: "a", Version: "v1", Title: "A", Summary: "s"})

		// Every version is unpublished; the default clone has no base.
		if _, err := e.Clone(ctx, "a", "v2", CloneOptions{}); !errors.Is(err, ErrNotFound) {
			t.Errorf("err = %v, want ErrNotFound", err)
		}
		if _, err := e.Clone(ctx, "a", "v2", CloneOptions{IncludeArchived: true}); err != nil {
			t.Errorf("IncludeArchived clone: %v", err)
		}
	})
}

func TestPatch(t *testing.T) {
	forEachBackend(t, func(t *testing.T, ws workspace.Workspace) {
		e, _ := newEngine(ws)
		ctx := context.Background()
		mustCreate(t, e, CreateParams{
			Slug: "a", Version: "v1", Title: "A", Summary: "s", Markdown: "## H\n",
			Stage: docs.StageFinal, Published: boolPtr(true),
		})

		title := "A2"
		md := "## H\nnew body\n"
		d, err := e.Patch(ctx, "a", "v1", PatchParams{Title: &title, Markdown: &md})
		if err != nil {
			t.Fatalf("Patch: %v", err)
		}
		if d.Title != "A2" || d.Markdown != md {
			t.Errorf("patch not applied: %q %q", d.Title, d.Markdown)
		}
		if d.Stage != docs.StageFinal || d.Archived {
			t.Error("patch must not reset stage or archived")
		}
		if d.Summary != "s" {
			t.Error("untouched fields must survive")
		}
		if len(d.Audit) != 2 || d.Audit[1].Action != "patch" {
			t.Errorf("audit = %+v", d.Audit)
		}

		if _, err := e.Patch(ctx, "a", "v9", PatchParams{Title: &title}); !errors.Is(err, ErrNotFound) {
			t.Errorf("missing version err = %v", err)
		}
	})
}

func TestSetStage(t *testing.T) {
	forEachBackend(t, func(t *testing.T, ws workspace.Workspace) {
		e, _ := newEngine(ws)
		ctx := context.Background()
		mustCreate(t, e, CreateParams{Slug: "a", Version: "v1", Title: "A", Summary: "s"})

		d, err := e.SetStage(ctx, "a", "v1", docs.StageOfficial, "", nil)
		if err != nil {
			t.Fatalf("SetStage: %v", err)
		}
		if d.LastReviewedAt != "2026-03-15" {
			t.Errorf("lastReviewedAt = %q, want today from the injected clock", d.LastReviewedAt)
		}

		d, err = e.SetStage(ctx, "a", "v1", docs.StageFinal, "", nil)
		if err != nil {
			t.Fatalf("SetStage demote: %v", err)
		}
		if d.LastReviewedAt != "" {
			t.Errorf("demotion left a stale review date %q", d.LastReviewedAt)
		}

		d, err = e.SetStage(ctx, "a", "v1", docs.StageOfficial, "2026-02-02", []docs.Approval{{Name: "li", Date: "2026-02-02"}})
		if err != nil {
			t.Fatalf("SetStage explicit: %v", err)
		}
		if d.LastReviewedAt != "2026-02-02" {
			t.Errorf("explicit reviewedAt ignored, got %q", d.LastReviewedAt)
		}
		if len(d.Approvals) != 1 || d.Approvals[0].Name != "li" {
			t.Errorf("approvals = %+v", d.Approvals)
		}
	})
}

func TestPublishToggle(t *testing.T) {
	forEachBackend(t, func(t *testing.T, ws workspace.Workspace) {
		e, repo := newEngine(ws)
		ctx := context.Background()
		mustCreate(t, e, CreateParams{Slug: "a", Version: "v1", Title: "A", Summary: "s", Stage: docs.StageFinal})

		if d, err := repo.GetLatest(ctx, "a", repository.Options{}); err != nil || d != nil {
			t.Fatalf("unpublished doc visible: %v %v", d, err)
		}
		if _, err := e.Publish(ctx, "a", "v1"); err != nil {
			t.Fatalf("Publish: %v", err)
		}
		d, err := repo.GetLatest(ctx, "a", repository.Options{})
		if err != nil || d == nil {
			t.Fatalf("published doc not visible: %v", err)
		}
		if d.Stage != docs.StageFinal {
			t.Error("publish must not touch stage")
		}
		if _, err := e.Unpublish(ctx, "a", "v1"); err != nil {
			t.Fatalf("Unpublish: %v", err)
		}
		if d, err := repo.GetLatest(ctx, "a", repository.Options{}); err != nil || d != nil {
			t.Fatalf("unpublished doc still visible: %v %v", d, err)
		}
	})
}

func TestDelete(t *testing.T) {
	forEachBackend(t, func(t *testing.T, ws workspace.Workspace) {
		e, repo := newEngine(ws)
		ctx := context.Background()
		mustCreate(t, e, CreateParams{Slug: "a", Version: "v1", Title: "A", Summary: "s"})
		mustCreate(t, e, CreateParams{Slug: "a", Version: "v2", Title: "A", Summary: "s"})

		if err := e.Delete(ctx, "a", "v1"); err != nil {
			t.Fatalf("Delete: %v", err)
		}
		if err := e.Delete(ctx, "a", "v1"); !errors.Is(err, ErrNotFound) {
			t.Errorf("double delete err = %v", err)
		}

		n, err := e.DeleteAllVersions(ctx, "a")
		if err != nil {
			t.Fatalf("DeleteAllVersions: %v", err)
		}
		if n != 1 {
			t.Errorf("deleted %d, want 1", n)
		}
		if _, err := e.DeleteAllVersions(ctx, "a"); !errors.Is(err, ErrNotFound) {
			t.Errorf("empty slug delete err = %v", err)
		}
		if slugs, err := repo.ListSlugs(ctx); err != nil || len(slugs) != 0 {
			t.Errorf("corpus not empty after delete: %v %v", slugs, err)
		}
	})
}

func TestEndToEndGovernance(t *testing.T) {
	forEachBackend(t, func(t *testing.T, ws workspace.Workspace) {
		e, repo := newEngine(ws)
		ctx := context.Background()

		mustCreate(t, e, CreateParams{
			Slug: "a", Version: "2026-01-01", Title: "A", Summary: "s", Markdown: "## H\nbody\n",
		})
		if d, err := repo.GetLatest(ctx, "a", repository.Options{}); err != nil || d != nil {
			t.Fatalf("fresh draft should be invisible, got %v %v", d, err)
		}

		if _, err := e.Publish(ctx, "a", "2026-01-01"); err != nil {
			t.Fatalf("Publish: %v", err)
		}
		d, err := repo.GetLatest(ctx, "a", repository.Options{})
		if err != nil || d == nil {
			t.Fatalf("published doc missing: %v", err)
		}
		if d.Version != "2026-01-01" {
			t.Errorf("version = %q", d.Version)
		}

		// Promote without citations or approvals, then let QA call it out.
		if _, err := e.SetStage(ctx, "a", "2026-01-01", docs.StageOfficial, "", nil); err != nil {
			t.Fatalf("SetStage: %v", err)
		}
		res, err := qa.New(repo, qa.Options{}).Run(ctx)
		if err != nil {
			t.Fatalf("qa.Run: %v", err)
		}
		codes := map[qa.Code]bool{}
		for _, f := range res.Findings {
			codes[f.Code] = true
		}
		if !codes[qa.CodeOfficialMissingCitations] {
			t.Error("expected official_missing_citations")
		}
		if !codes[qa.CodeOfficialMissingApprovals] {
			t.Error("expected official_missing_approvals")
		}
		if res.OK {
			t.Error("result should not be ok")
		}
	})
}

func TestFileName(t *testing.T) {
	if got := FileName("getting started", "2026/01"); got != "getting-started__2026-01.md" {
		t.Errorf("FileName = %q", got)
	}
	if got := FileName("a_b.c", "v1"); got != "a_b.c__v1.md" {
		t.Errorf("safe characters must pass through, got %q", got)
	}
}

func boolPtr(b bool) *bool { return &b }
