package export

import (
	"context"
	"strings"
	"testing"

	"github.com/docforge/docforge/internal/docs"
	"github.com/docforge/docforge/internal/repository"
	"github.com/docforge/docforge/internal/workspace"
)

func corpus(t *testing.T) *repository.Repository {
	t.Helper()
	ws, err := workspace.NewDir(t.TempDir())
	if err != nil {
		t.Fatalf("NewDir: %v", err)
	}
	write := func(m docs.Meta, md string) {
		t.Helper()
		name := m.Slug + "__" + m.Version + ".md"
		if err := ws.Write(context.Background(), name, docs.Format(&m, md)); err != nil {
			t.Fatalf("Write: %v", err)
		}
	}
	write(docs.Meta{
		Slug: "guide", Version: "v1", Title: "Guide", Stage: docs.StageFinal,
		Summary: "the guide", UpdatedAt: "2026-01-01", Visibility: docs.VisibilityPublic,
	}, "## Setup\ninstall it\n## Usage\nrun it on 2026-01-05 with 3 workers\n")
	write(docs.Meta{
		Slug: "guide", Version: "v2", Title: "Guide", Stage: docs.StageFinal,
		Summary: "the guide", UpdatedAt: "2026-02-01", Visibility: docs.VisibilityPublic,
	}, "## Setup\ninstall 3 times before 2026-02-03\n")
	write(docs.Meta{
		Slug: "flat", Version: "v1", Title: "Flat", Stage: docs.StageDraft,
		Summary: "no sections", UpdatedAt: "2026-01-01", Visibility: docs.VisibilityPublic,
	}, "just text, no headings\n")
	return repository.New(ws, false)
}

func TestDocIndex(t *testing.T) {
	g := New(corpus(t))
	idx, err := g.DocIndex(context.Background())
	if err != nil {
		t.Fatalf("DocIndex: %v", err)
	}
	if idx.SchemaVersion != SchemaVersion {
		t.Errorf("schemaVersion = %d", idx.SchemaVersion)
	}
	if len(idx.Docs) != 2 {
		t.Fatalf("got %d docs, want 2", len(idx.Docs))
	}
	guide := idx.Docs[1]
	if guide.Slug != "guide" || guide.URL != "/docs/guide" || guide.RawURL != "/raw/guide" {
		t.Errorf("guide entry = %+v", guide)
	}
	if len(guide.Versions) != 2 || guide.Versions[0].Version != "v2" {
		t.Errorf("versions = %+v, want v2 first", guide.Versions)
	}
	if guide.Versions[0].URL != "/docs/guide/v/v2" || guide.Versions[0].RawURL != "/raw/v/guide/v2" {
		t.Errorf("version urls = %+v", guide.Versions[0])
	}
}

func TestChunks(t *testing.T) {
	g := New(corpus(t))
	chunks, err := g.Chunks(context.Background())
	if err != nil {
		t.Fatalf("Chunks: %v", err)
	}
	// flat (whole-doc fallback) + guide v2 (one section).
	if len(chunks.Chunks) != 2 {
		t.Fatalf("got %d chunks: %+v", len(chunks.Chunks), chunks.Chunks)
	}
	var flat, setup *Chunk
	for i := range chunks.Chunks {
		switch chunks.Chunks[i].Slug {
		case "flat":
			flat = &chunks.Chunks[i]
		case "guide":
			setup = &chunks.Chunks[i]
		}
	}
	if flat == nil || setup == nil {
		t.Fatalf("missing chunks: %+v", chunks.Chunks)
	}
	if flat.Heading != "" || !strings.Contains(flat.Text, "just text") {
		t.Errorf("whole-doc chunk = %+v", flat)
	}
	if setup.URL != "/docs/guide#setup" {
		t.Errorf("deep link = %q", setup.URL)
	}
	if setup.ID != ChunkID("guide", "v2", "setup") {
		t.Errorf("chunk id unstable: %q", setup.ID)
	}
	if len(setup.ID) != 16 {
		t.Errorf("chunk id length = %d", len(setup.ID))
	}
}

func TestEmbeddingsManifestOmitsText(t *testing.T) {
	g := New(corpus(t))
	chunks, err := g.Chunks(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	m, err := g.EmbeddingsManifest(context.Background())
	if err != nil {
		t.Fatalf("EmbeddingsManifest: %v", err)
	}
	if len(m.Entries) != len(chunks.Chunks) {
		t.Fatalf("entries = %d, chunks = %d", len(m.Entries), len(chunks.Chunks))
	}
	for i, e := range m.Entries {
		if e.ChunkID != chunks.Chunks[i].ID || e.Hash != chunks.Chunks[i].Hash {
			t.Errorf("entry %d mismatch: %+v vs %+v", i, e, chunks.Chunks[i])
		}
	}
}

func TestClaims(t *testing.T) {
	g := New(corpus(t))
	claims, err := g.Claims(context.Background())
	if err != nil {
		t.Fatalf("Claims: %v", err)
	}
	if len(claims.Docs) != 1 {
		t.Fatalf("docs = %+v, want only guide", claims.Docs)
	}
	c := claims.Docs[0]
	if c.Slug != "guide" || c.Version != "v2" {
		t.Errorf("claims doc = %+v", c)
	}
	if len(c.Dates) != 1 || c.Dates[0] != "2026-02-03" {
		t.Errorf("dates = %v", c.Dates)
	}
	if len(c.Numbers) != 1 || c.Numbers[0] != "3" {
		t.Errorf("numbers = %v (a date's digits must not double as numbers)", c.Numbers)
	}
}

func TestUpdateFeed(t *testing.T) {
	g := New(corpus(t))
	ctx := context.Background()
	feed, err := g.UpdateFeed(ctx)
	if err != nil {
		t.Fatalf("UpdateFeed: %v", err)
	}
	if len(feed.Docs) != 3 {
		t.Fatalf("feed docs = %d, want 3", len(feed.Docs))
	}
	if feed.BuildID == "" {
		t.Fatal("build id missing")
	}
	again, err := g.UpdateFeed(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if again.BuildID != feed.BuildID {
		t.Error("build id not deterministic")
	}
}

func TestBuildIDOrderIndependent(t *testing.T) {
	a := &docs.Document{Meta: docs.Meta{Slug: "a", Version: "v1"}, ContentHash: "h1"}
	b := &docs.Document{Meta: docs.Meta{Slug: "b", Version: "v1"}, ContentHash: "h2"}
	if BuildID([]*docs.Document{a, b}) != BuildID([]*docs.Document{b, a}) {
		t.Error("build id depends on input order")
	}
	b2 := &docs.Document{Meta: docs.Meta{Slug: "b", Version: "v1"}, ContentHash: "h3"}
	if BuildID([]*docs.Document{a, b}) == BuildID([]*docs.Document{a, b2}) {
		t.Error("content hash change did not change the build id")
	}
}
