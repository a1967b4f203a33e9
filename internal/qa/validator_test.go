package qa

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/docforge/docforge/internal/docs"
	"github.com/docforge/docforge/internal/repository"
	"github.com/docforge/docforge/internal/workspace"
)

type testDoc struct {
	meta     docs.Meta
	markdown string
}

func officialMeta(slug, version string) docs.Meta {
	return docs.Meta{
		Slug:           slug,
		Version:        version,
		Title:          "T " + slug,
		Stage:          docs.StageOfficial,
		Summary:        "about " + slug,
		UpdatedAt:      "2026-01-01",
		LastReviewedAt: "2026-01-02",
		Owners:         []string{"ana"},
		Topics:         []string{"general"},
		Citations:      []docs.Citation{{Label: "src"}},
		Approvals:      []docs.Approval{{Name: "li", Date: "2026-01-02"}},
		Visibility:     docs.VisibilityPublic,
	}
}

func draftMeta(slug, version string) docs.Meta {
	return docs.Meta{
		Slug:       slug,
		Version:    version,
		Title:      "T " + slug,
		Stage:      docs.StageDraft,
		Summary:    "about " + slug,
		UpdatedAt:  "2026-01-01",
		Visibility: docs.VisibilityPublic,
	}
}

func newValidator(t *testing.T, o Options, ds ...testDoc) *Validator {
	t.Helper()
	ws, err := workspace.NewDir(t.TempDir())
	if err != nil {
		t.Fatalf("NewDir: %v", err)
	}
	for i, d := range ds {
		// Unique names so duplicate (slug, version) pairs can coexist on disk.
		name := d.meta.Slug + "__" + d.meta.Version + "_" + string(rune('a'+i)) + ".md"
		if err := ws.Write(context.Background(), name, docs.Format(&d.meta, d.markdown)); err != nil {
			t.Fatalf("Write: %v", err)
		}
	}
	return New(repository.New(ws, false), o)
}

func codesOf(t *testing.T, v *Validator) map[Code]int {
	t.Helper()
	res, err := v.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	out := map[Code]int{}
	for _, f := range res.Findings {
		out[f.Code]++
	}
	return out
}

func TestCleanCorpusPasses(t *testing.T) {
	v := newValidator(t, Options{}, testDoc{officialMeta("a", "v1"), "## Overview\nAll good.\n"})
	res, err := v.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !res.OK || len(res.Findings) != 0 {
		t.Fatalf("expected clean corpus, got %+v", res.Findings)
	}
}

func TestDuplicateDocVersion(t *testing.T) {
	v := newValidator(t, Options{},
		testDoc{draftMeta("a", "v1"), "## H\n"},
		testDoc{draftMeta("a", "v1"), "## H\n"},
	)
	if codesOf(t, v)[CodeDuplicateDocVersion] != 1 {
		t.Error("expected one duplicate_doc_version finding")
	}
}

func TestPerDocumentFieldChecks(t *testing.T) {
	bad := draftMeta("a", "v1")
	bad.UpdatedAt = "January 1st"
	bad.LastReviewedAt = "sometime"
	v := newValidator(t, Options{}, testDoc{bad, "no headings here\n"})
	codes := codesOf(t, v)
	for _, c := range []Code{CodeInvalidUpdatedAt, CodeInvalidLastReviewedAt, CodeMissingH2} {
		if codes[c] != 1 {
			t.Errorf("expected %s finding, got %v", c, codes)
		}
	}
}

func TestOfficialCompleteness(t *testing.T) {
	strip := []struct {
		name string
		mod  func(*docs.Meta)
		want Code
	}{
		{"owners", func(m *docs.Meta) { m.Owners = nil }, CodeOfficialMissingOwners},
		{"lastReviewedAt", func(m *docs.Meta) { m.LastReviewedAt = "" }, CodeOfficialMissingLastReviewed},
		{"topics", func(m *docs.Meta) { m.Topics = nil }, CodeOfficialMissingTopics},
		{"citations", func(m *docs.Meta) { m.Citations = nil }, CodeOfficialMissingCitations},
		{"approvals", func(m *docs.Meta) { m.Approvals = nil }, CodeOfficialMissingApprovals},
	}
	for _, tt := range strip {
		t.Run(tt.name, func(t *testing.T) {
			m := officialMeta("a", "v1")
			tt.mod(&m)
			codes := codesOf(t, newValidator(t, Options{}, testDoc{m, "## H\nplain text\n"}))
			if codes[tt.want] != 1 {
				t.Errorf("expected exactly one %s, got %v", tt.want, codes)
			}
			// Only the stripped field should fire in this category.
			for _, other := range strip {
				if other.want != tt.want && codes[other.want] != 0 {
					t.Errorf("unexpected %s: %v", other.want, codes)
				}
			}
		})
	}
}

func TestCanonicalChecks(t *testing.T) {
	t.Run("conflict", func(t *testing.T) {
		a := officialMeta("a", "v1")
		a.CanonicalFor = []string{"pricing"}
		b := officialMeta("b", "v1")
		b.CanonicalFor = []string{"pricing"}
		codes := codesOf(t, newValidator(t, Options{ClaimsPolicy: ClaimsOff},
			testDoc{a, "## H\npricing\n"}, testDoc{b, "## H\npricing\n"}))
		if codes[CodeCanonicalConflict] != 1 {
			t.Errorf("expected canonical_conflict, got %v", codes)
		}
	})
	t.Run("non-official claim", func(t *testing.T) {
		d := draftMeta("a", "v1")
		d.CanonicalFor = []string{"pricing"}
		codes := codesOf(t, newValidator(t, Options{}, testDoc{d, "## H\n"}))
		if codes[CodeCanonicalNotOfficial] != 1 {
			t.Errorf("expected canonical_not_official, got %v", codes)
		}
	})
}

func TestFactContradiction(t *testing.T) {
	canon := officialMeta("canon", "v1")
	canon.CanonicalFor = []string{"limits"}
	canon.Topics = []string{"limits"}
	canon.Facts = map[string]string{"max-users": "500"}

	other := officialMeta("other", "v1")
	other.Topics = []string{"limits"}
	other.Facts = map[string]string{"max-users": "100", "unrelated": "x"}

	// Drafts may disagree with the canonical doc while being written.
	wip := draftMeta("wip", "v1")
	wip.Topics = []string{"limits"}
	wip.Facts = map[string]string{"max-users": "9"}

	codes := codesOf(t, newValidator(t, Options{ClaimsPolicy: ClaimsOff, Glossary: []string{"zzz"}},
		testDoc{canon, "## H\nLimits overview.\n"}, testDoc{other, "## H\nMore limits.\n"},
		testDoc{wip, "## H\nDraft limits.\n"}))
	if codes[CodeFactContradiction] != 1 {
		t.Errorf("expected one fact_contradiction, got %v", codes)
	}
}

func TestRelatedSlugs(t *testing.T) {
	d := draftMeta("a", "v1")
	d.RelatedSlugs = []string{"exists", "ghost"}
	other := draftMeta("exists", "v1")
	codes := codesOf(t, newValidator(t, Options{}, testDoc{d, "## H\n"}, testDoc{other, "## H\n"}))
	if codes[CodeBrokenRelatedSlug] != 1 {
		t.Errorf("expected one broken_related_slug, got %v", codes)
	}
}

func TestInternalLinks(t *testing.T) {
	target := draftMeta("target", "v1")
	src := draftMeta("src", "v1")
	md := "## H\n" +
		"[ok](/docs/target) [ok](/docs/target/v/v1) [ok](/raw/target) [ok](/raw/v/target/v1)\n" +
		"[bad slug](/docs/ghost) [bad version](/docs/target/v/v9)\n"
	codes := codesOf(t, newValidator(t, Options{}, testDoc{src, md}, testDoc{target, "## H\n"}))
	if codes[CodeBrokenInternalLink] != 2 {
		t.Errorf("expected two broken_internal_link findings, got %v", codes)
	}
}

func TestMissingAsset(t *testing.T) {
	assets := t.TempDir()
	if err := os.MkdirAll(filepath.Join(assets, "img"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(assets, "img", "ok.png"), []byte("png"), 0o644); err != nil {
		t.Fatal(err)
	}
	d := draftMeta("a", "v1")
	md := "## H\n![ok](/img/ok.png)\n![gone](/img/gone.png)\n"
	codes := codesOf(t, newValidator(t, Options{AssetsDir: assets}, testDoc{d, md}))
	if codes[CodeMissingAsset] != 1 {
		t.Errorf("expected one missing_asset, got %v", codes)
	}
}

func TestGlossaryCase(t *testing.T) {
	d := officialMeta("a", "v1")
	bad := officialMeta("b", "v1")
	codes := codesOf(t, newValidator(t, Options{Glossary: []string{"OAuth"}},
		testDoc{d, "## H\nUse OAuth here. oauth also mentioned.\n"},
		testDoc{bad, "## H\nonly oauth, lowercased.\n"}))
	if codes[CodeGlossaryCase] != 1 {
		t.Errorf("expected one glossary_case (for the doc never using the canonical casing), got %v", codes)
	}
}

func TestClaimsPolicy(t *testing.T) {
	d := officialMeta("a", "v1")
	d.Citations = nil
	d.Approvals = []docs.Approval{{Name: "li", Date: "2026-01-02"}}
	md := "## H\nWe support 500 users.\n"

	t.Run("official default", func(t *testing.T) {
		codes := codesOf(t, newValidator(t, Options{}, testDoc{d, md}))
		if codes[CodeClaimsMissingCitations] != 1 {
			t.Errorf("expected claims_missing_citations, got %v", codes)
		}
	})
	t.Run("off", func(t *testing.T) {
		codes := codesOf(t, newValidator(t, Options{ClaimsPolicy: ClaimsOff}, testDoc{d, md}))
		if codes[CodeClaimsMissingCitations] != 0 {
			t.Errorf("policy off still fired: %v", codes)
		}
	})
	t.Run("all covers drafts", func(t *testing.T) {
		draft := draftMeta("b", "v1")
		codes := codesOf(t, newValidator(t, Options{ClaimsPolicy: ClaimsAll}, testDoc{draft, md}))
		if codes[CodeClaimsMissingCitations] != 1 {
			t.Errorf("policy all should cover drafts, got %v", codes)
		}
	})
}
