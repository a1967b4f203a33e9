// Package qa runs corpus-wide consistency checks over the loaded document
// set. Checks are independent and all evaluated: the validator never stops at
// the first problem, it returns the full list so one run surfaces everything.
package qa

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/docforge/docforge/internal/docs"
	"github.com/docforge/docforge/internal/repository"
)

// Code identifies one class of QA failure.
type Code string

// QA failure codes, stable across releases; external tooling keys on them.
const (
	CodeDuplicateDocVersion         Code = "duplicate_doc_version"
	CodeMissingTitle                Code = "missing_title"
	CodeMissingSummary              Code = "missing_summary"
	CodeInvalidUpdatedAt            Code = "invalid_updated_at"
	CodeInvalidLastReviewedAt       Code = "invalid_last_reviewed_at"
	CodeMissingH2                   Code = "missing_h2"
	CodeCanonicalConflict           Code = "canonical_conflict"
	CodeCanonicalNotOfficial        Code = "canonical_not_official"
	CodeOfficialMissingOwners       Code = "official_missing_owners"
	CodeOfficialMissingLastReviewed Code = "official_missing_last_reviewed"
	CodeOfficialMissingTopics       Code = "official_missing_topics"
	CodeOfficialMissingCitations    Code = "official_missing_citations"
	CodeOfficialMissingApprovals    Code = "official_missing_approvals"
	CodeClaimsMissingCitations      Code = "claims_missing_citations"
	CodeFactContradiction           Code = "fact_contradiction"
	CodeBrokenRelatedSlug           Code = "broken_related_slug"
	CodeBrokenInternalLink          Code = "broken_internal_link"
	CodeMissingAsset                Code = "missing_asset"
	CodeGlossaryCase                Code = "glossary_case"
	CodeDeadExternalLink            Code = "dead_external_link"
)

// Finding is one QA failure. File is empty for corpus-level findings that do
// not attach to a single document.
type Finding struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
	File    string `json:"file,omitempty"`
}

// Result is the outcome of a validator run. OK iff Findings is empty.
type Result struct {
	OK       bool      `json:"ok"`
	Findings []Finding `json:"findings"`
}

// ClaimsPolicy tunes the claims-need-sources heuristic. The heuristic is
// deliberately blunt (bare numbers and ISO dates count as claims); it is a
// policy knob, not a correctness rule.
type ClaimsPolicy string

const (
	// ClaimsOff disables the heuristic.
	ClaimsOff ClaimsPolicy = "off"
	// ClaimsOfficial applies the heuristic to official documents only.
	ClaimsOfficial ClaimsPolicy = "official"
	// ClaimsAll applies the heuristic to every document.
	ClaimsAll ClaimsPolicy = "all"
)

// Options configures a validator run. The zero value is usable: no assets
// directory (asset checks skipped), glossary derived from canonical topics,
// external links not checked.
type Options struct {
	// AssetsDir is the public assets root for /path image links. Empty skips
	// the asset check.
	AssetsDir string
	// Glossary lists canonically-cased terms. Empty derives the glossary from
	// the canonicalFor topics of official documents.
	Glossary []string
	// ClaimsPolicy defaults to ClaimsOfficial.
	ClaimsPolicy ClaimsPolicy
	// CheckExternalLinks enables the network-bound liveness check. Off by
	// default so CI without network stays green.
	CheckExternalLinks bool
	// LinkConcurrency bounds the link-check worker pool. Defaults to 8.
	LinkConcurrency int
	// LinkTimeout bounds each link-check request. Defaults to 8s.
	LinkTimeout time.Duration
	// HTTPClient overrides the link-check client, mainly for tests.
	HTTPClient *http.Client
}

var (
	dateRe = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

	// A "claim" is a bare number or an ISO date in the body text.
	claimRe = regexp.MustCompile(`(^|\s)(\d{4}-\d{2}-\d{2}|\d+(\.\d+)?)([\s.,;:!?)]|$)`)

	internalLinkRe = regexp.MustCompile(`\]\((/(?:docs|raw)/[^)\s#]+)[^)]*\)`)
	assetLinkRe    = regexp.MustCompile(`!\[[^\]]*\]\((/[^)\s]+)\)`)
	externalLinkRe = regexp.MustCompile(`\((https?://[^)\s]+)\)`)
)

// Validator cross-checks the corpus served by a repository.
type Validator struct {
	repo *repository.Repository
	o    Options
}

// New returns a validator over the repository with the given options.
func New(repo *repository.Repository, o Options) *Validator {
	if o.ClaimsPolicy == "" {
		o.ClaimsPolicy = ClaimsOfficial
	}
	if o.LinkConcurrency <= 0 {
		o.LinkConcurrency = 8
	}
	if o.LinkTimeout <= 0 {
		o.LinkTimeout = 8 * time.Second
	}
	return &Validator{repo: repo, o: o}
}

// Run evaluates every check over the whole corpus and returns all findings.
func (v *Validator) Run(ctx context.Context) (*Result, error) {
	all, err := v.repo.All(ctx)
	if err != nil {
		return nil, err
	}

	var fs []Finding
	fs = append(fs, checkDuplicates(all)...)
	for _, d := range all {
		fs = append(fs, checkFields(d)...)
	}
	fs = append(fs, checkCanonical(all)...)
	for _, d := range all {
		fs = append(fs, checkOfficialCompleteness(d)...)
		fs = append(fs, v.checkClaims(d)...)
	}
	fs = append(fs, checkFacts(all)...)
	fs = append(fs, checkRelatedSlugs(all)...)
	fs = append(fs, checkInternalLinks(all)...)
	fs = append(fs, v.checkAssets(all)...)
	fs = append(fs, v.checkGlossary(all)...)
	if v.o.CheckExternalLinks {
		fs = append(fs, v.checkExternalLinks(ctx, all)...)
	}
	return &Result{OK: len(fs) == 0, Findings: fs}, nil
}

func checkDuplicates(all []*docs.Document) []Finding {
	byKey := map[string][]string{}
	for _, d := range all {
		key := d.Slug + "@" + d.Version
		byKey[key] = append(byKey[key], d.Path)
	}
	keys := make([]string, 0, len(byKey))
	for k, paths := range byKey {
		if len(paths) > 1 {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	var fs []Finding
	for _, k := range keys {
		fs = append(fs, Finding{
			Code:    CodeDuplicateDocVersion,
			Message: fmt.Sprintf("%s declared by multiple files: %s", k, strings.Join(byKey[k], ", ")),
		})
	}
	return fs
}

func checkFields(d *docs.Document) []Finding {
	var fs []Finding
	add := func(code Code, format string, args ...any) {
		fs = append(fs, Finding{Code: code, Message: fmt.Sprintf(format, args...), File: d.Path})
	}
	if strings.TrimSpace(d.Title) == "" {
		add(CodeMissingTitle, "%s@%s has no title", d.Slug, d.Version)
	}
	if strings.TrimSpace(d.Summary) == "" {
		add(CodeMissingSummary, "%s@%s has no summary", d.Slug, d.Version)
	}
	if !dateRe.MatchString(d.UpdatedAt) {
		add(CodeInvalidUpdatedAt, "%s@%s updatedAt %q is not an ISO date", d.Slug, d.Version, d.UpdatedAt)
	}
	if d.LastReviewedAt != "" && !dateRe.MatchString(d.LastReviewedAt) {
		add(CodeInvalidLastReviewedAt, "%s@%s lastReviewedAt %q is not an ISO date", d.Slug, d.Version, d.LastReviewedAt)
	}
	hasH2 := false
	for _, h := range d.TOC {
		if h.Level == 2 {
			hasH2 = true
			break
		}
	}
	if !hasH2 {
		add(CodeMissingH2, "%s@%s has no H2 heading", d.Slug, d.Version)
	}
	return fs
}

// canonicalOwners maps each topic to the official documents that claim
// canonical status for it, collapsed per slug so two versions of one document
// do not conflict with each other.
func canonicalOwners(all []*docs.Document) map[string][]*docs.Document {
	owners := map[string]map[string]*docs.Document{}
	for _, d := range all {
		if d.Stage != docs.StageOfficial {
			continue
		}
		for _, topic := range d.CanonicalFor {
			if owners[topic] == nil {
				owners[topic] = map[string]*docs.Document{}
			}
			owners[topic][d.Slug] = d
		}
	}
	out := map[string][]*docs.Document{}
	for topic, bySlug := range owners {
		ds := make([]*docs.Document, 0, len(bySlug))
		for _, d := range bySlug {
			ds = append(ds, d)
		}
		sort.Slice(ds, func(i, j int) bool { return ds[i].Slug < ds[j].Slug })
		out[topic] = ds
	}
	return out
}

func checkCanonical(all []*docs.Document) []Finding {
	var fs []Finding
	owners := canonicalOwners(all)
	topics := make([]string, 0, len(owners))
	for topic := range owners {
		topics = append(topics, topic)
	}
	sort.Strings(topics)
	for _, topic := range topics {
		ds := owners[topic]
		if len(ds) < 2 {
			continue
		}
		slugs := make([]string, len(ds))
		for i, d := range ds {
			slugs[i] = d.Slug
		}
		fs = append(fs, Finding{
			Code:    CodeCanonicalConflict,
			Message: fmt.Sprintf("topic %q claimed canonical by multiple official docs: %s", topic, strings.Join(slugs, ", ")),
		})
	}
	for _, d := range all {
		if d.Stage == docs.StageOfficial || len(d.CanonicalFor) == 0 {
			continue
		}
		fs = append(fs, Finding{
			Code:    CodeCanonicalNotOfficial,
			Message: fmt.Sprintf("%s@%s claims canonicalFor %v but is %s, not official", d.Slug, d.Version, d.CanonicalFor, d.Stage),
			File:    d.Path,
		})
	}
	return fs
}

func checkOfficialCompleteness(d *docs.Document) []Finding {
	if d.Stage != docs.StageOfficial {
		return nil
	}
	var fs []Finding
	add := func(code Code, what string) {
		fs = append(fs, Finding{
			Code:    code,
			Message: fmt.Sprintf("official doc %s@%s has no %s", d.Slug, d.Version, what),
			File:    d.Path,
		})
	}
	if len(d.Owners) == 0 {
		add(CodeOfficialMissingOwners, "owners")
	}
	if d.LastReviewedAt == "" {
		add(CodeOfficialMissingLastReviewed, "lastReviewedAt")
	}
	if len(d.Topics) == 0 {
		add(CodeOfficialMissingTopics, "topics")
	}
	if len(d.Citations) == 0 {
		add(CodeOfficialMissingCitations, "citations")
	}
	if len(d.Approvals) == 0 {
		add(CodeOfficialMissingApprovals, "approvals")
	}
	return fs
}

func (v *Validator) checkClaims(d *docs.Document) []Finding {
	switch v.o.ClaimsPolicy {
	case ClaimsOff:
		return nil
	case ClaimsOfficial:
		if d.Stage != docs.StageOfficial {
			return nil
		}
	}
	if len(d.Citations) > 0 || !claimRe.MatchString(d.SearchText) {
		return nil
	}
	return []Finding{{
		Code:    CodeClaimsMissingCitations,
		Message: fmt.Sprintf("%s@%s states numbers or dates but cites no sources", d.Slug, d.Version),
		File:    d.Path,
	}}
}

func checkFacts(all []*docs.Document) []Finding {
	var fs []Finding
	owners := canonicalOwners(all)
	for _, d := range all {
		// Only official docs are held against canonical facts; drafts are
		// allowed to disagree while being written.
		if d.Stage != docs.StageOfficial {
			continue
		}
		for _, topic := range d.Topics {
			for _, canon := range owners[topic] {
				if canon.Slug == d.Slug {
					continue
				}
				keys := make([]string, 0, len(d.Facts))
				for k := range d.Facts {
					keys = append(keys, k)
				}
				sort.Strings(keys)
				for _, k := range keys {
					want, ok := canon.Facts[k]
					if !ok || want == d.Facts[k] {
						continue
					}
					fs = append(fs, Finding{
						Code: CodeFactContradiction,
						Message: fmt.Sprintf("%s@%s fact %q = %q contradicts canonical %s@%s (%q) for topic %q",
							d.Slug, d.Version, k, d.Facts[k], canon.Slug, canon.Version, want, topic),
						File: d.Path,
					})
				}
			}
		}
	}
	return fs
}

func checkRelatedSlugs(all []*docs.Document) []Finding {
	known := map[string]bool{}
	for _, d := range all {
		known[d.Slug] = true
	}
	var fs []Finding
	for _, d := range all {
		for _, s := range d.RelatedSlugs {
			if known[s] {
				continue
			}
			fs = append(fs, Finding{
				Code:    CodeBrokenRelatedSlug,
				Message: fmt.Sprintf("%s@%s relatedSlugs references unknown slug %q", d.Slug, d.Version, s),
				File:    d.Path,
			})
		}
	}
	return fs
}

// resolveInternalLink reports whether an internal /docs or /raw path resolves.
// Version-qualified forms must match an existing version exactly.
func resolveInternalLink(path string, bySlug map[string]map[string]bool) bool {
	parts := strings.Split(strings.TrimPrefix(path, "/"), "/")
	switch {
	case len(parts) == 2 && (parts[0] == "docs" || parts[0] == "raw"):
		// /docs/<slug>, /raw/<slug>
		return bySlug[parts[1]] != nil
	case len(parts) == 4 && parts[0] == "docs" && parts[1] != "v" && parts[2] == "v":
		// /docs/<slug>/v/<version>
		return bySlug[parts[1]][parts[3]]
	case len(parts) == 4 && parts[0] == "raw" && parts[1] == "v":
		// /raw/v/<slug>/<version>
		return bySlug[parts[2]][parts[3]]
	}
	return false
}

func checkInternalLinks(all []*docs.Document) []Finding {
	bySlug := map[string]map[string]bool{}
	for _, d := range all {
		if bySlug[d.Slug] == nil {
			bySlug[d.Slug] = map[string]bool{}
		}
		bySlug[d.Slug][d.Version] = true
	}
	var fs []Finding
	for _, d := range all {
		for _, m := range internalLinkRe.FindAllStringSubmatch(d.Markdown, -1) {
			path := m[1]
			if resolveInternalLink(path, bySlug) {
				continue
			}
			fs = append(fs, Finding{
				Code:    CodeBrokenInternalLink,
				Message: fmt.Sprintf("%s@%s links to %s which does not resolve", d.Slug, d.Version, path),
				File:    d.Path,
			})
		}
	}
	return fs
}

func (v *Validator) checkAssets(all []*docs.Document) []Finding {
	if v.o.AssetsDir == "" {
		return nil
	}
	var fs []Finding
	for _, d := range all {
		for _, m := range assetLinkRe.FindAllStringSubmatch(d.Markdown, -1) {
			path := m[1]
			if strings.HasPrefix(path, "/docs/") || strings.HasPrefix(path, "/raw/") {
				continue
			}
			full := filepath.Join(v.o.AssetsDir, filepath.FromSlash(strings.TrimPrefix(path, "/")))
			if _, err := os.Stat(full); err == nil {
				continue
			}
			fs = append(fs, Finding{
				Code:    CodeMissingAsset,
				Message: fmt.Sprintf("%s@%s references asset %s which is not in %s", d.Slug, d.Version, path, v.o.AssetsDir),
				File:    d.Path,
			})
		}
	}
	return fs
}

// glossary returns the canonically-cased term list: the configured glossary,
// or the canonicalFor topics of official documents when none is configured.
func (v *Validator) glossary(all []*docs.Document) []string {
	if len(v.o.Glossary) > 0 {
		return v.o.Glossary
	}
	seen := map[string]bool{}
	var terms []string
	for _, d := range all {
		if d.Stage != docs.StageOfficial {
			continue
		}
		for _, t := range d.CanonicalFor {
			if !seen[t] {
				seen[t] = true
				terms = append(terms, t)
			}
		}
	}
	sort.Strings(terms)
	return terms
}

func (v *Validator) checkGlossary(all []*docs.Document) []Finding {
	terms := v.glossary(all)
	if len(terms) == 0 {
		return nil
	}
	var fs []Finding
	for _, d := range all {
		if d.Stage != docs.StageOfficial {
			continue
		}
		lower := strings.ToLower(d.Markdown)
		for _, term := range terms {
			if !strings.Contains(lower, strings.ToLower(term)) {
				continue
			}
			if strings.Contains(d.Markdown, term) {
				continue
			}
			fs = append(fs, Finding{
				Code:    CodeGlossaryCase,
				Message: fmt.Sprintf("%s@%s mentions %q but never with its canonical casing", d.Slug, d.Version, term),
				File:    d.Path,
			})
		}
	}
	return fs
}

func (v *Validator) checkExternalLinks(ctx context.Context, all []*docs.Document) []Finding {
	seen := map[string]bool{}
	var urls []string
	for _, d := range all {
		for _, m := range externalLinkRe.FindAllStringSubmatch(d.Markdown, -1) {
			u := m[1]
			if !seen[u] {
				seen[u] = true
				urls = append(urls, u)
			}
		}
	}
	sort.Strings(urls)
	dead := checkLinks(ctx, urls, v.o.HTTPClient, v.o.LinkConcurrency, v.o.LinkTimeout)
	var fs []Finding
	for _, d := range dead {
		fs = append(fs, Finding{
			Code:    CodeDeadExternalLink,
			Message: fmt.Sprintf("%s is dead: %s", d.URL, d.Reason),
		})
	}
	return fs
}
