// Package handlers implements the admin API endpoints over the repository,
// lifecycle engine, QA validator and export generators.
package handlers

import (
	"context"
	"fmt"
	"net/http"

	"github.com/docforge/docforge/internal/apierr"
	"github.com/docforge/docforge/internal/docs"
	"github.com/docforge/docforge/internal/export"
	"github.com/docforge/docforge/internal/lifecycle"
	"github.com/docforge/docforge/internal/qa"
	"github.com/docforge/docforge/internal/repository"
	"github.com/docforge/docforge/internal/webhook"
)

// Handler bundles the services the endpoints need.
type Handler struct {
	Repo     *repository.Repository
	Engine   *lifecycle.Engine
	QA       *qa.Validator
	Exports  *export.Generator
	Notifier *webhook.Notifier
}

func validAudience(a string) error {
	if a != "" && !docs.ValidAudience(docs.Audience(a)) {
		return fmt.Errorf("unknown audience %q", a)
	}
	return nil
}

// SlugsResponse lists every distinct slug.
type SlugsResponse struct {
	Slugs []string `json:"slugs"`
}

// ListSlugs handles GET /api/docs.
func (h *Handler) ListSlugs(ctx context.Context, _ struct{}) (*SlugsResponse, error) {
	slugs, err := h.Repo.ListSlugs(ctx)
	if err != nil {
		return nil, apierr.Internal("failed to list documents", err)
	}
	return &SlugsResponse{Slugs: slugs}, nil
}

type listVersionsRequest struct {
	Slug            string `path:"slug"`
	IncludeArchived bool   `query:"includeArchived"`
	Audience        string `query:"audience"`
}

func (r *listVersionsRequest) Validate() error {
	return validAudience(r.Audience)
}

// VersionsResponse lists every version of one slug, newest first.
type VersionsResponse struct {
	Slug     string           `json:"slug"`
	Versions []*docs.Document `json:"versions"`
}

// ListVersions handles GET /api/docs/{slug}/versions.
func (h *Handler) ListVersions(ctx context.Context, req listVersionsRequest) (*VersionsResponse, error) {
	vs, err := h.Repo.ListVersions(ctx, req.Slug, repository.Options{
		IncludeArchived: req.IncludeArchived,
		Audience:        docs.Audience(req.Audience),
	})
	if err != nil {
		return nil, apierr.Internal("failed to list versions", err)
	}
	if len(vs) == 0 {
		return nil, apierr.NotFound(req.Slug, "")
	}
	return &VersionsResponse{Slug: req.Slug, Versions: vs}, nil
}

type getLatestRequest struct {
	Slug            string `path:"slug"`
	IncludeArchived bool   `query:"includeArchived"`
	Audience        string `query:"audience"`
}

func (r *getLatestRequest) Validate() error {
	return validAudience(r.Audience)
}

// DocResponse wraps one document.
type DocResponse struct {
	Doc *docs.Document `json:"doc"`
}

// GetLatest handles GET /api/docs/{slug}.
func (h *Handler) GetLatest(ctx context.Context, req getLatestRequest) (*DocResponse, error) {
	d, err := h.Repo.GetLatest(ctx, req.Slug, repository.Options{
		IncludeArchived: req.IncludeArchived,
		Audience:        docs.Audience(req.Audience),
	})
	if err != nil {
		return nil, apierr.Internal("failed to load document", err)
	}
	if d == nil {
		return nil, apierr.NotFound(req.Slug, "")
	}
	return &DocResponse{Doc: d}, nil
}

type getVersionRequest struct {
	Slug            string `path:"slug"`
	Version         string `path:"version"`
	IncludeArchived bool   `query:"includeArchived"`
	Audience        string `query:"audience"`
}

func (r *getVersionRequest) Validate() error {
	return validAudience(r.Audience)
}

// GetVersion handles GET /api/docs/{slug}/v/{version}.
func (h *Handler) GetVersion(ctx context.Context, req getVersionRequest) (*DocResponse, error) {
	d, err := h.Repo.GetVersion(ctx, req.Slug, req.Version, repository.Options{
		IncludeArchived: req.IncludeArchived,
		Audience:        docs.Audience(req.Audience),
	})
	if err != nil {
		return nil, apierr.Internal("failed to load document", err)
	}
	if d == nil {
		return nil, apierr.NotFound(req.Slug, req.Version)
	}
	return &DocResponse{Doc: d}, nil
}

type collectionsRequest struct {
	IncludeArchived bool   `query:"includeArchived"`
	Audience        string `query:"audience"`
}

func (r *collectionsRequest) Validate() error {
	return validAudience(r.Audience)
}

// CollectionsResponse groups the latest version of every slug by collection.
type CollectionsResponse struct {
	Collections []repository.Collection `json:"collections"`
}

// ListCollections handles GET /api/collections.
func (h *Handler) ListCollections(ctx context.Context, req collectionsRequest) (*CollectionsResponse, error) {
	cols, err := h.Repo.ListCollections(ctx, repository.Options{
		IncludeArchived: req.IncludeArchived,
		Audience:        docs.Audience(req.Audience),
	})
	if err != nil {
		return nil, apierr.Internal("failed to list collections", err)
	}
	return &CollectionsResponse{Collections: cols}, nil
}

type prevNextRequest struct {
	Slug     string `path:"slug"`
	Audience string `query:"audience"`
}

func (r *prevNextRequest) Validate() error {
	return validAudience(r.Audience)
}

// PrevNextResponse carries collection navigation neighbors; either side is
// null at a boundary.
type PrevNextResponse struct {
	Prev *docs.Document `json:"prev"`
	Next *docs.Document `json:"next"`
}

// PrevNext handles GET /api/docs/{slug}/nav.
func (h *Handler) PrevNext(ctx context.Context, req prevNextRequest) (*PrevNextResponse, error) {
	o := repository.Options{Audience: docs.Audience(req.Audience)}
	d, err := h.Repo.GetLatest(ctx, req.Slug, o)
	if err != nil {
		return nil, apierr.Internal("failed to load document", err)
	}
	if d == nil {
		return nil, apierr.NotFound(req.Slug, "")
	}
	prev, next, err := h.Repo.PrevNext(ctx, d, o)
	if err != nil {
		return nil, apierr.Internal("failed to resolve neighbors", err)
	}
	return &PrevNextResponse{Prev: prev, Next: next}, nil
}

// HealthResponse reports liveness and corpus size.
type HealthResponse struct {
	Status string `json:"status"`
	Docs   int    `json:"docs"`
}

// Health handles GET /api/health.
func (h *Handler) Health(ctx context.Context, _ struct{}) (*HealthResponse, error) {
	all, err := h.Repo.All(ctx)
	if err != nil {
		return nil, apierr.Internal("corpus failed to load", err)
	}
	return &HealthResponse{Status: "ok", Docs: len(all)}, nil
}

// RawLatest serves the markdown body of the latest published version as
// text/markdown. Not JSON-wrapped; this is the raw consumption surface.
func (h *Handler) RawLatest(w http.ResponseWriter, r *http.Request) {
	h.serveRaw(w, r, r.PathValue("slug"), "")
}

// RawVersion serves one exact version's markdown body.
func (h *Handler) RawVersion(w http.ResponseWriter, r *http.Request) {
	h.serveRaw(w, r, r.PathValue("slug"), r.PathValue("version"))
}

func (h *Handler) serveRaw(w http.ResponseWriter, r *http.Request, slug, version string) {
	aud := r.URL.Query().Get("audience")
	if validAudience(aud) != nil {
		http.Error(w, "unknown audience", http.StatusBadRequest)
		return
	}
	o := repository.Options{Audience: docs.Audience(aud)}
	var d *docs.Document
	var err error
	if version == "" {
		d, err = h.Repo.GetLatest(r.Context(), slug, o)
	} else {
		d, err = h.Repo.GetVersion(r.Context(), slug, version, o)
	}
	if err != nil {
		http.Error(w, "failed to load document", http.StatusInternalServerError)
		return
	}
	if d == nil {
		http.Error(w, "document not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	_, _ = w.Write([]byte(d.Markdown))
}
