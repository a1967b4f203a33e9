// Lifecycle mutation endpoints: create, clone, patch, stage, publish toggle,
// delete. Precondition failures map to 4xx application errors.

package handlers

import (
	"context"
	"errors"
	"fmt"

	"github.com/docforge/docforge/internal/apierr"
	"github.com/docforge/docforge/internal/docs"
	"github.com/docforge/docforge/internal/lifecycle"
)

// mapLifecycleErr translates engine preconditions to API errors. Anything
// unrecognized is an internal error.
func mapLifecycleErr(err error) error {
	switch {
	case errors.Is(err, lifecycle.ErrDuplicateVersion):
		return apierr.Conflict(apierr.ErrDuplicateVersion, err.Error())
	case errors.Is(err, lifecycle.ErrFileExists):
		return apierr.Conflict(apierr.ErrFileConflict, err.Error())
	case errors.Is(err, lifecycle.ErrNotFound):
		return apierr.New(404, apierr.ErrDocNotFound, err.Error())
	case errors.Is(err, lifecycle.ErrArchivedPublishedConflict):
		return apierr.BadRequest(err.Error())
	}
	var fieldErr *docs.FieldError
	if errors.As(err, &fieldErr) {
		return apierr.BadRequest(err.Error())
	}
	return apierr.Internal("lifecycle operation failed", err)
}

type createRequest struct {
	Slug         string            `json:"slug"`
	Version      string            `json:"version,omitempty"`
	Title        string            `json:"title"`
	Summary      string            `json:"summary"`
	Markdown     string            `json:"markdown,omitempty"`
	Stage        string            `json:"stage,omitempty"`
	Visibility   string            `json:"visibility,omitempty"`
	UpdatedAt    string            `json:"updatedAt,omitempty"`
	Collection   string            `json:"collection,omitempty"`
	Order        *int              `json:"order,omitempty"`
	Owners       []string          `json:"owners,omitempty"`
	Topics       []string          `json:"topics,omitempty"`
	RelatedSlugs []string          `json:"relatedSlugs,omitempty"`
	CanonicalFor []string          `json:"canonicalFor,omitempty"`
	Citations    []docs.Citation   `json:"citations,omitempty"`
	Approvals    []docs.Approval   `json:"approvals,omitempty"`
	Facts        map[string]string `json:"facts,omitempty"`
	Archived     *bool             `json:"archived,omitempty"`
	Published    *bool             `json:"published,omitempty"`
}

func (r *createRequest) Validate() error {
	if r.Slug == "" {
		return fmt.Errorf("slug is required")
	}
	if r.Title == "" {
		return fmt.Errorf("title is required")
	}
	if r.Summary == "" {
		return fmt.Errorf("summary is required")
	}
	return nil
}

// Create handles POST /api/docs.
func (h *Handler) Create(ctx context.Context, req createRequest) (*DocResponse, error) {
	d, err := h.Engine.Create(ctx, lifecycle.CreateParams{
		Slug:         req.Slug,
		Version:      req.Version,
		Title:        req.Title,
		Summary:      req.Summary,
		Markdown:     req.Markdown,
		Stage:        docs.Stage(req.Stage),
		Visibility:   docs.Visibility(req.Visibility),
		UpdatedAt:    req.UpdatedAt,
		Collection:   req.Collection,
		Order:        req.Order,
		Owners:       req.Owners,
		Topics:       req.Topics,
		RelatedSlugs: req.RelatedSlugs,
		CanonicalFor: req.CanonicalFor,
		Citations:    req.Citations,
		Approvals:    req.Approvals,
		Facts:        req.Facts,
		Archived:     req.Archived,
		Published:    req.Published,
	})
	if err != nil {
		return nil, mapLifecycleErr(err)
	}
	return &DocResponse{Doc: d}, nil
}

type cloneRequest struct {
	Slug            string `path:"slug"`
	NewVersion      string `json:"newVersion"`
	IncludeArchived bool   `json:"includeArchived,omitempty"`
	Archived        *bool  `json:"archived,omitempty"`
	Published       *bool  `json:"published,omitempty"`
}

func (r *cloneRequest) Validate() error {
	if r.NewVersion == "" {
		return fmt.Errorf("newVersion is required")
	}
	return nil
}

// Clone handles POST /api/docs/{slug}/clone.
func (h *Handler) Clone(ctx context.Context, req cloneRequest) (*DocResponse, error) {
	d, err := h.Engine.Clone(ctx, req.Slug, req.NewVersion, lifecycle.CloneOptions{
		IncludeArchived: req.IncludeArchived,
		Archived:        req.Archived,
		Published:       req.Published,
	})
	if err != nil {
		return nil, mapLifecycleErr(err)
	}
	return &DocResponse{Doc: d}, nil
}

type patchRequest struct {
	Slug         string             `path:"slug"`
	Version      string             `path:"version"`
	Title        *string            `json:"title,omitempty"`
	Summary      *string            `json:"summary,omitempty"`
	UpdatedAt    *string            `json:"updatedAt,omitempty"`
	Collection   *string            `json:"collection,omitempty"`
	Order        *int               `json:"order,omitempty"`
	Visibility   *string            `json:"visibility,omitempty"`
	Owners       *[]string          `json:"owners,omitempty"`
	Topics       *[]string          `json:"topics,omitempty"`
	RelatedSlugs *[]string          `json:"relatedSlugs,omitempty"`
	CanonicalFor *[]string          `json:"canonicalFor,omitempty"`
	Citations    *[]docs.Citation   `json:"citations,omitempty"`
	Approvals    *[]docs.Approval   `json:"approvals,omitempty"`
	Facts        *map[string]string `json:"facts,omitempty"`
	Markdown     *string            `json:"markdown,omitempty"`
}

// Patch handles PATCH /api/docs/{slug}/v/{version}.
func (h *Handler) Patch(ctx context.Context, req patchRequest) (*DocResponse, error) {
	p := lifecycle.PatchParams{
		Title:        req.Title,
		Summary:      req.Summary,
		UpdatedAt:    req.UpdatedAt,
		Collection:   req.Collection,
		Order:        req.Order,
		Owners:       req.Owners,
		Topics:       req.Topics,
		RelatedSlugs: req.RelatedSlugs,
		CanonicalFor: req.CanonicalFor,
		Citations:    req.Citations,
		Approvals:    req.Approvals,
		Facts:        req.Facts,
		Markdown:     req.Markdown,
	}
	if req.Visibility != nil {
		v := docs.Visibility(*req.Visibility)
		p.Visibility = &v
	}
	d, err := h.Engine.Patch(ctx, req.Slug, req.Version, p)
	if err != nil {
		return nil, mapLifecycleErr(err)
	}
	return &DocResponse{Doc: d}, nil
}

type setStageRequest struct {
	Slug       string          `path:"slug"`
	Version    string          `path:"version"`
	Stage      string          `json:"stage"`
	ReviewedAt string          `json:"reviewedAt,omitempty"`
	Approvals  []docs.Approval `json:"approvals,omitempty"`
}

func (r *setStageRequest) Validate() error {
	if !docs.ValidStage(docs.Stage(r.Stage)) {
		return fmt.Errorf("unknown stage %q", r.Stage)
	}
	return nil
}

// SetStage handles POST /api/docs/{slug}/v/{version}/stage.
func (h *Handler) SetStage(ctx context.Context, req setStageRequest) (*DocResponse, error) {
	d, err := h.Engine.SetStage(ctx, req.Slug, req.Version, docs.Stage(req.Stage), req.ReviewedAt, req.Approvals)
	if err != nil {
		return nil, mapLifecycleErr(err)
	}
	return &DocResponse{Doc: d}, nil
}

type publishRequest struct {
	Slug    string `path:"slug"`
	Version string `path:"version"`
}

// Publish handles POST /api/docs/{slug}/v/{version}/publish.
func (h *Handler) Publish(ctx context.Context, req publishRequest) (*DocResponse, error) {
	d, err := h.Engine.Publish(ctx, req.Slug, req.Version)
	if err != nil {
		return nil, mapLifecycleErr(err)
	}
	return &DocResponse{Doc: d}, nil
}

// Unpublish handles POST /api/docs/{slug}/v/{version}/unpublish.
func (h *Handler) Unpublish(ctx context.Context, req publishRequest) (*DocResponse, error) {
	d, err := h.Engine.Unpublish(ctx, req.Slug, req.Version)
	if err != nil {
		return nil, mapLifecycleErr(err)
	}
	return &DocResponse{Doc: d}, nil
}

// DeleteResponse reports how many versions were removed.
type DeleteResponse struct {
	Deleted int `json:"deleted"`
}

// DeleteVersion handles DELETE /api/docs/{slug}/v/{version}.
func (h *Handler) DeleteVersion(ctx context.Context, req publishRequest) (*DeleteResponse, error) {
	if err := h.Engine.Delete(ctx, req.Slug, req.Version); err != nil {
		return nil, mapLifecycleErr(err)
	}
	return &DeleteResponse{Deleted: 1}, nil
}

type deleteAllRequest struct {
	Slug string `path:"slug"`
}

// DeleteAllVersions handles DELETE /api/docs/{slug}.
func (h *Handler) DeleteAllVersions(ctx context.Context, req deleteAllRequest) (*DeleteResponse, error) {
	n, err := h.Engine.DeleteAllVersions(ctx, req.Slug)
	if err != nil {
		return nil, mapLifecycleErr(err)
	}
	return &DeleteResponse{Deleted: n}, nil
}
