// QA, export artifact and webhook endpoints.

package handlers

import (
	"context"

	"github.com/docforge/docforge/internal/apierr"
	"github.com/docforge/docforge/internal/export"
	"github.com/docforge/docforge/internal/qa"
)

// RunQA handles POST /api/qa/run. The validator always completes and returns
// every finding; a failing corpus is still a 200 with ok=false.
func (h *Handler) RunQA(ctx context.Context, _ struct{}) (*qa.Result, error) {
	res, err := h.QA.Run(ctx)
	if err != nil {
		return nil, apierr.Internal("qa run failed", err)
	}
	return res, nil
}

// DocIndex handles GET /api/exports/doc-index.
func (h *Handler) DocIndex(ctx context.Context, _ struct{}) (*export.DocIndex, error) {
	v, err := h.Exports.DocIndex(ctx)
	if err != nil {
		return nil, apierr.Internal("failed to build doc index", err)
	}
	return v, nil
}

// SearchIndex handles GET /api/exports/search-index.
func (h *Handler) SearchIndex(ctx context.Context, _ struct{}) (*export.SearchIndex, error) {
	v, err := h.Exports.SearchIndex(ctx)
	if err != nil {
		return nil, apierr.Internal("failed to build search index", err)
	}
	return v, nil
}

// Chunks handles GET /api/exports/chunks.
func (h *Handler) Chunks(ctx context.Context, _ struct{}) (*export.ChunkExport, error) {
	v, err := h.Exports.Chunks(ctx)
	if err != nil {
		return nil, apierr.Internal("failed to build chunks", err)
	}
	return v, nil
}

// EmbeddingsManifest handles GET /api/exports/embeddings-manifest.
func (h *Handler) EmbeddingsManifest(ctx context.Context, _ struct{}) (*export.EmbeddingsManifest, error) {
	v, err := h.Exports.EmbeddingsManifest(ctx)
	if err != nil {
		return nil, apierr.Internal("failed to build embeddings manifest", err)
	}
	return v, nil
}

// Claims handles GET /api/exports/claims.
func (h *Handler) Claims(ctx context.Context, _ struct{}) (*export.ClaimsExport, error) {
	v, err := h.Exports.Claims(ctx)
	if err != nil {
		return nil, apierr.Internal("failed to build claims export", err)
	}
	return v, nil
}

// UpdateFeed handles GET /api/exports/update-feed.
func (h *Handler) UpdateFeed(ctx context.Context, _ struct{}) (*export.UpdateFeed, error) {
	v, err := h.Exports.UpdateFeed(ctx)
	if err != nil {
		return nil, apierr.Internal("failed to build update feed", err)
	}
	return v, nil
}

// NotifyResponse reports a webhook delivery.
type NotifyResponse struct {
	Delivered bool   `json:"delivered"`
	BuildID   string `json:"buildId"`
}

// Notify handles POST /api/webhook/notify: builds the current update feed and
// delivers it to the configured endpoint.
func (h *Handler) Notify(ctx context.Context, _ struct{}) (*NotifyResponse, error) {
	if h.Notifier == nil {
		return nil, apierr.BadRequest("no webhook endpoint configured")
	}
	feed, err := h.Exports.UpdateFeed(ctx)
	if err != nil {
		return nil, apierr.Internal("failed to build update feed", err)
	}
	if err := h.Notifier.Send(ctx, feed); err != nil {
		return nil, apierr.Internal("webhook delivery failed", err)
	}
	return &NotifyResponse{Delivered: true, BuildID: feed.BuildID}, nil
}
