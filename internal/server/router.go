// Package server wires the admin API: typed handler wrapping, bearer-token
// authentication and the route table.
package server

import (
	"context"
	"net/http"

	"github.com/docforge/docforge/internal/apierr"
	"github.com/docforge/docforge/internal/server/handlers"
)

type loginRequest struct {
	Password string `json:"password"`
}

type loginResponse struct {
	Token string `json:"token"`
}

// NewRouter builds the route table. Read endpoints are open; mutating
// endpoints sit behind the auth middleware (a no-op when auth is disabled).
func NewRouter(h *handlers.Handler, auth *Auth) http.Handler {
	mux := http.NewServeMux()

	login := Wrap(func(_ context.Context, req loginRequest) (*loginResponse, error) {
		if req.Password == "" {
			return nil, apierr.MissingField("password")
		}
		token, err := auth.Login(req.Password)
		if err != nil {
			return nil, err
		}
		return &loginResponse{Token: token}, nil
	})

	mux.Handle("GET /api/health", Wrap(h.Health))
	mux.Handle("POST /api/auth/login", login)

	// Read surface.
	mux.Handle("GET /api/docs", Wrap(h.ListSlugs))
	mux.Handle("GET /api/docs/{slug}", Wrap(h.GetLatest))
	mux.Handle("GET /api/docs/{slug}/versions", Wrap(h.ListVersions))
	mux.Handle("GET /api/docs/{slug}/nav", Wrap(h.PrevNext))
	mux.Handle("GET /api/docs/{slug}/v/{version}", Wrap(h.GetVersion))
	mux.Handle("GET /api/collections", Wrap(h.ListCollections))
	mux.HandleFunc("GET /raw/{slug}", h.RawLatest)
	mux.HandleFunc("GET /raw/v/{slug}/{version}", h.RawVersion)

	// Export surface.
	mux.Handle("GET /api/exports/doc-index", Wrap(h.DocIndex))
	mux.Handle("GET /api/exports/search-index", Wrap(h.SearchIndex))
	mux.Handle("GET /api/exports/chunks", Wrap(h.Chunks))
	mux.Handle("GET /api/exports/embeddings-manifest", Wrap(h.EmbeddingsManifest))
	mux.Handle("GET /api/exports/claims", Wrap(h.Claims))
	mux.Handle("GET /api/exports/update-feed", Wrap(h.UpdateFeed))

	// Mutating surface, auth-guarded.
	guard := auth.Middleware
	mux.Handle("POST /api/docs", guard(Wrap(h.Create)))
	mux.Handle("POST /api/docs/{slug}/clone", guard(Wrap(h.Clone)))
	mux.Handle("PATCH /api/docs/{slug}/v/{version}", guard(Wrap(h.Patch)))
	mux.Handle("POST /api/docs/{slug}/v/{version}/stage", guard(Wrap(h.SetStage)))
	mux.Handle("POST /api/docs/{slug}/v/{version}/publish", guard(Wrap(h.Publish)))
	mux.Handle("POST /api/docs/{slug}/v/{version}/unpublish", guard(Wrap(h.Unpublish)))
	mux.Handle("DELETE /api/docs/{slug}/v/{version}", guard(Wrap(h.DeleteVersion)))
	mux.Handle("DELETE /api/docs/{slug}", guard(Wrap(h.DeleteAllVersions)))
	mux.Handle("POST /api/qa/run", guard(Wrap(h.RunQA)))
	mux.Handle("POST /api/webhook/notify", guard(Wrap(h.Notify)))

	return mux
}
