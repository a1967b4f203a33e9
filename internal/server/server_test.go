package server

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"github.com/docforge/docforge/internal/export"
	"github.com/docforge/docforge/internal/lifecycle"
	"github.com/docforge/docforge/internal/qa"
	"github.com/docforge/docforge/internal/repository"
	"github.com/docforge/docforge/internal/server/handlers"
	"github.com/docforge/docforge/internal/workspace"
)

func newTestServer(t *testing.T, auth *Auth) *httptest.Server {
	t.Helper()
	ws, err := workspace.NewDir(t.TempDir())
	if err != nil {
		t.Fatalf("NewDir: %v", err)
	}
	repo := repository.New(ws, false)
	h := &handlers.Handler{
		Repo:    repo,
		Engine:  lifecycle.New(ws, repo, lifecycle.WithActor("test")),
		QA:      qa.New(repo, qa.Options{}),
		Exports: export.New(repo),
	}
	if auth == nil {
		auth = NewAuth("", "", 0)
	}
	srv := httptest.NewServer(NewRouter(h, auth))
	t.Cleanup(srv.Close)
	return srv
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, out any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode: %v", err)
		}
	}
	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer func() { _ = resp.Body.Close() }()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			t.Fatalf("decode %q: %v", data, err)
		}
	}
	return resp
}

func createDoc(t *testing.T, srv *httptest.Server, slug, version string, published bool) {
	t.Helper()
	resp := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/api/docs", map[string]any{
		"slug":      slug,
		"version":   version,
		"title":     "T",
		"summary":   "s",
		"markdown":  "## H\nbody\n",
		"published": published,
	}, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("create %s@%s: status %d", slug, version, resp.StatusCode)
	}
}

func TestCreateAndGet(t *testing.T) {
	srv := newTestServer(t, nil)
	createDoc(t, srv, "a", "v1", false)

	// Unpublished: the default read path 404s.
	resp := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/api/docs/a", nil, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("unpublished doc status = %d, want 404", resp.StatusCode)
	}

	resp = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/api/docs/a/v/v1/publish", nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("publish status = %d", resp.StatusCode)
	}

	var got struct {
		Doc struct {
			Slug    string `json:"slug"`
			Version string `json:"version"`
		} `json:"doc"`
	}
	resp = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/api/docs/a", nil, &got)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get status = %d", resp.StatusCode)
	}
	if got.Doc.Slug != "a" || got.Doc.Version != "v1" {
		t.Errorf("doc = %+v", got.Doc)
	}
}

func TestDuplicateCreateConflicts(t *testing.T) {
	srv := newTestServer(t, nil)
	createDoc(t, srv, "a", "v1", false)

	var errBody struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	resp := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/api/docs", map[string]any{
		"slug": "a", "version": "v1", "title": "T", "summary": "s",
	}, &errBody)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("status = %d, want 409", resp.StatusCode)
	}
	if errBody.Error.Code != "DUPLICATE_VERSION" {
		t.Errorf("code = %q", errBody.Error.Code)
	}
}

func TestBadAudienceRejected(t *testing.T) {
	srv := newTestServer(t, nil)
	createDoc(t, srv, "a", "v1", true)
	resp := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/api/docs/a?audience=superuser", nil, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestRawEndpoint(t *testing.T) {
	srv := newTestServer(t, nil)
	createDoc(t, srv, "a", "v1", true)

	resp, err := srv.Client().Get(srv.URL + "/raw/a")
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/markdown") {
		t.Errorf("content type = %q", ct)
	}
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "## H") {
		t.Errorf("raw body = %q", body)
	}
}

func TestQARunEndpoint(t *testing.T) {
	srv := newTestServer(t, nil)
	createDoc(t, srv, "a", "v1", true)
	var res struct {
		OK       bool `json:"ok"`
		Findings []struct {
			Code string `json:"code"`
		} `json:"findings"`
	}
	resp := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/api/qa/run", nil, &res)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if !res.OK {
		t.Errorf("clean corpus flagged: %+v", res.Findings)
	}
}

func TestUpdateFeedEndpoint(t *testing.T) {
	srv := newTestServer(t, nil)
	createDoc(t, srv, "a", "v1", true)
	var feed struct {
		BuildID string `json:"buildId"`
		Docs    []any  `json:"docs"`
	}
	resp := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/api/exports/update-feed", nil, &feed)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if feed.BuildID == "" || len(feed.Docs) != 1 {
		t.Errorf("feed = %+v", feed)
	}
}

func TestAuthGuardsMutations(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("hunter2"), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}
	srv := newTestServer(t, NewAuth(string(hash), "jwt-secret", 0))

	// No token: rejected.
	resp := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/api/docs", map[string]any{
		"slug": "a", "title": "T", "summary": "s",
	}, nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("unauthenticated create status = %d, want 401", resp.StatusCode)
	}

	// Wrong password: rejected.
	resp = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/api/auth/login", map[string]string{"password": "wrong"}, nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("bad login status = %d, want 401", resp.StatusCode)
	}

	var login struct {
		Token string `json:"token"`
	}
	resp = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/api/auth/login", map[string]string{"password": "hunter2"}, &login)
	if resp.StatusCode != http.StatusOK || login.Token == "" {
		t.Fatalf("login failed: %d %q", resp.StatusCode, login.Token)
	}

	body, _ := json.Marshal(map[string]any{"slug": "a", "title": "T", "summary": "s"})
	req, err := http.NewRequest(http.MethodPost, srv.URL+"/api/docs", bytes.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Authorization", "Bearer "+login.Token)
	authed, err := srv.Client().Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = authed.Body.Close() }()
	if authed.StatusCode != http.StatusOK {
		t.Fatalf("authenticated create status = %d", authed.StatusCode)
	}

	// Reads stay open.
	resp = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/api/docs", nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("read status = %d", resp.StatusCode)
	}
}
