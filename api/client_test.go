package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	mgErrors "github.com/mgost/mgost/errors"
)

type apiEnv struct {
	root   string
	router *mux.Router
	client *Client

	mu   sync.Mutex
	hits map[string]int
}

func setupAPIEnv(t *testing.T) *apiEnv {
	t.Helper()
	env := &apiEnv{
		root:   t.TempDir(),
		router: mux.NewRouter(),
		hits:   map[string]int{},
	}
	env.router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			env.mu.Lock()
			env.hits[r.Method+" "+r.URL.Path]++
			env.mu.Unlock()
			next.ServeHTTP(w, r)
		})
	})
	srv := httptest.NewServer(env.router)
	t.Cleanup(srv.Close)

	env.client = New(srv.URL, "test-token",
		WithRoot(env.root),
		WithRetry(3, 5*time.Millisecond))
	t.Cleanup(env.client.Close)
	return env
}

func (env *apiEnv) hitCount(method, path string) int {
	env.mu.Lock()
	defer env.mu.Unlock()
	return env.hits[method+" "+path]
}

func (env *apiEnv) writeLocal(t *testing.T, relPath, content string) string {
	t.Helper()
	p := filepath.Join(env.root, filepath.FromSlash(relPath))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0644))
	return p
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func TestClientSendsAPIKey(t *testing.T) {
	env := setupAPIEnv(t)

	var gotKey string
	env.router.HandleFunc("/me", func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("X-API-Key")
		respondJSON(w, http.StatusOK, TokenInfo{Owner: "alice"})
	})

	info, err := env.client.Me(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "test-token", gotKey)
	assert.Equal(t, "alice", info.Owner)
}

func TestClientRetriesRateLimit(t *testing.T) {
	env := setupAPIEnv(t)

	env.router.HandleFunc("/me", func(w http.ResponseWriter, r *http.Request) {
		if env.hitCount(http.MethodGet, "/me") <= 2 {
			respondJSON(w, http.StatusTooManyRequests, map[string]string{"detail": "rate limited"})
			return
		}
		respondJSON(w, http.StatusOK, TokenInfo{Owner: "alice"})
	})

	info, err := env.client.Me(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "alice", info.Owner)
	assert.Equal(t, 3, env.hitCount(http.MethodGet, "/me"))
}

func TestClientGivesUpAfterRetryBudget(t *testing.T) {
	env := setupAPIEnv(t)

	env.router.HandleFunc("/me", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusTooManyRequests, map[string]string{"detail": "rate limited"})
	})

	_, err := env.client.Me(context.Background())
	require.Error(t, err)
	var remote mgErrors.RemoteRequestError
	require.ErrorAs(t, err, &remote)
	assert.Equal(t, http.StatusTooManyRequests, remote.Status)
	// Initial attempt plus three retries.
	assert.Equal(t, 4, env.hitCount(http.MethodGet, "/me"))
}

func TestClientSurfacesErrorDetail(t *testing.T) {
	env := setupAPIEnv(t)

	// The service reports some failures with a 200 status and an
	// error envelope in the body.
	env.router.HandleFunc("/mgost/project/7", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"detail": "project is frozen"})
	})

	_, err := env.client.Project(context.Background(), 7)
	require.Error(t, err)
	var remote mgErrors.RemoteRequestError
	require.ErrorAs(t, err, &remote)
	assert.Equal(t, "project is frozen", remote.Detail)
}

func TestClientCachesListings(t *testing.T) {
	env := setupAPIEnv(t)

	env.router.HandleFunc("/mgost/project/7/files", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, []RemoteFile{{ProjectID: 7, Path: "main.md"}})
	})

	ctx := context.Background()
	_, err := env.client.ProjectFiles(ctx, 7)
	require.NoError(t, err)
	_, err = env.client.ProjectFiles(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, 1, env.hitCount(http.MethodGet, "/mgost/project/7/files"))

	env.client.InvalidateCache()
	_, err = env.client.ProjectFiles(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, 2, env.hitCount(http.MethodGet, "/mgost/project/7/files"))
}

func TestIsProjectAvailable(t *testing.T) {
	env := setupAPIEnv(t)

	env.router.HandleFunc("/mgost/project/7", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, ProjectDetails{Project: Project{ID: 7, Name: "thesis"}})
	})
	env.router.HandleFunc("/mgost/project/8", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusNotFound, map[string]string{"detail": "no such project"})
	})

	ctx := context.Background()
	ok, err := env.client.IsProjectAvailable(ctx, 7)
	require.NoError(t, err)
	assert.True(t, ok)

	// A service-side rejection is "not available", not an error.
	ok, err = env.client.IsProjectAvailable(ctx, 8)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestUploadNewFile(t *testing.T) {
	env := setupAPIEnv(t)
	env.writeLocal(t, "notes.md", "# hi")

	var gotPath, gotModify, gotContent string
	env.router.HandleFunc("/mgost/project/7/files", func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Query().Get("path")
		gotModify = r.URL.Query().Get("modify_time")
		f, _, err := r.FormFile("file")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		defer f.Close()
		data, _ := io.ReadAll(f)
		gotContent = string(data)
		respondJSON(w, http.StatusCreated, RemoteFile{ProjectID: 7, Path: "notes.md"})
	}).Methods(http.MethodPut)

	err := env.client.Upload(context.Background(), 7, "notes.md", false)
	require.NoError(t, err)
	assert.Equal(t, "notes.md", gotPath)
	assert.Equal(t, "# hi", gotContent)

	_, err = time.Parse(time.RFC3339Nano, gotModify)
	assert.NoError(t, err, "modify_time should be RFC 3339")
}

func TestUploadOverwriteUsesPost(t *testing.T) {
	env := setupAPIEnv(t)
	env.writeLocal(t, "notes.md", "# v2")

	env.router.HandleFunc("/mgost/project/7/files/{rest:.*}", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "notes.md", mux.Vars(r)["rest"])
		respondJSON(w, http.StatusOK, RemoteFile{ProjectID: 7, Path: "notes.md"})
	}).Methods(http.MethodPost)

	err := env.client.Upload(context.Background(), 7, "notes.md", true)
	require.NoError(t, err)
	assert.Equal(t, 1, env.hitCount(http.MethodPost, "/mgost/project/7/files/notes.md"))
}

func TestUploadMissingLocalFile(t *testing.T) {
	env := setupAPIEnv(t)

	err := env.client.Upload(context.Background(), 7, "ghost.md", false)
	assert.True(t, mgErrors.IsNotFound(err))
}

func TestUploadInvalidatesListingCache(t *testing.T) {
	env := setupAPIEnv(t)
	env.writeLocal(t, "notes.md", "# hi")

	env.router.HandleFunc("/mgost/project/7/files", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, []RemoteFile{})
	}).Methods(http.MethodGet)
	env.router.HandleFunc("/mgost/project/7/files", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusCreated, RemoteFile{})
	}).Methods(http.MethodPut)

	ctx := context.Background()
	_, err := env.client.ProjectFiles(ctx, 7)
	require.NoError(t, err)

	require.NoError(t, env.client.Upload(ctx, 7, "notes.md", false))

	_, err = env.client.ProjectFiles(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, 2, env.hitCount(http.MethodGet, "/mgost/project/7/files"))
}

func TestDownloadWritesAndStampsFile(t *testing.T) {
	env := setupAPIEnv(t)
	remoteModified := time.Date(2024, 3, 14, 12, 0, 0, 0, time.UTC)

	env.router.HandleFunc("/mgost/project/7/files/{rest:.*}", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "images/fig 1.png", mux.Vars(r)["rest"])
		w.Write([]byte("PNG DATA"))
	}).Methods(http.MethodGet)
	env.router.HandleFunc("/mgost/project/7/files", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, []RemoteFile{
			{ProjectID: 7, Path: "images/fig 1.png", Size: 8, Modified: remoteModified},
		})
	}).Methods(http.MethodGet)

	err := env.client.Download(context.Background(), 7, "images/fig 1.png", false)
	require.NoError(t, err)

	local := filepath.Join(env.root, "images", "fig 1.png")
	data, err := os.ReadFile(local)
	require.NoError(t, err)
	assert.Equal(t, "PNG DATA", string(data))

	fi, err := os.Stat(local)
	require.NoError(t, err)
	assert.True(t, fi.ModTime().Equal(remoteModified),
		"local mtime should equal the remote modification time")
}

func TestDownloadRefusesExistingFile(t *testing.T) {
	env := setupAPIEnv(t)
	local := env.writeLocal(t, "report.docx", "old content")

	err := env.client.Download(context.Background(), 7, "report.docx", false)
	assert.True(t, mgErrors.IsExists(err))

	data, _ := os.ReadFile(local)
	assert.Equal(t, "old content", string(data), "refused download must not touch the file")
}

func TestDownloadOverwritesWhenAllowed(t *testing.T) {
	env := setupAPIEnv(t)
	local := env.writeLocal(t, "report.docx", "old content")

	env.router.HandleFunc("/mgost/project/7/files/{rest:.*}", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("new content"))
	}).Methods(http.MethodGet)
	env.router.HandleFunc("/mgost/project/7/files", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, []RemoteFile{{ProjectID: 7, Path: "report.docx"}})
	}).Methods(http.MethodGet)

	err := env.client.Download(context.Background(), 7, "report.docx", true)
	require.NoError(t, err)

	data, _ := os.ReadFile(local)
	assert.Equal(t, "new content", string(data))
}

func TestMoveOnCloud(t *testing.T) {
	env := setupAPIEnv(t)

	var gotTarget string
	env.router.HandleFunc("/mgost/project/7/files/{rest:.*}", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "old.md", mux.Vars(r)["rest"])
		gotTarget = r.URL.Query().Get("target")
		respondJSON(w, http.StatusOK, Message{Message: "ok"})
	}).Methods(http.MethodPatch)

	err := env.client.MoveOnCloud(context.Background(), 7, "old.md", "chapters/new.md")
	require.NoError(t, err)
	assert.Equal(t, "chapters/new.md", gotTarget)
}

func TestMoveOnCloudRejected(t *testing.T) {
	env := setupAPIEnv(t)

	env.router.HandleFunc("/mgost/project/7/files/{rest:.*}", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, Message{Message: "denied"})
	}).Methods(http.MethodPatch)

	err := env.client.MoveOnCloud(context.Background(), 7, "old.md", "new.md")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "denied")
}

func TestCreateProject(t *testing.T) {
	env := setupAPIEnv(t)

	env.router.HandleFunc("/mgost/project", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "thesis", r.URL.Query().Get("project_name"))
		respondJSON(w, http.StatusOK, map[string]int64{"id": 42})
	}).Methods(http.MethodPut)

	id, err := env.client.CreateProject(context.Background(), "thesis")
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)
}

func TestEscapePath(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"/me", "/me"},
		{"/mgost/project/7/files/main.md", "/mgost/project/7/files/main.md"},
		{"/mgost/project/7/files/images/fig 1.png", "/mgost/project/7/files/images/fig%201.png"},
		{"/mgost/project/7/files/глава.md", "/mgost/project/7/files/%D0%B3%D0%BB%D0%B0%D0%B2%D0%B0.md"},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, escapePath(tt.input))
		})
	}
}
