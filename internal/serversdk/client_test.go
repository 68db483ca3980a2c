package serversdk

import (
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testBackend is a minimal in-process stand-in for the sync backend.
type testBackend struct {
	mu        sync.Mutex
	saves     map[string][]byte
	lastAuth  string
	lastAgent string
	failList  bool
}

func (b *testBackend) record(r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lastAuth = r.Header.Get("Authorization")
	b.lastAgent = r.Header.Get("User-Agent")
}

func (b *testBackend) get(name string) ([]byte, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	data, ok := b.saves[name]
	return data, ok
}

func (b *testBackend) put(name string, data []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.saves[name] = data
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	data, _ := json.Marshal(v)
	_, _ = w.Write(data)
}

func writeAPIError(w http.ResponseWriter, status int, code string, message string) {
	writeJSON(w, status, &BaseError{Code: code, Message: message})
}

func newTestBackend(t *testing.T) (*httptest.Server, *testBackend) {
	t.Helper()

	backend := &testBackend{saves: make(map[string][]byte)}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/status", func(w http.ResponseWriter, r *http.Request) {
		backend.record(r)
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	mux.HandleFunc("GET /api/v1/saves", func(w http.ResponseWriter, r *http.Request) {
		backend.record(r)
		if backend.failList {
			writeAPIError(w, http.StatusInternalServerError, CodeSaveListFailed, "list blew up")
			return
		}
		names := make([]string, 0, len(backend.saves))
		for name := range backend.saves {
			names = append(names, name)
		}
		writeJSON(w, http.StatusOK, &SaveNamesResponse{Names: names})
	})
	mux.HandleFunc("GET /api/v1/saves/{name}/hash", func(w http.ResponseWriter, r *http.Request) {
		backend.record(r)
		name := r.PathValue("name")
		data, ok := backend.get(name)
		if !ok {
			writeAPIError(w, http.StatusNotFound, CodeSaveNotFound, "no such save")
			return
		}
		writeJSON(w, http.StatusOK, &SaveHashResponse{Name: name, Hash: hashBytes(data)})
	})
	mux.HandleFunc("PUT /api/v1/saves/{name}", func(w http.ResponseWriter, r *http.Request) {
		backend.record(r)
		name := r.PathValue("name")
		file, _, err := r.FormFile(uploadField)
		if err != nil {
			writeAPIError(w, http.StatusBadRequest, CodeInvalidRequest, err.Error())
			return
		}
		defer file.Close()
		data, err := io.ReadAll(file)
		if err != nil {
			writeAPIError(w, http.StatusInternalServerError, CodeSavePutFailed, err.Error())
			return
		}
		backend.put(name, data)
		writeJSON(w, http.StatusOK, &UploadResponse{Name: name, Hash: hashBytes(data), Size: int64(len(data))})
	})
	mux.HandleFunc("GET /api/v1/saves/{name}/data", func(w http.ResponseWriter, r *http.Request) {
		backend.record(r)
		data, ok := backend.get(r.PathValue("name"))
		if !ok {
			writeAPIError(w, http.StatusNotFound, CodeSaveNotFound, "no such save")
			return
		}
		w.Header().Set("Content-Type", "application/zip")
		_, _ = w.Write(data)
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server, backend
}

func newTestClient(t *testing.T, serverURL string) *Client {
	t.Helper()
	client, err := New(serverURL, "test-token")
	require.NoError(t, err)
	return client
}

func TestNew_RequiresServerURL(t *testing.T) {
	_, err := New("", "tok")
	assert.ErrorIs(t, err, ErrNoServerURL)
}

func TestClientOnlineStatus(t *testing.T) {
	server, _ := newTestBackend(t)
	client := newTestClient(t, server.URL)

	assert.True(t, client.OnlineStatus(t.Context()))

	// nothing listens here, should read as offline without retries
	dead := newTestClient(t, "http://127.0.0.1:1")
	assert.False(t, dead.OnlineStatus(t.Context()))
}

func TestClientSaveNames(t *testing.T) {
	server, backend := newTestBackend(t)
	backend.put("profile1", []byte("aaa"))
	backend.put("world", []byte("bbb"))

	client := newTestClient(t, server.URL)
	names, err := client.SaveNames(t.Context())
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"profile1", "world"}, names)

	assert.Equal(t, "Bearer test-token", backend.lastAuth, "bearer token should be sent")
	assert.Contains(t, backend.lastAgent, "SaveBox/", "user agent should identify the client")
}

func TestClientSaveNames_APIError(t *testing.T) {
	server, backend := newTestBackend(t)
	backend.failList = true

	client := newTestClient(t, server.URL)
	_, err := client.SaveNames(t.Context())
	require.Error(t, err)
	assert.True(t, HasErrorCode(err, CodeSaveListFailed), "backend code should survive wrapping: %v", err)
	assert.Contains(t, err.Error(), "list blew up")
}

func TestClientRemoteSaveHash(t *testing.T) {
	server, backend := newTestBackend(t)
	data := []byte("packed container bytes")
	backend.put("profile1", data)

	client := newTestClient(t, server.URL)

	t.Run("known save", func(t *testing.T) {
		hash, ok, err := client.RemoteSaveHash(t.Context(), "profile1")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, hashBytes(data), hash)
	})

	t.Run("unknown save is not an error", func(t *testing.T) {
		hash, ok, err := client.RemoteSaveHash(t.Context(), "nope")
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Empty(t, hash)
	})
}

func TestClientUploadSaveData(t *testing.T) {
	server, backend := newTestBackend(t)
	client := newTestClient(t, server.URL)

	container := filepath.Join(t.TempDir(), "profile1.savebox.zip")
	payload := []byte("zipped save payload")
	require.NoError(t, os.WriteFile(container, payload, 0o644))

	require.NoError(t, client.UploadSaveData(t.Context(), "profile1", container))

	stored, ok := backend.get("profile1")
	require.True(t, ok, "backend should have received the container")
	assert.Equal(t, payload, stored)
}

func TestClientUploadSaveData_MissingContainer(t *testing.T) {
	server, _ := newTestBackend(t)
	client := newTestClient(t, server.URL)

	err := client.UploadSaveData(t.Context(), "profile1", filepath.Join(t.TempDir(), "absent.zip"))
	assert.ErrorIs(t, err, ErrContainerNotFound)
}

func TestClientDownloadSaveData(t *testing.T) {
	server, backend := newTestBackend(t)
	payload := []byte("zipped save payload")
	backend.put("profile1", payload)

	client := newTestClient(t, server.URL)

	dest := filepath.Join(t.TempDir(), "nested", "dir", "profile1.zip")
	require.NoError(t, client.DownloadSaveData(t.Context(), "profile1", dest))

	got, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestClientDownloadSaveData_NotFound(t *testing.T) {
	server, _ := newTestBackend(t)
	client := newTestClient(t, server.URL)

	dest := filepath.Join(t.TempDir(), "profile1.zip")
	err := client.DownloadSaveData(t.Context(), "profile1", dest)
	require.Error(t, err)
	assert.True(t, HasErrorCode(err, CodeSaveNotFound), "status should map to a coded error: %v", err)
	assert.NoFileExists(t, dest, "error body must not be left behind as the download")
}

func TestClientLocalSaveHash(t *testing.T) {
	server, _ := newTestBackend(t)
	client := newTestClient(t, server.URL)

	container := filepath.Join(t.TempDir(), "c.zip")
	data := []byte("same bytes both sides")
	require.NoError(t, os.WriteFile(container, data, 0o644))

	hash, err := client.LocalSaveHash(t.Context(), container)
	require.NoError(t, err)
	assert.Equal(t, hashBytes(data), hash, "local and remote hashing must agree")
}
