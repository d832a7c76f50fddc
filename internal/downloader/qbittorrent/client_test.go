package qbittorrent

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/slipstream/qbremote/internal/downloader/types"
	"github.com/slipstream/qbremote/internal/testutil"
)

func TestNewFromConfig_InvalidURL(t *testing.T) {
	for _, raw := range []string{"", "localhost:8080", "://nope"} {
		if _, err := NewFromConfig(&types.ClientConfig{URL: raw}, testutil.NopLogger()); err == nil {
			t.Errorf("expected error for URL %q", raw)
		}
	}
}

func TestClient_Test_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/v2/app/version" {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("v4.6.2"))
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := createClientFromServer(t, server, &types.ClientConfig{})

	if err := client.Test(context.Background()); err != nil {
		t.Errorf("expected no error, got %v", err)
	}

	version, err := client.Version(context.Background())
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if version != "v4.6.2" {
		t.Errorf("expected version 'v4.6.2', got %q", version)
	}
}

func TestClient_Test_AuthFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/v2/auth/login" {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("Fails."))
			return
		}
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	client := createClientFromServer(t, server, &types.ClientConfig{
		Username: "admin",
		Password: "wrong",
	})

	err := client.Test(context.Background())
	if !errors.Is(err, types.ErrAuthFailed) {
		t.Errorf("expected ErrAuthFailed, got %v", err)
	}
}

func TestClient_Login_Banned(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	client := createClientFromServer(t, server, &types.ClientConfig{
		Username: "admin",
		Password: "password",
	})

	_, err := client.Session().Authenticate(context.Background())
	if !errors.Is(err, types.ErrAuthFailed) {
		t.Fatalf("expected ErrAuthFailed, got %v", err)
	}
	if !strings.Contains(err.Error(), "banned") {
		t.Errorf("expected ban message, got %v", err)
	}
}

func TestClient_Login_PortSuffixedCookie(t *testing.T) {
	var gotCookie atomic.Value
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v2/auth/login":
			if err := r.ParseForm(); err != nil || r.Form.Get("username") != "admin" || r.Form.Get("password") != "secret" {
				w.Write([]byte("Fails."))
				return
			}
			if r.Header.Get("Referer") == "" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			http.SetCookie(w, &http.Cookie{Name: "QBT_SID_8080", Value: "abc", Path: "/"})
			w.Write([]byte("Ok."))
		case "/api/v2/app/version":
			gotCookie.Store(r.Header.Get("Cookie"))
			w.Write([]byte("v5.0.0"))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	client := createClientFromServer(t, server, &types.ClientConfig{
		Username: "admin",
		Password: "secret",
	})

	if _, err := client.Version(context.Background()); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if got, _ := gotCookie.Load().(string); got != "QBT_SID_8080=abc" {
		t.Errorf("expected cookie 'QBT_SID_8080=abc', got %q", got)
	}
	if token, ok := client.Session().CurrentToken(); !ok || token != "QBT_SID_8080=abc" {
		t.Errorf("expected cached token, got %q (valid=%v)", token, ok)
	}
}

func TestClient_Login_MissingCookie(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("Ok."))
	}))
	defer server.Close()

	client := createClientFromServer(t, server, &types.ClientConfig{
		Username: "admin",
		Password: "password",
	})

	_, err := client.Session().Authenticate(context.Background())
	if !errors.Is(err, types.ErrUnexpectedResponse) {
		t.Errorf("expected ErrUnexpectedResponse, got %v", err)
	}
}

func TestClient_List(t *testing.T) {
	var gotQuery atomic.Value
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/v2/torrents/info" {
			gotQuery.Store(r.URL.RawQuery)
			torrents := []qbitTorrent{
				{
					Hash:        "abc123",
					Name:        "Ubuntu 24.04",
					Size:        4294967296,
					Progress:    0.75,
					ETA:         3600,
					State:       "downloading",
					Category:    "linux",
					SavePath:    "/downloads/",
					ContentPath: "/downloads/Ubuntu 24.04/",
					Ratio:       0.5,
					DLSpeed:     1048576,
					UPSpeed:     524288,
					Completed:   3221225472,
					NumSeeds:    12,
					NumLeechs:   3,
					AddedOn:     1700000000,
				},
				{
					Hash:     "def456",
					Name:     "Debian 12",
					Size:     2147483648,
					ETA:      -1,
					State:    "pausedDL",
					Category: "linux",
					SavePath: "/downloads/",
				},
				{
					Hash:         "ghi789",
					Name:         "Fedora 40",
					Size:         3221225472,
					Progress:     1.0,
					ETA:          8640000,
					State:        "uploading",
					Category:     "linux",
					SavePath:     "/downloads/",
					Ratio:        2.5,
					UPSpeed:      1048576,
					Completed:    3221225472,
					CompletionOn: 1700003600,
				},
			}
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(torrents)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := createClientFromServer(t, server, &types.ClientConfig{})

	items, err := client.List(context.Background(), types.ListFilter{State: "all", Category: "linux"})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if q, _ := gotQuery.Load().(string); q != "category=linux&filter=all" {
		t.Errorf("unexpected query %q", q)
	}

	if len(items) != 3 {
		t.Fatalf("expected 3 items, got %d", len(items))
	}

	if items[0].ID != "abc123" {
		t.Errorf("expected ID 'abc123', got '%s'", items[0].ID)
	}
	if items[0].Status != types.StatusDownloading {
		t.Errorf("expected StatusDownloading, got %s", items[0].Status)
	}
	if items[0].Progress != 75.0 {
		t.Errorf("expected progress 75.0, got %f", items[0].Progress)
	}
	if items[0].ETA != 3600 {
		t.Errorf("expected ETA 3600, got %d", items[0].ETA)
	}
	if items[0].Seeders != 12 || items[0].Leechers != 3 {
		t.Errorf("expected 12/3 peers, got %d/%d", items[0].Seeders, items[0].Leechers)
	}
	if !items[0].AddedAt.Equal(time.Unix(1700000000, 0)) {
		t.Errorf("unexpected AddedAt %v", items[0].AddedAt)
	}

	if items[1].Status != types.StatusPaused {
		t.Errorf("expected StatusPaused, got %s", items[1].Status)
	}

	if items[2].Status != types.StatusSeeding {
		t.Errorf("expected StatusSeeding, got %s", items[2].Status)
	}
	if items[2].ETA != -1 {
		t.Errorf("expected ETA -1 (from 8640000), got %d", items[2].ETA)
	}
	if items[2].CompletedAt.IsZero() {
		t.Error("expected CompletedAt to be set")
	}
}

func TestClient_List_Empty(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte("[]"))
	}))
	defer server.Close()

	client := createClientFromServer(t, server, &types.ClientConfig{})

	items, err := client.List(context.Background(), types.ListFilter{})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(items) != 0 {
		t.Errorf("expected 0 items, got %d", len(items))
	}
}

func TestClient_Get(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("hashes") == "abc123" {
			w.Write([]byte(`[{"hash":"abc123","name":"Ubuntu","state":"stalledUP"}]`))
			return
		}
		w.Write([]byte("[]"))
	}))
	defer server.Close()

	client := createClientFromServer(t, server, &types.ClientConfig{})

	item, err := client.Get(context.Background(), "ABC123")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if item.Name != "Ubuntu" || item.Status != types.StatusSeeding {
		t.Errorf("unexpected item %+v", item)
	}

	_, err = client.Get(context.Background(), "missing")
	if !errors.Is(err, types.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestClient_Add_URL(t *testing.T) {
	var gotForm atomic.Value
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/v2/torrents/add" && r.Method == http.MethodPost {
			r.ParseForm()
			gotForm.Store(map[string][]string(r.PostForm))
			w.Write([]byte("Ok."))
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := createClientFromServer(t, server, &types.ClientConfig{})

	hash, err := client.Add(context.Background(), &types.AddOptions{
		URL:      "magnet:?xt=urn:btih:ABCDEF",
		InfoHash: "ABCDEF",
		Category: "linux",
		SavePath: "/data",
		Paused:   true,
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if hash != "abcdef" {
		t.Errorf("expected hash 'abcdef', got %q", hash)
	}

	form, _ := gotForm.Load().(map[string][]string)
	want := map[string]string{
		"urls":     "magnet:?xt=urn:btih:ABCDEF",
		"category": "linux",
		"savepath": "/data",
		"paused":   "true",
		"stopped":  "true",
	}
	for k, v := range want {
		if got := form[k]; len(got) != 1 || got[0] != v {
			t.Errorf("form[%s] = %v, want %q", k, got, v)
		}
	}
}

func TestClient_Add_FileContent(t *testing.T) {
	var gotName, gotContent atomic.Value
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v2/torrents/add" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		file, header, err := r.FormFile("torrents")
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		defer file.Close()
		content, _ := io.ReadAll(file)
		gotName.Store(header.Filename)
		gotContent.Store(string(content))
		w.Write([]byte("Ok."))
	}))
	defer server.Close()

	client := createClientFromServer(t, server, &types.ClientConfig{})

	_, err := client.Add(context.Background(), &types.AddOptions{
		FileContent: []byte("d8:announce0:e"),
		FileName:    "test.torrent",
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if name, _ := gotName.Load().(string); name != "test.torrent" {
		t.Errorf("expected file name 'test.torrent', got %q", name)
	}
	if content, _ := gotContent.Load().(string); content != "d8:announce0:e" {
		t.Errorf("unexpected content %q", content)
	}
}

func TestClient_Add_Rejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("Fails."))
	}))
	defer server.Close()

	client := createClientFromServer(t, server, &types.ClientConfig{})

	_, err := client.Add(context.Background(), &types.AddOptions{URL: "http://example.org/x.torrent"})
	if !errors.Is(err, types.ErrUnexpectedResponse) {
		t.Errorf("expected ErrUnexpectedResponse, got %v", err)
	}

	_, err = client.Add(context.Background(), &types.AddOptions{})
	if !errors.Is(err, types.ErrInvalidSource) {
		t.Errorf("expected ErrInvalidSource, got %v", err)
	}
}

func TestClient_Remove(t *testing.T) {
	var gotHashes, gotDelete atomic.Value
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/v2/torrents/delete" {
			r.ParseForm()
			gotHashes.Store(r.PostForm.Get("hashes"))
			gotDelete.Store(r.PostForm.Get("deleteFiles"))
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := createClientFromServer(t, server, &types.ClientConfig{})

	if err := client.Remove(context.Background(), []string{"ABC", " def "}, true); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if h, _ := gotHashes.Load().(string); h != "abc|def" {
		t.Errorf("expected hashes 'abc|def', got %q", h)
	}
	if d, _ := gotDelete.Load().(string); d != "true" {
		t.Errorf("expected deleteFiles 'true', got %q", d)
	}
}

func TestClient_Pause(t *testing.T) {
	var called atomic.Bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/v2/torrents/pause" {
			called.Store(true)
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := createClientFromServer(t, server, &types.ClientConfig{})

	if err := client.Pause(context.Background(), []string{"abc123"}); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !called.Load() {
		t.Error("expected pause endpoint to be called")
	}
}

func TestClient_Resume_FallsBackToStart(t *testing.T) {
	var (
		mu    sync.Mutex
		paths []string
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		paths = append(paths, r.URL.Path)
		mu.Unlock()
		if r.URL.Path == "/api/v2/torrents/start" {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := createClientFromServer(t, server, &types.ClientConfig{})

	if err := client.Resume(context.Background(), []string{"abc123"}); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	want := []string{"/api/v2/torrents/resume", "/api/v2/torrents/start"}
	mu.Lock()
	defer mu.Unlock()
	if strings.Join(paths, ",") != strings.Join(want, ",") {
		t.Errorf("expected paths %v, got %v", want, paths)
	}
}

func TestClient_GetDownloadDir(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/v2/app/preferences" {
			w.Write([]byte(`{"save_path":"/downloads"}`))
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := createClientFromServer(t, server, &types.ClientConfig{})

	dir, err := client.GetDownloadDir(context.Background())
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if dir != "/downloads" {
		t.Errorf("expected '/downloads', got %q", dir)
	}
}

func TestClient_Files(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/v2/torrents/files" && r.URL.Query().Get("hash") == "abc" {
			w.Write([]byte(`[
				{"index":0,"name":"a.iso","size":100,"progress":0.5,"priority":1},
				{"index":3,"name":"b.txt","size":5,"progress":1,"priority":0}
			]`))
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := createClientFromServer(t, server, &types.ClientConfig{})

	files, err := client.Files(context.Background(), "ABC")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("expected 2 files, got %d", len(files))
	}
	if files[0].Progress != 50 || files[0].Priority != types.PriorityNormal {
		t.Errorf("unexpected first file %+v", files[0])
	}
	if files[1].Index != 3 || files[1].Priority != types.PrioritySkip {
		t.Errorf("unexpected second file %+v", files[1])
	}

	_, err = client.Files(context.Background(), "missing")
	if !errors.Is(err, types.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestClient_SetFilePriority(t *testing.T) {
	var gotForm atomic.Value
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/v2/torrents/filePrio" {
			r.ParseForm()
			gotForm.Store(r.PostForm.Encode())
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := createClientFromServer(t, server, &types.ClientConfig{})

	if err := client.SetFilePriority(context.Background(), "ABC", []int{0, 2}, types.PriorityHigh); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if form, _ := gotForm.Load().(string); form != "hash=abc&id=0%7C2&priority=6" {
		t.Errorf("unexpected form %q", form)
	}

	err := client.SetFilePriority(context.Background(), "abc", []int{0}, types.FilePriority(3))
	if !errors.Is(err, types.ErrInvalidFilePriority) {
		t.Errorf("expected ErrInvalidFilePriority, got %v", err)
	}
}

func TestClient_Conflict(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		w.Write([]byte("Torrent is not a valid"))
	}))
	defer server.Close()

	client := createClientFromServer(t, server, &types.ClientConfig{})

	err := client.SetFilePriority(context.Background(), "abc", []int{0}, types.PrioritySkip)
	if !errors.Is(err, types.ErrConflict) {
		t.Errorf("expected ErrConflict, got %v", err)
	}
}

func TestClient_SessionReuse(t *testing.T) {
	var loginCount atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/v2/auth/login" {
			loginCount.Add(1)
			http.SetCookie(w, &http.Cookie{
				Name:  "SID",
				Value: "test-session",
				Path:  "/",
			})
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("Ok."))
			return
		}
		if r.URL.Path == "/api/v2/torrents/info" {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte("[]"))
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := createClientFromServer(t, server, &types.ClientConfig{
		Username: "admin",
		Password: "password",
	})

	_, err := client.List(context.Background(), types.ListFilter{})
	if err != nil {
		t.Fatalf("first List() failed: %v", err)
	}

	_, err = client.List(context.Background(), types.ListFilter{})
	if err != nil {
		t.Fatalf("second List() failed: %v", err)
	}

	if loginCount.Load() != 1 {
		t.Errorf("expected 1 login call, got %d", loginCount.Load())
	}
}

func TestClient_SessionReauth(t *testing.T) {
	var loginCount atomic.Int32
	var listCount atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/v2/auth/login" {
			loginCount.Add(1)
			http.SetCookie(w, &http.Cookie{
				Name:  "SID",
				Value: "test-session",
				Path:  "/",
			})
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("Ok."))
			return
		}
		if r.URL.Path == "/api/v2/torrents/info" {
			count := listCount.Add(1)
			if count == 2 {
				w.WriteHeader(http.StatusForbidden)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte("[]"))
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := createClientFromServer(t, server, &types.ClientConfig{
		Username: "admin",
		Password: "password",
	})

	_, err := client.List(context.Background(), types.ListFilter{})
	if err != nil {
		t.Fatalf("first List() failed: %v", err)
	}

	_, err = client.List(context.Background(), types.ListFilter{})
	if err != nil {
		t.Fatalf("second List() (with reauth) failed: %v", err)
	}

	if loginCount.Load() != 2 {
		t.Errorf("expected 2 login calls, got %d", loginCount.Load())
	}

	if listCount.Load() != 3 {
		t.Errorf("expected 3 list calls (first success, second 403, third retry success), got %d", listCount.Load())
	}
}

func TestMapState(t *testing.T) {
	tests := []struct {
		state string
		want  types.Status
	}{
		{"downloading", types.StatusDownloading},
		{"stalledDL", types.StatusDownloading},
		{"metaDL", types.StatusDownloading},
		{"uploading", types.StatusSeeding},
		{"stalledUP", types.StatusSeeding},
		{"pausedDL", types.StatusPaused},
		{"stoppedDL", types.StatusPaused},
		{"pausedUP", types.StatusCompleted},
		{"stoppedUP", types.StatusCompleted},
		{"queuedDL", types.StatusQueued},
		{"checkingResumeData", types.StatusChecking},
		{"missingFiles", types.StatusError},
		{"somethingNew", types.StatusUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.state, func(t *testing.T) {
			if got := mapState(tt.state); got != tt.want {
				t.Errorf("mapState(%q) = %s, want %s", tt.state, got, tt.want)
			}
		})
	}
}

func createClientFromServer(t *testing.T, server *httptest.Server, baseCfg *types.ClientConfig) *Client {
	t.Helper()

	cfg := *baseCfg
	cfg.URL = server.URL

	client, err := NewFromConfig(&cfg, testutil.NewTestLogger(t))
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}
	return client
}
