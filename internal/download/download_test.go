package download

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/deskhand/deskhand/internal/catalog"
	"github.com/deskhand/deskhand/internal/store"
)

func newTestManager(t *testing.T) (*Manager, *store.Store) {
	t.Helper()
	st := store.New(t.TempDir(), zerolog.Nop())
	if err := st.EnsureDir(); err != nil {
		t.Fatal(err)
	}
	return New(st, nil, zerolog.Nop()), st
}

func testEntry(url string) catalog.Entry {
	return catalog.Entry{
		Name:     "Test Model",
		Filename: "test.gguf",
		URL:      url,
		Size:     "1.0KB",
	}
}

func TestDownload_SkipsExistingFile(t *testing.T) {
	var requests int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&requests, 1)
	}))
	defer srv.Close()

	m, st := newTestManager(t)
	if err := os.WriteFile(st.Path("test.gguf"), []byte("already here"), 0644); err != nil {
		t.Fatal(err)
	}

	path, err := m.Download(context.Background(), testEntry(srv.URL), nil)
	if err != nil {
		t.Fatalf("Download() error = %v", err)
	}
	if path != st.Path("test.gguf") {
		t.Errorf("Download() path = %q, want %q", path, st.Path("test.gguf"))
	}
	if n := atomic.LoadInt64(&requests); n != 0 {
		t.Errorf("server received %d requests, want 0", n)
	}
}

func TestDownload_ProgressReachesHundred(t *testing.T) {
	const totalBytes = 1000
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", strconv.Itoa(totalBytes))
		flusher := w.(http.Flusher)
		for i := 0; i < 10; i++ {
			w.Write(make([]byte, totalBytes/10))
			flusher.Flush()
		}
	}))
	defer srv.Close()

	m, _ := newTestManager(t)

	var percents []int
	path, err := m.Download(context.Background(), testEntry(srv.URL), func(p int) {
		percents = append(percents, p)
	})
	if err != nil {
		t.Fatalf("Download() error = %v", err)
	}

	if len(percents) == 0 {
		t.Fatal("no progress reported")
	}
	prev := 0
	for _, p := range percents {
		if p < prev {
			t.Fatalf("progress went backwards: %v", percents)
		}
		if p < 0 || p > 100 {
			t.Fatalf("progress out of range: %v", percents)
		}
		prev = p
	}
	if percents[len(percents)-1] != 100 {
		t.Errorf("final progress = %d, want 100", percents[len(percents)-1])
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("downloaded file missing: %v", err)
	}
	if info.Size() != totalBytes {
		t.Errorf("downloaded size = %d, want %d", info.Size(), totalBytes)
	}
}

func TestDownload_NoContentLengthNoProgress(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flusher := w.(http.Flusher)
		w.WriteHeader(http.StatusOK)
		flusher.Flush()
		for i := 0; i < 4; i++ {
			w.Write(make([]byte, 256))
			flusher.Flush()
		}
	}))
	defer srv.Close()

	m, st := newTestManager(t)

	calls := 0
	path, err := m.Download(context.Background(), testEntry(srv.URL), func(int) { calls++ })
	if err != nil {
		t.Fatalf("Download() error = %v", err)
	}
	if calls != 0 {
		t.Errorf("progress reported %d times without a content length, want 0", calls)
	}
	if !st.Exists("test.gguf") {
		t.Error("downloaded file missing")
	}
	if path != st.Path("test.gguf") {
		t.Errorf("Download() path = %q, want %q", path, st.Path("test.gguf"))
	}
}

func TestDownload_InterruptedTransferLeavesNothing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "1000")
		w.Write(make([]byte, 500))
		w.(http.Flusher).Flush()
		panic(http.ErrAbortHandler)
	}))
	defer srv.Close()

	m, st := newTestManager(t)

	_, err := m.Download(context.Background(), testEntry(srv.URL), nil)
	if err == nil {
		t.Fatal("Download() succeeded on a truncated response")
	}

	if st.Exists("test.gguf") {
		t.Error("partial download left a visible artifact")
	}
	if _, err := os.Stat(st.StagingPath("test.gguf")); !os.IsNotExist(err) {
		t.Error("partial download left a staging file")
	}
}

func TestDownload_RemoteStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "not found", http.StatusNotFound)
	}))
	defer srv.Close()

	m, st := newTestManager(t)

	_, err := m.Download(context.Background(), testEntry(srv.URL), nil)
	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("Download() error = %v, want StatusError", err)
	}
	if statusErr.Code != http.StatusNotFound {
		t.Errorf("StatusError.Code = %d, want %d", statusErr.Code, http.StatusNotFound)
	}
	if st.Exists("test.gguf") {
		t.Error("failed download left a visible artifact")
	}
}

func TestDownload_ConcurrentSameFileConflicts(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "4")
		w.(http.Flusher).Flush()
		close(entered)
		<-release
		w.Write([]byte("gguf"))
	}))
	defer srv.Close()

	m, _ := newTestManager(t)

	firstDone := make(chan error, 1)
	go func() {
		_, err := m.Download(context.Background(), testEntry(srv.URL), nil)
		firstDone <- err
	}()

	select {
	case <-entered:
	case <-time.After(5 * time.Second):
		t.Fatal("first download never reached the server")
	}

	_, err := m.Download(context.Background(), testEntry(srv.URL), nil)
	if !errors.Is(err, ErrConflict) {
		t.Errorf("concurrent Download() error = %v, want ErrConflict", err)
	}

	close(release)
	if err := <-firstDone; err != nil {
		t.Errorf("first download failed: %v", err)
	}
}

func TestDownload_CancellationCleansUp(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "1000")
		w.Write(make([]byte, 100))
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	}))
	defer srv.Close()

	m, st := newTestManager(t)

	ctx, cancel := context.WithCancel(context.Background())
	_, err := m.Download(ctx, testEntry(srv.URL), func(int) { cancel() })
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Download() error = %v, want context.Canceled", err)
	}

	if st.Exists("test.gguf") {
		t.Error("cancelled download left a visible artifact")
	}
	if _, err := os.Stat(st.StagingPath("test.gguf")); !os.IsNotExist(err) {
		t.Error("cancelled download left a staging file")
	}
}

func TestDownload_RejectsInvalidFilename(t *testing.T) {
	m, _ := newTestManager(t)

	entry := catalog.Entry{Name: "Bad", Filename: "../escape.gguf", URL: "http://localhost/x"}
	if _, err := m.Download(context.Background(), entry, nil); err == nil {
		t.Error("Download() accepted a traversal filename")
	}
}
