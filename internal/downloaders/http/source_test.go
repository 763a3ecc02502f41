package rangehttp

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tanq16/rangedl/internal/breakpoint"
	"github.com/tanq16/rangedl/internal/orchestrator"
	"github.com/tanq16/rangedl/internal/segment"
	"github.com/tanq16/rangedl/internal/utils"
)

func testPayload(n int) []byte {
	out := make([]byte, n)
	for i := range out {
		out[i] = byte(i*7 + i/256)
	}
	return out
}

func rangeServer(t *testing.T, data []byte) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Disposition", `attachment; filename="report 2024.bin"`)
		http.ServeContent(w, r, "data.bin", time.Time{}, bytes.NewReader(data))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestInspect(t *testing.T) {
	data := testPayload(4096)
	srv := rangeServer(t, data)
	src := New(utils.HTTPClientConfig{})

	info, err := src.Inspect(context.Background(), srv.URL+"/files/data.bin")
	require.NoError(t, err)
	assert.Equal(t, int64(4096), info.Size)
	assert.Equal(t, "report 2024.bin", info.FileName)
	assert.True(t, info.RangeSupported)

	size, err := src.ContentLength(context.Background(), srv.URL+"/files/data.bin")
	require.NoError(t, err)
	assert.Equal(t, int64(4096), size)
}

func TestInspectErrors(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()
	src := New(utils.HTTPClientConfig{})

	_, err := src.ContentLength(context.Background(), srv.URL+"/missing")
	assert.ErrorIs(t, err, utils.ErrUnexpectedStatus)

	_, err = src.ContentLength(context.Background(), "ftp://example.com/file")
	assert.ErrorIs(t, err, utils.ErrUnsupportedScheme)
}

func TestFileNameFromDisposition(t *testing.T) {
	assert.Equal(t, "a_b.txt", fileNameFromDisposition(`attachment; filename="a/b.txt"`))
	assert.Equal(t, "na_ve.txt", fileNameFromDisposition(`attachment; filename*=UTF-8''na%C3%AFve.txt`))
	assert.Empty(t, fileNameFromDisposition(""))
	assert.Empty(t, fileNameFromDisposition("inline"))
}

func TestFetchRange(t *testing.T) {
	data := testPayload(1000)
	srv := rangeServer(t, data)
	src := New(utils.HTTPClientConfig{})

	body, err := src.Fetch(context.Background(), srv.URL, 100, 199)
	require.NoError(t, err)
	got, err := io.ReadAll(body)
	require.NoError(t, body.Close())
	require.NoError(t, err)
	assert.Equal(t, data[100:200], got)
}

func TestFetchWithoutRangeSupport(t *testing.T) {
	data := testPayload(64)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(data)
	}))
	defer srv.Close()
	src := New(utils.HTTPClientConfig{})

	body, err := src.Fetch(context.Background(), srv.URL, 0, 31)
	require.NoError(t, err)
	body.Close()

	_, err = src.Fetch(context.Background(), srv.URL, 32, 63)
	assert.ErrorIs(t, err, utils.ErrRangeRequestsNotSupported)
}

func TestSegmentedDownloadEndToEnd(t *testing.T) {
	data := testPayload(300_000)
	srv := rangeServer(t, data)
	dir := t.TempDir()
	src := New(utils.HTTPClientConfig{Headers: map[string]string{"X-Test": "1"}})

	o := orchestrator.New(orchestrator.Options{
		Prober:    src,
		NewWorker: segment.Factory(src),
		Store:     breakpoint.NewFileStore(dir),
		OutputDir: dir,
	})
	defer o.Close()

	require.NoError(t, o.Start(context.Background(), srv.URL+"/files/data.bin", 7))
	finished := false
	timeout := time.After(10 * time.Second)
	for !finished {
		select {
		case ev := <-o.Events():
			require.NotEqual(t, orchestrator.EventSegmentError, ev.Kind, ev.Message)
			finished = ev.Kind == orchestrator.EventFinished
		case <-timeout:
			t.Fatal("download did not finish")
		}
	}

	got, err := os.ReadFile(filepath.Join(dir, "data.bin"))
	require.NoError(t, err)
	assert.Equal(t, data, got)
	_, err = os.Stat(filepath.Join(dir, breakpoint.Key("data.bin")))
	assert.True(t, os.IsNotExist(err))
}

// stallingServer serves ranges of data. While stall is set it sends only the
// first half of every requested range and then holds the connection open.
type stallingServer struct {
	*httptest.Server
	data  []byte
	stall atomic.Bool

	mu     sync.Mutex
	ranges []string
}

func newStallingServer(t *testing.T, data []byte) *stallingServer {
	t.Helper()
	s := &stallingServer{data: data}
	s.stall.Store(true)
	release := make(chan struct{})
	s.Server = httptest.NewServer(http.HandlerFunc(s.serve(release)))
	t.Cleanup(s.Close)
	t.Cleanup(func() { close(release) })
	return s
}

func (s *stallingServer) serve(release <-chan struct{}) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Accept-Ranges", "bytes")
		if r.Method == http.MethodHead {
			w.Header().Set("Content-Length", strconv.Itoa(len(s.data)))
			return
		}
		var from, to int
		if _, err := fmt.Sscanf(r.Header.Get("Range"), "bytes=%d-%d", &from, &to); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		s.mu.Lock()
		s.ranges = append(s.ranges, r.Header.Get("Range"))
		s.mu.Unlock()

		part := s.data[from : to+1]
		w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", from, to, len(s.data)))
		w.Header().Set("Content-Length", strconv.Itoa(len(part)))
		w.WriteHeader(http.StatusPartialContent)
		if !s.stall.Load() {
			w.Write(part)
			return
		}
		w.Write(part[:len(part)/2])
		w.(http.Flusher).Flush()
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}
}

func (s *stallingServer) requested() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.ranges...)
}

func (s *stallingServer) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ranges = nil
}

func TestPausedDownloadResumesInNewSession(t *testing.T) {
	data := testPayload(2_000_000)
	srv := newStallingServer(t, data)
	dir := t.TempDir()
	src := New(utils.HTTPClientConfig{})
	store := breakpoint.NewFileStore(dir)
	link := srv.URL + "/files/big.bin"
	newSession := func() *orchestrator.Orchestrator {
		return orchestrator.New(orchestrator.Options{
			Prober:    src,
			NewWorker: segment.Factory(src),
			Store:     store,
			OutputDir: dir,
		})
	}

	// Nobody reads the first session's events.
	first := newSession()
	require.NoError(t, first.Start(context.Background(), link, 4))
	require.Eventually(t, func() bool { return first.Snapshot().Ready == 1_000_000 }, 10*time.Second, 10*time.Millisecond)
	first.Pause()
	require.NoError(t, first.Close())

	records, err := store.Load(breakpoint.Key("big.bin"))
	require.NoError(t, err)
	require.Len(t, records, 4)
	for i, r := range records {
		assert.Equal(t, int64(i)*500_000, r.Start, "segment %d", i)
		assert.Equal(t, int64(250_000), r.Ready, "segment %d", i)
		assert.Equal(t, link, r.URL)
	}

	srv.stall.Store(false)
	srv.reset()
	second := newSession()
	defer second.Close()
	require.NoError(t, second.Start(context.Background(), link, 4))
	finished := false
	timeout := time.After(10 * time.Second)
	for !finished {
		select {
		case ev := <-second.Events():
			require.NotEqual(t, orchestrator.EventSegmentError, ev.Kind, ev.Message)
			finished = ev.Kind == orchestrator.EventFinished
		case <-timeout:
			t.Fatal("resumed download did not finish")
		}
	}

	assert.ElementsMatch(t, []string{
		"bytes=250000-499999",
		"bytes=750000-999999",
		"bytes=1250000-1499999",
		"bytes=1750000-1999999",
	}, srv.requested(), "only the missing halves are fetched again")
	got, err := os.ReadFile(filepath.Join(dir, "big.bin"))
	require.NoError(t, err)
	assert.Equal(t, data, got)
	assert.False(t, store.Exists(breakpoint.Key("big.bin")))
}
