package crawler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"campusinfo/internal/config"
	"campusinfo/internal/storage"
)

type site struct {
	srv   *httptest.Server
	mu    sync.Mutex
	hits  []string
	pages map[string]string
}

func newSite(t *testing.T) *site {
	t.Helper()
	s := &site{pages: map[string]string{
		"/": `<html><head><title>Beranda</title></head><body>
			<p>Selamat datang di kampus.</p>
			<a href="/a">A</a>
			<a href="https://other.com/x">luar</a>
			<a href="mailto:info@kampus.test">surat</a>
			<a href="/b">B</a></body></html>`,
		"/a":      `<html><head><title>Halaman A</title></head><body><p>Informasi akademik.</p><a href="/a/deep">lebih</a><a href="/">home</a></body></html>`,
		"/b":      `<html><head><title>Halaman B</title></head><body><p>Informasi biaya kuliah.</p></body></html>`,
		"/a/deep": `<html><head><title>Dalam</title></head><body><p>Terlalu dalam.</p></body></html>`,
	}}
	s.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			http.NotFound(w, r)
			return
		}
		s.mu.Lock()
		s.hits = append(s.hits, r.URL.Path)
		body, ok := s.pages[r.URL.Path]
		s.mu.Unlock()
		if !ok {
			http.NotFound(w, r)
			return
		}
		if body == "500" {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(s.srv.Close)
	return s
}

func (s *site) paths() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.hits...)
}

func (s *site) opts(maxDepth, maxPages int) Options {
	return Options{
		SeedURL:  s.srv.URL + "/",
		MaxDepth: maxDepth,
		MaxPages: maxPages,
		Delay:    time.Second,
		Timeout:  5 * time.Second,
	}
}

func noSleep(calls *int32) Option {
	return WithSleep(func(ctx context.Context, d time.Duration) error {
		atomic.AddInt32(calls, 1)
		return ctx.Err()
	})
}

func storedURLs(docs []storage.Document) []string {
	out := make([]string, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.SourceURL())
	}
	return out
}

func TestRunDepthOneInDocumentOrder(t *testing.T) {
	s := newSite(t)
	store := storage.NewMemory()
	var sleeps int32

	stats, err := New(s.opts(1, 0), store, WithHTTPClient(s.srv.Client()), noSleep(&sleeps)).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"/", "/a", "/b"}, s.paths())
	assert.Equal(t, []string{s.srv.URL + "/", s.srv.URL + "/a", s.srv.URL + "/b"}, storedURLs(store.All()))
	assert.Equal(t, 3, stats.Visited)
	assert.Equal(t, 3, stats.Stored)
	assert.Equal(t, 3, stats.Queued)
	assert.Equal(t, int32(2), atomic.LoadInt32(&sleeps), "delay precedes every fetch except the first")

	first := store.All()[0]
	assert.Equal(t, "Beranda", first.Title)
	assert.Equal(t, storage.CategoryAuto, first.Category)
	assert.Equal(t, storage.SourceAutoCrawl, first.SourceType)
	assert.Equal(t, storage.StatusSuccess, first.Status)
	assert.Nil(t, first.CreatedBy)
	require.NotNil(t, first.WordCount)
	assert.Equal(t, len(strings.Fields(first.Content)), *first.WordCount)
}

func TestRunDepthTwoGoesDeep(t *testing.T) {
	s := newSite(t)
	store := storage.NewMemory()
	var sleeps int32

	_, err := New(s.opts(2, 0), store, WithHTTPClient(s.srv.Client()), noSleep(&sleeps)).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"/", "/a", "/a/deep", "/b"}, s.paths())
}

func TestRunSeedWithoutTrailingSlash(t *testing.T) {
	s := newSite(t)
	store := storage.NewMemory()
	var sleeps int32

	o := s.opts(2, 0)
	o.SeedURL = s.srv.URL
	stats, err := New(o, store, WithHTTPClient(s.srv.Client()), noSleep(&sleeps)).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"/", "/a", "/a/deep", "/b"}, s.paths())
	assert.Equal(t, []string{s.srv.URL + "/", s.srv.URL + "/a", s.srv.URL + "/a/deep", s.srv.URL + "/b"}, storedURLs(store.All()))
	assert.Equal(t, 4, stats.Visited)
}

func TestRunDepthZeroFetchesSeedOnly(t *testing.T) {
	s := newSite(t)
	store := storage.NewMemory()
	var sleeps int32

	stats, err := New(s.opts(0, 0), store, WithHTTPClient(s.srv.Client()), noSleep(&sleeps)).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"/"}, s.paths())
	assert.Equal(t, 1, stats.Stored)
	assert.Zero(t, atomic.LoadInt32(&sleeps))
}

func TestRunMaxPagesIsExact(t *testing.T) {
	s := newSite(t)
	store := storage.NewMemory()
	var sleeps int32

	stats, err := New(s.opts(2, 2), store, WithHTTPClient(s.srv.Client()), noSleep(&sleeps)).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"/", "/a"}, s.paths())
	assert.Equal(t, 2, stats.Visited)
	assert.Len(t, store.All(), 2)
}

func TestRunSeedOutsideOrigin(t *testing.T) {
	s := newSite(t)
	store := storage.NewMemory()
	opts := s.opts(2, 0)
	opts.AllowedOrigin = "https://kampus.test/"

	stats, err := New(opts, store, WithHTTPClient(s.srv.Client())).Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, s.paths())
	assert.Empty(t, store.All())
	assert.Zero(t, stats.Visited)
}

func TestRunSeedOutsideConfiguredOrigin(t *testing.T) {
	s := newSite(t)
	store := storage.NewMemory()

	opts := OptionsFromConfig(config.Crawl{
		SeedURL:       s.srv.URL + "/",
		AllowedOrigin: "https://kampus.test",
		MaxDepth:      2,
		FetchTimeout:  5 * time.Second,
	}, 0)
	assert.Equal(t, "https://kampus.test", opts.AllowedOrigin)

	stats, err := New(opts, store, WithHTTPClient(s.srv.Client())).Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, s.paths())
	assert.Zero(t, stats.Visited)
}

func TestRunTwiceStoresDuplicates(t *testing.T) {
	s := newSite(t)
	store := storage.NewMemory()
	var sleeps int32

	for i := 0; i < 2; i++ {
		_, err := New(s.opts(1, 0), store, WithHTTPClient(s.srv.Client()), noSleep(&sleeps)).Run(context.Background())
		require.NoError(t, err)
	}
	assert.Len(t, store.All(), 6)
}

func TestRunContinuesWhenInsertFails(t *testing.T) {
	s := newSite(t)
	store := storage.NewMemory()
	store.InsertErr = errors.New("disk full")
	var sleeps int32

	stats, err := New(s.opts(1, 0), store, WithHTTPClient(s.srv.Client()), noSleep(&sleeps)).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Visited)
	assert.Zero(t, stats.Stored)
	assert.Equal(t, []string{"/", "/a", "/b"}, s.paths())
}

func TestRunSkipsFailedPages(t *testing.T) {
	s := newSite(t)
	s.pages["/a"] = "500"
	store := storage.NewMemory()
	var sleeps int32

	stats, err := New(s.opts(2, 0), store, WithHTTPClient(s.srv.Client()), noSleep(&sleeps)).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Failed)
	assert.Equal(t, []string{s.srv.URL + "/", s.srv.URL + "/b"}, storedURLs(store.All()))
	assert.NotContains(t, s.paths(), "/a/deep")
}

func TestRunHonoursRobots(t *testing.T) {
	s := newSite(t)
	robots := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			_, _ = w.Write([]byte("User-agent: *\nDisallow: /b\n"))
			return
		}
		s.srv.Config.Handler.ServeHTTP(w, r)
	}))
	defer robots.Close()

	store := storage.NewMemory()
	opts := Options{SeedURL: robots.URL + "/", MaxDepth: 1, RespectRobots: true}
	var sleeps int32

	stats, err := New(opts, store, WithHTTPClient(robots.Client()), noSleep(&sleeps)).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Disallowed)
	assert.Equal(t, []string{"/", "/a"}, s.paths())
}

type fakeEmbedder struct {
	failOn string
}

func (f fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if strings.Contains(text, f.failOn) {
		return nil, errors.New("rate limited")
	}
	return []float32{1, 0, 0}, nil
}

func TestRunEmbedsPages(t *testing.T) {
	s := newSite(t)
	store := storage.NewMemory()
	var sleeps int32

	_, err := New(s.opts(1, 0), store, WithHTTPClient(s.srv.Client()), noSleep(&sleeps),
		WithEmbedder(fakeEmbedder{failOn: "biaya"})).Run(context.Background())
	require.NoError(t, err)

	docs := store.All()
	require.Len(t, docs, 3)
	assert.Len(t, docs[0].Embedding, 3)
	assert.Len(t, docs[1].Embedding, 3)
	assert.Nil(t, docs[2].Embedding, "embedding failure still stores the page")
}

func TestRunStopsOnCancel(t *testing.T) {
	s := newSite(t)
	store := storage.NewMemory()
	ctx, cancel := context.WithCancel(context.Background())

	c := New(s.opts(2, 0), store, WithHTTPClient(s.srv.Client()), WithSleep(func(ctx context.Context, d time.Duration) error {
		cancel()
		return ctx.Err()
	}))
	_, err := c.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []string{"/"}, s.paths())
}

func TestFetchErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewFetcher(srv.Client(), "test").Fetch(context.Background(), srv.URL)
	require.Error(t, err)
	var fe *FetchError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, http.StatusServiceUnavailable, fe.StatusCode)
}

func TestFetchCapsBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "CampusInfoBot/1.0", r.UserAgent())
		_, _ = w.Write([]byte(strings.Repeat("x", maxBodyBytes+1024)))
	}))
	defer srv.Close()

	b, err := NewFetcher(srv.Client(), "CampusInfoBot/1.0").Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Len(t, b, maxBodyBytes)
}
