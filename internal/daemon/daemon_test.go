package daemon

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	terrors "github.com/wwaihoe/TailorED/internal/errors"
	"github.com/wwaihoe/TailorED/internal/registry"
	"github.com/wwaihoe/TailorED/internal/search"
)

// testSocketPath returns a socket path short enough for sun_path.
func testSocketPath(t *testing.T) string {
	t.Helper()
	p := filepath.Join("/tmp", fmt.Sprintf("tailored-test-%d.sock", time.Now().UnixNano()))
	t.Cleanup(func() { os.Remove(p) })
	return p
}

// fakeService keeps sources in a map and answers searches by substring.
type fakeService struct {
	mu      sync.Mutex
	sources map[string]registry.SourceInfo
	texts   map[string]string
	next    int
	failAdd error
}

func newFakeService() *fakeService {
	return &fakeService{
		sources: map[string]registry.SourceInfo{},
		texts:   map[string]string{},
	}
}

func (f *fakeService) Search(_ context.Context, query string, k int) (*search.Result, error) {
	if query == "" {
		return nil, terrors.New(terrors.ErrCodeQueryEmpty, "query is empty", nil)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	res := &search.Result{Passages: []string{}, Filenames: []string{}, SourceIDs: []string{}}
	ids := make([]string, 0, len(f.texts))
	for id := range f.texts {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		if len(res.Passages) == k {
			break
		}
		res.Passages = append(res.Passages, f.texts[id])
		res.Filenames = append(res.Filenames, f.sources[id].Filename)
		res.SourceIDs = append(res.SourceIDs, id)
	}
	return res, nil
}

func (f *fakeService) Add(_ context.Context, content []byte, filename, _ string) (string, error) {
	if f.failAdd != nil {
		return "", f.failAdd
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.next++
	id := fmt.Sprintf("src-%d", f.next)
	f.sources[id] = registry.SourceInfo{SourceID: id, Filename: filename, TotalLength: len(content)}
	f.texts[id] = string(content)
	return id, nil
}

func (f *fakeService) Remove(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.sources, id)
	delete(f.texts, id)
	return nil
}

func (f *fakeService) List(context.Context) ([]registry.SourceInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]registry.SourceInfo, 0, len(f.sources))
	for _, s := range f.sources {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SourceID < out[j].SourceID })
	return out, nil
}

func (f *fakeService) Status(context.Context) (*search.Status, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return &search.Status{Sources: len(f.sources), Passages: len(f.texts), Scorer: "fake"}, nil
}

func testConfig(t *testing.T) Config {
	t.Helper()
	cfg := DefaultConfig()
	cfg.SocketPath = testSocketPath(t)
	cfg.PIDPath = filepath.Join(t.TempDir(), "tailored.pid")
	cfg.Timeout = 5 * time.Second
	cfg.ShutdownGracePeriod = time.Second
	return cfg
}

// startDaemon runs a daemon until the test ends and waits for its socket.
func startDaemon(t *testing.T, svc Service) (Config, *Client) {
	t.Helper()
	cfg := testConfig(t)
	d, err := NewDaemon(cfg, svc)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Error("daemon did not stop")
		}
	})

	client := NewClient(cfg)
	require.Eventually(t, client.IsRunning, 2*time.Second, 10*time.Millisecond)
	return cfg, client
}

func TestConfig_Validate(t *testing.T) {
	valid := DefaultConfig()
	require.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty socket", func(c *Config) { c.SocketPath = "" }},
		{"empty pid", func(c *Config) { c.PIDPath = "" }},
		{"zero timeout", func(c *Config) { c.Timeout = 0 }},
		{"zero grace", func(c *Config) { c.ShutdownGracePeriod = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestDefaultConfig_PathsInTailoredDir(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, ".tailored", filepath.Base(filepath.Dir(cfg.SocketPath)))
	assert.Equal(t, filepath.Dir(cfg.SocketPath), filepath.Dir(cfg.PIDPath))
}

func TestNewDaemon_RequiresService(t *testing.T) {
	_, err := NewDaemon(testConfig(t), nil)
	assert.Error(t, err)

	cfg := testConfig(t)
	cfg.Timeout = 0
	_, err = NewDaemon(cfg, newFakeService())
	assert.Error(t, err)
}

func TestDaemon_RoundTrip(t *testing.T) {
	// Given a running daemon
	svc := newFakeService()
	cfg, client := startDaemon(t, svc)
	ctx := context.Background()

	require.NoError(t, client.Ping(ctx))
	_, err := os.Stat(cfg.PIDPath)
	require.NoError(t, err, "pid file written")

	// When a document is added through the socket
	id, err := client.Add(ctx, AddParams{Filename: "notes.txt", Content: []byte("Mitochondria make ATP.")})
	require.NoError(t, err)
	assert.Equal(t, "src-1", id)

	// Then it is listed, searchable and counted
	list, err := client.List(ctx)
	require.NoError(t, err)
	require.Len(t, list.Sources, 1)
	assert.Equal(t, registry.SourceInfo{SourceID: id, Filename: "notes.txt", TotalLength: 22}, list.Sources[0])

	res, err := client.Search(ctx, SearchParams{Query: "ATP", K: 3})
	require.NoError(t, err)
	assert.Equal(t, []string{"Mitochondria make ATP."}, res.Passages)
	assert.Equal(t, []string{"notes.txt"}, res.Filenames)

	status, err := client.Status(ctx)
	require.NoError(t, err)
	assert.True(t, status.Running)
	assert.Equal(t, os.Getpid(), status.PID)
	require.NotNil(t, status.Engine)
	assert.Equal(t, 1, status.Engine.Sources)

	// When it is removed twice
	require.NoError(t, client.Remove(ctx, id))
	require.NoError(t, client.Remove(ctx, id))

	list, err = client.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, list.Sources)
}

func TestDaemon_ErrorCodesSurvive(t *testing.T) {
	svc := newFakeService()
	svc.failAdd = terrors.ExtractionError("no text in upload", nil)
	_, client := startDaemon(t, svc)

	_, err := client.Add(context.Background(), AddParams{Filename: "blank.txt", Content: []byte("   ")})
	require.Error(t, err)
	assert.True(t, terrors.IsKind(err, terrors.KindExtraction))
	assert.Equal(t, terrors.ErrCodeExtractionFailed, terrors.GetCode(err))
}

func TestDaemon_ClientValidation(t *testing.T) {
	client := NewClient(testConfig(t))
	ctx := context.Background()

	_, err := client.Search(ctx, SearchParams{Query: "  "})
	assert.Error(t, err)
	_, err = client.Add(ctx, AddParams{Filename: "x.txt"})
	assert.Error(t, err)
	assert.Error(t, client.Remove(ctx, ""))
}

func TestDaemon_AlreadyRunning(t *testing.T) {
	cfg, _ := startDaemon(t, newFakeService())

	second, err := NewDaemon(cfg, newFakeService())
	require.NoError(t, err)
	err = second.Run(context.Background())
	assert.ErrorIs(t, err, ErrAlreadyRunning)
}

func TestDaemon_StalePIDCleaned(t *testing.T) {
	cfg := testConfig(t)
	// A PID far beyond pid_max never exists.
	require.NoError(t, os.WriteFile(cfg.PIDPath, []byte("999999999"), 0o644))

	d, err := NewDaemon(cfg, newFakeService())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	client := NewClient(cfg)
	require.Eventually(t, client.IsRunning, 2*time.Second, 10*time.Millisecond)

	pid, err := NewPIDFile(cfg.PIDPath).Read()
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), pid)

	cancel()
	require.NoError(t, <-done)
	_, err = os.Stat(cfg.PIDPath)
	assert.True(t, os.IsNotExist(err), "pid file removed on shutdown")
}

func TestServer_RawProtocol(t *testing.T) {
	socketPath := testSocketPath(t)
	srv := NewServer(socketPath, newFakeService(), time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = srv.ListenAndServe(ctx) }()
	require.Eventually(t, func() bool {
		_, err := os.Stat(socketPath)
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)

	exchange := func(payload string) Response {
		conn, err := net.Dial("unix", socketPath)
		require.NoError(t, err)
		defer conn.Close()
		_, err = conn.Write([]byte(payload + "\n"))
		require.NoError(t, err)
		var resp Response
		require.NoError(t, json.NewDecoder(conn).Decode(&resp))
		return resp
	}

	tests := []struct {
		name    string
		payload string
		code    int
	}{
		{"garbage", "{not json", ErrCodeParseError},
		{"unknown method", `{"jsonrpc":"2.0","method":"compact","id":"1"}`, ErrCodeMethodNotFound},
		{"search without query", `{"jsonrpc":"2.0","method":"search","params":{"k":2},"id":"2"}`, ErrCodeInvalidParams},
		{"add without content", `{"jsonrpc":"2.0","method":"add","params":{"filename":"a.txt"},"id":"3"}`, ErrCodeInvalidParams},
		{"remove without id", `{"jsonrpc":"2.0","method":"remove","params":{},"id":"4"}`, ErrCodeInvalidParams},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := exchange(tt.payload)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.code, resp.Error.Code)
		})
	}

	resp := exchange(`{"jsonrpc":"2.0","method":"ping","id":"9"}`)
	assert.Nil(t, resp.Error)
	assert.Equal(t, "9", resp.ID)
}

func TestServer_ConcurrentClients(t *testing.T) {
	_, client := startDaemon(t, newFakeService())
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := client.Add(ctx, AddParams{Filename: fmt.Sprintf("f%d.txt", i), Content: []byte("text")})
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	list, err := client.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list.Sources, 20)
}
