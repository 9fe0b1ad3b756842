package fsbridge

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"toolhub/internal/domain"
)

type fakeRemote struct {
	mu         sync.Mutex
	calls      []string
	lastParams json.RawMessage
	payload    json.RawMessage
	err        error
}

func (f *fakeRemote) Call(_ context.Context, method string, params any) (json.RawMessage, error) {
	raw, _ := json.Marshal(params)
	f.mu.Lock()
	f.calls = append(f.calls, method)
	f.lastParams = raw
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.payload, nil
}

func (f *fakeRemote) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeFallback struct {
	content string
	found   []string

	reads  int
	writes int
	finds  int
}

func (f *fakeFallback) ReadTextFile(context.Context, string) (string, error) {
	f.reads++
	return f.content, nil
}

func (f *fakeFallback) WriteTextFile(context.Context, string, string) error {
	f.writes++
	return nil
}

func (f *fakeFallback) FindFiles(context.Context, string, string) ([]string, error) {
	f.finds++
	return f.found, nil
}

func TestAdapterReadUnsupportedNeverTouchesRemote(t *testing.T) {
	remote := &fakeRemote{payload: json.RawMessage(`{"content":"remote"}`)}
	fallback := &fakeFallback{content: "hello"}
	adapter := New(remote, domain.CapabilitySet{}, fallback, zap.NewNop())

	content, err := adapter.ReadTextFile(context.Background(), "f")
	require.NoError(t, err)
	require.Equal(t, "hello", content)
	require.Equal(t, 1, fallback.reads)
	require.Zero(t, remote.callCount())
}

func TestAdapterReadSupportedUsesRemote(t *testing.T) {
	remote := &fakeRemote{payload: json.RawMessage(`{"content":"from the provider"}`)}
	fallback := &fakeFallback{content: "local"}
	adapter := New(remote, domain.CapabilitySet{ReadTextFile: true}, fallback, zap.NewNop())

	content, err := adapter.ReadTextFile(context.Background(), "src/main.go")
	require.NoError(t, err)
	require.Equal(t, "from the provider", content)
	require.Zero(t, fallback.reads)

	require.Equal(t, []string{"fs/read_text_file"}, remote.calls)
	require.JSONEq(t, `{"path":"src/main.go"}`, string(remote.lastParams))
}

func TestAdapterRemoteNotFoundTranslated(t *testing.T) {
	remote := &fakeRemote{err: &domain.ProtocolError{Code: domain.CodeResourceNotFound, Message: "no such resource"}}
	adapter := New(remote, domain.CapabilitySet{ReadTextFile: true}, &fakeFallback{}, zap.NewNop())

	_, err := adapter.ReadTextFile(context.Background(), "/x/y.txt")
	require.Error(t, err)
	require.ErrorIs(t, err, fs.ErrNotExist)

	var pathErr *fs.PathError
	require.ErrorAs(t, err, &pathErr)
	require.Equal(t, "/x/y.txt", pathErr.Path)
	require.Equal(t, "read", pathErr.Op)

	// Same shape callers already handle for the local fallback.
	require.True(t, os.IsNotExist(err))
}

func TestAdapterRemoteErrorsPropagateVerbatim(t *testing.T) {
	remote := &fakeRemote{err: &domain.ProtocolError{Code: domain.CodeInternalError, Message: "provider exploded"}}
	adapter := New(remote, domain.CapabilitySet{ReadTextFile: true}, &fakeFallback{}, zap.NewNop())

	_, err := adapter.ReadTextFile(context.Background(), "f")
	require.Error(t, err)

	perr, ok := domain.AsProtocolError(err)
	require.True(t, ok)
	require.EqualValues(t, domain.CodeInternalError, perr.Code)
	require.Equal(t, "provider exploded", perr.Message)
	require.False(t, errors.Is(err, fs.ErrNotExist))
}

func TestAdapterWriteGatedIndependently(t *testing.T) {
	remote := &fakeRemote{payload: json.RawMessage(`{}`)}
	fallback := &fakeFallback{}
	caps := domain.CapabilitySet{ReadTextFile: true, WriteTextFile: false}
	adapter := New(remote, caps, fallback, zap.NewNop())

	require.NoError(t, adapter.WriteTextFile(context.Background(), "f", "data"))
	require.Equal(t, 1, fallback.writes)
	require.Zero(t, remote.callCount())
}

func TestAdapterWriteSupportedSendsPathAndContent(t *testing.T) {
	remote := &fakeRemote{payload: json.RawMessage(`{}`)}
	adapter := New(remote, domain.CapabilitySet{WriteTextFile: true}, &fakeFallback{}, zap.NewNop())

	require.NoError(t, adapter.WriteTextFile(context.Background(), "notes.md", "draft"))
	require.Equal(t, []string{"fs/write_text_file"}, remote.calls)
	require.JSONEq(t, `{"path":"notes.md","content":"draft"}`, string(remote.lastParams))
}

func TestAdapterWriteRemoteNotFoundTranslated(t *testing.T) {
	remote := &fakeRemote{err: &domain.ProtocolError{Code: domain.CodeResourceNotFound}}
	adapter := New(remote, domain.CapabilitySet{WriteTextFile: true}, &fakeFallback{}, zap.NewNop())

	err := adapter.WriteTextFile(context.Background(), "/locked/out.txt", "data")
	var pathErr *fs.PathError
	require.ErrorAs(t, err, &pathErr)
	require.Equal(t, "/locked/out.txt", pathErr.Path)
	require.Equal(t, "write", pathErr.Op)
}

func TestAdapterFindFilesAlwaysLocal(t *testing.T) {
	remote := &fakeRemote{payload: json.RawMessage(`{}`)}
	fallback := &fakeFallback{found: []string{"a.go"}}
	caps := domain.CapabilitySet{ReadTextFile: true, WriteTextFile: true}
	adapter := New(remote, caps, fallback, zap.NewNop())

	matches, err := adapter.FindFiles(context.Background(), ".", "*.go")
	require.NoError(t, err)
	require.Equal(t, []string{"a.go"}, matches)
	require.Equal(t, 1, fallback.finds)
	require.Zero(t, remote.callCount())
}

func TestAdapterNilRemoteFallsBack(t *testing.T) {
	fallback := &fakeFallback{content: "hello"}
	adapter := New(nil, domain.CapabilitySet{ReadTextFile: true}, fallback, zap.NewNop())

	content, err := adapter.ReadTextFile(context.Background(), "f")
	require.NoError(t, err)
	require.Equal(t, "hello", content)
}

func TestLocalReadWriteRoundTrip(t *testing.T) {
	local := NewLocal()
	name := filepath.Join(t.TempDir(), "out.txt")

	require.NoError(t, local.WriteTextFile(context.Background(), name, "payload"))
	content, err := local.ReadTextFile(context.Background(), name)
	require.NoError(t, err)
	require.Equal(t, "payload", content)
}

func TestLocalReadMissingFile(t *testing.T) {
	local := NewLocal()
	name := filepath.Join(t.TempDir(), "absent.txt")

	_, err := local.ReadTextFile(context.Background(), name)
	require.ErrorIs(t, err, fs.ErrNotExist)

	var pathErr *fs.PathError
	require.ErrorAs(t, err, &pathErr)
	require.Equal(t, name, pathErr.Path)
}

func TestLocalFindFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "main.go"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sub", "helper.go"), []byte("x"), 0o644))

	local := NewLocal()
	matches, err := local.FindFiles(context.Background(), dir, "*.go")
	require.NoError(t, err)
	require.Equal(t, []string{
		filepath.Join(dir, "main.go"),
		filepath.Join(dir, "sub", "helper.go"),
	}, matches)
}

func TestLocalFindFilesHonorsCancellation(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "main.go"), []byte("x"), 0o644))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	local := NewLocal()
	_, err := local.FindFiles(ctx, dir, "*.go")
	require.ErrorIs(t, err, context.Canceled)
}
