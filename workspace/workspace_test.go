package workspace

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viant/afs"
)

func TestDiscover(t *testing.T) {
	ctx := context.Background()
	fs := afs.New()
	base := "mem://localhost/workspace"
	files := map[string]string{
		base + "/ping.choreo":        "protocol Ping(role A, role B) { A -> B: Ping(); }",
		base + "/nested/pong.scr":    "protocol Pong(role A, role B) { B -> A: Pong(); }",
		base + "/notes/readme.txt":   "not a protocol",
		base + "/nested/other.draft": "ignored",
	}
	for URL, content := range files {
		require.NoError(t, fs.Upload(ctx, URL, 0o644, strings.NewReader(content)))
	}

	w := New(WithService(fs))
	sources, err := w.Discover(ctx, base)
	require.NoError(t, err)
	require.Len(t, sources, 2)
	assert.True(t, strings.HasSuffix(sources[0], "nested/pong.scr"))
	assert.True(t, strings.HasSuffix(sources[1], "ping.choreo"))

	content, err := w.Load(ctx, sources[1])
	require.NoError(t, err)
	assert.Contains(t, content, "protocol Ping")
}

func TestDiscoverSingleFile(t *testing.T) {
	ctx := context.Background()
	fs := afs.New()
	URL := "mem://localhost/single/one.choreo"
	require.NoError(t, fs.Upload(ctx, URL, 0o644, strings.NewReader("protocol P(role A, role B) {}")))

	w := New(WithService(fs))
	sources, err := w.Discover(ctx, URL)
	require.NoError(t, err)
	assert.Equal(t, []string{URL}, sources)

	_, err = w.Discover(ctx, "mem://localhost/single/missing.choreo")
	require.Error(t, err)
}

func TestCustomExtensions(t *testing.T) {
	ctx := context.Background()
	fs := afs.New()
	base := "mem://localhost/custom"
	require.NoError(t, fs.Upload(ctx, base+"/p.mpst", 0o644, strings.NewReader("x")))

	w := New(WithService(fs), WithExtensions(".mpst"))
	sources, err := w.Discover(ctx, base)
	require.NoError(t, err)
	require.Len(t, sources, 1)
}

func TestStore(t *testing.T) {
	ctx := context.Background()
	fs := afs.New()
	w := New(WithService(fs))
	URL := "mem://localhost/out/report.json"
	require.NoError(t, w.Store(ctx, URL, []byte(`{"ok":true}`)))
	data, err := w.Load(ctx, URL)
	require.NoError(t, err)
	assert.Equal(t, `{"ok":true}`, data)
}
