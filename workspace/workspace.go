// Package workspace locates protocol sources on disk (or any storage the
// file-service abstraction reaches) for the command-line front end.
package workspace

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"sort"
	"strings"

	"github.com/viant/afs"
	"github.com/viant/afs/url"
)

// DefaultExtensions are the protocol source suffixes discovery picks up.
var DefaultExtensions = []string{".choreo", ".scr"}

// Workspace discovers and loads protocol sources under a root.
type Workspace struct {
	fs         afs.Service
	extensions []string
}

// Option adjusts a Workspace.
type Option func(*Workspace)

// WithExtensions overrides the recognized source suffixes.
func WithExtensions(extensions ...string) Option {
	return func(w *Workspace) {
		if len(extensions) > 0 {
			w.extensions = extensions
		}
	}
}

// WithService replaces the file service, e.g. with an in-memory one for
// tests.
func WithService(fs afs.Service) Option {
	return func(w *Workspace) {
		if fs != nil {
			w.fs = fs
		}
	}
}

// New returns a workspace over the default file service.
func New(options ...Option) *Workspace {
	w := &Workspace{fs: afs.New(), extensions: DefaultExtensions}
	for _, option := range options {
		option(w)
	}
	return w
}

func (w *Workspace) matches(name string) bool {
	for _, ext := range w.extensions {
		if strings.HasSuffix(name, ext) {
			return true
		}
	}
	return false
}

// Discover walks the root and returns the URLs of every protocol source
// under it, sorted for stable processing order. A root that is itself a
// source file is returned as-is.
func (w *Workspace) Discover(ctx context.Context, root string) ([]string, error) {
	if w.matches(root) {
		ok, err := w.fs.Exists(ctx, root)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("protocol source %q does not exist", root)
		}
		return []string{root}, nil
	}
	var sources []string
	visitor := func(ctx context.Context, baseURL, parent string, info os.FileInfo, reader io.Reader) (bool, error) {
		if info.IsDir() {
			return true, nil
		}
		if w.matches(info.Name()) {
			sources = append(sources, url.Join(baseURL, path.Join(parent, info.Name())))
		}
		return true, nil
	}
	if err := w.fs.Walk(ctx, root, visitor); err != nil {
		return nil, err
	}
	sort.Strings(sources)
	return sources, nil
}

// Load reads one protocol source.
func (w *Workspace) Load(ctx context.Context, URL string) (string, error) {
	data, err := w.fs.DownloadWithURL(ctx, URL)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Store writes an artifact next to the analyzed sources.
func (w *Workspace) Store(ctx context.Context, URL string, data []byte) error {
	return w.fs.Upload(ctx, URL, 0o644, strings.NewReader(string(data)))
}
