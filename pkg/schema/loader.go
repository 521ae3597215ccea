package schema

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/goliatone/go-schemaform/pkg/model"
)

// DefaultRequestTimeout bounds remote schema fetches.
const DefaultRequestTimeout = 15 * time.Second

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithFileSystem enables SourceFromFS lookups against fsys.
func WithFileSystem(fsys fs.FS) LoaderOption {
	return func(l *Loader) {
		l.fs = fsys
	}
}

// WithHTTPClient enables URL sources using client.
func WithHTTPClient(client *http.Client) LoaderOption {
	return func(l *Loader) {
		if client != nil {
			clone := *client
			l.http = &clone
		}
	}
}

// WithRequestTimeout overrides DefaultRequestTimeout.
func WithRequestTimeout(timeout time.Duration) LoaderOption {
	return func(l *Loader) {
		l.timeout = timeout
	}
}

// WithStrategies resolves named strategy references against reg.
func WithStrategies(reg *Registry) LoaderOption {
	return func(l *Loader) {
		l.registry = reg
	}
}

// Loader reads schema documents from files, an fs.FS or HTTP and decodes them
// into model.Schema values.
type Loader struct {
	fs       fs.FS
	http     *http.Client
	timeout  time.Duration
	registry *Registry
}

// NewLoader builds a Loader. URL sources are rejected unless an HTTP client
// is configured.
func NewLoader(opts ...LoaderOption) *Loader {
	l := &Loader{timeout: DefaultRequestTimeout}
	for _, opt := range opts {
		if opt != nil {
			opt(l)
		}
	}
	return l
}

// Load fetches the raw document for src.
func (l *Loader) Load(ctx context.Context, src Source) (Document, error) {
	if src == nil {
		return Document{}, errors.New("schema loader: source is nil")
	}

	var (
		data []byte
		err  error
	)
	switch src.Kind() {
	case SourceKindFile:
		data, err = loadFile(ctx, src.Location())
	case SourceKindFS:
		data, err = loadFromFS(ctx, l.fs, src.Location())
	case SourceKindURL:
		if l.http == nil {
			return Document{}, errors.New("schema loader: http support disabled")
		}
		data, err = loadHTTP(ctx, l.http, src.Location(), l.timeout)
	default:
		err = fmt.Errorf("schema loader: unsupported source kind %q", src.Kind())
	}
	if err != nil {
		return Document{}, fmt.Errorf("schema loader: %s: %w", src.Location(), err)
	}
	return NewDocument(src, data)
}

// LoadSchema loads and decodes src.
func (l *Loader) LoadSchema(ctx context.Context, src Source) (model.Schema, error) {
	doc, err := l.Load(ctx, src)
	if err != nil {
		return model.Schema{}, err
	}
	return Decode(doc, l.registry)
}

func loadFile(ctx context.Context, p string) ([]byte, error) {
	if p == "" {
		return nil, errors.New("file path is required")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(p)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(abs)
}

func loadFromFS(ctx context.Context, fsys fs.FS, name string) ([]byte, error) {
	if fsys == nil {
		return nil, errors.New("filesystem is not configured")
	}
	if name == "" {
		return nil, errors.New("fs path is required")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return fs.ReadFile(fsys, name)
}

func loadHTTP(ctx context.Context, client *http.Client, url string, timeout time.Duration) ([]byte, error) {
	reqCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, errors.New("unexpected status " + resp.Status)
	}
	return io.ReadAll(resp.Body)
}
