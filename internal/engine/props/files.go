package props

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"path"
	"strings"

	"github.com/kode4food/argyll/worker/pkg/piece"
)

type (
	// FileLoader turns a FILE property value into file contents
	FileLoader interface {
		Load(ctx context.Context, ref string) (*piece.File, error)
	}

	// HTTPFileLoader loads data URIs inline and fetches http(s) URLs
	HTTPFileLoader struct {
		Client  *http.Client
		MaxSize int64
	}
)

const defaultFileName = "file"

var (
	ErrInvalidFileRef = errors.New("expected a file url or data uri")
	ErrFileFetch      = errors.New("failed to fetch file")
	ErrFileTooLarge   = errors.New("file exceeds maximum size")
)

// NewHTTPFileLoader creates a loader that refuses files above maxSize
func NewHTTPFileLoader(client *http.Client, maxSize int64) *HTTPFileLoader {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPFileLoader{Client: client, MaxSize: maxSize}
}

// Load resolves a data URI or downloads a URL
func (l *HTTPFileLoader) Load(
	ctx context.Context, ref string,
) (*piece.File, error) {
	if strings.HasPrefix(ref, "data:") {
		return l.loadDataURI(ref)
	}
	u, err := url.Parse(ref)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, fmt.Errorf("%w: %q", ErrInvalidFileRef, ref)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref, nil)
	if err != nil {
		return nil, err
	}
	resp, err := l.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFileFetch, err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, fmt.Errorf("%w: %s", ErrFileFetch, resp.Status)
	}

	data, err := l.read(resp.Body)
	if err != nil {
		return nil, err
	}
	name := path.Base(u.Path)
	if name == "." || name == "/" {
		name = defaultFileName
	}
	return &piece.File{
		Filename:  name,
		Extension: strings.TrimPrefix(path.Ext(name), "."),
		Data:      data,
	}, nil
}

func (l *HTTPFileLoader) read(r io.Reader) ([]byte, error) {
	if l.MaxSize <= 0 {
		return io.ReadAll(r)
	}
	data, err := io.ReadAll(io.LimitReader(r, l.MaxSize+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > l.MaxSize {
		return nil, ErrFileTooLarge
	}
	return data, nil
}

func (l *HTTPFileLoader) loadDataURI(ref string) (*piece.File, error) {
	meta, payload, ok := strings.Cut(strings.TrimPrefix(ref, "data:"), ",")
	if !ok || !strings.HasSuffix(meta, ";base64") {
		return nil, fmt.Errorf("%w: malformed data uri", ErrInvalidFileRef)
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidFileRef, err)
	}
	if l.MaxSize > 0 && int64(len(data)) > l.MaxSize {
		return nil, ErrFileTooLarge
	}

	ext := ""
	mimeType := strings.TrimSuffix(meta, ";base64")
	if exts, err := mime.ExtensionsByType(mimeType); err == nil && len(exts) > 0 {
		ext = strings.TrimPrefix(exts[0], ".")
	}
	name := defaultFileName
	if ext != "" {
		name += "." + ext
	}
	return &piece.File{Filename: name, Extension: ext, Data: data}, nil
}
