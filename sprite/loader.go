package sprite

import (
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

// LoadError reports a spritesheet that could not be loaded.
type LoadError struct {
	Locator string
	Err     error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load %s: %v", e.Locator, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// A Loader fetches and decodes a bitmap asynchronously. done is called
// exactly once, from any goroutine.
type Loader interface {
	Load(locator string, done func(image.Image, error))
}

// FileLoader loads bitmaps from local paths or http(s) URLs.
type FileLoader struct {
	Client  *http.Client
	Timeout time.Duration
}

// NewFileLoader creates an instance of a FileLoader.
func NewFileLoader() *FileLoader {
	l := new(FileLoader)
	l.Client = http.DefaultClient
	l.Timeout = 30 * time.Second
	return l
}

// Load decodes the bitmap on a new goroutine.
func (l *FileLoader) Load(locator string, done func(image.Image, error)) {
	go func() {
		img, err := l.load(locator)
		if err != nil {
			done(nil, &LoadError{Locator: locator, Err: err})
			return
		}
		done(img, nil)
	}()
}

func (l *FileLoader) load(locator string) (image.Image, error) {
	var r io.ReadCloser
	if strings.HasPrefix(locator, "http://") || strings.HasPrefix(locator, "https://") {
		body, err := l.fetch(locator)
		if err != nil {
			return nil, err
		}
		r = body
	} else {
		f, err := os.Open(locator)
		if err != nil {
			return nil, err
		}
		r = f
	}
	defer r.Close()

	img, _, err := image.Decode(r)
	return img, err
}

func (l *FileLoader) fetch(url string) (io.ReadCloser, error) {
	ctx, cancel := context.WithTimeout(context.Background(), l.Timeout)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		cancel()
		return nil, err
	}

	resp, err := l.Client.Do(req)
	if err != nil {
		cancel()
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		cancel()
		return nil, fmt.Errorf("unexpected status %s", resp.Status)
	}

	return &cancelBody{ReadCloser: resp.Body, cancel: cancel}, nil
}

type cancelBody struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (b *cancelBody) Close() error {
	err := b.ReadCloser.Close()
	b.cancel()
	return err
}
