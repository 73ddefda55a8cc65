package processor

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"unicode"

	"comfybridge/internal/pkg/errors"
)

type InputHandler struct {
	client *http.Client
}

// NewInputHandler uses client for remote descriptors; its Timeout bounds
// each download.
func NewInputHandler(client *http.Client) *InputHandler {
	if client == nil {
		client = http.DefaultClient
	}
	return &InputHandler{client: client}
}

// Materialize writes the bytes named by descriptor to dst. Descriptors
// starting with http:// or https:// are downloaded, anything else is
// decoded as base64.
func (ih *InputHandler) Materialize(ctx context.Context, descriptor, dst string) error {
	if isRemote(descriptor) {
		return ih.fetch(ctx, descriptor, dst)
	}
	return ih.decode(descriptor, dst)
}

func (ih *InputHandler) fetch(ctx context.Context, url, dst string) error {
	const op = "processor.fetch"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return errors.E(errors.CodeFetch, op, err, "invalid input url").WithField("url", url)
	}

	resp, err := ih.client.Do(req)
	if err != nil {
		return errors.E(errors.CodeFetch, op, err, "download failed").WithField("url", url)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return errors.New(errors.CodeFetch, fmt.Sprintf("download failed: status %d", resp.StatusCode)).
			WithField("url", url).
			WithField("status", resp.StatusCode)
	}

	if err := writeFile(dst, resp.Body); err != nil {
		// A broken body mid-stream is still a fetch failure.
		return errors.E(errors.CodeFetch, op, err, "download failed").WithField("url", url)
	}
	return nil
}

func (ih *InputHandler) decode(descriptor, dst string) error {
	const op = "processor.decode"

	data, err := DecodeBase64(descriptor)
	if err != nil {
		return errors.E(errors.CodeDecode, op, err, "input is neither a url nor valid base64")
	}
	if err := writeFile(dst, bytes.NewReader(data)); err != nil {
		return errors.E(errors.CodeInternal, op, err, "write input")
	}
	return nil
}

// DecodeBase64 decodes standard base64, tolerating a data URI prefix and
// embedded whitespace.
func DecodeBase64(s string) ([]byte, error) {
	if strings.HasPrefix(s, "data:") {
		if i := strings.Index(s, ","); i >= 0 {
			s = s[i+1:]
		}
	}
	s = strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
	if s == "" {
		return nil, fmt.Errorf("empty payload")
	}
	return base64.StdEncoding.DecodeString(s)
}

// writeFile streams r into dst through a .part sibling so a failed write
// never leaves a truncated file under the final name.
func writeFile(dst string, r io.Reader) error {
	tmp := dst + ".part"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, r); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, dst)
}
