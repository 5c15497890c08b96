// Package tesseract runs invoice text recognition on a local Tesseract
// install through gosseract.
package tesseract

import (
	"context"
	"fmt"
	"image"
	"strings"
	"sync"

	"github.com/otiai10/gosseract/v2"

	"github.com/zombor/invoice-audit/internal/scanning"
)

// Tesseract implements scanning.Recognizer. A gosseract client is not safe
// for concurrent use, so calls are serialized.
type Tesseract struct {
	mu     sync.Mutex
	client *gosseract.Client
}

// New creates a Tesseract recognizer for the given languages, e.g. "fra+eng"
func New(languages string) (*Tesseract, error) {
	client := gosseract.NewClient()
	if languages != "" {
		if err := client.SetLanguage(strings.Split(languages, "+")...); err != nil {
			client.Close()
			return nil, fmt.Errorf("setting tesseract language: %w", err)
		}
	}
	return &Tesseract{client: client}, nil
}

type ocrResult struct {
	text string
	err  error
}

// Recognize transcribes the text of an invoice image. Tesseract itself can't
// be interrupted; a cancelled context only stops the wait.
func (t *Tesseract) Recognize(ctx context.Context, img image.Image) (string, error) {
	data, err := scanning.EncodePNG(img)
	if err != nil {
		return "", err
	}

	done := make(chan ocrResult, 1)
	go func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		defer func() {
			if r := recover(); r != nil {
				done <- ocrResult{err: fmt.Errorf("running tesseract: %v", r)}
			}
		}()

		if err := t.client.SetImageFromBytes(data); err != nil {
			done <- ocrResult{err: fmt.Errorf("setting tesseract image: %w", err)}
			return
		}
		text, err := t.client.Text()
		if err != nil {
			err = fmt.Errorf("running tesseract: %w", err)
		}
		done <- ocrResult{text: text, err: err}
	}()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-done:
		return res.text, res.err
	}
}

// Close releases the tesseract client
func (t *Tesseract) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.client.Close()
}
