// Package azure runs invoice text recognition on Azure Computer Vision.
package azure

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"io"
	"strings"

	"github.com/Azure/azure-sdk-for-go/services/cognitiveservices/v3.0/computervision"
	"github.com/Azure/go-autorest/autorest"

	"github.com/zombor/invoice-audit/internal/scanning"
)

// Azure implements scanning.Recognizer with the printed text OCR endpoint
type Azure struct {
	client   computervision.BaseClient
	language computervision.OcrLanguages
}

// New creates an Azure recognizer. An empty language lets the service
// detect it.
func New(endpoint, apiKey, language string) (*Azure, error) {
	if endpoint == "" || apiKey == "" {
		return nil, fmt.Errorf("azure endpoint and key are required")
	}
	if language == "" {
		language = string(computervision.OcrLanguagesUnk)
	}

	client := computervision.New(endpoint)
	client.Authorizer = autorest.NewCognitiveServicesAuthorizer(apiKey)

	return &Azure{
		client:   client,
		language: computervision.OcrLanguages(language),
	}, nil
}

// Recognize transcribes the text of an invoice image
func (a *Azure) Recognize(ctx context.Context, img image.Image) (string, error) {
	data, err := scanning.EncodePNG(img)
	if err != nil {
		return "", err
	}

	result, err := a.client.RecognizePrintedTextInStream(
		ctx,
		true,
		io.NopCloser(bytes.NewReader(data)),
		a.language,
	)
	if err != nil {
		return "", fmt.Errorf("recognizing printed text: %w", err)
	}
	return linesFromResult(result), nil
}

// linesFromResult flattens the OCR regions into newline separated lines
// of space separated words
func linesFromResult(result computervision.OcrResult) string {
	if result.Regions == nil {
		return ""
	}

	var lines []string
	for _, region := range *result.Regions {
		if region.Lines == nil {
			continue
		}
		for _, line := range *region.Lines {
			if line.Words == nil {
				continue
			}
			var words []string
			for _, word := range *line.Words {
				if word.Text != nil && *word.Text != "" {
					words = append(words, *word.Text)
				}
			}
			if len(words) > 0 {
				lines = append(lines, strings.Join(words, " "))
			}
		}
	}
	return strings.Join(lines, "\n")
}

// Close is a no-op; the client holds no resources
func (a *Azure) Close() error {
	return nil
}
