package scanning

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"

	"github.com/disintegration/imaging"
	"github.com/gen2brain/go-fitz"
	"github.com/gen2brain/heic"
)

// ImageReadError is returned when the invoice image is missing, unreadable
// or not a decodable image
type ImageReadError struct {
	Path string
	Err  error
}

func (e *ImageReadError) Error() string {
	return fmt.Sprintf("reading image %s: %v", e.Path, e.Err)
}

func (e *ImageReadError) Unwrap() error {
	return e.Err
}

// LoadImage reads and decodes the image at path. The format is sniffed from
// the content: PDF (first page), HEIC/HEIF, or anything imaging can decode
// (JPEG, PNG, GIF, BMP, TIFF).
func LoadImage(path string) (image.Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ImageReadError{Path: path, Err: err}
	}
	if len(data) == 0 {
		return nil, &ImageReadError{Path: path, Err: errors.New("empty file")}
	}

	img, err := decodeImage(data)
	if err != nil {
		return nil, &ImageReadError{Path: path, Err: err}
	}
	return img, nil
}

func decodeImage(data []byte) (image.Image, error) {
	switch {
	case isPDF(data):
		img, err := pdfToImage(data)
		if err != nil {
			return nil, fmt.Errorf("converting PDF to image: %w", err)
		}
		return img, nil
	case isHEICFormat(data):
		// Go's standard image package doesn't support HEIC
		img, err := heic.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("decoding HEIC/HEIF image: %w", err)
		}
		return img, nil
	default:
		img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
		if err != nil {
			return nil, fmt.Errorf("decoding image: %w", err)
		}
		return img, nil
	}
}

// pdfToImage renders the first page of a PDF
func pdfToImage(pdfData []byte) (image.Image, error) {
	doc, err := fitz.NewFromMemory(pdfData)
	if err != nil {
		return nil, fmt.Errorf("opening PDF: %w", err)
	}
	defer doc.Close()

	// Render the first page (invoices scanned to PDF are usually one page)
	img, err := doc.Image(0)
	if err != nil {
		return nil, fmt.Errorf("rendering PDF page: %w", err)
	}
	return img, nil
}

func isPDF(data []byte) bool {
	return bytes.HasPrefix(data, []byte("%PDF-"))
}

// isHEICFormat checks if the image data is in HEIC/HEIF format
// HEIC files typically start with specific magic bytes
func isHEICFormat(data []byte) bool {
	if len(data) < 12 {
		return false
	}
	// Check for ftyp at offset 4 followed by a HEIC-related brand
	if string(data[4:8]) == "ftyp" {
		brand := string(data[8:12])
		if brand == "heic" || brand == "heif" || brand == "mif1" || brand == "msf1" {
			return true
		}
	}
	return false
}

// Preprocess converts the image to grayscale and binarizes it with Otsu's
// threshold, leaving dark text on a white background
func Preprocess(img image.Image) *image.NRGBA {
	gray := imaging.Grayscale(img)
	threshold := otsuThreshold(gray)
	return imaging.AdjustFunc(gray, func(c color.NRGBA) color.NRGBA {
		if c.R > threshold {
			return color.NRGBA{R: 255, G: 255, B: 255, A: 255}
		}
		return color.NRGBA{A: 255}
	})
}

// otsuThreshold picks the gray level that maximizes the between-class
// variance of a grayscale image
func otsuThreshold(gray *image.NRGBA) uint8 {
	var hist [256]float64
	var total float64
	for i := 0; i+3 < len(gray.Pix); i += 4 {
		hist[gray.Pix[i]]++
		total++
	}
	if total == 0 {
		return 0
	}

	var sum float64
	for t, n := range hist {
		sum += float64(t) * n
	}

	var (
		sumB, weightB, best float64
		threshold           uint8
	)
	for t := 0; t < 256; t++ {
		weightB += hist[t]
		if weightB == 0 {
			continue
		}
		weightF := total - weightB
		if weightF == 0 {
			break
		}
		sumB += float64(t) * hist[t]
		meanB := sumB / weightB
		meanF := (sum - sumB) / weightF
		between := weightB * weightF * (meanB - meanF) * (meanB - meanF)
		if between > best {
			best = between
			threshold = uint8(t)
		}
	}
	return threshold
}

// EncodePNG encodes an image for recognizers that take file bytes
func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encoding PNG: %w", err)
	}
	return buf.Bytes(), nil
}
