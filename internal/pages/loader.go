/**
 * Page image loading
 *
 * Every page handed to the engines is a PNG: inputs in any supported raster
 * format are decoded (EXIF orientation applied) and re-encoded, so engines
 * see the same pixels regardless of how the page was scanned.
 */

package pages

import (
	"bytes"
	"fmt"
	"image"
	"os"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"

	"github.com/adverant/nexus/ocr-comparison-worker/internal/errors"
)

// DetectImageFormat identifies an image by its magic bytes, returning a MIME
// type or "" when unknown
func DetectImageFormat(data []byte) string {
	if len(data) < 4 {
		return ""
	}

	switch {
	case len(data) >= 8 && bytes.HasPrefix(data, []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}):
		return "image/png"
	case bytes.HasPrefix(data, []byte{0xFF, 0xD8, 0xFF}):
		return "image/jpeg"
	case bytes.HasPrefix(data, []byte("GIF87a")) || bytes.HasPrefix(data, []byte("GIF89a")):
		return "image/gif"
	case len(data) >= 12 && bytes.HasPrefix(data, []byte("RIFF")) && string(data[8:12]) == "WEBP":
		return "image/webp"
	// little-endian II*\0 or big-endian MM\0*
	case bytes.HasPrefix(data, []byte{0x49, 0x49, 0x2A, 0x00}) || bytes.HasPrefix(data, []byte{0x4D, 0x4D, 0x00, 0x2A}):
		return "image/tiff"
	case bytes.HasPrefix(data, []byte("BM")):
		return "image/bmp"
	case bytes.HasPrefix(data, []byte("%PDF")):
		return "application/pdf"
	}
	return ""
}

// Normalize decodes a page image and re-encodes it as PNG. Page numbers are
// only used for error reporting.
func Normalize(data []byte, page int) ([]byte, error) {
	format := DetectImageFormat(data)
	switch format {
	case "":
		return nil, errors.NewUnsupportedFormatError("", page, "unknown")
	case "application/pdf":
		// PDF rasterization is left to the caller
		return nil, errors.NewUnsupportedFormatError("", page, format)
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, errors.NewPreprocessingError("", page, "decode "+format, err)
	}
	return encodePNG(img, page)
}

// Load reads one page image from disk and returns it as PNG
func Load(path string, page int) ([]byte, error) {
	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		if _, statErr := os.Stat(path); statErr != nil {
			return nil, fmt.Errorf("failed to open page %d: %w", page, statErr)
		}
		return nil, errors.NewPreprocessingError("", page, "decode "+path, err)
	}
	return encodePNG(img, page)
}

// LoadAll loads pages in order; page numbers start at 1
func LoadAll(paths []string) ([][]byte, error) {
	images := make([][]byte, 0, len(paths))
	for i, p := range paths {
		data, err := Load(p, i+1)
		if err != nil {
			return nil, err
		}
		images = append(images, data)
	}
	return images, nil
}

func encodePNG(img image.Image, page int) ([]byte, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return nil, errors.NewPreprocessingError("", page, "encode png", err)
	}
	return buf.Bytes(), nil
}
