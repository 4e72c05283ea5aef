package pages

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/adverant/nexus/ocr-comparison-worker/internal/errors"
	"github.com/adverant/nexus/ocr-comparison-worker/internal/logging"
)

func testImage() image.Image {
	img := image.NewNRGBA(image.Rect(0, 0, 8, 4))
	for x := 0; x < 8; x++ {
		img.Set(x, 1, color.Black)
	}
	return img
}

func jpegBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, testImage(), nil); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestDetectImageFormat(t *testing.T) {
	cases := []struct {
		name string
		data []byte
		want string
	}{
		{"too short", []byte{0x89}, ""},
		{"png", []byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A, 0}, "image/png"},
		{"jpeg", []byte{0xFF, 0xD8, 0xFF, 0xE0}, "image/jpeg"},
		{"gif", []byte("GIF89a.."), "image/gif"},
		{"webp", []byte("RIFF\x00\x00\x00\x00WEBPVP8 "), "image/webp"},
		{"tiff", []byte{0x49, 0x49, 0x2A, 0x00, 0x08}, "image/tiff"},
		{"bmp", []byte("BM\x00\x00\x00\x00"), "image/bmp"},
		{"pdf", []byte("%PDF-1.7"), "application/pdf"},
		{"text", []byte("hello world"), ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := DetectImageFormat(tc.data); got != tc.want {
				t.Errorf("DetectImageFormat = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestNormalizeReencodesAsPNG(t *testing.T) {
	out, err := Normalize(jpegBytes(t), 1)
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}
	if DetectImageFormat(out) != "image/png" {
		t.Fatal("Expected PNG output")
	}
	img, _, err := image.Decode(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("Output does not decode: %v", err)
	}
	if img.Bounds().Dx() != 8 || img.Bounds().Dy() != 4 {
		t.Errorf("Unexpected bounds %v", img.Bounds())
	}
}

func TestNormalizeRejectsUnsupported(t *testing.T) {
	cases := map[string][]byte{
		"unknown": []byte("plain text page"),
		"pdf":     []byte("%PDF-1.4 ..."),
	}
	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Normalize(data, 3)
			if errors.Classify(err) != errors.ErrorUnsupportedFormat {
				t.Errorf("Expected UNSUPPORTED_FORMAT, got %v", err)
			}
		})
	}

	t.Run("corrupt", func(t *testing.T) {
		_, err := Normalize([]byte{0xFF, 0xD8, 0xFF, 0x00, 0x01}, 2)
		if errors.Classify(err) != errors.ErrorPreprocessingFailure {
			t.Errorf("Expected PREPROCESSING_FAILED, got %v", err)
		}
	})
}

func TestLoadAll(t *testing.T) {
	dir := t.TempDir()
	first := filepath.Join(dir, "page1.jpg")
	second := filepath.Join(dir, "page2.jpg")
	for _, p := range []string{first, second} {
		if err := os.WriteFile(p, jpegBytes(t), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	images, err := LoadAll([]string{first, second})
	if err != nil {
		t.Fatalf("LoadAll failed: %v", err)
	}
	if len(images) != 2 {
		t.Fatalf("Expected 2 pages, got %d", len(images))
	}
	for i, data := range images {
		if DetectImageFormat(data) != "image/png" {
			t.Errorf("Page %d is not PNG", i+1)
		}
	}

	if _, err := LoadAll([]string{first, filepath.Join(dir, "missing.png")}); err == nil {
		t.Error("Expected error for missing page")
	}
}

func TestDownloaderRetries(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("page-bytes"))
	}))
	defer server.Close()

	d := NewDownloader(logging.NewLoggerWithWriter("test", &bytes.Buffer{}, logging.LevelError))
	d.InitialBackoff = time.Millisecond
	d.MaxBackoff = 2 * time.Millisecond

	data, err := d.Fetch(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if string(data) != "page-bytes" || atomic.LoadInt32(&calls) != 3 {
		t.Errorf("Got %q after %d calls", data, calls)
	}
}

func TestDownloaderGivesUp(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	d := NewDownloader(logging.NewLoggerWithWriter("test", &bytes.Buffer{}, logging.LevelError))
	d.MaxRetries = 2
	d.InitialBackoff = time.Millisecond

	if _, err := d.Fetch(context.Background(), server.URL); err == nil {
		t.Error("Expected error after retries")
	}
}
