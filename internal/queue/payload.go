package queue

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"

	ocrerrors "github.com/adverant/nexus/ocr-comparison-worker/internal/errors"
	"github.com/adverant/nexus/ocr-comparison-worker/internal/pages"
	"github.com/adverant/nexus/ocr-comparison-worker/internal/processor"
)

// JobPayload is one comparison job as submitted by producers
type JobPayload struct {
	JobID  string `json:"jobId"`
	UserID string `json:"userId,omitempty"`
	// Pages are inline page images; set by the custom UnmarshalJSON
	Pages [][]byte `json:"pages,omitempty"`
	// PageURLs are fetched after the inline pages, continuing the page numbering
	PageURLs   []string               `json:"pageUrls,omitempty"`
	References map[int]string         `json:"references,omitempty"`
	Engines    []string               `json:"engines,omitempty"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
}

// UnmarshalJSON implements custom JSON unmarshaling for JobPayload to handle Buffer serialization
// Supports both base64 string format and Node.js Buffer object format for every page
func (p *JobPayload) UnmarshalJSON(data []byte) error {
	// Create alias type to avoid recursion
	type Alias JobPayload
	aux := &struct {
		Pages []interface{} `json:"pages,omitempty"`
		*Alias
	}{
		Alias: (*Alias)(p),
	}

	if err := json.Unmarshal(data, &aux); err != nil {
		return fmt.Errorf("failed to unmarshal JobPayload: %w", err)
	}

	p.Pages = nil
	for i, raw := range aux.Pages {
		page, err := decodeBuffer(raw)
		if err != nil {
			return fmt.Errorf("page %d: %w", i+1, err)
		}
		p.Pages = append(p.Pages, page)
	}

	return nil
}

func decodeBuffer(raw interface{}) ([]byte, error) {
	switch v := raw.(type) {
	case string:
		decoded, err := base64.StdEncoding.DecodeString(v)
		if err != nil {
			return nil, fmt.Errorf("failed to decode base64 page: %w", err)
		}
		return decoded, nil

	case map[string]interface{}:
		// Node.js Buffer object format
		if bufferType, ok := v["type"].(string); !ok || bufferType != "Buffer" {
			return nil, fmt.Errorf("invalid Buffer object format (missing or incorrect 'type' field)")
		}
		dataArray, ok := v["data"].([]interface{})
		if !ok {
			return nil, fmt.Errorf("Buffer object missing 'data' array")
		}
		out := make([]byte, len(dataArray))
		for i, val := range dataArray {
			byteVal, ok := val.(float64)
			if !ok || byteVal < 0 || byteVal > 255 {
				return nil, fmt.Errorf("invalid byte value in Buffer data array at index %d", i)
			}
			out[i] = byte(byteVal)
		}
		return out, nil

	default:
		return nil, fmt.Errorf("page must be either base64 string or Buffer object, got %T", v)
	}
}

// PageFetcher downloads a page image by URL
type PageFetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Request resolves the payload into a processor request: inline pages and
// fetched URLs are normalized to PNG in page order. A page that cannot be
// decoded keeps its number as a nil entry and is reported in PageFailures;
// the request fails with NO_PAGES only when no page survives.
func (p *JobPayload) Request(ctx context.Context, fetcher PageFetcher) (*processor.ProcessRequest, error) {
	raw := make([][]byte, 0, len(p.Pages)+len(p.PageURLs))
	raw = append(raw, p.Pages...)

	if len(p.PageURLs) > 0 && fetcher == nil {
		return nil, fmt.Errorf("job %s references page URLs but no fetcher is configured", p.JobID)
	}
	for _, url := range p.PageURLs {
		data, err := fetcher.Fetch(ctx, url)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch page %d: %w", len(raw)+1, err)
		}
		raw = append(raw, data)
	}

	if len(raw) == 0 {
		return nil, ocrerrors.NewNoPagesError()
	}

	req := &processor.ProcessRequest{
		JobID:      p.JobID,
		Pages:      make([][]byte, len(raw)),
		References: p.References,
		Engines:    p.Engines,
		Metadata:   p.Metadata,
	}
	usable := 0
	for i, data := range raw {
		png, err := pages.Normalize(data, i+1)
		if err != nil {
			ee := ocrerrors.Wrap("", i+1, err)
			req.PageFailures = append(req.PageFailures, ocrerrors.Failure{
				Page:      i + 1,
				Code:      ee.Code,
				Message:   err.Error(),
				Timestamp: ee.Timestamp,
			})
			continue
		}
		req.Pages[i] = png
		usable++
	}

	if usable == 0 {
		return nil, ocrerrors.NewNoPagesError()
	}
	return req, nil
}
