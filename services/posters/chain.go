// Package posters fetches poster art through an ordered list of image
// sources, falling back to the next source whenever one fails.
package posters

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"

	"cinewise/models"
)

const maxImageBytes = 10 << 20

var ErrNoPoster = errors.New("no poster source answered with an image")

// Options configures a Chain. Empty URLs disable the corresponding source.
type Options struct {
	RPDBAPIKey     string
	RPDBBaseURL    string
	TMDBImageBase  string
	PlaceholderURL string
	HTTPClient     *http.Client
}

// Request identifies the poster wanted.
type Request struct {
	MediaType  models.MediaType
	ID         int64
	PosterPath string
}

// Image is a fetched poster.
type Image struct {
	Data        []byte
	ContentType string
	Source      string
}

type source struct {
	name string
	url  func(Request) string // "" skips the source
}

// Chain evaluates its sources top to bottom; the first one answering 200
// with image content wins.
type Chain struct {
	httpc   *http.Client
	sources []source
}

func NewChain(opts Options) *Chain {
	httpc := opts.HTTPClient
	if httpc == nil {
		httpc = &http.Client{Timeout: 15 * time.Second}
	}

	rpdbBase := strings.TrimRight(strings.TrimSpace(opts.RPDBBaseURL), "/")
	rpdbKey := strings.TrimSpace(opts.RPDBAPIKey)
	imageBase := strings.TrimRight(strings.TrimSpace(opts.TMDBImageBase), "/")
	placeholder := strings.TrimSpace(opts.PlaceholderURL)

	return &Chain{
		httpc: httpc,
		sources: []source{
			{name: "rpdb", url: func(r Request) string {
				if rpdbBase == "" || rpdbKey == "" {
					return ""
				}
				return fmt.Sprintf("%s/%s/tmdb/poster/%s/%s.jpg?fallback=true", rpdbBase, rpdbKey, r.MediaType, strconv.FormatInt(r.ID, 10))
			}},
			{name: "tmdb", url: func(r Request) string {
				path := strings.TrimSpace(r.PosterPath)
				if imageBase == "" || path == "" {
					return ""
				}
				if !strings.HasPrefix(path, "/") {
					path = "/" + path
				}
				return imageBase + path
			}},
			{name: "placeholder", url: func(Request) string { return placeholder }},
		},
	}
}

// Candidates lists the URLs Fetch would try, in order.
func (c *Chain) Candidates(req Request) []string {
	out := make([]string, 0, len(c.sources))
	for _, src := range c.sources {
		if u := src.url(req); u != "" {
			out = append(out, u)
		}
	}
	return out
}

// Fetch returns the first image any source provides.
func (c *Chain) Fetch(ctx context.Context, req Request) (Image, error) {
	if !req.MediaType.Valid() || req.ID <= 0 {
		return Image{}, fmt.Errorf("invalid poster request %s/%d", req.MediaType, req.ID)
	}

	for _, src := range c.sources {
		u := src.url(req)
		if u == "" {
			continue
		}
		img, err := c.get(ctx, u)
		if err != nil {
			if ctx.Err() != nil {
				return Image{}, ctx.Err()
			}
			log.Printf("[posters] %s source failed for %s/%d: %v", src.name, req.MediaType, req.ID, err)
			continue
		}
		img.Source = src.name
		return img, nil
	}
	return Image{}, ErrNoPoster
}

func (c *Chain) get(ctx context.Context, u string) (Image, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return Image{}, err
	}
	resp, err := c.httpc.Do(httpReq)
	if err != nil {
		return Image{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxImageBytes))
		return Image{}, fmt.Errorf("status %s", resp.Status)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes))
	if err != nil {
		return Image{}, err
	}

	// Some sources answer 200 with an HTML error page; trust the bytes, not the header.
	mtype := mimetype.Detect(data)
	if !strings.HasPrefix(mtype.String(), "image/") {
		return Image{}, fmt.Errorf("unexpected content type %s", mtype.String())
	}
	return Image{Data: data, ContentType: mtype.String()}, nil
}
