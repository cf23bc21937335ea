package handlers

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"
	"log"
	"net/http"
	"path/filepath"
	"strconv"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gorilla/mux"
	"github.com/spf13/afero"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
	"golang.org/x/sync/singleflight"

	"cinewise/models"
	"cinewise/services/posters"
)

const (
	posterQuality  = 80
	maxPosterWidth = 2000
)

type posterFetcher interface {
	Fetch(ctx context.Context, req posters.Request) (posters.Image, error)
}

var _ posterFetcher = (*posters.Chain)(nil)

// PosterHandler serves posters through the fallback chain, optionally
// downscaled, with an on-disk cache.
type PosterHandler struct {
	chain    posterFetcher
	fs       afero.Fs
	cacheDir string
	inflight singleflight.Group
}

// NewPosterHandler caches into cacheDir/posters on fs.
func NewPosterHandler(chain posterFetcher, fs afero.Fs, cacheDir string) *PosterHandler {
	dir := filepath.Join(cacheDir, "posters")
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		log.Printf("[posters] warning: could not create cache dir %s: %v", dir, err)
	}
	return &PosterHandler{chain: chain, fs: fs, cacheDir: dir}
}

// Serve handles GET /api/posters/{type}/{id}
// Query params:
//   - path: metadata-service poster path (optional)
//   - w: target width (optional, default: original)
func (h *PosterHandler) Serve(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	mediaType, ok := models.ParseMediaType(vars["type"])
	if !ok {
		http.Error(w, "unknown media type", http.StatusBadRequest)
		return
	}
	id, err := strconv.ParseInt(vars["id"], 10, 64)
	if err != nil || id <= 0 {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}

	targetWidth := 0
	if wStr := r.URL.Query().Get("w"); wStr != "" {
		if v, err := strconv.Atoi(wStr); err == nil && v > 0 && v <= maxPosterWidth {
			targetWidth = v
		}
	}

	req := posters.Request{MediaType: mediaType, ID: id, PosterPath: r.URL.Query().Get("path")}
	cachePath := filepath.Join(h.cacheDir, h.cacheKey(req, targetWidth))

	if data, err := afero.ReadFile(h.fs, cachePath); err == nil {
		writePoster(w, data, "HIT")
		return
	}

	// Requests joining the flight must not fail because its first caller left.
	loadCtx := context.WithoutCancel(r.Context())
	v, err, _ := h.inflight.Do(cachePath, func() (any, error) {
		return h.load(loadCtx, req, targetWidth, cachePath)
	})
	if err != nil {
		log.Printf("[posters] %s/%d: %v", mediaType, id, err)
		http.Error(w, "failed to load poster", http.StatusBadGateway)
		return
	}
	writePoster(w, v.([]byte), "MISS")
}

func (h *PosterHandler) load(ctx context.Context, req posters.Request, targetWidth int, cachePath string) ([]byte, error) {
	img, err := h.chain.Fetch(ctx, req)
	if err != nil {
		return nil, err
	}

	data := img.Data
	if targetWidth > 0 {
		resized, err := resizeJPEG(img.Data, targetWidth)
		if err != nil {
			log.Printf("[posters] resize failed, serving original: %v", err)
		} else {
			data = resized
		}
	}

	// Placeholder art changes between requests; only cache real posters.
	if img.Source != "placeholder" {
		tmp := cachePath + ".tmp"
		if err := afero.WriteFile(h.fs, tmp, data, 0o644); err != nil {
			log.Printf("[posters] cache write error: %v", err)
		} else if err := h.fs.Rename(tmp, cachePath); err != nil {
			_ = h.fs.Remove(tmp)
			log.Printf("[posters] cache rename error: %v", err)
		}
	}
	return data, nil
}

// resizeJPEG downsizes to width, keeping the aspect ratio. Images already
// narrower are re-encoded unchanged.
func resizeJPEG(data []byte, width int) ([]byte, error) {
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}

	var out image.Image = src
	bounds := src.Bounds()
	if width < bounds.Dx() {
		height := int(float64(bounds.Dy()) * float64(width) / float64(bounds.Dx()))
		dst := image.NewRGBA(image.Rect(0, 0, width, max(height, 1)))
		draw.CatmullRom.Scale(dst, dst.Bounds(), src, bounds, draw.Over, nil)
		out = dst
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, out, &jpeg.Options{Quality: posterQuality}); err != nil {
		return nil, fmt.Errorf("encode: %w", err)
	}
	return buf.Bytes(), nil
}

func writePoster(w http.ResponseWriter, data []byte, cacheStatus string) {
	w.Header().Set("Content-Type", mimetype.Detect(data).String())
	w.Header().Set("Cache-Control", "public, max-age=2592000") // 30 days
	w.Header().Set("X-Cache", cacheStatus)
	w.Write(data)
}

// cacheKey generates a unique cache key for the poster
func (h *PosterHandler) cacheKey(req posters.Request, width int) string {
	data := fmt.Sprintf("%s|%d|%s|%d", req.MediaType, req.ID, req.PosterPath, width)
	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:16])
}
