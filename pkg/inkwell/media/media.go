// Package media validates uploaded images and stores them on local disk.
package media

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	_ "image/gif"
	_ "image/png"

	"github.com/google/uuid"
	"github.com/mikepea/inkwell/pkg/inkwell/apierr"
	"github.com/mikepea/inkwell/pkg/inkwell/observability"
	xdraw "golang.org/x/image/draw"
	_ "golang.org/x/image/webp" // Register WebP decoder
)

const (
	// PostImageDir is where post images live, relative to the media root
	PostImageDir  = "uploads/post"
	ThumbnailSize = 256
	JPEGQuality   = 82
	// DefaultMaxPixels caps width*height of a decoded upload
	DefaultMaxPixels = 40_000_000
)

// Stored describes the files written for one upload. Paths are relative to
// the media root and always use forward slashes.
type Stored struct {
	Path      string
	Thumbnail string
	Format    string
	Width     int
	Height    int
}

// Store keeps uploaded images under a root directory
type Store struct {
	root      string
	urlPrefix string
	maxBytes  int64
	maxPixels int64
}

// NewStore creates a store rooted at root, served publicly at urlPrefix
func NewStore(root, urlPrefix string, maxUploadMB int) *Store {
	return &Store{
		root:      root,
		urlPrefix: "/" + strings.Trim(urlPrefix, "/"),
		maxBytes:  int64(maxUploadMB) * 1024 * 1024,
		maxPixels: DefaultMaxPixels,
	}
}

// WithMaxPixels bounds the decoded size of accepted images. Non-positive
// values keep the current bound.
func (s *Store) WithMaxPixels(n int64) *Store {
	if n > 0 {
		s.maxPixels = n
	}
	return s
}

// Root returns the directory files are stored in
func (s *Store) Root() string {
	return s.root
}

// MaxBytes is the largest accepted upload
func (s *Store) MaxBytes() int64 {
	return s.maxBytes
}

// URL returns the public URL of a stored file, or "" for an empty path.
func (s *Store) URL(rel string) string {
	if rel == "" {
		return ""
	}
	return path.Join(s.urlPrefix, rel)
}

func invalid(msg string) *apierr.Error {
	return apierr.Field("image", msg)
}

// Save validates content as an image and writes it together with a JPEG
// thumbnail under a freshly generated name.
func (s *Store) Save(ctx context.Context, content []byte) (*Stored, error) {
	if len(content) == 0 {
		observability.ImageUploads.WithLabelValues("rejected").Inc()
		return nil, invalid("No file was submitted.")
	}
	if int64(len(content)) > s.maxBytes {
		observability.ImageUploads.WithLabelValues("rejected").Inc()
		return nil, invalid(fmt.Sprintf("File too large (max %dMB).", s.maxBytes/(1024*1024)))
	}

	if !isAllowedImageMIME(http.DetectContentType(content)) {
		observability.ImageUploads.WithLabelValues("rejected").Inc()
		return nil, invalid("Upload a valid image. The file you uploaded was either not an image or a corrupted image.")
	}

	// The header is enough to size the image before allocating pixels
	cfg, _, err := image.DecodeConfig(bytes.NewReader(content))
	if err != nil {
		observability.ImageUploads.WithLabelValues("rejected").Inc()
		return nil, invalid("Upload a valid image. The file you uploaded was either not an image or a corrupted image.")
	}
	if int64(cfg.Width)*int64(cfg.Height) > s.maxPixels {
		observability.ImageUploads.WithLabelValues("rejected").Inc()
		return nil, invalid(fmt.Sprintf("Image dimensions too large (max %d pixels).", s.maxPixels))
	}

	decoded, format, err := image.Decode(bytes.NewReader(content))
	if err != nil {
		observability.ImageUploads.WithLabelValues("rejected").Inc()
		return nil, invalid("Upload a valid image. The file you uploaded was either not an image or a corrupted image.")
	}
	ext, ok := extensionFor(format)
	if !ok {
		observability.ImageUploads.WithLabelValues("rejected").Inc()
		return nil, invalid("Unsupported image format.")
	}

	thumb, err := encodeJPEG(thumbnail(decoded, ThumbnailSize), JPEGQuality)
	if err != nil {
		return nil, apierr.Internal("Failed to process image", err)
	}

	name := uuid.NewString()
	stored := &Stored{
		Path:      path.Join(PostImageDir, name+"."+ext),
		Thumbnail: path.Join(PostImageDir, name+"_thumb.jpg"),
		Format:    format,
		Width:     decoded.Bounds().Dx(),
		Height:    decoded.Bounds().Dy(),
	}

	if err := s.write(stored.Path, content); err != nil {
		return nil, apierr.Internal("Failed to store image", err)
	}
	if err := s.write(stored.Thumbnail, thumb); err != nil {
		s.Delete(ctx, stored.Path)
		return nil, apierr.Internal("Failed to store image", err)
	}

	observability.ImageUploads.WithLabelValues("stored").Inc()
	observability.Logger.InfoContext(ctx, "image stored", "path", stored.Path, "format", format, "bytes", len(content))
	return stored, nil
}

// Delete removes stored files, ignoring empty and missing paths
func (s *Store) Delete(ctx context.Context, rels ...string) {
	for _, rel := range rels {
		abs, ok := s.abs(rel)
		if !ok {
			continue
		}
		if err := os.Remove(abs); err != nil && !os.IsNotExist(err) {
			observability.Logger.WarnContext(ctx, "failed to remove media file", "path", rel, "error", err)
		}
	}
}

// abs resolves rel inside the media root, refusing paths that escape it
func (s *Store) abs(rel string) (string, bool) {
	if rel == "" {
		return "", false
	}
	local := filepath.FromSlash(rel)
	if !filepath.IsLocal(local) {
		return "", false
	}
	return filepath.Join(s.root, local), true
}

func (s *Store) write(rel string, data []byte) error {
	abs, ok := s.abs(rel)
	if !ok {
		return fmt.Errorf("invalid media path %q", rel)
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o750); err != nil {
		return err
	}
	return os.WriteFile(abs, data, 0o644)
}

func isAllowedImageMIME(contentType string) bool {
	switch contentType {
	case "image/jpeg", "image/png", "image/gif", "image/webp":
		return true
	default:
		return false
	}
}

func extensionFor(format string) (string, bool) {
	switch format {
	case "jpeg":
		return "jpg", true
	case "png", "gif", "webp":
		return format, true
	default:
		return "", false
	}
}

// thumbnail scales src to fit within size x size on a white background
func thumbnail(src image.Image, size int) image.Image {
	bounds := src.Bounds()
	w, h := bounds.Dx(), bounds.Dy()

	newW, newH := w, h
	if w > size || h > size {
		if w >= h {
			newW = size
			newH = h * size / w
		} else {
			newH = size
			newW = w * size / h
		}
	}
	if newW < 1 {
		newW = 1
	}
	if newH < 1 {
		newH = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, newW, newH))
	draw.Draw(dst, dst.Bounds(), &image.Uniform{C: color.White}, image.Point{}, draw.Src)
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), src, bounds, xdraw.Over, nil)
	return dst
}

func encodeJPEG(img image.Image, quality int) ([]byte, error) {
	buf := bytes.NewBuffer(nil)
	if err := jpeg.Encode(buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
