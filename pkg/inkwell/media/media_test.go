package media

import (
	"bytes"
	"context"
	"encoding/binary"
	"hash/crc32"
	"image"
	"image/color"
	"image/gif"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mikepea/inkwell/pkg/inkwell/apierr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testImage(w, h int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}
	return img
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, testImage(w, h)))
	return buf.Bytes()
}

func jpegBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, testImage(w, h), nil))
	return buf.Bytes()
}

func gifBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, gif.Encode(&buf, testImage(w, h), nil))
	return buf.Bytes()
}

func TestSaveWritesImageAndThumbnail(t *testing.T) {
	root := t.TempDir()
	store := NewStore(root, "/media/", 10)

	stored, err := store.Save(context.Background(), pngBytes(t, 600, 300))
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(stored.Path, PostImageDir+"/"))
	assert.True(t, strings.HasSuffix(stored.Path, ".png"))
	assert.True(t, strings.HasSuffix(stored.Thumbnail, "_thumb.jpg"))
	assert.Equal(t, 600, stored.Width)
	assert.Equal(t, 300, stored.Height)

	assert.FileExists(t, filepath.Join(root, filepath.FromSlash(stored.Path)))

	f, err := os.Open(filepath.Join(root, filepath.FromSlash(stored.Thumbnail)))
	require.NoError(t, err)
	defer f.Close()
	cfg, format, err := image.DecodeConfig(f)
	require.NoError(t, err)
	assert.Equal(t, "jpeg", format)
	assert.Equal(t, ThumbnailSize, cfg.Width)
	assert.Equal(t, ThumbnailSize/2, cfg.Height)
}

func TestSaveFormats(t *testing.T) {
	store := NewStore(t.TempDir(), "/media", 10)

	tests := []struct {
		name    string
		content []byte
		ext     string
	}{
		{"jpeg", jpegBytes(t, 40, 20), ".jpg"},
		{"png", pngBytes(t, 40, 20), ".png"},
		{"gif", gifBytes(t, 40, 20), ".gif"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stored, err := store.Save(context.Background(), tt.content)
			require.NoError(t, err)
			assert.True(t, strings.HasSuffix(stored.Path, tt.ext), stored.Path)
		})
	}
}

func TestSaveGeneratesUniqueNames(t *testing.T) {
	store := NewStore(t.TempDir(), "/media", 10)
	content := pngBytes(t, 10, 10)

	a, err := store.Save(context.Background(), content)
	require.NoError(t, err)
	b, err := store.Save(context.Background(), content)
	require.NoError(t, err)

	assert.NotEqual(t, a.Path, b.Path)
}

func TestSaveRejectsInvalidContent(t *testing.T) {
	store := NewStore(t.TempDir(), "/media", 1)

	tests := []struct {
		name    string
		content []byte
	}{
		{"empty", nil},
		{"text", []byte("notimage")},
		{"truncated png", pngBytes(t, 20, 20)[:40]},
		{"too large", append(pngBytes(t, 10, 10), make([]byte, 1024*1024)...)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := store.Save(context.Background(), tt.content)
			require.Error(t, err)

			var appErr *apierr.Error
			require.ErrorAs(t, err, &appErr)
			assert.Equal(t, 400, appErr.Status)
			assert.NotEmpty(t, appErr.Fields["image"])
		})
	}
}

func TestDelete(t *testing.T) {
	root := t.TempDir()
	store := NewStore(root, "/media", 10)

	stored, err := store.Save(context.Background(), pngBytes(t, 10, 10))
	require.NoError(t, err)

	store.Delete(context.Background(), stored.Path, stored.Thumbnail, "", "../outside.txt", "uploads/post/missing.png")

	assert.NoFileExists(t, filepath.Join(root, filepath.FromSlash(stored.Path)))
	assert.NoFileExists(t, filepath.Join(root, filepath.FromSlash(stored.Thumbnail)))
}

func TestURL(t *testing.T) {
	store := NewStore(t.TempDir(), "media/", 10)
	assert.Equal(t, "/media/uploads/post/a.png", store.URL("uploads/post/a.png"))
	assert.Equal(t, "", store.URL(""))
}

// pngHeader returns a PNG that declares w x h pixels but carries no image data
func pngHeader(w, h uint32) []byte {
	var buf bytes.Buffer
	buf.WriteString("\x89PNG\r\n\x1a\n")

	ihdr := make([]byte, 13)
	binary.BigEndian.PutUint32(ihdr[0:4], w)
	binary.BigEndian.PutUint32(ihdr[4:8], h)
	ihdr[8] = 8 // bit depth
	ihdr[9] = 6 // RGBA

	chunk := append([]byte("IHDR"), ihdr...)
	_ = binary.Write(&buf, binary.BigEndian, uint32(len(ihdr)))
	buf.Write(chunk)
	_ = binary.Write(&buf, binary.BigEndian, crc32.ChecksumIEEE(chunk))
	return buf.Bytes()
}

func TestSaveRejectsOversizedDimensions(t *testing.T) {
	root := t.TempDir()
	store := NewStore(root, "/media", 1)

	_, err := store.Save(context.Background(), pngHeader(30000, 30000))
	require.Error(t, err)
	var appErr *apierr.Error
	require.ErrorAs(t, err, &appErr)
	assert.Contains(t, appErr.Fields["image"][0], "dimensions too large")

	_, statErr := os.Stat(filepath.Join(root, PostImageDir))
	assert.True(t, os.IsNotExist(statErr), "nothing should be written")
}

func TestSaveRespectsPixelLimit(t *testing.T) {
	store := NewStore(t.TempDir(), "/media", 1).WithMaxPixels(100)

	_, err := store.Save(context.Background(), pngBytes(t, 20, 20))
	require.Error(t, err)

	stored, err := store.Save(context.Background(), pngBytes(t, 10, 10))
	require.NoError(t, err)
	assert.Equal(t, 10, stored.Width)
}
