package image

import (
	"context"
	"image"
	"os"
	"path/filepath"
	"strings"

	"github.com/lumeo-dev/lumeo/internal/store"
)

// mimeByExt maps supported file extensions to MIME types. Extension-based
// detection is enough here since the decoder has already validated the bytes.
var mimeByExt = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
}

// FileMetadataExtractor collects descriptive metadata from the source file
// and the decoded pixels.
type FileMetadataExtractor struct{}

// NewFileMetadataExtractor creates a filesystem metadata extractor.
func NewFileMetadataExtractor() *FileMetadataExtractor {
	return &FileMetadataExtractor{}
}

// Extract builds Metadata for the file at path. Fields that cannot be
// determined stay nil rather than zero.
func (m *FileMetadataExtractor) Extract(ctx context.Context, path string, img image.Image) (store.Metadata, error) {
	if err := ctx.Err(); err != nil {
		return store.Metadata{}, err
	}

	meta := store.Metadata{}

	b := img.Bounds()
	meta.Width = b.Dx()
	meta.Height = b.Dy()

	name := filepath.Base(path)
	meta.DisplayName = &name

	if mime, ok := mimeByExt[strings.ToLower(filepath.Ext(path))]; ok {
		meta.MimeType = &mime
	}

	// The containing directory doubles as the album name.
	if album := filepath.Base(filepath.Dir(path)); album != "." && album != string(filepath.Separator) {
		meta.Album = &album
	}

	info, err := os.Stat(path)
	if err != nil {
		return store.Metadata{}, err
	}
	size := info.Size()
	meta.SizeBytes = &size
	modified := info.ModTime()
	meta.DateModified = &modified

	return meta, nil
}
