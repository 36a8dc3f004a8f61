package caption

import (
	"context"
	"os"

	lumeoerrors "github.com/lumeo-dev/lumeo/internal/errors"
)

// LoadFunc loads a caption model from disk into a live Session.
type LoadFunc func(ctx context.Context, modelPath string) (Session, error)

// FileFactory builds sessions from an on-disk model asset. The load function
// is injected by the build that links an actual model runtime; without one,
// captioning reports unavailable and degrades gracefully.
type FileFactory struct {
	modelPath string
	load      LoadFunc
}

// NewFileFactory creates a factory for the model at modelPath.
func NewFileFactory(modelPath string, load LoadFunc) *FileFactory {
	return &FileFactory{modelPath: modelPath, load: load}
}

// Available reports whether the model asset exists and a runtime is linked.
func (f *FileFactory) Available() bool {
	if f.modelPath == "" || f.load == nil {
		return false
	}
	_, err := os.Stat(f.modelPath)
	return err == nil
}

// New loads a session for one caption call.
func (f *FileFactory) New(ctx context.Context) (Session, error) {
	if !f.Available() {
		return nil, lumeoerrors.ModelUnavailable("caption", nil)
	}
	return f.load(ctx, f.modelPath)
}
