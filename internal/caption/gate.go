// Package caption generates image descriptions through a heavyweight local
// model. All model access is funneled through a Gate that serializes calls
// and bounds their runtime; failures degrade to "no caption" rather than
// erroring the caller.
package caption

import (
	"context"
	"image"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/lumeo-dev/lumeo/internal/embed"
)

// Session is one loaded captioning model instance. Sessions are created per
// call and closed immediately after, keeping peak memory bounded.
type Session interface {
	// Generate produces a caption for the image.
	Generate(ctx context.Context, img image.Image) (string, error)
	Close() error
}

// SessionFactory constructs caption sessions.
type SessionFactory interface {
	// New loads a session. Expensive; callers hold the gate while loading.
	New(ctx context.Context) (Session, error)
	// Available reports whether the model asset exists without loading it.
	Available() bool
}

// endMarkers are generation artifacts stripped from captions.
var endMarkers = []string{"<end_of_turn>", "<eos>", "</s>"}

// Gate serializes caption model access. At most one caption or caption-query
// embedding runs at a time, and each caption call is bounded by the
// configured timeout. Both operations report success with a bool: false
// means "no result", never an abort.
type Gate struct {
	sem      *semaphore.Weighted
	factory  SessionFactory
	embedder embed.Embedder
	timeout  time.Duration
}

// NewGate creates a caption gate. The embedder is used for caption-space
// query embeddings and shares the gate's exclusivity.
func NewGate(factory SessionFactory, embedder embed.Embedder, timeout time.Duration) *Gate {
	return &Gate{
		sem:      semaphore.NewWeighted(1),
		factory:  factory,
		embedder: embedder,
		timeout:  timeout,
	}
}

// Available reports whether captioning can run at all.
func (g *Gate) Available() bool {
	return g.factory != nil && g.factory.Available()
}

// Caption generates a description for the image. Returns ("", false) when
// the model is unavailable, generation exceeds the timeout, or the model
// produces a blank caption.
func (g *Gate) Caption(ctx context.Context, img image.Image) (string, bool) {
	if !g.Available() {
		return "", false
	}

	if err := g.sem.Acquire(ctx, 1); err != nil {
		return "", false
	}
	defer g.sem.Release(1)

	tctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	session, err := g.factory.New(tctx)
	if err != nil {
		slog.Warn("caption session unavailable", "error", err)
		return "", false
	}
	defer func() { _ = session.Close() }()

	raw, err := session.Generate(tctx, img)
	if err != nil {
		slog.Debug("caption generation failed", "error", err)
		return "", false
	}

	text := sanitize(raw)
	if text == "" {
		return "", false
	}
	return text, true
}

// EmbedText embeds text in the caption embedding space. Returns (nil, false)
// for blank input or when the embedder is unavailable. Shares the gate so
// query embedding never overlaps a running caption.
func (g *Gate) EmbedText(ctx context.Context, text string) ([]float32, bool) {
	if strings.TrimSpace(text) == "" {
		return nil, false
	}
	if g.embedder == nil || !g.embedder.Available(ctx) {
		return nil, false
	}

	if err := g.sem.Acquire(ctx, 1); err != nil {
		return nil, false
	}
	defer g.sem.Release(1)

	vec, err := g.embedder.Embed(ctx, text)
	if err != nil {
		slog.Debug("caption query embedding failed", "error", err)
		return nil, false
	}
	return vec, true
}

// sanitize strips generation end markers and surrounding whitespace.
func sanitize(raw string) string {
	text := raw
	for _, marker := range endMarkers {
		if idx := strings.Index(text, marker); idx >= 0 {
			text = text[:idx]
		}
	}
	return strings.TrimSpace(text)
}
