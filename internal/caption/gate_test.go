package caption

import (
	"context"
	"errors"
	"image"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumeo-dev/lumeo/internal/embed"
)

// fakeSession returns a fixed caption, optionally after a delay.
type fakeSession struct {
	caption string
	delay   time.Duration
	closed  bool
}

func (s *fakeSession) Generate(ctx context.Context, _ image.Image) (string, error) {
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return s.caption, nil
}

func (s *fakeSession) Close() error {
	s.closed = true
	return nil
}

// fakeFactory hands out fakeSessions and records how many were created.
type fakeFactory struct {
	mu        sync.Mutex
	session   *fakeSession
	available bool
	created   int
	err       error
}

func (f *fakeFactory) New(_ context.Context) (Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.created++
	return f.session, nil
}

func (f *fakeFactory) Available() bool { return f.available }

func testImage() image.Image {
	return image.NewRGBA(image.Rect(0, 0, 4, 4))
}

func TestCaptionReturnsSanitizedText(t *testing.T) {
	factory := &fakeFactory{available: true, session: &fakeSession{caption: " a dog in the park <end_of_turn>"}}
	gate := NewGate(factory, nil, time.Second)

	text, ok := gate.Caption(context.Background(), testImage())
	require.True(t, ok)
	assert.Equal(t, "a dog in the park", text)
	assert.True(t, factory.session.closed, "session must be released after the call")
}

func TestCaptionUnavailableModelReturnsNone(t *testing.T) {
	gate := NewGate(&fakeFactory{available: false}, nil, time.Second)

	text, ok := gate.Caption(context.Background(), testImage())
	assert.False(t, ok)
	assert.Empty(t, text)
}

func TestCaptionNilFactoryReturnsNone(t *testing.T) {
	gate := NewGate(nil, nil, time.Second)

	_, ok := gate.Caption(context.Background(), testImage())
	assert.False(t, ok)
	assert.False(t, gate.Available())
}

func TestCaptionSessionErrorReturnsNone(t *testing.T) {
	factory := &fakeFactory{available: true, err: errors.New("asset corrupt")}
	gate := NewGate(factory, nil, time.Second)

	_, ok := gate.Caption(context.Background(), testImage())
	assert.False(t, ok)
}

func TestCaptionTimeoutReturnsNone(t *testing.T) {
	factory := &fakeFactory{available: true, session: &fakeSession{caption: "slow", delay: 500 * time.Millisecond}}
	gate := NewGate(factory, nil, 20*time.Millisecond)

	start := time.Now()
	_, ok := gate.Caption(context.Background(), testImage())
	assert.False(t, ok)
	assert.Less(t, time.Since(start), 400*time.Millisecond, "timeout must abort generation")
	assert.True(t, factory.session.closed, "session must be released on timeout")
}

func TestCaptionBlankResultReturnsNone(t *testing.T) {
	factory := &fakeFactory{available: true, session: &fakeSession{caption: "  <eos>  "}}
	gate := NewGate(factory, nil, time.Second)

	_, ok := gate.Caption(context.Background(), testImage())
	assert.False(t, ok)
}

func TestCaptionCallsAreMutuallyExclusive(t *testing.T) {
	factory := &fakeFactory{available: true, session: &fakeSession{caption: "busy", delay: 50 * time.Millisecond}}
	gate := NewGate(factory, nil, time.Second)

	var mu sync.Mutex
	active, maxActive := 0, 0

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := gate.sem.Acquire(context.Background(), 1); err != nil {
				return
			}
			mu.Lock()
			active++
			if active > maxActive {
				maxActive = active
			}
			mu.Unlock()

			time.Sleep(10 * time.Millisecond)

			mu.Lock()
			active--
			mu.Unlock()
			gate.sem.Release(1)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxActive, "gate must admit one caller at a time")
}

func TestEmbedTextSharesGateAndSkipsBlank(t *testing.T) {
	embedder := embed.NewStaticEmbedder(32)
	gate := NewGate(&fakeFactory{available: true, session: &fakeSession{caption: "x"}}, embedder, time.Second)

	vec, ok := gate.EmbedText(context.Background(), "red bicycle")
	require.True(t, ok)
	assert.Len(t, vec, 32)

	_, ok = gate.EmbedText(context.Background(), "   ")
	assert.False(t, ok)
}

func TestEmbedTextWithoutEmbedderReturnsNone(t *testing.T) {
	gate := NewGate(&fakeFactory{available: true}, nil, time.Second)

	_, ok := gate.EmbedText(context.Background(), "query")
	assert.False(t, ok)
}

func TestSanitizeStripsEndMarkers(t *testing.T) {
	assert.Equal(t, "a cat", sanitize("a cat<end_of_turn> trailing"))
	assert.Equal(t, "a cat", sanitize("  a cat</s>"))
	assert.Equal(t, "", sanitize("<eos>"))
}
