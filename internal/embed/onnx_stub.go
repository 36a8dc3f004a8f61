//go:build !cgo
// +build !cgo

package embed

import (
	"errors"
)

// ONNXEmbedder stub type when built without cgo (see onnx.go for the real
// implementation).
type ONNXEmbedder struct{ Embedder }

// NewONNXEmbedder returns an error when built without cgo.
func NewONNXEmbedder(_ string, _, _ int) (*ONNXEmbedder, error) {
	return nil, errors.New("ONNX embedder requires cgo; build with CGO_ENABLED=1 and onnxruntime")
}
