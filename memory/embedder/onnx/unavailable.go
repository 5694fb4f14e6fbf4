//go:build !onnx

package onnx

import (
	"context"
	"errors"
)

// Available reports whether this binary was built with ONNX support.
const Available = false

// ErrUnavailable is returned by New when built without the onnx tag.
var ErrUnavailable = errors.New("onnx: binary built without the onnx build tag")

// Embedder is a placeholder that can never be constructed.
type Embedder struct{}

// New always fails without the onnx build tag.
func New(Config) (*Embedder, error) {
	return nil, ErrUnavailable
}

// Embed implements memory.Embedder.
func (*Embedder) Embed(context.Context, string) ([]float32, error) {
	return nil, ErrUnavailable
}

// Dimensions implements memory.Embedder.
func (*Embedder) Dimensions() int { return 0 }

// Close implements io.Closer.
func (*Embedder) Close() error { return nil }
