// Package onnx runs a sentence-transformer model locally with ONNX Runtime.
//
// The real implementation is compiled with the "onnx" build tag, which needs
// the onnxruntime shared library at runtime. Without the tag New returns
// ErrUnavailable.
package onnx

// Config for the ONNX embedder.
type Config struct {
	ModelPath         string // Path to .onnx model file
	TokenizerPath     string // Path to tokenizer.json
	LibraryPath       string // onnxruntime shared library; empty uses the platform default
	Dimensions        int    // Embedding dimensions (384 for MiniLM)
	MaxSequenceLength int
}

// DefaultConfig matches all-MiniLM-L6-v2.
var DefaultConfig = Config{
	Dimensions:        384,
	MaxSequenceLength: 128,
}
