//go:build cgo
// +build cgo

package embedding

import (
	"context"
	"fmt"
	"sync"

	"github.com/hyperjump/tsunagu/internal/failure"
	"github.com/hyperjump/tsunagu/pkg/utils"
	ort "github.com/yalue/onnxruntime_go"
)

// ONNXProvider runs a local sentence-embedding model (e.g. all-MiniLM-L6-v2) with
// ONNX Runtime. It requires CGO and the onnxruntime shared library.
type ONNXProvider struct {
	model      string
	dimensions int
	maxTokens  int
	tokenizer  Tokenizer

	// Inference reuses bound tensors, so Run calls are serialized.
	mu            sync.Mutex
	session       *ort.AdvancedSession
	inputIDs      *ort.Tensor[int64]
	attentionMask *ort.Tensor[int64]
	tokenTypeIDs  *ort.Tensor[int64]
	output        *ort.Tensor[float32]
}

// NewONNXProvider loads the model at modelPath. The ONNX environment is initialized on first use.
func NewONNXProvider(modelPath, model string, dimensions, maxTokens int) (*ONNXProvider, error) {
	if !ort.IsInitialized() {
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("failed to initialize ONNX runtime: %w", err)
		}
	}
	if maxTokens <= 0 {
		maxTokens = 256
	}
	p := &ONNXProvider{
		model:      model,
		dimensions: dimensions,
		maxTokens:  maxTokens,
		tokenizer:  &SimpleTokenizer{},
	}
	if err := p.allocate(modelPath); err != nil {
		_ = p.Close()
		return nil, err
	}
	return p, nil
}

func (p *ONNXProvider) allocate(modelPath string) error {
	shape := ort.NewShape(1, int64(p.maxTokens))
	var err error
	if p.inputIDs, err = ort.NewEmptyTensor[int64](shape); err != nil {
		return fmt.Errorf("failed to create input_ids tensor: %w", err)
	}
	if p.attentionMask, err = ort.NewEmptyTensor[int64](shape); err != nil {
		return fmt.Errorf("failed to create attention_mask tensor: %w", err)
	}
	if p.tokenTypeIDs, err = ort.NewEmptyTensor[int64](shape); err != nil {
		return fmt.Errorf("failed to create token_type_ids tensor: %w", err)
	}
	if p.output, err = ort.NewEmptyTensor[float32](ort.NewShape(1, int64(p.dimensions))); err != nil {
		return fmt.Errorf("failed to create output tensor: %w", err)
	}
	p.session, err = ort.NewAdvancedSession(
		modelPath,
		[]string{"input_ids", "attention_mask", "token_type_ids"},
		[]string{"output"},
		[]ort.ArbitraryTensor{p.inputIDs, p.attentionMask, p.tokenTypeIDs},
		[]ort.ArbitraryTensor{p.output},
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to create ONNX session for %s: %w", modelPath, err)
	}
	return nil
}

// Embed tokenizes text, runs the model, and returns the normalized output.
func (p *ONNXProvider) Embed(ctx context.Context, text string) (*Embedding, error) {
	if err := ctx.Err(); err != nil {
		return nil, providerError("onnx embed", err)
	}
	ids, mask, types := p.tokenizer.Tokenize(text, p.maxTokens)

	p.mu.Lock()
	defer p.mu.Unlock()
	copy(p.inputIDs.GetData(), ids)
	copy(p.attentionMask.GetData(), mask)
	copy(p.tokenTypeIDs.GetData(), types)
	if err := p.session.Run(); err != nil {
		return nil, failure.New(failure.ProviderUnavailable, "onnx embed", err)
	}
	vec := make([]float32, p.dimensions)
	copy(vec, p.output.GetData())
	utils.NormalizeL2(vec)
	return &Embedding{Vector: vec}, nil
}

// Name returns "onnx".
func (p *ONNXProvider) Name() string { return ProviderONNX }

// Model returns the configured model name.
func (p *ONNXProvider) Model() string { return p.model }

// Dimensions returns the embedding dimension.
func (p *ONNXProvider) Dimensions() int { return p.dimensions }

// Close destroys the session and its tensors.
func (p *ONNXProvider) Close() error {
	var err error
	if p.session != nil {
		err = p.session.Destroy()
		p.session = nil
	}
	if p.inputIDs != nil {
		_ = p.inputIDs.Destroy()
		p.inputIDs = nil
	}
	if p.attentionMask != nil {
		_ = p.attentionMask.Destroy()
		p.attentionMask = nil
	}
	if p.tokenTypeIDs != nil {
		_ = p.tokenTypeIDs.Destroy()
		p.tokenTypeIDs = nil
	}
	if p.output != nil {
		_ = p.output.Destroy()
		p.output = nil
	}
	return err
}
