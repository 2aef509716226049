package rerank

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/daulet/tokenizers"
	ort "github.com/yalue/onnxruntime_go"
)

// crossEncoderMaxSeqLen bounds the tokenized (query, document) pair length.
// Cross-encoders attend over the full pair jointly, so the cost is
// quadratic in this length; 384 covers a short query plus a chunk-sized
// passage without truncating most real inputs.
const crossEncoderMaxSeqLen = 384

// ONNXCrossEncoder scores (query, document) pairs with a sequence
// classification ONNX model (e.g. a MiniLM/BGE-reranker export) — one
// relevance logit per pair, no normalization applied.
type ONNXCrossEncoder struct {
	session   *ort.DynamicAdvancedSession
	tokenizer *tokenizers.Tokenizer
}

// NewONNXCrossEncoder loads model.onnx and tokenizer.json from modelDir.
// ortLibPath selects onnxruntime.so explicitly; pass "" for the system
// default. numThreads <= 0 picks min(4, NumCPU) to avoid thread
// contention on small machines.
func NewONNXCrossEncoder(modelDir, ortLibPath string, numThreads int) (*ONNXCrossEncoder, error) {
	modelPath := filepath.Join(modelDir, "model.onnx")
	tokenPath := filepath.Join(modelDir, "tokenizer.json")

	if _, err := os.Stat(modelPath); err != nil {
		return nil, fmt.Errorf("rerank: model not found at %s: %w", modelPath, err)
	}
	if _, err := os.Stat(tokenPath); err != nil {
		return nil, fmt.Errorf("rerank: tokenizer not found at %s: %w", tokenPath, err)
	}

	if ortLibPath != "" {
		ort.SetSharedLibraryPath(ortLibPath)
	}
	if err := ort.InitializeEnvironment(); err != nil {
		return nil, fmt.Errorf("rerank: init ort: %w", err)
	}

	if numThreads <= 0 {
		numThreads = runtime.NumCPU()
		if numThreads > 4 {
			numThreads = 4
		}
	}

	opts, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("rerank: session options: %w", err)
	}
	defer opts.Destroy()
	if err := opts.SetIntraOpNumThreads(numThreads); err != nil {
		return nil, fmt.Errorf("rerank: set intra threads: %w", err)
	}
	if err := opts.SetInterOpNumThreads(1); err != nil {
		return nil, fmt.Errorf("rerank: set inter threads: %w", err)
	}

	inputNames := []string{"input_ids", "attention_mask", "token_type_ids"}
	outputNames := []string{"logits"}
	session, err := ort.NewDynamicAdvancedSession(modelPath, inputNames, outputNames, opts)
	if err != nil {
		return nil, fmt.Errorf("rerank: create session: %w", err)
	}

	tk, err := tokenizers.FromFile(tokenPath)
	if err != nil {
		session.Destroy()
		return nil, fmt.Errorf("rerank: load tokenizer: %w", err)
	}

	return &ONNXCrossEncoder{session: session, tokenizer: tk}, nil
}

// Close releases the ONNX session and tokenizer.
func (e *ONNXCrossEncoder) Close() error {
	if e.session != nil {
		e.session.Destroy()
	}
	if e.tokenizer != nil {
		e.tokenizer.Close()
	}
	return nil
}

// Score runs one batched inference call over all (query, document) pairs.
func (e *ONNXCrossEncoder) Score(ctx context.Context, query string, documents []string) ([]float64, error) {
	if len(documents) == 0 {
		return nil, nil
	}

	type pairEncoding struct {
		ids  []int64
		mask []int64
	}

	// daulet/tokenizers has no pair-encode entry point exposed here, so the
	// query and document are joined with the model's separator and encoded
	// as a single sequence; token_type_ids stays all zero, matching what a
	// single-segment encode would produce.
	batchSize := len(documents)
	encodings := make([]pairEncoding, batchSize)
	maxLen := 0
	for i, doc := range documents {
		enc := e.tokenizer.EncodeWithOptions(
			query+" [SEP] "+doc,
			true,
			tokenizers.WithReturnAttentionMask(),
		)
		ids := enc.IDs
		if len(ids) > crossEncoderMaxSeqLen {
			ids = ids[:crossEncoderMaxSeqLen]
		}
		ids64 := make([]int64, len(ids))
		mask64 := make([]int64, len(ids))
		for j, v := range ids {
			ids64[j] = int64(v)
			mask64[j] = 1
		}
		if len(enc.AttentionMask) >= len(ids) {
			for j := range ids64 {
				mask64[j] = int64(enc.AttentionMask[j])
			}
		}
		encodings[i] = pairEncoding{ids: ids64, mask: mask64}
		if len(ids64) > maxLen {
			maxLen = len(ids64)
		}
	}
	if maxLen == 0 {
		return nil, fmt.Errorf("rerank: all pairs tokenized to zero length")
	}

	flatIDs := make([]int64, batchSize*maxLen)
	flatMask := make([]int64, batchSize*maxLen)
	flatType := make([]int64, batchSize*maxLen)
	for i, enc := range encodings {
		copy(flatIDs[i*maxLen:], enc.ids)
		copy(flatMask[i*maxLen:], enc.mask)
	}
	shape := ort.NewShape(int64(batchSize), int64(maxLen))

	inputIDs, err := ort.NewTensor(shape, flatIDs)
	if err != nil {
		return nil, fmt.Errorf("rerank: input_ids tensor: %w", err)
	}
	defer inputIDs.Destroy()
	attnMask, err := ort.NewTensor(shape, flatMask)
	if err != nil {
		return nil, fmt.Errorf("rerank: attention_mask tensor: %w", err)
	}
	defer attnMask.Destroy()
	typeIDs, err := ort.NewTensor(shape, flatType)
	if err != nil {
		return nil, fmt.Errorf("rerank: token_type_ids tensor: %w", err)
	}
	defer typeIDs.Destroy()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	inputs := []ort.Value{inputIDs, attnMask, typeIDs}
	outputs := []ort.Value{nil}
	if err := e.session.Run(inputs, outputs); err != nil {
		return nil, fmt.Errorf("rerank: ort run: %w", err)
	}
	defer func() {
		if outputs[0] != nil {
			outputs[0].Destroy()
		}
	}()

	logitsTensor, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return nil, fmt.Errorf("rerank: unexpected output type (want *Tensor[float32])")
	}
	data := logitsTensor.GetData()
	outShape := logitsTensor.GetShape()
	// Sequence classification heads emit either a single relevance logit
	// per pair or a [negative, positive] pair; take the last column either way.
	cols := 1
	if len(outShape) > 1 {
		cols = int(outShape[1])
	}

	scores := make([]float64, batchSize)
	for i := 0; i < batchSize; i++ {
		scores[i] = float64(data[i*cols+cols-1])
	}
	return scores, nil
}

var _ CrossEncoder = (*ONNXCrossEncoder)(nil)
