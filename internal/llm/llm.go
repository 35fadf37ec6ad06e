package llm

import "context"

// Provider is the text and vision completion port used by every agent.
// One configured provider serves the whole process; implementations hold
// no per-call state.
type Provider interface {
	// Complete returns the model's reply to a single prompt.
	Complete(ctx context.Context, req CompletionRequest) (string, error)

	// DescribeImage asks a vision-capable model about an image.
	DescribeImage(ctx context.Context, img Image, prompt string) (string, error)
}

// Embedder produces embedding vectors for knowledge-store ingestion and search.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// CompletionRequest describes a single text completion.
type CompletionRequest struct {
	System      string
	Prompt      string
	MaxTokens   int
	Temperature float64
	// JSON requests a JSON object response when the backend supports it.
	JSON bool
}

// Image is raw image bytes with their MIME type (e.g. "image/png").
type Image struct {
	Data     []byte
	MIMEType string
}
