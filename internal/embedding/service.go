package embedding

import (
	"context"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/recall-labs/recallai/internal/domain"
	"github.com/recall-labs/recallai/internal/openai"
)

const (
	// DefaultMaxConcurrent bounds in-flight model calls system-wide
	DefaultMaxConcurrent = 4
	// DefaultMaxRetries is the number of retries after the first attempt
	DefaultMaxRetries = 3
	// DefaultRetryBaseDelay is the first backoff interval; it doubles per attempt
	DefaultRetryBaseDelay = 300 * time.Millisecond
	// DefaultCallTimeout is the fixed per-call timeout at the model boundary
	DefaultCallTimeout = 15 * time.Second
)

// ModelClient is the narrow interface over the underlying embedding model.
type ModelClient interface {
	CreateEmbedding(ctx context.Context, text string) ([]float32, error)
}

// Config controls the embedding service.
type Config struct {
	Model          string
	Dimensions     int
	MaxConcurrent  int
	MaxRetries     int
	RetryBaseDelay time.Duration
	CallTimeout    time.Duration
}

// Service generates embeddings with bounded concurrency, retry, and
// dimension/finiteness validation. It does no caching; caching is the chunk
// store's responsibility.
type Service struct {
	client ModelClient
	cfg    Config
	sem    chan struct{}
}

// NewService creates a Service, resolving unset config fields to defaults.
// The expected dimension is derived from the model name when not set
// explicitly.
func NewService(client ModelClient, cfg Config) *Service {
	if cfg.Dimensions <= 0 {
		cfg.Dimensions = openai.ModelDimensions(cfg.Model)
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = DefaultMaxConcurrent
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.RetryBaseDelay <= 0 {
		cfg.RetryBaseDelay = DefaultRetryBaseDelay
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = DefaultCallTimeout
	}
	return &Service{
		client: client,
		cfg:    cfg,
		sem:    make(chan struct{}, cfg.MaxConcurrent),
	}
}

// Config returns the resolved service configuration.
func (s *Service) Config() Config {
	return s.cfg
}

// Generate embeds a single text. Input is trim-validated before any model
// call; the result is validated for dimension and finiteness.
func (s *Service) Generate(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, domain.ErrEmptyText
	}

	select {
	case s.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { <-s.sem }()

	var embedding []float32
	err := retryWithBackoff(ctx, s.cfg.MaxRetries, s.cfg.RetryBaseDelay, func(ctx context.Context) error {
		callCtx, cancel := context.WithTimeout(ctx, s.cfg.CallTimeout)
		defer cancel()

		result, err := s.client.CreateEmbedding(callCtx, text)
		if err != nil {
			return err
		}
		embedding = result
		return nil
	})
	if err != nil {
		return nil, err
	}

	return s.validate(embedding)
}

// GenerateBatch embeds each text, preserving input order. The semaphore
// bounds actual model concurrency regardless of batch size; the first error
// aborts the batch.
func (s *Service) GenerateBatch(ctx context.Context, texts []string) ([][]float32, error) {
	results := make([][]float32, len(texts))
	errs := make([]error, len(texts))

	var wg sync.WaitGroup
	for i, text := range texts {
		wg.Add(1)
		go func(i int, text string) {
			defer wg.Done()
			results[i], errs[i] = s.Generate(ctx, text)
		}(i, text)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return results, nil
}

// Healthy probes the model with a trivial generation.
func (s *Service) Healthy(ctx context.Context) bool {
	_, err := s.Generate(ctx, "healthcheck")
	return err == nil
}

func (s *Service) validate(embedding []float32) ([]float32, error) {
	if len(embedding) != s.cfg.Dimensions {
		return nil, domain.NewDimensionMismatchError(s.cfg.Dimensions, len(embedding))
	}
	for i, v := range embedding {
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, domain.NewInvalidEmbeddingError(i)
		}
	}
	return embedding, nil
}

var (
	defaultMu  sync.Mutex
	defaultSvc *Service
)

// InitDefault constructs the process-wide service once; later calls return
// the existing instance unchanged.
func InitDefault(client ModelClient, cfg Config) *Service {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultSvc == nil {
		defaultSvc = NewService(client, cfg)
	}
	return defaultSvc
}

// Default returns the process-wide service, or nil before InitDefault.
func Default() *Service {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	return defaultSvc
}

// ResetDefault clears the process-wide service. Test isolation only.
func ResetDefault() {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	defaultSvc = nil
}
