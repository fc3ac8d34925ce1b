package capability

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/thomasbeckford/pasichat/internal/domain"
	"github.com/thomasbeckford/pasichat/internal/usecase/ingest"
)

// Config tunes the dispatch retry loop.
type Config struct {
	MaxAttempts int           // attempts per capability, including the first
	Budget      time.Duration // wall-clock bound for one dispatch
	BackoffUnit time.Duration // base delay unit, time.Second in production
}

// Dispatcher routes capability calls to the pipeline services, retrying
// rate-limited attempts with exponential backoff inside a wall-clock
// budget. Any other error propagates immediately.
type Dispatcher struct {
	ingestor   Ingestor
	retriever  Retriever
	extractor  Extractor
	understand Understander
	cfg        Config
	log        *zap.Logger
}

func NewDispatcher(ingestor Ingestor, retriever Retriever, extractor Extractor, understand Understander, cfg Config, log *zap.Logger) *Dispatcher {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.Budget <= 0 {
		cfg.Budget = 30 * time.Second
	}
	if cfg.BackoffUnit <= 0 {
		cfg.BackoffUnit = time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Dispatcher{
		ingestor:   ingestor,
		retriever:  retriever,
		extractor:  extractor,
		understand: understand,
		cfg:        cfg,
		log:        log,
	}
}

// Dispatch decodes args for the named capability and runs it. This is
// the entry point for tool-style callers that pick capabilities by
// name and only supply arguments.
func (d *Dispatcher) Dispatch(ctx context.Context, name string, args json.RawMessage) (any, error) {
	parsed, err := ParseName(name)
	if err != nil {
		return nil, err
	}

	switch parsed {
	case AddFact:
		var req AddFactRequest
		if err := decodeArgs(args, &req); err != nil {
			return nil, err
		}
		return d.AddFact(ctx, req)
	case AddDocument:
		var req AddDocumentRequest
		if err := decodeArgs(args, &req); err != nil {
			return nil, err
		}
		return d.AddDocument(ctx, req)
	case GetInformation:
		var req GetInformationRequest
		if err := decodeArgs(args, &req); err != nil {
			return nil, err
		}
		return d.GetInformation(ctx, req)
	case UnderstandQuery:
		var req UnderstandQueryRequest
		if err := decodeArgs(args, &req); err != nil {
			return nil, err
		}
		return d.UnderstandQuery(ctx, req)
	}
	return nil, fmt.Errorf("%w: %q", domain.ErrUnknownCapability, name)
}

// AddFact chunks and stores a free-text fact.
func (d *Dispatcher) AddFact(ctx context.Context, req AddFactRequest) (AddFactResult, error) {
	if strings.TrimSpace(req.Content) == "" {
		return AddFactResult{}, fmt.Errorf("%w: fact content", domain.ErrEmptyContent)
	}

	var res AddFactResult
	err := d.run(ctx, "add_fact", func(ctx context.Context) error {
		stored, err := d.ingestor.IngestText(ctx, req.Content, ingest.SourceFact)
		res.Stored = stored
		return err
	})
	return res, err
}

// AddDocument extracts a PDF and stores its passages.
func (d *Dispatcher) AddDocument(ctx context.Context, req AddDocumentRequest) (AddDocumentResult, error) {
	if len(req.Data) == 0 {
		return AddDocumentResult{}, fmt.Errorf("%w: empty document", domain.ErrInvalidUpload)
	}

	chunks, err := d.extractor.ExtractText(req.Data)
	if err != nil {
		return AddDocumentResult{}, err
	}

	res := AddDocumentResult{Chunks: len(chunks)}
	err = d.run(ctx, "add_document", func(ctx context.Context) error {
		stored, err := d.ingestor.IngestChunks(ctx, chunks, ingest.SourceDocument)
		res.Stored = stored
		return err
	})
	return res, err
}

// GetInformation searches the knowledge base with the question and any
// extra keyword formulations supplied by the caller.
func (d *Dispatcher) GetInformation(ctx context.Context, req GetInformationRequest) (GetInformationResult, error) {
	if strings.TrimSpace(req.Question) == "" {
		return GetInformationResult{}, fmt.Errorf("%w: question", domain.ErrEmptyContent)
	}

	queries := append([]string{req.Question}, req.Keywords...)

	var res GetInformationResult
	err := d.run(ctx, "get_information", func(ctx context.Context) error {
		matches, err := d.retriever.Retrieve(ctx, queries)
		res.Matches = matches
		return err
	})
	return res, err
}

// UnderstandQuery returns the original query plus up to three similar
// questions. When the chat provider fails after retries, the result
// degrades to the original query alone instead of erroring.
func (d *Dispatcher) UnderstandQuery(ctx context.Context, req UnderstandQueryRequest) (UnderstandQueryResult, error) {
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return UnderstandQueryResult{}, fmt.Errorf("%w: query", domain.ErrEmptyContent)
	}

	var similar []string
	err := d.run(ctx, "understand_query", func(ctx context.Context) error {
		questions, err := d.understand.SimilarQuestions(ctx, query)
		similar = questions
		return err
	})
	if err != nil {
		d.log.Warn("query understanding failed, using original query only",
			zap.String("query", query),
			zap.Error(err))
		return UnderstandQueryResult{Queries: []string{query}}, nil
	}

	return UnderstandQueryResult{Queries: append([]string{query}, similar...)}, nil
}

// run executes fn under the dispatch budget, retrying rate-limited
// attempts with 2^attempt backoff.
func (d *Dispatcher) run(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, d.cfg.Budget)
	defer cancel()

	var err error
	for attempt := 1; attempt <= d.cfg.MaxAttempts; attempt++ {
		err = fn(ctx)
		if err == nil || !errors.Is(err, domain.ErrRateLimited) {
			return err
		}
		if attempt == d.cfg.MaxAttempts {
			break
		}

		delay := time.Duration(1<<attempt) * d.cfg.BackoffUnit
		d.log.Warn("rate limited, backing off",
			zap.String("capability", op),
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay))

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return fmt.Errorf("%s: budget exhausted during backoff: %w", op, ctx.Err())
		}
	}
	return fmt.Errorf("%s: %d attempts: %w", op, d.cfg.MaxAttempts, err)
}

func decodeArgs(args json.RawMessage, dst any) error {
	if len(args) == 0 {
		return fmt.Errorf("%w: missing arguments", domain.ErrInvalidArgument)
	}
	if err := json.Unmarshal(args, dst); err != nil {
		return fmt.Errorf("decode arguments: %v: %w", err, domain.ErrInvalidArgument)
	}
	return nil
}
