package rag

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Dinesh0401/RAG-Chatbot/internal/models"
	"github.com/Dinesh0401/RAG-Chatbot/internal/types"
)

const snippetLimit = 300

const promptTemplate = `You are an assistant which answers questions based only on the knowledge provided in the "The knowledge" section below.
Do not use external or internal world knowledge beyond the provided knowledge.
Keep the answer concise (max ~150 words). Do NOT repeat the full source text - exact source snippets are provided to the user separately.

Question: %s

The knowledge:
%s
`

type ServiceConfig struct {
	TopK        int           // retrieval depth when the caller passes none
	MaxAttempts int           // generation attempts per question
	RetryDelay  time.Duration // wait between generation attempts
}

// Service runs the two pipelines: ingestion (parse, chunk, embed, upsert)
// and query (retrieve, prompt, generate, cite). Stateless per call; the
// vector index is the only shared state.
type Service struct {
	config   ServiceConfig
	parser   types.Parser
	splitter types.Splitter
	index    types.VectorIndex
	chat     types.Generator
	logger   *zap.Logger
}

func NewService(config ServiceConfig, parser types.Parser, splitter types.Splitter,
	index types.VectorIndex, chat types.Generator, logger *zap.Logger) *Service {

	if config.TopK <= 0 {
		config.TopK = 5
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 2
	}
	if config.RetryDelay <= 0 {
		config.RetryDelay = time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Service{
		config:   config,
		parser:   parser,
		splitter: splitter,
		index:    index,
		chat:     chat,
		logger:   logger,
	}
}

// Ingest parses, chunks and indexes the given files. Files that fail to
// parse, or parse to only blank pages, are logged and skipped; the remaining
// files are still indexed. An empty accumulated chunk set is a valid
// zero-count outcome, not an error. Only the final upsert aborts the call.
func (s *Service) Ingest(ctx context.Context, files []models.SourceFile) (models.IngestionReport, error) {
	if len(files) == 0 {
		s.logger.Warn("ingest called with empty file list")
		return models.IngestionReport{}, fmt.Errorf("%w: no files provided", ErrValidation)
	}

	var all []models.Chunk
	pagesSeen := 0

	for _, file := range files {
		s.logger.Info("ingesting file", zap.String("source", file.Filename))

		pages, err := s.parser.Parse(file.Filename, file.Data)
		if err != nil {
			s.logger.Warn("failed to parse file, skipping",
				zap.String("source", file.Filename), zap.Error(err))
			continue
		}
		pagesSeen += len(pages)

		if !anyText(pages) {
			s.logger.Warn("no text extracted", zap.String("source", file.Filename))
			continue
		}

		chunks := s.splitter.Split(pages)
		s.logger.Info("created chunks",
			zap.String("source", file.Filename), zap.Int("count", len(chunks)))
		all = append(all, chunks...)
	}

	if len(all) == 0 {
		s.logger.Warn("no chunks to index after processing files")
		return models.IngestionReport{PagesSeen: pagesSeen}, nil
	}

	// Fresh ids on every ingest: re-ingesting a file accumulates duplicates
	// rather than overwriting earlier chunks.
	for i := range all {
		all[i].ID = uuid.NewString()
	}

	if err := s.index.Upsert(ctx, all); err != nil {
		return models.IngestionReport{}, err
	}

	s.logger.Info("indexed chunks", zap.Int("chunks", len(all)), zap.Int("pages", pagesSeen))
	return models.IngestionReport{ChunksWritten: len(all), PagesSeen: pagesSeen}, nil
}

// Answer retrieves the k most relevant chunks and prompts the model to
// answer from them alone. k <= 0 selects the configured default.
func (s *Service) Answer(ctx context.Context, question string, k int) (models.AnswerResult, error) {
	return s.answer(ctx, question, k, nil)
}

// AnswerStream behaves like Answer but forwards generation deltas to onDelta
// as they arrive. On a retried attempt deltas start over from the beginning;
// the returned result is always the output of the successful attempt only.
func (s *Service) AnswerStream(ctx context.Context, question string, k int, onDelta func(string)) (models.AnswerResult, error) {
	return s.answer(ctx, question, k, onDelta)
}

func (s *Service) answer(ctx context.Context, question string, k int, onDelta func(string)) (models.AnswerResult, error) {
	if strings.TrimSpace(question) == "" {
		return models.AnswerResult{}, fmt.Errorf("%w: empty question", ErrValidation)
	}
	if k <= 0 {
		k = s.config.TopK
	}

	// Retrieval failures mean the infrastructure is down; retrying here
	// would not help.
	docs, err := s.index.Retrieve(ctx, question, k)
	if err != nil {
		s.logger.Error("retrieval failed", zap.Error(err))
		return models.AnswerResult{}, err
	}
	s.logger.Info("retrieved documents", zap.Int("count", len(docs)))

	prompt := buildPrompt(question, docs)

	var answer strings.Builder
	var lastErr error
	for attempt := 1; attempt <= s.config.MaxAttempts; attempt++ {
		// Partial output of a failed attempt is discarded before retrying.
		answer.Reset()

		s.logger.Info("calling LLM", zap.Int("attempt", attempt))
		err := s.chat.Stream(ctx, prompt, func(delta string) {
			answer.WriteString(delta)
			if onDelta != nil {
				onDelta(delta)
			}
		})
		if err == nil {
			lastErr = nil
			break
		}
		lastErr = err
		s.logger.Warn("LLM call failed", zap.Int("attempt", attempt), zap.Error(err))
		if attempt < s.config.MaxAttempts {
			time.Sleep(s.config.RetryDelay)
		}
	}
	if lastErr != nil {
		s.logger.Error("LLM call failed after retries", zap.Error(lastErr))
		return models.AnswerResult{}, fmt.Errorf("%w: %w", ErrGeneration, lastErr)
	}

	sources := make([]models.Source, 0, len(docs))
	for _, doc := range docs {
		sources = append(sources, models.Source{
			Source:  doc.Source,
			Page:    doc.Page,
			Snippet: snippet(doc.Text, snippetLimit),
		})
	}

	return models.AnswerResult{Answer: answer.String(), Sources: sources}, nil
}

func buildPrompt(question string, docs []models.RetrievedDocument) string {
	var knowledge strings.Builder
	for _, doc := range docs {
		knowledge.WriteString(doc.Text)
		knowledge.WriteString("\n\n")
	}
	return fmt.Sprintf(promptTemplate, question, knowledge.String())
}

// snippet returns at most max characters from the start of text.
func snippet(text string, max int) string {
	if utf8.RuneCountInString(text) <= max {
		return text
	}
	return string([]rune(text)[:max])
}

func anyText(pages []models.PageUnit) bool {
	for _, page := range pages {
		if strings.TrimSpace(page.Text) != "" {
			return true
		}
	}
	return false
}
