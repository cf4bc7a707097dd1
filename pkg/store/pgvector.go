package store

import (
	"context"
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/Dinesh0401/RAG-Chatbot/internal/models"
	"github.com/Dinesh0401/RAG-Chatbot/internal/types"
)

var (
	// ErrWrite reports a failed write to the vector index. Chunks inserted by
	// earlier batches of the same call stay in the index.
	ErrWrite = errors.New("vector index write failed")

	// ErrRetrieval reports a failed similarity query against the vector index.
	ErrRetrieval = errors.New("vector index retrieval failed")
)

type VectorStoreConfig struct {
	ConnString string
	TableName  string
	VectorDim  int
	BatchSize  int
	EmbedRate  float64 // embedding requests per second
}

// VectorStore keeps chunks and their embeddings in a pgvector-backed table
// and answers nearest-neighbour queries. It owns the embedding model; callers
// never touch raw vectors.
type VectorStore struct {
	config   VectorStoreConfig
	pool     *pgxpool.Pool
	embedder types.Embedder
	limiter  *rate.Limiter
	logger   *zap.Logger
}

func NewWithConfig(config VectorStoreConfig, embedder types.Embedder, logger *zap.Logger) (*VectorStore, error) {
	if embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.TableName == "" {
		config.TableName = "documents"
	}
	if config.VectorDim == 0 {
		config.VectorDim = 768 // nomic-embed-text dimension
	}
	if config.BatchSize == 0 {
		config.BatchSize = 64
	}
	if config.EmbedRate == 0 {
		config.EmbedRate = 8 // embedding batches per second
	}

	pool, err := pgxpool.New(context.Background(), config.ConnString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	vs := &VectorStore{
		config:   config,
		pool:     pool,
		embedder: embedder,
		limiter:  rate.NewLimiter(rate.Limit(config.EmbedRate), 1),
		logger:   logger,
	}

	if err := vs.initialize(); err != nil {
		pool.Close()
		return nil, err
	}

	return vs, nil
}

func (vs *VectorStore) initialize() error {
	ctx := context.Background()

	// Enable pgvector extension
	_, err := vs.pool.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector")
	if err != nil {
		return fmt.Errorf("failed to create vector extension: %w", err)
	}

	createTable := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			source TEXT NOT NULL,
			page INTEGER NOT NULL,
			content TEXT NOT NULL,
			embedding vector(%d)
		)`, vs.config.TableName, vs.config.VectorDim)

	_, err = vs.pool.Exec(ctx, createTable)
	if err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}

	createIndex := fmt.Sprintf(`
		CREATE INDEX IF NOT EXISTS %s_embedding_idx
		ON %s
		USING ivfflat (embedding vector_cosine_ops)
		WITH (lists = 100)`,
		vs.config.TableName, vs.config.TableName)

	_, err = vs.pool.Exec(ctx, createIndex)
	if err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}

	return nil
}

// Upsert embeds each chunk's text and writes the batch, keyed by the chunk
// ids the caller assigned. Writes happen per embedding batch; a failure does
// not roll back batches already committed.
func (vs *VectorStore) Upsert(ctx context.Context, chunks []models.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	stmt := fmt.Sprintf(`
		INSERT INTO %s (id, source, page, content, embedding)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			content = EXCLUDED.content,
			embedding = EXCLUDED.embedding`,
		vs.config.TableName)

	for start := 0; start < len(chunks); start += vs.config.BatchSize {
		end := start + vs.config.BatchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[start:end]

		texts := make([]string, len(batch))
		for i, chunk := range batch {
			texts[i] = sanitizeUTF8(chunk.Text)
		}

		if err := vs.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("%w: %v", ErrWrite, err)
		}
		vectors, err := vs.embedder.EmbedDocuments(ctx, texts)
		if err != nil {
			return fmt.Errorf("%w: embedding failed: %v", ErrWrite, err)
		}
		if len(vectors) != len(batch) {
			return fmt.Errorf("%w: embedder returned %d vectors for %d chunks",
				ErrWrite, len(vectors), len(batch))
		}

		if err := vs.insertBatch(ctx, stmt, batch, texts, vectors); err != nil {
			return fmt.Errorf("%w: %v", ErrWrite, err)
		}
		vs.logger.Debug("stored chunk batch",
			zap.Int("count", len(batch)), zap.String("table", vs.config.TableName))
	}

	return nil
}

func (vs *VectorStore) insertBatch(ctx context.Context, stmt string,
	batch []models.Chunk, texts []string, vectors [][]float32) error {

	tx, err := vs.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	for i, chunk := range batch {
		_, err = tx.Exec(ctx, stmt,
			chunk.ID,
			chunk.Source,
			chunk.Page,
			texts[i],
			pgvector.NewVector(vectors[i]),
		)
		if err != nil {
			return fmt.Errorf("failed to insert chunk %s: %w", chunk.ID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Retrieve embeds the query and returns the k nearest chunks by cosine
// distance, best first. Fewer than k documents come back when the index
// holds fewer rows.
func (vs *VectorStore) Retrieve(ctx context.Context, query string, k int) ([]models.RetrievedDocument, error) {
	if k <= 0 {
		k = 5
	}

	vector, err := vs.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: embedding failed: %v", ErrRetrieval, err)
	}

	sql := fmt.Sprintf(`
		SELECT content, source, page
		FROM %s
		ORDER BY embedding <=> $1
		LIMIT $2`,
		vs.config.TableName)

	rows, err := vs.pool.Query(ctx, sql, pgvector.NewVector(vector), k)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRetrieval, err)
	}
	defer rows.Close()

	var docs []models.RetrievedDocument
	for rows.Next() {
		var doc models.RetrievedDocument
		if err := rows.Scan(&doc.Text, &doc.Source, &doc.Page); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrRetrieval, err)
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRetrieval, err)
	}

	return docs, nil
}

func (vs *VectorStore) Close() {
	if vs.pool != nil {
		vs.pool.Close()
	}
}

func sanitizeUTF8(s string) string {
	if !utf8.ValidString(s) {
		v := make([]rune, 0, len(s))
		for i, r := range s {
			if r == utf8.RuneError {
				_, size := utf8.DecodeRuneInString(s[i:])
				if size == 1 {
					continue
				}
			}
			v = append(v, r)
		}
		return string(v)
	}
	return s
}
