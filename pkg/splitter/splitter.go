package splitter

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/Dinesh0401/RAG-Chatbot/internal/models"
)

// ErrConfig reports invalid chunking parameters.
var ErrConfig = errors.New("invalid splitter config")

type SplitterConfig struct {
	ChunkSize    int
	ChunkOverlap int
}

// Splitter cuts page text into overlapping windows, preferring paragraph
// breaks over line breaks, sentence ends and word boundaries before falling
// back to a hard cut.
type Splitter struct {
	config SplitterConfig
}

// cut marks in preference order
var cutMarks = []string{"\n\n", "\n", ". ", " "}

func NewWithConfig(config SplitterConfig) (*Splitter, error) {
	if config.ChunkSize == 0 {
		config.ChunkSize = 300
	}
	if config.ChunkOverlap == 0 {
		config.ChunkOverlap = 100
	}
	if config.ChunkSize < 0 {
		return nil, fmt.Errorf("%w: chunk_size must be positive", ErrConfig)
	}
	if config.ChunkOverlap < 0 {
		return nil, fmt.Errorf("%w: chunk_overlap cannot be negative", ErrConfig)
	}
	if config.ChunkOverlap >= config.ChunkSize {
		return nil, fmt.Errorf("%w: chunk_overlap must be less than chunk_size", ErrConfig)
	}

	return &Splitter{config: config}, nil
}

// Split cuts every page into chunks, carrying source and page metadata onto
// each derived chunk. Pages with blank text yield no chunks.
func (s *Splitter) Split(pages []models.PageUnit) []models.Chunk {
	var chunks []models.Chunk

	for _, page := range pages {
		for _, window := range s.splitText(page.Text) {
			chunks = append(chunks, models.Chunk{
				Text:   window,
				Source: page.Source,
				Page:   page.Page,
			})
		}
	}

	return chunks
}

func (s *Splitter) splitText(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	var windows []string
	size := s.config.ChunkSize
	overlap := s.config.ChunkOverlap

	start := 0
	for start < len(text) {
		if len(text)-start <= size {
			if piece := strings.TrimSpace(text[start:]); piece != "" {
				windows = append(windows, piece)
			}
			break
		}

		cut := cutPoint(text, start, start+size)
		if piece := strings.TrimSpace(text[start:cut]); piece != "" {
			windows = append(windows, piece)
		}

		next := cut - overlap
		for next > start && !utf8.RuneStart(text[next]) {
			next--
		}
		if next <= start {
			next = cut
		}
		start = next
	}

	return windows
}

// cutPoint picks the best boundary in (start, limit], trying each cut mark in
// preference order. Boundaries in the first half of the window are ignored so
// chunks stay close to the target size.
func cutPoint(text string, start, limit int) int {
	for limit > start+1 && !utf8.RuneStart(text[limit]) {
		limit--
	}
	min := start + (limit-start)/2

	for _, mark := range cutMarks {
		if idx := strings.LastIndex(text[start:limit], mark); idx >= 0 {
			cut := start + idx + len(mark)
			if cut > min {
				return cut
			}
		}
	}

	return limit
}
