package models

// SourceFile is an uploaded document held in memory for the duration of one
// ingestion call.
type SourceFile struct {
	Filename string
	Data     []byte
}

// PageUnit is the text of a single PDF page. Page numbers are 1-indexed.
type PageUnit struct {
	Text   string
	Source string
	Page   int
}

// Chunk is a bounded window of page text, the unit stored and retrieved.
// ID is assigned at ingestion time and is the vector store's primary key.
type Chunk struct {
	ID     string
	Text   string
	Source string
	Page   int
}

// RetrievedDocument is one similarity-search hit, valid for the duration of a
// single query.
type RetrievedDocument struct {
	Text   string
	Source string
	Page   int
}

// Source is a citation attached to an answer. Snippet is a prefix of the
// retrieved chunk's text, at most 300 characters.
type Source struct {
	Source  string `json:"source"`
	Page    int    `json:"page"`
	Snippet string `json:"snippet"`
}

// AnswerResult is the query pipeline's output.
type AnswerResult struct {
	Answer  string   `json:"answer"`
	Sources []Source `json:"sources"`
}

// IngestionReport summarizes one ingestion call.
type IngestionReport struct {
	ChunksWritten int `json:"chunks_written"`
	PagesSeen     int `json:"pages_seen"`
}
