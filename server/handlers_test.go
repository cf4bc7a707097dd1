package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Dinesh0401/RAG-Chatbot/internal/models"
	"github.com/Dinesh0401/RAG-Chatbot/pkg/rag"
	"github.com/Dinesh0401/RAG-Chatbot/pkg/store"
)

type mockService struct {
	ingestReport models.IngestionReport
	ingestErr    error
	ingested     [][]models.SourceFile
	answer       models.AnswerResult
	answerErr    error
	deltas       []string
	lastQuestion string
	lastK        int
}

func (m *mockService) Ingest(_ context.Context, files []models.SourceFile) (models.IngestionReport, error) {
	m.ingested = append(m.ingested, files)
	return m.ingestReport, m.ingestErr
}

func (m *mockService) Answer(_ context.Context, question string, k int) (models.AnswerResult, error) {
	m.lastQuestion = question
	m.lastK = k
	return m.answer, m.answerErr
}

func (m *mockService) AnswerStream(ctx context.Context, question string, k int, onDelta func(string)) (models.AnswerResult, error) {
	for _, d := range m.deltas {
		onDelta(d)
	}
	return m.Answer(ctx, question, k)
}

func newTestServer(service RAGService) *Server {
	return NewServer(Config{Host: "127.0.0.1", Port: 8000}, service, zap.NewNop())
}

func postForm(t *testing.T, handler http.Handler, form string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(form))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	return w
}

func TestHandleHealth(t *testing.T) {
	srv := newTestServer(nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	srv.routes().ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var out map[string]string
	require.NoError(t, json.NewDecoder(w.Body).Decode(&out))
	assert.Equal(t, "ok", out["status"])
}

func TestHandleChat_serviceUnavailable(t *testing.T) {
	srv := newTestServer(nil)

	w := postForm(t, srv.routes(), "question=hello")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestHandleChat_missingQuestion(t *testing.T) {
	srv := newTestServer(&mockService{})

	for _, form := range []string{"", "question=", "question=%20%20"} {
		w := postForm(t, srv.routes(), form)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	}
}

func TestHandleChat_invalidK(t *testing.T) {
	srv := newTestServer(&mockService{})

	for _, form := range []string{"question=hi&k=abc", "question=hi&k=0", "question=hi&k=-2"} {
		w := postForm(t, srv.routes(), form)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	}
}

func TestHandleChat_success(t *testing.T) {
	service := &mockService{
		answer: models.AnswerResult{
			Answer: "42",
			Sources: []models.Source{
				{Source: "guide.pdf", Page: 3, Snippet: "the answer is 42"},
			},
		},
	}
	srv := newTestServer(service)

	w := postForm(t, srv.routes(), "question=what+is+the+answer&k=2")
	require.Equal(t, http.StatusOK, w.Code)

	var out models.AnswerResult
	require.NoError(t, json.NewDecoder(w.Body).Decode(&out))
	assert.Equal(t, "42", out.Answer)
	require.Len(t, out.Sources, 1)
	assert.Equal(t, "guide.pdf", out.Sources[0].Source)

	assert.Equal(t, "what is the answer", service.lastQuestion)
	assert.Equal(t, 2, service.lastK)
	assert.Empty(t, service.ingested, "no uploads means no ingestion")
}

func TestHandleChat_defaultK(t *testing.T) {
	service := &mockService{answer: models.AnswerResult{Answer: "ok"}}
	srv := newTestServer(service)

	w := postForm(t, srv.routes(), "question=hi")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 5, service.lastK)
}

func TestHandleChat_infraErrorsMapTo502(t *testing.T) {
	tests := []error{
		fmt.Errorf("%w: index offline", store.ErrRetrieval),
		fmt.Errorf("%w: model timed out", rag.ErrGeneration),
	}

	for _, answerErr := range tests {
		service := &mockService{answerErr: answerErr}
		srv := newTestServer(service)

		w := postForm(t, srv.routes(), "question=hi")
		assert.Equal(t, http.StatusBadGateway, w.Code)

		var out map[string]string
		require.NoError(t, json.NewDecoder(w.Body).Decode(&out))
		assert.Equal(t, "upstream service error", out["detail"],
			"infrastructure details must not leak to clients")
	}
}

func TestHandleChat_unclassifiedErrorMapsTo500(t *testing.T) {
	service := &mockService{answerErr: fmt.Errorf("something odd")}
	srv := newTestServer(service)

	w := postForm(t, srv.routes(), "question=hi")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestHandleChat_withUpload(t *testing.T) {
	service := &mockService{
		ingestReport: models.IngestionReport{ChunksWritten: 3, PagesSeen: 2},
		answer:       models.AnswerResult{Answer: "from the upload"},
	}
	srv := newTestServer(service)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	require.NoError(t, mw.WriteField("question", "what does the file say?"))
	part, err := mw.CreateFormFile("files", "upload.pdf")
	require.NoError(t, err)
	_, err = part.Write([]byte("%PDF-1.4 fake body"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/chat", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	srv.routes().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, service.ingested, 1)
	require.Len(t, service.ingested[0], 1)
	assert.Equal(t, "upload.pdf", service.ingested[0][0].Filename)
	assert.Equal(t, []byte("%PDF-1.4 fake body"), service.ingested[0][0].Data)
}

func TestHandleChat_ingestionFailureMapsTo500(t *testing.T) {
	service := &mockService{ingestErr: fmt.Errorf("%w: quota exceeded", store.ErrWrite)}
	srv := newTestServer(service)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	require.NoError(t, mw.WriteField("question", "anything"))
	part, err := mw.CreateFormFile("files", "doc.pdf")
	require.NoError(t, err)
	_, err = part.Write([]byte("%PDF"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/chat", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	srv.routes().ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestWebSocket_streamsAnswer(t *testing.T) {
	service := &mockService{
		deltas: []string{"Hello ", "world"},
		answer: models.AnswerResult{Answer: "Hello world"},
	}
	srv := newTestServer(service)

	ts := httptest.NewServer(srv.routes())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(wsRequest{Question: "hi", K: 2}))

	var streamed []string
	for {
		var msg wsMessage
		require.NoError(t, conn.ReadJSON(&msg))
		if msg.Type == "response" {
			assert.Equal(t, "Hello world", msg.Content)
			break
		}
		require.Equal(t, "stream", msg.Type)
		streamed = append(streamed, msg.Content)
	}
	assert.Equal(t, []string{"Hello ", "world"}, streamed)
}
