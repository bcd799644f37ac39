package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/paperstudio/platform/internal/chat"
	"github.com/paperstudio/platform/internal/storage"
	"github.com/paperstudio/platform/internal/store"
	"github.com/paperstudio/platform/internal/studio"
	"github.com/paperstudio/platform/internal/upload"
)

// Allow some slack over the 5 MiB document limit for multipart framing.
const maxFormBytes = 8 << 20

// handleUpload accepts a multipart PDF, validates it synchronously, then
// runs the pipeline in the background. The client polls the returned upload
// id for stage progress. There is no cancellation: discarding the client
// side leaves the pipeline to finish unobserved.
func (s *apiServer) handleUpload(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r)
	if err := r.ParseMultipartForm(maxFormBytes); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid form: %v", err))
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file field is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read file")
		return
	}
	mimeType := header.Header.Get("Content-Type")

	// Fail fast on policy violations before anything is registered or any
	// remote call happens.
	if err := s.validator.Validate(mimeType, int64(len(data))); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	uploadID := s.uploads.Start()
	go func() {
		// Detached from the request context: the pipeline keeps running if
		// the client goes away.
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		doc, err := s.uploader.Process(ctx, user.ID, header.Filename, mimeType, data, func(p upload.Progress) {
			s.uploads.Update(uploadID, p)
		})
		if err != nil {
			s.uploads.Fail(uploadID, err)
			return
		}
		s.uploads.Complete(uploadID, doc)
	}()

	writeJSON(w, http.StatusAccepted, map[string]any{
		"upload_id": uploadID,
		"file_name": header.Filename,
		"size":      len(data),
		"status":    "pending",
	})
}

func (s *apiServer) handleUploadProgress(w http.ResponseWriter, r *http.Request) {
	status, ok := s.uploads.Get(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, "upload not found")
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *apiServer) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r)
	docs, err := s.db.DocumentsByUser(r.Context(), user.ID)
	if err != nil {
		s.logger.Error().Err(err).Msg("list documents failed")
		writeError(w, http.StatusInternalServerError, "failed to fetch documents")
		return
	}
	if docs == nil {
		docs = []store.ProcessedPDF{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"documents": docs})
}

// loadDocument resolves the {id} route param to a document owned by the
// requesting user, writing the error response itself on failure.
func (s *apiServer) loadDocument(w http.ResponseWriter, r *http.Request) *store.ProcessedPDF {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid document id")
		return nil
	}
	doc, err := s.db.DocumentByID(r.Context(), id, currentUser(r).ID)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "document not found")
		return nil
	}
	if err != nil {
		s.logger.Error().Err(err).Msg("fetch document failed")
		writeError(w, http.StatusInternalServerError, "failed to fetch document")
		return nil
	}
	return doc
}

func (s *apiServer) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	if doc := s.loadDocument(w, r); doc != nil {
		writeJSON(w, http.StatusOK, doc)
	}
}

func (s *apiServer) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	doc := s.loadDocument(w, r)
	if doc == nil {
		return
	}
	user := currentUser(r)

	// Object removal is best effort: a missing object must not strand the
	// metadata row.
	if err := s.objects.Remove(r.Context(), s.objectKey(doc)); err != nil {
		s.logger.Warn().Err(err).Str("document_id", doc.ID.String()).Msg("storage deletion failed")
	}
	if err := s.db.DeleteDocument(r.Context(), doc.ID, user.ID); err != nil {
		s.logger.Error().Err(err).Msg("delete document failed")
		writeError(w, http.StatusInternalServerError, "failed to delete document")
		return
	}
	s.chats.Drop(user.ID, doc.ID)
	s.studios.Drop(user.ID, doc.ID)
	w.WriteHeader(http.StatusNoContent)
}

func (s *apiServer) handleDownloadURL(w http.ResponseWriter, r *http.Request) {
	doc := s.loadDocument(w, r)
	if doc == nil {
		return
	}
	url, err := s.objects.SignedURL(r.Context(), s.objectKey(doc), time.Hour)
	if errors.Is(err, storage.ErrSignedURLUnsupported) {
		writeError(w, http.StatusNotImplemented, "no storage backend supports signed urls")
		return
	}
	if err != nil {
		s.logger.Error().Err(err).Msg("signed url failed")
		writeError(w, http.StatusInternalServerError, "failed to get download URL")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"url": url})
}

// objectKey prefers the persisted storage path, falling back to the legacy
// reconstruction rule for rows written before the column existed.
func (s *apiServer) objectKey(doc *store.ProcessedPDF) string {
	if doc.StoragePath != "" {
		return doc.StoragePath
	}
	return storage.ObjectKey(doc.UserID.String(), doc.UploadedAt, doc.PDFName)
}

func (s *apiServer) chatSession(r *http.Request, doc *store.ProcessedPDF) *chat.Session {
	return s.chats.Session(currentUser(r).ID, doc.ID, doc.PDFName, doc.ExtractedText)
}

func (s *apiServer) handleChatState(w http.ResponseWriter, r *http.Request) {
	doc := s.loadDocument(w, r)
	if doc == nil {
		return
	}
	session := s.chatSession(r, doc)
	state := session.State()
	if state == chat.StateUnknown {
		state = session.CheckIndex(r.Context(), s.intel)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"state":      state,
		"is_indexed": state == chat.StateIndexed,
		"messages":   session.Messages(),
	})
}

func (s *apiServer) handleChatIndex(w http.ResponseWriter, r *http.Request) {
	doc := s.loadDocument(w, r)
	if doc == nil {
		return
	}
	outcome, err := s.chatSession(r, doc).Index(r.Context(), s.intel)
	if err != nil {
		switch {
		case errors.Is(err, chat.ErrNoExtractedText):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, chat.ErrBusy):
			writeError(w, http.StatusTooManyRequests, err.Error())
		default:
			writeError(w, http.StatusBadGateway, err.Error())
		}
		return
	}
	message := fmt.Sprintf("Created %d chunks. You can now start chatting!", outcome.ChunksCreated)
	if outcome.AlreadyIndexed {
		message = "This PDF was already indexed. You can start chatting!"
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"chunks_created":  outcome.ChunksCreated,
		"already_indexed": outcome.AlreadyIndexed,
		"message":         message,
	})
}

func (s *apiServer) handleChatSend(w http.ResponseWriter, r *http.Request) {
	doc := s.loadDocument(w, r)
	if doc == nil {
		return
	}
	var req struct {
		Question string `json:"question"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	session := s.chatSession(r, doc)
	answer, err := session.Send(r.Context(), s.intel, req.Question)
	if err != nil {
		switch {
		case errors.Is(err, chat.ErrEmptyQuestion):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, chat.ErrNotIndexed):
			writeError(w, http.StatusConflict, err.Error())
		case errors.Is(err, chat.ErrBusy):
			writeError(w, http.StatusTooManyRequests, err.Error())
		default:
			writeError(w, http.StatusBadGateway, err.Error())
		}
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": answer})
}

func (s *apiServer) studioWorkspace(r *http.Request, doc *store.ProcessedPDF) *studio.Workspace {
	return s.studios.Workspace(currentUser(r).ID, doc.ID, doc.ExtractedText)
}

func (s *apiServer) handleStudioState(w http.ResponseWriter, r *http.Request) {
	doc := s.loadDocument(w, r)
	if doc == nil {
		return
	}
	ws := s.studioWorkspace(r, doc)
	payload := map[string]any{"artifact": ws.Active()}
	if quiz := ws.Quiz(); quiz != nil {
		payload["quiz_state"] = quiz.State()
	}
	writeJSON(w, http.StatusOK, payload)
}

func (s *apiServer) writeGenerated(w http.ResponseWriter, artifact *studio.Artifact, err error) {
	if err != nil {
		switch {
		case errors.Is(err, studio.ErrNoExtractedText), errors.Is(err, studio.ErrInvalidQuestionCount):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, studio.ErrBusy):
			writeError(w, http.StatusTooManyRequests, err.Error())
		default:
			writeError(w, http.StatusBadGateway, err.Error())
		}
		return
	}
	writeJSON(w, http.StatusOK, artifact)
}

func (s *apiServer) handleGenerateSummary(w http.ResponseWriter, r *http.Request) {
	doc := s.loadDocument(w, r)
	if doc == nil {
		return
	}
	artifact, err := s.studioWorkspace(r, doc).GenerateSummary(r.Context(), s.intel)
	s.writeGenerated(w, artifact, err)
}

func (s *apiServer) handleGenerateQuiz(w http.ResponseWriter, r *http.Request) {
	doc := s.loadDocument(w, r)
	if doc == nil {
		return
	}
	artifact, err := s.studioWorkspace(r, doc).GenerateQuiz(r.Context(), s.intel)
	s.writeGenerated(w, artifact, err)
}

func (s *apiServer) handleGenerateMindMap(w http.ResponseWriter, r *http.Request) {
	doc := s.loadDocument(w, r)
	if doc == nil {
		return
	}
	artifact, err := s.studioWorkspace(r, doc).GenerateMindMap(r.Context(), s.intel)
	s.writeGenerated(w, artifact, err)
}

func (s *apiServer) handleGenerateFAQ(w http.ResponseWriter, r *http.Request) {
	doc := s.loadDocument(w, r)
	if doc == nil {
		return
	}
	var req struct {
		NumQuestions int `json:"num_questions"`
	}
	if r.Body != nil {
		// An empty body means the default count.
		_ = json.NewDecoder(r.Body).Decode(&req)
	}
	artifact, err := s.studioWorkspace(r, doc).GenerateFAQ(r.Context(), s.intel, req.NumQuestions)
	s.writeGenerated(w, artifact, err)
}

// handleDownloadMindMap serves the active mind-map artifact as raw HTML for
// preview or download.
func (s *apiServer) handleDownloadMindMap(w http.ResponseWriter, r *http.Request) {
	doc := s.loadDocument(w, r)
	if doc == nil {
		return
	}
	artifact := s.studioWorkspace(r, doc).Active()
	if artifact == nil || artifact.Kind != studio.KindMindMap {
		writeError(w, http.StatusNotFound, "no mind map has been generated")
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", storage.SanitizeName(doc.PDFName)+"-mindmap.html"))
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, artifact.MindMapHTML)
}

// activeQuiz resolves the quiz session for the document, writing the error
// response itself when there is none.
func (s *apiServer) activeQuiz(w http.ResponseWriter, r *http.Request) *studio.QuizSession {
	doc := s.loadDocument(w, r)
	if doc == nil {
		return nil
	}
	quiz := s.studioWorkspace(r, doc).Quiz()
	if quiz == nil {
		writeError(w, http.StatusNotFound, studio.ErrNoQuiz.Error())
		return nil
	}
	return quiz
}

func (s *apiServer) handleQuizAnswer(w http.ResponseWriter, r *http.Request) {
	quiz := s.activeQuiz(w, r)
	if quiz == nil {
		return
	}
	var req struct {
		Question int    `json:"question"`
		Answer   string `json:"answer"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := quiz.SelectAnswer(req.Question, req.Answer); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, quiz.State())
}

func (s *apiServer) handleQuizNext(w http.ResponseWriter, r *http.Request) {
	quiz := s.activeQuiz(w, r)
	if quiz == nil {
		return
	}
	if err := quiz.Next(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, quiz.State())
}

func (s *apiServer) handleQuizPrev(w http.ResponseWriter, r *http.Request) {
	quiz := s.activeQuiz(w, r)
	if quiz == nil {
		return
	}
	quiz.Prev()
	writeJSON(w, http.StatusOK, quiz.State())
}

func (s *apiServer) handleQuizSubmit(w http.ResponseWriter, r *http.Request) {
	quiz := s.activeQuiz(w, r)
	if quiz == nil {
		return
	}
	score, err := quiz.Submit()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"score": score,
		"state": quiz.State(),
	})
}

func (s *apiServer) handleQuizReset(w http.ResponseWriter, r *http.Request) {
	quiz := s.activeQuiz(w, r)
	if quiz == nil {
		return
	}
	quiz.Reset()
	writeJSON(w, http.StatusOK, quiz.State())
}
