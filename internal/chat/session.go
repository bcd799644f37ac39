package chat

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/paperstudio/platform/internal/intelligence"
)

// IndexState tracks where a document is in the indexing lifecycle. Chat
// submission is only permitted once StateIndexed is reached.
type IndexState string

const (
	StateUnknown    IndexState = "unknown"
	StateChecking   IndexState = "checking"
	StateNotIndexed IndexState = "not_indexed"
	StateIndexing   IndexState = "indexing"
	StateIndexed    IndexState = "indexed"
)

// Role is the author of a transcript message.
type Role string

const (
	RoleUser Role = "user"
	RoleAI   Role = "ai"
)

// Message is one transcript entry. Transcripts live only in memory for the
// active workspace session.
type Message struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

var (
	// ErrNotIndexed rejects sends before the document is confirmed indexed.
	ErrNotIndexed = errors.New("document is not indexed for chat yet")
	// ErrBusy rejects a second request while one is outstanding.
	ErrBusy = errors.New("another chat request is in flight")
	// ErrNoExtractedText is a precondition failure, not retryable.
	ErrNoExtractedText = errors.New("No extracted text available for this PDF")
	// ErrEmptyQuestion rejects blank input without a remote call.
	ErrEmptyQuestion = errors.New("question must not be empty")
)

// Intelligence is the slice of the remote client chat needs.
type Intelligence interface {
	CheckIndex(ctx context.Context, pdfName string) (*intelligence.IndexStatus, error)
	IndexPDF(ctx context.Context, content, pdfName string) (*intelligence.IndexResult, error)
	Chat(ctx context.Context, question, pdfName string) (*intelligence.ChatAnswer, error)
}

// Session is the chat state for one (user, document) pair.
type Session struct {
	mu            sync.Mutex
	pdfName       string
	extractedText string
	state         IndexState
	messages      []Message
	inflight      bool
}

func NewSession(pdfName, extractedText string) *Session {
	return &Session{
		pdfName:       pdfName,
		extractedText: extractedText,
		state:         StateUnknown,
	}
}

// State returns the current index state.
func (s *Session) State() IndexState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Messages returns a copy of the transcript in append order.
func (s *Session) Messages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// CheckIndex queries the remote index status. A failed check is treated as
// not-indexed rather than surfaced: the safe default keeps chat disabled
// and the index action available.
func (s *Session) CheckIndex(ctx context.Context, ai Intelligence) IndexState {
	s.mu.Lock()
	s.state = StateChecking
	s.mu.Unlock()

	status, err := ai.CheckIndex(ctx, s.pdfName)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil || !status.IsIndexed {
		s.state = StateNotIndexed
	} else {
		s.state = StateIndexed
	}
	return s.state
}

// IndexOutcome reports the result of an index operation.
// AlreadyIndexed distinguishes a zero-chunk response from a fresh index.
type IndexOutcome struct {
	ChunksCreated  int  `json:"chunks_created"`
	AlreadyIndexed bool `json:"already_indexed"`
}

// Index sends the document's extracted text for retrieval indexing. On
// success the session transitions to indexed.
func (s *Session) Index(ctx context.Context, ai Intelligence) (*IndexOutcome, error) {
	if s.extractedText == "" {
		return nil, ErrNoExtractedText
	}

	s.mu.Lock()
	if s.inflight {
		s.mu.Unlock()
		return nil, ErrBusy
	}
	s.inflight = true
	prev := s.state
	s.state = StateIndexing
	s.mu.Unlock()

	result, err := ai.IndexPDF(ctx, s.extractedText, s.pdfName)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.inflight = false
	if err != nil {
		s.state = prev
		return nil, err
	}
	s.state = StateIndexed
	return &IndexOutcome{
		ChunksCreated:  result.ChunksCreated,
		AlreadyIndexed: result.ChunksCreated == 0,
	}, nil
}

// Send appends the user message synchronously, then asks the remote service
// for an answer. On failure the transcript keeps the user message and no AI
// message is appended; there is no automatic retry.
func (s *Session) Send(ctx context.Context, ai Intelligence, question string) (*Message, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, ErrEmptyQuestion
	}

	s.mu.Lock()
	if s.state != StateIndexed {
		s.mu.Unlock()
		return nil, ErrNotIndexed
	}
	if s.inflight {
		s.mu.Unlock()
		return nil, ErrBusy
	}
	s.inflight = true
	s.messages = append(s.messages, Message{
		Role:      RoleUser,
		Content:   question,
		Timestamp: time.Now().UTC(),
	})
	s.mu.Unlock()

	answer, err := ai.Chat(ctx, question, s.pdfName)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.inflight = false
	if err != nil {
		return nil, err
	}
	msg := Message{
		Role:      RoleAI,
		Content:   answer.Answer,
		Timestamp: time.Now().UTC(),
	}
	s.messages = append(s.messages, msg)
	return &msg, nil
}
