package studio

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/paperstudio/platform/internal/intelligence"
)

// ArtifactKind names one of the four generation features.
type ArtifactKind string

const (
	KindSummary ArtifactKind = "summary"
	KindQuiz    ArtifactKind = "quiz"
	KindMindMap ArtifactKind = "mind_map"
	KindFAQ     ArtifactKind = "faq"
)

// FAQ question count bounds; the default applies when the caller sends none.
const (
	MinFAQQuestions     = 1
	MaxFAQQuestions     = 10
	DefaultFAQQuestions = 5
)

var (
	// ErrBusy rejects a second generation while one is outstanding.
	ErrBusy = errors.New("another generation is in flight")
	// ErrNoExtractedText is a precondition failure, not retryable.
	ErrNoExtractedText = errors.New("No extracted text available for this PDF")
	// ErrInvalidQuestionCount rejects FAQ counts outside [1,10].
	ErrInvalidQuestionCount = errors.New("number of questions must be between 1 and 10")
	// ErrNoQuiz is returned for quiz interactions without an active quiz.
	ErrNoQuiz = errors.New("no active quiz")
)

// Artifact is the single active generation result of a workspace. Exactly
// one of the payload fields is set, matching Kind.
type Artifact struct {
	Kind        ArtifactKind                    `json:"kind"`
	Summary     *intelligence.StructuredSummary `json:"summary,omitempty"`
	Quiz        *intelligence.QuizOutput        `json:"quiz,omitempty"`
	MindMapHTML string                          `json:"mind_map_html,omitempty"`
	FAQ         *intelligence.FAQOutput         `json:"faq,omitempty"`
	GeneratedAt time.Time                       `json:"generated_at"`
}

// Intelligence is the slice of the remote client the studio needs.
type Intelligence interface {
	StructuredSummary(ctx context.Context, paperMarkdown string) (*intelligence.StructuredSummary, error)
	GenerateQuiz(ctx context.Context, paperMarkdown string) (*intelligence.QuizOutput, error)
	MindMap(ctx context.Context, paperMarkdown string) (string, error)
	GenerateFAQs(ctx context.Context, paperMarkdown string, numQuestions int) (*intelligence.FAQOutput, error)
}

// Workspace holds the studio state for one (user, document) pair: at most
// one active artifact, plus quiz interaction state while a quiz is active.
// Issuing any generation clears the slot first, so a failed generation
// leaves it empty rather than resurrecting a stale artifact.
type Workspace struct {
	mu            sync.Mutex
	extractedText string
	active        *Artifact
	quiz          *QuizSession
	inflight      bool
}

func NewWorkspace(extractedText string) *Workspace {
	return &Workspace{extractedText: extractedText}
}

// Active returns the current artifact, or nil.
func (w *Workspace) Active() *Artifact {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.active
}

// Quiz returns the active quiz session, or nil.
func (w *Workspace) Quiz() *QuizSession {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.quiz
}

// GenerateSummary replaces the active artifact with a structured summary.
func (w *Workspace) GenerateSummary(ctx context.Context, ai Intelligence) (*Artifact, error) {
	if err := w.begin(); err != nil {
		return nil, err
	}
	summary, err := ai.StructuredSummary(ctx, w.extractedText)
	return w.finish(&Artifact{Kind: KindSummary, Summary: summary}, err)
}

// GenerateQuiz replaces the active artifact with a quiz and starts its
// answer session.
func (w *Workspace) GenerateQuiz(ctx context.Context, ai Intelligence) (*Artifact, error) {
	if err := w.begin(); err != nil {
		return nil, err
	}
	quiz, err := ai.GenerateQuiz(ctx, w.extractedText)
	return w.finish(&Artifact{Kind: KindQuiz, Quiz: quiz}, err)
}

// GenerateMindMap replaces the active artifact with opaque mind-map HTML.
func (w *Workspace) GenerateMindMap(ctx context.Context, ai Intelligence) (*Artifact, error) {
	if err := w.begin(); err != nil {
		return nil, err
	}
	html, err := ai.MindMap(ctx, w.extractedText)
	return w.finish(&Artifact{Kind: KindMindMap, MindMapHTML: html}, err)
}

// GenerateFAQ replaces the active artifact with generated FAQs.
// numQuestions of zero means the default; out-of-range counts are rejected
// before any request is issued.
func (w *Workspace) GenerateFAQ(ctx context.Context, ai Intelligence, numQuestions int) (*Artifact, error) {
	if numQuestions == 0 {
		numQuestions = DefaultFAQQuestions
	}
	if numQuestions < MinFAQQuestions || numQuestions > MaxFAQQuestions {
		return nil, ErrInvalidQuestionCount
	}
	if err := w.begin(); err != nil {
		return nil, err
	}
	faq, err := ai.GenerateFAQs(ctx, w.extractedText, numQuestions)
	return w.finish(&Artifact{Kind: KindFAQ, FAQ: faq}, err)
}

// begin enforces the extracted-text precondition and the in-flight guard,
// then clears the artifact slot.
func (w *Workspace) begin() error {
	if w.extractedText == "" {
		return ErrNoExtractedText
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.inflight {
		return ErrBusy
	}
	w.inflight = true
	w.active = nil
	w.quiz = nil
	return nil
}

// finish releases the in-flight guard and publishes the artifact. The quiz
// session is created in the same critical section so the artifact and its
// session can never be observed out of step.
func (w *Workspace) finish(artifact *Artifact, err error) (*Artifact, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.inflight = false
	if err != nil {
		return nil, err
	}
	artifact.GeneratedAt = time.Now().UTC()
	w.active = artifact
	if artifact.Kind == KindQuiz {
		w.quiz = NewQuizSession(artifact.Quiz)
	}
	return artifact, nil
}

// Manager holds live workspaces, one per (user, document) pair.
type Manager struct {
	mu         sync.Mutex
	workspaces map[string]*Workspace
}

func NewManager() *Manager {
	return &Manager{workspaces: make(map[string]*Workspace)}
}

func workspaceKey(userID, docID uuid.UUID) string {
	return userID.String() + "/" + docID.String()
}

// Workspace returns the existing workspace for the pair or creates one.
func (m *Manager) Workspace(userID, docID uuid.UUID, extractedText string) *Workspace {
	key := workspaceKey(userID, docID)
	m.mu.Lock()
	defer m.mu.Unlock()
	if w, ok := m.workspaces[key]; ok {
		return w
	}
	w := NewWorkspace(extractedText)
	m.workspaces[key] = w
	return w
}

// Drop discards the workspace for a deleted document.
func (m *Manager) Drop(userID, docID uuid.UUID) {
	m.mu.Lock()
	delete(m.workspaces, workspaceKey(userID, docID))
	m.mu.Unlock()
}
