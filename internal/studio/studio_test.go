package studio

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/paperstudio/platform/internal/intelligence"
)

type fakeIntelligence struct {
	summary    *intelligence.StructuredSummary
	summaryErr error
	quiz       *intelligence.QuizOutput
	quizErr    error
	mindMap    string
	mindMapErr error
	faq        *intelligence.FAQOutput
	faqErr     error

	faqCount int
	faqCalls int
}

func (f *fakeIntelligence) StructuredSummary(context.Context, string) (*intelligence.StructuredSummary, error) {
	return f.summary, f.summaryErr
}

func (f *fakeIntelligence) GenerateQuiz(context.Context, string) (*intelligence.QuizOutput, error) {
	return f.quiz, f.quizErr
}

func (f *fakeIntelligence) MindMap(context.Context, string) (string, error) {
	return f.mindMap, f.mindMapErr
}

func (f *fakeIntelligence) GenerateFAQs(_ context.Context, _ string, numQuestions int) (*intelligence.FAQOutput, error) {
	f.faqCalls++
	f.faqCount = numQuestions
	return f.faq, f.faqErr
}

func TestGenerateSummaryBecomesActiveArtifact(t *testing.T) {
	w := NewWorkspace("text")
	ai := &fakeIntelligence{summary: &intelligence.StructuredSummary{Summary: "tl;dr"}}

	artifact, err := w.GenerateSummary(context.Background(), ai)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if artifact.Kind != KindSummary || artifact.Summary.Summary != "tl;dr" {
		t.Fatalf("unexpected artifact %+v", artifact)
	}
	if w.Active() != artifact {
		t.Fatal("generated artifact should be active")
	}
}

func TestGenerationRequiresExtractedText(t *testing.T) {
	w := NewWorkspace("")
	_, err := w.GenerateSummary(context.Background(), &fakeIntelligence{})
	if !errors.Is(err, ErrNoExtractedText) {
		t.Fatalf("expected ErrNoExtractedText, got %v", err)
	}
}

func TestNewGenerationReplacesPreviousArtifact(t *testing.T) {
	w := NewWorkspace("text")
	ai := &fakeIntelligence{
		summary: &intelligence.StructuredSummary{Summary: "tl;dr"},
		mindMap: "<html></html>",
	}
	if _, err := w.GenerateSummary(context.Background(), ai); err != nil {
		t.Fatalf("summary: %v", err)
	}
	artifact, err := w.GenerateMindMap(context.Background(), ai)
	if err != nil {
		t.Fatalf("mind map: %v", err)
	}
	if w.Active() != artifact || artifact.Kind != KindMindMap {
		t.Fatal("mind map should replace the summary as active artifact")
	}
	if artifact.Summary != nil {
		t.Fatal("replaced artifact payload must not leak into the new one")
	}
}

func TestFailedGenerationLeavesSlotEmpty(t *testing.T) {
	w := NewWorkspace("text")
	ai := &fakeIntelligence{summary: &intelligence.StructuredSummary{Summary: "tl;dr"}}
	if _, err := w.GenerateSummary(context.Background(), ai); err != nil {
		t.Fatalf("summary: %v", err)
	}

	ai.mindMapErr = fmt.Errorf("boom")
	if _, err := w.GenerateMindMap(context.Background(), ai); err == nil {
		t.Fatal("expected mind map failure")
	}
	if w.Active() != nil {
		t.Fatal("failed generation must leave no artifact, not resurrect the old one")
	}
}

func TestGenerateQuizStartsSession(t *testing.T) {
	w := NewWorkspace("text")
	ai := &fakeIntelligence{quiz: &intelligence.QuizOutput{
		Title: "Quiz",
		Quiz:  []intelligence.QuizQuestion{{Question: "q1", Choices: []string{"a", "b"}, CorrectAnswer: "a"}},
	}}
	if _, err := w.GenerateQuiz(context.Background(), ai); err != nil {
		t.Fatalf("quiz: %v", err)
	}
	if w.Quiz() == nil {
		t.Fatal("quiz generation should start an answer session")
	}
}

func TestNonQuizGenerationClearsQuizSession(t *testing.T) {
	w := NewWorkspace("text")
	ai := &fakeIntelligence{
		quiz:    &intelligence.QuizOutput{Quiz: []intelligence.QuizQuestion{{Question: "q", Choices: []string{"a"}, CorrectAnswer: "a"}}},
		mindMap: "<html></html>",
	}
	if _, err := w.GenerateQuiz(context.Background(), ai); err != nil {
		t.Fatalf("quiz: %v", err)
	}
	if _, err := w.GenerateMindMap(context.Background(), ai); err != nil {
		t.Fatalf("mind map: %v", err)
	}
	if w.Quiz() != nil {
		t.Fatal("replacing the quiz artifact should drop its session")
	}
}

func TestGenerateFAQDefaultsAndBounds(t *testing.T) {
	w := NewWorkspace("text")
	ai := &fakeIntelligence{faq: &intelligence.FAQOutput{}}

	if _, err := w.GenerateFAQ(context.Background(), ai, 0); err != nil {
		t.Fatalf("default count: %v", err)
	}
	if ai.faqCount != DefaultFAQQuestions {
		t.Fatalf("zero should become the default, got %d", ai.faqCount)
	}

	if _, err := w.GenerateFAQ(context.Background(), ai, 10); err != nil {
		t.Fatalf("max count: %v", err)
	}

	calls := ai.faqCalls
	if _, err := w.GenerateFAQ(context.Background(), ai, 11); !errors.Is(err, ErrInvalidQuestionCount) {
		t.Fatalf("expected ErrInvalidQuestionCount, got %v", err)
	}
	if _, err := w.GenerateFAQ(context.Background(), ai, -1); !errors.Is(err, ErrInvalidQuestionCount) {
		t.Fatalf("expected ErrInvalidQuestionCount, got %v", err)
	}
	if ai.faqCalls != calls {
		t.Fatal("out-of-range counts must be rejected before any request")
	}
}

// gatedIntelligence blocks inside the summary call until released, so tests
// can hold a generation in flight deterministically.
type gatedIntelligence struct {
	entered chan struct{}
	release chan struct{}
	calls   int
}

func newGatedIntelligence() *gatedIntelligence {
	return &gatedIntelligence{
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
}

func (g *gatedIntelligence) StructuredSummary(context.Context, string) (*intelligence.StructuredSummary, error) {
	g.calls++
	close(g.entered)
	<-g.release
	return &intelligence.StructuredSummary{Summary: "late"}, nil
}

func (g *gatedIntelligence) GenerateQuiz(context.Context, string) (*intelligence.QuizOutput, error) {
	g.calls++
	return &intelligence.QuizOutput{Quiz: []intelligence.QuizQuestion{{Question: "q", Choices: []string{"a"}, CorrectAnswer: "a"}}}, nil
}

func (g *gatedIntelligence) MindMap(context.Context, string) (string, error) {
	g.calls++
	return "<html></html>", nil
}

func (g *gatedIntelligence) GenerateFAQs(context.Context, string, int) (*intelligence.FAQOutput, error) {
	g.calls++
	return &intelligence.FAQOutput{}, nil
}

func TestGenerationBusyWhileInFlight(t *testing.T) {
	w := NewWorkspace("text")
	gate := newGatedIntelligence()

	done := make(chan error, 1)
	go func() {
		_, err := w.GenerateSummary(context.Background(), gate)
		done <- err
	}()
	<-gate.entered

	if _, err := w.GenerateMindMap(context.Background(), gate); !errors.Is(err, ErrBusy) {
		t.Fatalf("mind map during summary should be busy, got %v", err)
	}
	if _, err := w.GenerateQuiz(context.Background(), gate); !errors.Is(err, ErrBusy) {
		t.Fatalf("quiz during summary should be busy, got %v", err)
	}
	if _, err := w.GenerateFAQ(context.Background(), gate, 3); !errors.Is(err, ErrBusy) {
		t.Fatalf("faq during summary should be busy, got %v", err)
	}

	close(gate.release)
	if err := <-done; err != nil {
		t.Fatalf("first generation: %v", err)
	}
	if gate.calls != 1 {
		t.Fatalf("rejected generations must not reach the service, calls=%d", gate.calls)
	}
	if w.Active() == nil || w.Active().Kind != KindSummary {
		t.Fatalf("in-flight generation should still land, active=%+v", w.Active())
	}
}

func TestConcurrentGenerationsKeepArtifactAndQuizInStep(t *testing.T) {
	ai := &fakeIntelligence{
		summary: &intelligence.StructuredSummary{Summary: "tl;dr"},
		quiz:    &intelligence.QuizOutput{Quiz: []intelligence.QuizQuestion{{Question: "q", Choices: []string{"a"}, CorrectAnswer: "a"}}},
	}
	for i := 0; i < 200; i++ {
		w := NewWorkspace("text")
		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			w.GenerateQuiz(context.Background(), ai)
		}()
		go func() {
			defer wg.Done()
			w.GenerateSummary(context.Background(), ai)
		}()
		wg.Wait()

		active, quiz := w.Active(), w.Quiz()
		if quiz != nil && (active == nil || active.Kind != KindQuiz) {
			t.Fatalf("quiz session without a quiz artifact: active=%+v", active)
		}
		if active != nil && active.Kind == KindQuiz && quiz == nil {
			t.Fatal("quiz artifact without its answer session")
		}
	}
}
