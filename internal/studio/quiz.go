package studio

import (
	"errors"
	"math"
	"sync"

	"github.com/paperstudio/platform/internal/intelligence"
)

var (
	// ErrQuizSubmitted blocks answer changes after submission.
	ErrQuizSubmitted = errors.New("quiz already submitted")
	// ErrUnanswered blocks forward navigation past an unanswered question.
	ErrUnanswered = errors.New("answer the current question first")
	// ErrIncomplete blocks submission until every question is answered.
	ErrIncomplete = errors.New("all questions must be answered before submitting")
	// ErrBadQuestion rejects answers for out-of-range question indexes.
	ErrBadQuestion = errors.New("no such question")
	// ErrBadChoice rejects answers that are not among the question's choices.
	ErrBadChoice = errors.New("answer is not one of the choices")
)

// Score is the result of a submitted quiz.
type Score struct {
	Correct    int `json:"correct"`
	Total      int `json:"total"`
	Percentage int `json:"percentage"`
}

// QuizState is a snapshot of the interaction state for rendering.
type QuizState struct {
	CurrentQuestion int            `json:"current_question"`
	Answers         map[int]string `json:"answers"`
	AnsweredCount   int            `json:"answered_count"`
	Total           int            `json:"total"`
	Submitted       bool           `json:"submitted"`
	Score           *Score         `json:"score,omitempty"`
}

// QuizSession walks a generated quiz: record answers, navigate, submit,
// reset. Back navigation is unrestricted; forward navigation requires the
// current question answered; submission requires all of them answered.
type QuizSession struct {
	mu        sync.Mutex
	quiz      *intelligence.QuizOutput
	current   int
	answers   map[int]string
	submitted bool
}

func NewQuizSession(quiz *intelligence.QuizOutput) *QuizSession {
	return &QuizSession{
		quiz:    quiz,
		answers: make(map[int]string),
	}
}

// SelectAnswer records the choice for a question.
func (q *QuizSession) SelectAnswer(questionIndex int, choice string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.submitted {
		return ErrQuizSubmitted
	}
	if questionIndex < 0 || questionIndex >= len(q.quiz.Quiz) {
		return ErrBadQuestion
	}
	valid := false
	for _, c := range q.quiz.Quiz[questionIndex].Choices {
		if c == choice {
			valid = true
			break
		}
	}
	if !valid {
		return ErrBadChoice
	}
	q.answers[questionIndex] = choice
	return nil
}

// Next advances to the following question; the current one must be
// answered.
func (q *QuizSession) Next() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.submitted {
		return ErrQuizSubmitted
	}
	if _, ok := q.answers[q.current]; !ok {
		return ErrUnanswered
	}
	if q.current < len(q.quiz.Quiz)-1 {
		q.current++
	}
	return nil
}

// Prev moves back one question. Always allowed.
func (q *QuizSession) Prev() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.current > 0 {
		q.current--
	}
}

// Submit scores the quiz once every question has a recorded answer.
func (q *QuizSession) Submit() (*Score, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.submitted {
		return q.score(), nil
	}
	if len(q.answers) < len(q.quiz.Quiz) {
		return nil, ErrIncomplete
	}
	q.submitted = true
	return q.score(), nil
}

// Reset returns to the initial state with all answers cleared.
func (q *QuizSession) Reset() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.current = 0
	q.answers = make(map[int]string)
	q.submitted = false
}

// State returns a snapshot for rendering.
func (q *QuizSession) State() QuizState {
	q.mu.Lock()
	defer q.mu.Unlock()
	answers := make(map[int]string, len(q.answers))
	for k, v := range q.answers {
		answers[k] = v
	}
	state := QuizState{
		CurrentQuestion: q.current,
		Answers:         answers,
		AnsweredCount:   len(q.answers),
		Total:           len(q.quiz.Quiz),
		Submitted:       q.submitted,
	}
	if q.submitted {
		state.Score = q.score()
	}
	return state
}

// score counts exact matches against each question's correct answer and
// rounds to an integer percentage.
func (q *QuizSession) score() *Score {
	correct := 0
	for i, question := range q.quiz.Quiz {
		if q.answers[i] == question.CorrectAnswer {
			correct++
		}
	}
	total := len(q.quiz.Quiz)
	pct := 0
	if total > 0 {
		pct = int(math.Round(float64(correct) / float64(total) * 100))
	}
	return &Score{Correct: correct, Total: total, Percentage: pct}
}
