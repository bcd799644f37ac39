package intelligence

// StructuredSummary is the full response of the structured-summary endpoint.
type StructuredSummary struct {
	Summary      string `json:"summary"`
	Background   string `json:"background"`
	Problem      string `json:"problem"`
	Methods      string `json:"methods"`
	Experiments  string `json:"experiments"`
	Results      string `json:"results"`
	Limitations  string `json:"limitations"`
	Implications string `json:"implications"`
	FutureWork   string `json:"future_work"`
}

// QuizQuestion is a single generated multiple-choice question.
type QuizQuestion struct {
	Question      string   `json:"question"`
	Choices       []string `json:"choices"`
	CorrectAnswer string   `json:"correct_answer"`
	Explanation   string   `json:"explanation"`
}

// QuizOutput is the response of the generate-quiz endpoint.
type QuizOutput struct {
	Title string         `json:"title"`
	Quiz  []QuizQuestion `json:"quiz"`
}

// FAQItem is one generated question/answer pair.
type FAQItem struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// FAQOutput is the response of the generate-faqs endpoint.
type FAQOutput struct {
	FAQs []FAQItem `json:"faqs"`
}

// IndexResult is the response of the index-pdf endpoint. ChunksCreated of
// zero means the document was already indexed.
type IndexResult struct {
	Success       bool   `json:"success"`
	Message       string `json:"message"`
	ChunksCreated int    `json:"chunks_created"`
	PDFName       string `json:"pdf_name"`
	TableName     string `json:"table_name"`
}

// IndexStatus is the response of the check-index endpoint.
type IndexStatus struct {
	IsIndexed bool   `json:"is_indexed"`
	PDFName   string `json:"pdf_name"`
	Message   string `json:"message"`
}

// ChatAnswer is the response of the chat endpoint.
type ChatAnswer struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

type paperInput struct {
	PaperMarkdown string `json:"paper_markdown"`
}

type faqInput struct {
	PaperMarkdown string `json:"paper_markdown"`
	NumQuestions  int    `json:"num_questions"`
}

type indexRequest struct {
	Content string `json:"content"`
	PDFName string `json:"pdf_name"`
}

type checkIndexRequest struct {
	PDFName string `json:"pdf_name"`
}

type chatRequest struct {
	Question string `json:"question"`
	PDFName  string `json:"pdf_name"`
}

type extractionResponse struct {
	ExtractedText string `json:"extracted_text"`
}
