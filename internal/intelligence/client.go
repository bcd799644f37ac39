package intelligence

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"
)

// Client talks to the document intelligence service. Every heavy operation
// (extraction, generation, indexing, retrieval chat) lives on that side;
// this client is request/response plumbing only.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient builds a client for the given base URL. Generation calls can be
// slow, so the transport timeout is generous.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		http:    &http.Client{Timeout: 120 * time.Second},
	}
}

// ProcessPDF sends raw PDF bytes for OCR/text extraction and returns the
// extracted text.
func (c *Client) ProcessPDF(ctx context.Context, fileName string, data []byte) (string, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", fileName)
	if err != nil {
		return "", err
	}
	if _, err := part.Write(data); err != nil {
		return "", err
	}
	if err := writer.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/process-pdf", &buf)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", readAPIError(resp)
	}
	var out extractionResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}
	return out.ExtractedText, nil
}

// StructuredSummary generates the nine-section summary for a paper.
func (c *Client) StructuredSummary(ctx context.Context, paperMarkdown string) (*StructuredSummary, error) {
	var out StructuredSummary
	if err := c.postJSON(ctx, "/structured-summary", paperInput{PaperMarkdown: paperMarkdown}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GenerateQuiz generates a multiple-choice quiz for a paper.
func (c *Client) GenerateQuiz(ctx context.Context, paperMarkdown string) (*QuizOutput, error) {
	var out QuizOutput
	if err := c.postJSON(ctx, "/generate-quiz", paperInput{PaperMarkdown: paperMarkdown}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// MindMap generates an interactive mind map. The response body is raw HTML
// and is returned verbatim, never parsed.
func (c *Client) MindMap(ctx context.Context, paperMarkdown string) (string, error) {
	body, err := json.Marshal(paperInput{PaperMarkdown: paperMarkdown})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/mind-map", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", readAPIError(resp)
	}
	html, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	return string(html), nil
}

// GenerateFAQs generates numQuestions question/answer pairs for a paper.
func (c *Client) GenerateFAQs(ctx context.Context, paperMarkdown string, numQuestions int) (*FAQOutput, error) {
	var out FAQOutput
	if err := c.postJSON(ctx, "/generate-faqs", faqInput{PaperMarkdown: paperMarkdown, NumQuestions: numQuestions}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// IndexPDF builds the retrieval index over a document's extracted text.
func (c *Client) IndexPDF(ctx context.Context, content, pdfName string) (*IndexResult, error) {
	var out IndexResult
	if err := c.postJSON(ctx, "/index-pdf", indexRequest{Content: content, PDFName: pdfName}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CheckIndex reports whether a document has a retrieval index.
func (c *Client) CheckIndex(ctx context.Context, pdfName string) (*IndexStatus, error) {
	var out IndexStatus
	if err := c.postJSON(ctx, "/check-index", checkIndexRequest{PDFName: pdfName}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Chat answers a question against a previously indexed document.
func (c *Client) Chat(ctx context.Context, question, pdfName string) (*ChatAnswer, error) {
	var out ChatAnswer
	if err := c.postJSON(ctx, "/chat", chatRequest{Question: question, PDFName: pdfName}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) postJSON(ctx context.Context, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return readAPIError(resp)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// readAPIError extracts the service's detail field from a non-2xx response,
// falling back to a generic HTTP status message.
func readAPIError(resp *http.Response) error {
	var payload struct {
		Detail string `json:"detail"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err == nil && payload.Detail != "" {
		return fmt.Errorf("%s", payload.Detail)
	}
	return fmt.Errorf("HTTP %d: %s", resp.StatusCode, http.StatusText(resp.StatusCode))
}
