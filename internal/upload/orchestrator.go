package upload

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/paperstudio/platform/internal/policy"
	"github.com/paperstudio/platform/internal/storage"
	"github.com/paperstudio/platform/internal/store"
)

// Stage is one step of the upload pipeline.
type Stage string

const (
	StageValidating Stage = "validating"
	StageProcessing Stage = "processing"
	StageUploading  Stage = "uploading"
	StageSaving     Stage = "saving"
	StageComplete   Stage = "complete"
)

// Progress is the transient per-upload state reported to clients.
type Progress struct {
	Stage    Stage  `json:"stage"`
	Progress int    `json:"progress"`
	Message  string `json:"message"`
}

var stageProgress = map[Stage]Progress{
	StageValidating: {StageValidating, 10, "Validating PDF file..."},
	StageProcessing: {StageProcessing, 25, "Processing PDF with AI OCR..."},
	StageUploading:  {StageUploading, 60, "Uploading to secure storage..."},
	StageSaving:     {StageSaving, 85, "Saving processed data..."},
	StageComplete:   {StageComplete, 100, "Upload completed successfully!"},
}

// Extractor obtains the extracted text for raw PDF bytes.
type Extractor interface {
	ProcessPDF(ctx context.Context, fileName string, data []byte) (string, error)
}

// ObjectStore persists raw document bytes.
type ObjectStore interface {
	Store(ctx context.Context, key string, data []byte, contentType string) error
}

// DocumentSaver persists document metadata rows.
type DocumentSaver interface {
	InsertDocument(ctx context.Context, doc *store.ProcessedPDF) error
}

// Orchestrator runs the upload pipeline: validate, extract, store, save.
// A stage failure aborts the remaining stages; stages already completed are
// not rolled back, so a storage object can exist without a matching row.
// That inconsistency window is accepted (orphan objects are cheap, rows are
// authoritative).
type Orchestrator struct {
	validator *policy.FileValidator
	extractor Extractor
	objects   ObjectStore
	docs      DocumentSaver
	logger    zerolog.Logger
}

func NewOrchestrator(validator *policy.FileValidator, extractor Extractor, objects ObjectStore, docs DocumentSaver, logger zerolog.Logger) *Orchestrator {
	return &Orchestrator{
		validator: validator,
		extractor: extractor,
		objects:   objects,
		docs:      docs,
		logger:    logger,
	}
}

// Process runs all stages for one file, reporting each stage transition in
// order through report. On success the returned document is already
// persisted, with its storage key recorded.
func (o *Orchestrator) Process(ctx context.Context, userID uuid.UUID, fileName, mimeType string, data []byte, report func(Progress)) (*store.ProcessedPDF, error) {
	if report == nil {
		report = func(Progress) {}
	}

	report(stageProgress[StageValidating])
	if err := o.validator.Validate(mimeType, int64(len(data))); err != nil {
		return nil, err
	}

	report(stageProgress[StageProcessing])
	extracted, err := o.extractor.ProcessPDF(ctx, fileName, data)
	if err != nil {
		o.logger.Error().Err(err).Str("file", fileName).Msg("pdf extraction failed")
		return nil, err
	}

	report(stageProgress[StageUploading])
	uploadedAt := time.Now().UTC()
	key := storage.ObjectKey(userID.String(), uploadedAt, fileName)
	if err := o.objects.Store(ctx, key, data, "application/pdf"); err != nil {
		o.logger.Error().Err(err).Str("key", key).Msg("storage upload failed")
		return nil, err
	}

	report(stageProgress[StageSaving])
	doc := &store.ProcessedPDF{
		ID:            uuid.New(),
		UserID:        userID,
		PDFName:       fileName,
		ExtractedText: extracted,
		Size:          int64(len(data)),
		UploadedAt:    uploadedAt,
		StoragePath:   key,
	}
	if err := o.docs.InsertDocument(ctx, doc); err != nil {
		o.logger.Error().Err(err).Str("key", key).Msg("metadata save failed; storage object orphaned")
		return nil, err
	}

	report(stageProgress[StageComplete])
	o.logger.Info().
		Str("document_id", doc.ID.String()).
		Str("user_id", userID.String()).
		Int64("size", doc.Size).
		Msg("document processed")
	return doc, nil
}
