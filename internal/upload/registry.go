package upload

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/paperstudio/platform/internal/store"
)

// Status is the observable state of one in-flight or finished upload.
type Status struct {
	UploadID  string              `json:"upload_id"`
	Stage     Stage               `json:"stage"`
	Progress  int                 `json:"progress"`
	Message   string              `json:"message"`
	Status    string              `json:"status"` // pending | complete | failed
	Error     string              `json:"error,omitempty"`
	Document  *store.ProcessedPDF `json:"document,omitempty"`
	CreatedAt time.Time           `json:"created_at"`
}

// Registry tracks upload progress in memory so clients can poll while the
// pipeline runs. Entries are ephemeral; a restart forgets them.
type Registry struct {
	mu      sync.Mutex
	records map[string]Status
}

func NewRegistry() *Registry {
	return &Registry{records: make(map[string]Status)}
}

// Start registers a new upload and returns its id.
func (r *Registry) Start() string {
	id := uuid.NewString()
	r.mu.Lock()
	r.records[id] = Status{
		UploadID:  id,
		Status:    "pending",
		CreatedAt: time.Now().UTC(),
	}
	r.mu.Unlock()
	return id
}

// Update records a stage transition.
func (r *Registry) Update(id string, p Progress) {
	r.mu.Lock()
	if rec, ok := r.records[id]; ok {
		rec.Stage = p.Stage
		rec.Progress = p.Progress
		rec.Message = p.Message
		r.records[id] = rec
	}
	r.mu.Unlock()
}

// Complete marks an upload finished with its persisted document.
func (r *Registry) Complete(id string, doc *store.ProcessedPDF) {
	r.mu.Lock()
	if rec, ok := r.records[id]; ok {
		rec.Status = "complete"
		rec.Document = doc
		r.records[id] = rec
	}
	r.mu.Unlock()
}

// Fail marks an upload failed with the surfaced error message.
func (r *Registry) Fail(id string, err error) {
	r.mu.Lock()
	if rec, ok := r.records[id]; ok {
		rec.Status = "failed"
		rec.Error = err.Error()
		r.records[id] = rec
	}
	r.mu.Unlock()
}

// Get returns the current status of an upload.
func (r *Registry) Get(id string) (Status, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[id]
	return rec, ok
}
