package policy

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Violation describes an upload policy failure. Detail is the user-facing
// message and is surfaced verbatim; Rule identifies the check for logging.
type Violation struct {
	Rule   string
	Detail string
}

func (v *Violation) Error() string {
	return v.Detail
}

// DefaultMaxFileSize caps uploads at 5 MiB.
const DefaultMaxFileSize = 5 << 20

// FileValidator performs MIME-type and size checks on incoming files before
// any remote call is issued.
type FileValidator struct {
	allowedMIME map[string]struct{}
	maxFileSize int64
}

// NewPDFValidator builds the standard validator for PDF uploads.
func NewPDFValidator() *FileValidator {
	return &FileValidator{
		allowedMIME: map[string]struct{}{
			"application/pdf": {},
		},
		maxFileSize: DefaultMaxFileSize,
	}
}

// NewFileValidatorFromEnv builds a validator overridable via environment
// variables. UPLOAD_ALLOWED_MIME is a comma-separated list,
// UPLOAD_MAX_FILE_SIZE is in bytes.
func NewFileValidatorFromEnv() *FileValidator {
	v := NewPDFValidator()

	if raw := os.Getenv("UPLOAD_ALLOWED_MIME"); raw != "" {
		v.allowedMIME = make(map[string]struct{})
		for _, m := range strings.Split(raw, ",") {
			m = strings.ToLower(strings.TrimSpace(m))
			if m != "" {
				v.allowedMIME[m] = struct{}{}
			}
		}
	}

	if raw := os.Getenv("UPLOAD_MAX_FILE_SIZE"); raw != "" {
		if parsed, err := strconv.ParseInt(raw, 10, 64); err == nil && parsed > 0 {
			v.maxFileSize = parsed
		}
	}

	return v
}

// MaxFileSize reports the configured size limit in bytes.
func (v *FileValidator) MaxFileSize() int64 {
	return v.maxFileSize
}

// Validate checks a file's declared MIME type and size. It returns a
// *Violation on policy failure so callers can distinguish rejected input
// from infrastructure errors.
func (v *FileValidator) Validate(mimeType string, size int64) error {
	if _, ok := v.allowedMIME[strings.ToLower(strings.TrimSpace(mimeType))]; !ok {
		return &Violation{
			Rule:   "mime_type",
			Detail: "Only PDF files are allowed",
		}
	}
	if size > v.maxFileSize {
		return &Violation{
			Rule:   "max_file_size",
			Detail: fmt.Sprintf("File size exceeds the maximum limit of %dMB", v.maxFileSize/(1<<20)),
		}
	}
	return nil
}
