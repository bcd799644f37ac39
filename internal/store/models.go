package store

import (
	"time"

	"github.com/google/uuid"
)

// User is an account owned by the identity layer. The password hash and
// confirmation state never leave the server.
type User struct {
	ID               uuid.UUID  `json:"id"`
	Email            string     `json:"email"`
	Name             string     `json:"name"`
	ProfilePicURL    string     `json:"profilePicUrl,omitempty"`
	PasswordHash     string     `json:"-"`
	EmailConfirmedAt *time.Time `json:"-"`
	CreatedAt        time.Time  `json:"-"`
}

// Confirmed reports whether the user completed email confirmation.
func (u *User) Confirmed() bool {
	return u.EmailConfirmedAt != nil
}

// UserToken is one issued session: a JWT access token plus an opaque
// refresh token, both unique.
type UserToken struct {
	ID           uuid.UUID
	UserID       uuid.UUID
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
	CreatedAt    time.Time
}

// ConfirmationToken is a pending email-confirmation token. Only the SHA-256
// of the token is stored.
type ConfirmationToken struct {
	TokenHash string
	UserID    uuid.UUID
	Type      string
	ExpiresAt time.Time
	UsedAt    *time.Time
}

// ProcessedPDF is one successfully processed upload. StoragePath is
// persisted at write time; rows from before that column existed carry an
// empty value and their key is reconstructed from user id, upload time and
// sanitized name.
type ProcessedPDF struct {
	ID            uuid.UUID `json:"id"`
	UserID        uuid.UUID `json:"user_id"`
	PDFName       string    `json:"pdf_name"`
	ExtractedText string    `json:"extracted_text"`
	Size          int64     `json:"size"`
	UploadedAt    time.Time `json:"uploaded_at"`
	StoragePath   string    `json:"storage_path,omitempty"`
}
