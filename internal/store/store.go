package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("not found")

// ErrDuplicateEmail is returned when sign-up hits an existing account.
var ErrDuplicateEmail = errors.New("an account with this email already exists")

// Store wraps the Postgres pool with the queries the service needs.
type Store struct {
	pool *pgxpool.Pool
}

func New(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	s.pool.Close()
}

// Migrate creates the schema. Idempotent; runs at startup.
func (s *Store) Migrate(ctx context.Context) error {
	const stmt = `
        CREATE TABLE IF NOT EXISTS users (
            id UUID PRIMARY KEY,
            email TEXT UNIQUE NOT NULL,
            name TEXT NOT NULL,
            profile_pic_url TEXT NOT NULL DEFAULT '',
            password_hash TEXT NOT NULL,
            email_confirmed_at TIMESTAMPTZ,
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        );
        CREATE TABLE IF NOT EXISTS user_tokens (
            id UUID PRIMARY KEY,
            user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
            access_token TEXT UNIQUE NOT NULL,
            refresh_token TEXT UNIQUE NOT NULL,
            expires_at TIMESTAMPTZ NOT NULL,
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        );
        CREATE TABLE IF NOT EXISTS confirmation_tokens (
            token_hash TEXT PRIMARY KEY,
            user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
            type TEXT NOT NULL,
            expires_at TIMESTAMPTZ NOT NULL,
            used_at TIMESTAMPTZ
        );
        CREATE TABLE IF NOT EXISTS processed_pdfs (
            id UUID PRIMARY KEY,
            user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
            pdf_name TEXT NOT NULL,
            extracted_text TEXT NOT NULL,
            size BIGINT NOT NULL,
            uploaded_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            storage_path TEXT NOT NULL DEFAULT ''
        );
        CREATE INDEX IF NOT EXISTS idx_processed_pdfs_user ON processed_pdfs (user_id, uploaded_at DESC);`
	_, err := s.pool.Exec(ctx, stmt)
	return err
}

// CreateUser inserts a new unconfirmed account.
func (s *Store) CreateUser(ctx context.Context, email, name, passwordHash string) (*User, error) {
	u := &User{
		ID:           uuid.New(),
		Email:        email,
		Name:         name,
		PasswordHash: passwordHash,
		CreatedAt:    time.Now().UTC(),
	}
	const query = `
        INSERT INTO users (id, email, name, password_hash, created_at)
        VALUES ($1, $2, $3, $4, $5);`
	if _, err := s.pool.Exec(ctx, query, u.ID, u.Email, u.Name, u.PasswordHash, u.CreatedAt); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, ErrDuplicateEmail
		}
		return nil, err
	}
	return u, nil
}

func (s *Store) UserByEmail(ctx context.Context, email string) (*User, error) {
	const query = `
        SELECT id, email, name, profile_pic_url, password_hash, email_confirmed_at, created_at
        FROM users WHERE email = $1;`
	return s.scanUser(s.pool.QueryRow(ctx, query, email))
}

func (s *Store) UserByID(ctx context.Context, id uuid.UUID) (*User, error) {
	const query = `
        SELECT id, email, name, profile_pic_url, password_hash, email_confirmed_at, created_at
        FROM users WHERE id = $1;`
	return s.scanUser(s.pool.QueryRow(ctx, query, id))
}

func (s *Store) scanUser(row pgx.Row) (*User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Email, &u.Name, &u.ProfilePicURL, &u.PasswordHash, &u.EmailConfirmedAt, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// ConfirmEmail marks the account confirmed if it is not already.
func (s *Store) ConfirmEmail(ctx context.Context, userID uuid.UUID) error {
	const query = `
        UPDATE users SET email_confirmed_at = NOW()
        WHERE id = $1 AND email_confirmed_at IS NULL;`
	_, err := s.pool.Exec(ctx, query, userID)
	return err
}

// InsertConfirmationToken records a pending confirmation token hash.
func (s *Store) InsertConfirmationToken(ctx context.Context, t ConfirmationToken) error {
	const query = `
        INSERT INTO confirmation_tokens (token_hash, user_id, type, expires_at)
        VALUES ($1, $2, $3, $4)
        ON CONFLICT (token_hash)
        DO UPDATE SET expires_at = EXCLUDED.expires_at, used_at = NULL;`
	_, err := s.pool.Exec(ctx, query, t.TokenHash, t.UserID, t.Type, t.ExpiresAt)
	return err
}

// ConsumeConfirmationToken marks an unexpired, unused token as used and
// returns its owner. Returns ErrNotFound for unknown, used or expired
// tokens.
func (s *Store) ConsumeConfirmationToken(ctx context.Context, tokenHash, tokenType string) (uuid.UUID, error) {
	const query = `
        UPDATE confirmation_tokens SET used_at = NOW()
        WHERE token_hash = $1 AND type = $2 AND used_at IS NULL AND expires_at > NOW()
        RETURNING user_id;`
	var userID uuid.UUID
	err := s.pool.QueryRow(ctx, query, tokenHash, tokenType).Scan(&userID)
	if errors.Is(err, pgx.ErrNoRows) {
		return uuid.Nil, ErrNotFound
	}
	if err != nil {
		return uuid.Nil, err
	}
	return userID, nil
}

// InsertUserToken persists a freshly issued session.
func (s *Store) InsertUserToken(ctx context.Context, t UserToken) error {
	const query = `
        INSERT INTO user_tokens (id, user_id, access_token, refresh_token, expires_at, created_at)
        VALUES ($1, $2, $3, $4, $5, NOW());`
	_, err := s.pool.Exec(ctx, query, t.ID, t.UserID, t.AccessToken, t.RefreshToken, t.ExpiresAt)
	return err
}

func (s *Store) UserTokenByRefresh(ctx context.Context, refreshToken string) (*UserToken, error) {
	const query = `
        SELECT id, user_id, access_token, refresh_token, expires_at, created_at
        FROM user_tokens WHERE refresh_token = $1;`
	var t UserToken
	err := s.pool.QueryRow(ctx, query, refreshToken).
		Scan(&t.ID, &t.UserID, &t.AccessToken, &t.RefreshToken, &t.ExpiresAt, &t.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *Store) UserTokenByAccess(ctx context.Context, accessToken string) (*UserToken, error) {
	const query = `
        SELECT id, user_id, access_token, refresh_token, expires_at, created_at
        FROM user_tokens WHERE access_token = $1;`
	var t UserToken
	err := s.pool.QueryRow(ctx, query, accessToken).
		Scan(&t.ID, &t.UserID, &t.AccessToken, &t.RefreshToken, &t.ExpiresAt, &t.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// DeleteUserTokenByAccess revokes the session carrying the given access
// token. Deleting an unknown token is not an error.
func (s *Store) DeleteUserTokenByAccess(ctx context.Context, accessToken string) error {
	const query = `DELETE FROM user_tokens WHERE access_token = $1;`
	_, err := s.pool.Exec(ctx, query, accessToken)
	return err
}

// InsertDocument persists a processed upload.
func (s *Store) InsertDocument(ctx context.Context, doc *ProcessedPDF) error {
	const query = `
        INSERT INTO processed_pdfs (id, user_id, pdf_name, extracted_text, size, uploaded_at, storage_path)
        VALUES ($1, $2, $3, $4, $5, $6, $7);`
	_, err := s.pool.Exec(ctx, query,
		doc.ID, doc.UserID, doc.PDFName, doc.ExtractedText, doc.Size, doc.UploadedAt, doc.StoragePath)
	return err
}

// DocumentsByUser lists a user's documents newest first.
func (s *Store) DocumentsByUser(ctx context.Context, userID uuid.UUID) ([]ProcessedPDF, error) {
	const query = `
        SELECT id, user_id, pdf_name, extracted_text, size, uploaded_at, storage_path
        FROM processed_pdfs WHERE user_id = $1
        ORDER BY uploaded_at DESC;`
	rows, err := s.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []ProcessedPDF
	for rows.Next() {
		var d ProcessedPDF
		if err := rows.Scan(&d.ID, &d.UserID, &d.PDFName, &d.ExtractedText, &d.Size, &d.UploadedAt, &d.StoragePath); err != nil {
			return nil, err
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

// DocumentByID fetches one document scoped to its owner.
func (s *Store) DocumentByID(ctx context.Context, id, userID uuid.UUID) (*ProcessedPDF, error) {
	const query = `
        SELECT id, user_id, pdf_name, extracted_text, size, uploaded_at, storage_path
        FROM processed_pdfs WHERE id = $1 AND user_id = $2;`
	var d ProcessedPDF
	err := s.pool.QueryRow(ctx, query, id, userID).
		Scan(&d.ID, &d.UserID, &d.PDFName, &d.ExtractedText, &d.Size, &d.UploadedAt, &d.StoragePath)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// DeleteDocument removes a document row scoped to its owner.
func (s *Store) DeleteDocument(ctx context.Context, id, userID uuid.UUID) error {
	const query = `DELETE FROM processed_pdfs WHERE id = $1 AND user_id = $2;`
	tag, err := s.pool.Exec(ctx, query, id, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
