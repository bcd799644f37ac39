package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/paperstudio/platform/internal/store"
)

// TokenTypeSignup identifies email-confirmation tokens issued at sign-up.
const TokenTypeSignup = "signup"

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrEmailNotConfirmed  = errors.New("please confirm your email before signing in")
	ErrInvalidToken       = errors.New("invalid or expired confirmation token")
	ErrInvalidSession     = errors.New("invalid session")
	ErrWeakPassword       = errors.New("password must be at least 6 characters")
)

// Accounts is the slice of the store the identity layer needs.
type Accounts interface {
	CreateUser(ctx context.Context, email, name, passwordHash string) (*store.User, error)
	UserByEmail(ctx context.Context, email string) (*store.User, error)
	UserByID(ctx context.Context, id uuid.UUID) (*store.User, error)
	ConfirmEmail(ctx context.Context, userID uuid.UUID) error
	InsertConfirmationToken(ctx context.Context, t store.ConfirmationToken) error
	ConsumeConfirmationToken(ctx context.Context, tokenHash, tokenType string) (uuid.UUID, error)
	InsertUserToken(ctx context.Context, t store.UserToken) error
	UserTokenByAccess(ctx context.Context, accessToken string) (*store.UserToken, error)
	UserTokenByRefresh(ctx context.Context, refreshToken string) (*store.UserToken, error)
	DeleteUserTokenByAccess(ctx context.Context, accessToken string) error
}

// Session is an issued access/refresh token pair with its owner.
type Session struct {
	AccessToken  string      `json:"access_token"`
	RefreshToken string      `json:"refresh_token"`
	ExpiresAt    time.Time   `json:"expires_at"`
	User         *store.User `json:"user"`
}

// Service owns sign-up, sign-in, sign-out, session lookup and the two email
// confirmation transports.
type Service struct {
	accounts   Accounts
	tokens     *TokenIssuer
	events     *Broadcaster
	siteURL    string
	confirmTTL time.Duration
	logger     zerolog.Logger
}

func NewService(accounts Accounts, tokens *TokenIssuer, events *Broadcaster, siteURL string, confirmTTL time.Duration, logger zerolog.Logger) *Service {
	return &Service{
		accounts:   accounts,
		tokens:     tokens,
		events:     events,
		siteURL:    strings.TrimSuffix(siteURL, "/"),
		confirmTTL: confirmTTL,
		logger:     logger,
	}
}

// Events exposes the session-change broadcaster.
func (s *Service) Events() *Broadcaster {
	return s.events
}

// SignUp creates an unconfirmed account and issues a confirmation token. No
// session is returned; the user must confirm their email first. The
// confirmation link is logged for out-of-band delivery.
func (s *Service) SignUp(ctx context.Context, email, password, name string) (*store.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || !strings.Contains(email, "@") {
		return nil, errors.New("a valid email is required")
	}
	if len(password) < 6 {
		return nil, ErrWeakPassword
	}
	if name = strings.TrimSpace(name); name == "" {
		name = strings.SplitN(email, "@", 2)[0]
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	user, err := s.accounts.CreateUser(ctx, email, name, string(hash))
	if err != nil {
		return nil, err
	}

	token, err := NewOpaqueToken()
	if err != nil {
		return nil, err
	}
	err = s.accounts.InsertConfirmationToken(ctx, store.ConfirmationToken{
		TokenHash: HashToken(token),
		UserID:    user.ID,
		Type:      TokenTypeSignup,
		ExpiresAt: time.Now().UTC().Add(s.confirmTTL),
	})
	if err != nil {
		return nil, fmt.Errorf("store confirmation token: %w", err)
	}

	// A second link carries a pre-issued access/refresh pair in the URL
	// fragment; clients landing on it confirm via direct session
	// establishment instead of the token_hash exchange.
	pair, err := s.mintSession(ctx, user)
	if err != nil {
		return nil, err
	}

	// Email delivery happens out of band; the links are logged so operators
	// (and dev setups) can complete the flow.
	s.logger.Info().
		Str("email", email).
		Str("link", fmt.Sprintf("%s/confirm-email?token_hash=%s&type=%s", s.siteURL, token, TokenTypeSignup)).
		Str("fragment_link", fmt.Sprintf("%s/dashboard#access_token=%s&refresh_token=%s", s.siteURL, pair.AccessToken, pair.RefreshToken)).
		Msg("confirmation links issued")

	return user, nil
}

// SignIn verifies credentials and issues a session. Unconfirmed accounts
// are rejected.
func (s *Service) SignIn(ctx context.Context, email, password string) (*Session, error) {
	user, err := s.accounts.UserByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return nil, ErrInvalidCredentials
	}
	if !user.Confirmed() {
		return nil, ErrEmailNotConfirmed
	}
	session, err := s.mintSession(ctx, user)
	if err != nil {
		return nil, err
	}
	s.events.Publish(Event{UserID: user.ID, Email: user.Email, Type: EventSignedIn})
	return session, nil
}

// SignOut revokes the session behind the given access token. Unknown tokens
// are ignored.
func (s *Service) SignOut(ctx context.Context, accessToken string) error {
	userID, email, parseErr := s.tokens.ParseAccessToken(accessToken)
	if err := s.accounts.DeleteUserTokenByAccess(ctx, accessToken); err != nil {
		return err
	}
	if parseErr == nil {
		s.events.Publish(Event{UserID: userID, Email: email, Type: EventSignedOut})
	}
	return nil
}

// SessionUser resolves the user behind an access token. The token must
// verify, still have a live session row (so sign-out takes effect before JWT
// expiry), and belong to a confirmed account: the pair pre-minted at sign-up
// for the fragment link must not authenticate anything until the
// confirmation step has consumed it.
func (s *Service) SessionUser(ctx context.Context, accessToken string) (*store.User, error) {
	userID, _, err := s.tokens.ParseAccessToken(accessToken)
	if err != nil {
		return nil, ErrInvalidSession
	}
	if _, err := s.accounts.UserTokenByAccess(ctx, accessToken); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrInvalidSession
		}
		return nil, err
	}
	user, err := s.accounts.UserByID(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrInvalidSession
	}
	if err != nil {
		return nil, err
	}
	if !user.Confirmed() {
		return nil, ErrInvalidSession
	}
	return user, nil
}

// ConfirmByToken handles the query-parameter transport: the raw token from
// the emailed link is exchanged for a confirmed account and a session.
func (s *Service) ConfirmByToken(ctx context.Context, rawToken, tokenType string) (*Session, error) {
	if tokenType == "" {
		tokenType = TokenTypeSignup
	}
	userID, err := s.accounts.ConsumeConfirmationToken(ctx, HashToken(rawToken), tokenType)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrInvalidToken
	}
	if err != nil {
		return nil, err
	}
	if err := s.accounts.ConfirmEmail(ctx, userID); err != nil {
		return nil, err
	}
	user, err := s.accounts.UserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	session, err := s.mintSession(ctx, user)
	if err != nil {
		return nil, err
	}
	s.events.Publish(Event{UserID: user.ID, Email: user.Email, Type: EventConfirmed})
	return session, nil
}

// ConfirmBySessionTokens handles the URL-fragment transport: an
// access/refresh pair is exchanged for a confirmed account via direct
// session establishment. The pair must belong to the same issued session.
func (s *Service) ConfirmBySessionTokens(ctx context.Context, accessToken, refreshToken string) (*Session, error) {
	row, err := s.accounts.UserTokenByRefresh(ctx, refreshToken)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrInvalidSession
	}
	if err != nil {
		return nil, err
	}
	if row.AccessToken != accessToken {
		return nil, ErrInvalidSession
	}
	if err := s.accounts.ConfirmEmail(ctx, row.UserID); err != nil {
		return nil, err
	}
	user, err := s.accounts.UserByID(ctx, row.UserID)
	if err != nil {
		return nil, err
	}
	s.events.Publish(Event{UserID: user.ID, Email: user.Email, Type: EventConfirmed})
	return &Session{
		AccessToken:  row.AccessToken,
		RefreshToken: row.RefreshToken,
		ExpiresAt:    row.ExpiresAt,
		User:         user,
	}, nil
}

func (s *Service) mintSession(ctx context.Context, user *store.User) (*Session, error) {
	now := time.Now().UTC()
	access, expiresAt, err := s.tokens.MintAccessToken(user.ID, user.Email, now)
	if err != nil {
		return nil, fmt.Errorf("mint access token: %w", err)
	}
	refresh, err := NewOpaqueToken()
	if err != nil {
		return nil, err
	}
	err = s.accounts.InsertUserToken(ctx, store.UserToken{
		ID:           uuid.New(),
		UserID:       user.ID,
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresAt:    expiresAt,
	})
	if err != nil {
		return nil, fmt.Errorf("store session: %w", err)
	}
	return &Session{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresAt:    expiresAt,
		User:         user,
	}, nil
}
