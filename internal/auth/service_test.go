package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/paperstudio/platform/internal/store"
)

// fakeAccounts is an in-memory Accounts implementation for exercising the
// identity flows without a database.
type fakeAccounts struct {
	users         map[uuid.UUID]*store.User
	confirmations map[string]store.ConfirmationToken
	sessions      map[string]store.UserToken // keyed by access token
}

func newFakeAccounts() *fakeAccounts {
	return &fakeAccounts{
		users:         make(map[uuid.UUID]*store.User),
		confirmations: make(map[string]store.ConfirmationToken),
		sessions:      make(map[string]store.UserToken),
	}
}

func (f *fakeAccounts) CreateUser(_ context.Context, email, name, passwordHash string) (*store.User, error) {
	for _, u := range f.users {
		if u.Email == email {
			return nil, store.ErrDuplicateEmail
		}
	}
	u := &store.User{
		ID:           uuid.New(),
		Email:        email,
		Name:         name,
		PasswordHash: passwordHash,
		CreatedAt:    time.Now().UTC(),
	}
	f.users[u.ID] = u
	return u, nil
}

func (f *fakeAccounts) UserByEmail(_ context.Context, email string) (*store.User, error) {
	for _, u := range f.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, store.ErrNotFound
}

func (f *fakeAccounts) UserByID(_ context.Context, id uuid.UUID) (*store.User, error) {
	if u, ok := f.users[id]; ok {
		return u, nil
	}
	return nil, store.ErrNotFound
}

func (f *fakeAccounts) ConfirmEmail(_ context.Context, userID uuid.UUID) error {
	u, ok := f.users[userID]
	if !ok {
		return store.ErrNotFound
	}
	if u.EmailConfirmedAt == nil {
		now := time.Now().UTC()
		u.EmailConfirmedAt = &now
	}
	return nil
}

func (f *fakeAccounts) InsertConfirmationToken(_ context.Context, t store.ConfirmationToken) error {
	f.confirmations[t.TokenHash] = t
	return nil
}

func (f *fakeAccounts) ConsumeConfirmationToken(_ context.Context, tokenHash, tokenType string) (uuid.UUID, error) {
	t, ok := f.confirmations[tokenHash]
	if !ok || t.Type != tokenType || time.Now().After(t.ExpiresAt) {
		return uuid.Nil, store.ErrNotFound
	}
	delete(f.confirmations, tokenHash)
	return t.UserID, nil
}

func (f *fakeAccounts) InsertUserToken(_ context.Context, t store.UserToken) error {
	f.sessions[t.AccessToken] = t
	return nil
}

func (f *fakeAccounts) UserTokenByAccess(_ context.Context, accessToken string) (*store.UserToken, error) {
	if t, ok := f.sessions[accessToken]; ok {
		return &t, nil
	}
	return nil, store.ErrNotFound
}

func (f *fakeAccounts) UserTokenByRefresh(_ context.Context, refreshToken string) (*store.UserToken, error) {
	for _, t := range f.sessions {
		if t.RefreshToken == refreshToken {
			return &t, nil
		}
	}
	return nil, store.ErrNotFound
}

func (f *fakeAccounts) DeleteUserTokenByAccess(_ context.Context, accessToken string) error {
	delete(f.sessions, accessToken)
	return nil
}

func newTestService(accounts *fakeAccounts) *Service {
	issuer := NewTokenIssuer("test-secret", time.Hour)
	return NewService(accounts, issuer, NewBroadcaster(), "http://localhost:3000", 24*time.Hour, zerolog.Nop())
}

func TestAccessTokenRoundTrip(t *testing.T) {
	issuer := NewTokenIssuer("secret", time.Hour)
	userID := uuid.New()

	token, expiresAt, err := issuer.MintAccessToken(userID, "a@b.com", time.Now().UTC())
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	if !expiresAt.After(time.Now()) {
		t.Fatal("expiry should be in the future")
	}

	gotID, gotEmail, err := issuer.ParseAccessToken(token)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if gotID != userID || gotEmail != "a@b.com" {
		t.Fatalf("claims = %s/%s", gotID, gotEmail)
	}
}

func TestAccessTokenRejectsWrongSecret(t *testing.T) {
	token, _, err := NewTokenIssuer("secret-a", time.Hour).MintAccessToken(uuid.New(), "a@b.com", time.Now().UTC())
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	if _, _, err := NewTokenIssuer("secret-b", time.Hour).ParseAccessToken(token); err == nil {
		t.Fatal("token signed with another secret must not verify")
	}
}

func TestAccessTokenRejectsExpired(t *testing.T) {
	issuer := NewTokenIssuer("secret", time.Minute)
	token, _, err := issuer.MintAccessToken(uuid.New(), "a@b.com", time.Now().UTC().Add(-time.Hour))
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	if _, _, err := issuer.ParseAccessToken(token); err == nil {
		t.Fatal("expired token must not verify")
	}
}

func TestHashTokenIsStable(t *testing.T) {
	a := HashToken("abc")
	b := HashToken("abc")
	if a != b {
		t.Fatal("hash must be deterministic")
	}
	if a == HashToken("abd") {
		t.Fatal("different tokens must hash differently")
	}
	if len(a) != 64 {
		t.Fatalf("hex sha-256 should be 64 chars, got %d", len(a))
	}
}

func TestSignUpRejectsWeakPassword(t *testing.T) {
	svc := newTestService(newFakeAccounts())
	if _, err := svc.SignUp(context.Background(), "a@b.com", "short", "A"); !errors.Is(err, ErrWeakPassword) {
		t.Fatalf("expected ErrWeakPassword, got %v", err)
	}
}

func TestSignUpRejectsDuplicateEmail(t *testing.T) {
	accounts := newFakeAccounts()
	svc := newTestService(accounts)
	if _, err := svc.SignUp(context.Background(), "a@b.com", "password", "A"); err != nil {
		t.Fatalf("first sign-up: %v", err)
	}
	if _, err := svc.SignUp(context.Background(), "a@b.com", "password", "A"); !errors.Is(err, store.ErrDuplicateEmail) {
		t.Fatalf("expected ErrDuplicateEmail, got %v", err)
	}
}

func TestSignInBlockedUntilConfirmed(t *testing.T) {
	accounts := newFakeAccounts()
	svc := newTestService(accounts)
	if _, err := svc.SignUp(context.Background(), "a@b.com", "password", "A"); err != nil {
		t.Fatalf("sign-up: %v", err)
	}
	if _, err := svc.SignIn(context.Background(), "a@b.com", "password"); !errors.Is(err, ErrEmailNotConfirmed) {
		t.Fatalf("expected ErrEmailNotConfirmed, got %v", err)
	}
}

func TestSignInWrongPassword(t *testing.T) {
	accounts := newFakeAccounts()
	svc := newTestService(accounts)
	if _, err := svc.SignUp(context.Background(), "a@b.com", "password", "A"); err != nil {
		t.Fatalf("sign-up: %v", err)
	}
	if _, err := svc.SignIn(context.Background(), "a@b.com", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if _, err := svc.SignIn(context.Background(), "nobody@b.com", "password"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("unknown email should look identical, got %v", err)
	}
}

// confirmationTokenFor digs the stored hash out of the fake; the service only
// ever exposes the raw token via the logged link.
func confirmationTokenFor(accounts *fakeAccounts, userID uuid.UUID) (store.ConfirmationToken, bool) {
	for _, t := range accounts.confirmations {
		if t.UserID == userID {
			return t, true
		}
	}
	return store.ConfirmationToken{}, false
}

func TestConfirmByTokenThenSignIn(t *testing.T) {
	accounts := newFakeAccounts()
	svc := newTestService(accounts)
	user, err := svc.SignUp(context.Background(), "a@b.com", "password", "A")
	if err != nil {
		t.Fatalf("sign-up: %v", err)
	}

	stored, ok := confirmationTokenFor(accounts, user.ID)
	if !ok {
		t.Fatal("sign-up should store a confirmation token")
	}
	// The fake stores hashes, so re-key the map with a known raw token.
	raw := "known-raw-token"
	stored.TokenHash = HashToken(raw)
	accounts.confirmations = map[string]store.ConfirmationToken{stored.TokenHash: stored}

	session, err := svc.ConfirmByToken(context.Background(), raw, TokenTypeSignup)
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if session.User.ID != user.ID || !session.User.Confirmed() {
		t.Fatalf("confirmed session user = %+v", session.User)
	}
	if session.AccessToken == "" || session.RefreshToken == "" {
		t.Fatal("confirmation should mint a full session")
	}

	if _, err := svc.SignIn(context.Background(), "a@b.com", "password"); err != nil {
		t.Fatalf("sign-in after confirmation: %v", err)
	}

	// Tokens are single use.
	if _, err := svc.ConfirmByToken(context.Background(), raw, TokenTypeSignup); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("second confirm should fail, got %v", err)
	}
}

func TestConfirmByTokenRejectsUnknown(t *testing.T) {
	svc := newTestService(newFakeAccounts())
	if _, err := svc.ConfirmByToken(context.Background(), "nope", TokenTypeSignup); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestConfirmBySessionTokens(t *testing.T) {
	accounts := newFakeAccounts()
	svc := newTestService(accounts)
	user, err := svc.SignUp(context.Background(), "a@b.com", "password", "A")
	if err != nil {
		t.Fatalf("sign-up: %v", err)
	}

	// Sign-up minted a session pair for the fragment link.
	var pair store.UserToken
	found := false
	for _, s := range accounts.sessions {
		if s.UserID == user.ID {
			pair, found = s, true
		}
	}
	if !found {
		t.Fatal("sign-up should mint a fragment session pair")
	}

	session, err := svc.ConfirmBySessionTokens(context.Background(), pair.AccessToken, pair.RefreshToken)
	if err != nil {
		t.Fatalf("confirm by tokens: %v", err)
	}
	if !session.User.Confirmed() {
		t.Fatal("fragment confirmation should confirm the email")
	}

	// A mismatched pair must not confirm anything.
	if _, err := svc.ConfirmBySessionTokens(context.Background(), "other-access", pair.RefreshToken); !errors.Is(err, ErrInvalidSession) {
		t.Fatalf("mismatched pair should fail, got %v", err)
	}
}

func TestSignOutRevokesSession(t *testing.T) {
	accounts := newFakeAccounts()
	svc := newTestService(accounts)
	user, err := svc.SignUp(context.Background(), "a@b.com", "password", "A")
	if err != nil {
		t.Fatalf("sign-up: %v", err)
	}
	if err := accounts.ConfirmEmail(context.Background(), user.ID); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	session, err := svc.SignIn(context.Background(), "a@b.com", "password")
	if err != nil {
		t.Fatalf("sign-in: %v", err)
	}

	if _, err := svc.SessionUser(context.Background(), session.AccessToken); err != nil {
		t.Fatalf("live session should resolve: %v", err)
	}
	if err := svc.SignOut(context.Background(), session.AccessToken); err != nil {
		t.Fatalf("sign-out: %v", err)
	}
	if _, err := svc.SessionUser(context.Background(), session.AccessToken); !errors.Is(err, ErrInvalidSession) {
		t.Fatalf("revoked token should not resolve even before JWT expiry, got %v", err)
	}
}

func TestSessionUserRejectsUnconfirmedAccount(t *testing.T) {
	accounts := newFakeAccounts()
	svc := newTestService(accounts)
	user, err := svc.SignUp(context.Background(), "a@b.com", "password", "A")
	if err != nil {
		t.Fatalf("sign-up: %v", err)
	}

	// Sign-up pre-mints the fragment-link token pair; until the email is
	// confirmed it must not authenticate anything.
	var pair store.UserToken
	found := false
	for _, s := range accounts.sessions {
		if s.UserID == user.ID {
			pair, found = s, true
		}
	}
	if !found {
		t.Fatal("sign-up should mint a fragment session pair")
	}
	if _, err := svc.SessionUser(context.Background(), pair.AccessToken); !errors.Is(err, ErrInvalidSession) {
		t.Fatalf("unconfirmed account must not resolve a session, got %v", err)
	}

	// The same pair starts working once the confirmation step consumes it.
	if _, err := svc.ConfirmBySessionTokens(context.Background(), pair.AccessToken, pair.RefreshToken); err != nil {
		t.Fatalf("confirm by tokens: %v", err)
	}
	if _, err := svc.SessionUser(context.Background(), pair.AccessToken); err != nil {
		t.Fatalf("confirmed account should resolve: %v", err)
	}
}

func TestSessionUserRejectsGarbage(t *testing.T) {
	svc := newTestService(newFakeAccounts())
	if _, err := svc.SessionUser(context.Background(), "not-a-jwt"); !errors.Is(err, ErrInvalidSession) {
		t.Fatalf("expected ErrInvalidSession, got %v", err)
	}
}

func TestBroadcasterDeliversToSubscriber(t *testing.T) {
	b := NewBroadcaster()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	userID := uuid.New()
	b.Publish(Event{UserID: userID, Email: "a@b.com", Type: EventSignedIn})

	select {
	case ev := <-ch:
		if ev.UserID != userID || ev.Type != EventSignedIn {
			t.Fatalf("unexpected event %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}
}

func TestBroadcasterDropsWhenSubscriberStalls(t *testing.T) {
	b := NewBroadcaster()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	// Publish past the buffer without draining; Publish must never block.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			b.Publish(Event{Type: EventSignedIn})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a stalled subscriber")
	}
}
