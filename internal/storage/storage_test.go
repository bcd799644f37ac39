package storage

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestSanitizeName(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"paper.pdf", "paper.pdf"},
		{"my paper (v2).pdf", "my_paper__v2_.pdf"},
		{"über-study.pdf", "_ber-study.pdf"},
		{"a/b\\c.pdf", "a_b_c.pdf"},
		{"UPPER.lower-09.pdf", "UPPER.lower-09.pdf"},
	}
	for _, tc := range cases {
		if got := SanitizeName(tc.in); got != tc.want {
			t.Fatalf("SanitizeName(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestObjectKey(t *testing.T) {
	at := time.UnixMilli(1700000000123).UTC()
	got := ObjectKey("user-1", at, "my report.pdf")
	want := "user-1/1700000000123_my_report.pdf"
	if got != want {
		t.Fatalf("ObjectKey = %q, want %q", got, want)
	}
}

type fakeBackend struct {
	name      string
	storeErr  error
	removeErr error
	signErr   error
	signedURL string
	stored    []string
	removed   []string
}

func (f *fakeBackend) Name() string { return f.name }

func (f *fakeBackend) Store(_ context.Context, key string, _ []byte, _ string) error {
	if f.storeErr != nil {
		return f.storeErr
	}
	f.stored = append(f.stored, key)
	return nil
}

func (f *fakeBackend) Remove(_ context.Context, key string) error {
	if f.removeErr != nil {
		return f.removeErr
	}
	f.removed = append(f.removed, key)
	return nil
}

func (f *fakeBackend) SignedURL(_ context.Context, key string, _ time.Duration) (string, error) {
	if f.signErr != nil {
		return "", f.signErr
	}
	return f.signedURL + key, nil
}

func TestFanoutStoreLenientContinuesPastFailure(t *testing.T) {
	bad := &fakeBackend{name: "bad", storeErr: fmt.Errorf("boom")}
	good := &fakeBackend{name: "good"}
	fan := NewFanout([]Backend{bad, good}, false, zerolog.Nop())

	if err := fan.Store(context.Background(), "k", []byte("x"), "application/pdf"); err != nil {
		t.Fatalf("lenient store should succeed, got %v", err)
	}
	if len(good.stored) != 1 {
		t.Fatalf("second backend should still be written, stored=%v", good.stored)
	}
}

func TestFanoutStoreStrictAbortsOnFailure(t *testing.T) {
	bad := &fakeBackend{name: "bad", storeErr: fmt.Errorf("boom")}
	good := &fakeBackend{name: "good"}
	fan := NewFanout([]Backend{bad, good}, true, zerolog.Nop())

	if err := fan.Store(context.Background(), "k", []byte("x"), "application/pdf"); err == nil {
		t.Fatal("strict store should fail on first backend error")
	}
	if len(good.stored) != 0 {
		t.Fatalf("strict mode should not reach later backends, stored=%v", good.stored)
	}
}

func TestFanoutStoreEmpty(t *testing.T) {
	fan := NewFanout(nil, false, zerolog.Nop())
	if err := fan.Store(context.Background(), "k", nil, ""); err == nil {
		t.Fatal("expected error with no backends configured")
	}
}

func TestFanoutRemoveLenientSwallowsErrors(t *testing.T) {
	bad := &fakeBackend{name: "bad", removeErr: fmt.Errorf("gone")}
	good := &fakeBackend{name: "good"}
	fan := NewFanout([]Backend{bad, good}, false, zerolog.Nop())

	if err := fan.Remove(context.Background(), "k"); err != nil {
		t.Fatalf("lenient remove should succeed, got %v", err)
	}
	if len(good.removed) != 1 {
		t.Fatalf("second backend should still be cleaned up, removed=%v", good.removed)
	}
}

func TestFanoutRemoveStrictReturnsFirstError(t *testing.T) {
	bad := &fakeBackend{name: "bad", removeErr: fmt.Errorf("gone")}
	fan := NewFanout([]Backend{bad}, true, zerolog.Nop())
	if err := fan.Remove(context.Background(), "k"); err == nil {
		t.Fatal("strict remove should surface the failure")
	}
}

func TestFanoutSignedURLSkipsUnsupported(t *testing.T) {
	noURLs := &fakeBackend{name: "local", signErr: ErrSignedURLUnsupported}
	signer := &fakeBackend{name: "s3", signedURL: "https://cdn.example/"}
	fan := NewFanout([]Backend{noURLs, signer}, false, zerolog.Nop())

	url, err := fan.SignedURL(context.Background(), "k", time.Hour)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if url != "https://cdn.example/k" {
		t.Fatalf("unexpected url %q", url)
	}
}

func TestFanoutSignedURLAllUnsupported(t *testing.T) {
	noURLs := &fakeBackend{name: "local", signErr: ErrSignedURLUnsupported}
	fan := NewFanout([]Backend{noURLs}, false, zerolog.Nop())

	_, err := fan.SignedURL(context.Background(), "k", time.Hour)
	if !errors.Is(err, ErrSignedURLUnsupported) {
		t.Fatalf("expected ErrSignedURLUnsupported, got %v", err)
	}
}
