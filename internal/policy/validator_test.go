package policy

import (
	"errors"
	"testing"
)

func TestValidateAcceptsPDFUnderLimit(t *testing.T) {
	v := NewPDFValidator()
	if err := v.Validate("application/pdf", 1024); err != nil {
		t.Fatalf("expected valid, got %v", err)
	}
}

func TestValidateRejectsNonPDF(t *testing.T) {
	v := NewPDFValidator()
	err := v.Validate("image/png", 1024)
	if err == nil {
		t.Fatal("expected violation for non-PDF MIME type")
	}
	var violation *Violation
	if !errors.As(err, &violation) {
		t.Fatalf("expected *Violation, got %T", err)
	}
	if got := err.Error(); got != "Only PDF files are allowed" {
		t.Fatalf("unexpected message: %q", got)
	}
}

func TestValidateRejectsOversize(t *testing.T) {
	v := NewPDFValidator()
	err := v.Validate("application/pdf", DefaultMaxFileSize+1)
	if err == nil {
		t.Fatal("expected violation for oversize file")
	}
	if got := err.Error(); got != "File size exceeds the maximum limit of 5MB" {
		t.Fatalf("unexpected message: %q", got)
	}
}

func TestValidateAcceptsExactLimit(t *testing.T) {
	v := NewPDFValidator()
	if err := v.Validate("application/pdf", DefaultMaxFileSize); err != nil {
		t.Fatalf("size exactly at the limit should pass, got %v", err)
	}
}

func TestValidateChecksTypeBeforeSize(t *testing.T) {
	v := NewPDFValidator()
	err := v.Validate("text/plain", DefaultMaxFileSize+1)
	if err == nil {
		t.Fatal("expected violation")
	}
	if got := err.Error(); got != "Only PDF files are allowed" {
		t.Fatalf("type violation should win, got %q", got)
	}
}
