package storage

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// ErrSignedURLUnsupported is returned by backends that cannot mint
// time-limited download links.
var ErrSignedURLUnsupported = errors.New("signed urls not supported by this backend")

// Backend stores raw document bytes in an external target (object store,
// remote filesystem, local disk).
type Backend interface {
	Name() string
	Store(ctx context.Context, key string, data []byte, contentType string) error
	Remove(ctx context.Context, key string) error
	SignedURL(ctx context.Context, key string, expiry time.Duration) (string, error)
}

var unsafeNameChars = regexp.MustCompile(`[^a-zA-Z0-9.-]`)

// SanitizeName replaces every character outside [a-zA-Z0-9.-] with an
// underscore. The rule must stay byte-for-byte stable: object keys for rows
// written before storage_path was persisted are reconstructed with it.
func SanitizeName(name string) string {
	return unsafeNameChars.ReplaceAllString(name, "_")
}

// ObjectKey builds the storage key for an upload:
// {user_id}/{unix_ms}_{sanitized_name}.
func ObjectKey(userID string, uploadedAt time.Time, pdfName string) string {
	return fmt.Sprintf("%s/%d_%s", userID, uploadedAt.UnixMilli(), SanitizeName(pdfName))
}

// Load instantiates the backends named in the comma-separated list
// (s3, azure, sftp, ftps, local). Backends that fail to initialize are
// skipped with a logged error, matching how missing credentials are treated
// at startup.
func Load(ctx context.Context, names string, logger zerolog.Logger) []Backend {
	if names == "" {
		return nil
	}
	var instances []Backend
	for _, token := range strings.Split(names, ",") {
		token = strings.TrimSpace(strings.ToLower(token))
		if token == "" {
			continue
		}
		var (
			backend Backend
			err     error
		)
		switch token {
		case "s3":
			backend, err = NewS3Backend(ctx)
		case "azure":
			backend, err = NewAzureBlobBackend(ctx)
		case "sftp":
			backend, err = NewSFTPBackend()
		case "ftps":
			backend, err = NewFTPSBackend()
		case "local":
			backend, err = NewLocalBackend()
		default:
			err = fmt.Errorf("unknown storage backend %q", token)
		}
		if err != nil {
			logger.Error().Err(err).Str("backend", token).Msg("failed to init storage backend")
			continue
		}
		logger.Info().Str("backend", backend.Name()).Msg("initialized storage backend")
		instances = append(instances, backend)
	}
	return instances
}

// Fanout replicates every write to all configured backends. In strict mode
// the first backend failure fails the operation; otherwise failures are
// logged and the remaining backends still run. Signed URLs come from the
// first backend able to mint one.
type Fanout struct {
	backends []Backend
	strict   bool
	logger   zerolog.Logger
}

func NewFanout(backends []Backend, strict bool, logger zerolog.Logger) *Fanout {
	return &Fanout{backends: backends, strict: strict, logger: logger}
}

// Empty reports whether no backend is configured.
func (f *Fanout) Empty() bool {
	return len(f.backends) == 0
}

func (f *Fanout) Store(ctx context.Context, key string, data []byte, contentType string) error {
	if f.Empty() {
		return errors.New("no storage backend configured")
	}
	for _, b := range f.backends {
		if err := b.Store(ctx, key, data, contentType); err != nil {
			f.logger.Error().
				Err(err).
				Str("backend", b.Name()).
				Str("key", key).
				Msg("backend failed to store object")
			if f.strict {
				return fmt.Errorf("backend %s store: %w", b.Name(), err)
			}
		}
	}
	return nil
}

func (f *Fanout) Remove(ctx context.Context, key string) error {
	var firstErr error
	for _, b := range f.backends {
		if err := b.Remove(ctx, key); err != nil {
			f.logger.Warn().
				Err(err).
				Str("backend", b.Name()).
				Str("key", key).
				Msg("backend failed to remove object")
			if firstErr == nil {
				firstErr = fmt.Errorf("backend %s remove: %w", b.Name(), err)
			}
		}
	}
	if f.strict {
		return firstErr
	}
	return nil
}

func (f *Fanout) SignedURL(ctx context.Context, key string, expiry time.Duration) (string, error) {
	for _, b := range f.backends {
		url, err := b.SignedURL(ctx, key, expiry)
		if errors.Is(err, ErrSignedURLUnsupported) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("backend %s signed url: %w", b.Name(), err)
		}
		return url, nil
	}
	return "", ErrSignedURLUnsupported
}
