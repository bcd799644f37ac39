package storage

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"os"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/secsy/goftp"
)

type ftpsBackend struct {
	config  goftp.Config
	addr    string
	baseDir string
}

func NewFTPSBackend() (Backend, error) {
	host := os.Getenv("FTPS_HOST")
	user := os.Getenv("FTPS_USER")
	pw := os.Getenv("FTPS_PASSWORD")
	if host == "" || user == "" || pw == "" {
		return nil, fmt.Errorf("FTPS_HOST/FTPS_USER/FTPS_PASSWORD required for ftps backend")
	}
	port := os.Getenv("FTPS_PORT")
	if port == "" {
		port = "21"
	}
	if _, err := strconv.Atoi(port); err != nil {
		return nil, fmt.Errorf("invalid ftps port: %w", err)
	}
	addr := fmt.Sprintf("%s:%s", host, port)
	return &ftpsBackend{
		config: goftp.Config{
			User:               user,
			Password:           pw,
			TLSConfig:          &tls.Config{InsecureSkipVerify: true},
			TLSMode:            goftp.TLSExplicit,
			Timeout:            30 * time.Second,
			Logger:             nil,
			ConnectionsPerHost: 1,
		},
		addr:    addr,
		baseDir: os.Getenv("FTPS_BASE_DIR"),
	}, nil
}

func (f *ftpsBackend) Name() string {
	return "ftps"
}

func (f *ftpsBackend) Store(_ context.Context, key string, data []byte, _ string) error {
	client, err := goftp.DialConfig(f.config, f.addr)
	if err != nil {
		return fmt.Errorf("ftps dial: %w", err)
	}
	defer client.Close()

	targetPath := f.remotePath(key)
	if err := f.ensureDir(client, path.Dir(targetPath)); err != nil {
		return err
	}
	if err := client.Store(targetPath, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("ftps store: %w", err)
	}
	return nil
}

func (f *ftpsBackend) Remove(_ context.Context, key string) error {
	client, err := goftp.DialConfig(f.config, f.addr)
	if err != nil {
		return fmt.Errorf("ftps dial: %w", err)
	}
	defer client.Close()
	return client.Delete(f.remotePath(key))
}

func (f *ftpsBackend) SignedURL(_ context.Context, _ string, _ time.Duration) (string, error) {
	return "", ErrSignedURLUnsupported
}

func (f *ftpsBackend) remotePath(key string) string {
	if f.baseDir == "" {
		return key
	}
	return path.Join(f.baseDir, key)
}

func (f *ftpsBackend) ensureDir(client *goftp.Client, dir string) error {
	if dir == "" || dir == "." || dir == "/" {
		return nil
	}
	segments := strings.Split(dir, "/")
	current := ""
	for _, segment := range segments {
		if segment == "" {
			continue
		}
		current = path.Join(current, segment)
		if _, err := client.Mkdir(current); err != nil {
			if !strings.Contains(strings.ToLower(err.Error()), "file exists") {
				return fmt.Errorf("ftps mkdir %s: %w", current, err)
			}
		}
	}
	return nil
}
