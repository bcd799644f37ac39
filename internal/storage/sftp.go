package storage

import (
	"context"
	"fmt"
	"net"
	"os"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
)

// sftpBackend mirrors documents onto a remote host, typically for retention
// or archival. Connections are dialed per operation; upload volume is low
// enough that pooling is not worth the state.
type sftpBackend struct {
	addr     string
	user     string
	password string
	keyPath  string
	baseDir  string
}

func NewSFTPBackend() (Backend, error) {
	host := os.Getenv("SFTP_HOST")
	user := os.Getenv("SFTP_USER")
	if host == "" || user == "" {
		return nil, fmt.Errorf("SFTP_HOST and SFTP_USER required for sftp backend")
	}
	port := os.Getenv("SFTP_PORT")
	if port == "" {
		port = "22"
	}
	if _, err := strconv.Atoi(port); err != nil {
		return nil, fmt.Errorf("invalid sftp port: %w", err)
	}
	return &sftpBackend{
		addr:     net.JoinHostPort(host, port),
		user:     user,
		password: os.Getenv("SFTP_PASSWORD"),
		keyPath:  os.Getenv("SFTP_KEY_PATH"),
		baseDir:  os.Getenv("SFTP_BASE_DIR"),
	}, nil
}

func (s *sftpBackend) Name() string {
	return "sftp"
}

func (s *sftpBackend) Store(_ context.Context, key string, data []byte, _ string) error {
	client, err := s.newClient()
	if err != nil {
		return err
	}
	defer client.Close()

	remotePath := s.remotePath(key)
	if err := client.MkdirAll(path.Dir(remotePath)); err != nil {
		return err
	}
	f, err := client.OpenFile(remotePath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = f.Write(data)
	return err
}

func (s *sftpBackend) Remove(_ context.Context, key string) error {
	client, err := s.newClient()
	if err != nil {
		return err
	}
	defer client.Close()
	return client.Remove(s.remotePath(key))
}

func (s *sftpBackend) SignedURL(_ context.Context, _ string, _ time.Duration) (string, error) {
	return "", ErrSignedURLUnsupported
}

func (s *sftpBackend) newClient() (*sftp.Client, error) {
	auths := []ssh.AuthMethod{}
	if s.keyPath != "" {
		key, err := os.ReadFile(s.keyPath)
		if err != nil {
			return nil, fmt.Errorf("read key: %w", err)
		}
		signer, err := ssh.ParsePrivateKey(key)
		if err != nil {
			return nil, fmt.Errorf("parse key: %w", err)
		}
		auths = append(auths, ssh.PublicKeys(signer))
	}
	if s.password != "" {
		auths = append(auths, ssh.Password(s.password))
	}
	if len(auths) == 0 {
		return nil, fmt.Errorf("sftp backend requires password or key")
	}
	cfg := ssh.ClientConfig{
		User:            s.user,
		Auth:            auths,
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         10 * time.Second,
	}

	conn, err := ssh.Dial("tcp", s.addr, &cfg)
	if err != nil {
		return nil, fmt.Errorf("ssh dial: %w", err)
	}
	return sftp.NewClient(conn)
}

func (s *sftpBackend) remotePath(key string) string {
	parts := []string{}
	if strings.TrimSpace(s.baseDir) != "" {
		parts = append(parts, strings.TrimSuffix(s.baseDir, "/"))
	}
	parts = append(parts, key)
	return path.Join(parts...)
}
