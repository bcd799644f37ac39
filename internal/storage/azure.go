package storage

import (
	"context"
	"fmt"
	"os"
	"path"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
)

type azureBackend struct {
	client    *azblob.Client
	container string
	prefix    string
}

func NewAzureBlobBackend(ctx context.Context) (Backend, error) {
	account := os.Getenv("AZURE_STORAGE_ACCOUNT")
	key := os.Getenv("AZURE_STORAGE_KEY")
	container := os.Getenv("AZURE_BLOB_CONTAINER")
	if account == "" || key == "" || container == "" {
		return nil, fmt.Errorf("AZURE_STORAGE_ACCOUNT/AZURE_STORAGE_KEY/AZURE_BLOB_CONTAINER required for azure backend")
	}
	prefix := os.Getenv("AZURE_BLOB_PREFIX")
	credential, err := azblob.NewSharedKeyCredential(account, key)
	if err != nil {
		return nil, fmt.Errorf("build shared key credential: %w", err)
	}
	url := fmt.Sprintf("https://%s.blob.core.windows.net/", account)
	client, err := azblob.NewClientWithSharedKeyCredential(url, credential, nil)
	if err != nil {
		return nil, fmt.Errorf("create blob client: %w", err)
	}
	return &azureBackend{
		client:    client,
		container: container,
		prefix:    prefix,
	}, nil
}

func (a *azureBackend) Name() string {
	return "azure"
}

func (a *azureBackend) Store(ctx context.Context, key string, data []byte, _ string) error {
	_, err := a.client.UploadBuffer(ctx, a.container, a.keyFor(key), data, nil)
	return err
}

func (a *azureBackend) Remove(ctx context.Context, key string) error {
	_, err := a.client.DeleteBlob(ctx, a.container, a.keyFor(key), nil)
	return err
}

func (a *azureBackend) SignedURL(_ context.Context, _ string, _ time.Duration) (string, error) {
	return "", ErrSignedURLUnsupported
}

func (a *azureBackend) keyFor(key string) string {
	if a.prefix == "" {
		return key
	}
	return path.Join(a.prefix, key)
}
