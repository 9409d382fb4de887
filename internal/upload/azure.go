package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	nethttp "net/http"
	"path"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"

	"github.com/exposerver/exposerver/internal/config"
	"github.com/exposerver/exposerver/internal/intake"
	"github.com/exposerver/exposerver/internal/transfer"
)

// uploadStreamAPI is the part of the blob client the transport needs.
type uploadStreamAPI interface {
	UploadStream(ctx context.Context, containerName, blobName string, body io.Reader, o *azblob.UploadStreamOptions) (azblob.UploadStreamResponse, error)
}

// AzureTransport streams each file into a block blob under container/prefix.
type AzureTransport struct {
	client    uploadStreamAPI
	container string
	prefix    string
}

// NewAzureTransport creates an Azure Blob transport. A connection string
// wins over the account URL, which must then carry a SAS token.
func NewAzureTransport(cfg *config.Config, httpClient *nethttp.Client, container, prefix string) (*AzureTransport, error) {
	if container == "" {
		return nil, fmt.Errorf("azblob target needs a container")
	}

	opts := &azblob.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			// A failed upload is reported, never sent again.
			Retry: policy.RetryOptions{MaxRetries: -1},
		},
	}
	if httpClient != nil {
		// Reuse the proxy-aware connection pool
		opts.Transport = httpClient
	}

	var (
		client *azblob.Client
		err    error
	)
	switch {
	case cfg.AzureConnectionString != "":
		client, err = azblob.NewClientFromConnectionString(cfg.AzureConnectionString, opts)
	case cfg.AzureAccountURL != "":
		client, err = azblob.NewClientWithNoCredential(cfg.AzureAccountURL, opts)
	default:
		return nil, fmt.Errorf("azblob target needs AZURE_STORAGE_CONNECTION_STRING or azure_account_url")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create Azure client: %w", err)
	}

	return newAzureTransport(client, container, prefix), nil
}

func newAzureTransport(client uploadStreamAPI, container, prefix string) *AzureTransport {
	return &AzureTransport{client: client, container: container, prefix: prefix}
}

// BlobName returns the blob a file is stored under.
func (t *AzureTransport) BlobName(name string) string {
	if t.prefix == "" {
		return name
	}
	return path.Join(t.prefix, name)
}

// Send implements transfer.Transport.
func (t *AzureTransport) Send(ctx context.Context, file intake.File, progress func(sent int64)) (transfer.Response, error) {
	content, err := file.Open()
	if err != nil {
		return transfer.Response{}, fmt.Errorf("failed to open %s: %w", file.Name, err)
	}
	defer content.Close()

	blob := t.BlobName(file.Name)
	_, err = t.client.UploadStream(ctx, t.container, blob, &countingReader{r: content, progress: progress}, nil)
	if err != nil {
		var respErr *azcore.ResponseError
		if errors.As(err, &respErr) {
			return transfer.Response{StatusCode: respErr.StatusCode, Body: respErr.ErrorCode}, nil
		}
		return transfer.Response{}, err
	}

	return transfer.Response{
		StatusCode: nethttp.StatusCreated,
		Body:       fmt.Sprintf("File '%s' uploaded to azblob://%s/%s.", file.Name, t.container, blob),
	}, nil
}
