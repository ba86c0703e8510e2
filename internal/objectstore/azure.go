package objectstore

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"

	"toltec-dpdb/internal/domain"
)

// AzureOptions configures the blob service client. AccountURL may carry a SAS
// query string; AccountKey switches to shared-key auth.
type AzureOptions struct {
	AccountURL  string
	AccountName string
	AccountKey  string
}

// AzureBackend stats az://container/blob and abfss:// URIs.
type AzureBackend struct {
	client *azblob.Client
}

// NewAzureBackend creates the blob client.
func NewAzureBackend(opts AzureOptions) (*AzureBackend, error) {
	if opts.AccountURL == "" {
		return nil, domain.ErrConfiguration("Azure account URL is required")
	}
	var (
		client *azblob.Client
		err    error
	)
	if opts.AccountKey != "" {
		name := opts.AccountName
		if name == "" {
			name = accountFromURL(opts.AccountURL)
		}
		cred, cerr := azblob.NewSharedKeyCredential(name, opts.AccountKey)
		if cerr != nil {
			return nil, domain.ErrConfiguration("create shared key credential: %v", cerr)
		}
		client, err = azblob.NewClientWithSharedKeyCredential(opts.AccountURL, cred, nil)
	} else {
		client, err = azblob.NewClientWithNoCredential(opts.AccountURL, nil)
	}
	if err != nil {
		return nil, domain.ErrConfiguration("create Azure blob client: %v", err)
	}
	return &AzureBackend{client: client}, nil
}

// Stat returns the blob's ContentLength.
func (b *AzureBackend) Stat(ctx context.Context, uri string) (int64, error) {
	container, key, err := ParseAzurePath(uri)
	if err != nil {
		return 0, err
	}
	blob := b.client.ServiceClient().NewContainerClient(container).NewBlobClient(key)
	props, err := blob.GetProperties(ctx, nil)
	if bloberror.HasCode(err, bloberror.BlobNotFound, bloberror.ContainerNotFound, bloberror.ResourceNotFound) {
		return 0, domain.ErrNotFound("azure blob %s not found", uri)
	}
	if err != nil {
		return 0, fmt.Errorf("get properties %q: %w", uri, err)
	}
	if props.ContentLength == nil {
		return -1, nil
	}
	return *props.ContentLength, nil
}

func accountFromURL(accountURL string) string {
	u, err := url.Parse(accountURL)
	if err != nil {
		return ""
	}
	name, _, _ := strings.Cut(u.Hostname(), ".")
	return name
}

// ParseAzurePath extracts container and key from an Azure storage URI.
//
// Supported formats:
//
//	abfss://container@account.dfs.core.windows.net/path/to/file
//	az://container/path/to/file
//	https://account.blob.core.windows.net/container/path/to/file
func ParseAzurePath(path string) (container, key string, err error) {
	u, err := url.Parse(path)
	if err != nil {
		return "", "", domain.ErrValidation("parse Azure path %q: %v", path, err)
	}

	switch u.Scheme {
	case "abfss":
		// url.Parse reads "container" as userinfo.
		if u.User == nil {
			return "", "", domain.ErrValidation("abfss path %q missing container@account component", path)
		}
		container = u.User.Username()
		key = strings.TrimPrefix(u.Path, "/")
	case "az":
		container = u.Host
		key = strings.TrimPrefix(u.Path, "/")
	case "https":
		if !strings.Contains(u.Host, ".blob.core.windows.net") {
			return "", "", domain.ErrValidation("unrecognized Azure HTTPS host %q in path %q", u.Host, path)
		}
		container, key, _ = strings.Cut(strings.TrimPrefix(u.Path, "/"), "/")
	default:
		return "", "", domain.ErrValidation("unrecognized Azure path scheme %q in %q", u.Scheme, path)
	}

	if container == "" || key == "" {
		return "", "", domain.ErrValidation("Azure path %q needs a container and a key", path)
	}
	return container, key, nil
}
