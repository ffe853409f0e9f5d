// Package blob wraps the company document container: listing, downloading
// and short lived download links.
package blob

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/sas"

	"property-chatbot-api/internal/logger"
)

const defaultSASExpiry = time.Hour

// Item is a blob listed from the container.
type Item struct {
	Name        string
	ContentType string
	Size        int64
}

type Service struct {
	container   string
	accountName string
	endpoint    string
	cred        *azblob.SharedKeyCredential
	client      *azblob.Client
	now         func() time.Time
}

// NewService builds the blob service from an account connection string. An
// empty connection string yields a service that cannot sign or list, so
// DownloadURL returns "" and callers degrade to sources without links.
func NewService(connectionString, container string) (*Service, error) {
	s := &Service{container: container, now: time.Now}
	if connectionString == "" {
		logger.Warn("Blob storage connection string not set; download links disabled")
		return s, nil
	}

	parts := ParseConnectionString(connectionString)
	s.accountName = parts["AccountName"]
	suffix := parts["EndpointSuffix"]
	if suffix == "" {
		suffix = "core.windows.net"
	}
	s.endpoint = fmt.Sprintf("https://%s.blob.%s", s.accountName, suffix)

	if s.accountName != "" && parts["AccountKey"] != "" {
		cred, err := azblob.NewSharedKeyCredential(s.accountName, parts["AccountKey"])
		if err != nil {
			return nil, fmt.Errorf("invalid storage account key: %w", err)
		}
		s.cred = cred
	}

	client, err := azblob.NewClientFromConnectionString(connectionString, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create blob client: %w", err)
	}
	s.client = client
	return s, nil
}

// ParseConnectionString splits "Key=Value;..." pairs. Values may contain '='.
func ParseConnectionString(cs string) map[string]string {
	out := map[string]string{}
	for _, item := range strings.Split(cs, ";") {
		k, v, ok := strings.Cut(item, "=")
		if !ok {
			continue
		}
		out[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}
	return out
}

func (s *Service) Container() string { return s.container }

// DownloadURL returns a one hour, read only link that forces a download.
// It returns "" when the account key is unavailable.
func (s *Service) DownloadURL(blobName string) (string, error) {
	return s.DownloadURLWithExpiry(blobName, defaultSASExpiry)
}

func (s *Service) DownloadURLWithExpiry(blobName string, expiry time.Duration) (string, error) {
	if s.cred == nil {
		return "", nil
	}
	name, err := url.PathUnescape(blobName)
	if err != nil {
		name = blobName
	}

	params, err := sas.BlobSignatureValues{
		Protocol:           sas.ProtocolHTTPS,
		ExpiryTime:         s.now().UTC().Add(expiry),
		Permissions:        (&sas.BlobPermissions{Read: true}).String(),
		ContainerName:      s.container,
		BlobName:           name,
		ContentDisposition: "attachment",
	}.SignWithSharedKey(s.cred)
	if err != nil {
		return "", fmt.Errorf("sign SAS for %s: %w", name, err)
	}

	return fmt.Sprintf("%s/%s/%s?%s", s.endpoint, s.container, url.PathEscape(name), params.Encode()), nil
}

// List returns every blob in the container whose name ends with one of the
// given extensions. No extensions lists everything.
func (s *Service) List(ctx context.Context, extensions ...string) ([]Item, error) {
	if s.client == nil {
		return nil, fmt.Errorf("blob storage is not configured")
	}

	var items []Item
	pager := s.client.NewListBlobsFlatPager(s.container, nil)
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list blobs in %s: %w", s.container, err)
		}
		for _, b := range resp.Segment.BlobItems {
			if b.Name == nil || !hasExtension(*b.Name, extensions) {
				continue
			}
			item := Item{Name: *b.Name}
			if b.Properties != nil {
				if b.Properties.ContentType != nil {
					item.ContentType = *b.Properties.ContentType
				}
				if b.Properties.ContentLength != nil {
					item.Size = *b.Properties.ContentLength
				}
			}
			items = append(items, item)
		}
	}
	return items, nil
}

// Download reads a blob fully into memory.
func (s *Service) Download(ctx context.Context, name string) ([]byte, error) {
	if s.client == nil {
		return nil, fmt.Errorf("blob storage is not configured")
	}
	resp, err := s.client.DownloadStream(ctx, s.container, name, nil)
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", name, err)
	}
	defer resp.Body.Close()
	return io.ReadAll(resp.Body)
}

// BlobURL is the unsigned URL of a blob, used as metadata in the index.
func (s *Service) BlobURL(name string) string {
	return fmt.Sprintf("%s/%s/%s", s.endpoint, s.container, url.PathEscape(name))
}

func hasExtension(name string, extensions []string) bool {
	if len(extensions) == 0 {
		return true
	}
	lower := strings.ToLower(name)
	for _, ext := range extensions {
		if strings.HasSuffix(lower, strings.ToLower(ext)) {
			return true
		}
	}
	return false
}
