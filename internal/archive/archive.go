// Package archive persists raw crawl output to S3-compatible object
// storage so an ingestion run can be replayed later without
// re-crawling the source.
package archive

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Config holds S3/MinIO client configuration.
type Config struct {
	Endpoint        string // "localhost:9000" for MinIO
	Bucket          string // "crawlrag"
	AccessKeyID     string
	SecretAccessKey string
	UseSSL          bool
}

// Client wraps the MinIO/S3 client for crawl archive operations.
type Client struct {
	minioClient *minio.Client
	bucket      string
}

// New creates a new archive client.
func New(config Config) (*Client, error) {
	if config.Endpoint == "" {
		return nil, fmt.Errorf("endpoint is required")
	}
	if config.Bucket == "" {
		return nil, fmt.Errorf("bucket is required")
	}

	minioClient, err := minio.New(config.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(config.AccessKeyID, config.SecretAccessKey, ""),
		Secure: config.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	return &Client{
		minioClient: minioClient,
		bucket:      config.Bucket,
	}, nil
}

// EnsureBucket creates the bucket if it doesn't exist.
func (c *Client) EnsureBucket(ctx context.Context) error {
	exists, err := c.minioClient.BucketExists(ctx, c.bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket: %w", err)
	}
	if exists {
		return nil
	}

	err = c.minioClient.MakeBucket(ctx, c.bucket, minio.MakeBucketOptions{})
	if err != nil {
		return fmt.Errorf("failed to create bucket: %w", err)
	}
	return nil
}

// NewPrefix returns the object prefix for a fresh crawl of a source.
func NewPrefix(sourceID string) string {
	return path.Join("crawls", sourceID, time.Now().UTC().Format("20060102-150405"))
}

// PageFilename derives a stable markdown object name for a page URL.
func PageFilename(pageURL string) string {
	hash := sha256.Sum256([]byte(pageURL))
	return hex.EncodeToString(hash[:])[:16] + ".md"
}

// ManifestPage maps an archived file back to its page URL.
type ManifestPage struct {
	URL  string `json:"url"`
	File string `json:"file"`
}

// Manifest describes one archived crawl.
type Manifest struct {
	SeedURL   string         `json:"seed_url"`
	SourceID  string         `json:"source_id"`
	CrawlType string         `json:"crawl_type"`
	Timestamp string         `json:"timestamp"`
	PageCount int            `json:"page_count"`
	Pages     []ManifestPage `json:"pages"`
}

// PutPage writes a page's markdown under the crawl prefix.
func (c *Client) PutPage(ctx context.Context, prefix, filename, markdown string) error {
	objectName := path.Join(prefix, "pages", filename)
	reader := strings.NewReader(markdown)

	_, err := c.minioClient.PutObject(ctx, c.bucket, objectName, reader, int64(len(markdown)), minio.PutObjectOptions{
		ContentType: "text/markdown",
	})
	if err != nil {
		return fmt.Errorf("failed to put page: %w", err)
	}
	return nil
}

// GetPage reads a page's markdown from the archive.
func (c *Client) GetPage(ctx context.Context, prefix, filename string) (string, error) {
	objectName := path.Join(prefix, "pages", filename)

	object, err := c.minioClient.GetObject(ctx, c.bucket, objectName, minio.GetObjectOptions{})
	if err != nil {
		return "", fmt.Errorf("failed to get page: %w", err)
	}
	defer object.Close()

	data, err := io.ReadAll(object)
	if err != nil {
		return "", fmt.Errorf("failed to read page: %w", err)
	}

	return string(data), nil
}

// ListPages returns the filenames of all archived pages under a prefix.
func (c *Client) ListPages(ctx context.Context, prefix string) ([]string, error) {
	pagesPrefix := path.Join(prefix, "pages") + "/"
	var files []string

	objectCh := c.minioClient.ListObjects(ctx, c.bucket, minio.ListObjectsOptions{
		Prefix:    pagesPrefix,
		Recursive: true,
	})

	for object := range objectCh {
		if object.Err != nil {
			return nil, fmt.Errorf("failed to list objects: %w", object.Err)
		}
		if strings.HasSuffix(object.Key, ".md") {
			files = append(files, path.Base(object.Key))
		}
	}

	return files, nil
}

// PutManifest writes the crawl manifest under the prefix.
func (c *Client) PutManifest(ctx context.Context, prefix string, manifest Manifest) error {
	objectName := path.Join(prefix, "manifest.json")

	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal manifest: %w", err)
	}

	reader := bytes.NewReader(data)
	_, err = c.minioClient.PutObject(ctx, c.bucket, objectName, reader, int64(len(data)), minio.PutObjectOptions{
		ContentType: "application/json",
	})
	if err != nil {
		return fmt.Errorf("failed to put manifest: %w", err)
	}
	return nil
}

// GetManifest reads the crawl manifest from the archive.
func (c *Client) GetManifest(ctx context.Context, prefix string) (*Manifest, error) {
	objectName := path.Join(prefix, "manifest.json")

	object, err := c.minioClient.GetObject(ctx, c.bucket, objectName, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to get manifest: %w", err)
	}
	defer object.Close()

	data, err := io.ReadAll(object)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	var manifest Manifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("failed to unmarshal manifest: %w", err)
	}

	return &manifest, nil
}

// Bucket returns the bucket name.
func (c *Client) Bucket() string {
	return c.bucket
}
