package transfer

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blockblob"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/oakflow-dev/oakflow/config"
)

// Transferer implements backend.Transferer (kept dependency-free of
// the backend package to avoid an import cycle: backends depend on
// transfer, not the reverse) against S3, GCS, and Azure Blob Storage,
// grounded on the client construction in opentofu's S3/GCS/Azure
// remote-state backends.
type Transferer struct {
	cfg   *config.Config
	s3    *s3.Client
	gcs   *storage.Client
	azure *azblob.Client
}

// New constructs a Transferer. Any client may be nil if that provider
// is not configured; Download/Upload against an unconfigured scheme
// fails with a clear error rather than a nil-pointer panic.
func New(cfg *config.Config, s3Client *s3.Client, gcsClient *storage.Client, azureClient *azblob.Client) *Transferer {
	return &Transferer{cfg: cfg, s3: s3Client, gcs: gcsClient, azure: azureClient}
}

// Rewrite normalises and authenticates url for outbound use (§4.10):
// scheme normalisation first, then credential attachment.
func (t *Transferer) Rewrite(raw string) (string, error) {
	normalised, err := Rewrite(raw, t.cfg)
	if err != nil {
		return "", err
	}
	return ApplyAuth(normalised, t.cfg, *t.cfg.Logger())
}

// Download fetches url into a file under destDir and returns its local path.
func (t *Transferer) Download(ctx context.Context, rawURL, destDir string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("transfer: parse url: %w", err)
	}
	destPath := filepath.Join(destDir, filepath.Base(u.Path))

	var body io.ReadCloser
	switch {
	case u.Scheme == "s3" || strings.HasSuffix(u.Host, s3Suffix):
		bucket, key := bucketKeyS3(u)
		if t.s3 == nil {
			return "", fmt.Errorf("transfer: s3 client not configured")
		}
		out, err := t.s3.GetObject(ctx, &s3.GetObjectInput{Bucket: &bucket, Key: &key})
		if err != nil {
			return "", fmt.Errorf("transfer: s3 get: %w", err)
		}
		body = out.Body
	case u.Scheme == "gs" || u.Host == gcsHost:
		bucket, key := bucketKeyGCS(u)
		if t.gcs == nil {
			return "", fmt.Errorf("transfer: gcs client not configured")
		}
		r, err := t.gcs.Bucket(bucket).Object(key).NewReader(ctx)
		if err != nil {
			return "", fmt.Errorf("transfer: gcs read: %w", err)
		}
		body = r
	case u.Scheme == "az" || strings.HasSuffix(u.Host, azureSuffix):
		container, key := bucketKeyAzure(u, t.cfg)
		if t.azure == nil {
			return "", fmt.Errorf("transfer: azure client not configured")
		}
		resp, err := t.azure.DownloadStream(ctx, container, key, nil)
		if err != nil {
			return "", fmt.Errorf("transfer: azure download: %w", err)
		}
		body = resp.Body
	default:
		return "", fmt.Errorf("transfer: unsupported scheme %q", u.Scheme)
	}
	defer body.Close()

	f, err := os.Create(destPath)
	if err != nil {
		return "", fmt.Errorf("transfer: create dest: %w", err)
	}
	defer f.Close()
	if _, err := io.Copy(f, body); err != nil {
		return "", fmt.Errorf("transfer: copy: %w", err)
	}
	return destPath, nil
}

// Upload pushes localPath's content to destPrefix/<basename> and
// returns the resulting URL.
func (t *Transferer) Upload(ctx context.Context, localPath, destPrefix string) (string, error) {
	data, err := os.ReadFile(localPath)
	if err != nil {
		return "", fmt.Errorf("transfer: read local file: %w", err)
	}
	u, err := url.Parse(destPrefix)
	if err != nil {
		return "", fmt.Errorf("transfer: parse dest prefix: %w", err)
	}
	key := strings.TrimPrefix(u.Path, "/") + "/" + filepath.Base(localPath)

	switch u.Scheme {
	case "s3":
		if t.s3 == nil {
			return "", fmt.Errorf("transfer: s3 client not configured")
		}
		bucket := u.Host
		if _, err := t.s3.PutObject(ctx, &s3.PutObjectInput{Bucket: &bucket, Key: &key, Body: bytes.NewReader(data)}); err != nil {
			return "", fmt.Errorf("transfer: s3 put: %w", err)
		}
		return fmt.Sprintf("s3://%s/%s", bucket, key), nil
	case "gs":
		if t.gcs == nil {
			return "", fmt.Errorf("transfer: gcs client not configured")
		}
		bucket := u.Host
		w := t.gcs.Bucket(bucket).Object(key).NewWriter(ctx)
		if _, err := w.Write(data); err != nil {
			return "", fmt.Errorf("transfer: gcs write: %w", err)
		}
		if err := w.Close(); err != nil {
			return "", fmt.Errorf("transfer: gcs close: %w", err)
		}
		return fmt.Sprintf("gs://%s/%s", bucket, key), nil
	case "az":
		if t.azure == nil {
			return "", fmt.Errorf("transfer: azure client not configured")
		}
		container := u.Host
		if _, err := t.azure.UploadBuffer(ctx, container, key, data, &blockblob.UploadBufferOptions{}); err != nil {
			return "", fmt.Errorf("transfer: azure upload: %w", err)
		}
		return fmt.Sprintf("az://%s/%s", container, key), nil
	default:
		return "", fmt.Errorf("transfer: unsupported destination scheme %q", u.Scheme)
	}
}

func bucketKeyS3(u *url.URL) (bucket, key string) {
	if u.Scheme == "s3" {
		return u.Host, strings.TrimPrefix(u.Path, "/")
	}
	return bucketFromVirtualHostedS3(u.Host), strings.TrimPrefix(u.Path, "/")
}

func bucketKeyGCS(u *url.URL) (bucket, key string) {
	if u.Scheme == "gs" {
		return u.Host, strings.TrimPrefix(u.Path, "/")
	}
	p := strings.TrimPrefix(u.Path, "/")
	i := strings.IndexByte(p, '/')
	if i < 0 {
		return p, ""
	}
	return p[:i], p[i+1:]
}

func bucketKeyAzure(u *url.URL, cfg *config.Config) (container, key string) {
	if u.Scheme == "az" && !strings.Contains(u.Host, ".") {
		return u.Host, strings.TrimPrefix(u.Path, "/")
	}
	p := strings.TrimPrefix(u.Path, "/")
	i := strings.IndexByte(p, '/')
	if i < 0 {
		return cfg.AzureRootContainerName, p
	}
	return p[:i], p[i+1:]
}
