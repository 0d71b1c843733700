// Package transfer implements the downloader/transferer interface
// named in §1 as an external collaborator, plus the URL rewriting and
// storage authentication of §4.10 for S3, Google Cloud Storage, and
// Azure Blob Storage. Grounded on the object-store client construction
// in opentofu's S3/GCS/Azure remote-state backends
// (internal/backend/remote-state/{s3,gcs,azure}), adapted from state
// file get/put to arbitrary task-input/output transfer.
package transfer

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/oakflow-dev/oakflow/config"
)

// Rewrite normalises s3://, gs://, and az:// URLs to their HTTPS
// equivalents, preserving path, query, and fragment (§4.10). URLs with
// an unrecognised scheme pass through unchanged.
func Rewrite(raw string, cfg *config.Config) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("transfer: parse url: %w", err)
	}

	switch u.Scheme {
	case "s3":
		region := cfg.S3Region
		if region == "" {
			region = "us-east-1"
		}
		bucket, key := u.Host, strings.TrimPrefix(u.Path, "/")
		u.Scheme = "https"
		u.Host = fmt.Sprintf("%s.s3.%s.amazonaws.com", bucket, region)
		u.Path = "/" + key
	case "gs":
		bucket, key := u.Host, strings.TrimPrefix(u.Path, "/")
		u.Scheme = "https"
		u.Host = "storage.googleapis.com"
		u.Path = "/" + bucket + "/" + key
	case "az":
		// az://<account>.blob.core.windows.net/<container>/<key> or
		// az://<container>/<key> against a configured default account.
		u.Scheme = "https"
		if !strings.Contains(u.Host, ".") {
			container := u.Host
			u.Host = cfg.AzureDefaultAccount + ".blob.core.windows.net"
			u.Path = "/" + container + u.Path
		}
	default:
		return raw, nil
	}
	return u.String(), nil
}
