package transfer

import (
	"net/url"
	"strings"

	"github.com/oakflow-dev/oakflow/config"
	"github.com/rs/zerolog"
)

const (
	s3Suffix    = ".amazonaws.com"
	gcsHost     = "storage.googleapis.com"
	azureSuffix = ".blob.core.windows.net"
)

// ApplyAuth attaches a configured per-bucket/container credential to
// url's query string (§4.10): only for URLs whose host matches a known
// provider's domain suffix, only over HTTPS, and only if the URL does
// not already carry a query (never overwritten). Unrelated URLs and
// non-HTTPS URLs are returned unchanged; the latter logs a warning.
func ApplyAuth(raw string, cfg *config.Config, logger zerolog.Logger) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}

	cred, ok := lookupCredential(u, cfg)
	if !ok {
		return raw, nil
	}
	if u.Scheme != "https" {
		logger.Warn().Str("url", raw).Msg("storage credential configured but url is not https; refusing to attach")
		return raw, nil
	}
	if u.RawQuery != "" {
		return raw, nil
	}

	u.RawQuery = cred.Query
	return u.String(), nil
}

func lookupCredential(u *url.URL, cfg *config.Config) (config.StorageCredential, bool) {
	switch {
	case strings.HasSuffix(u.Host, s3Suffix):
		bucket := bucketFromVirtualHostedS3(u.Host)
		c, ok := cfg.S3Credentials[bucket]
		return c, ok
	case u.Host == gcsHost:
		bucket := firstPathSegment(u.Path)
		c, ok := cfg.GCSCredentials[bucket]
		return c, ok
	case strings.HasSuffix(u.Host, azureSuffix):
		container := firstPathSegment(u.Path)
		if container == "" {
			container = cfg.AzureRootContainerName
		}
		c, ok := cfg.AzureCredentials[container]
		return c, ok
	default:
		return config.StorageCredential{}, false
	}
}

// bucketFromVirtualHostedS3 extracts the bucket from
// "<bucket>.s3.<region>.amazonaws.com".
func bucketFromVirtualHostedS3(host string) string {
	i := strings.Index(host, ".s3.")
	if i < 0 {
		return ""
	}
	return host[:i]
}

func firstPathSegment(p string) string {
	p = strings.TrimPrefix(p, "/")
	if i := strings.IndexByte(p, '/'); i >= 0 {
		return p[:i]
	}
	return p
}
