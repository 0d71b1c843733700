package transfer

import (
	"testing"

	"github.com/oakflow-dev/oakflow/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRewriteS3ToVirtualHostedStyle(t *testing.T) {
	cfg := config.New()
	got, err := Rewrite("s3://my-bucket/key/path.txt", cfg)
	require.NoError(t, err)
	assert.Equal(t, "https://my-bucket.s3.us-east-1.amazonaws.com/key/path.txt", got)
}

func TestRewriteGCS(t *testing.T) {
	cfg := config.New()
	got, err := Rewrite("gs://my-bucket/key/path.txt", cfg)
	require.NoError(t, err)
	assert.Equal(t, "https://storage.googleapis.com/my-bucket/key/path.txt", got)
}

func TestRewriteAzureContainerOnly(t *testing.T) {
	cfg := config.New()
	cfg.AzureDefaultAccount = "myaccount"
	got, err := Rewrite("az://mycontainer/key/path.txt", cfg)
	require.NoError(t, err)
	assert.Equal(t, "https://myaccount.blob.core.windows.net/mycontainer/key/path.txt", got)
}

func TestRewriteUnrelatedSchemePassesThrough(t *testing.T) {
	cfg := config.New()
	got, err := Rewrite("https://example.com/file.txt", cfg)
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/file.txt", got)
}

func TestApplyAuthAttachesConfiguredCredential(t *testing.T) {
	cfg := config.New()
	cfg.S3Credentials["my-bucket"] = config.StorageCredential{Bucket: "my-bucket", Query: "X-Auth=abc"}
	got, err := ApplyAuth("https://my-bucket.s3.us-east-1.amazonaws.com/key.txt", cfg, *cfg.Logger())
	require.NoError(t, err)
	assert.Equal(t, "https://my-bucket.s3.us-east-1.amazonaws.com/key.txt?X-Auth=abc", got)
}

func TestApplyAuthDoesNotOverwriteExistingQuery(t *testing.T) {
	cfg := config.New()
	cfg.S3Credentials["my-bucket"] = config.StorageCredential{Bucket: "my-bucket", Query: "X-Auth=abc"}
	raw := "https://my-bucket.s3.us-east-1.amazonaws.com/key.txt?already=here"
	got, err := ApplyAuth(raw, cfg, *cfg.Logger())
	require.NoError(t, err)
	assert.Equal(t, raw, got)
}

func TestApplyAuthIgnoresNonHTTPS(t *testing.T) {
	cfg := config.New()
	cfg.S3Credentials["my-bucket"] = config.StorageCredential{Bucket: "my-bucket", Query: "X-Auth=abc"}
	raw := "http://my-bucket.s3.us-east-1.amazonaws.com/key.txt"
	got, err := ApplyAuth(raw, cfg, *cfg.Logger())
	require.NoError(t, err)
	assert.Equal(t, raw, got)
}

func TestApplyAuthIgnoresUnrelatedHost(t *testing.T) {
	cfg := config.New()
	got, err := ApplyAuth("https://example.com/file.txt", cfg, *cfg.Logger())
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/file.txt", got)
}
