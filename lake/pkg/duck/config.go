package duck

import (
	"fmt"
	"strings"
)

const DefaultS3Region = "us-east-1"

// S3Config holds configuration for S3-compatible storage (AWS S3, MinIO, etc.)
type S3Config struct {
	AccessKeyID     string // S3 access key ID
	SecretAccessKey string // S3 secret access key
	Endpoint        string // S3 endpoint URL (e.g., "http://localhost:9000" for MinIO, empty for AWS)
	Region          string // S3 region (e.g., "us-east-1")
	UseSSL          bool   // Whether to use SSL/TLS (typically false for MinIO, true for AWS)
	URLStyle        string // URL style: "path" (for MinIO) or "virtual" (for AWS S3)
}

// IsMinIO reports whether the config points at a non-AWS, S3-compatible endpoint.
func (c *S3Config) IsMinIO() bool {
	return c.Endpoint != "" && !strings.Contains(c.Endpoint, "amazonaws.com")
}

// HasStaticCredentials reports whether both halves of an access key pair are set.
func (c *S3Config) HasStaticCredentials() bool {
	return c.AccessKeyID != "" && c.SecretAccessKey != ""
}

// Validate checks that the credential pair is either complete or absent. When both are
// absent the default AWS credential chain is used, which MinIO does not support.
func (c *S3Config) Validate() error {
	if c.AccessKeyID == "" && c.SecretAccessKey != "" {
		return fmt.Errorf("secret access key is set but access key id is missing")
	}
	if c.AccessKeyID != "" && c.SecretAccessKey == "" {
		return fmt.Errorf("access key id is set but secret access key is missing (for the default credential chain, leave both unset)")
	}
	if c.IsMinIO() && !c.HasStaticCredentials() {
		return fmt.Errorf("MinIO requires both access key id and secret access key to be set (endpoint: %s)", c.Endpoint)
	}
	return nil
}

// WithDefaults returns a copy with region and URL style filled in and UseSSL derived
// from the endpoint:
//   - no endpoint (AWS S3): UseSSL true
//   - explicit http:// or https:// scheme: follows the scheme
//   - bare host of a non-AWS endpoint (MinIO): UseSSL false
func (c S3Config) WithDefaults() S3Config {
	if c.Region == "" {
		c.Region = DefaultS3Region
	}
	if c.URLStyle == "" {
		c.URLStyle = "path"
	}
	switch {
	case c.Endpoint == "":
		c.UseSSL = true
	case strings.HasPrefix(c.Endpoint, "https://"):
		c.UseSSL = true
	case strings.HasPrefix(c.Endpoint, "http://"):
		c.UseSSL = false
	case c.IsMinIO():
		c.UseSSL = false
	default:
		c.UseSSL = true
	}
	return c
}

// HostEndpoint returns the endpoint without its scheme. DuckDB's S3 ENDPOINT expects
// just host:port, not a full URL.
func (c *S3Config) HostEndpoint() string {
	endpoint := strings.TrimPrefix(c.Endpoint, "http://")
	return strings.TrimPrefix(endpoint, "https://")
}

// EndpointURL returns the endpoint with a scheme, as the AWS SDK wants it.
func (c *S3Config) EndpointURL() string {
	if c.Endpoint == "" {
		return ""
	}
	if strings.HasPrefix(c.Endpoint, "http://") || strings.HasPrefix(c.Endpoint, "https://") {
		return c.Endpoint
	}
	if c.UseSSL {
		return "https://" + c.Endpoint
	}
	return "http://" + c.Endpoint
}

// secretSQL builds the engine-level secret carrying the credentials.
// Without explicit credentials the aws extension resolves them through its credential chain.
func secretSQL(cfg S3Config) string {
	var b strings.Builder
	b.WriteString("CREATE OR REPLACE SECRET songlake_s3 (TYPE s3")
	if cfg.HasStaticCredentials() {
		fmt.Fprintf(&b, ", KEY_ID %s", QuoteLiteral(cfg.AccessKeyID))
		fmt.Fprintf(&b, ", SECRET %s", QuoteLiteral(cfg.SecretAccessKey))
	} else {
		b.WriteString(", PROVIDER credential_chain")
	}
	if cfg.Endpoint != "" {
		fmt.Fprintf(&b, ", ENDPOINT %s", QuoteLiteral(cfg.HostEndpoint()))
	}
	if cfg.Region != "" {
		fmt.Fprintf(&b, ", REGION %s", QuoteLiteral(cfg.Region))
	}
	fmt.Fprintf(&b, ", URL_STYLE %s", QuoteLiteral(cfg.URLStyle))
	fmt.Fprintf(&b, ", USE_SSL %t", cfg.UseSSL)
	b.WriteString(")")
	return b.String()
}

// driverSettingsSQL builds the httpfs driver settings. These are the same values as the
// secret, set globally so code paths that bypass the secret manager see them too.
func driverSettingsSQL(cfg S3Config) []string {
	stmts := []string{
		fmt.Sprintf("SET GLOBAL s3_region = %s", QuoteLiteral(cfg.Region)),
		fmt.Sprintf("SET GLOBAL s3_url_style = %s", QuoteLiteral(cfg.URLStyle)),
		fmt.Sprintf("SET GLOBAL s3_use_ssl = %t", cfg.UseSSL),
	}
	if cfg.HasStaticCredentials() {
		stmts = append(stmts,
			fmt.Sprintf("SET GLOBAL s3_access_key_id = %s", QuoteLiteral(cfg.AccessKeyID)),
			fmt.Sprintf("SET GLOBAL s3_secret_access_key = %s", QuoteLiteral(cfg.SecretAccessKey)),
		)
	}
	if cfg.Endpoint != "" {
		stmts = append(stmts, fmt.Sprintf("SET GLOBAL s3_endpoint = %s", QuoteLiteral(cfg.HostEndpoint())))
	}
	return stmts
}
