package duck

import (
	"fmt"
	"path"
	"path/filepath"
	"strings"
)

// IsS3 reports whether uri names S3-compatible storage.
func IsS3(uri string) bool {
	return strings.HasPrefix(uri, "s3://")
}

// ValidateStorageURI checks that uri is a usable file:// or s3:// root or glob. Query
// strings and embedded credentials are rejected; credentials belong in S3Config.
func ValidateStorageURI(uri string) error {
	if uri == "" {
		return fmt.Errorf("storage URI is required")
	}
	if strings.ContainsAny(uri, "?#") {
		return fmt.Errorf("storage URI must not carry a query or fragment (got: %q)", RedactedStorageURI(uri))
	}

	switch {
	case strings.HasPrefix(uri, "file://"):
		if strings.TrimPrefix(uri, "file://") == "" {
			return fmt.Errorf("storage URI file:// path cannot be empty")
		}
		return nil
	case IsS3(uri):
		bucket, _, _ := strings.Cut(strings.TrimPrefix(uri, "s3://"), "/")
		if bucket == "" {
			return fmt.Errorf("s3:// URI must include a bucket name (e.g., s3://bucket-name/path)")
		}
		if strings.Contains(bucket, "@") {
			return fmt.Errorf("s3:// URI must not embed credentials")
		}
		if len(bucket) < 3 || len(bucket) > 63 {
			return fmt.Errorf("s3 bucket name must be between 3 and 63 characters")
		}
		return nil
	}
	return fmt.Errorf("storage URI must start with file:// or s3:// (got: %q)", RedactedStorageURI(uri))
}

// JoinURI appends slash-separated elements to a storage root, keeping glob characters.
func JoinURI(root string, elem ...string) string {
	root = strings.TrimRight(root, "/")
	if len(elem) == 0 {
		return root
	}
	return root + "/" + strings.TrimLeft(path.Join(elem...), "/")
}

// EnginePath converts a storage URI into the path form DuckDB reads and writes:
// file:// URIs become absolute local paths, s3:// URIs are passed through.
func EnginePath(uri string) (string, error) {
	if err := ValidateStorageURI(uri); err != nil {
		return "", err
	}
	if p, found := strings.CutPrefix(uri, "file://"); found {
		abs, err := filepath.Abs(p)
		if err != nil {
			return "", fmt.Errorf("failed to get absolute path for %q: %w", uri, err)
		}
		return abs, nil
	}
	return uri, nil
}

// SplitS3URI returns the bucket and key prefix of an s3:// URI.
func SplitS3URI(uri string) (bucket, prefix string, err error) {
	if !IsS3(uri) {
		return "", "", fmt.Errorf("not an s3:// URI: %q", uri)
	}
	if err := ValidateStorageURI(uri); err != nil {
		return "", "", err
	}
	p := strings.TrimPrefix(uri, "s3://")
	parts := strings.SplitN(p, "/", 2)
	bucket = parts[0]
	if len(parts) == 2 {
		prefix = strings.Trim(parts[1], "/")
	}
	return bucket, prefix, nil
}

// QuoteLiteral renders s as a single-quoted SQL string literal.
func QuoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// QuoteIdent renders s as a double-quoted SQL identifier.
func QuoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// RedactedStorageURI returns uri fit for logs. Glob characters are kept as written; any
// userinfo before the bucket and any query string are masked.
func RedactedStorageURI(uri string) string {
	scheme, rest, found := strings.Cut(uri, "://")
	if !found {
		return uri
	}
	if i := strings.IndexAny(rest, "?#"); i >= 0 {
		rest = rest[:i] + "?REDACTED"
	}
	host, p, hasPath := strings.Cut(rest, "/")
	if at := strings.LastIndex(host, "@"); at >= 0 {
		host = "REDACTED@" + host[at+1:]
	}
	if hasPath {
		return scheme + "://" + host + "/" + p
	}
	return scheme + "://" + host
}
