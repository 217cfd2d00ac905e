package util

import (
	"context"
	"crypto/md5"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"net/http"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"github.com/googleapis/gax-go/v2"
	"github.com/jacobsa/gcloud/gcs"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
)

const (
	MaxRetryDuration = 30 * time.Second
	RetryMultiplier  = 2.0

	MaxConnsPerHost     = 16
	MaxIdleConnsPerHost = 16

	UserAgent = "perfgraph"
)

// IsGCSUri reports whether s names a GCS object or prefix.
func IsGCSUri(s string) bool {
	return strings.HasPrefix(s, "gs://")
}

// ParseBucketAndObjectFromUri parses a GCS URI into a bucket name and object path.
// Example input: gs://bucket-name/path/to/file.txt
func ParseBucketAndObjectFromUri(uri string) (string, string, error) {
	if !IsGCSUri(uri) {
		return "", "", errors.New("invalid GCS URI, must start with 'gs://'")
	}

	parts := strings.SplitN(strings.TrimPrefix(uri, "gs://"), "/", 2)
	if len(parts) != 2 {
		return "", "", errors.New("invalid GCS URI, expected format gs://bucket-name/object-path")
	}
	if parts[0] == "" {
		return "", "", errors.New("bucket name cannot be empty")
	}

	return parts[0], parts[1], nil
}

// ParseBucketAndPrefixFromUri is ParseBucketAndObjectFromUri for a
// destination prefix: a bare gs://bucket names the bucket root.
func ParseBucketAndPrefixFromUri(uri string) (string, string, error) {
	if IsGCSUri(uri) && !strings.Contains(strings.TrimPrefix(uri, "gs://"), "/") {
		uri += "/"
	}
	bucket, prefix, err := ParseBucketAndObjectFromUri(uri)
	if err != nil {
		return "", "", err
	}
	return bucket, strings.TrimSuffix(prefix, "/"), nil
}

type userAgentRoundTripper struct {
	wrapped   http.RoundTripper
	UserAgent string
}

func (ug *userAgentRoundTripper) RoundTrip(r *http.Request) (*http.Response, error) {
	r = r.Clone(r.Context())
	r.Header.Set("User-Agent", ug.UserAgent)
	return ug.wrapped.RoundTrip(r)
}

// CreateClient returns a storage client speaking protocol ("http" or "grpc"),
// configured to retry every operation with exponential backoff.
func CreateClient(ctx context.Context, protocol string) (*storage.Client, error) {
	var (
		client *storage.Client
		err    error
	)
	switch protocol {
	case "http":
		client, err = createHttpClient(ctx)
	case "grpc":
		client, err = storage.NewGRPCClient(ctx,
			option.WithGRPCDialOption(grpc.WithUserAgent(UserAgent)))
	default:
		return nil, fmt.Errorf("unknown client protocol %q", protocol)
	}
	if err != nil {
		return nil, fmt.Errorf("while creating the %s client: %w", protocol, err)
	}

	client.SetRetry(
		storage.WithBackoff(gax.Backoff{
			Max:        MaxRetryDuration,
			Multiplier: RetryMultiplier,
		}),
		storage.WithPolicy(storage.RetryAlways),
	)
	return client, nil
}

func createHttpClient(ctx context.Context) (*storage.Client, error) {
	tokenSource, err := google.DefaultTokenSource(ctx, storage.ScopeReadWrite)
	if err != nil {
		return nil, fmt.Errorf("while generating tokenSource, %w", err)
	}

	httpClient := &http.Client{
		Transport: &userAgentRoundTripper{
			wrapped: &oauth2.Transport{
				Base: &http.Transport{
					MaxConnsPerHost:     MaxConnsPerHost,
					MaxIdleConnsPerHost: MaxIdleConnsPerHost,
				},
				Source: tokenSource,
			},
			UserAgent: UserAgent,
		},
	}

	return storage.NewClient(ctx, option.WithHTTPClient(httpClient))
}

// ReadObject downloads the object named by a gs:// URI.
func ReadObject(ctx context.Context, client *storage.Client, uri string) ([]byte, error) {
	bucketName, objectPath, err := ParseBucketAndObjectFromUri(uri)
	if err != nil {
		return nil, err
	}

	rc, err := client.Bucket(bucketName).Object(objectPath).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("while creating reader for %s: %w", uri, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("while reading %s: %w", uri, err)
	}
	return data, nil
}

// NewArtifactRequest describes an upload of data as object name, with
// checksums so the server rejects a corrupted transfer.
func NewArtifactRequest(name, contentType string, data []byte) *gcs.CreateObjectRequest {
	crc := crc32.Checksum(data, crc32.MakeTable(crc32.Castagnoli))
	sum := md5.Sum(data)
	return &gcs.CreateObjectRequest{
		Name:         name,
		ContentType:  contentType,
		CacheControl: "no-cache",
		Metadata: map[string]string{
			"generator": UserAgent,
		},
		CRC32C: &crc,
		MD5:    &sum,
	}
}

// SetAttrsInWriter copies the object attributes of req onto wc.
func SetAttrsInWriter(wc *storage.Writer, req *gcs.CreateObjectRequest) *storage.Writer {
	wc.Name = req.Name
	wc.ContentType = req.ContentType
	wc.ContentEncoding = req.ContentEncoding
	wc.CacheControl = req.CacheControl
	wc.Metadata = req.Metadata

	if req.CRC32C != nil {
		wc.CRC32C = *req.CRC32C
		wc.SendCRC32C = true
	}

	if req.MD5 != nil {
		wc.MD5 = (*req.MD5)[:]
	}

	return wc
}

// WriteObject uploads data to bucketName according to req, overwriting any
// existing object of the same name.
func WriteObject(ctx context.Context, client *storage.Client, bucketName string, req *gcs.CreateObjectRequest, data []byte) error {
	wc := client.Bucket(bucketName).Object(req.Name).NewWriter(ctx)
	SetAttrsInWriter(wc, req)

	if _, err := wc.Write(data); err != nil {
		_ = wc.Close()
		return fmt.Errorf("while writing gs://%s/%s: %w", bucketName, req.Name, err)
	}
	if err := wc.Close(); err != nil {
		return fmt.Errorf("while closing writer for gs://%s/%s: %w", bucketName, req.Name, err)
	}
	return nil
}
