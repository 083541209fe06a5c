// Package reportstore caches exported reports in an S3-compatible bucket
// and hands out download links for them.
//
// Objects are keyed by user and request filters:
//
//	reports/<user>/period_<start>_<end>/prosthesis_<type>/muscle_<group>/report.<format>
//
// Filter segments are present only when the filter is set.
package reportstore

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/pvmasny/yandex-arch-pro-09/internal/mart"
	"github.com/pvmasny/yandex-arch-pro-09/internal/olap"
)

// Options configures the cache.
type Options struct {
	Endpoint    string
	AccessKey   string
	SecretKey   string
	Bucket      string
	UseSSL      bool
	URLExpiry   time.Duration
	CDNEndpoint string
}

// Key returns the object name of a report export.
func Key(f olap.ReportFilter, format string) string {
	parts := []string{"reports", url.PathEscape(f.UserID)}

	if !f.StartDate.IsZero() || !f.EndDate.IsZero() {
		start, end := "begin", "end"
		if !f.StartDate.IsZero() {
			start = mart.FormatDate(f.StartDate)
		}
		if !f.EndDate.IsZero() {
			end = mart.FormatDate(f.EndDate)
		}
		parts = append(parts, fmt.Sprintf("period_%s_%s", start, end))
	}
	if f.ProsthesisType != "" {
		parts = append(parts, "prosthesis_"+url.PathEscape(f.ProsthesisType))
	}
	if f.MuscleGroup != "" {
		parts = append(parts, "muscle_"+url.PathEscape(f.MuscleGroup))
	}
	parts = append(parts, "report."+format)
	return strings.Join(parts, "/")
}

// objects is the slice of the object store API the cache needs.
type objects interface {
	exists(ctx context.Context, bucket, object string) (bool, error)
	put(ctx context.Context, bucket, object string, body []byte, contentType string) error
	presign(ctx context.Context, bucket, object string, expiry time.Duration) (string, error)
}

type minioObjects struct {
	client *minio.Client
}

func (m minioObjects) exists(ctx context.Context, bucket, object string) (bool, error) {
	_, err := m.client.StatObject(ctx, bucket, object, minio.StatObjectOptions{})
	if err == nil {
		return true, nil
	}
	if isNotFound(err) {
		return false, nil
	}
	return false, err
}

func (m minioObjects) put(ctx context.Context, bucket, object string, body []byte, contentType string) error {
	_, err := m.client.PutObject(ctx, bucket, object, bytes.NewReader(body), int64(len(body)),
		minio.PutObjectOptions{ContentType: contentType})
	return err
}

func (m minioObjects) presign(ctx context.Context, bucket, object string, expiry time.Duration) (string, error) {
	u, err := m.client.PresignedGetObject(ctx, bucket, object, expiry, nil)
	if err != nil {
		return "", err
	}
	return u.String(), nil
}

func isNotFound(err error) bool {
	resp := minio.ToErrorResponse(err)
	return resp.Code == "NoSuchKey" || resp.StatusCode == http.StatusNotFound
}

// Cache stores report exports and builds links to them.
type Cache struct {
	objects objects
	bucket  string
	expiry  time.Duration
	cdn     string
	logger  *slog.Logger
}

// Open connects to the store and creates the bucket when it is missing.
func Open(ctx context.Context, o Options) (*Cache, error) {
	client, err := minio.New(o.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(o.AccessKey, o.SecretKey, ""),
		Secure: o.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("report cache %s: %w", o.Endpoint, err)
	}

	exists, err := client.BucketExists(ctx, o.Bucket)
	if err != nil {
		return nil, fmt.Errorf("report cache bucket %s: %w", o.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, o.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket %s: %w", o.Bucket, err)
		}
		slog.Info("report cache bucket created", "bucket", o.Bucket)
	}
	return newCache(minioObjects{client: client}, o), nil
}

func newCache(objs objects, o Options) *Cache {
	expiry := o.URLExpiry
	if expiry <= 0 {
		expiry = time.Hour
	}
	return &Cache{
		objects: objs,
		bucket:  o.Bucket,
		expiry:  expiry,
		cdn:     strings.TrimRight(o.CDNEndpoint, "/"),
		logger:  slog.Default(),
	}
}

// Expiry is the lifetime of presigned links.
func (c *Cache) Expiry() time.Duration {
	return c.expiry
}

// Lookup returns a link to key when it is cached. A failed existence check
// is logged and treated as a miss.
func (c *Cache) Lookup(ctx context.Context, key string) (string, bool, error) {
	ok, err := c.objects.exists(ctx, c.bucket, key)
	if err != nil {
		c.logger.Warn("report cache lookup failed", "key", key, "error", err)
		return "", false, nil
	}
	if !ok {
		return "", false, nil
	}
	link, err := c.link(ctx, key)
	if err != nil {
		return "", false, err
	}
	return link, true, nil
}

// Save stores body under key and returns a link to it.
func (c *Cache) Save(ctx context.Context, key string, body []byte, contentType string) (string, error) {
	if err := c.objects.put(ctx, c.bucket, key, body, contentType); err != nil {
		return "", fmt.Errorf("save report %s: %w", key, err)
	}
	c.logger.Info("report cached", "key", key, "bytes", len(body))
	return c.link(ctx, key)
}

func (c *Cache) link(ctx context.Context, key string) (string, error) {
	if c.cdn != "" {
		return c.cdn + "/" + c.bucket + "/" + key, nil
	}
	link, err := c.objects.presign(ctx, c.bucket, key, c.expiry)
	if err != nil {
		return "", fmt.Errorf("presign report %s: %w", key, err)
	}
	return link, nil
}
