package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"github.com/mudichurmart/storefront/internal/aws"
)

var (
	ErrTooLarge        = errors.New("image too large")
	ErrUnsupportedType = errors.New("unsupported image type")
	ErrEmpty           = errors.New("empty image")
)

// DefaultMaxBytes caps product image uploads.
const DefaultMaxBytes = 5 << 20

var extensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
	"image/gif":  ".gif",
}

// ProgressFunc receives upload progress as a percentage in [0, 100]. Calls
// are monotonic and 100 is reported once the object is stored.
type ProgressFunc func(pct int)

// Image is a product image to upload.
type Image struct {
	ProductID   string
	ContentType string
	Body        io.Reader
}

// Uploader stores product images in S3 and returns their public URL.
type Uploader struct {
	client   aws.S3API
	bucket   string
	baseURL  string
	maxBytes int64
	newKey   func(productID, ext string) string
}

// NewUploader returns an Uploader for bucket. baseURL is the public prefix
// objects are served from (a CDN or website endpoint); when empty the S3
// virtual-hosted URL is used.
func NewUploader(client aws.S3API, bucket, baseURL string) *Uploader {
	return &Uploader{
		client:   client,
		bucket:   bucket,
		baseURL:  strings.TrimRight(baseURL, "/"),
		maxBytes: DefaultMaxBytes,
		newKey: func(productID, ext string) string {
			return path.Join("products", productID, uuid.NewString()+ext)
		},
	}
}

// Upload stores img and returns its public URL.
func (u *Uploader) Upload(ctx context.Context, img Image, progress ProgressFunc) (string, error) {
	ext, ok := extensions[img.ContentType]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedType, img.ContentType)
	}

	data, err := io.ReadAll(io.LimitReader(img.Body, u.maxBytes+1))
	if err != nil {
		return "", fmt.Errorf("read image: %w", err)
	}
	if len(data) == 0 {
		return "", ErrEmpty
	}
	if int64(len(data)) > u.maxBytes {
		return "", ErrTooLarge
	}

	tracker := newProgressReader(data, progress)
	tracker.report(0)

	key := u.newKey(img.ProductID, ext)
	size := int64(len(data))
	_, err = u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(u.bucket),
		Key:           aws.String(key),
		Body:          tracker,
		ContentLength: &size,
		ContentType:   aws.String(img.ContentType),
		CacheControl:  aws.String("public, max-age=31536000"),
	})
	if err != nil {
		return "", fmt.Errorf("put object %s: %w", key, err)
	}
	tracker.report(100)
	return u.URL(key), nil
}

// URL returns the public URL of an object key.
func (u *Uploader) URL(key string) string {
	if u.baseURL != "" {
		return u.baseURL + "/" + key
	}
	return fmt.Sprintf("https://%s.s3.amazonaws.com/%s", u.bucket, key)
}

// progressReader reports how much of the body the client consumed. The SDK
// may seek back and read again, so reported values only grow, and reading
// alone never reports 100.
type progressReader struct {
	r        *bytes.Reader
	total    int64
	fn       ProgressFunc
	mu       sync.Mutex
	reported int
}

func newProgressReader(data []byte, fn ProgressFunc) *progressReader {
	return &progressReader{r: bytes.NewReader(data), total: int64(len(data)), fn: fn, reported: -1}
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 {
		done := p.total - int64(p.r.Len())
		pct := int(done * 100 / p.total)
		if pct > 99 {
			pct = 99
		}
		p.report(pct)
	}
	return n, err
}

func (p *progressReader) Seek(offset int64, whence int) (int64, error) {
	return p.r.Seek(offset, whence)
}

func (p *progressReader) report(pct int) {
	if p.fn == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if pct <= p.reported {
		return
	}
	p.reported = pct
	p.fn(pct)
}
