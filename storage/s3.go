package storage

import (
	"context"
	"fmt"
	"mime"
	"net/http"
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-podauth"
	"github.com/google/uuid"
)

// DefaultPresignTTL is how long an upload URL stays valid
const DefaultPresignTTL = 15 * time.Minute

const (
	TextCodeUnsupportedMediaType = "UNSUPPORTED_MEDIA_TYPE"
	TextCodeMissingUser          = "MISSING_USER"
)

var allowedMediaPrefixes = []string{"audio/", "video/", "image/"}

var extPattern = regexp.MustCompile(`^\.[a-z0-9]{1,10}$`)

// ErrUnsupportedMediaType is returned for content types other than audio,
// video and images
var ErrUnsupportedMediaType = errors.New("content type must be audio, video or image", errors.CategoryValidation).
	WithTextCode(TextCodeUnsupportedMediaType).
	WithCode(http.StatusUnprocessableEntity)

// S3Config holds the object store settings
type S3Config struct {
	Bucket          string
	Region          string
	BaseEndpoint    string
	AccessKeyID     string
	SecretAccessKey string
	UsePathStyle    bool
	PresignTTL      time.Duration
}

// S3Presigner issues presigned PUT URLs for user uploads
type S3Presigner struct {
	client *s3.PresignClient
	bucket string
	ttl    time.Duration
	clock  func() time.Time
	newID  func() string
}

var _ podauth.UploadPresigner = (*S3Presigner)(nil)

// PresignerOption configures an S3Presigner
type PresignerOption func(*S3Presigner)

// WithPresignClock overrides the time source used for keys and expiry
func WithPresignClock(clock func() time.Time) PresignerOption {
	return func(p *S3Presigner) {
		if clock != nil {
			p.clock = clock
		}
	}
}

// WithObjectIDGenerator overrides the random part of object keys
func WithObjectIDGenerator(fn func() string) PresignerOption {
	return func(p *S3Presigner) {
		if fn != nil {
			p.newID = fn
		}
	}
}

// NewS3Presigner loads the AWS configuration for cfg. Static credentials
// are used when both keys are set, otherwise the default chain applies.
func NewS3Presigner(ctx context.Context, cfg S3Config, opts ...PresignerOption) (*S3Presigner, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("s3 bucket is required", errors.CategoryValidation)
	}

	loadOpts := []func(*config.LoadOptions) error{
		config.WithRegion(cfg.Region),
	}

	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to load aws config")
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.BaseEndpoint != "" {
			o.BaseEndpoint = aws.String(cfg.BaseEndpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})

	return NewS3PresignerWithClient(s3.NewPresignClient(client), cfg, opts...), nil
}

// NewS3PresignerWithClient builds a presigner around an existing client
func NewS3PresignerWithClient(client *s3.PresignClient, cfg S3Config, opts ...PresignerOption) *S3Presigner {
	ttl := cfg.PresignTTL
	if ttl <= 0 {
		ttl = DefaultPresignTTL
	}

	p := &S3Presigner{
		client: client,
		bucket: cfg.Bucket,
		ttl:    ttl,
		clock:  func() time.Time { return time.Now().UTC() },
		newID:  func() string { return uuid.NewString() },
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

// PresignUpload returns a PUT URL for a new object owned by userID. The
// content type is part of the signature so the client has to send the
// same Content-Type header.
func (p *S3Presigner) PresignUpload(ctx context.Context, userID, filename, contentType string) (*podauth.UploadTarget, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, errors.New("user id is required", errors.CategoryValidation).
			WithTextCode(TextCodeMissingUser).
			WithCode(http.StatusUnprocessableEntity)
	}

	mediaType, err := ValidateContentType(contentType)
	if err != nil {
		return nil, err
	}

	now := p.clock()
	key := ObjectKey(userID, filename, now, p.newID())

	req, err := p.client.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(p.bucket),
		Key:         aws.String(key),
		ContentType: aws.String(mediaType),
	}, s3.WithPresignExpires(p.ttl))
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryOperation, "failed to presign upload").
			WithMetadata(map[string]any{
				"bucket": p.bucket,
				"key":    key,
			})
	}

	return &podauth.UploadTarget{
		Key:       key,
		URL:       req.URL,
		Method:    req.Method,
		ExpiresAt: now.Add(p.ttl),
	}, nil
}

// ValidateContentType returns the media type of contentType when it is
// audio, video or an image
func ValidateContentType(contentType string) (string, error) {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return "", ErrUnsupportedMediaType
	}

	for _, prefix := range allowedMediaPrefixes {
		if strings.HasPrefix(mediaType, prefix) && len(mediaType) > len(prefix) {
			return mediaType, nil
		}
	}

	return "", ErrUnsupportedMediaType
}

// ObjectKey lays out keys as users/<id>/<yyyy>/<mm>/<dd>/<id><ext>
func ObjectKey(userID, filename string, at time.Time, id string) string {
	ext := strings.ToLower(path.Ext(filename))
	if !extPattern.MatchString(ext) {
		ext = ""
	}

	return fmt.Sprintf("users/%s/%04d/%02d/%02d/%s%s",
		userID, at.Year(), int(at.Month()), at.Day(), id, ext)
}
