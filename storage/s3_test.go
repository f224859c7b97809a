package storage_test

import (
	"context"
	"testing"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-podauth/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPresigner(t *testing.T, at time.Time) *storage.S3Presigner {
	t.Helper()

	t.Setenv("AWS_PROFILE", "")
	t.Setenv("AWS_CONFIG_FILE", t.TempDir()+"/config")
	t.Setenv("AWS_SHARED_CREDENTIALS_FILE", t.TempDir()+"/credentials")

	p, err := storage.NewS3Presigner(context.Background(), storage.S3Config{
		Bucket:          "podcasts",
		Region:          "us-east-1",
		BaseEndpoint:    "http://127.0.0.1:9000",
		AccessKeyID:     "minioadmin",
		SecretAccessKey: "minioadmin",
		UsePathStyle:    true,
	},
		storage.WithPresignClock(func() time.Time { return at }),
		storage.WithObjectIDGenerator(func() string { return "obj-1" }),
	)
	require.NoError(t, err)
	return p
}

func TestPresignUpload(t *testing.T) {
	at := time.Date(2024, time.March, 9, 10, 0, 0, 0, time.UTC)
	p := newTestPresigner(t, at)

	target, err := p.PresignUpload(context.Background(), "user-1", "Episode 1.MP3", "audio/mpeg")
	require.NoError(t, err)

	assert.Equal(t, "users/user-1/2024/03/09/obj-1.mp3", target.Key)
	assert.Equal(t, "PUT", target.Method)
	assert.Equal(t, at.Add(storage.DefaultPresignTTL), target.ExpiresAt)
	assert.Contains(t, target.URL, "http://127.0.0.1:9000/podcasts/users/user-1/2024/03/09/obj-1.mp3")
	assert.Contains(t, target.URL, "X-Amz-Signature=")
	assert.Contains(t, target.URL, "X-Amz-Expires=900")
}

func TestPresignUploadRejectsContentTypes(t *testing.T) {
	p := newTestPresigner(t, time.Now())

	cases := []string{"", "application/pdf", "text/html", "audio/", "not a type"}
	for _, contentType := range cases {
		t.Run(contentType, func(t *testing.T) {
			_, err := p.PresignUpload(context.Background(), "user-1", "file.bin", contentType)
			require.Error(t, err)

			var richErr *goerrors.Error
			require.True(t, goerrors.As(err, &richErr))
			assert.Equal(t, storage.TextCodeUnsupportedMediaType, richErr.TextCode)
			assert.Equal(t, 422, richErr.Code)
		})
	}
}

func TestPresignUploadRequiresUser(t *testing.T) {
	p := newTestPresigner(t, time.Now())

	_, err := p.PresignUpload(context.Background(), " ", "cover.png", "image/png")
	require.Error(t, err)

	var richErr *goerrors.Error
	require.True(t, goerrors.As(err, &richErr))
	assert.Equal(t, storage.TextCodeMissingUser, richErr.TextCode)
}

func TestNewS3PresignerRequiresBucket(t *testing.T) {
	_, err := storage.NewS3Presigner(context.Background(), storage.S3Config{Region: "us-east-1"})
	require.Error(t, err)
}

func TestValidateContentType(t *testing.T) {
	mediaType, err := storage.ValidateContentType("image/png; charset=binary")
	require.NoError(t, err)
	assert.Equal(t, "image/png", mediaType)

	mediaType, err = storage.ValidateContentType("Video/MP4")
	require.NoError(t, err)
	assert.Equal(t, "video/mp4", mediaType)
}

func TestObjectKey(t *testing.T) {
	at := time.Date(2025, time.December, 1, 0, 0, 0, 0, time.UTC)

	assert.Equal(t, "users/u/2025/12/01/id.png", storage.ObjectKey("u", "cover.PNG", at, "id"))
	assert.Equal(t, "users/u/2025/12/01/id", storage.ObjectKey("u", "noext", at, "id"))
	assert.Equal(t, "users/u/2025/12/01/id", storage.ObjectKey("u", "evil.p/h", at, "id"))
}
