// Package uploads stores user media in an S3-compatible bucket and records
// the metadata rows that other modules reference.
package uploads

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"
	"gorm.io/gorm"

	apierrors "github.com/crewcall/crewcall/pkg/errors"
	"github.com/crewcall/crewcall/pkg/models"
)

const (
	maxUploadSize = 20 << 20 // 20 MiB
	presignExpiry = 15 * time.Minute
)

// Image variants addressable via the URL endpoint.
const (
	VariantOriginal = "original"
	VariantThumb    = "thumb"
	VariantDisplay  = "display"
)

// ObjectStore is the subset of the S3 client the service needs. Satisfied by
// *minio.Client.
type ObjectStore interface {
	PutObject(ctx context.Context, bucket, key string, r io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	PresignedGetObject(ctx context.Context, bucket, key string, expiry time.Duration, params url.Values) (*url.URL, error)
	RemoveObject(ctx context.Context, bucket, key string, opts minio.RemoveObjectOptions) error
	BucketExists(ctx context.Context, bucket string) (bool, error)
	MakeBucket(ctx context.Context, bucket string, opts minio.MakeBucketOptions) error
}

// UploadService defines the media operations used by the API layer.
type UploadService interface {
	Upload(ctx context.Context, ownerID uuid.UUID, filename, contentType string, size int64, r io.Reader) (*models.UploadResponse, error)
	URL(ctx context.Context, uploadID uuid.UUID, variant string) (string, error)
	Delete(ctx context.Context, callerID, uploadID uuid.UUID) error
}

// Service implements UploadService on top of an S3-compatible bucket.
type Service struct {
	logger *zap.Logger
	db     *gorm.DB
	store  ObjectStore
	bucket string
}

// NewMinioClient connects to the S3-compatible endpoint.
func NewMinioClient(endpoint, accessKey, secretKey string, useSSL bool) (*minio.Client, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("connect object storage: %w", err)
	}
	return client, nil
}

// NewService creates the upload service, ensuring the bucket exists.
func NewService(ctx context.Context, logger *zap.Logger, db *gorm.DB, store ObjectStore, bucket string) (*Service, error) {
	exists, err := store.BucketExists(ctx, bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket: %w", err)
	}
	if !exists {
		if err := store.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket: %w", err)
		}
		logger.Info("created media bucket", zap.String("bucket", bucket))
	}
	return &Service{logger: logger, db: db, store: store, bucket: bucket}, nil
}

// Upload stores the object and, for images, its resized variants, then
// records the metadata row. Returns a presigned URL for the original.
func (s *Service) Upload(ctx context.Context, ownerID uuid.UUID, filename, contentType string, size int64, r io.Reader) (*models.UploadResponse, error) {
	if size <= 0 {
		return nil, apierrors.Invalid("empty upload")
	}
	if size > maxUploadSize {
		return nil, apierrors.Invalid("upload exceeds %d bytes", maxUploadSize)
	}

	data, err := io.ReadAll(io.LimitReader(r, maxUploadSize+1))
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	if int64(len(data)) > maxUploadSize {
		return nil, apierrors.Invalid("upload exceeds %d bytes", maxUploadSize)
	}

	id := uuid.New()
	key := objectKey(ownerID, id, filename)
	upload := models.Upload{
		ID:          id,
		OwnerID:     ownerID,
		Key:         key,
		ContentType: contentType,
		Size:        int64(len(data)),
	}

	if _, err := s.store.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType}); err != nil {
		return nil, fmt.Errorf("store object: %w", err)
	}

	if strings.HasPrefix(contentType, "image/") {
		v, err := makeVariants(bytes.NewReader(data))
		if err != nil {
			// Not decodable as an image; keep the original only.
			s.logger.Warn("skip image variants", zap.String("upload_id", id.String()), zap.Error(err))
		} else {
			upload.ThumbKey = key + ".thumb.jpg"
			upload.DisplayKey = key + ".display.jpg"
			for _, obj := range []struct {
				key  string
				data []byte
			}{
				{upload.ThumbKey, v.thumb},
				{upload.DisplayKey, v.display},
			} {
				if _, err := s.store.PutObject(ctx, s.bucket, obj.key, bytes.NewReader(obj.data), int64(len(obj.data)),
					minio.PutObjectOptions{ContentType: "image/jpeg"}); err != nil {
					return nil, fmt.Errorf("store variant: %w", err)
				}
			}
		}
	}

	if err := s.db.WithContext(ctx).Create(&upload).Error; err != nil {
		return nil, fmt.Errorf("record upload: %w", err)
	}

	signed, err := s.presign(ctx, key)
	if err != nil {
		return nil, err
	}
	return &models.UploadResponse{Upload: upload, URL: signed}, nil
}

// URL returns a presigned GET link for the requested variant, falling back
// to the original when the variant was never generated.
func (s *Service) URL(ctx context.Context, uploadID uuid.UUID, variant string) (string, error) {
	upload, err := s.load(ctx, uploadID)
	if err != nil {
		return "", err
	}

	key := upload.Key
	switch variant {
	case VariantOriginal, "":
	case VariantThumb:
		if upload.ThumbKey != "" {
			key = upload.ThumbKey
		}
	case VariantDisplay:
		if upload.DisplayKey != "" {
			key = upload.DisplayKey
		}
	default:
		return "", apierrors.Invalid("unknown variant %q", variant)
	}
	return s.presign(ctx, key)
}

// Delete removes the object, its variants and the metadata row. Owner only.
func (s *Service) Delete(ctx context.Context, callerID, uploadID uuid.UUID) error {
	upload, err := s.load(ctx, uploadID)
	if err != nil {
		return err
	}
	if upload.OwnerID != callerID {
		return apierrors.Forbidden("not the owner of this upload")
	}

	for _, key := range []string{upload.Key, upload.ThumbKey, upload.DisplayKey} {
		if key == "" {
			continue
		}
		if err := s.store.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}); err != nil {
			s.logger.Warn("remove object", zap.String("key", key), zap.Error(err))
		}
	}
	if err := s.db.WithContext(ctx).Delete(&models.Upload{}, "id = ?", uploadID).Error; err != nil {
		return fmt.Errorf("delete upload row: %w", err)
	}
	return nil
}

func (s *Service) load(ctx context.Context, uploadID uuid.UUID) (*models.Upload, error) {
	var upload models.Upload
	err := s.db.WithContext(ctx).Where("id = ?", uploadID).First(&upload).Error
	if err == gorm.ErrRecordNotFound {
		return nil, apierrors.NotFound("upload not found")
	}
	if err != nil {
		return nil, fmt.Errorf("load upload: %w", err)
	}
	return &upload, nil
}

func (s *Service) presign(ctx context.Context, key string) (string, error) {
	u, err := s.store.PresignedGetObject(ctx, s.bucket, key, presignExpiry, nil)
	if err != nil {
		return "", fmt.Errorf("presign object: %w", err)
	}
	return u.String(), nil
}

// objectKey shards objects by owner and strips anything dangerous from the
// client-supplied filename.
func objectKey(ownerID, uploadID uuid.UUID, filename string) string {
	base := path.Base(strings.ReplaceAll(filename, "\\", "/"))
	base = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '.' || r == '-' || r == '_':
			return r
		default:
			return '-'
		}
	}, base)
	if base == "" || base == "." {
		base = "file"
	}
	return fmt.Sprintf("%s/%s/%s", ownerID, uploadID, base)
}
