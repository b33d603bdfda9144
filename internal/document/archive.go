package document

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/MarkoPoloResearchLab/permitbot/pkg/permit"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"
)

const pdfContentType = "application/pdf"

// ObjectPutter is the subset of the S3 client used for archiving.
type ObjectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Archiver uploads rendered documents under <prefix>/<folio>/.
type S3Archiver struct {
	client ObjectPutter
	bucket string
	prefix string
	logger *zap.Logger
}

// NewS3Client loads the default AWS configuration chain.
func NewS3Client(ctx context.Context) (*s3.Client, error) {
	awsConfig, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("document: load aws config: %w", err)
	}
	return s3.NewFromConfig(awsConfig), nil
}

// NewS3Archiver wires an archiver for bucket.
func NewS3Archiver(client ObjectPutter, bucket string, prefix string, logger *zap.Logger) (*S3Archiver, error) {
	if client == nil {
		return nil, errors.New("document: s3 client is nil")
	}
	if strings.TrimSpace(bucket) == "" {
		return nil, errors.New("document: s3 bucket is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &S3Archiver{client: client, bucket: bucket, prefix: strings.Trim(prefix, "/"), logger: logger}, nil
}

// Archive uploads both documents. It stops at the first failure.
func (archiver *S3Archiver) Archive(ctx context.Context, folio permit.Folio, documents permit.Documents) error {
	for _, localPath := range []string{documents.MainPath, documents.ReceiptPath} {
		if localPath == "" {
			continue
		}
		key := archiver.objectKey(folio, filepath.Base(localPath))
		if err := archiver.upload(ctx, localPath, key); err != nil {
			return fmt.Errorf("document: archive %s: %w", key, err)
		}
		archiver.logger.Debug("document archived", zap.String("bucket", archiver.bucket), zap.String("key", key))
	}
	return nil
}

func (archiver *S3Archiver) upload(ctx context.Context, localPath string, key string) error {
	file, err := os.Open(localPath)
	if err != nil {
		return err
	}
	defer file.Close()
	_, err = archiver.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(archiver.bucket),
		Key:         aws.String(key),
		Body:        file,
		ContentType: aws.String(pdfContentType),
	})
	return err
}

func (archiver *S3Archiver) objectKey(folio permit.Folio, name string) string {
	if archiver.prefix == "" {
		return path.Join(folio.String(), name)
	}
	return path.Join(archiver.prefix, folio.String(), name)
}
