// Package archive keeps a raw copy of every completed fetch run in object
// storage so an import can be replayed or audited later.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/kursadbilgin/fieldops/internal/pipeline"
	"go.uber.org/zap"
)

const contentTypeJSONLines = "application/x-ndjson"

// Config selects the bucket. Endpoint is set for S3-compatible stores such as MinIO.
type Config struct {
	Bucket          string
	Prefix          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
}

// ObjectPutter is the part of *s3.Client the archiver uses.
type ObjectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

type S3Archiver struct {
	client ObjectPutter
	bucket string
	prefix string
	logger *zap.Logger
}

// NewS3Client builds a client from cfg. Static credentials are used when
// given, otherwise the default AWS chain applies.
func NewS3Client(ctx context.Context, cfg Config) (*s3.Client, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"",
		)))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	endpoint := strings.TrimSpace(cfg.Endpoint)
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	}), nil
}

func NewS3Archiver(client ObjectPutter, bucket string, prefix string, logger *zap.Logger) (*S3Archiver, error) {
	if client == nil {
		return nil, fmt.Errorf("s3 client is required")
	}
	bucket = strings.TrimSpace(bucket)
	if bucket == "" {
		return nil, fmt.Errorf("archive bucket is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &S3Archiver{
		client: client,
		bucket: bucket,
		prefix: strings.Trim(strings.TrimSpace(prefix), "/"),
		logger: logger,
	}, nil
}

// ArchiveRun uploads the run's orders as JSON lines and returns the object key.
func (a *S3Archiver) ArchiveRun(ctx context.Context, run pipeline.Run) (string, error) {
	if strings.TrimSpace(run.ID) == "" {
		return "", fmt.Errorf("run id is required")
	}

	body, err := encodeRun(run)
	if err != nil {
		return "", err
	}

	key := a.objectKey(run)
	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(a.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(body),
		ContentLength: aws.Int64(int64(len(body))),
		ContentType:   aws.String(contentTypeJSONLines),
		Metadata: map[string]string{
			"run-id":     run.ID,
			"start-date": run.Params.StartDate,
			"end-date":   run.Params.EndDate,
			"orders":     fmt.Sprintf("%d", len(run.Orders)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload run %s: %w", run.ID, err)
	}

	a.logger.Info("run archived",
		zap.String("runId", run.ID),
		zap.String("bucket", a.bucket),
		zap.String("key", key),
		zap.Int("orders", len(run.Orders)),
	)
	return key, nil
}

// objectKey is <prefix>/runs/<start>_<end>/<runId>.jsonl.
func (a *S3Archiver) objectKey(run pipeline.Run) string {
	name := fmt.Sprintf("%s_%s", run.Params.StartDate, run.Params.EndDate)
	return path.Join(a.prefix, "runs", name, run.ID+".jsonl")
}

func encodeRun(run pipeline.Run) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for i := range run.Orders {
		if err := enc.Encode(&run.Orders[i]); err != nil {
			return nil, fmt.Errorf("failed to encode order %d of run %s: %w", i, run.ID, err)
		}
	}
	return buf.Bytes(), nil
}
