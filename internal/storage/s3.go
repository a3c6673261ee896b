package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3ClientConfig holds configuration for the archive client
type S3ClientConfig struct {
	Endpoint        string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	Bucket          string
	UsePathStyle    bool
}

// ArchiveClient stores exported research workspaces in S3-compatible
// storage so they survive process restarts.
type ArchiveClient struct {
	client *s3.Client
	bucket string
}

// NewArchiveClient creates a new ArchiveClient with the given configuration
func NewArchiveClient(ctx context.Context, cfg S3ClientConfig) (*ArchiveClient, error) {
	// Custom resolver for S3-compatible endpoints (MinIO, RustFS)
	customResolver := aws.EndpointResolverWithOptionsFunc(
		func(service, region string, options ...interface{}) (aws.Endpoint, error) {
			if cfg.Endpoint != "" {
				return aws.Endpoint{
					URL:               cfg.Endpoint,
					HostnameImmutable: true,
				}, nil
			}
			return aws.Endpoint{}, &aws.EndpointNotFoundError{}
		},
	)

	awsCfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(cfg.Region),
		config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		),
		config.WithEndpointResolverWithOptions(customResolver),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.UsePathStyle
	})

	return &ArchiveClient{
		client: client,
		bucket: cfg.Bucket,
	}, nil
}

func workspaceKey(workspaceID string) string {
	return "workspaces/" + workspaceID + ".json"
}

// PutWorkspace uploads one exported workspace document.
func (c *ArchiveClient) PutWorkspace(ctx context.Context, workspaceID string, data []byte) error {
	_, err := c.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(c.bucket),
		Key:         aws.String(workspaceKey(workspaceID)),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("failed to archive workspace %s: %w", workspaceID, err)
	}
	return nil
}

// GetWorkspace downloads one archived workspace document.
func (c *ArchiveClient) GetWorkspace(ctx context.Context, workspaceID string) ([]byte, error) {
	output, err := c.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(workspaceKey(workspaceID)),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch workspace %s: %w", workspaceID, err)
	}
	defer output.Body.Close()

	data, err := io.ReadAll(output.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read workspace %s: %w", workspaceID, err)
	}
	return data, nil
}

// DeleteWorkspace removes one archived workspace document.
func (c *ArchiveClient) DeleteWorkspace(ctx context.Context, workspaceID string) error {
	_, err := c.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(workspaceKey(workspaceID)),
	})
	if err != nil {
		return fmt.Errorf("failed to delete workspace %s: %w", workspaceID, err)
	}
	return nil
}

// ListWorkspaces returns the ids of all archived workspaces.
func (c *ArchiveClient) ListWorkspaces(ctx context.Context) ([]string, error) {
	output, err := c.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket: aws.String(c.bucket),
		Prefix: aws.String("workspaces/"),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list workspaces: %w", err)
	}

	ids := make([]string, 0, len(output.Contents))
	for _, object := range output.Contents {
		key := aws.ToString(object.Key)
		if len(key) <= len("workspaces/")+len(".json") {
			continue
		}
		ids = append(ids, key[len("workspaces/"):len(key)-len(".json")])
	}
	return ids, nil
}

// EnsureBucket creates the bucket if it doesn't exist
func (c *ArchiveClient) EnsureBucket(ctx context.Context) error {
	_, err := c.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(c.bucket),
	})
	if err == nil {
		return nil
	}

	_, err = c.client.CreateBucket(ctx, &s3.CreateBucketInput{
		Bucket: aws.String(c.bucket),
	})
	if err != nil {
		return fmt.Errorf("failed to create bucket: %w", err)
	}
	return nil
}
