package archive

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/dmitrijs2005/chatkeeper/internal/common"
)

var (
	loadDefaultAWSConfig = config.LoadDefaultConfig

	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) s3API {
		return s3.NewFromConfig(cfg, optFns...)
	}
)

// s3API is the slice of *s3.Client used here.
type s3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

type S3Options struct {
	Region       string
	AccessKey    string
	SecretKey    string
	BaseEndpoint string
	Bucket       string
	Folder       string
}

// S3Client stores snapshots under Bucket/Folder on an S3-compatible service.
type S3Client struct {
	api    s3API
	bucket string
	folder string
}

// NewS3Client builds a client with static credentials. BaseEndpoint points
// it at MinIO or another S3-compatible server; path-style addressing is used
// in that case.
func NewS3Client(ctx context.Context, opts S3Options) (*S3Client, error) {
	cfg, err := loadDefaultAWSConfig(ctx,
		config.WithRegion(opts.Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			opts.AccessKey,
			opts.SecretKey,
			"",
		)))
	if err != nil {
		return nil, fmt.Errorf("%w: load aws config: %w", common.ErrRemoteArchive, err)
	}

	api := newS3ClientFromConfig(cfg, func(o *s3.Options) {
		if opts.BaseEndpoint != "" {
			o.BaseEndpoint = aws.String(opts.BaseEndpoint)
			o.UsePathStyle = true
		}
	})

	return &S3Client{
		api:    api,
		bucket: opts.Bucket,
		folder: strings.Trim(opts.Folder, "/"),
	}, nil
}

func (c *S3Client) key(name string) string {
	if c.folder == "" {
		return name
	}
	return path.Join(c.folder, name)
}

func (c *S3Client) Upload(ctx context.Context, name string, data []byte) error {
	contentType := "application/json"
	if strings.HasSuffix(name, ExtJSONZstd) {
		contentType = "application/zstd"
	}

	_, err := c.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(c.bucket),
		Key:           aws.String(c.key(name)),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("%w: upload %s: %w", common.ErrRemoteArchive, name, err)
	}
	return nil
}

func (c *S3Client) List(ctx context.Context, prefix string) ([]Object, error) {
	p := s3.NewListObjectsV2Paginator(c.api, &s3.ListObjectsV2Input{
		Bucket: aws.String(c.bucket),
		Prefix: aws.String(c.key(prefix)),
	})

	var out []Object
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("%w: list %s: %w", common.ErrRemoteArchive, prefix, err)
		}
		for _, o := range page.Contents {
			name := aws.ToString(o.Key)
			if c.folder != "" {
				name = strings.TrimPrefix(name, c.folder+"/")
			}
			out = append(out, Object{
				Name:         name,
				Size:         aws.ToInt64(o.Size),
				LastModified: aws.ToTime(o.LastModified).UTC(),
			})
		}
	}
	return out, nil
}

func (c *S3Client) Delete(ctx context.Context, name string) error {
	_, err := c.api.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(c.key(name)),
	})
	if err != nil {
		return fmt.Errorf("%w: delete %s: %w", common.ErrRemoteArchive, name, err)
	}
	return nil
}
