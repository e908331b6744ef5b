package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"path"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/m-mizutani/goerr/v2"

	"github.com/YoshitsuguKoike/storyrelay/internal/application/port/output"
	"github.com/YoshitsuguKoike/storyrelay/internal/domain/model"
	"github.com/YoshitsuguKoike/storyrelay/internal/domain/model/story"
)

const archiveContentType = "application/yaml"

// S3Config holds S3 archive configuration
type S3Config struct {
	Bucket string // S3 bucket name
	Prefix string // Optional key prefix (e.g., "storyrelay/prod")
	Region string // AWS region (optional, uses default if empty)
}

// S3ArchiveGateway stores archived story files as objects.
// Key layout: <prefix>/story-files/<storyFileID>.yaml
type S3ArchiveGateway struct {
	client S3API
	bucket string
	prefix string
	now    func() time.Time
}

// NewS3ArchiveGateway builds a client from the default AWS credential chain
func NewS3ArchiveGateway(ctx context.Context, cfg S3Config) (*S3ArchiveGateway, error) {
	if cfg.Bucket == "" {
		return nil, model.InvalidArgument("s3 archive requires a bucket")
	}

	var opts []func(*config.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to load AWS config")
	}

	return NewS3ArchiveGatewayWithClient(s3.NewFromConfig(awsCfg), cfg.Bucket, cfg.Prefix), nil
}

// NewS3ArchiveGatewayWithClient uses the given client, typically a MockS3Client in tests
func NewS3ArchiveGatewayWithClient(client S3API, bucket, prefix string) *S3ArchiveGateway {
	return &S3ArchiveGateway{
		client: client,
		bucket: bucket,
		prefix: prefix,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Archive uploads the story file document
func (g *S3ArchiveGateway) Archive(ctx context.Context, sf *story.StoryFile) (*output.ArchiveRecord, error) {
	key, err := g.key(sf.ID)
	if err != nil {
		return nil, err
	}
	archivedAt := g.now()
	data, err := encodeArchive(sf, archivedAt)
	if err != nil {
		return nil, err
	}

	_, err = g.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(g.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(archiveContentType),
		Metadata: map[string]string{
			"story-file-id": sf.ID,
			"archived-at":   archivedAt.Format(time.RFC3339),
		},
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to upload archive", goerr.V("bucket", g.bucket), goerr.V("key", key))
	}

	return &output.ArchiveRecord{
		StoryFileID: sf.ID,
		Location:    "s3://" + g.bucket + "/" + key,
		Size:        int64(len(data)),
		ArchivedAt:  archivedAt,
	}, nil
}

// Restore downloads an archived story file
func (g *S3ArchiveGateway) Restore(ctx context.Context, storyFileID string) (*story.StoryFile, error) {
	key, err := g.key(storyFileID)
	if err != nil {
		return nil, err
	}

	obj, err := g.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(g.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var noSuchKey *types.NoSuchKey
		if errors.As(err, &noSuchKey) {
			return nil, model.NotFound("archived story file", storyFileID)
		}
		return nil, goerr.Wrap(err, "failed to download archive", goerr.V("bucket", g.bucket), goerr.V("key", key))
	}
	defer obj.Body.Close()

	data, err := io.ReadAll(obj.Body)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read archive body", goerr.V("key", key))
	}
	return decodeArchive(data, storyFileID)
}

// List pages through every archived object under the prefix
func (g *S3ArchiveGateway) List(ctx context.Context) ([]string, error) {
	prefix := g.dir() + "/"
	var (
		ids   []string
		token *string
	)
	for {
		out, err := g.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(g.bucket),
			Prefix:            aws.String(prefix),
			ContinuationToken: token,
		})
		if err != nil {
			return nil, goerr.Wrap(err, "failed to list archives", goerr.V("bucket", g.bucket), goerr.V("prefix", prefix))
		}
		for _, obj := range out.Contents {
			if id, ok := archiveID(aws.ToString(obj.Key)); ok {
				ids = append(ids, id)
			}
		}
		if !aws.ToBool(out.IsTruncated) || out.NextContinuationToken == nil {
			break
		}
		token = out.NextContinuationToken
	}

	sort.Strings(ids)
	return ids, nil
}

func (g *S3ArchiveGateway) dir() string {
	if g.prefix == "" {
		return "story-files"
	}
	return path.Join(g.prefix, "story-files")
}

func (g *S3ArchiveGateway) key(id string) (string, error) {
	name, err := archiveName(id)
	if err != nil {
		return "", err
	}
	return path.Join(g.dir(), name), nil
}

var _ output.ArchiveGateway = (*S3ArchiveGateway)(nil)
