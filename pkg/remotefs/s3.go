package remotefs

import (
	"context"
	"errors"
	"net"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/pixeldrift/photosync/pkg/pool"
	"github.com/pixeldrift/photosync/pkg/util"
)

// dirMarkerName is the zero-byte object created by Mkdir so that empty
// "directories" remain listable on a store that only knows keys.
const dirMarkerName = ".keep"

// S3Options configures the S3 backend.
type S3Options struct {
	Bucket string
	Region string
	// Prefix scopes all operations under a key prefix inside the bucket.
	Prefix string
	// Endpoint overrides the AWS endpoint for S3-compatible stores
	// (MinIO, Garage, self-hosted gateways). Empty means AWS.
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	// UsePathStyle forces path-style addressing, required by most
	// self-hosted S3-compatible stores.
	UsePathStyle bool
}

// S3Client serves an S3 (or S3-compatible) bucket as the remote store.
// Directories are emulated: Mkdir writes a zero-byte marker object and List
// reports common prefixes as directories.
type S3Client struct {
	api     *s3.Client
	bucket  string
	prefix  string
	bufPool *pool.FixedBufferPool
}

// NewS3 builds the backend client. Credentials come from the options when
// set, otherwise from the default AWS credential chain.
func NewS3(ctx context.Context, opts S3Options) (*S3Client, error) {
	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(opts.Region),
	}
	if opts.AccessKeyID != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKeyID, opts.SecretAccessKey, ""),
		))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, &Error{Kind: KindConnectivity, Op: "connect", Path: "/", Err: err}
	}

	api := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
		}
		o.UsePathStyle = opts.UsePathStyle
	})

	return &S3Client{
		api:     api,
		bucket:  opts.Bucket,
		prefix:  strings.Trim(opts.Prefix, "/"),
		bufPool: pool.NewFixedBufferPool(256*1024, 8),
	}, nil
}

// key converts a remote path into a full object key under the configured
// prefix.
func (c *S3Client) key(path string) string {
	return util.JoinRemote(c.prefix, path)
}

func (c *S3Client) wrap(op, path string, err error) error {
	if err == nil {
		return nil
	}

	kind := KindTransfer
	var noKey *types.NoSuchKey
	var notFound *types.NotFound
	var noBucket *types.NoSuchBucket
	var netErr net.Error
	switch {
	case errors.As(err, &noKey), errors.As(err, &notFound):
		kind = KindNotFound
	case errors.As(err, &noBucket), errors.As(err, &netErr):
		kind = KindConnectivity
	}
	return &Error{Kind: kind, Op: op, Path: path, Err: err}
}

func (c *S3Client) Connect(ctx context.Context) error {
	_, err := c.api.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(c.bucket)})
	if err != nil {
		return &Error{Kind: KindConnectivity, Op: "connect", Path: "/", Err: err}
	}
	return nil
}

func (c *S3Client) List(ctx context.Context, path string) ([]Entry, error) {
	dirKey := c.key(path)
	listPrefix := ""
	if dirKey != "" {
		listPrefix = dirKey + "/"
	}

	var entries []Entry
	paginator := s3.NewListObjectsV2Paginator(c.api, &s3.ListObjectsV2Input{
		Bucket:    aws.String(c.bucket),
		Prefix:    aws.String(listPrefix),
		Delimiter: aws.String("/"),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, c.wrap("list", path, err)
		}

		for _, cp := range page.CommonPrefixes {
			name := strings.TrimSuffix(strings.TrimPrefix(aws.ToString(cp.Prefix), listPrefix), "/")
			if name == "" {
				continue
			}
			entries = append(entries, Entry{
				Path:  util.JoinRemote(path, name),
				Name:  name,
				IsDir: true,
			})
		}
		for _, obj := range page.Contents {
			name := strings.TrimPrefix(aws.ToString(obj.Key), listPrefix)
			// Skip the marker objects and the directory key itself.
			if name == "" || name == dirMarkerName {
				continue
			}
			entries = append(entries, Entry{
				Path: util.JoinRemote(path, name),
				Name: name,
				Size: aws.ToInt64(obj.Size),
			})
		}
	}
	return entries, nil
}

func (c *S3Client) Mkdir(ctx context.Context, path string) error {
	// Object stores have no real directories; a marker object per level
	// keeps empty directories visible to List.
	segments := strings.Split(strings.Trim(path, "/"), "/")
	current := ""
	for _, seg := range segments {
		if seg == "" {
			continue
		}
		current = util.JoinRemote(current, seg)
		_, err := c.api.PutObject(ctx, &s3.PutObjectInput{
			Bucket: aws.String(c.bucket),
			Key:    aws.String(util.JoinRemote(c.key(current), dirMarkerName)),
			Body:   strings.NewReader(""),
		})
		if err != nil {
			return c.wrap("mkdir", path, err)
		}
	}
	return nil
}

func (c *S3Client) Upload(ctx context.Context, remotePath, localPath string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return &Error{Kind: KindTransfer, Op: "upload", Path: remotePath, Err: err}
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return &Error{Kind: KindTransfer, Op: "upload", Path: remotePath, Err: err}
	}

	_, err = c.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(c.bucket),
		Key:           aws.String(c.key(remotePath)),
		Body:          f,
		ContentLength: aws.Int64(info.Size()),
	})
	return c.wrap("upload", remotePath, err)
}

func (c *S3Client) Download(ctx context.Context, remotePath, localPath string) error {
	out, err := c.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(c.key(remotePath)),
	})
	if err != nil {
		return c.wrap("download", remotePath, err)
	}
	defer out.Body.Close()

	bufPtr := c.bufPool.Get()
	defer c.bufPool.Put(bufPtr)
	if err := writeAtomic(out.Body, localPath, bufPtr); err != nil {
		return &Error{Kind: KindTransfer, Op: "download", Path: remotePath, Err: err}
	}
	return nil
}

func (c *S3Client) Delete(ctx context.Context, path string) error {
	_, err := c.api.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(c.key(path)),
	})
	return c.wrap("delete", path, err)
}

func (c *S3Client) DeleteDir(ctx context.Context, path string) error {
	dirKey := c.key(path)
	listPrefix := dirKey + "/"

	paginator := s3.NewListObjectsV2Paginator(c.api, &s3.ListObjectsV2Input{
		Bucket: aws.String(c.bucket),
		Prefix: aws.String(listPrefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return c.wrap("deletedir", path, err)
		}
		if len(page.Contents) == 0 {
			continue
		}

		objects := make([]types.ObjectIdentifier, 0, len(page.Contents))
		for _, obj := range page.Contents {
			objects = append(objects, types.ObjectIdentifier{Key: obj.Key})
		}
		_, err = c.api.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(c.bucket),
			Delete: &types.Delete{Objects: objects, Quiet: aws.Bool(true)},
		})
		if err != nil {
			return c.wrap("deletedir", path, err)
		}
	}
	return nil
}

var _ Client = (*S3Client)(nil)
