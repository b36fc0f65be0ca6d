package provider

import (
	"context"
	"errors"
	"io"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/pageforge/docserve/internal/xerrors"
)

// maxObjectSize caps a single fetched object. Documentation pages and
// assets are small; anything bigger indicates a misconfigured bucket.
const maxObjectSize int64 = 32 * 1024 * 1024

// s3Getter is the subset of the S3 API the provider needs. Extracted
// as an interface so tests can stub it without live credentials.
type s3Getter interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Provider serves content directly from objects under an S3
// bucket/prefix. Used for bundles too large to hold extracted in
// memory.
type S3Provider struct {
	client s3Getter
	bucket string
	prefix string
}

func NewS3(client *s3.Client, bucket, prefix string) *S3Provider {
	return &S3Provider{client: client, bucket: bucket, prefix: strings.Trim(prefix, "/")}
}

func (p *S3Provider) Fetch(ctx context.Context, relPath string) ([]byte, error) {
	name := strings.TrimPrefix(relPath, "/")
	if name == "" || strings.Contains(name, "..") {
		return nil, xerrors.Wrapf(ErrNotFound, "invalid path %q", relPath)
	}
	key := name
	if p.prefix != "" {
		key = path.Join(p.prefix, name)
	}

	out, err := p.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(p.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var noKey *s3types.NoSuchKey
		if errors.As(err, &noKey) {
			return nil, xerrors.Wrapf(ErrNotFound, "s3://%s/%s", p.bucket, key)
		}
		return nil, xerrors.Wrapf(err, "get s3://%s/%s", p.bucket, key)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(io.LimitReader(out.Body, maxObjectSize+1))
	if err != nil {
		return nil, xerrors.Wrapf(err, "read s3://%s/%s", p.bucket, key)
	}
	if int64(len(data)) > maxObjectSize {
		return nil, xerrors.Newf("object s3://%s/%s exceeds %d bytes", p.bucket, key, maxObjectSize)
	}
	return data, nil
}
