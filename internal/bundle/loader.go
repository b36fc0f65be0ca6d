package bundle

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/ssm"

	"github.com/pageforge/docserve/internal/cryptoutil"
	"github.com/pageforge/docserve/internal/log"
	"github.com/pageforge/docserve/internal/provider"
	"github.com/pageforge/docserve/internal/xerrors"
)

// Release is the published pointer to the current bundle revision,
// stored as JSON in an SSM parameter by the publishing pipeline.
type Release struct {
	Descriptor Descriptor `json:"descriptor"`
	Hash       string     `json:"hash"`
	// Signature is a base64 signature over `{identifier}:{hash}`,
	// present when the pipeline signs releases.
	Signature string `json:"signature,omitempty"`
}

// SignedMessage is the byte string the release signature covers.
func (r Release) SignedMessage() []byte {
	return []byte(r.Descriptor.Identifier + ":" + r.Hash)
}

// ReleaseVerifier checks a release-pointer signature.
type ReleaseVerifier interface {
	VerifySignature(ctx context.Context, message, signature []byte) error
}

type ssmGetter interface {
	GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

type s3Getter interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

type LoaderOptions struct {
	Logger log.Logger

	// SSMParam holds the current Release JSON.
	SSMParam string

	// S3 location for archives: s3://{bucket}/{prefix}/{hash}.tar.gz
	S3Bucket string
	S3Prefix string

	// Verifier, when set, must accept the release signature before
	// the archive is downloaded.
	Verifier ReleaseVerifier

	// AWS config (uses the default chain when nil).
	AWSConfig *aws.Config
}

// Loader fetches the current release pointer and downloads, verifies,
// and extracts the bundle archive it names.
type Loader struct {
	opts   LoaderOptions
	ssm    ssmGetter
	s3     s3Getter
	logger log.Logger
}

func NewLoader(ctx context.Context, opts LoaderOptions) (*Loader, error) {
	if opts.SSMParam == "" {
		return nil, xerrors.New("SSMParam is required")
	}
	if opts.S3Bucket == "" {
		return nil, xerrors.New("S3Bucket is required")
	}
	if opts.Logger == nil {
		opts.Logger = log.Nop()
	}

	awsCfg, err := resolveAWSConfig(ctx, opts.AWSConfig)
	if err != nil {
		return nil, err
	}

	return &Loader{
		opts:   opts,
		ssm:    ssm.NewFromConfig(awsCfg),
		s3:     s3.NewFromConfig(awsCfg),
		logger: opts.Logger,
	}, nil
}

// CurrentRelease reads and validates the release pointer from SSM.
func (l *Loader) CurrentRelease(ctx context.Context) (Release, error) {
	out, err := l.ssm.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(l.opts.SSMParam),
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		return Release{}, xerrors.Wrapf(err, "get SSM parameter %s", l.opts.SSMParam)
	}
	if out.Parameter == nil || out.Parameter.Value == nil {
		return Release{}, xerrors.Newf("SSM parameter %s has no value", l.opts.SSMParam)
	}

	var rel Release
	if err := json.Unmarshal([]byte(*out.Parameter.Value), &rel); err != nil {
		return Release{}, xerrors.Wrapf(err, "decode release pointer %s", l.opts.SSMParam)
	}
	if rel.Descriptor.Identifier == "" || rel.Hash == "" {
		return Release{}, xerrors.Newf("release pointer %s missing identifier or hash", l.opts.SSMParam)
	}

	if l.opts.Verifier != nil {
		sig, err := base64.StdEncoding.DecodeString(rel.Signature)
		if err != nil {
			return Release{}, xerrors.Wrap(err, "decode release signature")
		}
		if err := l.opts.Verifier.VerifySignature(ctx, rel.SignedMessage(), sig); err != nil {
			return Release{}, xerrors.Wrap(err, "verify release signature")
		}
	}

	return rel, nil
}

// Load downloads the archive for rel, verifies its hash, and extracts
// it into an in-memory provider.
func (l *Loader) Load(ctx context.Context, rel Release) (*provider.MemProvider, error) {
	key := l.archiveKey(rel.Hash)

	l.logger.Info(ctx, "downloading bundle archive",
		"bucket", l.opts.S3Bucket,
		"key", key,
		"bundle", rel.Descriptor.Identifier,
		"expected_hash", rel.Hash,
	)

	out, err := l.s3.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(l.opts.S3Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, xerrors.Wrapf(err, "get s3://%s/%s", l.opts.S3Bucket, key)
	}
	defer out.Body.Close()

	archive, err := io.ReadAll(io.LimitReader(out.Body, maxArchiveSize+1))
	if err != nil {
		return nil, xerrors.Wrap(err, "download archive")
	}
	if int64(len(archive)) > maxArchiveSize {
		return nil, xerrors.Newf("archive exceeds max size (limit %d)", maxArchiveSize)
	}

	if actual := cryptoutil.SHA256Hex(archive); !cryptoutil.HashEqual(actual, strings.ToLower(rel.Hash)) {
		return nil, xerrors.Newf("archive checksum mismatch: expected %s, got %s", rel.Hash, actual)
	}

	p, err := Extract(archive)
	if err != nil {
		return nil, xerrors.Wrapf(err, "extract bundle %s", rel.Descriptor.Identifier)
	}

	l.logger.Info(ctx, "bundle archive extracted",
		"bundle", rel.Descriptor.Identifier,
		"files", p.Len(),
		"archive_bytes", len(archive),
	)
	return p, nil
}

func (l *Loader) archiveKey(hash string) string {
	if l.opts.S3Prefix != "" {
		return fmt.Sprintf("%s/%s.tar.gz", strings.Trim(l.opts.S3Prefix, "/"), hash)
	}
	return hash + ".tar.gz"
}
