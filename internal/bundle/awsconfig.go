package bundle

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"

	"github.com/pageforge/docserve/internal/xerrors"
)

func resolveAWSConfig(ctx context.Context, override *aws.Config) (aws.Config, error) {
	if override != nil {
		return *override, nil
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return aws.Config{}, xerrors.Wrap(err, "load aws config")
	}
	return cfg, nil
}
