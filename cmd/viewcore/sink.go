package main

import (
	"context"
	"os"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/vango-dev/viewcore/internal/config"
	"github.com/vango-dev/viewcore/internal/errors"
	"github.com/vango-dev/viewcore/pkg/journal"
)

// openSink opens the journal sink for one session. An empty session opens
// the configured location itself.
func openSink(jc config.JournalConfig, session string) (journal.Sink, error) {
	switch jc.Sink {
	case config.SinkS3:
		prefix := jc.Prefix
		if session != "" {
			prefix += session + "/"
		}
		return journal.NewS3Sink(newS3Client(jc), jc.Bucket, prefix), nil
	default:
		dir := jc.Dir
		if session != "" {
			dir = filepath.Join(dir, session)
		}
		sink, err := journal.NewDirSink(dir)
		if err != nil {
			return nil, errors.New("VC300").Wrap(err)
		}
		return sink, nil
	}
}

// newS3Client builds a client from the journal settings and the standard
// AWS_* environment credentials.
func newS3Client(jc config.JournalConfig) *s3.Client {
	region := jc.Region
	if region == "" {
		region = os.Getenv("AWS_REGION")
	}
	opts := s3.Options{
		Region: region,
		Credentials: aws.NewCredentialsCache(aws.CredentialsProviderFunc(func(ctx context.Context) (aws.Credentials, error) {
			return aws.Credentials{
				AccessKeyID:     os.Getenv("AWS_ACCESS_KEY_ID"),
				SecretAccessKey: os.Getenv("AWS_SECRET_ACCESS_KEY"),
				SessionToken:    os.Getenv("AWS_SESSION_TOKEN"),
				Source:          "environment",
			}, nil
		})),
	}
	if jc.Endpoint != "" {
		opts.BaseEndpoint = aws.String(jc.Endpoint)
		opts.UsePathStyle = true
	}
	return s3.New(opts)
}
