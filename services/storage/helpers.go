package storage

import (
	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"

	"github.com/asergian/beacon-sub001/config"
	"github.com/asergian/beacon-sub001/interfaces"
	"github.com/asergian/beacon-sub001/services/storage/aws_client"
)

// NewQuarantineStorage returns the private bucket for unparseable messages, or nil when quarantine is
// disabled. R2 is used when an account id is configured, S3 otherwise.
func NewQuarantineStorage(cfg *config.R2StorageConfig) (interfaces.StorageService, error) {
	if cfg == nil || !cfg.QuarantineEnable {
		return nil, nil
	}
	if cfg.AccountID != "" {
		return NewR2StorageService(cfg.AccountID, cfg.AccessKeyID, cfg.AccessKeySecret, cfg.QuarantineBucket, false)
	}
	return NewS3StorageService(cfg.AWSRegion, cfg.AccessKeyID, cfg.AccessKeySecret, cfg.QuarantineBucket, false)
}

func NewS3StorageService(awsRegion, accessKeyID, accessKeySecret, bucketName string, isPublic bool) (interfaces.StorageService, error) {
	awsCfg := &aws.Config{Region: aws.String(awsRegion)}
	if accessKeyID != "" {
		awsCfg.Credentials = credentials.NewStaticCredentials(accessKeyID, accessKeySecret, "")
	}
	s3Client, err := aws_client.NewS3Client(awsCfg)
	if err != nil {
		return nil, err
	}

	return NewStorageService(s3Client, StorageConfig{
		BucketName: bucketName,
		IsPublic:   isPublic,
	}), nil
}

func NewR2StorageService(accountID, accessKeyID, accessKeySecret, bucketName string, isPublic bool) (interfaces.StorageService, error) {
	r2Client, err := aws_client.NewR2Client(aws_client.R2Config{
		AccountID:       accountID,
		AccessKeyID:     accessKeyID,
		AccessKeySecret: accessKeySecret,
	})
	if err != nil {
		return nil, err
	}

	return NewStorageService(r2Client, StorageConfig{
		BucketName: bucketName,
		IsPublic:   isPublic,
	}), nil
}
