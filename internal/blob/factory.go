package blob

import (
	"context"
	"fmt"
)

// Settings selects and configures a document store driver. Field values are
// typically sourced from environment configuration by the caller.
type Settings struct {
	Driver         string
	FSRoot         string
	S3Bucket       string
	S3Region       string
	S3Endpoint     string
	S3AccessKeyID  string
	S3SecretKey    string
	S3SessionToken string
	S3UsePathStyle bool
}

// Open constructs a Store from Settings. An empty driver defaults to the
// filesystem store.
func Open(ctx context.Context, settings Settings) (Store, error) {
	driver := settings.Driver
	if driver == "" {
		driver = string(DriverFilesystem)
	}
	switch Driver(driver) {
	case DriverFilesystem:
		return NewFilesystem(settings.FSRoot)
	case DriverS3:
		return NewS3(ctx, S3Config{
			Bucket:          settings.S3Bucket,
			Region:          settings.S3Region,
			Endpoint:        settings.S3Endpoint,
			AccessKeyID:     settings.S3AccessKeyID,
			SecretAccessKey: settings.S3SecretKey,
			SessionToken:    settings.S3SessionToken,
			PathStyle:       settings.S3UsePathStyle,
		})
	case DriverMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown blob driver %s", driver)
	}
}
