package storage

import (
	"context"
	"fmt"

	"comfybridge/internal/adapters/storage/gdrive"
	"comfybridge/internal/adapters/storage/localfs"
	"comfybridge/internal/adapters/storage/s3"
	"comfybridge/internal/config"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	drive "google.golang.org/api/drive/v3"
	"google.golang.org/api/option"
)

// NewProvider builds the durable store selected by STORAGE_PROVIDER.
func NewProvider(ctx context.Context, cfg *config.Config) (Provider, error) {
	switch cfg.StorageProvider {
	case "", "localfs":
		return localfs.New(cfg.VolumeRoot), nil

	case "gdrive":
		return newGDriveProvider(ctx, cfg)

	case "s3":
		store, err := s3.New(s3.Config{
			Endpoint:  cfg.S3Endpoint,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			Bucket:    cfg.S3Bucket,
			Region:    cfg.S3Region,
			UseSSL:    cfg.S3UseSSL,
		})
		if err != nil {
			return nil, err
		}
		if err := store.EnsureBucket(ctx); err != nil {
			return nil, fmt.Errorf("ensure bucket %s: %w", cfg.S3Bucket, err)
		}
		return store, nil

	default:
		return nil, fmt.Errorf("unknown storage provider: %s", cfg.StorageProvider)
	}
}

// OAuthConfig is the Drive OAuth client shared by the worker and the
// gdrive-auth helper.
func OAuthConfig(clientID, clientSecret, redirectURL string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Endpoint:     google.Endpoint,
		Scopes:       []string{drive.DriveFileScope},
		RedirectURL:  redirectURL,
	}
}

func newGDriveProvider(ctx context.Context, cfg *config.Config) (Provider, error) {
	conf := OAuthConfig(cfg.GDriveClientID, cfg.GDriveClientSecret, "")
	tok := &oauth2.Token{RefreshToken: cfg.GDriveRefreshToken}

	srv, err := drive.NewService(ctx, option.WithHTTPClient(conf.Client(ctx, tok)))
	if err != nil {
		return nil, err
	}
	return gdrive.NewClient(srv, cfg.GDriveFolderID), nil
}
