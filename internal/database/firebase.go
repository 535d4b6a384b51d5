package database

import (
	"context"
	"fmt"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/auth"
	"firebase.google.com/go/v4/db"
	"google.golang.org/api/option"

	"github.com/readbook-app/readbook-api/internal/config"
)

// Client bundles the Realtime Database and Firebase Auth clients that the
// repositories and the identity adapter share.
type Client struct {
	DB   *db.Client
	Auth *auth.Client
}

// NewClient initializes the Firebase app and returns its database and auth
// clients. Credentials come from the configured service-account file, or from
// application default credentials when no file is set.
func NewClient(ctx context.Context, cfg *config.FirebaseConfig) (*Client, error) {
	conf := &firebase.Config{
		ProjectID:   cfg.ProjectID,
		DatabaseURL: cfg.DatabaseURL,
	}

	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	app, err := firebase.NewApp(ctx, conf, opts...)
	if err != nil {
		return nil, fmt.Errorf("initializing firebase app: %w", err)
	}

	dbClient, err := app.Database(ctx)
	if err != nil {
		return nil, fmt.Errorf("initializing realtime database client: %w", err)
	}

	authClient, err := app.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("initializing firebase auth client: %w", err)
	}

	return &Client{DB: dbClient, Auth: authClient}, nil
}
