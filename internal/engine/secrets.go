package engine

import (
	"context"
	"fmt"

	"toltec-dpdb/internal/ddl"
)

const s3SecretName = "dpdb_s3"

// configureS3 loads httpfs and registers the S3 credentials used by s3:// globs.
func (e *Engine) configureS3(ctx context.Context, cfg S3Config) error {
	if err := e.loadExtension(ctx, "httpfs"); err != nil {
		return err
	}
	urlStyle := cfg.URLStyle
	if urlStyle == "" && cfg.Endpoint != "" {
		urlStyle = "path"
	}
	stmt, err := ddl.CreateS3Secret(s3SecretName, cfg.KeyID, cfg.Secret, cfg.Endpoint, cfg.Region, urlStyle)
	if err != nil {
		return fmt.Errorf("build DDL: %w", err)
	}
	if _, err := e.db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("create S3 secret: %w", err)
	}
	return nil
}

// DropS3Secret removes the engine's S3 credentials.
func (e *Engine) DropS3Secret(ctx context.Context) error {
	stmt, err := ddl.DropSecret(s3SecretName)
	if err != nil {
		return fmt.Errorf("build DDL: %w", err)
	}
	if _, err := e.db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("drop S3 secret: %w", err)
	}
	return nil
}
