// Package storage provides an abstraction layer for object storage services.
//
// It wraps the MinIO Go client behind a small interface covering the operations the
// catalog source needs: checking bucket access, listing exports, downloading them
// and uploading sync reports. Both AWS S3 and self-hosted MinIO are supported.
//
// The Client interface keeps storage interactions mockable in unit tests
// (see core/storage/mocks).
//
// # Usage
//
//	client, err := storage.NewClient(config)
//	if err := storage.EnsureBucket(ctx, client, config.Bucket); err != nil {
//		return err
//	}
//	objects := client.ListObjects(ctx, config.Bucket, minio.ListObjectsOptions{Prefix: config.ExportPrefix()})
package storage
