// Package minio provides a blobstore.Store backed by the MinIO client.
//
// MinIO's client talks to MinIO and other S3-compatible services such as
// Ceph, SeaweedFS and Garage without any AWS dependency.
//
// # Basic Usage
//
//	store, err := minio.Connect(ctx, minio.Config{
//	    Endpoint:  "localhost:9000",
//	    AccessKey: "minioadmin",
//	    SecretKey: "minioadmin",
//	    Bucket:    "near",
//	    Prefix:    "vectors/",
//	})
//
// NewStore wraps an already configured *minio.Client.
package minio
