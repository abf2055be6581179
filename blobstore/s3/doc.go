// Package s3 provides an Amazon S3 implementation of blobstore.Store.
//
// # Usage
//
//	store, err := s3.New(ctx, "my-bucket",
//	    s3.WithPrefix("near/"),
//	    s3.WithRegion("us-east-1"),
//	)
//
//	backend := blob.New(store)
//
// Writes go through the s3 manager uploader, so large blobs are split into
// multipart uploads. Listing follows continuation tokens.
package s3
