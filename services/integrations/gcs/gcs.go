// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package gcs uploads objects to a Google Cloud Storage bucket.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// Client writes objects to one bucket.
type Client struct {
	storageClient *storage.Client
	BucketName    string
}

// NewClient creates a Client for bucketName.
//
// # Inputs
//
//   - bucketName: Target bucket. Must not be empty.
//   - credentialsFile: Service account key. Empty uses Application Default
//     Credentials.
//   - opts: Extra client options, e.g. an endpoint for tests.
//
// # Outputs
//
//   - *Client: Call Close when done.
//   - error: Non-nil when the key file is missing or the client cannot be
//     created.
func NewClient(ctx context.Context, bucketName, credentialsFile string, opts ...option.ClientOption) (*Client, error) {
	if bucketName == "" {
		return nil, errors.New("bucket name is required")
	}
	if credentialsFile != "" {
		info, err := os.Stat(credentialsFile)
		if err != nil {
			return nil, fmt.Errorf("service account key not found at path: %s: %w", credentialsFile, err)
		}
		if info.IsDir() {
			return nil, fmt.Errorf("service account key %s is a directory", credentialsFile)
		}
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	storageClient, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS storage client: %w", err)
	}
	return &Client{storageClient: storageClient, BucketName: bucketName}, nil
}

// Upload streams r into the object name. The object is only visible once
// the whole stream was written; a failed upload leaves nothing behind.
func (c *Client) Upload(ctx context.Context, name string, r io.Reader) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	writer := c.storageClient.Bucket(c.BucketName).Object(name).NewWriter(ctx)
	writer.ContentType = "application/octet-stream"
	writer.CacheControl = "no-cache, no-store, must-revalidate"

	if _, err := io.Copy(writer, r); err != nil {
		// Canceling the context aborts the upload.
		cancel()
		_ = writer.Close()
		return fmt.Errorf("failed to copy data to GCS object %s: %w", name, err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to close GCS writer for %s: %w", name, err)
	}
	return nil
}

// Close releases the storage client.
func (c *Client) Close() error {
	return c.storageClient.Close()
}
