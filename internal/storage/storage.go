// Package storage provides object storage for small JSON documents, kept in
// a bucket or on the local filesystem.
package storage

import (
	"context"

	metaerrors "github.com/arkilian/catalogmeta/internal/errors"
)

// Common errors for storage operations. Match with errors.Is.
var (
	ErrObjectNotFound     = metaerrors.New(metaerrors.ErrCategoryStorage, metaerrors.CodeObjectNotFound, "object not found")
	ErrPreconditionFailed = metaerrors.New(metaerrors.ErrCategoryStorage, metaerrors.CodePreconditionFailed, "precondition failed")
	ErrUploadFailed       = metaerrors.New(metaerrors.ErrCategoryStorage, metaerrors.CodeUploadFailed, "upload failed")
	ErrDownloadFailed     = metaerrors.New(metaerrors.ErrCategoryStorage, metaerrors.CodeDownloadFailed, "download failed")
)

// ObjectStorage stores documents addressed by slash-separated paths. Every
// document carries an ETag that changes whenever its content does.
type ObjectStorage interface {
	// Put writes data to objectPath unconditionally and returns the new ETag.
	Put(ctx context.Context, objectPath string, data []byte) (string, error)

	// ConditionalPut writes data only if the stored ETag equals etag. An
	// empty etag means the document must not exist yet. A lost race is
	// reported with ErrPreconditionFailed.
	ConditionalPut(ctx context.Context, objectPath string, data []byte, etag string) (string, error)

	// Get returns the document and its ETag. A missing document is reported
	// with ErrObjectNotFound.
	Get(ctx context.Context, objectPath string) ([]byte, string, error)

	// List returns the sorted paths of all documents under prefix.
	List(ctx context.Context, prefix string) ([]string, error)
}

func uploadFailed(objectPath string, err error) error {
	return metaerrors.NewStorageError(metaerrors.CodeUploadFailed, "upload failed", err).WithProperty(objectPath)
}

func downloadFailed(objectPath string, err error) error {
	return metaerrors.NewStorageError(metaerrors.CodeDownloadFailed, "download failed", err).WithProperty(objectPath)
}
