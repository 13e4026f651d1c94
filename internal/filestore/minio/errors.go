package minio

import (
	"context"
	"errors"
	"net/http"

	miniogo "github.com/minio/minio-go/v7"

	"github.com/Unlink/database/internal/errs"
)

// mapError translates a MinIO SDK error into a *errs.Error.
func mapError(err error, msg string) *errs.Error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return errs.Wrap(errs.ErrKindTimeout, msg, err)
	}

	var resp miniogo.ErrorResponse
	if !errors.As(err, &resp) {
		return errs.Wrap(errs.ErrKindConnectionFailed, msg, err)
	}

	switch resp.Code {
	case "NoSuchBucket", "NoSuchKey":
		return errs.Wrap(errs.ErrKindNotFound, msg, err)
	case "AccessDenied", "InvalidAccessKeyId", "SignatureDoesNotMatch":
		return errs.Wrap(errs.ErrKindPermissionDenied, msg, err)
	case "InvalidBucketName", "InvalidObjectName", "KeyTooLongError":
		return errs.Wrap(errs.ErrKindInvalidInput, msg, err)
	case "RequestTimeout", "SlowDown":
		return errs.Wrap(errs.ErrKindTimeout, msg, err)
	}

	switch resp.StatusCode {
	case http.StatusNotFound:
		return errs.Wrap(errs.ErrKindNotFound, msg, err)
	case http.StatusForbidden, http.StatusUnauthorized:
		return errs.Wrap(errs.ErrKindPermissionDenied, msg, err)
	case http.StatusBadRequest:
		return errs.Wrap(errs.ErrKindInvalidInput, msg, err)
	}

	return errs.Wrap(errs.ErrKindConnectionFailed, msg, err)
}
