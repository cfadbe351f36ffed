package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/zots0127/io/blobs"
)

// Error A server-side error with a corresponding code
type Error struct {
	HTTPStatus int
	Message    string
}

var (
	// ErrInvalidDigest - digest path parameter is not a 40-char hex SHA-1
	ErrInvalidDigest = &Error{
		HTTPStatus: http.StatusBadRequest,
		Message:    "Invalid SHA1 hash format",
	}
	// ErrMissingFile - multipart request without a file part
	ErrMissingFile = &Error{
		HTTPStatus: http.StatusBadRequest,
		Message:    "No file provided",
	}
	// ErrMissingBody - body missing from body-mandatory request
	ErrMissingBody = &Error{
		HTTPStatus: http.StatusBadRequest,
		Message:    "Body is required",
	}
	// ErrInvalidPaging - offset/limit params were malformed
	ErrInvalidPaging = &Error{
		HTTPStatus: http.StatusBadRequest,
		Message:    "Invalid offset or limit parameter",
	}
	// ErrBlobNotFound - no blob under the requested digest
	ErrBlobNotFound = &Error{
		HTTPStatus: http.StatusNotFound,
		Message:    "File not found",
	}
	// ErrBlobTooLarge - upload exceeded the configured maximum blob size
	ErrBlobTooLarge = &Error{
		HTTPStatus: http.StatusRequestEntityTooLarge,
		Message:    "File exceeds maximum size",
	}
	// ErrBlobCorrupted - stored bytes failed digest re-verification
	ErrBlobCorrupted = &Error{
		HTTPStatus: http.StatusInternalServerError,
		Message:    "Stored file failed verification",
	}
	// ErrUnauthorized - missing or wrong API key
	ErrUnauthorized = &Error{
		HTTPStatus: http.StatusUnauthorized,
		Message:    "Invalid API key",
	}
)

func (e *Error) Error() string {
	return e.Message
}

func renderError(err error, c *gin.Context) {
	switch {
	case errors.Is(err, blobs.ErrBlobNotFound):
		err = ErrBlobNotFound
	case errors.Is(err, blobs.ErrBlobTooLarge):
		err = ErrBlobTooLarge
	case errors.Is(err, blobs.ErrBlobCorrupted):
		err = ErrBlobCorrupted
	case errors.Is(err, blobs.ErrEmptyBlob):
		err = ErrMissingBody
	}

	if serverErr, ok := err.(*Error); ok {
		c.AbortWithStatusJSON(serverErr.HTTPStatus, gin.H{"error": serverErr.Message})
		return
	}

	log.WithError(err).Error("Internal error handling request")
	c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
}
