package app

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/newthinker/dzibridge/internal/core"
)

// UploadField is the multipart field carrying the image.
const UploadField = "image"

// UploadError classifies a failure to read the multipart upload.
func UploadError(err error) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return core.WrapError(core.ErrInvalidUpload, fmt.Errorf("upload exceeds %d bytes", tooLarge.Limit))
	}
	if errors.Is(err, http.ErrMissingFile) {
		return core.WrapError(core.ErrInvalidUpload, fmt.Errorf("no %q file in form", UploadField))
	}
	return core.WrapError(core.ErrInvalidUpload, err)
}
