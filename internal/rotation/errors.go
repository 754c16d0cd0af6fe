package rotation

import (
	"errors"
	"fmt"
)

// ErrCodeUnknownCrop is the code reported for *UnknownCropError.
const ErrCodeUnknownCrop = "UNKNOWN_CROP"

// UnknownCropError reports a crop name outside the recognized rotation set.
type UnknownCropError struct {
	// Crop is the name as supplied by the caller, before normalization.
	Crop string
}

func (e *UnknownCropError) Error() string {
	return fmt.Sprintf("%s: unknown crop %q", ErrCodeUnknownCrop, Normalize(e.Crop))
}

// Code returns ErrCodeUnknownCrop.
func (e *UnknownCropError) Code() string {
	return ErrCodeUnknownCrop
}

// IsUnknownCrop returns true if err is or wraps an *UnknownCropError.
func IsUnknownCrop(err error) bool {
	var ue *UnknownCropError
	return errors.As(err, &ue)
}

// ErrInvalidSnapshot is returned by Restore for a snapshot that no sequence
// of harvests could have produced.
var ErrInvalidSnapshot = errors.New("invalid rotation snapshot")
