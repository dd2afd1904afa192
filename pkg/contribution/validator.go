package contribution

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/perundhu/platform/pkg/common/models"
)

var (
	errMissingSubmitter = errors.New("submitter required")
	errMissingImage     = errors.New("image reference required")
	errMissingOrigin    = errors.New("origin location required")
	errUnknownBoard     = errors.New("unknown board type")
	errBadCoordinates   = errors.New("invalid coordinates")
)

type ValidationError struct {
	reason error
}

func (e ValidationError) Error() string {
	return e.reason.Error()
}

func (e ValidationError) Unwrap() error {
	return e.reason
}

func IsValidationError(err error) bool {
	var ve ValidationError
	return errors.As(err, &ve)
}

type Validator struct{}

func NewValidator() *Validator {
	return &Validator{}
}

func (v *Validator) Validate(req models.SubmitContributionRequest) error {
	if strings.TrimSpace(req.SubmitterID) == "" {
		return ValidationError{reason: errMissingSubmitter}
	}

	imageRef := strings.TrimSpace(req.ImageRef)
	if imageRef == "" {
		return ValidationError{reason: errMissingImage}
	}
	if parsed, err := url.Parse(imageRef); err != nil || parsed.Scheme == "" {
		return ValidationError{reason: fmt.Errorf("image reference must be an absolute URL: %w", errMissingImage)}
	}

	if strings.TrimSpace(req.OriginLocationText) == "" {
		return ValidationError{reason: errMissingOrigin}
	}

	if _, ok := ParseBoardType(req.BoardType); !ok {
		return ValidationError{reason: fmt.Errorf("board type %q: %w", req.BoardType, errUnknownBoard)}
	}

	if (req.Latitude == nil) != (req.Longitude == nil) {
		return ValidationError{reason: fmt.Errorf("latitude and longitude must be set together: %w", errBadCoordinates)}
	}
	if req.Latitude != nil {
		if *req.Latitude < -90 || *req.Latitude > 90 || *req.Longitude < -180 || *req.Longitude > 180 {
			return ValidationError{reason: errBadCoordinates}
		}
	}

	return nil
}
