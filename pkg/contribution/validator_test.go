package contribution

import (
	"testing"

	"github.com/perundhu/platform/pkg/common/models"
)

func validRequest() models.SubmitContributionRequest {
	return models.SubmitContributionRequest{
		SubmitterID:        "user-1",
		ImageRef:           "https://img.example/board.jpg",
		OriginLocationText: "Chennai",
		BoardType:          "INTER_CITY",
	}
}

func TestValidateAcceptsCompleteRequest(t *testing.T) {
	v := NewValidator()
	if err := v.Validate(validRequest()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateRejectsMissingFields(t *testing.T) {
	v := NewValidator()

	req := validRequest()
	req.SubmitterID = " "
	if err := v.Validate(req); !IsValidationError(err) {
		t.Fatalf("expected validation error for missing submitter, got %v", err)
	}

	req = validRequest()
	req.ImageRef = ""
	if err := v.Validate(req); !IsValidationError(err) {
		t.Fatalf("expected validation error for missing image, got %v", err)
	}

	req = validRequest()
	req.ImageRef = "board.jpg"
	if err := v.Validate(req); !IsValidationError(err) {
		t.Fatalf("expected validation error for relative image ref, got %v", err)
	}

	req = validRequest()
	req.OriginLocationText = ""
	if err := v.Validate(req); !IsValidationError(err) {
		t.Fatalf("expected validation error for missing origin, got %v", err)
	}
}

func TestValidateRejectsUnknownBoardType(t *testing.T) {
	v := NewValidator()

	req := validRequest()
	req.BoardType = "HOVERCRAFT"
	if err := v.Validate(req); !IsValidationError(err) {
		t.Fatalf("expected validation error for unknown board type, got %v", err)
	}
}

func TestValidateCoordinates(t *testing.T) {
	v := NewValidator()

	lat := 13.08
	req := validRequest()
	req.Latitude = &lat
	if err := v.Validate(req); !IsValidationError(err) {
		t.Fatalf("expected validation error for lone latitude, got %v", err)
	}

	lon := 280.0
	req.Longitude = &lon
	if err := v.Validate(req); !IsValidationError(err) {
		t.Fatalf("expected validation error for out-of-range longitude, got %v", err)
	}

	goodLon := 80.27
	req.Longitude = &goodLon
	if err := v.Validate(req); err != nil {
		t.Fatalf("unexpected error for valid coordinates: %v", err)
	}
}

func TestParseBoardType(t *testing.T) {
	if _, ok := ParseBoardType("GOVERNMENT"); !ok {
		t.Fatal("expected GOVERNMENT to parse")
	}
	if _, ok := ParseBoardType("government"); ok {
		t.Fatal("board types are case sensitive wire values")
	}
}
