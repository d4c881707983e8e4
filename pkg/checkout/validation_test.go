package checkout

import (
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	pkgerrors "github.com/beatvault/beatvault-backend/pkg/errors"
)

func validItem() Item {
	return Item{
		CompositionID: uuid.New(),
		Title:         "Night Drive",
		Artist:        "producer",
		LicenseID:     "basic",
		LicenseName:   "Basic",
		LicensePrice:  decimal.NewFromInt(20),
		CoverImage:    "cover.png",
		File:          "night-drive.mp3",
	}
}

func TestValidateItems_NoViolations(t *testing.T) {
	if err := ValidateItems([]Item{validItem(), validItem()}); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
}

func TestValidateItems_Empty(t *testing.T) {
	err := ValidateItems(nil)
	if !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestValidateItems_Violations(t *testing.T) {
	free := validItem()
	free.LicensePrice = decimal.Zero
	noFile := validItem()
	noFile.File = " "

	err := ValidateItems([]Item{validItem(), free, noFile})
	if err == nil {
		t.Fatal("expected error for invalid items")
	}
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation code, got %v", err)
	}
	details, ok := typed.Details().(map[string]any)
	if !ok {
		t.Fatalf("expected details map, got %T", typed.Details())
	}
	violations, ok := details["violations"].([]ItemViolation)
	if !ok || len(violations) != 2 {
		t.Fatalf("expected 2 violations, got %#v", details["violations"])
	}
	if violations[0].Index != 1 || violations[1].Index != 2 {
		t.Fatalf("unexpected violation indexes %+v", violations)
	}
}
