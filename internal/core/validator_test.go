package core

import (
	"testing"

	"matchpass/internal/types"
)

type consumeBody struct {
	TargetID string `json:"target_id" validate:"required,max=128"`
	Action   string `json:"action" validate:"required,ledger_action"`
}

type checkoutBody struct {
	ProductCode string `json:"product_code" validate:"required,product_code"`
	TargetID    string `json:"target_id,omitempty" validate:"omitempty,max=128"`
}

type promoBody struct {
	Code string `json:"code" validate:"required,promo_code"`
}

func TestValidator_ValidStructs(t *testing.T) {
	v := NewValidator(testLogger())
	for _, s := range []any{
		consumeBody{TargetID: "profile_9", Action: "positive"},
		consumeBody{TargetID: "profile_9", Action: "PASS"},
		checkoutBody{ProductCode: "unlock-single-profile"},
		checkoutBody{ProductCode: "premium"},
		promoBody{Code: "newprovider90"},
	} {
		if err := v.ValidateStruct(s); err != nil {
			t.Errorf("%+v: unexpected error %v", s, err)
		}
	}
}

func TestValidator_ErrorCodes(t *testing.T) {
	v := NewValidator(testLogger())
	tests := []struct {
		name  string
		input any
		code  types.ErrorCode
		field string
	}{
		{"missing target", consumeBody{Action: "positive"}, types.ErrCodeValidationMissingField, "target_id"},
		{"bad action", consumeBody{TargetID: "p", Action: "view"}, types.ErrCodeValidationInvalidAction, "action"},
		{"long target", consumeBody{TargetID: string(make([]byte, 200)), Action: "negative"}, types.ErrCodeValidationInvalidBody, "target_id"},
		{"bad product code", checkoutBody{ProductCode: "Unlock Single"}, types.ErrCodeValidationInvalidBody, "product_code"},
		{"bad promo code", promoBody{Code: "NEW PROVIDER"}, types.ErrCodeValidationInvalidBody, "code"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := v.ValidateStruct(tc.input)
			if !types.HasCode(err, tc.code) {
				t.Fatalf("err = %v, want code %s", err, tc.code)
			}
			result := v.Check(tc.input)
			if len(result.Errors) == 0 || result.Errors[0].Field != tc.field {
				t.Errorf("errors = %+v, want field %q", result.Errors, tc.field)
			}
		})
	}
}

func TestValidator_CollectsAllErrors(t *testing.T) {
	v := NewValidator(testLogger())
	result := v.Check(consumeBody{})
	if result.IsValid() || len(result.Errors) != 2 {
		t.Fatalf("errors = %+v", result.Errors)
	}
	err := v.ValidateStruct(consumeBody{})
	var appErr *types.AppError
	if !asAppError(err, &appErr) {
		t.Fatalf("expected AppError, got %T", err)
	}
	if errs, ok := appErr.Details["validation_errors"].([]ValidationError); !ok || len(errs) != 2 {
		t.Errorf("details = %+v", appErr.Details)
	}
}

func TestValidator_NonStruct(t *testing.T) {
	v := NewValidator(testLogger())
	result := v.Check("not a struct")
	if result.IsValid() {
		t.Fatal("expected failure for non-struct input")
	}
	if result.Errors[0].Code != string(types.ErrCodeValidationInvalidBody) {
		t.Errorf("code = %q", result.Errors[0].Code)
	}
}

func asAppError(err error, target **types.AppError) bool {
	ae, ok := err.(*types.AppError)
	if ok {
		*target = ae
	}
	return ok
}
