package util

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestResourceAllocationError(t *testing.T) {
	backend := errors.New("SAI_STATUS_TABLE_FULL")
	err := NewResourceAllocationError("create", "SAI_OBJECT_TYPE_NEXT_HOP_GROUP", "", backend)

	msg := err.Error()
	if !strings.Contains(msg, "create") {
		t.Errorf("Error message should contain operation: %s", msg)
	}
	if !strings.Contains(msg, "NEXT_HOP_GROUP") {
		t.Errorf("Error message should contain object: %s", msg)
	}
	if !strings.Contains(msg, "SAI_STATUS_TABLE_FULL") {
		t.Errorf("Error message should contain cause: %s", msg)
	}

	if !errors.Is(err, ErrAllocation) {
		t.Errorf("ResourceAllocationError should unwrap to ErrAllocation")
	}
	if !errors.Is(err, backend) {
		t.Errorf("ResourceAllocationError should unwrap to the backend error")
	}

	wrapped := fmt.Errorf("route Vnet_2000|100.100.1.1/32: %w", err)
	var rae *ResourceAllocationError
	if !errors.As(wrapped, &rae) {
		t.Fatal("errors.As should find ResourceAllocationError through wrapping")
	}
	if rae.Object != "SAI_OBJECT_TYPE_NEXT_HOP_GROUP" {
		t.Errorf("Object = %q", rae.Object)
	}
}

func TestResourceAllocationErrorNoCause(t *testing.T) {
	err := NewResourceAllocationError("create", "nexthop group pool", "", nil)
	if strings.HasSuffix(err.Error(), ": ") {
		t.Errorf("Error message should not end with a dangling separator: %q", err.Error())
	}
	if !errors.Is(err, ErrAllocation) {
		t.Error("should unwrap to ErrAllocation")
	}
}

func TestMalformedIntentError(t *testing.T) {
	t.Run("single reason", func(t *testing.T) {
		err := NewMalformedIntentError("Vnet_2000|100.100.1.1/32", "ep_monitor has 2 entries, nexthop has 3")
		msg := err.Error()
		if !strings.Contains(msg, "Vnet_2000|100.100.1.1/32") || !strings.Contains(msg, "ep_monitor") {
			t.Errorf("unexpected message: %s", msg)
		}
		if !errors.Is(err, ErrMalformedIntent) {
			t.Error("MalformedIntentError should unwrap to ErrMalformedIntent")
		}
	})

	t.Run("builder", func(t *testing.T) {
		v := &ValidationBuilder{}
		if err := v.BuildIntent("r"); err != nil {
			t.Errorf("BuildIntent() with no errors = %v, want nil", err)
		}
		v.AddError("bad address")
		v.AddErrorf("primary %s not in nexthop", "9.0.0.9")
		err := v.BuildIntent("Vnet_2000|10.0.0.0/24")
		var mie *MalformedIntentError
		if !errors.As(err, &mie) {
			t.Fatalf("expected *MalformedIntentError, got %T", err)
		}
		if len(mie.Reasons) != 2 {
			t.Errorf("Reasons = %v, want 2 entries", mie.Reasons)
		}
	})
}

func TestUnknownEndpointError(t *testing.T) {
	err := NewUnknownEndpointError("bfd:10.1.0.32")
	if !strings.Contains(err.Error(), "10.1.0.32") {
		t.Errorf("Error message should contain session: %s", err.Error())
	}
	if !errors.Is(err, ErrUnknownEndpoint) {
		t.Error("UnknownEndpointError should unwrap to ErrUnknownEndpoint")
	}
}

func TestInUseError(t *testing.T) {
	err := NewInUseError("VNET Vnet_2000", "100.100.1.1/32", "100.100.2.1/32")
	if !strings.Contains(err.Error(), "100.100.2.1/32") {
		t.Errorf("Error message should list users: %s", err.Error())
	}
	if !errors.Is(err, ErrInUse) {
		t.Error("InUseError should unwrap to ErrInUse")
	}
}

func TestValidationError(t *testing.T) {
	t.Run("single error", func(t *testing.T) {
		err := NewValidationError("field is required")
		msg := err.Error()
		if !strings.Contains(msg, "field is required") {
			t.Errorf("Error message should contain the error: %s", msg)
		}
		if !errors.Is(err, ErrValidationFailed) {
			t.Errorf("ValidationError should unwrap to ErrValidationFailed")
		}
	})

	t.Run("multiple errors", func(t *testing.T) {
		err := NewValidationError("field1 is required", "field2 is invalid", "field3 out of range")
		msg := err.Error()
		if !strings.Contains(msg, "field1") || !strings.Contains(msg, "field2") || !strings.Contains(msg, "field3") {
			t.Errorf("Error message should contain all errors: %s", msg)
		}
	})
}

func TestValidationBuilder(t *testing.T) {
	t.Run("no errors", func(t *testing.T) {
		v := &ValidationBuilder{}
		v.Add(true, "this should not appear")
		v.Add(true, "neither should this")

		if v.HasErrors() {
			t.Error("Should not have errors when all conditions are true")
		}
		if err := v.Build(); err != nil {
			t.Errorf("Build() should return nil when no errors: %v", err)
		}
	})

	t.Run("with errors", func(t *testing.T) {
		v := &ValidationBuilder{}
		v.Add(false, "first error")
		v.Add(true, "this passes")
		v.Add(false, "second error")
		v.AddError("unconditional error")
		v.AddErrorf("formatted error: %d", 42)

		if !v.HasErrors() {
			t.Error("Should have errors")
		}

		err := v.Build()
		if err == nil {
			t.Fatal("Build() should return error")
		}

		validationErr, ok := err.(*ValidationError)
		if !ok {
			t.Fatalf("Expected *ValidationError, got %T", err)
		}
		if len(validationErr.Errors) != 4 {
			t.Errorf("Expected 4 errors, got %d", len(validationErr.Errors))
		}
	})

	t.Run("chaining", func(t *testing.T) {
		err := (&ValidationBuilder{}).
			Add(false, "error1").
			Add(false, "error2").
			AddErrorf("error%d", 3).
			Build()

		if err == nil {
			t.Fatal("Expected error")
		}
		if !strings.Contains(err.Error(), "error1") {
			t.Errorf("Missing error1 in: %s", err.Error())
		}
	})
}

func TestSentinelErrors(t *testing.T) {
	// Test that sentinel errors are distinct
	sentinels := []error{
		ErrNotConnected,
		ErrNotFound,
		ErrInvalidConfig,
		ErrValidationFailed,
		ErrInUse,
		ErrDependencyMissing,
		ErrAllocation,
		ErrMalformedIntent,
		ErrUnknownEndpoint,
	}

	for i, err1 := range sentinels {
		for j, err2 := range sentinels {
			if i != j && errors.Is(err1, err2) {
				t.Errorf("Sentinel errors should be distinct: %v == %v", err1, err2)
			}
		}
	}
}

func TestErrorsIsWrapping(t *testing.T) {
	// Test that errors.Is works with wrapped errors
	tests := []struct {
		name     string
		err      error
		sentinel error
	}{
		{"ValidationError", NewValidationError("msg"), ErrValidationFailed},
		{"DependencyError", NewDependencyError("VNET Vnet_2000", "VXLAN_TUNNEL", "tunnel_v4"), ErrDependencyMissing},
		{"InUseError", NewInUseError("VXLAN_TUNNEL tunnel_v4", "Vnet_2000"), ErrInUse},
		{"MalformedIntentError", NewMalformedIntentError("r", "x"), ErrMalformedIntent},
		{"UnknownEndpointError", NewUnknownEndpointError("s"), ErrUnknownEndpoint},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wrapped := fmt.Errorf("outer: %w", tt.err)
			if !errors.Is(wrapped, tt.sentinel) {
				t.Errorf("%s should wrap %v", tt.name, tt.sentinel)
			}
		})
	}
}
