package cloud

import (
	"errors"
	"fmt"
	"io"
	"testing"
)

func TestVendError_IsByKind(t *testing.T) {
	err := NewConfigurationMissingError("azure.Vend", errors.New("no ADLS configuration"))

	if !errors.Is(err, ErrConfigurationMissing) {
		t.Error("errors.Is should match on kind")
	}
	if errors.Is(err, ErrProviderError) {
		t.Error("errors.Is must not match a different kind")
	}
	if !errors.Is(err, &VendError{Op: "azure.Vend", Kind: KindConfigurationMissing}) {
		t.Error("errors.Is should match kind and op")
	}
	if errors.Is(err, &VendError{Op: "gcs.Vend", Kind: KindConfigurationMissing}) {
		t.Error("errors.Is must not match a different op")
	}

	wrapped := fmt.Errorf("vend failed: %w", err)
	if KindOf(wrapped) != KindConfigurationMissing {
		t.Errorf("KindOf(wrapped) = %q", KindOf(wrapped))
	}
	if KindOf(io.EOF) != "" {
		t.Error("KindOf on a plain error should be empty")
	}
}

func TestVendError_Unwrap(t *testing.T) {
	err := NewProviderError("s3.Vend", io.ErrUnexpectedEOF)
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Error("errors.Is should reach the wrapped cause")
	}
	var ve *VendError
	if !errors.As(fmt.Errorf("outer: %w", err), &ve) || ve.Op != "s3.Vend" {
		t.Errorf("errors.As failed, got %+v", ve)
	}
}

func TestVendError_ErrorCode(t *testing.T) {
	tests := []struct {
		kind Kind
		want string
	}{
		{KindPreconditionFailed, "FAILED_PRECONDITION"},
		{KindUnsupportedScheme, "INVALID_ARGUMENT"},
		{KindInvalidArgument, "INVALID_ARGUMENT"},
		{KindNotFound, "NOT_FOUND"},
		{KindProviderError, "INTERNAL"},
		{KindConfigurationMissing, "INTERNAL"},
	}
	for _, tt := range tests {
		e := &VendError{Kind: tt.kind}
		if got := e.ErrorCode(); got != tt.want {
			t.Errorf("ErrorCode(%s) = %s, want %s", tt.kind, got, tt.want)
		}
	}
}

func TestVendError_Message(t *testing.T) {
	e := NewPreconditionFailedError("services.VendCredentialForTable", errors.New("Table storage location not found."))
	if e.Message() != "Table storage location not found." {
		t.Errorf("Message() = %q", e.Message())
	}
	if e.Error() != "credvend: services.VendCredentialForTable (precondition-failed): Table storage location not found." {
		t.Errorf("Error() = %q", e.Error())
	}
	bare := &VendError{Op: "x", Kind: KindNotFound}
	if bare.Message() != "not-found" || bare.Error() != "credvend: x: not-found" {
		t.Errorf("bare error formatting: %q / %q", bare.Message(), bare.Error())
	}
}

func TestFailureClass(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{errors.New("operation error STS: GetFederationToken, api error AccessDenied: not allowed"), "credential"},
		{errors.New("AADSTS7000215: Invalid client secret provided"), "credential"},
		{errors.New("dial tcp: lookup sts.amazonaws.com: no such host"), "network"},
		{errors.New("read: connection reset by peer"), "network"},
		{errors.New("malformed policy document"), "other"},
	}
	for _, tt := range tests {
		if got := FailureClass(tt.err); got != tt.want {
			t.Errorf("FailureClass(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}
