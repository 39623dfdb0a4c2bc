package errors

import (
	stderrors "errors"
	"testing"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestErrorIsMatchesByCode(t *testing.T) {
	err := New(CodeGenerationBusy, "lock already held")
	if !stderrors.Is(err, New(CodeGenerationBusy, "different message")) {
		t.Fatal("expected errors with the same code to match")
	}
	if stderrors.Is(err, New(CodePhaseViolation, "lock already held")) {
		t.Fatal("expected errors with different codes not to match")
	}
}

func TestWrapPreservesCause(t *testing.T) {
	cause := stderrors.New("connection refused")
	err := Wrap(CodeStoreUnavailable, "session store unreachable", cause)
	if !stderrors.Is(err, cause) {
		t.Fatal("expected wrapped cause to be reachable via errors.Is")
	}
}

func TestGRPCCodeMapping(t *testing.T) {
	tests := []struct {
		code Code
		want codes.Code
	}{
		{CodeRoomNotFound, codes.NotFound},
		{CodeRoomInvalidState, codes.FailedPrecondition},
		{CodePhaseViolation, codes.FailedPrecondition},
		{CodeGenerationBusy, codes.Aborted},
		{CodeRoomVersionConflict, codes.Aborted},
		{CodeOracleFailure, codes.Unavailable},
		{CodeStoreUnavailable, codes.Unavailable},
		{CodeRoomEmptyGameID, codes.InvalidArgument},
		{CodeUnknown, codes.Internal},
	}
	for _, tc := range tests {
		if got := tc.code.GRPCCode(); got != tc.want {
			t.Errorf("GRPCCode(%s) = %v, want %v", tc.code, got, tc.want)
		}
	}
}

func TestToGRPCStatusCarriesErrorInfo(t *testing.T) {
	err := WithMetadata(CodeRoomNotFound, "room not found", map[string]string{"room_id": "r1"})
	st, ok := status.FromError(err.ToGRPCStatus())
	if !ok {
		t.Fatal("expected a gRPC status error")
	}
	if st.Code() != codes.NotFound {
		t.Fatalf("expected NotFound, got %v", st.Code())
	}
	if len(st.Details()) == 0 {
		t.Fatal("expected attached error details")
	}
}
