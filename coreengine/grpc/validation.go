package grpc

import (
	"strings"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// =============================================================================
// REQUEST VALIDATION
// =============================================================================

// validateRequired checks if a field is non-blank.
func validateRequired(field, fieldName string) error {
	if strings.TrimSpace(field) == "" {
		return InvalidArgument(fieldName)
	}
	return nil
}

// goalFromRequest extracts the "goal" string field.
func goalFromRequest(req *structpb.Struct) (string, error) {
	if req == nil {
		return "", InvalidArgument("goal")
	}
	v, ok := req.GetFields()["goal"]
	if !ok {
		return "", InvalidArgument("goal")
	}
	s, ok := v.GetKind().(*structpb.Value_StringValue)
	if !ok {
		return "", status.Error(codes.InvalidArgument, "goal must be a string")
	}
	goal := strings.TrimSpace(s.StringValue)
	if err := validateRequired(goal, "goal"); err != nil {
		return "", err
	}
	return goal, nil
}

// =============================================================================
// ERROR BUILDERS
// =============================================================================

// InvalidArgument returns a gRPC InvalidArgument error.
// Use for malformed or missing required fields.
func InvalidArgument(fieldName string) error {
	return status.Errorf(codes.InvalidArgument, "%s is required", fieldName)
}

// ResourceExhausted returns a gRPC ResourceExhausted error for a rate
// limit window.
func ResourceExhausted(window string, limit int) error {
	return status.Errorf(codes.ResourceExhausted, "rate limit exceeded: %d requests per %s", limit, window)
}

// Internal wraps an internal error with context.
func Internal(operation string, cause error) error {
	return status.Errorf(codes.Internal, "%s failed: %v", operation, cause)
}
