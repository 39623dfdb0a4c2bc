// Package errors provides structured error handling for the game services.
package errors

import "google.golang.org/grpc/codes"

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Room errors
	CodeRoomNotFound         Code = "ROOM_NOT_FOUND"
	CodeRoomInvalidState     Code = "ROOM_INVALID_STATE"
	CodeRoomCannotJoin       Code = "ROOM_CANNOT_JOIN"
	CodeRoomAlreadyJoined    Code = "ROOM_ALREADY_JOINED"
	CodeRoomNotParticipating Code = "ROOM_NOT_PARTICIPATING"
	CodeRoomEmptyGameID      Code = "ROOM_EMPTY_GAME_ID"
	CodeRoomEmptyCreatorID   Code = "ROOM_EMPTY_CREATOR_ID"
	CodeRoomEmptyParticipant Code = "ROOM_EMPTY_PARTICIPANT_ID"
	CodeRoomInvalidCapacity  Code = "ROOM_INVALID_CAPACITY"
	CodeRoomVersionConflict  Code = "ROOM_VERSION_CONFLICT"

	// Turn coordination errors
	CodePhaseViolation Code = "PHASE_VIOLATION"
	CodeGenerationBusy Code = "GENERATION_BUSY"
	CodeInvalidPhase   Code = "INVALID_PHASE"

	// Message errors
	CodeMessageEmptyContent Code = "MESSAGE_EMPTY_CONTENT"
	CodeMessageEmptySender  Code = "MESSAGE_EMPTY_SENDER"
	CodeMessageInvalidTurn  Code = "MESSAGE_INVALID_TURN"
	CodeMessageInvalidType  Code = "MESSAGE_INVALID_TYPE"

	// Oracle errors
	CodeOracleFailure Code = "ORACLE_FAILURE"

	// Storage errors
	CodeNotFound         Code = "NOT_FOUND"
	CodeStoreUnavailable Code = "STORE_UNAVAILABLE"
)

// GRPCCode maps domain codes to gRPC status codes.
func (c Code) GRPCCode() codes.Code {
	switch c {
	// InvalidArgument - validation failures, bad input
	case CodeRoomEmptyGameID,
		CodeRoomEmptyCreatorID,
		CodeRoomEmptyParticipant,
		CodeRoomInvalidCapacity,
		CodeMessageEmptyContent,
		CodeMessageEmptySender,
		CodeMessageInvalidTurn,
		CodeMessageInvalidType,
		CodeInvalidPhase:
		return codes.InvalidArgument

	// FailedPrecondition - state doesn't allow operation
	case CodeRoomInvalidState,
		CodeRoomCannotJoin,
		CodePhaseViolation:
		return codes.FailedPrecondition

	// AlreadyExists - duplicate membership
	case CodeRoomAlreadyJoined:
		return codes.AlreadyExists

	// NotFound
	case CodeRoomNotFound,
		CodeRoomNotParticipating,
		CodeNotFound:
		return codes.NotFound

	// Aborted - concurrent modification, caller may retry
	case CodeRoomVersionConflict,
		CodeGenerationBusy:
		return codes.Aborted

	// Unavailable - external collaborator failures
	case CodeOracleFailure,
		CodeStoreUnavailable:
		return codes.Unavailable

	default:
		return codes.Internal
	}
}
