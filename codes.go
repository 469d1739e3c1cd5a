package audiomix

import "fmt"

// ErrorCode is an engine error. Synchronous calls return it negated; async
// error notifications carry it as is.
type ErrorCode int

const (
	ErrCodeOK                  ErrorCode = 0
	ErrCodeFailed              ErrorCode = 1
	ErrCodeInvalidArgument     ErrorCode = 2
	ErrCodeNotReady            ErrorCode = 3
	ErrCodeNotSupported        ErrorCode = 4
	ErrCodeRefused             ErrorCode = 5
	ErrCodeNotInitialized      ErrorCode = 7
	ErrCodeTimedOut            ErrorCode = 10
	ErrCodeJoinChannelRejected ErrorCode = 17
	ErrCodeLeaveChannelReject  ErrorCode = 18
	ErrCodeInvalidAppID        ErrorCode = 101
	ErrCodeInvalidChannelName  ErrorCode = 102
	ErrCodeTokenExpired        ErrorCode = 109
	ErrCodeInvalidToken        ErrorCode = 110
	ErrCodeConnectionLost      ErrorCode = 112
)

var errorCodeDescriptions = map[ErrorCode]string{
	ErrCodeOK:                  "no error",
	ErrCodeFailed:              "general error",
	ErrCodeInvalidArgument:     "invalid argument",
	ErrCodeNotReady:            "engine not ready",
	ErrCodeNotSupported:        "not supported",
	ErrCodeRefused:             "request refused",
	ErrCodeNotInitialized:      "engine not initialized",
	ErrCodeTimedOut:            "timed out",
	ErrCodeJoinChannelRejected: "join channel rejected",
	ErrCodeLeaveChannelReject:  "leave channel rejected",
	ErrCodeInvalidAppID:        "invalid app id",
	ErrCodeInvalidChannelName:  "invalid channel name",
	ErrCodeTokenExpired:        "token expired",
	ErrCodeInvalidToken:        "invalid token",
	ErrCodeConnectionLost:      "connection lost",
}

func (c ErrorCode) String() string {
	if d, ok := errorCodeDescriptions[c]; ok {
		return d
	}
	return fmt.Sprintf("error %d", int(c))
}

// Result is the value a synchronous engine call returns for c.
func (c ErrorCode) Result() int { return -int(c) }

// WarningCode is an engine warning. Warnings are informational.
type WarningCode int

const (
	WarnCodeInvalidView           WarningCode = 8
	WarnCodeInitVideo             WarningCode = 16
	WarnCodePending               WarningCode = 20
	WarnCodeNoAvailableChannel    WarningCode = 103
	WarnCodeLookupChannelTimeout  WarningCode = 104
	WarnCodeLookupChannelRejected WarningCode = 105
	WarnCodeOpenChannelTimeout    WarningCode = 106
	WarnCodeOpenChannelRejected   WarningCode = 107
	WarnCodeAudioMixingOpenError  WarningCode = 701
	WarnCodeADMRuntimePlayout     WarningCode = 1014
	WarnCodeADMRuntimeRecording   WarningCode = 1016
)

var warningCodeDescriptions = map[WarningCode]string{
	WarnCodeInvalidView:           "invalid view",
	WarnCodeInitVideo:             "video initialization failed",
	WarnCodePending:               "request pending",
	WarnCodeNoAvailableChannel:    "no available channel",
	WarnCodeLookupChannelTimeout:  "channel lookup timed out",
	WarnCodeLookupChannelRejected: "channel lookup rejected",
	WarnCodeOpenChannelTimeout:    "channel open timed out",
	WarnCodeOpenChannelRejected:   "channel open rejected",
	WarnCodeAudioMixingOpenError:  "audio mixing file open failed",
	WarnCodeADMRuntimePlayout:     "playout device runtime warning",
	WarnCodeADMRuntimeRecording:   "recording device runtime warning",
}

func (c WarningCode) String() string {
	if d, ok := warningCodeDescriptions[c]; ok {
		return d
	}
	return fmt.Sprintf("warning %d", int(c))
}

// OfflineReason tells why a remote participant left.
type OfflineReason int

const (
	OfflineReasonQuit OfflineReason = iota
	OfflineReasonDropped
	OfflineReasonBecomeAudience
)

func (r OfflineReason) String() string {
	switch r {
	case OfflineReasonQuit:
		return "quit"
	case OfflineReasonDropped:
		return "dropped"
	case OfflineReasonBecomeAudience:
		return "become_audience"
	default:
		return fmt.Sprintf("offline_reason(%d)", int(r))
	}
}

// JoinError reports a join request the engine refused synchronously.
type JoinError struct {
	Code int
}

func (e *JoinError) Error() string {
	return fmt.Sprintf("joinChannel call failed: %d, please check your params", e.Code)
}
