package v1beta

import (
	"fmt"
	"strconv"
	"strings"
)

const errorDelimiter = ":"

// TheiaCloudError is a domain error surfaced to end users through the
// error field of a Session or Workspace. It is stored as "<code>:<reason>".
type TheiaCloudError struct {
	Code   int
	Reason string
}

var (
	ErrInvalidAppID              = TheiaCloudError{470, "Invalid application id."}
	ErrInvalidWorkspaceName      = TheiaCloudError{471, "Invalid workspace name."}
	ErrInvalidAppDefinitionName  = TheiaCloudError{473, "Invalid app definition name."}
	ErrInvalidSessionName        = TheiaCloudError{474, "Invalid session name."}
	ErrAppDefinitionNameMismatch = TheiaCloudError{475, "Mismatch between app definition names."}
	ErrMissingWorkspaceName      = TheiaCloudError{480, "Missing workspace name."}
	ErrMissingSessionName        = TheiaCloudError{481, "Missing session name."}

	ErrWorkspaceLaunchTimeout   = TheiaCloudError{520, "Unable to launch workspace within time limit."}
	ErrMetricsServerUnavailable = TheiaCloudError{521, "Metrics server not ready (yet)."}

	ErrSessionLaunchTimeout      = TheiaCloudError{551, "Unable to launch session within time limit."}
	ErrSessionServerLimitReached = TheiaCloudError{552, "Max instances reached. Could not create session."}
	ErrSessionUserLimitReached   = TheiaCloudError{553, "No more sessions allowed for this user, you reached your limit."}
	ErrSessionUserNoSessions     = TheiaCloudError{554, "No sessions allowed for this user."}

	ErrConfigStoreNotAvailable = TheiaCloudError{580, "The Theia Cloud Config Store is not available. It needs to be installed in the application."}
)

// CodeInternalServerError is used for errors without an explicit code.
const CodeInternalServerError = 500

func (e TheiaCloudError) Error() string {
	return fmt.Sprintf("%d: %s", e.Code, e.Reason)
}

// String returns the serialized form written to resources.
func (e TheiaCloudError) String() string {
	return strconv.Itoa(e.Code) + errorDelimiter + e.Reason
}

// Is matches on the code only, so a parsed error equals its constant.
func (e TheiaCloudError) Is(target error) bool {
	t, ok := target.(TheiaCloudError)
	return ok && t.Code == e.Code
}

// ParseError decodes a serialized error. Strings without a numeric code are
// treated as reasons with code 500. ok is false for blank input.
func ParseError(s string) (TheiaCloudError, bool) {
	if strings.TrimSpace(s) == "" {
		return TheiaCloudError{}, false
	}
	idx := strings.Index(s, errorDelimiter)
	if idx == -1 {
		return TheiaCloudError{CodeInternalServerError, s}, true
	}
	code, err := strconv.Atoi(s[:idx])
	if err != nil {
		return TheiaCloudError{CodeInternalServerError, s}, true
	}
	return TheiaCloudError{code, s[idx+1:]}, true
}
