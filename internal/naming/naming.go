package naming

import (
	"regexp"
	"strconv"
	"strings"

	"theiacloud/pkg/apis/theiacloud/v1beta"
)

const (
	// ValidNameLimit is the maximum length of a Kubernetes object name.
	ValidNameLimit = 63

	// validNamePrefix is prepended when a name does not start with a letter.
	validNamePrefix = 'a'
	// validNameSuffix replaces a trailing non alphanumeric character.
	validNameSuffix = 'z'

	uidTailLength = 12

	segmentLength           = 17
	segmentLengthIdentifier = 11
	identifierLength        = 11

	sessionPrefix   = "session"
	workspacePrefix = "ws"
	instancePrefix  = "instance"
)

// Identifiers and suffixes of the child resources.
const (
	IdentifierDeployment  = "deployment"
	IdentifierProxyConfig = "config"
	IdentifierEmailConfig = "emailconfig"

	SuffixInternalService = "int"
	SuffixStorage         = "pvc"
)

var invalidNameChars = regexp.MustCompile(`[^a-zA-Z0-9-]`)

// ForAppDefinition names the resource of a pre-started instance, e.g.
// "instance-1-some-app-definiti-381261d79c23". A blank identifier is ignored.
func ForAppDefinition(appDefinition *v1beta.AppDefinition, instance int, identifier string) string {
	prefix := instancePrefix + "-" + strconv.Itoa(instance)
	return createName(prefix, identifier, []string{appDefinition.Spec.Name}, string(appDefinition.UID))
}

// ForSession names a resource owned by a session, e.g.
// "session-some-username-test-app-definiti-426930ea37d7".
func ForSession(session *v1beta.Session, identifier string) string {
	segments := []string{userSegment(session.Spec.User), session.Spec.AppDefinition}
	return createName(sessionPrefix, identifier, segments, string(session.UID))
}

// ForWorkspace names a resource owned by a workspace, e.g.
// "ws-some-username-test-app-definiti-381261d79c23".
func ForWorkspace(workspace *v1beta.Workspace, identifier string) string {
	segments := []string{userSegment(workspace.Spec.User), workspace.Spec.AppDefinition}
	return createName(workspacePrefix, identifier, segments, string(workspace.UID))
}

// ForAppDefinitionWithSuffix names an instance resource whose name must end
// with suffix, e.g. the internal service of an instance.
func ForAppDefinitionWithSuffix(appDefinition *v1beta.AppDefinition, instance int, suffix string) string {
	prefix := instancePrefix + "-" + strconv.Itoa(instance)
	return createNameWithSuffix(prefix, []string{appDefinition.Spec.Name}, string(appDefinition.UID), suffix)
}

// ForSessionWithSuffix names a session resource whose name must end with suffix.
func ForSessionWithSuffix(session *v1beta.Session, suffix string) string {
	segments := []string{userSegment(session.Spec.User), session.Spec.AppDefinition}
	return createNameWithSuffix(sessionPrefix, segments, string(session.UID), suffix)
}

// ForWorkspaceWithSuffix names a workspace resource whose name must end with suffix.
func ForWorkspaceWithSuffix(workspace *v1beta.Workspace, suffix string) string {
	segments := []string{userSegment(workspace.Spec.User), workspace.Spec.AppDefinition}
	return createNameWithSuffix(workspacePrefix, segments, string(workspace.UID), suffix)
}

func createName(prefix, identifier string, segments []string, uid string) string {
	identifier = strings.TrimSpace(identifier)

	limit := segmentLength
	parts := []string{prefix}
	if identifier != "" {
		limit = segmentLengthIdentifier
		parts = append(parts, truncate(identifier, identifierLength))
	}
	for _, segment := range segments {
		parts = append(parts, truncate(segment, limit))
	}
	parts = append(parts, uidTail(uid))

	return AsValidName(joinNonEmpty(parts))
}

// createNameWithSuffix reserves the suffix before splitting the remaining
// budget evenly between the segments so truncation never cuts the suffix.
func createNameWithSuffix(prefix string, segments []string, uid, suffix string) string {
	tail := uidTail(uid)
	suffix = strings.TrimSpace(suffix)

	fixed := len(prefix) + len(tail) + len(suffix) + len(segments) + 2
	budget := ValidNameLimit - fixed
	perSegment := 0
	if len(segments) > 0 && budget > 0 {
		perSegment = budget / len(segments)
	}

	parts := []string{prefix}
	for _, segment := range segments {
		parts = append(parts, truncate(segment, perSegment))
	}
	parts = append(parts, tail, suffix)

	return AsValidName(joinNonEmpty(parts))
}

// AsValidName turns text into a valid Kubernetes object name of at most 63 characters.
func AsValidName(text string) string {
	return AsValidNameWithLimit(text, ValidNameLimit)
}

// AsValidNameWithLimit is AsValidName with a custom length limit.
func AsValidNameWithLimit(text string, limit int) string {
	if text == "" {
		return text
	}

	valid := invalidNameChars.ReplaceAllString(text, "-")

	if !isLetter(valid[0]) {
		valid = string(validNamePrefix) + valid
	}

	if len(valid) > limit {
		valid = valid[:limit]
	}

	if last := valid[len(valid)-1]; !isLetter(last) && !isDigit(last) {
		valid = valid[:len(valid)-1] + string(validNameSuffix)
	}

	return strings.ToLower(valid)
}

// userSegment keeps the local part of an email shaped user.
func userSegment(user string) string {
	if idx := strings.Index(user, "@"); idx >= 0 {
		return user[:idx]
	}
	return user
}

func uidTail(uid string) string {
	if len(uid) <= uidTailLength {
		return uid
	}
	return uid[len(uid)-uidTailLength:]
}

// truncate cuts s to at most n runes.
func truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

func joinNonEmpty(parts []string) string {
	nonEmpty := make([]string, 0, len(parts))
	for _, part := range parts {
		if part != "" {
			nonEmpty = append(nonEmpty, part)
		}
	}
	return strings.Join(nonEmpty, "-")
}

func isLetter(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}
