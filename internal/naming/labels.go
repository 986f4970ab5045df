package naming

import (
	"regexp"
	"strings"

	"theiacloud/pkg/apis/theiacloud/v1beta"
	"theiacloud/pkg/logging"
)

const (
	labelCustomPrefix = "theia-cloud.io"

	LabelKeyComponent   = "app.kubernetes.io/component"
	LabelValueSession   = "session"
	LabelKeyPartOf      = "app.kubernetes.io/part-of"
	LabelValuePartOf    = "theia-cloud"
	LabelKeyUser        = labelCustomPrefix + "/user"
	LabelKeyAppDef      = labelCustomPrefix + "/app-definition"
	LabelKeySessionName = labelCustomPrefix + "/session"
	LabelKeySessionUID  = labelCustomPrefix + "/session-uuid"

	// LabelKeyTemplatePurpose marks config maps the operator copies from.
	LabelKeyTemplatePurpose = labelCustomPrefix + "/template-purpose"

	maxLabelLength = 63
)

var invalidLabelChars = regexp.MustCompile(`[^a-zA-Z0-9]`)

// SessionLabels returns the labels identifying the resources serving a session.
func SessionLabels(session *v1beta.Session, appDefinition *v1beta.AppDefinition) map[string]string {
	return map[string]string{
		LabelKeyComponent:   LabelValueSession,
		LabelKeyPartOf:      LabelValuePartOf,
		LabelKeyUser:        truncateLabelValue(SanitizeUser(session.Spec.User)),
		LabelKeyAppDef:      truncateLabelValue(appDefinition.Spec.Name),
		LabelKeySessionName: truncateLabelValue(session.Spec.Name),
		LabelKeySessionUID:  truncateLabelValue(string(session.UID)),
	}
}

// SessionSpecificLabelKeys are the label keys removed when a pre-started
// instance is handed back after its session ended.
func SessionSpecificLabelKeys() []string {
	return []string{LabelKeySessionName, LabelKeySessionUID, LabelKeyUser}
}

// SanitizeUser makes an email address usable as a label value.
func SanitizeUser(user string) string {
	return invalidLabelChars.ReplaceAllString(strings.ReplaceAll(user, "@", "_at_"), "_")
}

func truncateLabelValue(value string) string {
	if len(value) > maxLabelLength {
		logging.Warn("Naming", "Label value truncated: %s", value)
		return value[:maxLabelLength]
	}
	return value
}
