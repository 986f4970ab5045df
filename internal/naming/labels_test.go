package naming

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSessionLabels(t *testing.T) {
	labels := SessionLabels(testSession(), testAppDefinition())

	assert.Equal(t, map[string]string{
		LabelKeyComponent:   LabelValueSession,
		LabelKeyPartOf:      LabelValuePartOf,
		LabelKeyUser:        "some_username_at_example_org",
		LabelKeyAppDef:      "some-app-definition",
		LabelKeySessionName: "some-session-spec",
		LabelKeySessionUID:  "2b8a76db-a049-496f-b897-426930ea37d7",
	}, labels)
}

func TestSessionLabels_Truncated(t *testing.T) {
	session := testSession()
	session.Spec.Name = strings.Repeat("n", 80)

	labels := SessionLabels(session, testAppDefinition())
	assert.Len(t, labels[LabelKeySessionName], maxLabelLength)
}

func TestSessionSpecificLabelKeys(t *testing.T) {
	assert.ElementsMatch(t, []string{LabelKeySessionName, LabelKeySessionUID, LabelKeyUser}, SessionSpecificLabelKeys())
}

func TestWorkspaceNames(t *testing.T) {
	assert.Equal(t, "ws-foo-session", WorkspaceSessionName("ws-foo"))
	assert.True(t, strings.HasSuffix(StorageName(testWorkspace()), "-381261d79c23-pvc"))

	now := time.UnixMilli(1700000000000)
	assert.Equal(t, "ws-theia-foo-example-com", GenerateWorkspaceName("foo@example.com", "theia", false, now))
	assert.Equal(t, "ws-1700000000000-workspace-foo", GenerateWorkspaceName("foo", "", true, now))

	long := GenerateWorkspaceName(strings.Repeat("u", 80), "theia", true, now)
	assert.LessOrEqual(t, len(WorkspaceSessionName(long)), ValidNameLimit)

	assert.Equal(t, "theia of foo", WorkspaceLabel("foo", "theia"))
	assert.Equal(t, "Workspace of foo", WorkspaceLabel("foo", " "))
}
