package naming

import (
	"strconv"
	"strings"
	"time"

	"theiacloud/pkg/apis/theiacloud/v1beta"
)

const (
	workspaceSessionSuffix = "-session"
	workspaceNameLimit     = ValidNameLimit - len(workspaceSessionSuffix)
	defaultDescription     = "Workspace"
)

// WorkspaceSessionName is the name of the session started for a workspace.
func WorkspaceSessionName(workspaceName string) string {
	return workspaceName + workspaceSessionSuffix
}

// StorageName names the volume and claim backing a workspace.
func StorageName(workspace *v1beta.Workspace) string {
	return ForWorkspaceWithSuffix(workspace, SuffixStorage)
}

// GenerateWorkspaceName builds a workspace name for user. Unique names embed
// the creation time so the same user may own several workspaces of one app.
func GenerateWorkspaceName(user, appDefinitionName string, unique bool, now time.Time) string {
	parts := []string{"ws"}
	if unique {
		parts = append(parts, strconv.FormatInt(now.UnixMilli(), 10))
	}
	parts = append(parts, workspaceDescription(appDefinitionName), user)
	return AsValidNameWithLimit(strings.ToLower(strings.Join(parts, "-")), workspaceNameLimit)
}

// WorkspaceLabel is the human readable label of a generated workspace.
func WorkspaceLabel(user, appDefinitionName string) string {
	return workspaceDescription(appDefinitionName) + " of " + user
}

func workspaceDescription(appDefinitionName string) string {
	if strings.TrimSpace(appDefinitionName) == "" {
		return defaultDescription
	}
	return appDefinitionName
}
