package logging

import "github.com/google/uuid"

// Correlation id prefixes used by the operator to tie log lines of one
// event, sweep or launch together.
const (
	PrefixAppDefinitionWatch = "appdefinition-watch-"
	PrefixSessionWatch       = "session-watch-"
	PrefixWorkspaceWatch     = "workspace-watch-"
	PrefixTimeout            = "timeout-"
	PrefixNoActivity         = "no-activity-"
	PrefixLaunch             = "launch-"
)

// NewCorrelationID returns prefix followed by a random UUID.
func NewCorrelationID(prefix string) string {
	return prefix + uuid.NewString()
}
