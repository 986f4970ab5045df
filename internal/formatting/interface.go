// Package formatting renders theia.cloud resources for the command line.
//
// The table format is meant for humans and shows the fields that matter
// while operating the cluster: instance counts for app definitions, url and
// error for sessions, storage for workspaces. The JSON and YAML formats
// print the complete resources and are meant for scripts.
package formatting

import (
	"fmt"
	"io"
	"strings"

	"theiacloud/pkg/apis/theiacloud/v1beta"
)

// OutputFormat represents the desired output format
type OutputFormat string

const (
	FormatTable OutputFormat = "table" // Rich table output
	FormatJSON  OutputFormat = "json"  // JSON output
	FormatYAML  OutputFormat = "yaml"  // YAML output
)

// Formats lists the supported formats for flag help and completion.
var Formats = []string{string(FormatTable), string(FormatJSON), string(FormatYAML)}

// ParseFormat parses an output format flag value.
func ParseFormat(s string) (OutputFormat, error) {
	switch f := OutputFormat(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatTable, FormatJSON, FormatYAML:
		return f, nil
	case "":
		return FormatTable, nil
	default:
		return "", fmt.Errorf("unsupported output format %q (use one of: %s)", s, strings.Join(Formats, ", "))
	}
}

// Options configures the formatter behavior
type Options struct {
	Format OutputFormat
	// Color enables colored table headers and statuses.
	Color bool
}

// Formatter writes lists of resources to w.
type Formatter interface {
	FormatAppDefinitions(w io.Writer, items []v1beta.AppDefinition) error
	FormatSessions(w io.Writer, items []v1beta.Session) error
	FormatWorkspaces(w io.Writer, items []v1beta.Workspace) error
}

// New creates the formatter for options.Format.
func New(options Options) Formatter {
	switch options.Format {
	case FormatJSON:
		return structuredFormatter{marshal: marshalJSON}
	case FormatYAML:
		return structuredFormatter{marshal: marshalYAML}
	default:
		return &TableFormatter{options: options}
	}
}
