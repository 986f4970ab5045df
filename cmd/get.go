package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	theiaclient "theiacloud/internal/client"
	"theiacloud/internal/formatting"
	"theiacloud/pkg/apis/theiacloud/v1beta"
)

// Resource kinds accepted by get, with their aliases.
var getResourceTypes = map[string]string{
	"appdefinitions": "appdefinitions",
	"appdefinition":  "appdefinitions",
	"appdef":         "appdefinitions",
	"sessions":       "sessions",
	"session":        "sessions",
	"workspaces":     "workspaces",
	"workspace":      "workspaces",
	"ws":             "workspaces",
}

type getOptions struct {
	output string
	user   string
	color  bool
}

func newGetCmd() *cobra.Command {
	opts := &getOptions{}
	cmd := &cobra.Command{
		Use:   "get <appdefinitions|sessions|workspaces>",
		Short: "List Theia Cloud resources",
		Long: `Lists the AppDefinitions, Sessions or Workspaces of the namespace with
their operator status. Sessions and workspaces can be filtered by user.`,
		Example: `  theiacloud get sessions
  theiacloud get workspaces --user foo@example.com -o yaml`,
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"appdefinitions", "sessions", "workspaces"},
		RunE: func(cmd *cobra.Command, args []string) error {
			c, _, err := newKubeClient()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			return printResources(ctx, c, cmd.OutOrStdout(), args[0], opts)
		},
	}

	cmd.Flags().StringVarP(&opts.output, "output", "o", string(formatting.FormatTable), "Output format ("+strings.Join(formatting.Formats, ", ")+")")
	cmd.Flags().StringVar(&opts.user, "user", "", "Only show resources of this user")
	cmd.Flags().BoolVar(&opts.color, "color", isTerminal(os.Stdout), "Colorize table output")
	_ = cmd.RegisterFlagCompletionFunc("output", func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
		return formatting.Formats, cobra.ShellCompDirectiveNoFileComp
	})
	return cmd
}

func printResources(ctx context.Context, c *theiaclient.Client, w io.Writer, resourceType string, opts *getOptions) error {
	kind, ok := getResourceTypes[strings.ToLower(resourceType)]
	if !ok {
		return fmt.Errorf("unknown resource type %q (use appdefinitions, sessions or workspaces)", resourceType)
	}
	format, err := formatting.ParseFormat(opts.output)
	if err != nil {
		return err
	}
	formatter := formatting.New(formatting.Options{Format: format, Color: opts.color})

	switch kind {
	case "appdefinitions":
		items, err := c.ListAppDefinitions(ctx)
		if err != nil {
			return err
		}
		sort.Slice(items, func(i, j int) bool { return items[i].Name < items[j].Name })
		return formatter.FormatAppDefinitions(w, items)

	case "sessions":
		items, err := c.ListSessions(ctx)
		if err != nil {
			return err
		}
		items = filterByUser(items, opts.user, func(s v1beta.Session) string { return s.Spec.User })
		sort.Slice(items, func(i, j int) bool { return items[i].Name < items[j].Name })
		return formatter.FormatSessions(w, items)

	default:
		items, err := c.ListWorkspaces(ctx)
		if err != nil {
			return err
		}
		items = filterByUser(items, opts.user, func(ws v1beta.Workspace) string { return ws.Spec.User })
		sort.Slice(items, func(i, j int) bool { return items[i].Name < items[j].Name })
		return formatter.FormatWorkspaces(w, items)
	}
}

func filterByUser[T any](items []T, user string, userOf func(T) string) []T {
	if user == "" {
		return items
	}
	filtered := make([]T, 0, len(items))
	for _, item := range items {
		if userOf(item) == user {
			filtered = append(filtered, item)
		}
	}
	return filtered
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}
