package cmd

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	theiaclient "theiacloud/internal/client"
	"theiacloud/internal/launch"
	"theiacloud/internal/naming"
	"theiacloud/pkg/apis/theiacloud/v1beta"
	"theiacloud/pkg/logging"
)

const defaultLaunchTimeout = 3 * time.Minute

type launchOptions struct {
	appDefinition string
	user          string
	name          string
	workspace     string
	label         string
	timeout       time.Duration
	quiet         bool
}

func newLaunchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "launch",
		Short: "Launch a session or workspace and wait until it is ready",
		Long: `Creates a Session or Workspace resource unless it exists already and
blocks until the operator reported the outcome: the url of a session or the
storage of a workspace. A failed session is deleted so it can be launched
again. If the operator does not answer within --timeout the launch timeout
error is written onto the resource.`,
	}
	cmd.AddCommand(newLaunchSessionCmd())
	cmd.AddCommand(newLaunchWorkspaceCmd())
	return cmd
}

func addLaunchFlags(cmd *cobra.Command, opts *launchOptions) {
	cmd.Flags().StringVar(&opts.appDefinition, "app", "", "Name of the app definition")
	cmd.Flags().StringVar(&opts.user, "user", "", "User owning the resource")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", defaultLaunchTimeout, "How long to wait for the operator")
	cmd.Flags().BoolVarP(&opts.quiet, "quiet", "q", false, "Do not show progress")
	_ = cmd.MarkFlagRequired("app")
	_ = cmd.MarkFlagRequired("user")
}

func newLaunchSessionCmd() *cobra.Command {
	opts := &launchOptions{}
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Launch a session and print its url",
		Long: `Launches a session of an app definition for a user and prints its url.

With --workspace the workspace is launched first and the session is named
after it, so its data survives the session. Without it the session is
ephemeral.`,
		Example: `  theiacloud launch session --app theia --user foo@example.com
  theiacloud launch session --app theia --user foo@example.com --workspace ws-theia-foo`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLaunch(cmd, opts, func(ctx context.Context, l *launch.Launcher, progress func(string)) error {
				session, err := launchSession(ctx, l, opts, progress)
				if err != nil {
					return err
				}
				return reportSession(cmd.OutOrStdout(), session)
			})
		},
	}
	addLaunchFlags(cmd, opts)
	cmd.Flags().StringVar(&opts.name, "name", "", "Name of the session (generated when empty)")
	cmd.Flags().StringVar(&opts.workspace, "workspace", "", "Workspace to mount into the session")
	return cmd
}

func newLaunchWorkspaceCmd() *cobra.Command {
	opts := &launchOptions{}
	cmd := &cobra.Command{
		Use:   "workspace",
		Short: "Launch a workspace and print its storage",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLaunch(cmd, opts, func(ctx context.Context, l *launch.Launcher, progress func(string)) error {
				workspace, err := launchWorkspace(ctx, l, opts, progress)
				if err != nil {
					return err
				}
				return reportWorkspace(cmd.OutOrStdout(), workspace)
			})
		},
	}
	addLaunchFlags(cmd, opts)
	cmd.Flags().StringVar(&opts.name, "name", "", "Name of the workspace (derived from user and app when empty)")
	cmd.Flags().StringVar(&opts.label, "label", "", "Display label of the workspace")
	return cmd
}

// runLaunch connects to the cluster, starts the informer feed and runs fn
// with a progress spinner.
func runLaunch(cmd *cobra.Command, opts *launchOptions, fn func(context.Context, *launch.Launcher, func(string)) error) error {
	c, restConfig, err := newKubeClient()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	feed, err := launch.NewInformerFeed(restConfig, theiaclient.NewScheme(), c.Namespace())
	if err != nil {
		return err
	}
	l := launch.New(c, nil)
	if err := feed.Start(ctx, l); err != nil {
		return err
	}

	progress, stop := newProgress(cmd.ErrOrStderr(), opts.quiet)
	defer stop()
	return fn(ctx, l, progress)
}

// newProgress returns a function updating the spinner text and one stopping it.
func newProgress(w io.Writer, quiet bool) (func(string), func()) {
	if quiet {
		return func(string) {}, func() {}
	}
	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(w))
	s.Start()
	return func(message string) {
		s.Lock()
		s.Suffix = " " + message + "..."
		s.Unlock()
	}, s.Stop
}

func launchSession(ctx context.Context, l *launch.Launcher, opts *launchOptions, progress func(string)) (*v1beta.Session, error) {
	correlationID := logging.NewCorrelationID(logging.PrefixLaunch)
	spec := v1beta.SessionSpec{
		Name:          opts.sessionName(),
		AppDefinition: opts.appDefinition,
		User:          opts.user,
	}

	if opts.workspace != "" {
		progress(fmt.Sprintf("Launching workspace %s", opts.workspace))
		workspace, err := l.LaunchWorkspace(ctx, correlationID, v1beta.WorkspaceSpec{
			Name:          opts.workspace,
			AppDefinition: opts.appDefinition,
			User:          opts.user,
			Label:         naming.WorkspaceLabel(opts.user, opts.appDefinition),
		}, opts.timeout)
		if err != nil {
			return nil, err
		}
		if workspace.Status.Error != "" {
			return nil, launchFailure("workspace", workspace.Name, workspace.Status.Error)
		}
		spec.Name = naming.WorkspaceSessionName(workspace.Name)
		spec.Workspace = workspace.Name
	}

	progress(fmt.Sprintf("Launching session %s", spec.Name))
	return l.LaunchSession(ctx, correlationID, spec, opts.timeout)
}

func launchWorkspace(ctx context.Context, l *launch.Launcher, opts *launchOptions, progress func(string)) (*v1beta.Workspace, error) {
	label := opts.label
	if strings.TrimSpace(label) == "" {
		label = naming.WorkspaceLabel(opts.user, opts.appDefinition)
	}
	name := opts.name
	if name == "" {
		name = naming.GenerateWorkspaceName(opts.user, opts.appDefinition, false, time.Now())
	}

	progress(fmt.Sprintf("Launching workspace %s", name))
	return l.LaunchWorkspace(ctx, logging.NewCorrelationID(logging.PrefixLaunch), v1beta.WorkspaceSpec{
		Name:          name,
		AppDefinition: opts.appDefinition,
		User:          opts.user,
		Label:         label,
	}, opts.timeout)
}

// sessionName returns --name or a fresh name for an ephemeral session.
func (o *launchOptions) sessionName() string {
	if o.name != "" {
		return o.name
	}
	return naming.AsValidName(fmt.Sprintf("%s-%s-%s", o.appDefinition, uuid.NewString()[:8], o.user))
}

func reportSession(w io.Writer, session *v1beta.Session) error {
	if session.Status.Error != "" {
		return launchFailure("session", session.Name, session.Status.Error)
	}
	_, err := fmt.Fprintln(w, session.Status.URL)
	return err
}

func reportWorkspace(w io.Writer, workspace *v1beta.Workspace) error {
	if workspace.Status.Error != "" {
		return launchFailure("workspace", workspace.Name, workspace.Status.Error)
	}
	_, err := fmt.Fprintln(w, workspace.Spec.Storage)
	return err
}

// launchFailure turns the error written on a resource into a Go error,
// keeping the numeric code when it has one.
func launchFailure(kind, name, statusError string) error {
	if parsed, ok := v1beta.ParseError(statusError); ok {
		return fmt.Errorf("%s %s failed: %w", kind, name, parsed)
	}
	return fmt.Errorf("%s %s failed: %s", kind, name, statusError)
}
