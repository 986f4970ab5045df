package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"theiacloud/internal/operator"
	"theiacloud/pkg/logging"
)

// Exit codes of the theiacloud binary.
const (
	// ExitCodeSuccess indicates successful execution.
	ExitCodeSuccess = 0
	// ExitCodeError indicates a general error (command failed, invalid arguments).
	ExitCodeError = 1
	// ExitCodeFatal indicates the operator stopped on a condition it cannot
	// recover from in process, e.g. a broken watch or a lost lease. The pod
	// is expected to be restarted.
	ExitCodeFatal = 3
)

var (
	rootLogLevel  string
	rootLogFormat string
	rootNamespace string
)

// rootCmd represents the base command for the theiacloud binary.
var rootCmd = &cobra.Command{
	Use:   "theiacloud",
	Short: "Run the Theia Cloud operator and launch sessions",
	Long: `theiacloud runs the Theia Cloud operator, which provisions the deployments,
services and volumes behind AppDefinition, Session and Workspace resources.

It also acts as a client of a running operator: 'launch' creates a session
or workspace and waits until the operator reports its url or storage, and
'get' lists the resources of a namespace.`,
	// SilenceUsage prevents Cobra from printing the usage message on errors that are handled by the application.
	SilenceUsage:      true,
	PersistentPreRunE: initLogging,
}

// SetVersion sets the version for the root command.
// This function is typically called from the main package to inject the application version at build time.
func SetVersion(v string) {
	rootCmd.Version = v
}

// GetVersion returns the current version of the application.
func GetVersion() string {
	return rootCmd.Version
}

// Execute is the main entry point for the CLI application.
// This function is called by main.main().
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "theiacloud version %s\n" .Version}}`)

	err := rootCmd.Execute()
	if err != nil {
		os.Exit(getExitCode(err))
	}
}

// getExitCode determines the appropriate exit code based on the error type.
func getExitCode(err error) int {
	if err == nil {
		return ExitCodeSuccess
	}
	if operator.IsFatal(err) {
		return ExitCodeFatal
	}
	return ExitCodeError
}

func initLogging(cmd *cobra.Command, _ []string) error {
	level, err := logging.ParseLevel(rootLogLevel)
	if err != nil {
		return err
	}
	format, err := logging.ParseFormat(rootLogFormat)
	if err != nil {
		return err
	}
	logging.Init(format, level, cmd.ErrOrStderr())
	return nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&rootLogLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&rootLogFormat, "log-format", "text", "Log format (text, json)")
	rootCmd.PersistentFlags().StringVarP(&rootNamespace, "namespace", "n", "", "Namespace of the Theia Cloud resources (default: service account namespace or \"default\")")

	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newOperatorCmd())
	rootCmd.AddCommand(newLaunchCmd())
	rootCmd.AddCommand(newGetCmd())
}
