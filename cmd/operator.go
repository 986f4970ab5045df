package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"theiacloud/internal/app"
	"theiacloud/internal/config"
)

// operatorOptions are the command line flags of the operator command.
// A flag only overrides the configuration file when it was set explicitly.
type operatorOptions struct {
	configPath          string
	instancesHost       string
	eagerStart          bool
	enableMonitor       bool
	enableTracker       bool
	continueOnException bool
	leaderElection      bool
	sessionsPerUser     int
	cloudProvider       string
	metricsAddress      string
	templatesDir        string
	maxWatchIdleTime    time.Duration
	sweepInterval       time.Duration
	monitorInterval     time.Duration
}

func newOperatorCmd() *cobra.Command {
	opts := &operatorOptions{}
	cmd := &cobra.Command{
		Use:   "operator",
		Short: "Run the Theia Cloud operator",
		Long: `Runs the operator until it receives SIGINT or SIGTERM.

The operator replays all AppDefinitions, Workspaces and Sessions of its
namespace, then watches them and provisions their deployments, services,
config maps, volumes and ingress rules. Sessions exceeding their app
definition's timeout are deleted periodically.

Configuration is read from the YAML file given with --config. Flags that are
set explicitly override the file. The process exits with code 3 when it
stops on a condition that requires a restart, such as a watch that cannot be
reopened or a lost leader election lease.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOperator(cmd, opts)
		},
	}

	opts.bindFlags(cmd)
	return cmd
}

func (o *operatorOptions) bindFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.StringVar(&o.configPath, "config", "", "Path to the operator configuration file")
	flags.StringVar(&o.instancesHost, "instances-host", "", "Host name sessions are served under")
	flags.BoolVar(&o.eagerStart, "eager-start", false, "Hand out pre-started instances instead of starting one deployment per session")
	flags.BoolVar(&o.enableMonitor, "enable-monitor", false, "Add the monitor to session pods")
	flags.BoolVar(&o.enableTracker, "enable-activity-tracker", false, "Poll session pods for activity and stop inactive sessions")
	flags.BoolVar(&o.continueOnException, "continue-on-exception", false, "Keep running after a failed session or workspace handler")
	flags.BoolVar(&o.leaderElection, "leader-election", true, "Only run the engine while holding the leader lease")
	flags.IntVar(&o.sessionsPerUser, "sessions-per-user", 0, "Maximum number of sessions per user")
	flags.StringVar(&o.cloudProvider, "cloud-provider", config.CloudProviderK8S, "Cloud provider (K8S, MINIKUBE, GKE)")
	flags.StringVar(&o.metricsAddress, "metrics-address", config.DefaultMetricsAddress, "Address of the metrics and health endpoint, empty to disable")
	flags.StringVar(&o.templatesDir, "templates-dir", "", "Directory with templates overriding the built-in ones")
	flags.DurationVar(&o.maxWatchIdleTime, "max-watch-idle-time", config.DefaultMaxWatchIdleTime, "Stop when a watch delivered no event for this long, 0 to disable")
	flags.DurationVar(&o.sweepInterval, "sweep-interval", config.DefaultSweepInterval, "Interval of the session timeout sweep, 0 to disable")
	flags.DurationVar(&o.monitorInterval, "monitor-interval", config.DefaultMonitorInterval, "Interval of the activity tracker")
}

func runOperator(cmd *cobra.Command, opts *operatorOptions) error {
	cfg := app.NewConfig(opts.configPath, opts.overrides(cmd)...)
	if rootNamespace != "" {
		cfg.Overrides = append(cfg.Overrides, func(c *config.OperatorConfig) { c.Namespace = rootNamespace })
	}

	application, err := app.NewApplication(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize operator: %w", err)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return application.Run(ctx)
}

// overrides returns one override per explicitly set flag.
func (o *operatorOptions) overrides(cmd *cobra.Command) []func(*config.OperatorConfig) {
	changed := cmd.Flags().Changed
	var overrides []func(*config.OperatorConfig)
	add := func(flag string, override func(*config.OperatorConfig)) {
		if changed(flag) {
			overrides = append(overrides, override)
		}
	}

	add("instances-host", func(c *config.OperatorConfig) { c.InstancesHost = o.instancesHost })
	add("eager-start", func(c *config.OperatorConfig) { c.EagerStart = o.eagerStart })
	add("enable-monitor", func(c *config.OperatorConfig) { c.EnableMonitor = o.enableMonitor })
	add("enable-activity-tracker", func(c *config.OperatorConfig) { c.EnableActivityTracker = o.enableTracker })
	add("continue-on-exception", func(c *config.OperatorConfig) { c.ContinueOnException = o.continueOnException })
	add("leader-election", func(c *config.OperatorConfig) { c.LeaderElection = o.leaderElection })
	add("sessions-per-user", func(c *config.OperatorConfig) {
		limit := o.sessionsPerUser
		c.SessionsPerUser = &limit
	})
	add("cloud-provider", func(c *config.OperatorConfig) { c.CloudProvider = o.cloudProvider })
	add("metrics-address", func(c *config.OperatorConfig) { c.MetricsAddress = o.metricsAddress })
	add("templates-dir", func(c *config.OperatorConfig) { c.TemplatesDir = o.templatesDir })
	add("max-watch-idle-time", func(c *config.OperatorConfig) { c.MaxWatchIdleTime = o.maxWatchIdleTime })
	add("sweep-interval", func(c *config.OperatorConfig) { c.SweepInterval = o.sweepInterval })
	add("monitor-interval", func(c *config.OperatorConfig) { c.MonitorInterval = o.monitorInterval })
	return overrides
}
