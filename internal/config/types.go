package config

import "time"

// Cloud providers selecting the persistent volume strategy.
const (
	CloudProviderK8S      = "K8S"
	CloudProviderMinikube = "MINIKUBE"
	CloudProviderGKE      = "GKE"
)

// Bandwidth limiter strategies.
const (
	BandwidthLimiterAnnotation                = "K8SANNOTATION"
	BandwidthLimiterWondershaper              = "WONDERSHAPER"
	BandwidthLimiterAnnotationAndWondershaper = "K8SANNOTATIONANDWONDERSHAPER"
)

// OperatorConfig is the complete configuration of the operator.
type OperatorConfig struct {
	Namespace string `yaml:"namespace,omitempty"`

	// EagerStart selects pre-started instances instead of one deployment per session.
	EagerStart bool `yaml:"eagerStart,omitempty"`

	Keycloak         bool   `yaml:"keycloak,omitempty"`
	KeycloakURL      string `yaml:"keycloakURL,omitempty" validate:"required_if=Keycloak true"`
	KeycloakRealm    string `yaml:"keycloakRealm,omitempty" validate:"required_if=Keycloak true"`
	KeycloakClientID string `yaml:"keycloakClientID,omitempty" validate:"required_if=Keycloak true"`

	EnableMonitor         bool          `yaml:"enableMonitor,omitempty"`
	EnableActivityTracker bool          `yaml:"enableActivityTracker,omitempty"`
	MonitorInterval       time.Duration `yaml:"monitorInterval,omitempty" validate:"gte=0"`

	// SessionsPerUser limits sessions per user. Nil means unlimited.
	SessionsPerUser *int `yaml:"sessionsPerUser,omitempty" validate:"omitempty,gte=0"`

	InstancesHost string `yaml:"instancesHost" validate:"required,hostname_rfc1123"`
	UsePaths      bool   `yaml:"usePaths,omitempty"`
	InstancesPath string `yaml:"instancesPath,omitempty"`

	AppID            string `yaml:"appId,omitempty"`
	ServiceURL       string `yaml:"serviceURL,omitempty" validate:"omitempty,url"`
	ServiceAuthToken string `yaml:"serviceAuthToken,omitempty"`

	StorageClassName string `yaml:"storageClassName,omitempty"`
	RequestedStorage string `yaml:"requestedStorage,omitempty"`
	CloudProvider    string `yaml:"cloudProvider,omitempty" validate:"oneof=K8S MINIKUBE GKE"`

	BandwidthLimiter  string `yaml:"bandwidthLimiter,omitempty" validate:"omitempty,oneof=K8SANNOTATION WONDERSHAPER K8SANNOTATIONANDWONDERSHAPER"`
	WondershaperImage string `yaml:"wondershaperImage,omitempty"`

	OAuth2ProxyVersion string `yaml:"oauth2ProxyVersion,omitempty"`

	// ContinueOnException keeps the operator running after a failed session or workspace handler.
	ContinueOnException bool `yaml:"continueOnException,omitempty"`

	MaxWatchIdleTime  time.Duration `yaml:"maxWatchIdleTime,omitempty" validate:"gte=0"`
	SweepInterval     time.Duration `yaml:"sweepInterval,omitempty" validate:"gte=0"`
	IdleCheckInterval time.Duration `yaml:"idleCheckInterval,omitempty" validate:"gte=0"`

	LeaderElection      bool          `yaml:"leaderElection"`
	LeaderLeaseDuration time.Duration `yaml:"leaderLeaseDuration,omitempty" validate:"gtfield=LeaderRenewDeadline"`
	LeaderRenewDeadline time.Duration `yaml:"leaderRenewDeadline,omitempty" validate:"gtfield=LeaderRetryPeriod"`
	LeaderRetryPeriod   time.Duration `yaml:"leaderRetryPeriod,omitempty" validate:"gt=0"`

	MetricsAddress string `yaml:"metricsAddress,omitempty"`
	TemplatesDir   string `yaml:"templatesDir,omitempty"`
}

// ActivityTrackingEnabled reports whether session pods are polled for activity.
func (c OperatorConfig) ActivityTrackingEnabled() bool {
	return c.EnableMonitor && c.EnableActivityTracker
}

// KeycloakEnabled reports whether sessions run behind the oauth2-proxy sidecar.
func (c OperatorConfig) KeycloakEnabled() bool {
	return c.Keycloak
}
