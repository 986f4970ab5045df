package template

import (
	"theiacloud/pkg/apis/theiacloud/v1beta"
)

const (
	// DefaultImagePullPolicy applies when the app definition leaves the policy empty.
	DefaultImagePullPolicy = "Always"
	// DefaultUID applies when the app definition carries a negative uid.
	DefaultUID = 1000
	// DefaultMonitorPort is used when the monitor is disabled or has no port.
	DefaultMonitorPort = 8081
	// OAuth2ProxyPort is the port the oauth2-proxy sidecar listens on.
	OAuth2ProxyPort = 5000
)

// Values are the inputs all templates render from. Fields a template does
// not reference are ignored.
type Values struct {
	Name      string
	Namespace string

	AppName         string
	AppSelector     string
	Image           string
	ImagePullPolicy string
	Port            int
	TargetPort      int
	UID             int

	RequestsCPU    string
	RequestsMemory string
	LimitsCPU      string
	LimitsMemory   string

	MonitorEnabled         bool
	MonitorPort            int
	ActivityTrackerEnabled bool

	AppID         string
	ServiceURL    string
	SessionUID    string
	SessionName   string
	SessionUser   string
	SessionSecret string
	SessionURL    string

	ProxyConfigName    string
	EmailsConfigName   string
	OAuth2ProxyVersion string

	StorageClassName string
	RequestedStorage string
}

// ForAppDefinition fills the container related values from an app definition.
func ForAppDefinition(namespace string, appDefinition *v1beta.AppDefinition, monitorEnabled bool) Values {
	spec := appDefinition.Spec
	values := Values{
		Namespace:       namespace,
		AppName:         spec.Name,
		Image:           spec.Image,
		ImagePullPolicy: spec.ImagePullPolicy,
		Port:            spec.Port,
		TargetPort:      spec.Port,
		UID:             spec.UID,
		RequestsCPU:     spec.RequestsCPU,
		RequestsMemory:  spec.RequestsMemory,
		LimitsCPU:       spec.LimitsCPU,
		LimitsMemory:    spec.LimitsMemory,
		MonitorPort:     DefaultMonitorPort,
	}
	if values.ImagePullPolicy == "" {
		values.ImagePullPolicy = DefaultImagePullPolicy
	}
	if values.UID < 0 {
		values.UID = DefaultUID
	}
	if monitorEnabled && spec.Monitor != nil && spec.Monitor.Port > 0 {
		values.MonitorEnabled = true
		values.MonitorPort = spec.Monitor.Port
		values.ActivityTrackerEnabled = spec.Monitor.ActivityTracker != nil
	}
	return values
}
