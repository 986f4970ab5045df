package v1beta

import (
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// Timeout strategies.
const (
	TimeoutStrategyFixedTime  = "FIXEDTIME"
	TimeoutStrategyInactivity = "INACTIVITY"
)

// Timeout configures when idle or old sessions are removed.
type Timeout struct {
	// Limit in minutes. Zero or negative disables the timeout.
	Limit int `json:"limit,omitempty" yaml:"limit,omitempty"`

	// +kubebuilder:validation:Enum=FIXEDTIME;INACTIVITY
	Strategy string `json:"strategy,omitempty" yaml:"strategy,omitempty"`
}

// ActivityTracker holds inactivity thresholds in minutes.
type ActivityTracker struct {
	TimeoutAfter int `json:"timeoutAfter,omitempty" yaml:"timeoutAfter,omitempty"`
	NotifyAfter  int `json:"notifyAfter,omitempty" yaml:"notifyAfter,omitempty"`
}

// Monitor configures the monitor sidecar endpoint of a session pod.
type Monitor struct {
	Port            int              `json:"port,omitempty" yaml:"port,omitempty"`
	ActivityTracker *ActivityTracker `json:"activityTracker,omitempty" yaml:"activityTracker,omitempty"`
}

// AppDefinitionSpec defines the desired state of AppDefinition
type AppDefinitionSpec struct {
	// +kubebuilder:validation:Required
	Name string `json:"name" yaml:"name"`

	// +kubebuilder:validation:Required
	Image string `json:"image" yaml:"image"`

	// +kubebuilder:validation:Enum=Always;IfNotPresent;Never
	ImagePullPolicy string `json:"imagePullPolicy,omitempty" yaml:"imagePullPolicy,omitempty"`

	PullSecret string `json:"pullSecret,omitempty" yaml:"pullSecret,omitempty"`

	// UID the container runs as. Negative values fall back to 1000.
	UID int `json:"uid,omitempty" yaml:"uid,omitempty"`

	// +kubebuilder:validation:Minimum=1
	Port int `json:"port" yaml:"port"`

	// IngressName names the ingress session routes are added to.
	IngressName string `json:"ingressname" yaml:"ingressname"`

	// +kubebuilder:validation:Minimum=0
	MinInstances int `json:"minInstances,omitempty" yaml:"minInstances,omitempty"`

	// MaxInstances bounds concurrently running sessions. Nil or negative means unlimited.
	MaxInstances *int `json:"maxInstances,omitempty" yaml:"maxInstances,omitempty"`

	Timeout *Timeout `json:"timeout,omitempty" yaml:"timeout,omitempty"`

	RequestsMemory string `json:"requestsMemory,omitempty" yaml:"requestsMemory,omitempty"`
	RequestsCPU    string `json:"requestsCpu,omitempty" yaml:"requestsCpu,omitempty"`
	LimitsMemory   string `json:"limitsMemory,omitempty" yaml:"limitsMemory,omitempty"`
	LimitsCPU      string `json:"limitsCpu,omitempty" yaml:"limitsCpu,omitempty"`

	// Bandwidth limits in kbit/s.
	DownlinkLimit int `json:"downlinkLimit,omitempty" yaml:"downlinkLimit,omitempty"`
	UplinkLimit   int `json:"uplinkLimit,omitempty" yaml:"uplinkLimit,omitempty"`

	MountPath string `json:"mountPath,omitempty" yaml:"mountPath,omitempty"`

	Monitor *Monitor `json:"monitor,omitempty" yaml:"monitor,omitempty"`

	Options map[string]string `json:"options,omitempty" yaml:"options,omitempty"`

	IngressHostnamePrefixes []string `json:"ingressHostnamePrefixes,omitempty" yaml:"ingressHostnamePrefixes,omitempty"`
}

// TimeoutLimit returns the configured timeout in minutes, or 0 when none is set.
func (s AppDefinitionSpec) TimeoutLimit() int {
	if s.Timeout == nil || s.Timeout.Limit <= 0 {
		return 0
	}
	return s.Timeout.Limit
}

// MaxInstancesLimit returns the instance bound and whether one applies.
func (s AppDefinitionSpec) MaxInstancesLimit() (int, bool) {
	if s.MaxInstances == nil || *s.MaxInstances < 0 {
		return 0, false
	}
	return *s.MaxInstances, true
}

// AppDefinitionStatus defines the observed state of AppDefinition
type AppDefinitionStatus struct {
	ResourceStatus `json:",inline" yaml:",inline"`
}

// +kubebuilder:object:root=true
// +kubebuilder:subresource:status
// +kubebuilder:resource:shortName=appdef
// +kubebuilder:printcolumn:name="Image",type="string",JSONPath=".spec.image"
// +kubebuilder:printcolumn:name="Min",type="integer",JSONPath=".spec.minInstances"
// +kubebuilder:printcolumn:name="Max",type="integer",JSONPath=".spec.maxInstances"
// +kubebuilder:printcolumn:name="Status",type="string",JSONPath=".status.operatorStatus"
// +kubebuilder:printcolumn:name="Age",type="date",JSONPath=".metadata.creationTimestamp"

// AppDefinition is the Schema for the appdefinitions API
type AppDefinition struct {
	metav1.TypeMeta   `json:",inline"`
	metav1.ObjectMeta `json:"metadata,omitempty"`

	Spec   AppDefinitionSpec   `json:"spec,omitempty"`
	Status AppDefinitionStatus `json:"status,omitempty"`
}

// +kubebuilder:object:root=true

// AppDefinitionList contains a list of AppDefinition
type AppDefinitionList struct {
	metav1.TypeMeta `json:",inline"`
	metav1.ListMeta `json:"metadata,omitempty"`
	Items           []AppDefinition `json:"items"`
}

func init() {
	SchemeBuilder.Register(&AppDefinition{}, &AppDefinitionList{})
}
