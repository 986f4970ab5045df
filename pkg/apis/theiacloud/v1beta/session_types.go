package v1beta

import (
	"strings"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// SessionSpec defines the desired state of Session
type SessionSpec struct {
	// +kubebuilder:validation:Required
	Name string `json:"name" yaml:"name"`

	// +kubebuilder:validation:Required
	AppDefinition string `json:"appDefinition" yaml:"appDefinition"`

	// +kubebuilder:validation:Required
	User string `json:"user" yaml:"user"`

	// Workspace the session mounts. Empty means the session is ephemeral.
	Workspace string `json:"workspace,omitempty" yaml:"workspace,omitempty"`

	SessionSecret string `json:"sessionSecret,omitempty" yaml:"sessionSecret,omitempty"`

	Options map[string]string `json:"options,omitempty" yaml:"options,omitempty"`

	EnvVars               map[string]string `json:"envVars,omitempty" yaml:"envVars,omitempty"`
	EnvVarsFromConfigMaps []string          `json:"envVarsFromConfigMaps,omitempty" yaml:"envVarsFromConfigMaps,omitempty"`
	EnvVarsFromSecrets    []string          `json:"envVarsFromSecrets,omitempty" yaml:"envVarsFromSecrets,omitempty"`
}

// IsEphemeral reports whether the session has no backing workspace.
func (s SessionSpec) IsEphemeral() bool {
	return strings.TrimSpace(s.Workspace) == ""
}

// SessionStatus defines the observed state of Session
type SessionStatus struct {
	ResourceStatus `json:",inline" yaml:",inline"`

	// URL is set once the session is reachable.
	URL string `json:"url,omitempty" yaml:"url,omitempty"`

	// Error holds a serialized TheiaCloudError when the session failed.
	Error string `json:"error,omitempty" yaml:"error,omitempty"`

	// LastActivity in epoch milliseconds.
	LastActivity int64 `json:"lastActivity,omitempty" yaml:"lastActivity,omitempty"`

	ServiceCreation    *StatusStep `json:"serviceCreation,omitempty" yaml:"serviceCreation,omitempty"`
	ConfigMapCreation  *StatusStep `json:"configMapCreation,omitempty" yaml:"configMapCreation,omitempty"`
	DeploymentCreation *StatusStep `json:"deploymentCreation,omitempty" yaml:"deploymentCreation,omitempty"`
	IngressUpdate      *StatusStep `json:"ingressUpdate,omitempty" yaml:"ingressUpdate,omitempty"`
}

// +kubebuilder:object:root=true
// +kubebuilder:subresource:status
// +kubebuilder:printcolumn:name="User",type="string",JSONPath=".spec.user"
// +kubebuilder:printcolumn:name="AppDefinition",type="string",JSONPath=".spec.appDefinition"
// +kubebuilder:printcolumn:name="URL",type="string",JSONPath=".status.url"
// +kubebuilder:printcolumn:name="Status",type="string",JSONPath=".status.operatorStatus"
// +kubebuilder:printcolumn:name="Age",type="date",JSONPath=".metadata.creationTimestamp"

// Session is the Schema for the sessions API
type Session struct {
	metav1.TypeMeta   `json:",inline"`
	metav1.ObjectMeta `json:"metadata,omitempty"`

	Spec   SessionSpec   `json:"spec,omitempty"`
	Status SessionStatus `json:"status,omitempty"`
}

// +kubebuilder:object:root=true

// SessionList contains a list of Session
type SessionList struct {
	metav1.TypeMeta `json:",inline"`
	metav1.ListMeta `json:"metadata,omitempty"`
	Items           []Session `json:"items"`
}

func init() {
	SchemeBuilder.Register(&Session{}, &SessionList{})
}
