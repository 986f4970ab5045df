package v1beta

import (
	"strings"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// WorkspaceSpec defines the desired state of Workspace
type WorkspaceSpec struct {
	// +kubebuilder:validation:Required
	Name string `json:"name" yaml:"name"`

	Label string `json:"label,omitempty" yaml:"label,omitempty"`

	// AppDefinition is the app definition last used with this workspace.
	AppDefinition string `json:"appDefinition,omitempty" yaml:"appDefinition,omitempty"`

	// +kubebuilder:validation:Required
	User string `json:"user" yaml:"user"`

	// Storage is the name of the bound claim, written by the operator.
	Storage string `json:"storage,omitempty" yaml:"storage,omitempty"`
}

// HasStorage reports whether storage was provisioned for the workspace.
func (s WorkspaceSpec) HasStorage() bool {
	return strings.TrimSpace(s.Storage) != ""
}

// WorkspaceStatus defines the observed state of Workspace
type WorkspaceStatus struct {
	ResourceStatus `json:",inline" yaml:",inline"`

	// Error holds a serialized TheiaCloudError when provisioning failed.
	Error string `json:"error,omitempty" yaml:"error,omitempty"`

	VolumeClaim  *StatusStep `json:"volumeClaim,omitempty" yaml:"volumeClaim,omitempty"`
	VolumeAttach *StatusStep `json:"volumeAttach,omitempty" yaml:"volumeAttach,omitempty"`
}

// +kubebuilder:object:root=true
// +kubebuilder:subresource:status
// +kubebuilder:resource:shortName=ws
// +kubebuilder:printcolumn:name="User",type="string",JSONPath=".spec.user"
// +kubebuilder:printcolumn:name="Storage",type="string",JSONPath=".spec.storage"
// +kubebuilder:printcolumn:name="Status",type="string",JSONPath=".status.operatorStatus"
// +kubebuilder:printcolumn:name="Age",type="date",JSONPath=".metadata.creationTimestamp"

// Workspace is the Schema for the workspaces API
type Workspace struct {
	metav1.TypeMeta   `json:",inline"`
	metav1.ObjectMeta `json:"metadata,omitempty"`

	Spec   WorkspaceSpec   `json:"spec,omitempty"`
	Status WorkspaceStatus `json:"status,omitempty"`
}

// +kubebuilder:object:root=true

// WorkspaceList contains a list of Workspace
type WorkspaceList struct {
	metav1.TypeMeta `json:",inline"`
	metav1.ListMeta `json:"metadata,omitempty"`
	Items           []Workspace `json:"items"`
}

func init() {
	SchemeBuilder.Register(&Workspace{}, &WorkspaceList{})
}
