package v1beta

import (
	"fmt"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"sigs.k8s.io/yaml"
)

// Historical session API versions that carried the terminal outcome on the spec.
const (
	SessionAPIVersionV1beta5 = "theia.cloud/v1beta5"
	SessionAPIVersionV1beta6 = "theia.cloud/v1beta6"
)

// legacySessionSpec is the wire shape of the spec in the historical versions.
type legacySessionSpec struct {
	Name                  string            `json:"name"`
	AppDefinition         string            `json:"appDefinition"`
	User                  string            `json:"user"`
	URL                   string            `json:"url,omitempty"`
	Error                 string            `json:"error,omitempty"`
	Workspace             string            `json:"workspace,omitempty"`
	LastActivity          int64             `json:"lastActivity,omitempty"`
	SessionSecret         string            `json:"sessionSecret,omitempty"`
	EnvVars               map[string]string `json:"envVars,omitempty"`
	EnvVarsFromConfigMaps []string          `json:"envVarsFromConfigMaps,omitempty"`
	EnvVarsFromSecrets    []string          `json:"envVarsFromSecrets,omitempty"`
}

type legacySession struct {
	metav1.TypeMeta   `json:",inline"`
	metav1.ObjectMeta `json:"metadata,omitempty"`

	Spec   legacySessionSpec `json:"spec,omitempty"`
	Status ResourceStatus    `json:"status,omitempty"`
}

// IsLegacySessionAPIVersion reports whether apiVersion uses the historical wire shape.
func IsLegacySessionAPIVersion(apiVersion string) bool {
	return apiVersion == SessionAPIVersionV1beta5 || apiVersion == SessionAPIVersionV1beta6
}

// DecodeSession parses a JSON or YAML session document of the given API version
// into the canonical Session. An empty apiVersion is read from the document.
func DecodeSession(apiVersion string, raw []byte) (*Session, error) {
	if apiVersion == "" {
		var meta metav1.TypeMeta
		if err := yaml.Unmarshal(raw, &meta); err != nil {
			return nil, fmt.Errorf("failed to read session api version: %w", err)
		}
		apiVersion = meta.APIVersion
	}

	if !IsLegacySessionAPIVersion(apiVersion) {
		session := &Session{}
		if err := yaml.Unmarshal(raw, session); err != nil {
			return nil, fmt.Errorf("failed to decode session %s: %w", apiVersion, err)
		}
		session.APIVersion = GroupVersion.String()
		session.Kind = KindSession
		return session, nil
	}

	legacy := &legacySession{}
	if err := yaml.Unmarshal(raw, legacy); err != nil {
		return nil, fmt.Errorf("failed to decode session %s: %w", apiVersion, err)
	}
	return &Session{
		TypeMeta:   metav1.TypeMeta{APIVersion: GroupVersion.String(), Kind: KindSession},
		ObjectMeta: legacy.ObjectMeta,
		Spec: SessionSpec{
			Name:                  legacy.Spec.Name,
			AppDefinition:         legacy.Spec.AppDefinition,
			User:                  legacy.Spec.User,
			Workspace:             legacy.Spec.Workspace,
			SessionSecret:         legacy.Spec.SessionSecret,
			EnvVars:               legacy.Spec.EnvVars,
			EnvVarsFromConfigMaps: legacy.Spec.EnvVarsFromConfigMaps,
			EnvVarsFromSecrets:    legacy.Spec.EnvVarsFromSecrets,
		},
		Status: SessionStatus{
			ResourceStatus: legacy.Status,
			URL:            legacy.Spec.URL,
			Error:          legacy.Spec.Error,
			LastActivity:   legacy.Spec.LastActivity,
		},
	}, nil
}

// EncodeSession renders a canonical Session in the wire shape of apiVersion as YAML.
// Options are dropped for legacy versions, which never had them.
func EncodeSession(session *Session, apiVersion string) ([]byte, error) {
	if session == nil {
		return nil, fmt.Errorf("session is nil")
	}
	if !IsLegacySessionAPIVersion(apiVersion) {
		out := session.DeepCopy()
		out.APIVersion = GroupVersion.String()
		out.Kind = KindSession
		return yaml.Marshal(out)
	}

	legacy := &legacySession{
		TypeMeta:   metav1.TypeMeta{APIVersion: apiVersion, Kind: KindSession},
		ObjectMeta: *session.ObjectMeta.DeepCopy(),
		Spec: legacySessionSpec{
			Name:                  session.Spec.Name,
			AppDefinition:         session.Spec.AppDefinition,
			User:                  session.Spec.User,
			URL:                   session.Status.URL,
			Error:                 session.Status.Error,
			Workspace:             session.Spec.Workspace,
			LastActivity:          session.Status.LastActivity,
			SessionSecret:         session.Spec.SessionSecret,
			EnvVars:               session.Spec.EnvVars,
			EnvVarsFromConfigMaps: session.Spec.EnvVarsFromConfigMaps,
			EnvVarsFromSecrets:    session.Spec.EnvVarsFromSecrets,
		},
		Status: session.Status.ResourceStatus,
	}
	return yaml.Marshal(legacy)
}
