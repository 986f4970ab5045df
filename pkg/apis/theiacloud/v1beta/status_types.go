package v1beta

// OperatorStatus is the handling state the operator records on every resource.
// +kubebuilder:validation:Enum=NEW;HANDLING;HANDLED;ERROR
type OperatorStatus string

const (
	StatusNew      OperatorStatus = "NEW"
	StatusHandling OperatorStatus = "HANDLING"
	StatusHandled  OperatorStatus = "HANDLED"
	StatusError    OperatorStatus = "ERROR"
)

// ResourceStatus is the status shape shared by all theia.cloud resources.
type ResourceStatus struct {
	OperatorStatus  OperatorStatus `json:"operatorStatus,omitempty" yaml:"operatorStatus,omitempty"`
	OperatorMessage string         `json:"operatorMessage,omitempty" yaml:"operatorMessage,omitempty"`
}

// Current returns the operator status, treating an unset status as NEW.
func (s ResourceStatus) Current() OperatorStatus {
	if s.OperatorStatus == "" {
		return StatusNew
	}
	return s.OperatorStatus
}

// StatusStep records progress of one named sub-step of handling.
type StatusStep struct {
	Status  string `json:"status,omitempty" yaml:"status,omitempty"`
	Message string `json:"message,omitempty" yaml:"message,omitempty"`
}

// NewStatusStep is a shorthand for building a step value.
func NewStatusStep(status, message string) *StatusStep {
	return &StatusStep{Status: status, Message: message}
}
