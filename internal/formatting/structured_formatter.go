package formatting

import (
	"encoding/json"
	"fmt"
	"io"

	"sigs.k8s.io/yaml"

	"theiacloud/pkg/apis/theiacloud/v1beta"
)

// structuredFormatter prints complete resources, one document per list.
type structuredFormatter struct {
	marshal func(v interface{}) ([]byte, error)
}

func (f structuredFormatter) FormatAppDefinitions(w io.Writer, items []v1beta.AppDefinition) error {
	return f.write(w, nonNil(items))
}

func (f structuredFormatter) FormatSessions(w io.Writer, items []v1beta.Session) error {
	return f.write(w, nonNil(items))
}

func (f structuredFormatter) FormatWorkspaces(w io.Writer, items []v1beta.Workspace) error {
	return f.write(w, nonNil(items))
}

func (f structuredFormatter) write(w io.Writer, v interface{}) error {
	data, err := f.marshal(v)
	if err != nil {
		return fmt.Errorf("failed to format output: %w", err)
	}
	if len(data) == 0 || data[len(data)-1] != '\n' {
		data = append(data, '\n')
	}
	_, err = w.Write(data)
	return err
}

func marshalJSON(v interface{}) ([]byte, error) {
	return json.MarshalIndent(v, "", "  ")
}

// marshalYAML goes through the json tags so that object metadata keeps its
// Kubernetes field names.
func marshalYAML(v interface{}) ([]byte, error) {
	return yaml.Marshal(v)
}

// nonNil makes empty lists print as [] instead of null.
func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
