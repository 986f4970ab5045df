package formatting

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"sigs.k8s.io/yaml"

	"theiacloud/pkg/apis/theiacloud/v1beta"
)

var created = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func sessions() []v1beta.Session {
	return []v1beta.Session{
		{
			ObjectMeta: metav1.ObjectMeta{Name: "ready", CreationTimestamp: metav1.NewTime(created)},
			Spec:       v1beta.SessionSpec{Name: "ready", User: "foo@example.com", AppDefinition: "theia"},
			Status: v1beta.SessionStatus{
				ResourceStatus: v1beta.ResourceStatus{OperatorStatus: v1beta.StatusHandled},
				URL:            "ws.example.com/ready/",
			},
		},
		{
			ObjectMeta: metav1.ObjectMeta{Name: "failed", CreationTimestamp: metav1.NewTime(created)},
			Spec:       v1beta.SessionSpec{Name: "failed", User: "bar@example.com", AppDefinition: "theia", Workspace: "ws"},
			Status:     v1beta.SessionStatus{Error: v1beta.ErrSessionServerLimitReached.String()},
		},
	}
}

func TestParseFormat(t *testing.T) {
	format, err := ParseFormat("")
	require.NoError(t, err)
	assert.Equal(t, FormatTable, format)

	format, err = ParseFormat(" YAML ")
	require.NoError(t, err)
	assert.Equal(t, FormatYAML, format)

	_, err = ParseFormat("xml")
	assert.ErrorContains(t, err, "unsupported output format")
}

func TestTableFormatterSessions(t *testing.T) {
	f := &TableFormatter{now: func() time.Time { return created.Add(3 * time.Hour) }}

	var out bytes.Buffer
	require.NoError(t, f.FormatSessions(&out, sessions()))

	rendered := out.String()
	assert.Contains(t, rendered, "NAME")
	assert.Contains(t, rendered, "ws.example.com/ready/")
	assert.Contains(t, rendered, "HANDLED")
	assert.Contains(t, rendered, "NEW", "a session without status is shown as new")
	assert.Contains(t, rendered, "3h")
	assert.NotContains(t, rendered, "\x1b[", "no colors unless enabled")
}

func TestTableFormatterAppDefinitions(t *testing.T) {
	maxInstances := 5
	f := &TableFormatter{now: func() time.Time { return created }}
	items := []v1beta.AppDefinition{{
		ObjectMeta: metav1.ObjectMeta{Name: "theia", CreationTimestamp: metav1.NewTime(created)},
		Spec: v1beta.AppDefinitionSpec{
			Name:         "theia",
			Image:        "theiacloud/theia-cloud-demo:latest",
			MinInstances: 1,
			MaxInstances: &maxInstances,
			Timeout:      &v1beta.Timeout{Limit: 30},
		},
	}}

	var out bytes.Buffer
	require.NoError(t, f.FormatAppDefinitions(&out, items))
	assert.Contains(t, out.String(), "theiacloud/theia-cloud-demo:latest")
	assert.Contains(t, out.String(), "30m")
}

func TestTableFormatterEmpty(t *testing.T) {
	f := New(Options{Format: FormatTable})

	var out bytes.Buffer
	require.NoError(t, f.FormatWorkspaces(&out, nil))
	assert.Equal(t, "No workspaces found\n", out.String())
}

func TestStructuredFormatters(t *testing.T) {
	t.Run("json", func(t *testing.T) {
		var out bytes.Buffer
		require.NoError(t, New(Options{Format: FormatJSON}).FormatSessions(&out, sessions()))

		var decoded []v1beta.Session
		require.NoError(t, json.Unmarshal(out.Bytes(), &decoded))
		require.Len(t, decoded, 2)
		assert.Equal(t, "ws.example.com/ready/", decoded[0].Status.URL)
	})

	t.Run("yaml keeps kubernetes field names", func(t *testing.T) {
		var out bytes.Buffer
		require.NoError(t, New(Options{Format: FormatYAML}).FormatSessions(&out, sessions()))
		assert.Contains(t, out.String(), "creationTimestamp:")

		var decoded []v1beta.Session
		require.NoError(t, yaml.Unmarshal(out.Bytes(), &decoded))
		assert.Equal(t, "ws", decoded[1].Spec.Workspace)
	})

	t.Run("empty list", func(t *testing.T) {
		var out bytes.Buffer
		require.NoError(t, New(Options{Format: FormatJSON}).FormatWorkspaces(&out, nil))
		assert.Equal(t, "[]\n", out.String())
	})
}
