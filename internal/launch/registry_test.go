package launch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"theiacloud/pkg/apis/theiacloud/v1beta"
)

func session(name, url string) *v1beta.Session {
	s := &v1beta.Session{ObjectMeta: metav1.ObjectMeta{Name: name}}
	s.Status.URL = url
	return s
}

func TestRegistryReleasesMatchingWaiterOnce(t *testing.T) {
	r := newRegistry[*v1beta.Session]()
	_, done := r.register("a", SessionCompleted)
	_, other := r.register("b", SessionCompleted)
	require.Equal(t, 2, r.pending())

	assert.Equal(t, 0, r.observe(session("a", "")), "incomplete versions do not release")
	assert.Equal(t, 0, r.observe(session("c", "ws.example.com/c/")), "other names do not release")

	assert.Equal(t, 1, r.observe(session("a", "ws.example.com/a/")))
	got := <-done
	assert.Equal(t, "ws.example.com/a/", got.Status.URL)

	assert.Equal(t, 0, r.observe(session("a", "ws.example.com/a/")), "released waiters are gone")
	assert.Equal(t, 1, r.pending())
	assert.Empty(t, other)
}

func TestRegistryDeliversCopies(t *testing.T) {
	r := newRegistry[*v1beta.Session]()
	_, done := r.register("a", SessionCompleted)

	observed := session("a", "ws.example.com/a/")
	r.observe(observed)
	observed.Status.URL = "changed"

	assert.Equal(t, "ws.example.com/a/", (<-done).Status.URL)
}

func TestRegistryDeregister(t *testing.T) {
	r := newRegistry[*v1beta.Session]()
	id, _ := r.register("a", SessionCompleted)
	r.deregister(id)
	r.deregister(id)

	assert.Equal(t, 0, r.pending())
	assert.Equal(t, 0, r.observe(session("a", "ws.example.com/a/")))
}

func TestRegistryReleasesAllWaitersOfOneName(t *testing.T) {
	r := newRegistry[*v1beta.Session]()
	_, first := r.register("a", SessionCompleted)
	_, second := r.register("a", SessionCompleted)

	assert.Equal(t, 2, r.observe(session("a", "ws.example.com/a/")))
	assert.NotNil(t, <-first)
	assert.NotNil(t, <-second)
}
