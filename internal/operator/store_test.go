package operator

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"theiacloud/pkg/apis/theiacloud/v1beta"
)

func TestStore(t *testing.T) {
	store := NewStore[*v1beta.Session]()
	store.Put(testSession("b"))
	store.Put(testSession("a"))

	replaced := testSession("b")
	replaced.Status.URL = "ws.example.com/b/"
	store.Put(replaced)

	require.Equal(t, 2, store.Len())
	got, ok := store.Get("uid-b")
	require.True(t, ok)
	assert.Equal(t, "ws.example.com/b/", got.Status.URL)

	list := store.List()
	require.Len(t, list, 2)
	assert.Equal(t, "a", list[0].Name)
	assert.Equal(t, "b", list[1].Name)

	found, ok := store.Find(func(s *v1beta.Session) bool { return s.Status.URL != "" })
	require.True(t, ok)
	assert.Equal(t, "b", found.Name)

	store.Delete("uid-b")
	_, ok = store.Get("uid-b")
	assert.False(t, ok)
	_, ok = store.Find(func(s *v1beta.Session) bool { return s.Name == "b" })
	assert.False(t, ok)
}

func TestStoreConcurrentAccess(t *testing.T) {
	store := NewStore[*v1beta.Session]()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			store.Put(testSession("s"))
		}()
		go func() {
			defer wg.Done()
			_ = store.List()
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, store.Len())
}
