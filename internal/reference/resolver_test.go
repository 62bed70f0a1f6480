package reference

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDelegate struct {
	calls int
	keys  map[string][]string
}

func (f *fakeDelegate) PathValue(path string) (string, error) { return "", nil }
func (f *fakeDelegate) ReplaceFollow(path string) (map[string]string, error) {
	return nil, nil
}
func (f *fakeDelegate) LiveChoices(path string) ([]string, error) { return f.LiveKeys(path) }
func (f *fakeDelegate) LiveKeys(path string) ([]string, error) {
	f.calls++
	return f.keys[path], nil
}

func TestCachingResolverMemoizesLiveKeys(t *testing.T) {
	fake := &fakeDelegate{keys: map[string][]string{"hosts": {"web-1", "web-2"}}}
	r := New(fake)

	keys, err := r.LiveKeys("hosts")
	require.NoError(t, err)
	assert.Equal(t, []string{"web-1", "web-2"}, keys)

	_, err = r.LiveKeys("hosts")
	require.NoError(t, err)
	assert.Equal(t, 1, fake.calls, "second call should be served from cache")
}

func TestCachingResolverInvalidateForcesRewalk(t *testing.T) {
	fake := &fakeDelegate{keys: map[string][]string{"hosts": {"web-1"}}}
	r := New(fake)

	_, err := r.LiveKeys("hosts")
	require.NoError(t, err)

	fake.keys["hosts"] = []string{"web-1", "web-2"}
	r.Invalidate("hosts")

	keys, err := r.LiveKeys("hosts")
	require.NoError(t, err)
	assert.Equal(t, []string{"web-1", "web-2"}, keys)
	assert.Equal(t, 2, fake.calls)
}

func TestCachingResolverPathValuePassesThrough(t *testing.T) {
	fake := &fakeDelegate{keys: map[string][]string{}}
	r := New(fake)
	_, err := r.PathValue("database.host")
	require.NoError(t, err)
}
