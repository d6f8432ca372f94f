package backend

import (
	"context"
	"errors"
	"image"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func staticFactory(name string, weight float64) Factory {
	return func() (Backend, error) {
		return NewStatic(name, weight, func(context.Context, image.Image) ([]Detection, error) {
			return []Detection{{Text: name, Confidence: 0.9}}, nil
		}), nil
	}
}

func TestRegistryAvailableSortedByWeight(t *testing.T) {
	r := NewRegistry()
	r.Register("low", 0.2, staticFactory("low", 0.2))
	r.Register("high", 0.4, staticFactory("high", 0.4))
	r.Register("mid", 0.3, staticFactory("mid", 0.3))

	names := r.AvailableNames()
	assert.Equal(t, []string{"high", "mid", "low"}, names)
}

func TestRegistryWeightTieBreaksByName(t *testing.T) {
	r := NewRegistry()
	r.Register("beta", 0.4, staticFactory("beta", 0.4))
	r.Register("alpha", 0.4, staticFactory("alpha", 0.4))

	assert.Equal(t, []string{"alpha", "beta"}, r.AvailableNames())
}

func TestRegistryFailedInitIsUnavailableNotError(t *testing.T) {
	calls := 0
	r := NewRegistry()
	r.Register("broken", 0.4, func() (Backend, error) {
		calls++
		return nil, errors.New("engine missing")
	})
	r.Register("ok", 0.2, staticFactory("ok", 0.2))

	assert.Equal(t, []string{"ok"}, r.AvailableNames())
	// A second query must not retry the failed factory.
	assert.Equal(t, []string{"ok"}, r.AvailableNames())
	assert.Equal(t, 1, calls)
}

func TestRegistryInitializesOnceUnderConcurrency(t *testing.T) {
	var calls int
	var mu sync.Mutex
	r := NewRegistry()
	r.Register("solo", 0.3, func() (Backend, error) {
		mu.Lock()
		calls++
		mu.Unlock()
		return staticFactory("solo", 0.3)()
	})

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.Available()
		}()
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, calls)
}

func TestRegistrySelect(t *testing.T) {
	r := NewRegistry()
	r.Register("a", 0.4, staticFactory("a", 0.4))
	r.Register("b", 0.3, staticFactory("b", 0.3))
	r.Register("c", 0.2, staticFactory("c", 0.2))

	selected := r.Select([]string{"c", "a"})
	require.Len(t, selected, 2)
	assert.Equal(t, "a", selected[0].Name())
	assert.Equal(t, "c", selected[1].Name())

	all := r.Select(nil)
	assert.Len(t, all, 3)

	none := r.Select([]string{"missing"})
	assert.Empty(t, none)
}

func TestRegisterDefaultWeight(t *testing.T) {
	r := NewRegistry()
	r.Register("plain", 0, staticFactory("plain", 0))

	backends := r.Available()
	require.Len(t, backends, 1)
	// The factory-produced backend carries its own weight; the registry
	// fallback only affects sorting for zero-weight registrations.
	assert.Equal(t, "plain", backends[0].Name())
}

func TestDetectionHasBox(t *testing.T) {
	assert.False(t, Detection{Text: "x"}.HasBox())
	assert.True(t, Detection{Text: "x", Box: image.Rect(0, 0, 10, 10)}.HasBox())
}
