package generic

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPoolBuildsWhenEmpty(t *testing.T) {
	built := 0
	p := NewPool(func() *int {
		built++
		v := new(int)
		return v
	})

	v := p.Get()
	require.NotNil(t, v)
	require.Equal(t, 1, built)
}

func TestPoolReusesReturnedValues(t *testing.T) {
	p := NewPool(func() *int { return new(int) })

	v := p.Get()
	*v = 42
	p.Put(v)

	got := p.Get()
	require.Equal(t, 42, *got)
}

func TestHotPoolSeedsWarmValues(t *testing.T) {
	built := 0
	p := NewHotPool(func() *int {
		built++
		return new(int)
	}, 8)
	require.Equal(t, 8, built)

	// The seeded values satisfy Gets without building more.
	for i := 0; i < 8; i++ {
		p.Get()
	}
	require.Equal(t, 8, built)
}
