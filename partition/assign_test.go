package partition

import (
	"testing"

	"github.com/listdb/listdb/errors"
	"github.com/stretchr/testify/require"
)

func TestNewAssigner(t *testing.T) {
	a, err := NewAssigner(&Config{})
	require.NoError(t, err)
	require.Equal(t, uint32(defaultCount), a.Count())
	require.Equal(t, defaultGeoResolution, a.Resolution())

	_, err = NewAssigner(&Config{Count: 4, GeoResolution: 16})
	require.Error(t, err)

	// the entity id holds 16 partition bits, counts above that would
	// truncate ids
	a, err = NewAssigner(&Config{Count: 1 << 16})
	require.NoError(t, err)
	require.Equal(t, uint32(1<<16), a.Count())
	_, err = NewAssigner(&Config{Count: 1<<16 + 1})
	require.Equal(t, errors.ErrExceedMaxPartitions, err)
}

func TestAssign(t *testing.T) {
	a, err := NewAssigner(&Config{Count: 8})
	require.NoError(t, err)

	for seq := uint64(0); seq < 1000; seq++ {
		pid := a.Assign(seq)
		require.Less(t, pid, a.Count())
		require.Equal(t, pid, a.Assign(seq))
	}
}

func TestAssignGeo(t *testing.T) {
	a, err := NewAssigner(&Config{Count: 8, GeoResolution: 7})
	require.NoError(t, err)

	// a few meters apart, same cell at resolution 7, same partition
	p1 := a.AssignGeo(52.520008, 13.404954)
	p2 := a.AssignGeo(52.520050, 13.404990)
	require.Equal(t, p1, p2)
	require.Equal(t, a.CellOf(52.520008, 13.404954), a.CellOf(52.520050, 13.404990))

	// continents apart, different cells
	require.NotEqual(t,
		a.CellOf(52.520008, 13.404954),
		a.CellOf(-33.865143, 151.209900))

	require.Less(t, a.AssignGeo(-33.865143, 151.209900), a.Count())
}
