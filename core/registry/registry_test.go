package registry

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/flocklink/fleetd/core/model"
)

func TestRegistryFindByID(t *testing.T) {
	reg := NewUAVRegistry()
	reg.Add("v1", &model.UAV{ID: "v1"})

	uav, err := reg.FindByID("v1")
	require.NoError(t, err)
	require.Equal(t, "v1", uav.ID)

	_, err = reg.FindByID("v2")
	require.Error(t, err)
	require.True(t, model.IsNotFound(err))
	require.Equal(t, "no such UAV: v2", err.Error())
}

func TestRegistryIDsSorted(t *testing.T) {
	reg := NewClockRegistry()
	reg.Add("mission", model.Clock{ID: "mission"})
	reg.Add("system", model.Clock{ID: "system"})
	reg.Add("gps", model.Clock{ID: "gps"})
	require.Equal(t, []string{"gps", "mission", "system"}, reg.IDs())
}

func TestRegistryChangeEvents(t *testing.T) {
	reg := NewUAVRegistry()
	ch := reg.Changed().Subscribe()

	reg.Add("v1", &model.UAV{ID: "v1"})
	ev := <-ch
	require.Equal(t, EntryAdded, ev.Kind)
	require.Equal(t, "v1", ev.ID)

	reg.Add("v1", &model.UAV{ID: "v1"})
	ev = <-ch
	require.Equal(t, EntryUpdated, ev.Kind)

	_, ok := reg.Remove("v1")
	require.True(t, ok)
	ev = <-ch
	require.Equal(t, EntryRemoved, ev.Kind)

	_, ok = reg.Remove("v1")
	require.False(t, ok)
	require.Equal(t, 0, reg.Len())
}
