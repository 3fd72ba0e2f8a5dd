package dedup

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSeenOrRecordFirstThenDuplicate(t *testing.T) {
	c := New()
	require.False(t, c.SeenOrRecord("m1"), "expected first sighting of m1 to report unseen")
	require.True(t, c.SeenOrRecord("m1"), "expected second sighting of m1 to report seen")
	require.True(t, c.SeenOrRecord("m1"), "expected back-to-back duplicate to still report seen")
}

func TestCapacityBounded(t *testing.T) {
	c := New()
	for i := 0; i < Capacity+250; i++ {
		c.SeenOrRecord(fmt.Sprintf("id-%d", i))
		require.LessOrEqual(t, c.Len(), Capacity)
	}
}

func TestOverflowEvictsOldestHalf(t *testing.T) {
	c := New()
	for i := 0; i < Capacity; i++ {
		c.SeenOrRecord(fmt.Sprintf("id-%d", i))
	}
	// One more insert past capacity triggers eviction of the oldest batch.
	c.SeenOrRecord("id-overflow")
	require.False(t, c.SeenOrRecord("id-0"), "expected the oldest id to have been evicted")
	require.True(t, c.SeenOrRecord(fmt.Sprintf("id-%d", Capacity-1)), "expected the most recently inserted original id to still be present")
}
