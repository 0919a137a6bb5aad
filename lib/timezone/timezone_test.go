package timezone

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLocation(t *testing.T) {
	require.Equal(t, "Africa/Harare", Location.String())

	now := Now()
	require.Equal(t, Location, now.Location())
	_, offset := now.Zone()
	require.Equal(t, 2*60*60, offset)

	require.WithinDuration(t, time.Now(), now, time.Second)
}
