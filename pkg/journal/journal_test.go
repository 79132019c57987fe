package journal

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShipmentsRoundTrip(t *testing.T) {
	dir := t.TempDir()

	j, err := Open(dir)
	require.NoError(t, err)

	require.NoError(t, j.RecordShipment("Cli-0-TT", "aaaa"))
	require.NoError(t, j.RecordShipment("Cli-0-TT", "bbbb"))
	require.NoError(t, j.RecordShipment("Cli-1-HF", "aaaa"))
	require.NoError(t, j.Close())

	// Reopen: shipments survive a restart and stay per-client.
	j, err = Open(dir)
	require.NoError(t, err)
	defer j.Close()

	sent, err := j.Shipments("Cli-0-TT")
	require.NoError(t, err)
	assert.Len(t, sent, 2)
	assert.Contains(t, sent, "aaaa")
	assert.Contains(t, sent, "bbbb")

	other, err := j.Shipments("Cli-1-HF")
	require.NoError(t, err)
	assert.Len(t, other, 1)

	empty, err := j.Shipments("Cli-9-TT")
	require.NoError(t, err)
	assert.Empty(t, empty)
}
