package transport

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tpeyrard/hivefuzz/pkg/fuzzing"
)

func TestMemoryTransportDispatch(t *testing.T) {
	tr := NewMemoryTransport()

	var gotHello *Hello
	var gotID NetID
	tr.Bind(Handlers{
		Hello: func(id NetID, msg Hello) {
			gotID = id
			gotHello = &msg
		},
	})

	a := tr.Connect()
	a.SendHello(Hello{Arch: fuzzing.ArchX8664, Cpus: 2})

	require.NotNil(t, gotHello)
	assert.Equal(t, a.ID(), gotID)
	assert.Equal(t, 2, gotHello.Cpus)
}

func TestMemoryTransportOutbox(t *testing.T) {
	tr := NewMemoryTransport()
	tr.Bind(Handlers{})
	a := tr.Connect()

	require.NoError(t, tr.SendStart(a.ID(), Start{Engine: fuzzing.EngineTriton}))
	require.NoError(t, tr.SendSeed(a.ID(), Seed{Type: fuzzing.SeedInput, Bytes: []byte("x")}))
	require.NoError(t, tr.SendStop(a.ID()))

	out := a.Outbox()
	require.Len(t, out, 3)
	assert.Equal(t, OutStart, out[0].Kind)
	assert.Equal(t, OutSeed, out[1].Kind)
	assert.Equal(t, OutStop, out[2].Kind)
}

func TestMemoryTransportUnknownAgent(t *testing.T) {
	tr := NewMemoryTransport()
	tr.Bind(Handlers{})

	assert.Error(t, tr.SendSeed("nobody", Seed{}))
	// Stops to unknown ids are dropped silently; there is nobody to stop.
	assert.NoError(t, tr.SendStop("nobody"))
}

// A handler sending outbound messages must not deadlock the dispatcher.
func TestHandlerMaySendDuringDispatch(t *testing.T) {
	tr := NewMemoryTransport()
	var peer *MemoryAgent

	tr.Bind(Handlers{
		Seed: func(id NetID, msg Seed) {
			require.NoError(t, tr.SendSeed(peer.ID(), msg))
		},
	})

	a := tr.Connect()
	peer = tr.Connect()
	a.SendSeed(Seed{Type: fuzzing.SeedInput, Bytes: []byte("relay")})

	require.Len(t, peer.Outbox(), 1)
}

func TestAlertUpdateCodec(t *testing.T) {
	u := AlertUpdate{ID: 7, Covered: true}
	decoded, err := DecodeAlertUpdate(u.Encode())
	require.NoError(t, err)
	assert.Equal(t, u, decoded)

	_, err = DecodeAlertUpdate([]byte("{broken"))
	assert.Error(t, err)
}
