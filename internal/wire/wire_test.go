package wire_test

import (
	"bytes"
	"testing"

	"github.com/sgerwk/timeserver/internal/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	in := wire.Message{Tag: wire.SLEEP, Client: 7, Time: -42}

	var buf bytes.Buffer
	require.NoError(t, wire.Encode(&buf, in))

	out, err := wire.Decode(&buf)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestWakeTagRoundTrip(t *testing.T) {
	for _, c := range []int64{0, 1, 199} {
		tag := wire.WAKE(c)
		got, ok := wire.IsWake(tag)
		require.True(t, ok)
		assert.Equal(t, c, got)
	}
}

func TestIsWakeRejectsOtherTags(t *testing.T) {
	for _, tag := range []wire.Tag{wire.NONE, wire.REGISTER, wire.TOSERVER, wire.CLIENTID} {
		_, ok := wire.IsWake(tag)
		assert.False(t, ok, "tag %s should not be a WAKE tag", tag)
	}
}

func TestSelectors(t *testing.T) {
	notRunning := wire.NotRunning()
	for _, tag := range []wire.Tag{wire.REGISTER, wire.UNREGISTER, wire.PID, wire.RUN, wire.TIMEOUT} {
		assert.True(t, notRunning.Match(tag), "NotRunning should match %s", tag)
	}
	for _, tag := range []wire.Tag{wire.QUERY, wire.SLEEP, wire.CANCEL} {
		assert.False(t, notRunning.Match(tag), "NotRunning should not match %s", tag)
	}

	toServer := wire.ToServer()
	for _, tag := range []wire.Tag{wire.REGISTER, wire.QUERY, wire.SLEEP, wire.CANCEL} {
		assert.True(t, toServer.Match(tag), "ToServer should match %s", tag)
	}
	assert.False(t, toServer.Match(wire.CLIENTID))

	exact := wire.Exact(wire.WAKE(3))
	assert.True(t, exact.Match(wire.WAKE(3)))
	assert.False(t, exact.Match(wire.WAKE(4)))
}

func TestTagStringUnknown(t *testing.T) {
	assert.Equal(t, "WAKE(5)", wire.WAKE(5).String())
	assert.Contains(t, wire.Tag(9999).String(), "9999")
}
