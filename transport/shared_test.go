package transport

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShared_TryReadSkipsWhileLeased(t *testing.T) {
	fake := &fakeSerial{}
	s, _ := newTestSerial(t, Config{Baud: 9600}, fake)
	shared := NewShared(s)
	require.NoError(t, shared.Open())

	fake.feed(0x3C, 0x80)

	lease := shared.LeaseRead()
	_, ok, err := shared.TryReadAvailable()
	require.NoError(t, err)
	assert.False(t, ok, "monitor must not steal bytes from a leased receive")

	b, err := lease.ReadAvailable()
	require.NoError(t, err)
	assert.Equal(t, []byte{0x3C, 0x80}, b)
	lease.Release()
	lease.Release()

	_, err = lease.ReadAvailable()
	require.ErrorIs(t, err, ErrPortClosed)

	fake.feed(0x7C)
	b, ok, err = shared.TryReadAvailable()
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte{0x7C}, b)
}

func TestShared_ReadWaitsForLease(t *testing.T) {
	fake := &fakeSerial{}
	s, _ := newTestSerial(t, Config{Baud: 9600}, fake)
	shared := NewShared(s)
	require.NoError(t, shared.Open())

	lease := shared.LeaseRead()
	done := make(chan struct{})
	go func() {
		_, _ = shared.ReadAvailable()
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("ReadAvailable returned while a lease was held")
	case <-time.After(30 * time.Millisecond):
	}

	lease.Release()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("ReadAvailable did not resume after release")
	}
}

func TestShared_WritesDuringLease(t *testing.T) {
	fake := &fakeSerial{}
	s, _ := newTestSerial(t, Config{Baud: 9600}, fake)
	shared := NewShared(s)
	require.NoError(t, shared.Open())

	lease := shared.LeaseRead()
	defer lease.Release()

	_, err := shared.Write([]byte{0x3C})
	require.NoError(t, err)
	require.NoError(t, shared.SetControlLine(LineRTS, true))
	assert.Equal(t, Capabilities{SupportsRTS: true, SupportsDTR: true}, shared.Capabilities())
	assert.Same(t, s, shared.Unwrap())
}
