package local

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/paylink/pkg/channel"
)

type recordedEvents struct {
	sent      [][]byte
	contracts [][]byte
	destroyed []channel.CloseReason
}

func (e *recordedEvents) SendToServer(msg []byte) { e.sent = append(e.sent, msg) }

func (e *recordedEvents) ChannelOpen(contractID []byte) {
	e.contracts = append(e.contracts, contractID)
}

func (e *recordedEvents) DestroyConnection(reason channel.CloseReason) {
	e.destroyed = append(e.destroyed, reason)
}

func newProtocol(t *testing.T, maxValue int64) (*Protocol, *recordedEvents) {
	t.Helper()
	events := &recordedEvents{}
	proto := Factory()("host-1", maxValue, events).(*Protocol)
	return proto, events
}

func TestOpenAnnouncesContract(t *testing.T) {
	proto, events := newProtocol(t, 1000)

	proto.ConnectionOpen()
	require.Len(t, events.contracts, 1)
	assert.Len(t, events.contracts[0], 16)

	// Reopening the transport must not mint a second contract.
	proto.ConnectionOpen()
	assert.Len(t, events.contracts, 1)
}

func TestPaymentClampsToCapacity(t *testing.T) {
	proto, _ := newProtocol(t, 1000)
	proto.ConnectionOpen()

	applied, err := proto.IncrementPayment(600)
	require.NoError(t, err)
	assert.EqualValues(t, 600, applied)

	applied, err = proto.IncrementPayment(600)
	require.NoError(t, err)
	assert.EqualValues(t, 400, applied)
	assert.EqualValues(t, 1000, proto.Spent())
}

func TestExhaustedChannelIsNotSpendable(t *testing.T) {
	proto, _ := newProtocol(t, 100)
	proto.ConnectionOpen()

	_, err := proto.IncrementPayment(100)
	require.NoError(t, err)

	_, err = proto.IncrementPayment(1)
	require.Error(t, err)
	assert.True(t, channel.HasCode(err, channel.CodeInvalidState))
}

func TestNegativePaymentRejected(t *testing.T) {
	proto, _ := newProtocol(t, 100)

	_, err := proto.IncrementPayment(-5)
	require.Error(t, err)
	assert.True(t, channel.HasCode(err, channel.CodeValueOutOfRange))
}

func TestReceiveEchoesPayload(t *testing.T) {
	proto, events := newProtocol(t, 100)
	proto.ConnectionOpen()

	require.NoError(t, proto.ReceiveMessage([]byte("ping")))
	require.Len(t, events.sent, 1)
	assert.Equal(t, []byte("ping"), events.sent[0])
}

func TestReceiveRejectsEmptyMessage(t *testing.T) {
	proto, _ := newProtocol(t, 100)

	err := proto.ReceiveMessage(nil)
	require.Error(t, err)
	assert.True(t, channel.HasCode(err, channel.CodeInvalidMessage))
}

func TestCloseIsReportedOnce(t *testing.T) {
	proto, _ := newProtocol(t, 100)
	proto.ConnectionOpen()

	require.NoError(t, proto.Close())

	err := proto.Close()
	require.Error(t, err)
	assert.True(t, channel.HasCode(err, channel.CodeAlreadyClosed))

	_, err = proto.IncrementPayment(10)
	assert.True(t, channel.HasCode(err, channel.CodeInvalidState))
}
