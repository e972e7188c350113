package remote

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cwsl/sdrcore/mailbox"
	"github.com/cwsl/sdrcore/message"
)

// fakeAnalyzer answers inspector commands with a canned response,
// standing in for a real *sdrcore.Analyzer's inbox/outbox pair.
type fakeAnalyzer struct {
	inbox, outbox *mailbox.Mailbox
}

func newFakeAnalyzer(respond func(*message.InspectorMessage) *message.InspectorMessage) *fakeAnalyzer {
	fa := &fakeAnalyzer{inbox: mailbox.New(), outbox: mailbox.New()}
	go func() {
		for {
			env := fa.inbox.Read()
			cmd, ok := env.Payload.(*message.InspectorMessage)
			if !ok {
				continue
			}
			fa.outbox.Write(message.TagInspector, respond(cmd))
		}
	}()
	return fa
}

func (fa *fakeAnalyzer) Inbox() *mailbox.Mailbox  { return fa.inbox }
func (fa *fakeAnalyzer) Outbox() *mailbox.Mailbox { return fa.outbox }

func TestControlServerOpenReturnsHandle(t *testing.T) {
	fa := newFakeAnalyzer(func(cmd *message.InspectorMessage) *message.InspectorMessage {
		require.Equal(t, message.KindOpen, cmd.Kind)
		return &message.InspectorMessage{Kind: message.KindOpen, Handle: message.Handle(42)}
	})
	srv := NewControlServer(fa)

	resp, err := srv.Open(context.Background(), &OpenRequest{Class: "am", FrequencyHz: 7_040_000})
	require.NoError(t, err)
	assert.Equal(t, uint64(42), resp.Handle)
}

func TestControlServerOpenPropagatesError(t *testing.T) {
	fa := newFakeAnalyzer(func(cmd *message.InspectorMessage) *message.InspectorMessage {
		return &message.InspectorMessage{Kind: message.KindOpen, Error: "no vtable registered"}
	})
	srv := NewControlServer(fa)

	_, err := srv.Open(context.Background(), &OpenRequest{Class: "am"})
	assert.Error(t, err)
}

func TestControlServerSetFrequencyReturnsStatus(t *testing.T) {
	fa := newFakeAnalyzer(func(cmd *message.InspectorMessage) *message.InspectorMessage {
		require.Equal(t, message.KindSetFreq, cmd.Kind)
		require.Equal(t, float64(14_070_000), cmd.NewFrequencyHz)
		return &message.InspectorMessage{Kind: message.KindSetFreq}
	})
	srv := NewControlServer(fa)

	resp, err := srv.SetFrequency(context.Background(), &SetFrequencyRequest{Handle: 1, FrequencyHz: 14_070_000})
	require.NoError(t, err)
	assert.True(t, resp.OK)
}

func TestControlServerRoundTripTimesOut(t *testing.T) {
	fa := &fakeAnalyzer{inbox: mailbox.New(), outbox: mailbox.New()}
	srv := NewControlServer(fa)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := srv.Open(ctx, &OpenRequest{Class: "am"})
	assert.Error(t, err)
}
