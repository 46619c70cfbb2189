package channel

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInboundValid(t *testing.T) {
	assert.True(t, Inbound{From: "whatsapp:+1", Body: "hi"}.Valid())
	assert.False(t, Inbound{From: "whatsapp:+1"}.Valid())
	assert.False(t, Inbound{Body: "hi"}.Valid())
}

func TestSenderFunc(t *testing.T) {
	var got string

	var s Sender = SenderFunc(func(_ context.Context, to, body string) (string, error) {
		got = to + "|" + body
		return "SM1", nil
	})

	sid, err := s.Send(context.Background(), "whatsapp:+1", "hello")
	require.NoError(t, err)
	assert.Equal(t, "SM1", sid)
	assert.Equal(t, "whatsapp:+1|hello", got)
}
