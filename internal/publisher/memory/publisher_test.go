package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPublisherRecordsMessages(t *testing.T) {
	t.Parallel()

	pub := New()
	id1, err := pub.Publish(context.Background(), "checks", map[string]string{"url": "https://example.com"})
	require.NoError(t, err)
	require.Equal(t, "mem-1", id1)

	id2, err := pub.Publish(context.Background(), "runs", "payload")
	require.NoError(t, err)
	require.Equal(t, "mem-2", id2)

	msgs := pub.Messages()
	require.Len(t, msgs, 2)
	require.Equal(t, "checks", msgs[0].Topic)
	require.Equal(t, "runs", msgs[1].Topic)

	// Mutating the returned slice must not affect internal state.
	msgs[0].Topic = "modified"
	require.Equal(t, "checks", pub.Messages()[0].Topic)
}
