package hermes

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MikeSquared-Agency/Cortex/internal/natstest"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSubjects(t *testing.T) {
	assert.Equal(t, "cortex.assignment.ct.assigned", SubjectAssigned("ct"))
	assert.Equal(t, "cortex.assignment.mr.unmatched", SubjectUnmatched("mr"))
	assert.Equal(t, "cortex.ledger.xray.reset", SubjectReset("xray"))
}

func TestNATSClientPublishSubscribe(t *testing.T) {
	ns, _ := natstest.Start(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	c, err := NewNATSClient(ctx, ns.ClientURL(), discardLogger())
	require.NoError(t, err)
	defer c.Close()

	got := make(chan AssignedEvent, 1)
	require.NoError(t, c.Subscribe("cortex.assignment.*.assigned", func(subject string, data []byte) {
		var ev AssignedEvent
		if err := json.Unmarshal(data, &ev); err == nil {
			got <- ev
		}
	}))
	require.NoError(t, c.conn.Flush())

	require.NoError(t, c.Publish(SubjectAssigned("ct"), AssignedEvent{
		AssignmentID: "a-1", Modality: "ct", Skill: "Herz", Worker: "Dr. Weber", Level: 1, Phase: 2,
	}))

	select {
	case ev := <-got:
		assert.Equal(t, "Dr. Weber", ev.Worker)
		assert.Equal(t, "Herz", ev.Skill)
	case <-time.After(5 * time.Second):
		t.Fatal("event not delivered")
	}

	stream, err := c.JetStream().Stream(ctx, StreamName)
	require.NoError(t, err)
	assert.Eventually(t, func() bool {
		st, err := stream.Info(ctx)
		return err == nil && st.State.Msgs >= 1
	}, 5*time.Second, 50*time.Millisecond, "events are retained on the stream")
}
