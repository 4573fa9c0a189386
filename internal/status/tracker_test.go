package status_test

import (
	"testing"

	"github.com/omochice/relay-chat/internal/status"
	"github.com/stretchr/testify/assert"
)

func TestTracker_Initial(t *testing.T) {
	assert.Equal(t, "disconnected", status.NewTracker().Status())
}

func TestTracker_Update(t *testing.T) {
	tr := status.NewTracker()

	for _, s := range []string{"connecting", "connected", "error", "rate-limited", "", "connected"} {
		tr.Update(s)
		assert.Equal(t, s, tr.Status())
	}
}

func TestTracker_Watch(t *testing.T) {
	tr := status.NewTracker()

	var seen []string
	cancel := tr.Watch(func(s string) { seen = append(seen, s) })

	tr.Update("connecting")
	tr.Update("connected")
	cancel()
	tr.Update("disconnected")

	assert.Equal(t, []string{"connecting", "connected"}, seen)
	assert.Equal(t, "disconnected", tr.Status())
}
