package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCancelImageMarksRecordCancelled(t *testing.T) {
	env := newTestEnv(t, chain("resize"), testImage("img-1"))
	ctx := context.Background()

	_, err := env.engine.StartPipeline(ctx, "user-1", "project-1")
	require.NoError(t, err)

	outcome, err := env.engine.CancelImage(ctx, "project-1", "img-1")
	require.NoError(t, err)
	assert.Equal(t, CancelDone, outcome)

	rec := env.ledger.active(t, "img-1")
	require.NotNil(t, rec.CancelledAt)

	notifications := env.publisher.notifications(t)
	require.Len(t, notifications, 1)
	assert.Equal(t, "cancelled", notifications[0].Status)
}

func TestCancelImageWithoutActiveRun(t *testing.T) {
	env := newTestEnv(t, chain("resize"), testImage("img-1"))

	outcome, err := env.engine.CancelImage(context.Background(), "project-1", "img-1")
	require.NoError(t, err)
	assert.Equal(t, CancelNotFound, outcome)
	assert.Empty(t, env.publisher.published)
}

func TestCancelTwiceIsTerminal(t *testing.T) {
	env := newTestEnv(t, chain("resize"), testImage("img-1"))
	ctx := context.Background()

	_, err := env.engine.StartPipeline(ctx, "user-1", "project-1")
	require.NoError(t, err)

	outcome, err := env.engine.CancelImage(ctx, "project-1", "img-1")
	require.NoError(t, err)
	require.Equal(t, CancelDone, outcome)

	outcome, err = env.engine.CancelImage(ctx, "project-1", "img-1")
	require.NoError(t, err)
	assert.Equal(t, CancelAlreadyTerminal, outcome)
}

func TestCancelByCorrelationID(t *testing.T) {
	env := newTestEnv(t, chain("resize"), testImage("img-1"))
	ctx := context.Background()

	cid, err := env.engine.StartPreview(ctx, "user-1", "project-1", "img-1")
	require.NoError(t, err)

	outcome, err := env.engine.Cancel(ctx, cid)
	require.NoError(t, err)
	assert.Equal(t, CancelDone, outcome)

	notifications := env.publisher.notifications(t)
	require.Len(t, notifications, 1)
	assert.Equal(t, "cancelled", notifications[0].Status)
	assert.Contains(t, notifications[0].MessageID, "update-client-preview-")
}
