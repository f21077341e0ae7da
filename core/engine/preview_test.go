package engine

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"picturas-orchestrator/core/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStartPreviewTargetsPreviewSpace(t *testing.T) {
	env := newTestEnv(t, chain("resize"), testImage("img-1"))

	cid, err := env.engine.StartPreview(context.Background(), "user-1", "project-1", "img-1")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(cid, "preview-"))

	rec := env.ledger.active(t, "img-1")
	assert.Equal(t, models.KindPreview, rec.Kind)
	assert.Equal(t, "./images/src/img-1.png", rec.InputURI)
	assert.Equal(t, "./images/users/user-1/projects/project-1/preview/img-1.png", rec.OutputURI)
}

func TestStartPreviewPurgesPreviousPreviews(t *testing.T) {
	env := newTestEnv(t, chain("resize"), testImage("img-1"))
	stale := &models.Artifact{
		ProjectID: "project-1",
		ImageID:   "img-1",
		Type:      models.ArtifactPreview,
		ObjectKey: "users/u1/projects/project-1/preview/old.png",
	}
	_, err := env.artifacts.Save(context.Background(), stale)
	require.NoError(t, err)

	_, err = env.engine.StartPreview(context.Background(), "user-1", "project-1", "img-1")
	require.NoError(t, err)

	assert.Empty(t, env.artifacts.ofType(models.ArtifactPreview))
	assert.Contains(t, env.objects.deleted, "users/u1/projects/project-1/preview/old.png")
}

func TestPreviewReadyWaitsForWholeBatch(t *testing.T) {
	env := newTestEnv(t, chain("resize"), testImage("img-1"), testImage("img-2"))
	ctx := context.Background()

	_, err := env.engine.StartPreview(ctx, "user-1", "project-1", "img-1")
	require.NoError(t, err)
	_, err = env.engine.StartPreview(ctx, "user-1", "project-1", "img-2")
	require.NoError(t, err)

	env.completeOK(t, "img-1", "./images/preview/img-1.png", "image")
	for _, n := range env.publisher.notifications(t) {
		assert.NotEqual(t, "ok", n.Status, "no preview-ready while img-2 is outstanding")
	}

	env.completeOK(t, "img-2", "./images/preview/img-2.png", "image")

	var ready *models.ClientNotification
	notifications := env.publisher.notifications(t)
	for i, n := range notifications {
		if n.Status == "ok" && strings.HasPrefix(n.MessageID, "update-client-preview-") {
			ready = &notifications[i]
		}
	}
	require.NotNil(t, ready, "preview-ready after the batch drains")

	var payload models.PreviewPayload
	require.NoError(t, json.Unmarshal([]byte(ready.ImgURL), &payload))
	assert.True(t, strings.HasPrefix(payload.ImageURL, "https://signed.example/"))
	assert.Empty(t, payload.TextResults)
}

func TestPreviewErrorDoesNotBlockOtherImages(t *testing.T) {
	env := newTestEnv(t, chain("resize"), testImage("img-1"), testImage("img-2"))
	ctx := context.Background()

	c1, err := env.engine.StartPreview(ctx, "user-1", "project-1", "img-1")
	require.NoError(t, err)
	_, err = env.engine.StartPreview(ctx, "user-1", "project-1", "img-2")
	require.NoError(t, err)

	body, err := json.Marshal(models.ToolCompletionMessage{
		CorrelationID: c1,
		Status:        models.CompletionError,
		Error:         &models.ToolError{Code: "4100", Msg: "decode failed"},
	})
	require.NoError(t, err)
	require.NoError(t, env.engine.HandleCompletion(ctx, body))

	env.completeOK(t, "img-2", "./images/preview/img-2.png", "image")

	var sawError, sawReady bool
	for _, n := range env.publisher.notifications(t) {
		assert.True(t, strings.HasPrefix(n.MessageID, "update-client-preview-"))
		switch n.Status {
		case "error":
			sawError = true
			assert.Equal(t, "4100", n.ErrorCode)
		case "ok":
			sawReady = true
		}
	}
	assert.True(t, sawError)
	assert.True(t, sawReady, "img-2's preview still aggregates after img-1 failed")
	assert.Len(t, env.artifacts.ofType(models.ArtifactPreview), 1)
}

func TestPreviewTextResultsAggregate(t *testing.T) {
	env := newTestEnv(t, chain("text_ai"), testImage("img-1"))
	ctx := context.Background()

	_, err := env.engine.StartPreview(ctx, "user-1", "project-1", "img-1")
	require.NoError(t, err)

	env.completeOK(t, "img-1", "./images/preview/words.txt", "text")

	notifications := env.publisher.notifications(t)
	require.Len(t, notifications, 1)
	require.Equal(t, "ok", notifications[0].Status)

	var payload models.PreviewPayload
	require.NoError(t, json.Unmarshal([]byte(notifications[0].ImgURL), &payload))
	require.Len(t, payload.TextResults, 1)
	assert.Empty(t, payload.ImageURL)
}
