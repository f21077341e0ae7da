package engine

import (
	"context"
	"strings"
	"testing"

	"picturas-orchestrator/core/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStartPipelineOpensOneRecordPerImage(t *testing.T) {
	env := newTestEnv(t, chain("resize"), testImage("img-1"), testImage("img-2"))

	correlations, err := env.engine.StartPipeline(context.Background(), "user-1", "project-1")
	require.NoError(t, err)
	require.Len(t, correlations, 2)

	for _, imageID := range []string{"img-1", "img-2"} {
		rec := env.ledger.active(t, imageID)
		assert.Equal(t, correlations[imageID], rec.CorrelationID)
		assert.True(t, strings.HasPrefix(rec.CorrelationID, "request-"))
		assert.Equal(t, 0, rec.CurrentPosition)
		assert.Equal(t, models.ProcessStatusProcessing, rec.Status)
	}
	assert.Len(t, env.publisher.invocations(t), 2)
}

func TestStartPipelineCreatesRecordBeforePublishing(t *testing.T) {
	env := newTestEnv(t, chain("resize"), testImage("img-1"))

	_, err := env.engine.StartPipeline(context.Background(), "user-1", "project-1")
	require.NoError(t, err)

	require.Len(t, env.log.calls, 2)
	assert.True(t, strings.HasPrefix(env.log.calls[0], "create:"))
	assert.Equal(t, "publish:resize_queue", env.log.calls[1])
}

func TestStartPipelineRejectsEmptyChain(t *testing.T) {
	env := newTestEnv(t, nil, testImage("img-1"))

	_, err := env.engine.StartPipeline(context.Background(), "user-1", "project-1")
	assert.ErrorIs(t, err, models.ErrEmptyPipeline)
	assert.Empty(t, env.publisher.published)
}

func TestStartPipelinePurgesPreviousResults(t *testing.T) {
	env := newTestEnv(t, chain("resize"), testImage("img-1"))
	stale := &models.Artifact{
		ProjectID: "project-1",
		ImageID:   "img-1",
		Type:      models.ArtifactResult,
		ObjectKey: "users/u1/projects/project-1/out/old.png",
	}
	_, err := env.artifacts.Save(context.Background(), stale)
	require.NoError(t, err)

	_, err = env.engine.StartPipeline(context.Background(), "user-1", "project-1")
	require.NoError(t, err)

	assert.Empty(t, env.artifacts.ofType(models.ArtifactResult))
	assert.Equal(t, []string{"users/u1/projects/project-1/out/old.png"}, env.objects.deleted)
}

func TestStartPipelineSeedsStepZeroURIs(t *testing.T) {
	env := newTestEnv(t, chain("resize"), testImage("img-1"))

	_, err := env.engine.StartPipeline(context.Background(), "user-1", "project-1")
	require.NoError(t, err)

	invocations := env.publisher.invocations(t)
	require.Len(t, invocations, 1)
	assert.Equal(t, "./images/src/img-1.png", invocations[0].Parameters["inputImageURI"])
	assert.Equal(t, "./images/out/img-1.png", invocations[0].Parameters["outputImageURI"])
}
