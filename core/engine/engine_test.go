package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"picturas-orchestrator/core/models"
	"picturas-orchestrator/core/monitoring"
	"picturas-orchestrator/core/routing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

const testRoutesYAML = `
tools:
  - procedure: resize
    queue: resize_queue
  - procedure: bg_remove
    queue: bg_remove_queue
  - procedure: upgrade
    queue: upgrade_queue
  - procedure: text_ai
    queue: text_ai_queue
`

// callLog records the order of ledger writes and publishes so tests can
// assert record-before-send
type callLog struct {
	mu    sync.Mutex
	calls []string
}

func (l *callLog) add(call string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, call)
}

type fakeLedger struct {
	log     *callLog
	records []*models.ProcessRecord
}

func (f *fakeLedger) Create(_ context.Context, rec *models.ProcessRecord) error {
	if rec.ID == "" {
		rec.ID = fmt.Sprintf("rec-%d", len(f.records))
	}
	if rec.Status == "" {
		rec.Status = models.ProcessStatusProcessing
	}
	if rec.StartedAt.IsZero() {
		rec.StartedAt = time.Now()
	}
	clone := *rec
	f.records = append(f.records, &clone)
	f.log.add("create:" + rec.CorrelationID)
	return nil
}

func (f *fakeLedger) GetByCorrelationID(_ context.Context, correlationID string) (*models.ProcessRecord, error) {
	for _, rec := range f.records {
		if rec.CorrelationID == correlationID {
			clone := *rec
			return &clone, nil
		}
	}
	return nil, models.ErrNotFound
}

func (f *fakeLedger) GetActiveByImage(_ context.Context, projectID, imageID string, kind models.Kind) (*models.ProcessRecord, error) {
	for _, rec := range f.records {
		if rec.ProjectID == projectID && rec.ImageID == imageID && rec.Kind == kind {
			clone := *rec
			return &clone, nil
		}
	}
	return nil, models.ErrNotFound
}

func (f *fakeLedger) ListByProject(_ context.Context, projectID string) ([]*models.ProcessRecord, error) {
	var out []*models.ProcessRecord
	for _, rec := range f.records {
		if rec.ProjectID == projectID {
			clone := *rec
			out = append(out, &clone)
		}
	}
	return out, nil
}

func (f *fakeLedger) CountActive(_ context.Context, projectID string, kind models.Kind) (int, error) {
	n := 0
	for _, rec := range f.records {
		if rec.ProjectID == projectID && rec.Kind == kind && rec.Status == models.ProcessStatusProcessing {
			n++
		}
	}
	return n, nil
}

func (f *fakeLedger) MarkCancelled(_ context.Context, correlationID string, at time.Time) error {
	for _, rec := range f.records {
		if rec.CorrelationID == correlationID {
			rec.Status = models.ProcessStatusCancelled
			rec.CancelledAt = &at
			return nil
		}
	}
	return models.ErrNotFound
}

func (f *fakeLedger) Delete(_ context.Context, id string) error {
	for i, rec := range f.records {
		if rec.ID == id {
			f.records = append(f.records[:i], f.records[i+1:]...)
			return nil
		}
	}
	return nil
}

// active returns the single processing record, failing the test if the
// mutual-exclusion invariant does not hold for the image
func (f *fakeLedger) active(t *testing.T, imageID string) *models.ProcessRecord {
	t.Helper()
	var found *models.ProcessRecord
	for _, rec := range f.records {
		if rec.ImageID == imageID {
			require.Nil(t, found, "more than one ledger record for image %s", imageID)
			found = rec
		}
	}
	require.NotNil(t, found, "no ledger record for image %s", imageID)
	return found
}

type fakeProjects struct {
	tools  []models.Tool
	images []*models.Image
}

func (f *fakeProjects) GetTools(context.Context, string) ([]models.Tool, error) {
	return f.tools, nil
}

func (f *fakeProjects) ListImages(context.Context, string) ([]*models.Image, error) {
	return f.images, nil
}

func (f *fakeProjects) GetImage(_ context.Context, _, imageID string) (*models.Image, error) {
	for _, img := range f.images {
		if img.ID == imageID {
			return img, nil
		}
	}
	return nil, models.ErrNotFound
}

type fakeArtifacts struct {
	saved []*models.Artifact
}

func (f *fakeArtifacts) Save(_ context.Context, artifact *models.Artifact) (string, error) {
	artifact.ID = fmt.Sprintf("artifact-%d", len(f.saved))
	clone := *artifact
	f.saved = append(f.saved, &clone)
	return artifact.ID, nil
}

func (f *fakeArtifacts) List(_ context.Context, projectID string, artifactType models.ArtifactType) ([]*models.Artifact, error) {
	var out []*models.Artifact
	for _, a := range f.saved {
		if a.ProjectID == projectID && a.Type == artifactType {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeArtifacts) DeleteByProject(_ context.Context, projectID string, artifactType models.ArtifactType) error {
	var kept []*models.Artifact
	for _, a := range f.saved {
		if a.ProjectID != projectID || a.Type != artifactType {
			kept = append(kept, a)
		}
	}
	f.saved = kept
	return nil
}

func (f *fakeArtifacts) ofType(artifactType models.ArtifactType) []*models.Artifact {
	var out []*models.Artifact
	for _, a := range f.saved {
		if a.Type == artifactType {
			out = append(out, a)
		}
	}
	return out
}

type fakeEvents struct{}

func (fakeEvents) Record(context.Context, *models.ProcessEvent) error { return nil }

type fakeObjects struct {
	deleted []string
}

func (f *fakeObjects) PresignGet(_ context.Context, key string) (string, error) {
	return "https://signed.example/" + key, nil
}

func (f *fakeObjects) Delete(_ context.Context, key string) error {
	f.deleted = append(f.deleted, key)
	return nil
}

type published struct {
	queue string
	body  []byte
}

type fakePublisher struct {
	log       *callLog
	published []published
}

func (f *fakePublisher) Publish(_ context.Context, routingKey string, body []byte) error {
	f.log.add("publish:" + routingKey)
	f.published = append(f.published, published{queue: routingKey, body: body})
	return nil
}

// invocations decodes the tool invocations published so far, skipping
// client notifications
func (f *fakePublisher) invocations(t *testing.T) []models.ToolInvocationMessage {
	t.Helper()
	var out []models.ToolInvocationMessage
	for _, p := range f.published {
		if p.queue == WSQueue {
			continue
		}
		var msg models.ToolInvocationMessage
		require.NoError(t, json.Unmarshal(p.body, &msg))
		out = append(out, msg)
	}
	return out
}

// notifications decodes everything published to ws_queue
func (f *fakePublisher) notifications(t *testing.T) []models.ClientNotification {
	t.Helper()
	var out []models.ClientNotification
	for _, p := range f.published {
		if p.queue != WSQueue {
			continue
		}
		var msg models.ClientNotification
		require.NoError(t, json.Unmarshal(p.body, &msg))
		out = append(out, msg)
	}
	return out
}

type testEnv struct {
	engine    *Engine
	ledger    *fakeLedger
	projects  *fakeProjects
	artifacts *fakeArtifacts
	objects   *fakeObjects
	publisher *fakePublisher
	log       *callLog
}

func newTestEnv(t *testing.T, tools []models.Tool, images ...*models.Image) *testEnv {
	t.Helper()

	registry, err := routing.Parse([]byte(testRoutesYAML))
	require.NoError(t, err)

	log := &callLog{}
	env := &testEnv{
		ledger:    &fakeLedger{log: log},
		projects:  &fakeProjects{tools: tools, images: images},
		artifacts: &fakeArtifacts{},
		objects:   &fakeObjects{},
		publisher: &fakePublisher{log: log},
		log:       log,
	}
	env.engine = New(
		env.ledger,
		env.projects,
		env.artifacts,
		fakeEvents{},
		env.objects,
		registry,
		env.publisher,
		monitoring.New(prometheus.NewRegistry()),
		slog.New(slog.NewTextHandler(io.Discard, nil)),
	)
	return env
}

// completeOK delivers a successful completion for the image's outstanding step
func (env *testEnv) completeOK(t *testing.T, imageID, outputURI, outputType string) {
	t.Helper()
	rec := env.ledger.active(t, imageID)
	body, err := json.Marshal(models.ToolCompletionMessage{
		CorrelationID: rec.CorrelationID,
		Status:        models.CompletionOK,
		Output:        &models.ToolOutput{ImageURI: outputURI, Type: outputType},
	})
	require.NoError(t, err)
	require.NoError(t, env.engine.HandleCompletion(context.Background(), body))
}

func chain(procedures ...string) []models.Tool {
	tools := make([]models.Tool, 0, len(procedures))
	for i, procedure := range procedures {
		tools = append(tools, models.Tool{
			ID:        fmt.Sprintf("tool-%d", i),
			Position:  i,
			Procedure: procedure,
			Params:    map[string]interface{}{},
		})
	}
	return tools
}

func testImage(id string) *models.Image {
	return &models.Image{
		ID:        id,
		ProjectID: "project-1",
		Name:      id + ".png",
		SourceURI: "./images/src/" + id + ".png",
		OutputURI: "./images/out/" + id + ".png",
		ObjectKey: "users/u1/projects/project-1/src/" + id + ".png",
	}
}
