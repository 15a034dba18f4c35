package orchestrator

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"articleforge/internal/runner"
)

// scriptedRunner emits a fixed event sequence and records the args it was
// launched with.
type scriptedRunner struct {
	events  []runner.Event
	err     error
	gotArgs []string
}

func (s *scriptedRunner) Run(_ context.Context, args ...string) (<-chan runner.Event, error) {
	s.gotArgs = args
	if s.err != nil {
		return nil, s.err
	}
	ch := make(chan runner.Event, len(s.events))
	for _, ev := range s.events {
		ch <- ev
	}
	close(ch)
	return ch, nil
}

func pipelineEvents() []runner.Event {
	return []runner.Event{
		{Type: runner.EventLog, Message: "starting"},
		{Type: runner.EventLog, Message: "saved article 1"},
		{Type: runner.EventComplete, Success: true, Message: "completed successfully", ExitCode: 0},
	}
}

// decodeSSE parses "data: {...}" frames from a response body.
func decodeSSE(t *testing.T, body string) []runner.Event {
	t.Helper()
	var out []runner.Event
	scanner := bufio.NewScanner(strings.NewReader(body))
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var ev runner.Event
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev))
		out = append(out, ev)
	}
	return out
}

func TestHealthEndpoint(t *testing.T) {
	t.Parallel()

	srv := New(&scriptedRunner{}, nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestRunScraperStreamsEvents(t *testing.T) {
	t.Parallel()

	run := &scriptedRunner{events: pipelineEvents()}
	srv := New(run, nil)

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/run-scraper", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.Equal(t, []string{"scrape"}, run.gotArgs)

	events := decodeSSE(t, rec.Body.String())
	require.Len(t, events, 3)
	assert.Equal(t, runner.EventLog, events[0].Type)
	assert.Equal(t, "starting", events[0].Message)
	last := events[len(events)-1]
	assert.Equal(t, runner.EventComplete, last.Type)
	assert.True(t, last.Success)
}

func TestRunAutomationDefaultsToAllOriginals(t *testing.T) {
	t.Parallel()

	run := &scriptedRunner{events: pipelineEvents()}
	srv := New(run, nil)

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/run-automation", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"enhance"}, run.gotArgs)
}

func TestRunAutomationForwardsArticleIDs(t *testing.T) {
	t.Parallel()

	run := &scriptedRunner{events: pipelineEvents()}
	srv := New(run, nil)

	body := strings.NewReader(`{"articleIds": [3, 7, 11]}`)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/run-automation", body))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"enhance", "--ids", "3,7,11"}, run.gotArgs)
}

func TestRunAutomationRejectsMalformedBody(t *testing.T) {
	t.Parallel()

	srv := New(&scriptedRunner{events: pipelineEvents()}, nil)

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/run-automation", strings.NewReader("{broken")))

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestFailedPipelineStillStreamsComplete(t *testing.T) {
	t.Parallel()

	run := &scriptedRunner{events: []runner.Event{
		{Type: runner.EventError, Message: "scrape aborted"},
		{Type: runner.EventComplete, Success: false, Message: "process exited with code 1", ExitCode: 1},
	}}
	srv := New(run, nil)

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/run-scraper", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	// The raw frame must spell out the failure; clients read these fields
	// straight off the wire.
	assert.Contains(t, rec.Body.String(), `"success":false`)
	assert.Contains(t, rec.Body.String(), `"message":"process exited with code 1"`)
	events := decodeSSE(t, rec.Body.String())
	require.Len(t, events, 2)
	assert.Equal(t, runner.EventError, events[0].Type)
	last := events[1]
	assert.False(t, last.Success)
	assert.Equal(t, 1, last.ExitCode)
}

func TestLaunchFailureReturns500(t *testing.T) {
	t.Parallel()

	run := &scriptedRunner{err: context.DeadlineExceeded}
	srv := New(run, nil)

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/run-scraper", nil))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
}
