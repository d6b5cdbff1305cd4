package main

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleRoadmap = `{"success":true,"data":{
	"id":"r1","topic":"Binary Search","level":"beginner","status":"active","streak":1,
	"days":[
		{"day":1,"date":"2024-03-10","topic":"Basics","is_completed":true,"backlog":false,
		 "tasks":[{"title":"Read intro","completed":true}]},
		{"day":2,"date":"2024-03-11","topic":"Practice","is_completed":false,"backlog":false,
		 "tasks":[{"title":"Solve 3 problems","completed":false},{"title":"[BACKLOG] Review","completed":false}]}
	],
	"progress":{"completed_tasks":1,"total_tasks":3,"percent":33,"backlog_days":0,"today_ordinal":2}}}`

type recordedRequest struct {
	Method string
	Path   string
	Header http.Header
	Body   map[string]interface{}
}

func newFakeServer(t *testing.T, status int, response string) (*httptest.Server, *[]recordedRequest) {
	t.Helper()
	var reqs []recordedRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := recordedRequest{Method: r.Method, Path: r.URL.Path, Header: r.Header.Clone()}
		if data, _ := io.ReadAll(r.Body); len(data) > 0 {
			_ = json.Unmarshal(data, &rec.Body)
		}
		reqs = append(reqs, rec)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(response))
	}))
	t.Cleanup(srv.Close)
	return srv, &reqs
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	t.Setenv("STUDYSPHERE_SERVER_URL", "")
	t.Setenv("STUDYSPHERE_TOKEN", "")
	t.Setenv("STUDYSPHERE_USER_ID", "")

	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestRoadmapCreateSendsBody(t *testing.T) {
	srv, reqs := newFakeServer(t, http.StatusCreated, sampleRoadmap)

	out, err := runCLI(t, "--server-url", srv.URL, "--token", "tok", "roadmap", "create", "Binary Search", "-d", "3", "-l", "advanced")
	require.NoError(t, err)

	require.Len(t, *reqs, 1)
	req := (*reqs)[0]
	assert.Equal(t, http.MethodPost, req.Method)
	assert.Equal(t, "/api/roadmap", req.Path)
	assert.Equal(t, "Bearer tok", req.Header.Get("Authorization"))
	assert.Equal(t, "Binary Search", req.Body["topic"])
	assert.Equal(t, float64(3), req.Body["duration"])
	assert.Equal(t, "advanced", req.Body["level"])

	assert.Contains(t, out, "Binary Search (beginner) [active]")
	assert.Contains(t, out, "Day 2  2024-03-11  Practice (today)")
	assert.Contains(t, out, "0. [ ] Solve 3 problems")
}

func TestRoadmapCompleteDefaultsToToday(t *testing.T) {
	srv, reqs := newFakeServer(t, http.StatusOK, sampleRoadmap)

	_, err := runCLI(t, "--server-url", srv.URL, "--user-id", "dev", "roadmap", "complete", "--task", "1")
	require.NoError(t, err)

	req := (*reqs)[0]
	assert.Equal(t, "/api/roadmap/complete", req.Path)
	assert.Equal(t, "dev", req.Header.Get("X-User-ID"))
	assert.Equal(t, float64(1), req.Body["taskId"])
	_, hasDay := req.Body["dayId"]
	assert.False(t, hasDay)

	_, err = runCLI(t, "--server-url", srv.URL, "roadmap", "complete", "--task", "0", "--day", "2", "--roadmap-id", "r1")
	require.NoError(t, err)
	req = (*reqs)[1]
	assert.Equal(t, float64(2), req.Body["dayId"])
	assert.Equal(t, "r1", req.Body["roadmapId"])
}

func TestRoadmapShowNoneActive(t *testing.T) {
	srv, _ := newFakeServer(t, http.StatusOK, `{"success":true,"data":null}`)

	out, err := runCLI(t, "--server-url", srv.URL, "roadmap", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "No active roadmap.")
}

func TestRoadmapHistoryJSONOutput(t *testing.T) {
	srv, _ := newFakeServer(t, http.StatusOK, `{"success":true,"data":[]}`)

	out, err := runCLI(t, "--server-url", srv.URL, "-o", "json", "roadmap", "history")
	require.NoError(t, err)
	assert.Contains(t, out, `"success": true`)
}

func TestAPIErrorEnvelope(t *testing.T) {
	srv, _ := newFakeServer(t, http.StatusBadGateway,
		`{"success":false,"error":{"code":"GENERATION_PARSE_ERROR","message":"could not generate roadmap, please retry"}}`)

	_, err := runCLI(t, "--server-url", srv.URL, "roadmap", "create", "Go")
	require.Error(t, err)
	var apiErr *apiError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadGateway, apiErr.Status)
	assert.Equal(t, "GENERATION_PARSE_ERROR", apiErr.Code)
	assert.Contains(t, err.Error(), "please retry")
}

func TestPrintTextHistory(t *testing.T) {
	var out bytes.Buffer
	err := printText(&out, []byte(`{"data":[{"id":"r1","topic":"Go","level":"beginner","status":"abandoned","progress":{"percent":50}}]}`))
	require.NoError(t, err)
	assert.Contains(t, out.String(), "r1  abandoned   50%  Go (beginner)")
}

func TestLoadConfigPrecedence(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	require.NoError(t, os.MkdirAll(filepath.Join(home, ".studysphere"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(home, ".studysphere", "config.yaml"),
		[]byte("server_url: http://file.example:9000\ntoken: file-token\nuser_id: file-user\n"), 0o600))
	t.Setenv("STUDYSPHERE_SERVER_URL", "")
	t.Setenv("STUDYSPHERE_TOKEN", "env-token")
	t.Setenv("STUDYSPHERE_USER_ID", "")

	root := newRootCmd()
	require.NoError(t, root.ParseFlags([]string{"--user-id", "flag-user", "-o", "json"}))
	cfg := LoadConfig(root)

	assert.Equal(t, "http://file.example:9000", cfg.ServerURL)
	assert.Equal(t, "env-token", cfg.Token)
	assert.Equal(t, "flag-user", cfg.UserID)
	assert.Equal(t, "json", cfg.Output)
}

func TestRequestBodySetChanged(t *testing.T) {
	c := &cobra.Command{Use: "complete"}
	c.Flags().Int("task", 0, "")
	c.Flags().Int("day", 0, "")
	c.Flags().String("roadmap-id", "", "")
	c.Flags().String("level", "", "")
	require.NoError(t, c.ParseFlags([]string{"--task", "0", "--day", "3", "--level", "advanced"}))

	body := requestBody{}
	require.NoError(t, body.setChanged(c, "task", "day", "roadmap-id", "level"))
	assert.Equal(t, requestBody{"taskId": 0, "dayId": 3, "level": "advanced"}, body)
}
