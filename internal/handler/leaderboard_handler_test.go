package handler_test

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/codearena-api/internal/dto"
	"github.com/noah-isme/codearena-api/internal/models"
	"github.com/noah-isme/codearena-api/internal/realtime"
)

func TestLeaderboardContract(t *testing.T) {
	schemaPath, err := filepath.Abs(filepath.Join("testdata", "leaderboard_response.schema.json"))
	require.NoError(t, err)
	schema, err := jsonschema.NewCompiler().Compile("file://" + schemaPath)
	require.NoError(t, err)

	a := setupApp(t, appOptions{})
	eventID, questionID := a.openEvent(t, organizerToken(t, "org-1"))
	for _, user := range []string{"u1", "u2"} {
		status, _ := a.do(t, http.MethodPost, submissionsPath(eventID, questionID), participantToken(t, user, strings.ToUpper(user)), map[string]string{"code": "print(1)", "language": "python"})
		require.Equal(t, http.StatusCreated, status)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/events/"+eventID+"/leaderboard", nil)
	req.Header.Set("Authorization", "Bearer "+participantToken(t, "u3", ""))
	resp, err := a.app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())

	var document interface{}
	require.NoError(t, json.Unmarshal(raw, &document))
	require.NoError(t, schema.Validate(document))
}

func TestLeaderboardHandlerUnknownEvent(t *testing.T) {
	a := setupApp(t, appOptions{})
	status, env := a.do(t, http.MethodGet, "/api/v1/events/missing/leaderboard", participantToken(t, "u1", ""), nil)
	require.Equal(t, http.StatusNotFound, status)
	require.Equal(t, "event not found", env.Message)
}

func TestLeaderboardHandlerReconcileOwnerOnly(t *testing.T) {
	a := setupApp(t, appOptions{})
	eventID, questionID := a.openEvent(t, organizerToken(t, "org-1"))

	// Stored as accepted without a score award, as after a failed leaderboard write.
	orphan := models.Submission{EventID: eventID, QuestionID: questionID, UserID: "u9", Code: "print(1)", Language: "python", Status: models.SubmissionStatusAccepted, Feedback: "ok", SubmittedAt: time.Now().UTC()}
	require.NoError(t, a.db.Create(&orphan).Error)

	path := "/api/v1/events/" + eventID + "/leaderboard/reconcile"
	status, _ := a.do(t, http.MethodPost, path, participantToken(t, "u1", ""), nil)
	require.Equal(t, http.StatusForbidden, status)

	status, _ = a.do(t, http.MethodPost, path, organizerToken(t, "org-2"), nil)
	require.Equal(t, http.StatusForbidden, status)

	status, env := a.do(t, http.MethodPost, path, organizerToken(t, "org-1"), nil)
	require.Equal(t, http.StatusOK, status)
	var summary dto.ReconcileResponse
	decodeData(t, env, &summary)
	require.Equal(t, dto.ReconcileResponse{Scanned: 1, Credited: 1}, summary)

	status, env = a.do(t, http.MethodPost, path, organizerToken(t, "org-1"), nil)
	require.Equal(t, http.StatusOK, status)
	decodeData(t, env, &summary)
	require.Zero(t, summary.Scanned, "a repaired award is not credited twice")
}

func TestLeaderboardLiveStreamsSnapshotThenUpdates(t *testing.T) {
	a := setupApp(t, appOptions{})
	eventID, questionID := a.openEvent(t, organizerToken(t, "org-1"))

	baseURL, shutdown := startFiberServer(t, a.app)
	defer shutdown()

	url := "ws" + strings.TrimPrefix(baseURL, "http") + "/api/v1/events/" + eventID + "/leaderboard/live?access_token=" + participantToken(t, "viewer", "")
	dialer := websocket.Dialer{HandshakeTimeout: 3 * time.Second}
	conn, resp, err := dialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil {
		_ = resp.Body.Close()
	}
	defer conn.Close()

	readBoard := func() dto.LeaderboardResponse {
		t.Helper()
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
		var msg realtime.Message
		require.NoError(t, conn.ReadJSON(&msg))
		require.Equal(t, realtime.LeaderboardTopic(eventID), msg.Topic)
		var board dto.LeaderboardResponse
		require.NoError(t, json.Unmarshal(msg.Payload, &board))
		return board
	}

	snapshot := readBoard()
	require.Empty(t, snapshot.Entries)

	status, _ := a.do(t, http.MethodPost, submissionsPath(eventID, questionID), participantToken(t, "u1", "Alice"), map[string]string{"code": "print(1)", "language": "python"})
	require.Equal(t, http.StatusCreated, status)

	update := readBoard()
	require.Len(t, update.Entries, 1)
	require.Equal(t, "Alice", update.Entries[0].DisplayName)
	require.Equal(t, 10, update.Entries[0].Score)
}

func TestLiveEndpointRequiresUpgrade(t *testing.T) {
	a := setupApp(t, appOptions{})
	eventID, _ := a.openEvent(t, organizerToken(t, "org-1"))

	status, _ := a.do(t, http.MethodGet, "/api/v1/events/"+eventID+"/leaderboard/live", participantToken(t, "u1", ""), nil)
	require.Equal(t, http.StatusUpgradeRequired, status)
}
