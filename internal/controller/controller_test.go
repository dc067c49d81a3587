package controller

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"legal-assistant-be/internal/dto"
	"legal-assistant-be/internal/pkg/serverutils"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const jwtSecret = "operator-secret"

type fakeLegal struct {
	gotChat     dto.ChatTurnRequest
	gotAnalysis dto.AnalysisRequest
	err         error
}

func (f *fakeLegal) ChatTurn(_ context.Context, req dto.ChatTurnRequest) (*dto.ChatTurnResponse, error) {
	f.gotChat = req
	if f.err != nil {
		return nil, f.err
	}
	return &dto.ChatTurnResponse{
		SessionId: "sess-1",
		Messages:  []dto.ChatMessageDTO{{Role: "assistant", Content: "Here is some general information."}},
		Phase:     "idle",
	}, nil
}

func (f *fakeLegal) Analyze(_ context.Context, req dto.AnalysisRequest) (*dto.AnalysisResponse, error) {
	f.gotAnalysis = req
	return &dto.AnalysisResponse{SessionId: "sess-2", Path: "simple", StagesCompleted: []string{"initialize"}}, nil
}

type fakeOperator struct {
	deleted string
	query   dto.LogQuery
}

func (f *fakeOperator) GetSession(_ context.Context, id string) (*dto.SessionDetailResponse, error) {
	if id != "sess-1" {
		return nil, fiber.NewError(fiber.StatusNotFound, "session not found")
	}
	return &dto.SessionDetailResponse{SessionId: id, Phase: "idle", Turns: 2}, nil
}

func (f *fakeOperator) DeleteSession(_ context.Context, id string) error {
	f.deleted = id
	return nil
}

func (f *fakeOperator) GetLogs(_ context.Context, q dto.LogQuery) ([]*dto.LogListResponse, error) {
	f.query = q
	return []*dto.LogListResponse{{Id: "abc", Level: "warn", Module: "stage.legal_elements"}}, nil
}

func newApp(legal *fakeLegal, op *fakeOperator) *fiber.App {
	app := fiber.New(fiber.Config{ErrorHandler: serverutils.ErrorHandler})
	NewSystemController(prometheus.NewRegistry()).RegisterRoutes(app)
	api := app.Group("/api")
	NewLegalController(legal).RegisterRoutes(api)
	NewOperatorController(op, jwtSecret).RegisterRoutes(api)
	return app
}

func do(t *testing.T, app *fiber.App, method, path, body, token string) (int, serverutils.Response) {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := app.Test(req)
	require.NoError(t, err)
	var out serverutils.Response
	if resp.Header.Get("Content-Type") == fiber.MIMEApplicationJSON {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	}
	return resp.StatusCode, out
}

func operatorToken(t *testing.T) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  "ops-1",
		"role": serverutils.OperatorRole,
		"exp":  time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(jwtSecret))
	require.NoError(t, err)
	return s
}

func TestChatTurn(t *testing.T) {
	legal := &fakeLegal{}
	app := newApp(legal, &fakeOperator{})

	code, res := do(t, app, http.MethodPost, "/api/chat/turn",
		`{"message":"my landlord won't return my bond","session_id":"sess-1","user_state":"NSW"}`, "")

	require.Equal(t, http.StatusOK, code)
	assert.True(t, res.Success)
	assert.Equal(t, "NSW", legal.gotChat.UserState)
	assert.Equal(t, "sess-1", legal.gotChat.SessionId)
	data := res.Data.(map[string]interface{})
	assert.Equal(t, "sess-1", data["session_id"])
	assert.Equal(t, "idle", data["phase"])
}

func TestChatTurnValidation(t *testing.T) {
	app := newApp(&fakeLegal{}, &fakeOperator{})

	tests := []struct {
		name string
		body string
		want string
	}{
		{"missing message", `{"user_state":"NSW"}`, "message (required)"},
		{"unknown state", `{"message":"hi","user_state":"XYZ"}`, "userstate (oneof)"},
		{"bad document url", `{"message":"hi","document_url":"not a url"}`, "documenturl (url)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, res := do(t, app, http.MethodPost, "/api/chat/turn", tt.body, "")
			assert.Equal(t, http.StatusBadRequest, code)
			assert.False(t, res.Success)
			assert.Contains(t, res.Error, tt.want)
		})
	}
}

func TestChatTurnServiceError(t *testing.T) {
	app := newApp(&fakeLegal{err: fiber.NewError(fiber.StatusBadRequest, "message is empty")}, &fakeOperator{})

	code, res := do(t, app, http.MethodPost, "/api/chat/turn", `{"message":"   "}`, "")

	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "message is empty", res.Message)
}

func TestAnalyze(t *testing.T) {
	legal := &fakeLegal{}
	app := newApp(legal, &fakeOperator{})

	code, res := do(t, app, http.MethodPost, "/api/analysis", `{"query":"can I break my lease early?"}`, "")

	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "can I break my lease early?", legal.gotAnalysis.Query)
	assert.Equal(t, "simple", res.Data.(map[string]interface{})["path"])
}

func TestOperatorRoutesRequireToken(t *testing.T) {
	app := newApp(&fakeLegal{}, &fakeOperator{})

	code, _ := do(t, app, http.MethodGet, "/api/operator/sessions/sess-1", "", "")

	assert.Equal(t, http.StatusUnauthorized, code)
}

func TestOperatorSession(t *testing.T) {
	op := &fakeOperator{}
	app := newApp(&fakeLegal{}, op)
	token := operatorToken(t)

	code, res := do(t, app, http.MethodGet, "/api/operator/sessions/sess-1", "", token)
	require.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 2, res.Data.(map[string]interface{})["turns"])

	code, _ = do(t, app, http.MethodGet, "/api/operator/sessions/nope", "", token)
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = do(t, app, http.MethodDelete, "/api/operator/sessions/sess-1", "", token)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "sess-1", op.deleted)
}

func TestOperatorLogs(t *testing.T) {
	op := &fakeOperator{}
	app := newApp(&fakeLegal{}, op)
	token := operatorToken(t)

	code, res := do(t, app, http.MethodGet, "/api/operator/logs?level=warn&session_id=s1&limit=20", "", token)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, dto.LogQuery{Level: "warn", SessionId: "s1", Limit: 20}, op.query)
	assert.Len(t, res.Data, 1)

	code, _ = do(t, app, http.MethodGet, "/api/operator/logs?limit=9000", "", token)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestHealth(t *testing.T) {
	app := newApp(&fakeLegal{}, &fakeOperator{})

	code, res := do(t, app, http.MethodGet, "/health", "", "")

	assert.Equal(t, http.StatusOK, code)
	assert.True(t, res.Success)
}
