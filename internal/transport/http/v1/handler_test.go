package v1

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/aios-native/orchestrator/domain"
	"github.com/aios-native/orchestrator/internal/backend"
	"github.com/aios-native/orchestrator/internal/convctx"
	"github.com/aios-native/orchestrator/internal/engine"
	"github.com/aios-native/orchestrator/internal/tools"
	"github.com/aios-native/orchestrator/policy"
	"github.com/aios-native/orchestrator/store"
	"github.com/aios-native/orchestrator/tests/helpers"
)

type handlerEnv struct {
	handler *Handler
	store   store.Store
}

func newTestHandler(t *testing.T, be backend.Backend) *handlerEnv {
	t.Helper()

	st := helpers.NewTestSQLiteStore(t)
	policies, err := policy.NewStore(context.Background(), policy.DefaultDocument(), "")
	if err != nil {
		t.Fatalf("policy.NewStore failed: %v", err)
	}

	registry := tools.NewRegistry()
	registry.MustRegister("probe.echo", tools.Schema{
		Description: "Echo the given text.",
		Args: map[string]tools.ArgSpec{
			"text": {Type: "string", Required: true},
		},
	}, func(ctx context.Context, env tools.Env, args map[string]interface{}) (string, error) {
		return args["text"].(string), nil
	})

	conv := convctx.New(st, nil, 0)
	eng := engine.New(st, conv, policies, be, registry, nil)

	return &handlerEnv{
		handler: NewHandler(eng, st, registry, policies),
		store:   st,
	}
}

func TestSubmitMessage(t *testing.T) {
	e := echo.New()
	env := newTestHandler(t, backend.NewScriptedBackend(backend.FinalStep("hello back")))

	body := `{"channel_id":"ch1","user_id":"u1","text":"hello"}`
	req := httptest.NewRequest(http.MethodPost, "/v1/messages", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := env.handler.SubmitMessage(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp domain.SubmitMessageResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Status != domain.TurnStatusCompleted || resp.Answer != "hello back" {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if resp.TurnID == "" {
		t.Fatalf("missing turn id")
	}
}

func TestSubmitMessageValidation(t *testing.T) {
	e := echo.New()
	env := newTestHandler(t, backend.NewScriptedBackend(backend.FinalStep("x")))

	cases := []string{
		`{"user_id":"u1","text":"hi"}`,
		`{"channel_id":"ch1","text":"hi"}`,
		`{"channel_id":"ch1","user_id":"u1"}`,
		`not json`,
	}
	for _, body := range cases {
		req := httptest.NewRequest(http.MethodPost, "/v1/messages", strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)

		if err := env.handler.SubmitMessage(c); err != nil {
			t.Fatalf("handler error: %v", err)
		}
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400 for %q, got %d", body, rec.Code)
		}
	}
}

func TestGetTurn(t *testing.T) {
	e := echo.New()
	env := newTestHandler(t, backend.NewScriptedBackend(backend.FinalStep("x")))

	turn := &domain.Turn{
		TurnID:    "turn_abc",
		MessageID: "m1",
		ChannelID: "ch1",
		UserID:    "u1",
		Status:    domain.TurnStatusCompleted,
		StartedAt: time.Now(),
	}
	if err := env.store.CreateTurn(context.Background(), turn); err != nil {
		t.Fatalf("CreateTurn failed: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/v1/turns/turn_abc", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("turn_id")
	c.SetParamValues("turn_abc")

	if err := env.handler.GetTurn(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var got domain.Turn
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if got.TurnID != "turn_abc" || got.Status != domain.TurnStatusCompleted {
		t.Fatalf("unexpected turn: %+v", got)
	}
}

func TestGetTurnNotFound(t *testing.T) {
	e := echo.New()
	env := newTestHandler(t, backend.NewScriptedBackend(backend.FinalStep("x")))

	req := httptest.NewRequest(http.MethodGet, "/v1/turns/missing", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("turn_id")
	c.SetParamValues("missing")

	if err := env.handler.GetTurn(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestGetTurnEvents(t *testing.T) {
	e := echo.New()
	env := newTestHandler(t, backend.NewScriptedBackend(backend.FinalStep("x")))

	turn := &domain.Turn{TurnID: "turn_abc", MessageID: "m1", ChannelID: "ch1", UserID: "u1", Status: domain.TurnStatusRunning, StartedAt: time.Now()}
	if err := env.store.CreateTurn(context.Background(), turn); err != nil {
		t.Fatalf("CreateTurn failed: %v", err)
	}
	base := time.Now().UnixMilli()
	events := []*domain.Event{
		{EventID: "e1", TurnID: "turn_abc", Ts: base, Type: domain.EventTypeTurnStarted},
		{EventID: "e2", TurnID: "turn_abc", Ts: base + 1, Type: domain.EventTypeRoundStarted},
	}
	for _, evt := range events {
		if err := env.store.CreateEvent(context.Background(), evt); err != nil {
			t.Fatalf("CreateEvent failed: %v", err)
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/v1/turns/turn_abc/events?types=round_started&limit=10", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("turn_id")
	c.SetParamValues("turn_abc")

	if err := env.handler.GetTurnEvents(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp struct {
		Events []domain.Event `json:"events"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Events) != 1 || resp.Events[0].EventID != "e2" {
		t.Fatalf("unexpected events: %+v", resp.Events)
	}
}

func TestCancelTurnNotRunning(t *testing.T) {
	e := echo.New()
	env := newTestHandler(t, backend.NewScriptedBackend(backend.FinalStep("x")))

	req := httptest.NewRequest(http.MethodPost, "/v1/turns/turn_abc/cancel", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("turn_id")
	c.SetParamValues("turn_abc")

	if err := env.handler.CancelTurn(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
}

func TestSubmitConfirmationValidation(t *testing.T) {
	e := echo.New()
	env := newTestHandler(t, backend.NewScriptedBackend(backend.FinalStep("x")))

	req := httptest.NewRequest(http.MethodPost, "/v1/turns/t1/confirmations/tc1", strings.NewReader(`{"decision":"maybe"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("turn_id", "call_id")
	c.SetParamValues("t1", "tc1")

	if err := env.handler.SubmitConfirmation(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestSubmitConfirmationNoPending(t *testing.T) {
	e := echo.New()
	env := newTestHandler(t, backend.NewScriptedBackend(backend.FinalStep("x")))

	req := httptest.NewRequest(http.MethodPost, "/v1/turns/t1/confirmations/tc1", strings.NewReader(`{"decision":"approve","decided_by":"u1"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("turn_id", "call_id")
	c.SetParamValues("t1", "tc1")

	if err := env.handler.SubmitConfirmation(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestListRecords(t *testing.T) {
	e := echo.New()
	env := newTestHandler(t, backend.NewScriptedBackend(backend.FinalStep("x")))

	record := &domain.ConversationRecord{
		RecordID:  "r1",
		TurnID:    "t1",
		UserID:    "u1",
		ChannelID: "ch1",
		Input:     "q",
		Output:    "a",
		CreatedAt: time.Now(),
	}
	if err := env.store.AppendConversationRecord(context.Background(), record); err != nil {
		t.Fatalf("AppendConversationRecord failed: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/v1/users/u1/records", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("user_id")
	c.SetParamValues("u1")

	if err := env.handler.ListRecords(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp struct {
		Records []domain.ConversationRecord `json:"records"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Records) != 1 || resp.Records[0].RecordID != "r1" {
		t.Fatalf("unexpected records: %+v", resp.Records)
	}
}

func TestListTools(t *testing.T) {
	e := echo.New()
	env := newTestHandler(t, backend.NewScriptedBackend(backend.FinalStep("x")))

	req := httptest.NewRequest(http.MethodGet, "/v1/tools", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := env.handler.ListTools(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "probe.echo") {
		t.Fatalf("registered tool missing: %s", rec.Body.String())
	}
}

func TestReloadPolicyWithoutFile(t *testing.T) {
	e := echo.New()
	env := newTestHandler(t, backend.NewScriptedBackend(backend.FinalStep("x")))

	req := httptest.NewRequest(http.MethodPost, "/v1/policy/reload", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := env.handler.ReloadPolicy(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestHealth(t *testing.T) {
	e := echo.New()
	env := newTestHandler(t, backend.NewScriptedBackend(backend.FinalStep("x")))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := env.handler.Health(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}
