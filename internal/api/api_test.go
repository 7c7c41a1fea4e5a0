package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jinn/internal/auth"
	"jinn/internal/config"
	"jinn/internal/incantation"
	"jinn/internal/mishap"
	"jinn/internal/sandbox"
	"jinn/internal/store"
	"jinn/internal/synthesis"
	"jinn/internal/types"
	"jinn/internal/wish"
)

const (
	addCode   = "package main\n\nfunc add(a int, b int) int {\n\treturn a + b\n}\n"
	addSchema = `{"type": "function", "function": {"name": "add", "description": "Adds two integers.",
  "parameters": {"type": "object", "properties": {"a": {"type": "integer", "description": "first"}, "b": {"type": "integer", "description": "second"}}, "required": ["a", "b"]}}}`
	addBoundSchema = `{"type": "function", "function": {"name": "add", "description": "Adds five.",
  "parameters": {"type": "object", "properties": {"b": {"type": "integer", "description": "addend"}}, "required": ["b"]}}}`

	ratioCode   = "package main\n\nfunc ratio(b int) int {\n\td := b - 3\n\treturn b / d\n}\n"
	ratioSchema = `{"type": "function", "function": {"name": "ratio", "description": "Ratio.",
  "parameters": {"type": "object", "properties": {"b": {"type": "integer", "description": "b"}}, "required": ["b"]}}}`
)

type env struct {
	srv    *httptest.Server
	store  *store.Store
	llm    *scriptedLLM
	speech *fakeSpeech
	admin  *store.Principal
	user   *store.Principal
	log    string
}

func newEnv(t *testing.T) *env {
	t.Helper()
	ctx := context.Background()

	st, err := store.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	exec, err := sandbox.NewExecutor(sandbox.Options{
		AllowedPackages: config.DefaultAllowedPackages,
		Timeout:         5 * time.Second,
	})
	require.NoError(t, err)

	llm := &scriptedLLM{}
	gw := synthesis.NewGateway(llm, exec, config.DefaultAllowedPackages)
	registry := incantation.NewRegistry(st, gw, exec)
	ledger := mishap.NewLedger(st, registry, gw)

	sessions, err := auth.NewSessions("test-secret", time.Hour)
	require.NoError(t, err)
	authn := auth.NewAuthenticator(st, sessions)

	admin, err := authn.Provision(ctx, "alladin", "open_sesame")
	require.NoError(t, err)
	user := &store.Principal{Moniker: "jafar", PasswordHash: "x", Token: "t-jafar", Verified: true}
	require.NoError(t, st.CreatePrincipal(ctx, user))

	logFile := filepath.Join(t.TempDir(), "log.txt")
	require.NoError(t, os.WriteFile(logFile, []byte("line one\nline two\n"), 0644))

	sp := &fakeSpeech{}
	srv := httptest.NewServer(NewServer(Deps{
		Store:       st,
		Auth:        authn,
		Registry:    registry,
		Ledger:      ledger,
		Resolver:    wish.NewResolver(llm, registry, ledger),
		Transcriber: sp,
		Voice:       sp,
		LogFile:     logFile,
	}))
	t.Cleanup(srv.Close)

	return &env{srv: srv, store: st, llm: llm, speech: sp, admin: admin, user: user, log: logFile}
}

func (e *env) do(t *testing.T, method, path, token string, body interface{}) (int, map[string]interface{}) {
	t.Helper()
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, e.srv.URL+path, rd)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	out := map[string]interface{}{}
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(data) > 0 && strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(data, &out), string(data))
	}
	return resp.StatusCode, out
}

func (e *env) enableCrafting(t *testing.T) {
	t.Helper()
	require.NoError(t, e.store.ConfigSet(context.Background(), store.KeyManualIncantationCrafting, "true"))
}

func (e *env) craft(t *testing.T, token, code, schema string) int64 {
	t.Helper()
	e.enableCrafting(t)
	e.llm.pushText("```go\n"+code+"```", schema)
	status, body := e.do(t, "POST", "/api/incantations", token, map[string]string{"text": "craft it"})
	require.Equal(t, http.StatusCreated, status, body)
	return int64(body["id"].(float64))
}

func TestUnauthenticated(t *testing.T) {
	e := newEnv(t)
	status, body := e.do(t, "GET", "/api/incantations", "", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "unauthorized", body["error"])

	status, _ = e.do(t, "GET", "/api/incantations", "bogus", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestLoginRegistersUnverifiedPrincipal(t *testing.T) {
	e := newEnv(t)

	status, body := e.do(t, "POST", "/api/login", "", map[string]string{"moniker": "genie", "password": "lamp"})
	require.Equal(t, http.StatusOK, status, body)
	session := body["session"].(string)
	token := body["token"].(string)
	assert.NotEmpty(t, session)
	assert.NotEmpty(t, token)

	// Both credentials authenticate, but an unverified principal is held at the gate.
	status, _ = e.do(t, "GET", "/api/me", session, nil)
	assert.Equal(t, http.StatusForbidden, status)
	status, _ = e.do(t, "GET", "/api/me", token, nil)
	assert.Equal(t, http.StatusForbidden, status)

	status, _ = e.do(t, "POST", "/api/login", "", map[string]string{"moniker": "genie", "password": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, status)

	// An administrator verifies the newcomer.
	genie, err := e.store.PrincipalByMoniker(context.Background(), "genie")
	require.NoError(t, err)
	status, body = e.do(t, "POST", "/api/principals/"+itoa(genie.ID)+"/verification", e.admin.Token, nil)
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, true, body["verified"])

	status, body = e.do(t, "GET", "/api/me", session, nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "genie", body["moniker"])
}

func TestSessionCookie(t *testing.T) {
	e := newEnv(t)
	status, body := e.do(t, "POST", "/api/login", "", map[string]string{"moniker": "alladin", "password": "open_sesame"})
	require.Equal(t, http.StatusOK, status, body)

	req, err := http.NewRequest("GET", e.srv.URL+"/api/me", nil)
	require.NoError(t, err)
	req.AddCookie(&http.Cookie{Name: auth.SessionCookie, Value: body["session"].(string)})
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestCraftIsGatedByConfig(t *testing.T) {
	e := newEnv(t)
	status, _ := e.do(t, "POST", "/api/incantations", e.user.Token, map[string]string{"text": "add numbers"})
	assert.Equal(t, http.StatusForbidden, status)

	status, _ = e.do(t, "PUT", "/api/config/"+store.KeyManualIncantationCrafting, e.user.Token, map[string]string{"value": "true"})
	assert.Equal(t, http.StatusForbidden, status, "only administrators edit config")

	status, _ = e.do(t, "PUT", "/api/config/"+store.KeyManualIncantationCrafting, e.admin.Token, map[string]string{"value": "true"})
	require.Equal(t, http.StatusOK, status)

	e.llm.pushText("```go\n"+addCode+"```", addSchema)
	status, body := e.do(t, "POST", "/api/incantations", e.user.Token, map[string]string{"text": "add numbers"})
	require.Equal(t, http.StatusCreated, status, body)
	assert.Equal(t, "add", body["name"])

	status, _ = e.do(t, "POST", "/api/incantations", e.user.Token, map[string]string{"text": "  "})
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestCraftFailureIsBadGatewayAndIncident(t *testing.T) {
	e := newEnv(t)
	e.enableCrafting(t)
	e.llm.pushText("not go", "still not go", "nope")

	status, _ := e.do(t, "POST", "/api/incantations", e.user.Token, map[string]string{"text": "add numbers"})
	assert.Equal(t, http.StatusBadGateway, status)

	status, body := e.do(t, "GET", "/api/incidents", e.admin.Token, nil)
	require.Equal(t, http.StatusOK, status)
	incidents := body["incidents"].([]interface{})
	require.Len(t, incidents, 1)
	assert.Equal(t, store.IncidentCraft, incidents[0].(map[string]interface{})["kind"])

	status, _ = e.do(t, "GET", "/api/incidents", e.user.Token, nil)
	assert.Equal(t, http.StatusForbidden, status)
}

func TestWriteErrorStatus(t *testing.T) {
	transformErr := &types.TransformError{Func: "add", Reason: "does not parse"}
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"not found", &types.NotFoundError{Kind: "incantation", ID: 7}, http.StatusNotFound},
		{"unauthorized", types.ErrUnauthorized, http.StatusUnauthorized},
		{"unverified", fmt.Errorf("login: %w", types.ErrUnverified), http.StatusForbidden},
		{"crafting disabled", types.ErrCraftingDisabled, http.StatusForbidden},
		{"invalid argument", fmt.Errorf("%w: bad id", types.ErrInvalidArgument), http.StatusBadRequest},
		{"transform", transformErr, http.StatusUnprocessableEntity},
		{"unloadable binding", &types.TransformError{Func: "add", Err: &types.ExecutionError{Trace: "load failed"}}, http.StatusUnprocessableEntity},
		{"synthesis wrapping transform", &types.SynthesisError{Op: "craft", Attempts: 3, Err: transformErr}, http.StatusBadGateway},
		{"execution", &types.ExecutionError{Func: "div", Trace: "panic: division by zero"}, http.StatusOK},
		{"other", errors.New("disk on fire"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			writeError(rec, tt.err)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestIncantationLifecycle(t *testing.T) {
	e := newEnv(t)
	id := e.craft(t, e.user.Token, addCode, addSchema)
	path := "/api/incantations/" + itoa(id)

	status, body := e.do(t, "GET", "/api/incantations", e.user.Token, nil)
	require.Equal(t, http.StatusOK, status)
	list := body["incantations"].([]interface{})
	require.Len(t, list, 1)
	assert.Equal(t, "Adds two integers.", list[0].(map[string]interface{})["description"])

	status, body = e.do(t, "POST", path+"/run", e.user.Token, map[string]interface{}{"arguments": map[string]interface{}{"a": 2, "b": 3}})
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, float64(5), body["result"])

	// Bind a=5 into the artifact.
	e.llm.pushText(addBoundSchema)
	status, body = e.do(t, "POST", path+"/overrides", e.user.Token, map[string]interface{}{"overrides": map[string]interface{}{"a": 5}})
	require.Equal(t, http.StatusOK, status, body)
	assert.Contains(t, body["code"], "5 + b")

	status, body = e.do(t, "GET", path, e.user.Token, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, []interface{}{"b"}, body["parameters"])

	status, body = e.do(t, "POST", path+"/run", e.user.Token, map[string]interface{}{"arguments": map[string]interface{}{"b": 3}})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(8), body["result"])

	status, _ = e.do(t, "DELETE", path, e.user.Token, nil)
	require.Equal(t, http.StatusOK, status)
	status, _ = e.do(t, "GET", path, e.user.Token, nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestOverrideTransformErrorIsUnprocessable(t *testing.T) {
	e := newEnv(t)
	id := e.craft(t, e.user.Token, addCode, addSchema)

	status, _ := e.do(t, "POST", "/api/incantations/"+itoa(id)+"/overrides", e.user.Token,
		map[string]interface{}{"overrides": map[string]interface{}{"a": "five"}})
	assert.Equal(t, http.StatusUnprocessableEntity, status)
}

func TestVisibilityAndOwnership(t *testing.T) {
	e := newEnv(t)
	id := e.craft(t, e.user.Token, addCode, addSchema)
	path := "/api/incantations/" + itoa(id)

	status, _ := e.do(t, "GET", path, e.admin.Token, nil)
	assert.Equal(t, http.StatusNotFound, status, "private incantations are invisible to others")

	status, _ = e.do(t, "POST", path+"/public", e.user.Token, map[string]bool{"public": true})
	require.Equal(t, http.StatusOK, status)

	status, body := e.do(t, "GET", path, e.admin.Token, nil)
	require.Equal(t, http.StatusOK, status)
	assert.NotContains(t, body, "mishaps")

	status, _ = e.do(t, "DELETE", path, e.admin.Token, nil)
	assert.Equal(t, http.StatusNotFound, status, "only the owner mutates")

	status, _ = e.do(t, "GET", "/api/incantations/nope", e.user.Token, nil)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestRunFailureRecordsMishapAndRetry(t *testing.T) {
	e := newEnv(t)
	id := e.craft(t, e.user.Token, ratioCode, ratioSchema)

	status, body := e.do(t, "POST", "/api/incantations/"+itoa(id)+"/run", e.user.Token,
		map[string]interface{}{"arguments": map[string]interface{}{"b": 3}})
	require.Equal(t, http.StatusOK, status)
	assert.NotEmpty(t, body["error"])
	mishapID := int64(body["mishap_id"].(float64))

	status, body = e.do(t, "GET", "/api/incantations/"+itoa(id), e.user.Token, nil)
	require.Equal(t, http.StatusOK, status)
	mishaps := body["mishaps"].([]interface{})
	require.Len(t, mishaps, 1)
	assert.Contains(t, mishaps[0].(map[string]interface{})["traceback"], "panic")

	status, _ = e.do(t, "POST", "/api/mishaps/"+itoa(mishapID)+"/retry", e.admin.Token, nil)
	assert.Equal(t, http.StatusNotFound, status, "mishaps belong to the incantation owner")

	// Retrying the unchanged artifact fails again and appends a mishap.
	status, body = e.do(t, "POST", "/api/mishaps/"+itoa(mishapID)+"/retry", e.user.Token, nil)
	require.Equal(t, http.StatusOK, status)
	assert.NotEmpty(t, body["error"])

	status, body = e.do(t, "GET", "/api/mishaps", e.user.Token, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, body["mishaps"], 2)

	status, _ = e.do(t, "DELETE", "/api/mishaps/"+itoa(mishapID), e.user.Token, nil)
	require.Equal(t, http.StatusOK, status)
	status, body = e.do(t, "GET", "/api/mishaps", e.user.Token, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, body["mishaps"], 1)
}

func TestWishAnswer(t *testing.T) {
	e := newEnv(t)
	e.llm.pushRound(answer("Hello there."))

	status, body := e.do(t, "POST", "/api/wish", e.user.Token, map[string]string{"text": "say hello"})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Hello there.", body["answer"])
}

func TestWishExecutesIncantation(t *testing.T) {
	e := newEnv(t)
	id := e.craft(t, e.user.Token, addCode, addSchema)
	e.llm.pushRound(call("add", map[string]interface{}{"a": float64(2), "b": float64(2)}))

	status, body := e.do(t, "POST", "/api/wish", e.user.Token, map[string]string{"text": "add two and two"})
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, float64(4), body["result"])
	assert.Equal(t, float64(id), body["incantation_id"])
}

func TestWishExecutionFailureReportsMishap(t *testing.T) {
	e := newEnv(t)
	e.craft(t, e.user.Token, ratioCode, ratioSchema)
	e.llm.pushRound(call("ratio", map[string]interface{}{"b": float64(3)}))

	status, body := e.do(t, "POST", "/api/wish", e.user.Token, map[string]string{"text": "ratio of three"})
	require.Equal(t, http.StatusOK, status)
	assert.NotEmpty(t, body["error"])
	assert.NotZero(t, body["mishap_id"])
	assert.Equal(t, "ratio", body["incantation"])
}

func TestPrepareDoesNotCraft(t *testing.T) {
	e := newEnv(t)
	e.llm.pushRound(call("craft_incantation", map[string]interface{}{"text": "multiply numbers"}))

	status, body := e.do(t, "POST", "/api/wish/prepare", e.user.Token, map[string]string{"text": "multiply 3 by 4"})
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, "multiply numbers", body["craft"])

	incs, err := e.store.IncantationsByOwner(context.Background(), e.user.ID)
	require.NoError(t, err)
	assert.Empty(t, incs)
}

func TestWishAudioInAndOut(t *testing.T) {
	e := newEnv(t)
	e.speech.transcript = "say hello"
	e.llm.pushRound(answer("Hello there."))

	req, err := http.NewRequest("POST", e.srv.URL+"/api/wish", bytes.NewReader([]byte("RIFF....")))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "audio/wav")
	req.Header.Set("Accept", "audio/*")
	req.Header.Set("Authorization", "Bearer "+e.user.Token)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "audio/wav", resp.Header.Get("Content-Type"))
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "Hello there.", string(data))
	assert.Equal(t, []string{"audio/wav"}, e.speech.heard)
}

func TestAdminConfigAndLog(t *testing.T) {
	e := newEnv(t)

	status, body := e.do(t, "GET", "/api/config", e.admin.Token, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, body["config"], len(store.DefaultSettings))

	status, body = e.do(t, "GET", "/api/principals", e.admin.Token, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, body["principals"], 2)

	req, err := http.NewRequest("GET", e.srv.URL+"/api/log", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+e.admin.Token)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "line one\nline two\n", string(data))
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}
