package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strings"
	"testing"

	"bountygraph/internal/config"
	"bountygraph/internal/db"
	"bountygraph/internal/domain"
	"bountygraph/internal/engine"
	"bountygraph/internal/migrate"
)

const testSecret = "test-secret"

type testServer struct {
	URL    string
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newTestServer(t *testing.T) (*testServer, func()) {
	t.Helper()
	workspace := t.TempDir()
	if _, err := db.EnsureWorkspace(workspace); err != nil {
		t.Fatalf("ensure workspace: %v", err)
	}
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if _, err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	e := engine.New(conn, config.Default())
	handler, err := New(Config{Engine: e, BasePath: "/v0", Auth: AuthConfig{JWTSecret: testSecret}})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	testSrv := &testServer{
		URL:    "http://" + ln.Addr().String(),
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	return testSrv, func() { testSrv.Close() }
}

func bearer(t *testing.T, signer string) map[string]string {
	t.Helper()
	token, err := SignToken(testSecret, signer, 0)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return map[string]string{"Authorization": "Bearer " + token}
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

func expectStatus(t *testing.T, res *http.Response, data []byte, want int) {
	t.Helper()
	if res.StatusCode != want {
		t.Fatalf("expected %d, got %d: %s", want, res.StatusCode, string(data))
	}
}

func errorCode(t *testing.T, data []byte) string {
	t.Helper()
	var env struct {
		Error apiErrorBody `json:"error"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatalf("unmarshal error envelope: %v (%s)", err, string(data))
	}
	return env.Error.Code
}

var workHash = strings.Repeat("ab", 32)

func setupFundedTask(t *testing.T, srv *testServer) string {
	t.Helper()
	client := srv.Client()
	auth := bearer(t, "alice")

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/graphs", map[string]any{}, auth)
	expectStatus(t, res, data, http.StatusCreated)
	var g domain.Graph
	if err := json.Unmarshal(data, &g); err != nil {
		t.Fatalf("unmarshal graph: %v", err)
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/accounts/alice/deposit", map[string]any{"amount": 2_000_000}, auth)
	expectStatus(t, res, data, http.StatusOK)

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/graphs/"+g.Address+"/tasks", map[string]any{
		"task_id":         1,
		"reward_lamports": 1_000_000,
	}, auth)
	expectStatus(t, res, data, http.StatusCreated)

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/graphs/"+g.Address+"/tasks/1/fund", map[string]any{"amount": 1_000_000}, auth)
	expectStatus(t, res, data, http.StatusOK)
	return g.Address
}

func TestReceiptAndClaimFlow(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	graph := setupFundedTask(t, srv)
	taskURL := srv.URL + "/v0/graphs/" + graph + "/tasks/1"

	res, data := doJSON(t, client, http.MethodPost, taskURL+"/claim", nil, bearer(t, "bob"))
	expectStatus(t, res, data, http.StatusNotFound)
	if code := errorCode(t, data); code != engine.ErrReceiptNotFound.Code {
		t.Fatalf("expected %s, got %s", engine.ErrReceiptNotFound.Code, code)
	}

	res, data = doJSON(t, client, http.MethodPost, taskURL+"/receipts", map[string]any{
		"work_hash": workHash,
		"uri":       "ipfs://bafy",
	}, bearer(t, "bob"))
	expectStatus(t, res, data, http.StatusCreated)

	res, data = doJSON(t, client, http.MethodPost, taskURL+"/claim", nil, bearer(t, "bob"))
	expectStatus(t, res, data, http.StatusOK)
	var claim engine.ClaimResult
	if err := json.Unmarshal(data, &claim); err != nil {
		t.Fatalf("unmarshal claim: %v", err)
	}
	if claim.Lamports != 1_000_000 || claim.Task.Status != domain.TaskCompleted {
		t.Fatalf("unexpected claim: %+v", claim)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/accounts/bob", nil, nil)
	expectStatus(t, res, data, http.StatusOK)
	var acct domain.Account
	_ = json.Unmarshal(data, &acct)
	if acct.Lamports != 1_000_000 {
		t.Fatalf("bob balance %d", acct.Lamports)
	}

	res, data = doJSON(t, client, http.MethodPost, taskURL+"/claim", nil, bearer(t, "bob"))
	expectStatus(t, res, data, http.StatusConflict)
	if code := errorCode(t, data); code != engine.ErrAlreadyCompleted.Code {
		t.Fatalf("expected %s, got %s", engine.ErrAlreadyCompleted.Code, code)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/graphs/"+graph+"/events?limit=2", nil, nil)
	expectStatus(t, res, data, http.StatusOK)
	var page paginatedEvents
	if err := json.Unmarshal(data, &page); err != nil {
		t.Fatalf("unmarshal events: %v", err)
	}
	if len(page.Items) != 2 || page.Items[0].Type != "RewardClaimed" || page.NextCursor == "" {
		t.Fatalf("unexpected events page: %+v", page)
	}
}

func TestDisputeResolveFlow(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	graph := setupFundedTask(t, srv)
	taskURL := srv.URL + "/v0/graphs/" + graph + "/tasks/1"

	res, data := doJSON(t, client, http.MethodPost, taskURL+"/receipts", map[string]any{
		"work_hash": workHash,
		"uri":       "ipfs://bafy",
	}, bearer(t, "bob"))
	expectStatus(t, res, data, http.StatusCreated)

	res, data = doJSON(t, client, http.MethodPost, taskURL+"/disputes", map[string]any{"reason": "partial delivery"}, bearer(t, "alice"))
	expectStatus(t, res, data, http.StatusCreated)

	resolve := map[string]any{"creator": "alice", "worker": "bob", "creator_pct": 40, "worker_pct": 60}
	res, data = doJSON(t, client, http.MethodPost, taskURL+"/disputes/alice/resolve", resolve, bearer(t, "bob"))
	expectStatus(t, res, data, http.StatusForbidden)

	res, data = doJSON(t, client, http.MethodPost, taskURL+"/disputes/alice/resolve", resolve, bearer(t, "alice"))
	expectStatus(t, res, data, http.StatusOK)
	var d domain.Dispute
	if err := json.Unmarshal(data, &d); err != nil {
		t.Fatalf("unmarshal dispute: %v", err)
	}
	if d.WorkerAmount == nil || *d.WorkerAmount != 600_000 || *d.CreatorAmount != 400_000 {
		t.Fatalf("unexpected settlement: %+v", d)
	}

	res, data = doJSON(t, client, http.MethodPost, taskURL+"/disputes/alice/resolve", resolve, bearer(t, "alice"))
	expectStatus(t, res, data, http.StatusConflict)
	if code := errorCode(t, data); code != engine.ErrDisputeNotRaised.Code {
		t.Fatalf("expected %s, got %s", engine.ErrDisputeNotRaised.Code, code)
	}
}

func TestRequestValidation(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	graph := setupFundedTask(t, srv)
	taskURL := srv.URL + "/v0/graphs/" + graph + "/tasks/1"

	res, data := doJSON(t, client, http.MethodPost, taskURL+"/receipts", map[string]any{
		"work_hash": strings.Repeat("zz", 32),
		"uri":       "ipfs://bafy",
	}, bearer(t, "bob"))
	expectStatus(t, res, data, http.StatusBadRequest)

	res, data = doJSON(t, client, http.MethodPost, taskURL+"/disputes/alice/resolve", map[string]any{
		"creator": "alice", "worker": "", "creator_pct": 40, "worker_pct": 50,
	}, bearer(t, "alice"))
	expectStatus(t, res, data, http.StatusBadRequest)
	if code := errorCode(t, data); code != engine.ErrInvalidSplit.Code {
		t.Fatalf("expected %s, got %s", engine.ErrInvalidSplit.Code, code)
	}

	res, data = doJSON(t, client, http.MethodPost, taskURL+"/disputes/alice/resolve", map[string]any{
		"creator": "alice", "worker": "", "creator_pct": 150, "worker_pct": 0,
	}, bearer(t, "alice"))
	expectStatus(t, res, data, http.StatusBadRequest)
	if code := errorCode(t, data); code != engine.ErrInvalidSplit.Code {
		t.Fatalf("expected %s, got %s", engine.ErrInvalidSplit.Code, code)
	}
}

func TestWritesRequireSigner(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/graphs", map[string]any{}, nil)
	expectStatus(t, res, data, http.StatusUnauthorized)

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/graphs", map[string]any{}, map[string]string{"Authorization": "Bearer nope"})
	expectStatus(t, res, data, http.StatusUnauthorized)

	forged, err := SignToken("other-secret", "alice", 0)
	if err != nil {
		t.Fatal(err)
	}
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/graphs", map[string]any{}, map[string]string{"Authorization": "Bearer " + forged})
	expectStatus(t, res, data, http.StatusUnauthorized)

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/accounts/alice/deposit", map[string]any{"amount": 5}, bearer(t, "mallory"))
	expectStatus(t, res, data, http.StatusForbidden)

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/health", nil, nil)
	expectStatus(t, res, data, http.StatusOK)
}

func TestEventFiltersByEmittedKinds(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	graph := setupFundedTask(t, srv)
	eventsURL := srv.URL + "/v0/graphs/" + graph + "/events"

	res, data := doJSON(t, client, http.MethodGet, eventsURL+"?entity_kind=task", nil, nil)
	expectStatus(t, res, data, http.StatusOK)
	var page paginatedEvents
	if err := json.Unmarshal(data, &page); err != nil {
		t.Fatalf("unmarshal events: %v", err)
	}
	if len(page.Items) != 2 || page.Items[0].Type != "TaskFunded" || page.Items[1].Type != "TaskCreated" {
		t.Fatalf("unexpected task events: %+v", page.Items)
	}

	res, data = doJSON(t, client, http.MethodGet, eventsURL+"?entity_kind=account", nil, nil)
	expectStatus(t, res, data, http.StatusOK)

	res, data = doJSON(t, client, http.MethodGet, eventsURL+"?entity_kind=escrow", nil, nil)
	expectStatus(t, res, data, http.StatusBadRequest)

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/accounts/alice/events", nil, nil)
	expectStatus(t, res, data, http.StatusOK)
	page = paginatedEvents{}
	if err := json.Unmarshal(data, &page); err != nil {
		t.Fatalf("unmarshal account events: %v", err)
	}
	if len(page.Items) != 1 || page.Items[0].Type != "AccountDeposited" || page.Items[0].EntityKind != "account" {
		t.Fatalf("unexpected account events: %+v", page.Items)
	}
}

func TestDagEndpoints(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/dag/sort", map[string]any{
		"task_ids":  []string{"A", "B", "C", "D"},
		"adjacency": map[string][]string{"A": {"B", "C"}, "B": {"D"}, "C": {"D"}},
	}, nil)
	expectStatus(t, res, data, http.StatusOK)
	var sorted DagSortResponse
	if err := json.Unmarshal(data, &sorted); err != nil {
		t.Fatalf("unmarshal sort: %v", err)
	}
	if len(sorted.Order) != 4 || sorted.Order[0] != "D" || sorted.Order[3] != "A" || len(sorted.Batches) != 3 {
		t.Fatalf("unexpected sort: %+v", sorted)
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/dag/sort", map[string]any{
		"task_ids":  []string{"A", "B"},
		"adjacency": map[string][]string{"A": {"B"}, "B": {"A"}},
	}, nil)
	expectStatus(t, res, data, http.StatusBadRequest)

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/dag/check", map[string]any{
		"tasks": []map[string]any{{"id": "a", "dependencies": []string{"c", "b"}}, {"id": "b"}, {"id": "c"}},
	}, nil)
	expectStatus(t, res, data, http.StatusOK)
	var check DagCheckResponse
	_ = json.Unmarshal(data, &check)
	if check.Valid {
		t.Fatalf("unsorted dependency list should be rejected")
	}
}

func TestStatusForKind(t *testing.T) {
	cases := map[engine.Kind]int{
		engine.KindAuthorization: http.StatusForbidden,
		engine.KindStateConflict: http.StatusConflict,
		engine.KindValidation:    http.StatusBadRequest,
		engine.KindResource:      http.StatusUnprocessableEntity,
		engine.KindNotFound:      http.StatusNotFound,
	}
	for kind, want := range cases {
		if got := statusForKind(kind); got != want {
			t.Fatalf("%s: expected %d, got %d", kind, want, got)
		}
	}
}
