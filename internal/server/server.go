package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"bountygraph/internal/dag"
	"bountygraph/internal/domain"
	"bountygraph/internal/engine"
	"bountygraph/internal/events"
	"bountygraph/internal/repo"
	"bountygraph/internal/reputation"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   engine.Engine
	BasePath string
	Auth     AuthConfig
	Logger   *slog.Logger
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"DISPUTE_IN_PROGRESS"`
	Message string         `json:"message" example:"task has a raised dispute"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

type out[T any] struct {
	Body T `json:"body"`
}

func reply[T any](v T) *out[T] {
	return &out[T]{Body: v}
}

var writeErrors = []int{
	http.StatusBadRequest,
	http.StatusUnauthorized,
	http.StatusForbidden,
	http.StatusNotFound,
	http.StatusConflict,
	http.StatusUnprocessableEntity,
}

// New returns an HTTP handler exposing the BountyGraph API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v0"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if cfg.Auth.Logger == nil {
		cfg.Auth.Logger = logger
	}
	huma.DefaultArrayNullable = false
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			// request validation failures are malformed input
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Recoverer)
	router.Use(requestLogger(logger))
	router.Use(newAuthMiddleware(basePath, cfg.Auth))
	hcfg := huma.DefaultConfig("BountyGraph API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = ""
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerHealth(group)
	registerGraphs(group, cfg.Engine)
	registerTasks(group, cfg.Engine)
	registerReceipts(group, cfg.Engine)
	registerDisputes(group, cfg.Engine)
	registerAccounts(group, cfg.Engine)
	registerEvents(group, cfg.Engine)
	registerDag(group)
	registerAgents(group, cfg.Engine)
	registerOpenAPI(router, api, basePath)

	return router, nil
}

func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			logger.InfoContext(r.Context(), "http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
				"request_id", middleware.GetReqID(r.Context()),
			)
		})
	}
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

// statusForKind maps a ledger rejection kind onto an HTTP status. The
// rejection code passes through unchanged.
func statusForKind(k engine.Kind) int {
	switch k {
	case engine.KindAuthorization:
		return http.StatusForbidden
	case engine.KindStateConflict:
		return http.StatusConflict
	case engine.KindValidation:
		return http.StatusBadRequest
	case engine.KindResource:
		return http.StatusUnprocessableEntity
	case engine.KindNotFound:
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	if le, ok := engine.AsError(err); ok {
		return newAPIError(statusForKind(le.Kind), le.Code, err.Error(), map[string]any{
			"kind":      le.Kind,
			"retryable": engine.Retryable(err),
		})
	}
	if errors.Is(err, repo.ErrNotFound) {
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	}
	return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": err.Error()})
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusUnprocessableEntity:
		return "validation_failed"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func registerOpenAPI(r chi.Router, api huma.API, basePath string) {
	var (
		once sync.Once
		spec []byte
	)
	specPath := path.Join(basePath, "openapi.json")
	r.Get(specPath, func(w http.ResponseWriter, r *http.Request) {
		once.Do(func() {
			oas := api.OpenAPI()
			applyAuthSecurity(oas)
			spec, _ = json.Marshal(oas)
		})
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec)
	})
}

func applyAuthSecurity(oas *huma.OpenAPI) {
	if oas == nil {
		return
	}
	if oas.Components == nil {
		oas.Components = &huma.Components{}
	}
	if oas.Components.SecuritySchemes == nil {
		oas.Components.SecuritySchemes = map[string]*huma.SecurityScheme{}
	}
	oas.Components.SecuritySchemes["bearerAuth"] = &huma.SecurityScheme{
		Type:         "http",
		Scheme:       "bearer",
		BearerFormat: "JWT",
	}
	security := []map[string][]string{{"bearerAuth": {}}}
	for _, item := range oas.Paths {
		if item.Post != nil {
			item.Post.Security = security
		}
	}
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*out[map[string]string], error) {
		return reply(map[string]string{"status": "ok"}), nil
	})
}

func registerGraphs(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "initialize-graph",
		Method:        http.MethodPost,
		Path:          "/graphs",
		Summary:       "Initialize the signer's graph",
		DefaultStatus: http.StatusCreated,
		Errors:        writeErrors,
	}, func(ctx context.Context, input *struct {
		Body InitializeGraphRequest `json:"body"`
	}) (*out[domain.Graph], error) {
		signer, authErr := signerFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		g, err := e.InitializeGraph(ctx, engine.InitializeGraphOptions{
			Authority:              signer,
			MaxDependenciesPerTask: input.Body.MaxDependenciesPerTask,
			SingleClaimant:         input.Body.SingleClaimant,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return reply(g), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-graph",
		Method:      http.MethodGet,
		Path:        "/graphs/{graph}",
		Summary:     "Get graph",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Graph string `path:"graph"`
	}) (*out[domain.Graph], error) {
		g, err := e.GetGraph(ctx, input.Graph)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(g), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "graph-status",
		Method:      http.MethodGet,
		Path:        "/graphs/{graph}/status",
		Summary:     "Task counts by status",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Graph string `path:"graph"`
	}) (*out[map[string]any], error) {
		g, err := e.GetGraph(ctx, input.Graph)
		if err != nil {
			return nil, handleError(err)
		}
		counts, err := e.Repo.CountTasksByStatus(ctx, e.DB, g.Address)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(map[string]any{
			"graph":       g.Address,
			"task_count":  g.TaskCount,
			"task_counts": counts,
		}), nil
	})
}

func registerTasks(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-task",
		Method:        http.MethodPost,
		Path:          "/graphs/{graph}/tasks",
		Summary:       "Create task",
		Description:   "The signer acts as both graph authority and task creator.",
		DefaultStatus: http.StatusCreated,
		Errors:        writeErrors,
	}, func(ctx context.Context, input *struct {
		Graph string            `path:"graph"`
		Body  CreateTaskRequest `json:"body"`
	}) (*out[domain.Task], error) {
		signer, authErr := signerFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		t, err := e.CreateTask(ctx, engine.TaskCreateOptions{
			Graph:          input.Graph,
			Authority:      signer,
			Creator:        signer,
			TaskID:         input.Body.TaskID,
			RewardLamports: input.Body.RewardLamports,
			Dependencies:   input.Body.Dependencies,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return reply(t), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-tasks",
		Method:      http.MethodGet,
		Path:        "/graphs/{graph}/tasks",
		Summary:     "List tasks",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Graph         string `path:"graph"`
		Status        string `query:"status" enum:"open,completed"`
		DisputeStatus string `query:"dispute_status" enum:"none,raised,resolved"`
		Worker        string `query:"worker"`
		Ready         bool   `query:"ready" doc:"only tasks whose dependencies all hold a receipt"`
		Limit         int    `query:"limit" default:"50"`
		Cursor        string `query:"cursor"`
	}) (*out[paginatedTasks], error) {
		f := repo.TaskFilters{
			Graph:         input.Graph,
			Status:        input.Status,
			DisputeStatus: input.DisputeStatus,
			Worker:        input.Worker,
		}
		if input.Ready {
			// readiness needs the whole graph to see dependency receipts
			all, err := e.ListTasks(ctx, repo.TaskFilters{Graph: input.Graph})
			if err != nil {
				return nil, handleError(err)
			}
			return reply(paginatedTasks{Items: nonNilSlice(dag.Ready(all))}), nil
		}
		limit := normalizeLimit(input.Limit)
		f.Limit = limit + 1
		if input.Cursor != "" {
			after, err := strconv.ParseUint(input.Cursor, 10, 64)
			if err != nil {
				return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid cursor", map[string]any{"cursor": input.Cursor})
			}
			f.AfterTaskID = &after
		}
		items, err := e.ListTasks(ctx, f)
		if err != nil {
			return nil, handleError(err)
		}
		resp := paginatedTasks{Items: []domain.Task{}}
		if len(items) > limit {
			items = items[:limit]
			resp.NextCursor = strconv.FormatUint(items[limit-1].TaskID, 10)
		}
		resp.Items = append(resp.Items, items...)
		return reply(resp), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-task",
		Method:      http.MethodGet,
		Path:        "/graphs/{graph}/tasks/{task_id}",
		Summary:     "Get task with escrow balance",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Graph  string `path:"graph"`
		TaskID uint64 `path:"task_id"`
	}) (*out[engine.TaskView], error) {
		v, err := e.ViewTask(ctx, engine.TaskRef{Graph: input.Graph, TaskID: input.TaskID})
		if err != nil {
			return nil, handleError(err)
		}
		return reply(v), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "fund-task",
		Method:      http.MethodPost,
		Path:        "/graphs/{graph}/tasks/{task_id}/fund",
		Summary:     "Fund task escrow from the signer's balance",
		Errors:      writeErrors,
	}, func(ctx context.Context, input *struct {
		Graph  string        `path:"graph"`
		TaskID uint64        `path:"task_id"`
		Body   AmountRequest `json:"body"`
	}) (*out[engine.FundResult], error) {
		signer, authErr := signerFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		res, err := e.FundTask(ctx, engine.FundTaskOptions{
			Task:   engine.TaskRef{Graph: input.Graph, TaskID: input.TaskID},
			Funder: signer,
			Amount: input.Body.Amount,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return reply(res), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "claim-reward",
		Method:      http.MethodPost,
		Path:        "/graphs/{graph}/tasks/{task_id}/claim",
		Summary:     "Claim the escrow as a receipt holder",
		Errors:      writeErrors,
	}, func(ctx context.Context, input *struct {
		Graph  string `path:"graph"`
		TaskID uint64 `path:"task_id"`
	}) (*out[engine.ClaimResult], error) {
		signer, authErr := signerFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		res, err := e.ClaimReward(ctx, engine.ClaimRewardOptions{
			Task:  engine.TaskRef{Graph: input.Graph, TaskID: input.TaskID},
			Agent: signer,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return reply(res), nil
	})
}

func registerReceipts(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "submit-receipt",
		Method:        http.MethodPost,
		Path:          "/graphs/{graph}/tasks/{task_id}/receipts",
		Summary:       "Submit a completion receipt",
		DefaultStatus: http.StatusCreated,
		Errors:        writeErrors,
	}, func(ctx context.Context, input *submitReceiptInput) (*out[domain.Receipt], error) {
		signer, authErr := signerFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		hash, _ := decodeWorkHash(input.Body.WorkHash)
		rc, err := e.SubmitReceipt(ctx, engine.SubmitReceiptOptions{
			Task:     engine.TaskRef{Graph: input.Graph, TaskID: input.TaskID},
			Agent:    signer,
			WorkHash: hash,
			URI:      input.Body.URI,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return reply(rc), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-receipts",
		Method:      http.MethodGet,
		Path:        "/graphs/{graph}/tasks/{task_id}/receipts",
		Summary:     "List receipts for a task",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Graph  string `path:"graph"`
		TaskID uint64 `path:"task_id"`
	}) (*out[[]domain.Receipt], error) {
		items, err := e.ListReceipts(ctx, engine.TaskRef{Graph: input.Graph, TaskID: input.TaskID})
		if err != nil {
			return nil, handleError(err)
		}
		return reply(nonNilSlice(items)), nil
	})
}

func registerDisputes(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "raise-dispute",
		Method:        http.MethodPost,
		Path:          "/graphs/{graph}/tasks/{task_id}/disputes",
		Summary:       "Raise a dispute as creator or receipt holder",
		DefaultStatus: http.StatusCreated,
		Errors:        writeErrors,
	}, func(ctx context.Context, input *struct {
		Graph  string         `path:"graph"`
		TaskID uint64         `path:"task_id"`
		Body   DisputeRequest `json:"body"`
	}) (*out[domain.Dispute], error) {
		signer, authErr := signerFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		d, err := e.DisputeTask(ctx, engine.DisputeTaskOptions{
			Task:      engine.TaskRef{Graph: input.Graph, TaskID: input.TaskID},
			Initiator: signer,
			Reason:    input.Body.Reason,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return reply(d), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-dispute",
		Method:      http.MethodGet,
		Path:        "/graphs/{graph}/tasks/{task_id}/dispute",
		Summary:     "Get the task's dispute",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Graph  string `path:"graph"`
		TaskID uint64 `path:"task_id"`
	}) (*out[domain.Dispute], error) {
		d, err := e.GetDispute(ctx, engine.TaskRef{Graph: input.Graph, TaskID: input.TaskID})
		if err != nil {
			return nil, handleError(err)
		}
		return reply(d), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "resolve-dispute",
		Method:      http.MethodPost,
		Path:        "/graphs/{graph}/tasks/{task_id}/disputes/{initiator}/resolve",
		Summary:     "Resolve a dispute as graph authority",
		Errors:      writeErrors,
	}, func(ctx context.Context, input *resolveDisputeInput) (*out[domain.Dispute], error) {
		signer, authErr := signerFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		d, err := e.ResolveDispute(ctx, engine.ResolveDisputeOptions{
			Task:       engine.TaskRef{Graph: input.Graph, TaskID: input.TaskID},
			Arbiter:    signer,
			Initiator:  input.Initiator,
			Creator:    input.Body.Creator,
			Worker:     input.Body.Worker,
			CreatorPct: input.Body.CreatorPct,
			WorkerPct:  input.Body.WorkerPct,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return reply(d), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "expire-dispute",
		Method:      http.MethodPost,
		Path:        "/graphs/{graph}/tasks/{task_id}/disputes/{initiator}/expire",
		Summary:     "Settle an unresolved dispute past its timeout",
		Errors:      writeErrors,
	}, func(ctx context.Context, input *struct {
		Graph     string `path:"graph"`
		TaskID    uint64 `path:"task_id"`
		Initiator string `path:"initiator"`
	}) (*out[domain.Dispute], error) {
		signer, authErr := signerFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		d, err := e.ExpireDispute(ctx, engine.ExpireDisputeOptions{
			Task:      engine.TaskRef{Graph: input.Graph, TaskID: input.TaskID},
			Initiator: input.Initiator,
			Caller:    signer,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return reply(d), nil
	})
}

func registerAccounts(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "get-account",
		Method:      http.MethodGet,
		Path:        "/accounts/{address}",
		Summary:     "Get account balance",
	}, func(ctx context.Context, input *struct {
		Address string `path:"address"`
	}) (*out[domain.Account], error) {
		a, err := e.Account(ctx, input.Address)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(a), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "deposit",
		Method:      http.MethodPost,
		Path:        "/accounts/{address}/deposit",
		Summary:     "Credit the signer's own account",
		Errors:      writeErrors,
	}, func(ctx context.Context, input *struct {
		Address string        `path:"address"`
		Body    AmountRequest `json:"body"`
	}) (*out[domain.Account], error) {
		signer, authErr := signerFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if signer != input.Address {
			return nil, newAPIError(http.StatusForbidden, engine.ErrUnauthorized.Code, "signer may only deposit to its own account", map[string]any{"signer": signer})
		}
		a, err := e.Deposit(ctx, input.Address, input.Body.Amount)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(a), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-account-events",
		Method:      http.MethodGet,
		Path:        "/accounts/{address}/events",
		Summary:     "List deposits into an account, newest first",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Address string `path:"address"`
		Limit   int    `query:"limit" default:"50"`
		Cursor  string `query:"cursor"`
	}) (*out[paginatedEvents], error) {
		return listEvents(ctx, e, repo.EventFilters{EntityKind: events.KindAccount, EntityID: input.Address}, input.Limit, input.Cursor)
	})
}

func registerEvents(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/graphs/{graph}/events",
		Summary:     "List recent events, newest first",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Graph      string `path:"graph"`
		Type       string `query:"type"`
		EntityKind string `query:"entity_kind" enum:"graph,task,receipt,dispute,account"`
		EntityID   string `query:"entity_id"`
		Limit      int    `query:"limit" default:"50"`
		Cursor     string `query:"cursor"`
	}) (*out[paginatedEvents], error) {
		if _, err := e.GetGraph(ctx, input.Graph); err != nil {
			return nil, handleError(err)
		}
		return listEvents(ctx, e, repo.EventFilters{
			Graph:      input.Graph,
			Type:       input.Type,
			EntityKind: input.EntityKind,
			EntityID:   input.EntityID,
		}, input.Limit, input.Cursor)
	})
}

func listEvents(ctx context.Context, e engine.Engine, f repo.EventFilters, rawLimit int, cursor string) (*out[paginatedEvents], error) {
	limit := normalizeLimit(rawLimit)
	var cursorID int64
	if cursor != "" {
		parsed, err := strconv.ParseInt(cursor, 10, 64)
		if err != nil {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid cursor", map[string]any{"cursor": cursor})
		}
		cursorID = parsed
	}
	items, err := e.Repo.LatestEventsFrom(ctx, limit+1, cursorID, f)
	if err != nil {
		return nil, handleError(err)
	}
	resp := paginatedEvents{Items: []EventResponse{}}
	if len(items) > limit {
		items = items[:limit]
		resp.NextCursor = fmt.Sprintf("%d", items[limit-1].ID)
	}
	for _, evt := range items {
		resp.Items = append(resp.Items, eventResponse(evt))
	}
	return reply(resp), nil
}

func registerDag(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "dag-check",
		Method:      http.MethodPost,
		Path:        "/dag/check",
		Summary:     "Validate a task plan before submitting it",
	}, func(ctx context.Context, input *struct {
		Body DagCheckRequest `json:"body"`
	}) (*out[DagCheckResponse], error) {
		if err := dag.ValidateBatch(input.Body.Tasks, input.Body.Existing); err != nil {
			return reply(DagCheckResponse{Valid: false, Error: err.Error()}), nil
		}
		return reply(DagCheckResponse{Valid: true}), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "dag-sort",
		Method:      http.MethodPost,
		Path:        "/dag/sort",
		Summary:     "Order task ids by dependency",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Body DagSortRequest `json:"body"`
	}) (*out[DagSortResponse], error) {
		adj := dag.Adjacency(input.Body.Adjacency)
		batches, err := dag.Batches(input.Body.TaskIDs, adj)
		if err != nil {
			return nil, newAPIError(http.StatusBadRequest, "invalid_plan", err.Error(), nil)
		}
		return reply(DagSortResponse{
			Order:   dag.TopologicalSort(input.Body.TaskIDs, adj),
			Batches: batches,
		}), nil
	})
}

func registerAgents(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "agent-reputation",
		Method:      http.MethodGet,
		Path:        "/agents/{agent}/reputation",
		Summary:     "Reputation derived from ledger history",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Agent string `path:"agent"`
	}) (*out[reputation.Score], error) {
		s, err := e.Reputation(ctx, input.Agent)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(s), nil
	})
}

func normalizeLimit(in int) int {
	if in <= 0 {
		return 50
	}
	if in > 200 {
		return 200
	}
	return in
}
