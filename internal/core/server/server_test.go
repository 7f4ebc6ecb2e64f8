package server

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/davidespo/rules-engine/internal/core/api"
	"github.com/davidespo/rules-engine/internal/core/config"
	"github.com/davidespo/rules-engine/internal/core/metrics"
	"github.com/davidespo/rules-engine/internal/render"
	"github.com/davidespo/rules-engine/internal/types"
)

func newTestService(t *testing.T) (*api.Service, *metrics.EvaluationMetrics, *config.ServiceConfig) {
	t.Helper()
	m := metrics.NewEvaluationMetrics("test", prometheus.NewRegistry())
	rs := api.NewRuleSet(render.NewTextRenderer(), m, nil)
	err := rs.Replace([]types.Rule{
		{
			ID:            "adult",
			TitleTemplate: "Adult {{ .value.name }}",
			Severity:      "low",
			Match:         map[string]any{"age": map[string]any{"$gte": 18}},
		},
	})
	if err != nil {
		t.Fatalf("Replace() error = %v, want nil", err)
	}

	cfg := config.DefaultServiceConfig()
	cfg.MaxBatchSize = 2
	svc, err := api.NewService(rs, cfg, m, nil)
	if err != nil {
		t.Fatalf("NewService() error = %v, want nil", err)
	}
	return svc, m, cfg
}

func newTestHTTP(t *testing.T) http.Handler {
	t.Helper()
	svc, m, cfg := newTestService(t)
	s, err := NewHTTPServer(cfg, svc, m, nil)
	if err != nil {
		t.Fatalf("NewHTTPServer() error = %v, want nil", err)
	}
	return s.Handler()
}

func doJSON(t *testing.T, h http.Handler, method, path, body string) (int, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("%s %s: response is not JSON: %q", method, path, rec.Body.String())
	}
	return rec.Code, out
}

func TestHTTP_Health(t *testing.T) {
	code, body := doJSON(t, newTestHTTP(t), http.MethodGet, "/healthz", "")
	if code != http.StatusOK {
		t.Fatalf("GET /healthz status = %d, want 200", code)
	}
	if diff := cmp.Diff(map[string]any{"status": "ok", "rules": 1.0}, body); diff != "" {
		t.Errorf("GET /healthz mismatch (-want +got):\n%s", diff)
	}
}

func TestHTTP_Evaluate(t *testing.T) {
	h := newTestHTTP(t)

	code, body := doJSON(t, h, http.MethodPost, "/api/v1/evaluate",
		`{"records":[{"id":"u1","age":30},{"id":"u2","age":10}]}`)
	if code != http.StatusOK {
		t.Fatalf("POST /api/v1/evaluate status = %d, want 200 (%v)", code, body)
	}
	want := map[string]any{
		"matches": []any{map[string]any{"recordId": "u1", "ruleId": "adult"}},
	}
	if diff := cmp.Diff(want, body); diff != "" {
		t.Errorf("evaluate mismatch (-want +got):\n%s", diff)
	}
}

func TestHTTP_EvaluateErrors(t *testing.T) {
	h := newTestHTTP(t)

	tests := []struct {
		name   string
		body   string
		status int
		code   string
	}{
		{"bad json", `{"records":`, http.StatusBadRequest, codes.InvalidArgument.String()},
		{"missing records", `{}`, http.StatusBadRequest, codes.InvalidArgument.String()},
		{"record without id", `{"records":[{"age":1}]}`, http.StatusBadRequest, codes.InvalidArgument.String()},
		{"batch too large", `{"records":[{"id":1},{"id":2},{"id":3}]}`, http.StatusBadRequest, codes.InvalidArgument.String()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, body := doJSON(t, h, http.MethodPost, "/api/v1/evaluate", tt.body)
			if got != tt.status {
				t.Errorf("status = %d, want %d (%v)", got, tt.status, body)
			}
			if body["code"] != tt.code {
				t.Errorf("code = %v, want %s", body["code"], tt.code)
			}
		})
	}
}

func TestHTTP_Insight(t *testing.T) {
	h := newTestHTTP(t)

	code, body := doJSON(t, h, http.MethodPost, "/api/v1/rules/adult/insight",
		`{"record":{"id":"u1","name":"Ann","age":30}}`)
	if code != http.StatusOK {
		t.Fatalf("insight status = %d, want 200 (%v)", code, body)
	}
	insight, _ := body["insight"].(map[string]any)
	if insight["title"] != "Adult Ann" || insight["severity"] != "low" {
		t.Errorf("insight = %v, want title Adult Ann severity low", insight)
	}

	code, body = doJSON(t, h, http.MethodPost, "/api/v1/rules/absent/insight",
		`{"record":{"id":"u1"}}`)
	if code != http.StatusNotFound {
		t.Errorf("unknown rule status = %d, want 404 (%v)", code, body)
	}
}

func TestHTTP_ListRules(t *testing.T) {
	code, body := doJSON(t, newTestHTTP(t), http.MethodGet, "/api/v1/rules", "")
	if code != http.StatusOK {
		t.Fatalf("GET /api/v1/rules status = %d, want 200", code)
	}
	list, _ := body["rules"].([]any)
	if len(list) != 1 || list[0].(map[string]any)["id"] != "adult" {
		t.Errorf("rules = %v, want [adult]", body["rules"])
	}
}

func TestHTTP_Metrics(t *testing.T) {
	h := newTestHTTP(t)
	doJSON(t, h, http.MethodPost, "/api/v1/evaluate", `{"records":[{"id":"u1","age":30}]}`)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	out, _ := io.ReadAll(rec.Body)
	for _, want := range []string{
		`test_evaluations_total{surface="http"} 1`,
		`test_rule_matches_total{rule_id="adult"} 1`,
		`test_rules_loaded 1`,
	} {
		if !strings.Contains(string(out), want) {
			t.Errorf("/metrics missing %q", want)
		}
	}
}

func TestGRPCServer_ServeAndShutdown(t *testing.T) {
	svc, _, cfg := newTestService(t)
	s, err := NewGRPCServer(cfg, svc, nil)
	if err != nil {
		t.Fatalf("NewGRPCServer() error = %v, want nil", err)
	}

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	done := make(chan error, 1)
	go func() { done <- s.Serve(lis) }()

	conn, err := grpc.NewClient(lis.Addr().String(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		t.Fatalf("grpc.NewClient() error = %v", err)
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	hc, err := grpc_health_v1.NewHealthClient(conn).Check(ctx, &grpc_health_v1.HealthCheckRequest{Service: api.ServiceName})
	if err != nil {
		t.Fatalf("health Check() error = %v", err)
	}
	if hc.Status != grpc_health_v1.HealthCheckResponse_SERVING {
		t.Errorf("health status = %v, want SERVING", hc.Status)
	}

	req, _ := structpb.NewStruct(map[string]any{"records": []any{map[string]any{"id": "u1", "age": 40}}})
	resp, err := api.NewInsightServiceClient(conn).EvaluateAll(ctx, req)
	if err != nil {
		t.Fatalf("EvaluateAll() error = %v", err)
	}
	if got := len(resp.AsMap()["matches"].([]any)); got != 1 {
		t.Errorf("EvaluateAll() matches = %d, want 1", got)
	}

	_, err = api.NewInsightServiceClient(conn).GetInsight(ctx, &structpb.Struct{})
	if status.Code(err) != codes.InvalidArgument {
		t.Errorf("GetInsight(empty) code = %v, want InvalidArgument", status.Code(err))
	}

	if err := s.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown() error = %v, want nil", err)
	}
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Serve() error = %v, want nil after shutdown", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve() did not return after Shutdown")
	}
}

func TestInterceptors(t *testing.T) {
	t.Run("timeout sets deadline", func(t *testing.T) {
		var hasDeadline bool
		_, _ = timeoutInterceptor(time.Second)(context.Background(), nil, &grpc.UnaryServerInfo{},
			func(ctx context.Context, _ any) (any, error) {
				_, hasDeadline = ctx.Deadline()
				return nil, nil
			})
		if !hasDeadline {
			t.Error("handler context has no deadline")
		}
	})

	t.Run("recovery converts panic", func(t *testing.T) {
		_, err := recoveryInterceptor(zap.NewNop())(context.Background(), nil, &grpc.UnaryServerInfo{FullMethod: "/x/y"},
			func(context.Context, any) (any, error) { panic("boom") })
		if status.Code(err) != codes.Internal {
			t.Errorf("code = %v, want Internal", status.Code(err))
		}
	})
}

func TestServers_ShutdownBeforeServe(t *testing.T) {
	svc, m, cfg := newTestService(t)
	httpServer, err := NewHTTPServer(cfg, svc, m, nil)
	if err != nil {
		t.Fatalf("NewHTTPServer() error = %v, want nil", err)
	}
	grpcServer, err := NewGRPCServer(cfg, svc, nil)
	if err != nil {
		t.Fatalf("NewGRPCServer() error = %v, want nil", err)
	}

	tests := []struct {
		name     string
		shutdown func(context.Context) error
		serve    func(net.Listener) error
	}{
		{name: "http", shutdown: httpServer.Shutdown, serve: httpServer.Serve},
		{name: "grpc", shutdown: grpcServer.Shutdown, serve: grpcServer.Serve},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := tt.shutdown(ctx); err != nil {
				t.Fatalf("Shutdown() error = %v, want nil", err)
			}

			lis, err := net.Listen("tcp", "127.0.0.1:0")
			if err != nil {
				t.Fatal(err)
			}
			defer lis.Close()

			done := make(chan error, 1)
			go func() { done <- tt.serve(lis) }()
			select {
			case err := <-done:
				if err != nil {
					t.Errorf("Serve() after Shutdown error = %v, want nil", err)
				}
			case <-time.After(5 * time.Second):
				t.Fatal("Serve() after Shutdown did not return")
			}
		})
	}
}
