package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/char5742/input-bridge/internal/config"
)

// テスト用のルーター付きサーバーを作成する
func newTestServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()

	s := NewServer(config.DefaultConfig(), 0)
	router := http.NewServeMux()
	s.setupRoutes(router)

	ts := httptest.NewServer(router)
	t.Cleanup(ts.Close)
	return s, ts
}

// ヘルスチェックが応答すること
func TestHealthCheck(t *testing.T) {
	_, ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/api/health")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200, got %d", resp.StatusCode)
	}

	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("unexpected body: %v", body)
	}
}

// 設定の取得と更新ができること
func TestConfigRoundTrip(t *testing.T) {
	_, ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/api/config")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	var cfg config.Config
	if err := json.NewDecoder(resp.Body).Decode(&cfg); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	resp.Body.Close()

	if cfg.Queue.Capacity != 256 {
		t.Errorf("expected default capacity, got %d", cfg.Queue.Capacity)
	}

	// 更新して読み戻す
	cfg.Queue.Capacity = 32
	body, _ := json.Marshal(cfg)
	req, _ := http.NewRequest(http.MethodPut, ts.URL+"/api/config", bytes.NewReader(body))
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("put failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	resp, err = http.Get(ts.URL + "/api/config")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	defer resp.Body.Close()
	var updated config.Config
	if err := json.NewDecoder(resp.Body).Decode(&updated); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if updated.Queue.Capacity != 32 {
		t.Errorf("config not updated, capacity=%d", updated.Queue.Capacity)
	}
}

// サービス停止中のイベント操作は409を返すこと
func TestEventEndpointsRequireRunningService(t *testing.T) {
	_, ts := newTestServer(t)

	resp, err := http.Post(ts.URL+"/api/events/inject", "application/json",
		bytes.NewReader([]byte(`{"device_type":1,"device_id":0,"type":1,"code":28,"value":1}`)))
	if err != nil {
		t.Fatalf("inject request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("inject: expected 409, got %d", resp.StatusCode)
	}

	resp, err = http.Get(ts.URL + "/api/events/next?timeout_ms=0")
	if err != nil {
		t.Fatalf("next request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("next: expected 409, got %d", resp.StatusCode)
	}

	resp, err = http.Get(ts.URL + "/api/stats")
	if err != nil {
		t.Fatalf("stats request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("stats: expected 409, got %d", resp.StatusCode)
	}
}

// サービス状態の取得ができること
func TestServiceStatusStopped(t *testing.T) {
	_, ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/api/service/status")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if body["status"] != "stopped" {
		t.Errorf("expected stopped, got %q", body["status"])
	}
}
