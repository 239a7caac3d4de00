package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strconv"

	"github.com/char5742/input-bridge/internal/config"
	"github.com/char5742/input-bridge/internal/features"
	"github.com/char5742/input-bridge/internal/processor"
	"github.com/char5742/input-bridge/internal/types"
)

// ルートの設定
func (s *Server) setupRoutes(router *http.ServeMux) {
	// 設定関連のエンドポイント
	router.HandleFunc("GET /api/config", s.handleGetConfig)
	router.HandleFunc("PUT /api/config", s.handleUpdateConfig)
	router.HandleFunc("POST /api/config/save", s.handleSaveConfig)

	// デバイス関連のエンドポイント
	router.HandleFunc("GET /api/devices", s.handleGetDevices)
	router.HandleFunc("POST /api/devices/rescan", s.handleRescanDevices)

	// サービス関連のエンドポイント
	router.HandleFunc("POST /api/service/start", s.handleStartService)
	router.HandleFunc("POST /api/service/stop", s.handleStopService)
	router.HandleFunc("GET /api/service/status", s.handleServiceStatus)

	// イベント関連のエンドポイント
	router.HandleFunc("POST /api/events/inject", s.handleInjectEvent)
	router.HandleFunc("GET /api/events/next", s.handleNextEvent)
	router.HandleFunc("GET /api/events/stream", s.ws.handleWebSocket)
	router.HandleFunc("GET /api/stats", s.handleStats)

	// ヘルスチェック用エンドポイント
	router.HandleFunc("GET /api/health", s.handleHealthCheck)
}

// 設定取得ハンドラ
func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.GetConfig())
}

// 設定更新ハンドラ
func (s *Server) handleUpdateConfig(w http.ResponseWriter, r *http.Request) {
	var newConfig config.Config

	if err := json.NewDecoder(r.Body).Decode(&newConfig); err != nil {
		writeError(w, http.StatusBadRequest, "設定の解析に失敗しました")
		return
	}

	s.UpdateConfig(&newConfig)
	s.service.UpdateConfig(&newConfig)
	writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

// 設定保存ハンドラ
func (s *Server) handleSaveConfig(w http.ResponseWriter, r *http.Request) {
	var saveRequest struct {
		Path string `json:"path"`
	}

	if err := json.NewDecoder(r.Body).Decode(&saveRequest); err != nil {
		writeError(w, http.StatusBadRequest, "リクエストの解析に失敗しました")
		return
	}

	configPath := saveRequest.Path
	if configPath == "" {
		// デフォルトパスを使用
		userConfigDir, err := config.GetDefaultConfigDir()
		if err != nil {
			writeError(w, http.StatusInternalServerError, "デフォルト設定ディレクトリの取得に失敗しました")
			return
		}
		configPath = filepath.Join(userConfigDir, "config.toml")
	}

	if err := config.SaveConfig(configPath, s.GetConfig()); err != nil {
		writeError(w, http.StatusInternalServerError, "設定の保存に失敗しました: "+err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status": "success",
		"path":   configPath,
	})
}

// deviceInfo はデバイス一覧レスポンスの1要素
type deviceInfo struct {
	Name       string `json:"name"`
	Path       string `json:"path"`
	DeviceType string `json:"device_type"`
	DeviceID   int32  `json:"device_id"`
}

// デバイス一覧取得ハンドラ
func (s *Server) handleGetDevices(w http.ResponseWriter, r *http.Request) {
	// サービス実行中はレジストリの登録情報(ID付き)を返す
	if s.service.IsRunning() {
		registered := s.service.Devices()
		infos := make([]deviceInfo, 0, len(registered))
		for _, dev := range registered {
			infos = append(infos, deviceInfo{
				Name:       dev.Name,
				Path:       dev.Path,
				DeviceType: dev.Type.String(),
				DeviceID:   dev.ID,
			})
		}
		writeJSON(w, http.StatusOK, infos)
		return
	}

	// 停止中は単純スキャンの結果を返す(IDは未割り当て)
	devices, err := features.ScanDevices()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "デバイス一覧の取得に失敗しました: "+err.Error())
		return
	}
	infos := make([]deviceInfo, 0, len(devices))
	for _, dev := range devices {
		infos = append(infos, deviceInfo{
			Name:       dev.Name,
			Path:       dev.Path,
			DeviceType: dev.Type.String(),
			DeviceID:   -1,
		})
	}
	writeJSON(w, http.StatusOK, infos)
}

// デバイス再スキャンハンドラ
func (s *Server) handleRescanDevices(w http.ResponseWriter, r *http.Request) {
	if !s.service.IsRunning() {
		writeError(w, http.StatusConflict, "サービスが実行されていません")
		return
	}
	s.service.Rescan()
	writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

// サービス起動ハンドラ
func (s *Server) handleStartService(w http.ResponseWriter, r *http.Request) {
	if s.service.IsRunning() {
		writeJSON(w, http.StatusOK, map[string]string{"status": "already_running"})
		return
	}

	if err := s.service.Start(); err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("サービスの起動に失敗しました: %v", err))
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "started"})
}

// サービス停止ハンドラ
func (s *Server) handleStopService(w http.ResponseWriter, r *http.Request) {
	if !s.service.IsRunning() {
		writeJSON(w, http.StatusOK, map[string]string{"status": "not_running"})
		return
	}

	if err := s.service.Stop(); err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("サービスの停止に失敗しました: %v", err))
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "stopped"})
}

// サービス状態取得ハンドラ
func (s *Server) handleServiceStatus(w http.ResponseWriter, r *http.Request) {
	status := "stopped"
	if s.service.IsRunning() {
		status = "running"
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": status})
}

// イベント注入ハンドラ(テスト・自動化向け)
func (s *Server) handleInjectEvent(w http.ResponseWriter, r *http.Request) {
	queue := s.service.Queue()
	if queue == nil {
		writeError(w, http.StatusConflict, "サービスが実行されていません")
		return
	}

	var ev types.InputEvent
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		writeError(w, http.StatusBadRequest, "イベントの解析に失敗しました")
		return
	}

	if err := queue.InjectEvent(ev); err != nil {
		switch {
		case errors.Is(err, processor.ErrInvalidArgument):
			writeError(w, http.StatusBadRequest, "不正なイベントです: "+err.Error())
		case errors.Is(err, processor.ErrOverflow):
			writeError(w, http.StatusServiceUnavailable, "キューが満杯です")
		default:
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "injected"})
}

// イベント取り出しハンドラ。timeout_msクエリでブロック動作を制御する
func (s *Server) handleNextEvent(w http.ResponseWriter, r *http.Request) {
	queue := s.service.Queue()
	if queue == nil {
		writeError(w, http.StatusConflict, "サービスが実行されていません")
		return
	}

	timeoutMs := 0
	if v := r.URL.Query().Get("timeout_ms"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "timeout_msの解析に失敗しました")
			return
		}
		timeoutMs = parsed
	}

	ev, err := queue.ReadEvent(timeoutMs)
	if err != nil {
		switch {
		case errors.Is(err, processor.ErrNoData):
			writeError(w, http.StatusNotFound, "イベントがありません")
		case errors.Is(err, processor.ErrClosed):
			writeError(w, http.StatusConflict, "キューは閉じられています")
		default:
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	writeJSON(w, http.StatusOK, ev)
}

// 統計取得ハンドラ
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	queue := s.service.Queue()
	if queue == nil {
		writeError(w, http.StatusConflict, "サービスが実行されていません")
		return
	}

	stats := queue.Stats()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"injected":  stats.Injected,
		"delivered": stats.Delivered,
		"dropped":   stats.Dropped,
		"pending":   queue.Len(),
	})
}

// ヘルスチェックハンドラ
func (s *Server) handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
