package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/fiamma-chain/AITradeNews/internal/config"
	"github.com/fiamma-chain/AITradeNews/internal/coordinator"
	"github.com/fiamma-chain/AITradeNews/internal/decision"
)

// SignalSink 为信号入口能力，由协调器实现。
type SignalSink interface {
	Submit(signal decision.Signal) bool
}

// ReportSource 为历史报告查询能力，由报告存储实现。
type ReportSource interface {
	ListReports(ctx context.Context, asset string, limit int) ([]coordinator.Report, error)
}

// Server 暴露监控与手工注入接口：
// POST /signal 注入信号，GET /reports 查询历史报告，GET /ws 订阅实时推送。
type Server struct {
	cfg     config.MonitorConfig
	sink    SignalSink
	reports ReportSource
	hub     *Hub
	logger  *zap.Logger
}

// NewServer 创建监控服务，hub 可为 nil 表示不提供实时推送。
func NewServer(cfg config.MonitorConfig, sink SignalSink, reports ReportSource, hub *Hub, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		cfg:     cfg,
		sink:    sink,
		reports: reports,
		hub:     hub,
		logger:  logger,
	}
}

// Start 启动 HTTP 服务，ctx 取消时优雅关闭。
func (s *Server) Start(ctx context.Context) error {
	if !s.cfg.Enabled {
		return nil
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/signal", s.handleSignal)
	mux.HandleFunc("/reports", s.handleReports)
	if s.hub != nil {
		mux.HandleFunc("/ws", s.hub.ServeWS)
	}

	addr := fmt.Sprintf(":%d", s.cfg.Port)
	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if s.hub != nil {
			s.hub.Close()
		}
		if err := srv.Shutdown(shutdownCtx); err != nil && err != http.ErrServerClosed {
			s.logger.Warn("关闭监控服务失败", zap.Error(err))
		}
	}()

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("监控服务异常", zap.Error(err))
		}
	}()

	s.logger.Info("监控接口已启动", zap.String("addr", addr))
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

type signalRequest struct {
	Source   string `json:"source"`
	Asset    string `json:"asset"`
	Headline string `json:"headline"`
	Body     string `json:"body"`
}

func (s *Server) handleSignal(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req signalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	if req.Source == "" {
		req.Source = "manual"
	}

	signal := decision.NewSignal(req.Source, req.Asset, req.Headline, req.Body)
	if err := signal.Validate(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	accepted := s.sink.Submit(signal)

	w.Header().Set("Content-Type", "application/json")
	if !accepted {
		w.WriteHeader(http.StatusTooManyRequests)
	}
	json.NewEncoder(w).Encode(map[string]interface{}{
		"signal_id": signal.ID,
		"accepted":  accepted,
	})
}

func (s *Server) handleReports(w http.ResponseWriter, r *http.Request) {
	if s.reports == nil {
		http.Error(w, "report store disabled", http.StatusNotFound)
		return
	}

	q := r.URL.Query()
	limit := 200
	if qs := q.Get("limit"); qs != "" {
		if v, err := strconv.Atoi(qs); err == nil && v > 0 {
			if v > 1000 {
				v = 1000
			}
			limit = v
		}
	}
	asset := strings.ToUpper(strings.TrimSpace(q.Get("asset")))

	reports, err := s.reports.ListReports(r.Context(), asset, limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(reports); err != nil {
		s.logger.Warn("写入监控响应失败", zap.Error(err))
	}
}
