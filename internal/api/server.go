package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	xerrors "SuiChat-Agent/internal/errors"
	"SuiChat-Agent/internal/events"
	"SuiChat-Agent/internal/orchestrator"
	"SuiChat-Agent/internal/storage"
)

const defaultWaitTimeout = 60 * time.Second

// Server 负责暴露 REST 接口，供外部驱动消息编排。
type Server struct {
	addr        string
	bus         *events.Bus
	service     *orchestrator.Service
	store       storage.Store
	waitTimeout time.Duration
}

// NewServer 构造 API 服务实例。waitTimeout 为零时取默认的 60 秒。
func NewServer(addr string, bus *events.Bus, service *orchestrator.Service,
	store storage.Store, waitTimeout time.Duration) *Server {
	if waitTimeout <= 0 {
		waitTimeout = defaultWaitTimeout
	}
	return &Server{
		addr:        addr,
		bus:         bus,
		service:     service,
		store:       store,
		waitTimeout: waitTimeout,
	}
}

// Start 启动 HTTP 服务，直到上下文取消或出现错误。
func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.addr,
		Handler:           withContext(ctx, s.Handler()),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

// Handler 返回路由后的处理器，测试中可直接挂到 httptest。
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/chat", s.handleChat)
	mux.HandleFunc("/api/v1/history", s.handleHistory)
	return mux
}

type chatRequest struct {
	UserID    string `json:"user_id"`
	MessageID string `json:"message_id"`
	Message   string `json:"message"`
}

type chatResponse struct {
	MessageID string `json:"message_id"`
	Reply     string `json:"reply"`
}

// handleChat 同步编排一条消息并返回最终回复。
//
// 重复提交（同一 message_id 已有处理流程）时不再发起新的编排，
// 改为等待既有流程的完成事件，随后把最新的助手回复返回给调用方。
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "仅支持 POST", http.StatusMethodNotAllowed)
		return
	}

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "请求体解析失败", http.StatusBadRequest)
		return
	}
	if req.UserID == "" || req.Message == "" {
		http.Error(w, "user_id 与 message 不能为空", http.StatusBadRequest)
		return
	}
	if req.MessageID == "" {
		req.MessageID = uuid.NewString()
	}

	ctx := r.Context()
	reply, err := s.service.HandleMessage(ctx, req.MessageID, req.UserID, req.Message)
	if err != nil {
		if xerrors.CodeOf(err) != xerrors.CodeConflict {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		// 已有处理流程在运行，等它完成后读取回复。
		if !s.bus.WaitForProcessingCompleted(ctx, req.MessageID, req.UserID, s.waitTimeout) {
			http.Error(w, "等待消息处理超时", http.StatusGatewayTimeout)
			return
		}
		reply = s.latestReply(ctx, req.UserID)
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(chatResponse{MessageID: req.MessageID, Reply: reply})
}

// handleHistory 返回某用户最近的会话记录，按时间正序。
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "仅支持 GET", http.StatusMethodNotAllowed)
		return
	}
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		http.Error(w, "user_id 不能为空", http.StatusBadRequest)
		return
	}
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	messages, err := s.store.GetConversationHistory(r.Context(), userID, limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(messages)
}

// latestReply 取该用户最新的一条助手回复。
func (s *Server) latestReply(ctx context.Context, userID string) string {
	messages, err := s.store.GetConversationHistory(ctx, userID, 10)
	if err != nil {
		return ""
	}
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == "assistant" {
			return messages[i].Content
		}
	}
	return ""
}

// withContext 确保请求处理能够感知根上下文取消。
func withContext(ctx context.Context, handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-ctx.Done():
			http.Error(w, "服务已关闭", http.StatusServiceUnavailable)
			return
		default:
		}
		handler.ServeHTTP(w, r)
	})
}
