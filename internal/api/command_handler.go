package api

import (
	"context"
	"encoding/hex"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/taoyao-code/flemlink/internal/gateway"
	"github.com/taoyao-code/flemlink/internal/outbound"
	"github.com/taoyao-code/flemlink/internal/protocol/flem"
)

// Commander 命令下发与查询（*gateway.Link）
type Commander interface {
	Submit(ctx context.Context, msg *outbound.Message) error
	Result(ctx context.Context, id string) (*outbound.Result, error)
	Status() gateway.Status
}

// CommandHandler 命令API处理器
type CommandHandler struct {
	link   Commander
	logger *zap.Logger
}

// NewCommandHandler 创建命令API处理器
func NewCommandHandler(link Commander, logger *zap.Logger) *CommandHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CommandHandler{link: link, logger: logger}
}

// SubmitRequest 下发命令请求
type SubmitRequest struct {
	Cmd      *uint8 `json:"cmd" binding:"required"`
	Payload  string `json:"payload"`            // 十六进制
	Priority int    `json:"priority,omitempty"` // 0 表示按命令码默认
}

// ResultView 命令结果
type ResultView struct {
	ID        string    `json:"id"`
	Cmd       uint8     `json:"cmd"`
	Status    string    `json:"status"`
	Code      string    `json:"code,omitempty"`
	Payload   string    `json:"payload,omitempty"`
	Error     string    `json:"error,omitempty"`
	Retries   int       `json:"retries"`
	UpdatedAt time.Time `json:"updated_at"`
}

func newResultView(r *outbound.Result) ResultView {
	v := ResultView{
		ID:        r.ID,
		Cmd:       uint8(r.Cmd),
		Status:    string(r.Status),
		Payload:   hex.EncodeToString(r.Payload),
		Error:     r.Error,
		Retries:   r.Retries,
		UpdatedAt: r.UpdatedAt,
	}
	if r.Status == outbound.StatusDone {
		v.Code = r.Code.String()
	}
	return v
}

// Submit 下发命令
// POST /api/v1/commands
func (h *CommandHandler) Submit(c *gin.Context) {
	var req SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "message": err.Error()})
		return
	}
	payload, err := hex.DecodeString(req.Payload)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload", "message": err.Error()})
		return
	}

	msg, err := outbound.NewMessage(flem.Command(*req.Cmd), payload, req.Priority)
	switch {
	case errors.Is(err, flem.ErrPayloadTooLarge), errors.Is(err, outbound.ErrInvalidPriority):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid command", "message": err.Error()})
		return
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	if err := h.link.Submit(c.Request.Context(), msg); err != nil {
		h.logger.Error("submit command failed", zap.Uint8("cmd", *req.Cmd), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	h.logger.Info("command submitted",
		zap.String("msg_id", msg.ID),
		zap.Uint8("cmd", *req.Cmd),
		zap.Int("payload_len", len(payload)),
		zap.Int("priority", msg.Priority))
	c.JSON(http.StatusAccepted, gin.H{"id": msg.ID, "priority": msg.Priority})
}

// GetResult 查询命令结果
// GET /api/v1/commands/:id
func (h *CommandHandler) GetResult(c *gin.Context) {
	r, err := h.link.Result(c.Request.Context(), c.Param("id"))
	if errors.Is(err, outbound.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "command not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, newResultView(r))
}

// LinkStatus 链路状态
// GET /api/v1/link
func (h *CommandHandler) LinkStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.link.Status())
}
