package handlers

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BaSui01/conceptrag"
	"github.com/BaSui01/conceptrag/api"
	"github.com/BaSui01/conceptrag/types"
	"github.com/BaSui01/conceptrag/workflow"
)

// RequestIDHeader 是携带请求 ID 的 HTTP 头.
const RequestIDHeader = "X-Request-ID"

// Generator 是 conceptrag.Service 的问答入口.
type Generator interface {
	Generate(ctx context.Context, req conceptrag.Request) conceptrag.Response
}

// GenerateHandler 处理 POST /v1/generate.
type GenerateHandler struct {
	service      Generator
	maxBodyBytes int64
	logger       *zap.Logger
}

// NewGenerateHandler creates the handler. maxBodyBytes <= 0 selects DefaultMaxBodyBytes.
func NewGenerateHandler(service Generator, maxBodyBytes int64, logger *zap.Logger) *GenerateHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GenerateHandler{
		service:      service,
		maxBodyBytes: maxBodyBytes,
		logger:       logger.With(zap.String("component", "generate_handler")),
	}
}

// HandleGenerate runs the workflow for one request. The body is always a
// Response; a workflow failure also sets the HTTP status from its error code,
// 502 for collaborator failures and 500 otherwise.
func (h *GenerateHandler) HandleGenerate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		WriteErrorMessage(w, http.StatusMethodNotAllowed, types.ErrInvalidRequest, "method not allowed", h.logger)
		return
	}
	if !ValidateContentType(w, r, h.logger) {
		return
	}

	var req api.GenerateRequest
	if err := DecodeJSONBody(w, r, &req, h.maxBodyBytes, h.logger); err != nil {
		return
	}
	if err := req.Normalize(); err != nil {
		WriteError(w, types.NewError(types.ErrInvalidRequest, err.Error()), h.logger)
		return
	}

	requestID := r.Header.Get(RequestIDHeader)
	if requestID == "" {
		requestID = uuid.NewString()
	}
	w.Header().Set(RequestIDHeader, requestID)
	ctx := types.WithRequestID(r.Context(), requestID)

	resp := h.service.Generate(ctx, req.Request)
	if !req.IncludeTrace {
		resp.Trace = nil
	}
	status := http.StatusOK
	if resp.Status.Code == workflow.StatusError {
		status = mapErrorCodeToHTTPStatus(resp.Status.ErrorCode)
		h.logger.Warn("workflow failed",
			zap.String("request_id", requestID),
			zap.String("error_code", string(resp.Status.ErrorCode)),
			zap.Int("status", status))
	}
	WriteJSON(w, status, resp)
}
