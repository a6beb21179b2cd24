package middleware

import (
	"context"
	"strings"

	llmpkg "github.com/BaSui01/conceptrag/llm"
	"github.com/BaSui01/conceptrag/types"
)

// SystemRoleAck 是替换 system 消息时插入的助手确认语.
const SystemRoleAck = "Okay."

// SystemRoleFlattener 为不接受 system 角色的模型改写请求:
// 开头的 system 消息改为 user 消息, 并紧跟一条助手确认消息.
type SystemRoleFlattener struct {
	models map[string]struct{}
}

// NewSystemRoleFlattener 创建改写器, models 为不支持 system 角色的模型名 (大小写不敏感).
func NewSystemRoleFlattener(models []string) *SystemRoleFlattener {
	set := make(map[string]struct{}, len(models))
	for _, m := range models {
		if m = strings.ToLower(strings.TrimSpace(m)); m != "" {
			set[m] = struct{}{}
		}
	}
	return &SystemRoleFlattener{models: set}
}

func (f *SystemRoleFlattener) Name() string { return "system_role_flattener" }

// Rewrite 实现 RequestRewriter. 不修改传入的消息切片.
func (f *SystemRoleFlattener) Rewrite(_ context.Context, req *llmpkg.ChatRequest) (*llmpkg.ChatRequest, error) {
	if req == nil || len(req.Messages) == 0 || req.Messages[0].Role != types.RoleSystem {
		return req, nil
	}
	if _, ok := f.models[strings.ToLower(req.Model)]; !ok {
		return req, nil
	}

	msgs := make([]types.Message, 0, len(req.Messages)+1)
	msgs = append(msgs,
		types.NewUserMessage(req.Messages[0].Content),
		types.NewAssistantMessage(SystemRoleAck))
	msgs = append(msgs, req.Messages[1:]...)

	out := *req
	out.Messages = msgs
	return &out, nil
}
