package api

import (
	"github.com/BaSui01/conceptrag"
)

// GenerateRequest 是 POST /v1/generate 的请求体.
//
//	{
//	  "query": "Come si tratta il diabete di tipo 1?",
//	  "history": [{"role": "user", "content": "..."}],
//	  "additional_context": "",
//	  "use_graph": true,
//	  "use_embeddings": true,
//	  "check_consistency": true,
//	  "reranker": "RRF",
//	  "max_refs": 10,
//	  "include_trace": false
//	}
type GenerateRequest struct {
	conceptrag.Request
	// IncludeTrace 为 true 时响应携带节点执行轨迹
	IncludeTrace bool `json:"include_trace,omitempty"`
}

// GenerateResponse 是 POST /v1/generate 的响应体.
type GenerateResponse = conceptrag.Response
