// Package fixtures 提供测试用的概念图与检索样例。
package fixtures

import (
	"github.com/BaSui01/conceptrag/rag"
)

// 概念样例. Fracture 与其他概念在图中不连通.
var (
	Diabetes      = rag.Concept{ID: "73211009", Name: "Diabetes mellitus", MatchScore: 0.98, SemanticTags: []string{"disorder"}}
	Insulin       = rag.Concept{ID: "67866001", Name: "Insulin", MatchScore: 0.95, SemanticTags: []string{"substance"}}
	Hyperglycemia = rag.Concept{ID: "80394007", Name: "Hyperglycemia", MatchScore: 0.9, SemanticTags: []string{"finding"}}
	Fracture      = rag.Concept{ID: "71620000", Name: "Fracture of femur", MatchScore: 0.8, SemanticTags: []string{"disorder"}}
)

// 内容块 ID.
const (
	ChunkInsulin       = "diabetes_guideline.txt_1"
	ChunkHyperglycemia = "diabetes_guideline.txt_2"
	ChunkFracture      = "orthopedics.txt_1"
)

// MedicalGraph builds a small concept graph:
//
//	Diabetes --TREATED_BY--> Insulin --MENTIONED_IN--> ChunkInsulin
//	Diabetes --HAS_FINDING--> Hyperglycemia --MENTIONED_IN--> ChunkHyperglycemia
//	Diabetes --MENTIONED_IN--> ChunkHyperglycemia
//	Fracture --MENTIONED_IN--> ChunkFracture
//	ChunkInsulin --NEXT--> ChunkHyperglycemia
func MedicalGraph() *rag.MemoryGraph {
	g := rag.NewMemoryGraph(nil)
	for _, c := range []rag.Concept{Diabetes, Insulin, Hyperglycemia, Fracture} {
		g.AddConcept(c.ID, c.Name)
	}
	g.AddChunk(ChunkInsulin, "Diabetes guideline", "Insulin therapy is indicated for type 1 diabetes.")
	g.AddChunk(ChunkHyperglycemia, "Diabetes guideline", "Persistent hyperglycemia is the hallmark of diabetes.")
	g.AddChunk(ChunkFracture, "Orthopedics", "Femoral fractures usually require surgical fixation.")

	edges := [][3]string{
		{Diabetes.ID, Insulin.ID, "TREATED_BY"},
		{Insulin.ID, ChunkInsulin, "MENTIONED_IN"},
		{Diabetes.ID, Hyperglycemia.ID, "HAS_FINDING"},
		{Hyperglycemia.ID, ChunkHyperglycemia, "MENTIONED_IN"},
		{Diabetes.ID, ChunkHyperglycemia, "MENTIONED_IN"},
		{Fracture.ID, ChunkFracture, "MENTIONED_IN"},
		{ChunkInsulin, ChunkHyperglycemia, rag.RelNext},
	}
	for _, e := range edges {
		if err := g.AddEdge(e[0], e[1], e[2]); err != nil {
			panic(err)
		}
	}
	return g
}

// EmbeddingDocs returns two similarity-search hits sorted by score descending.
func EmbeddingDocs() []rag.RetrievedDocument {
	return []rag.RetrievedDocument{
		{
			ID:      ChunkInsulin,
			Content: "Insulin therapy is indicated for type 1 diabetes.",
			Score:   0.82,
			Metadata: rag.DocumentMetadata{
				Title:      "Diabetes guideline",
				SourcePath: rag.SourcePathFromChunkID(ChunkInsulin),
				ChunkID:    ChunkInsulin,
			},
		},
		{
			ID:      "nutrition.txt_4",
			Content: "Dietary counselling reduces HbA1c.",
			Score:   0.55,
			Metadata: rag.DocumentMetadata{
				Title:      "Nutrition",
				SourcePath: rag.SourcePathFromChunkID("nutrition.txt_4"),
				ChunkID:    "nutrition.txt_4",
			},
		},
	}
}
