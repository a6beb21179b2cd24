package rag

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"
)

// Neo4jConfig 配置 Neo4j 概念图连接.
type Neo4jConfig struct {
	URI      string `json:"uri"`
	Username string `json:"username"`
	Password string `json:"password"`
	Database string `json:"database"`
	// DisplayProperty 是渲染路径时使用的节点属性, 缺失时显示 "Chunk".
	DisplayProperty string `json:"display_property"`
}

// Neo4jGraph 是基于 Neo4j 的 GraphClient 实现.
type Neo4jGraph struct {
	driver neo4j.DriverWithContext
	config Neo4jConfig
	logger *zap.Logger
}

// NewNeo4jGraph opens a driver and verifies connectivity.
func NewNeo4jGraph(ctx context.Context, config Neo4jConfig, logger *zap.Logger) (*Neo4jGraph, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.DisplayProperty == "" {
		config.DisplayProperty = "FSN"
	}
	driver, err := neo4j.NewDriverWithContext(config.URI, neo4j.BasicAuth(config.Username, config.Password, ""))
	if err != nil {
		return nil, fmt.Errorf("create neo4j driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("verify neo4j connectivity: %w", err)
	}
	logger = logger.With(zap.String("component", "neo4j_graph"))
	logger.Info("neo4j graph connected", zap.String("uri", config.URI))
	return &Neo4jGraph{driver: driver, config: config, logger: logger}, nil
}

const neighborsCypher = `
MATCH (start:ObjectConcept {id: $id}), (final:Chunk)
MATCH path = shortestPath((start)-[*1..%d]-(final))
WHERE all(r IN relationships(path) WHERE type(r) <> 'NEXT')
  AND all(n IN nodes(path)[0..-1] WHERE n:ObjectConcept)
RETURN final.chunkId AS id, path
ORDER BY length(path) ASC`

const shortestPathCypher = `
MATCH path = shortestPath((initial:ObjectConcept {id: $from})-[*1..%d]-(final:ObjectConcept {id: $to}))
WHERE all(n IN nodes(path) WHERE n:ObjectConcept)
RETURN path
LIMIT 1`

const chunkCypher = `
MATCH (n:Chunk) WHERE n.chunkId = $id
RETURN n.chunkId AS id, n.text AS text, n.title AS title
LIMIT 1`

func (g *Neo4jGraph) query(ctx context.Context, cypher string, params map[string]any) (*neo4j.EagerResult, error) {
	opts := []neo4j.ExecuteQueryConfigurationOption{neo4j.ExecuteQueryWithReadersRouting()}
	if g.config.Database != "" {
		opts = append(opts, neo4j.ExecuteQueryWithDatabase(g.config.Database))
	}
	return neo4j.ExecuteQuery(ctx, g.driver, cypher, params, neo4j.EagerResultTransformer, opts...)
}

// ShortestPath implements GraphClient.
func (g *Neo4jGraph) ShortestPath(ctx context.Context, fromID, toID string, maxHops int) (*GraphPath, error) {
	if fromID == toID {
		return nil, nil
	}
	res, err := g.query(ctx, fmt.Sprintf(shortestPathCypher, maxHops), map[string]any{"from": fromID, "to": toID})
	if err != nil {
		return nil, fmt.Errorf("neo4j shortest path: %w", err)
	}
	if len(res.Records) == 0 {
		return nil, nil
	}
	raw, ok := res.Records[0].Get("path")
	if !ok {
		return nil, fmt.Errorf("neo4j shortest path: missing path column")
	}
	p, ok := raw.(neo4j.Path)
	if !ok {
		return nil, fmt.Errorf("neo4j shortest path: unexpected type %T", raw)
	}
	path := convertNeo4jPath(fromID, toID, p, g.config.DisplayProperty)
	return &path, nil
}

// NeighborsWithinHops implements GraphClient.
func (g *Neo4jGraph) NeighborsWithinHops(ctx context.Context, conceptID string, maxHops int) ([]GraphPath, error) {
	res, err := g.query(ctx, fmt.Sprintf(neighborsCypher, maxHops), map[string]any{"id": conceptID})
	if err != nil {
		return nil, fmt.Errorf("neo4j neighbors: %w", err)
	}

	paths := make([]GraphPath, 0, len(res.Records))
	for _, rec := range res.Records {
		chunkID, _, err := neo4j.GetRecordValue[string](rec, "id")
		if err != nil {
			return nil, fmt.Errorf("neo4j neighbors: %w", err)
		}
		raw, _ := rec.Get("path")
		p, ok := raw.(neo4j.Path)
		if !ok {
			return nil, fmt.Errorf("neo4j neighbors: unexpected path type %T", raw)
		}
		paths = append(paths, convertNeo4jPath(conceptID, chunkID, p, g.config.DisplayProperty))
	}
	g.logger.Debug("neighbors resolved", zap.String("concept_id", conceptID), zap.Int("chunks", len(paths)))
	return paths, nil
}

// GetChunk implements GraphClient.
func (g *Neo4jGraph) GetChunk(ctx context.Context, chunkID string) (*Chunk, error) {
	res, err := g.query(ctx, chunkCypher, map[string]any{"id": chunkID})
	if err != nil {
		return nil, fmt.Errorf("neo4j get chunk: %w", err)
	}
	if len(res.Records) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrChunkNotFound, chunkID)
	}
	rec := res.Records[0]
	text, _, _ := neo4j.GetRecordValue[string](rec, "text")
	title, _, _ := neo4j.GetRecordValue[string](rec, "title")
	return &Chunk{ID: chunkID, Text: text, Title: title}, nil
}

// Ping verifies the driver can reach the server.
func (g *Neo4jGraph) Ping(ctx context.Context) error {
	return g.driver.VerifyConnectivity(ctx)
}

// Close releases the driver.
func (g *Neo4jGraph) Close(ctx context.Context) error {
	return g.driver.Close(ctx)
}

// convertNeo4jPath interleaves nodes and relationships: n0, r0, n1, r1, ..., nk.
func convertNeo4jPath(sourceID, targetID string, p neo4j.Path, displayProperty string) GraphPath {
	elements := make([]PathElement, 0, len(p.Nodes)+len(p.Relationships))
	for i, node := range p.Nodes {
		label := LabelChunk
		if v, ok := node.Props[displayProperty].(string); ok && v != "" {
			label = v
		}
		elements = append(elements, PathElement{Kind: PathNode, Label: label})
		if i < len(p.Relationships) {
			elements = append(elements, PathElement{Kind: PathEdge, Label: p.Relationships[i].Type})
		}
	}
	return NewGraphPath(sourceID, targetID, elements)
}
