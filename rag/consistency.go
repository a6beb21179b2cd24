package rag

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// DefaultWarningBanner 是答案中存在不一致概念时追加的提示, %d 为不一致概念百分比.
const DefaultWarningBanner = "<div style='padding-top:15px;'><div id='warning'>⚠️ Alcuni concetti menzionati nella risposta non sembrano essere collegati con quelli menzionati nella query. Valutare la risposta in modo scrupoloso e non utilizzare direttamente per prendere decisioni mediche. (%d%%)</div></div>"

// ConsistencyReport 汇总一次一致性检查.
type ConsistencyReport struct {
	AnswerConcepts []Concept `json:"answer_concepts"`
	Inconsistent   []Concept `json:"inconsistent"`
	Percent        int       `json:"percent"`
}

// Flagged reports whether any answer concept was found inconsistent.
func (r ConsistencyReport) Flagged() bool { return len(r.Inconsistent) > 0 }

// ConsistencyChecker 标记无法从任何查询概念经图到达的答案概念.
type ConsistencyChecker struct {
	graph   GraphClient
	maxHops int
	banner  string
	logger  *zap.Logger
}

// NewConsistencyChecker creates a checker. An empty banner selects DefaultWarningBanner.
func NewConsistencyChecker(graph GraphClient, maxHops int, banner string, logger *zap.Logger) *ConsistencyChecker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if banner == "" {
		banner = DefaultWarningBanner
	}
	return &ConsistencyChecker{
		graph:   graph,
		maxHops: maxHops,
		banner:  banner,
		logger:  logger.With(zap.String("component", "consistency_checker")),
	}
}

// Check returns a copy of answerConcepts with Inconsistent set on every concept that is
// neither present in queryConcepts (by id or name) nor graph-connected to any of them.
func (c *ConsistencyChecker) Check(ctx context.Context, queryConcepts, answerConcepts []Concept) (ConsistencyReport, error) {
	ids := make(map[string]struct{}, len(queryConcepts))
	names := make(map[string]struct{}, len(queryConcepts))
	for _, qc := range queryConcepts {
		ids[qc.ID] = struct{}{}
		names[qc.Name] = struct{}{}
	}

	report := ConsistencyReport{AnswerConcepts: make([]Concept, len(answerConcepts))}
	copy(report.AnswerConcepts, answerConcepts)

	for i := range report.AnswerConcepts {
		ac := &report.AnswerConcepts[i]
		_, sameID := ids[ac.ID]
		_, sameName := names[ac.Name]
		if sameID || sameName {
			continue
		}

		connected, err := c.connected(ctx, ac.ID, queryConcepts)
		if err != nil {
			return ConsistencyReport{}, err
		}
		if !connected {
			ac.Inconsistent = true
			report.Inconsistent = append(report.Inconsistent, *ac)
		}
	}

	if n := len(report.AnswerConcepts); n > 0 {
		report.Percent = len(report.Inconsistent) * 100 / n
	}
	if report.Flagged() {
		labels := make([]string, len(report.Inconsistent))
		for i, ic := range report.Inconsistent {
			labels[i] = fmt.Sprintf("%s (%s)", ic.Name, ic.ID)
		}
		c.logger.Warn("inconsistent answer concepts",
			zap.String("concepts", strings.Join(labels, ", ")),
			zap.Int("percent", report.Percent))
	}
	return report, nil
}

func (c *ConsistencyChecker) connected(ctx context.Context, conceptID string, queryConcepts []Concept) (bool, error) {
	for _, qc := range queryConcepts {
		path, err := c.graph.ShortestPath(ctx, conceptID, qc.ID, c.maxHops)
		if err != nil {
			return false, fmt.Errorf("shortest path %s -> %s: %w", conceptID, qc.ID, err)
		}
		if path != nil {
			return true, nil
		}
	}
	return false, nil
}

// Annotate appends the warning banner to answer when the report is flagged.
func (c *ConsistencyChecker) Annotate(answer string, report ConsistencyReport) string {
	if !report.Flagged() {
		return answer
	}
	return answer + "\n" + fmt.Sprintf(c.banner, report.Percent)
}
