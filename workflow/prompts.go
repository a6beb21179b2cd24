package workflow

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/BaSui01/conceptrag/types"
)

// PromptMessage 是模板中的一条消息, content 中的 {name} 会被替换.
type PromptMessage struct {
	Role    types.Role `yaml:"role"`
	Content string     `yaml:"content"`
}

// Prompt 是一组按顺序发送给模型的消息模板.
type Prompt []PromptMessage

// Render substitutes {name} placeholders and returns the messages.
// Unknown placeholders are left as is.
func (p Prompt) Render(vars map[string]string) []types.Message {
	pairs := make([]string, 0, len(vars)*2)
	for k, v := range vars {
		pairs = append(pairs, "{"+k+"}", v)
	}
	r := strings.NewReplacer(pairs...)

	msgs := make([]types.Message, len(p))
	for i, m := range p {
		msgs[i] = types.NewMessage(m.Role, r.Replace(m.Content))
	}
	return msgs
}

// Prompts 汇总工作流使用的全部模板.
type Prompts struct {
	HistoryConsolidation Prompt `yaml:"history_consolidation"`
	QueryExpansion       Prompt `yaml:"query_expansion"`
	Translation          Prompt `yaml:"translation"`
	QuestionWithContext  Prompt `yaml:"question_with_context_inline_cit"`
	QuestionOpen         Prompt `yaml:"question_open"`
}

// DefaultPrompts returns the built-in templates.
func DefaultPrompts() *Prompts {
	return &Prompts{
		HistoryConsolidation: Prompt{
			{Role: types.RoleSystem, Content: "You rewrite follow-up questions. Given a conversation and a follow-up question, " +
				"rewrite the follow-up as a single self-contained question in the same language. " +
				"Return only the rewritten question."},
			{Role: types.RoleUser, Content: "Conversation:\n{history}\n\nFollow-up question: {question}"},
		},
		QueryExpansion: Prompt{
			{Role: types.RoleSystem, Content: "You improve search queries for a clinical knowledge base. " +
				"Rewrite the question so that it is explicit and includes relevant synonyms and related terms. " +
				"Keep the original language. Return only the rewritten query."},
			{Role: types.RoleUser, Content: "{question}"},
		},
		Translation: Prompt{
			{Role: types.RoleSystem, Content: "You are a professional medical translator. Translate the text from {source_lang} " +
				"to {target_lang}. Preserve clinical terminology. Return only the translation."},
			{Role: types.RoleUser, Content: "{source_text}"},
		},
		QuestionWithContext: Prompt{
			{Role: types.RoleSystem, Content: "Answer the question using only the numbered sources below. " +
				"Cite sources inline with their label, for example [1], [KG1] or [0]. " +
				"If the sources do not contain the answer, say so. Answer in the language of the question.\n\n{context}"},
			{Role: types.RoleUser, Content: "{question}"},
		},
		QuestionOpen: Prompt{
			{Role: types.RoleSystem, Content: "Answer the question accurately and concisely. " +
				"Answer in the language of the question."},
			{Role: types.RoleUser, Content: "{question}"},
		},
	}
}

// LoadPrompts reads templates from a YAML file; keys missing from the file keep
// their built-in default. An empty path returns the defaults.
func LoadPrompts(path string) (*Prompts, error) {
	p := DefaultPrompts()
	if path == "" {
		return p, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read prompts file: %w", err)
	}
	if err := yaml.Unmarshal(data, p); err != nil {
		return nil, fmt.Errorf("parse prompts file: %w", err)
	}
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("prompts file %s: %w", path, err)
	}
	return p, nil
}

// Validate checks every template is non-empty and carries the placeholders the nodes fill.
func (p *Prompts) Validate() error {
	required := []struct {
		name   string
		prompt Prompt
		vars   []string
	}{
		{"history_consolidation", p.HistoryConsolidation, []string{"{history}", "{question}"}},
		{"query_expansion", p.QueryExpansion, []string{"{question}"}},
		{"translation", p.Translation, []string{"{source_text}"}},
		{"question_with_context_inline_cit", p.QuestionWithContext, []string{"{context}", "{question}"}},
		{"question_open", p.QuestionOpen, []string{"{question}"}},
	}
	for _, r := range required {
		if len(r.prompt) == 0 {
			return fmt.Errorf("prompt %s is empty", r.name)
		}
		var all strings.Builder
		for _, m := range r.prompt {
			all.WriteString(m.Content)
		}
		for _, v := range r.vars {
			if !strings.Contains(all.String(), v) {
				return fmt.Errorf("prompt %s is missing placeholder %s", r.name, v)
			}
		}
	}
	return nil
}
