package pipeline

import (
	"fmt"
	"strings"

	"github.com/jonathan/decision-letters/internal/llm"
	"github.com/jonathan/decision-letters/internal/prompts"
	"github.com/jonathan/decision-letters/internal/types"
)

const defaultCompanyName = "our company"

// buildMessages renders the system and user prompts for one letter
func (s *Service) buildMessages(req Request, card types.ExplainableCard) ([]llm.Message, error) {
	company := firstNonEmpty(req.CompanyName, s.opts.CompanyName, defaultCompanyName)

	system, err := prompts.Render(prompts.LettersFile, "letter-system", map[string]string{
		"CompanyName": company,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to render system prompt: %w", err)
	}

	instructions, err := s.templateInstructions(req.Template)
	if err != nil {
		return nil, err
	}

	user, err := prompts.Render(prompts.LettersFile, "letter-user", map[string]string{
		"CandidateName":        req.CandidateName,
		"JobTitle":             req.JobTitle,
		"RecruiterName":        firstNonEmpty(req.RecruiterName, "The hiring team"),
		"Tone":                 firstNonEmpty(req.Tone, DefaultTone),
		"Reasons":              bulletList(card.Reasons),
		"Strengths":            bulletList(card.Strengths),
		"TemplateInstructions": instructions,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to render user prompt: %w", err)
	}

	return []llm.Message{
		{Role: llm.RoleSystem, Content: system},
		{Role: llm.RoleUser, Content: user},
	}, nil
}

func (s *Service) templateInstructions(template string) (string, error) {
	if strings.TrimSpace(template) == "" {
		text, err := prompts.Get(prompts.LettersFile, "letter-no-template")
		if err != nil {
			return "", fmt.Errorf("failed to load template instructions: %w", err)
		}
		return text, nil
	}
	text, err := prompts.Render(prompts.LettersFile, "letter-template-instructions", map[string]string{
		"Template": strings.TrimSpace(template),
	})
	if err != nil {
		return "", fmt.Errorf("failed to render template instructions: %w", err)
	}
	return text, nil
}

func bulletList(items []string) string {
	if len(items) == 0 {
		return "- (none)"
	}
	var sb strings.Builder
	for i, item := range items {
		if i > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString("- ")
		sb.WriteString(item)
	}
	return sb.String()
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
