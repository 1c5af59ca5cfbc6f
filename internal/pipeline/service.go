// Package pipeline composes idempotent execution, letter generation, bias
// checking, explainable cards and receipts into one decision call.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/jonathan/decision-letters/internal/audit"
	"github.com/jonathan/decision-letters/internal/bias"
	"github.com/jonathan/decision-letters/internal/db"
	"github.com/jonathan/decision-letters/internal/explain"
	"github.com/jonathan/decision-letters/internal/generation"
	"github.com/jonathan/decision-letters/internal/idempotency"
	"github.com/jonathan/decision-letters/internal/lint"
	"github.com/jonathan/decision-letters/internal/llm"
	"github.com/jonathan/decision-letters/internal/schemas"
	"github.com/jonathan/decision-letters/internal/types"
)

const (
	// DecisionResourcePrefix scopes the resource lock of a single decision
	DecisionResourcePrefix = "decision:"
	// BatchResourcePrefix scopes the resource lock of a batch
	BatchResourcePrefix = "bulk:"

	// DefaultTemplateVersion is recorded when neither the request nor the service names one
	DefaultTemplateVersion = "1.0"
	// DefaultTone is used when the request names none
	DefaultTone = "respectful"
)

// Store is the persistence collaborator
type Store interface {
	CreateDecision(ctx context.Context, input *db.DecisionInput) (*db.Decision, error)
	UpdateDecisionCard(ctx context.Context, id uuid.UUID, card types.ExplainableCard) error
	CreateReceipt(ctx context.Context, receipt types.ExplainableReceipt) (uuid.UUID, error)
}

// LetterGenerator drafts letters
type LetterGenerator interface {
	Generate(ctx context.Context, req generation.Request) (*generation.Result, error)
}

// ProgressEvent represents a progress update during a decision call
type ProgressEvent struct {
	Step           string `json:"step"`
	Message        string `json:"message"`
	IdempotencyKey string `json:"idempotency_key,omitempty"`
	Content        any    `json:"content,omitempty"`
}

// ProgressCallback is called when pipeline progress occurs
type ProgressCallback func(event ProgressEvent)

type progressKey struct{}

// WithProgress returns a context whose decision calls also report to cb
func WithProgress(ctx context.Context, cb ProgressCallback) context.Context {
	return context.WithValue(ctx, progressKey{}, cb)
}

// ProgressFrom returns the callback attached by WithProgress, or nil
func ProgressFrom(ctx context.Context) ProgressCallback {
	cb, _ := ctx.Value(progressKey{}).(ProgressCallback)
	return cb
}

// Step names reported through ProgressCallback
const (
	StepLint      = "lint_template"
	StepCard      = "generate_card"
	StepGenerate  = "generate_letter"
	StepBiasCheck = "bias_check"
	StepPersist   = "persist_decision"
	StepReceipt   = "create_receipt"
)

// GenerationParams are the caller's generation overrides. Zero values take the service defaults.
type GenerationParams struct {
	Temperature *float64 `json:"temperature,omitempty" validate:"omitempty,gte=0"`
	MaxTokens   int      `json:"max_tokens,omitempty" validate:"omitempty,gt=0"`
	TimeoutMs   int      `json:"timeout_ms,omitempty" validate:"omitempty,gt=0"`
}

// Request is one decision to generate
type Request struct {
	IdempotencyKey   string                  `json:"idempotency_key" validate:"required,max=255"`
	DecisionRef      string                  `json:"decision_ref" validate:"required,max=128"`
	CandidateID      string                  `json:"candidate_id" validate:"required,max=128"`
	CandidateName    string                  `json:"candidate_name" validate:"required,max=200"`
	JobTitle         string                  `json:"job_title" validate:"required,max=200"`
	RecruiterName    string                  `json:"recruiter_name,omitempty" validate:"max=200"`
	CompanyName      string                  `json:"company_name,omitempty" validate:"max=200"`
	Tone             string                  `json:"tone,omitempty" validate:"omitempty,oneof=respectful formal warm neutral"`
	Locale           string                  `json:"locale,omitempty" validate:"max=35"`
	Jurisdiction     string                  `json:"jurisdiction,omitempty" validate:"max=16"`
	Rubric           []types.RubricCriterion `json:"rubric" validate:"required,min=1,dive"`
	Scores           []types.CandidateScore  `json:"scores" validate:"dive"`
	PassingThreshold float64                 `json:"passing_threshold,omitempty" validate:"omitempty,gt=0,lte=5"`
	Template         string                  `json:"template,omitempty"`
	TemplateVersion  string                  `json:"template_version,omitempty" validate:"max=64"`
	Generation       GenerationParams        `json:"generation"`
	BannedPhrases    []string                `json:"banned_phrases,omitempty" validate:"dive,required"`
}

// Result is a generated, checked, persisted and signed decision
type Result struct {
	DecisionID      string                   `json:"decision_id"`
	DecisionRef     string                   `json:"decision_ref"`
	Letter          string                   `json:"letter"`
	Reasons         []string                 `json:"reasons"`
	Card            types.ExplainableCard    `json:"card"`
	Receipt         types.ExplainableReceipt `json:"receipt"`
	BiasScore       int                      `json:"bias_score"`
	BiasWarnings    []types.BiasWarning      `json:"bias_warnings"`
	Jurisdiction    string                   `json:"jurisdiction"`
	TemplateVersion string                   `json:"template_version"`
	Provider        string                   `json:"provider"`
	Model           string                   `json:"model"`
	Fallback        bool                     `json:"fallback"`
	Usage           llm.Usage                `json:"usage"`
}

// Options configures a Service
type Options struct {
	Coordinator *idempotency.Coordinator
	Generator   LetterGenerator
	Cards       *explain.Generator
	Store       Store

	// Detector and Linter default to the built-in rule tables
	Detector *bias.Detector
	Linter   *lint.Linter
	Audit    audit.Sink
	Logger   *log.Logger

	CompanyName      string
	TemplateVersion  string
	PassingThreshold float64
	Generation       generation.Config
	BannedPhrases    []string
	BatchConcurrency int
	// BatchItemBudget bounds one batch item; it defaults to the coordinator lock TTL
	BatchItemBudget time.Duration
	OnProgress      ProgressCallback
}

// Service runs decision calls. It holds no per-request state and is safe for concurrent use.
type Service struct {
	coordinator *idempotency.Coordinator
	generator   LetterGenerator
	cards       *explain.Generator
	store       Store
	detector    *bias.Detector
	linter      *lint.Linter
	audit       audit.Sink
	logger      *log.Logger
	validate    *validator.Validate
	opts        Options
}

// NewService creates a Service from its collaborators
func NewService(opts Options) (*Service, error) {
	switch {
	case opts.Coordinator == nil:
		return nil, errors.New("pipeline: coordinator is required")
	case opts.Generator == nil:
		return nil, errors.New("pipeline: letter generator is required")
	case opts.Cards == nil:
		return nil, errors.New("pipeline: card generator is required")
	case opts.Store == nil:
		return nil, errors.New("pipeline: store is required")
	}
	if opts.Detector == nil {
		opts.Detector = bias.NewDetector()
	}
	if opts.Linter == nil {
		opts.Linter = lint.NewLinter(opts.Detector)
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	if opts.TemplateVersion == "" {
		opts.TemplateVersion = DefaultTemplateVersion
	}
	if opts.PassingThreshold <= 0 {
		opts.PassingThreshold = explain.DefaultPassingThreshold
	}
	if opts.BatchConcurrency <= 0 {
		opts.BatchConcurrency = DefaultBatchConcurrency
	}
	if opts.BatchItemBudget <= 0 {
		opts.BatchItemBudget = opts.Coordinator.LockTTL()
	}
	return &Service{
		coordinator: opts.Coordinator,
		generator:   opts.Generator,
		cards:       opts.Cards,
		store:       opts.Store,
		detector:    opts.Detector,
		linter:      opts.Linter,
		audit:       opts.Audit,
		logger:      opts.Logger,
		validate:    validator.New(),
		opts:        opts,
	}, nil
}

// Generate runs one decision through the idempotency coordinator. Malformed
// requests and templates are rejected before any lock is taken.
func (s *Service) Generate(ctx context.Context, req Request) (*Result, error) {
	if err := s.validateRequest(ctx, req); err != nil {
		return nil, err
	}

	resource := DecisionResourcePrefix + req.DecisionRef
	result, err := idempotency.Run(ctx, s.coordinator, req.IdempotencyKey, resource, idempotency.ExecuteOptions{},
		func(ctx context.Context) (*Result, error) {
			return s.run(ctx, req, resource)
		})
	if err != nil {
		return nil, translate(err)
	}
	return result, nil
}

// Validate checks the request fields, the idempotency key and the template
func (s *Service) Validate(req Request) error {
	return s.validateRequest(context.Background(), req)
}

func (s *Service) validateRequest(ctx context.Context, req Request) error {
	if err := s.validate.Struct(req); err != nil {
		return validationError(err)
	}
	if err := idempotency.ValidateKey(req.IdempotencyKey); err != nil {
		return &ValidationError{Message: "invalid idempotency key", Field: "idempotency_key", Cause: err}
	}
	if strings.TrimSpace(req.Template) == "" {
		return nil
	}

	result := s.linter.Lint(req.Template, s.lintContext(req))
	s.progress(ctx, req, StepLint, fmt.Sprintf("Template linted: score %d, %d errors, %d warnings",
		result.Score, len(result.Errors), len(result.Warnings)), result)
	if !result.Passed {
		return &ValidationError{
			Message: fmt.Sprintf("template failed lint with %d errors", len(result.Errors)),
			Field:   "template",
			Lint:    &result,
		}
	}
	return nil
}

// run is the guarded operation. Nothing is persisted unless the letter
// passes every safety check.
func (s *Service) run(ctx context.Context, req Request, resource string) (*Result, error) {
	jurisdiction := s.jurisdiction(req)
	templateVersion := req.TemplateVersion
	if templateVersion == "" {
		templateVersion = s.opts.TemplateVersion
	}

	threshold := req.PassingThreshold
	if threshold == 0 {
		threshold = s.opts.PassingThreshold
	}
	card, err := s.cards.GenerateCard(explain.CardInput{
		DecisionID:       explain.PendingDecisionID,
		CandidateID:      req.CandidateID,
		JobTitle:         req.JobTitle,
		Rubric:           req.Rubric,
		Scores:           req.Scores,
		PassingThreshold: threshold,
		Locale:           req.Locale,
	})
	if err != nil {
		return nil, &ValidationError{Message: "failed to build explainable card", Field: "rubric", Cause: err}
	}
	s.progress(ctx, req, StepCard, fmt.Sprintf("Card built: overall score %.1f, %d reasons", card.OverallScore, len(card.Reasons)), nil)

	messages, err := s.buildMessages(req, card)
	if err != nil {
		return nil, err
	}
	letter, err := s.generator.Generate(ctx, generation.Request{
		Messages:       messages,
		Config:         s.generationConfig(req.Generation),
		IdempotencyKey: req.IdempotencyKey,
		BannedPhrases:  append(append([]string(nil), s.opts.BannedPhrases...), req.BannedPhrases...),
	})
	if err != nil {
		var safety *generation.SafetyError
		if errors.As(err, &safety) {
			s.logger.Printf("[pipeline] letter for %s rejected by %s/%s: %v", resource, safety.Provider, safety.Model, safety)
			s.auditBiasFailure(ctx, req, jurisdiction, map[string]any{
				"source":     "generation",
				"matches":    len(safety.Matches),
				"warnings":   len(safety.Warnings),
				"categories": categories(safety.Warnings),
				"blocked":    safety.Blocked,
			})
		}
		return nil, err
	}
	s.progress(ctx, req, StepGenerate, fmt.Sprintf("Letter generated by %s/%s", letter.Provider, letter.Model), nil)

	check := s.detector.Detect(letter.Text, jurisdiction)
	if !check.Passed {
		s.logger.Printf("[pipeline] letter for %s failed bias check: score %d, %d warnings", resource, check.Score, len(check.Warnings))
		s.auditBiasFailure(ctx, req, jurisdiction, map[string]any{
			"source":     "bias_check",
			"score":      check.Score,
			"warnings":   len(check.Warnings),
			"categories": categories(check.Warnings),
		})
		return nil, &generation.SafetyError{
			Message:  fmt.Sprintf("letter failed bias check with score %d", check.Score),
			Text:     letter.Text,
			Warnings: check.Warnings,
			Provider: letter.Provider,
			Model:    letter.Model,
		}
	}
	s.progress(ctx, req, StepBiasCheck, fmt.Sprintf("Bias check passed: score %d", check.Score), nil)

	decision, err := s.store.CreateDecision(ctx, &db.DecisionInput{
		IdempotencyKey:  req.IdempotencyKey,
		ResourceName:    resource,
		CandidateID:     req.CandidateID,
		JobTitle:        req.JobTitle,
		Jurisdiction:    jurisdiction,
		Letter:          letter.Text,
		Reasons:         card.Reasons,
		TemplateVersion: templateVersion,
		Provider:        letter.Provider,
		Model:           letter.Model,
		BiasScore:       check.Score,
	})
	if err != nil {
		return nil, &PersistenceError{Message: "failed to create decision", Cause: err}
	}

	bound := card.WithDecisionID(decision.ID.String())
	if err := schemas.ValidateCard(bound); err != nil {
		return nil, err
	}
	if err := s.store.UpdateDecisionCard(ctx, decision.ID, bound); err != nil {
		return nil, &PersistenceError{Message: "failed to attach card", Cause: err}
	}
	s.progress(ctx, req, StepPersist, fmt.Sprintf("Decision %s stored", decision.ID), nil)

	payload := types.DecisionPayload{Letter: letter.Text, Reasons: bound.Reasons, TemplateVersion: templateVersion}
	receipt, err := s.cards.CreateReceipt(bound, payload)
	if err != nil {
		return nil, err
	}
	if err := schemas.ValidateReceipt(receipt); err != nil {
		return nil, err
	}
	if _, err := s.store.CreateReceipt(ctx, receipt); err != nil {
		return nil, &PersistenceError{Message: "failed to store receipt", Cause: err}
	}
	s.progress(ctx, req, StepReceipt, fmt.Sprintf("Receipt %s signed", receipt.Hash[:12]), nil)

	audit.Emit(ctx, s.audit, s.logger, types.AuditEntry{
		Action:     types.ActionDecisionGenerated,
		EntityType: "decision",
		EntityID:   decision.ID.String(),
		Metadata: map[string]any{
			"idempotency_key": req.IdempotencyKey,
			"resource":        resource,
			"provider":        letter.Provider,
			"model":           letter.Model,
			"fallback":        letter.Fallback,
			"bias_score":      check.Score,
			"receipt_hash":    receipt.Hash,
		},
	})

	warnings := check.Warnings
	if warnings == nil {
		warnings = []types.BiasWarning{}
	}
	return &Result{
		DecisionID:      decision.ID.String(),
		DecisionRef:     req.DecisionRef,
		Letter:          letter.Text,
		Reasons:         bound.Reasons,
		Card:            bound,
		Receipt:         receipt,
		BiasScore:       check.Score,
		BiasWarnings:    warnings,
		Jurisdiction:    jurisdiction,
		TemplateVersion: templateVersion,
		Provider:        letter.Provider,
		Model:           letter.Model,
		Fallback:        letter.Fallback,
		Usage:           letter.Usage,
	}, nil
}

func (s *Service) jurisdiction(req Request) string {
	if req.Jurisdiction != "" {
		return string(bias.NormalizeJurisdiction(req.Jurisdiction))
	}
	return explain.JurisdictionFor(req.Locale)
}

func (s *Service) lintContext(req Request) lint.Context {
	ctx := lint.DefaultContext()
	if req.Locale != "" {
		ctx.Locale = req.Locale
	}
	ctx.Jurisdiction = s.jurisdiction(req)
	for _, c := range req.Rubric {
		ctx.RubricFields = append(ctx.RubricFields, c.Name)
	}
	return ctx
}

func (s *Service) generationConfig(p GenerationParams) generation.Config {
	cfg := s.opts.Generation
	if p.Temperature != nil {
		cfg.Temperature = *p.Temperature
	}
	if p.MaxTokens > 0 {
		cfg.MaxTokens = p.MaxTokens
	}
	if p.TimeoutMs > 0 {
		cfg.Timeout = time.Duration(p.TimeoutMs) * time.Millisecond
	}
	return cfg
}

func (s *Service) progress(ctx context.Context, req Request, step, message string, content any) {
	scoped := ProgressFrom(ctx)
	if s.opts.OnProgress == nil && scoped == nil {
		return
	}
	event := ProgressEvent{
		Step:           step,
		Message:        message,
		IdempotencyKey: req.IdempotencyKey,
		Content:        content,
	}
	if s.opts.OnProgress != nil {
		s.opts.OnProgress(event)
	}
	if scoped != nil {
		scoped(event)
	}
}

// translate turns a replayed permanent failure back into its typed error
func translate(err error) error {
	var replayed *idempotency.ReplayedError
	if errors.As(err, &replayed) {
		switch replayed.Failure.Kind {
		case generation.FailureKindSafety:
			if safety, derr := generation.DecodeSafetyError(replayed.Failure.Detail); derr == nil {
				return safety
			}
		case FailureKindValidation:
			if invalid, derr := decodeValidationError(replayed.Failure.Detail); derr == nil {
				return invalid
			}
		}
	}
	var keyErr *idempotency.KeyError
	if errors.As(err, &keyErr) {
		return &ValidationError{Message: "invalid idempotency key", Field: "idempotency_key", Cause: err}
	}
	return err
}

// validationError converts validator output to a ValidationError naming the first bad field
func validationError(err error) error {
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		return &ValidationError{
			Message: fmt.Sprintf("failed %q check", fe.Tag()),
			Field:   fe.Namespace(),
			Cause:   err,
		}
	}
	return &ValidationError{Message: "invalid request", Cause: err}
}

func categories(warnings []types.BiasWarning) []string {
	seen := make(map[types.BiasCategory]bool)
	var out []string
	for _, w := range warnings {
		if !seen[w.Category] {
			seen[w.Category] = true
			out = append(out, string(w.Category))
		}
	}
	return out
}

// auditBiasFailure records a letter that was rejected before persistence
func (s *Service) auditBiasFailure(ctx context.Context, req Request, jurisdiction string, metadata map[string]any) {
	metadata["idempotency_key"] = req.IdempotencyKey
	metadata["jurisdiction"] = jurisdiction
	audit.Emit(ctx, s.audit, s.logger, types.AuditEntry{
		Action:     types.ActionBiasCheckFailed,
		EntityType: "decision",
		EntityID:   req.DecisionRef,
		Metadata:   metadata,
	})
}
