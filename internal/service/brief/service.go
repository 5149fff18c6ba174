package brief

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"nexus/internal/events"
	"nexus/internal/model"
	"nexus/internal/repository"
	"nexus/internal/service"
	"nexus/pkg/logger"
	"nexus/pkg/metrics"
	"nexus/pkg/rbac"
)

// EventPublisher is satisfied by *events.Bus.
type EventPublisher interface {
	Publish(ctx context.Context, e events.Event) int
}

// Brief is the JSON document the model must return.
type Brief struct {
	Summary         string   `json:"summary"`
	Health          string   `json:"health"`
	Risks           []string `json:"risks"`
	Recommendations []string `json:"recommendations"`
	Highlights      []string `json:"highlights"`
}

// Result is served to clients. Brief holds the stored model output verbatim.
type Result struct {
	ProjectID   string          `json:"projectId"`
	Brief       json.RawMessage `json:"brief"`
	GeneratedAt time.Time       `json:"generatedAt"`
	Cached      bool            `json:"cached"`
}

type Service struct {
	store     repository.ProjectStore
	gen       Generator
	publisher EventPublisher
	ttl       time.Duration
	logger    *zap.Logger
	now       func() time.Time
}

func NewService(store repository.ProjectStore, gen Generator, publisher EventPublisher, ttl time.Duration, logger *zap.Logger) *Service {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Service{
		store:     store,
		gen:       gen,
		publisher: publisher,
		ttl:       ttl,
		logger:    logger,
		now:       time.Now,
	}
}

// Get returns the project's executive brief. A stored brief younger than the
// TTL and not older than the last project change is served as is unless
// refresh is set.
func (s *Service) Get(ctx context.Context, actor service.Actor, projectID string, refresh bool) (*Result, error) {
	log := logger.WithTrace(ctx, s.logger).With(zap.String("project_id", projectID))

	p, err := s.store.Get(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if err := service.Authorize(p, actor, rbac.PermissionReadBrief); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	if !refresh && p.BriefFresh(now, s.ttl) {
		metrics.IncrementBriefCache("hit")
		return &Result{
			ProjectID:   p.ID,
			Brief:       p.ExecutiveBrief.Content,
			GeneratedAt: p.ExecutiveBrief.GeneratedAt,
			Cached:      true,
		}, nil
	}
	metrics.IncrementBriefCache("miss")

	if s.gen == nil || !s.gen.Configured() {
		return nil, fmt.Errorf("executive brief: model api key is not configured: %w", model.ErrUnavailable)
	}

	snapshot := ComputeMetrics(p, now)
	prompt, err := buildPrompt(snapshot)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	text, err := s.gen.Generate(ctx, prompt)
	if err != nil {
		metrics.RecordAICallLatency(s.gen.Name(), "error", time.Since(start))
		log.Error("Brief generation failed", zap.Error(err))
		return nil, fmt.Errorf("%w: brief generation: %v", model.ErrUpstream, err)
	}

	content, err := ParseBrief(text)
	if err != nil {
		metrics.RecordAICallLatency(s.gen.Name(), "invalid", time.Since(start))
		log.Warn("Model returned an invalid brief", zap.Error(err))
		return nil, fmt.Errorf("%w: %v", model.ErrUpstream, err)
	}
	metrics.RecordAICallLatency(s.gen.Name(), "ok", time.Since(start))

	stored := model.ExecutiveBrief{Content: content, GeneratedAt: now}
	if err := s.store.SaveBrief(ctx, p.ID, stored); err != nil {
		return nil, fmt.Errorf("save brief: %w", err)
	}

	log.Info("Executive brief generated", zap.Duration("latency", time.Since(start)))
	s.publisher.Publish(ctx, events.Event{
		Name:        events.BriefGenerated,
		ProjectID:   p.ID,
		ProjectName: p.Name,
		Actor:       actor.Label(),
		Title:       "Executive brief ready",
		Message:     "A new executive brief was generated for " + p.Name,
		Level:       events.LevelSuccess,
	})

	return &Result{
		ProjectID:   p.ID,
		Brief:       content,
		GeneratedAt: now,
		Cached:      false,
	}, nil
}

// ParseBrief strips Markdown code fences from model output, checks it is a
// brief and returns it compacted.
func ParseBrief(text string) (json.RawMessage, error) {
	text = stripFences(text)

	var b Brief
	if err := json.Unmarshal([]byte(text), &b); err != nil {
		return nil, fmt.Errorf("brief is not valid JSON: %w", err)
	}
	if strings.TrimSpace(b.Summary) == "" {
		return nil, fmt.Errorf("brief has no summary")
	}

	var buf bytes.Buffer
	if err := json.Compact(&buf, []byte(text)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func stripFences(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	text = strings.TrimPrefix(text, "```")
	if i := strings.IndexByte(text, '\n'); i >= 0 {
		// drop the language tag line, e.g. ```json
		text = text[i+1:]
	}
	text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	return strings.TrimSpace(text)
}

func buildPrompt(m Metrics) (string, error) {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	sb.WriteString("You are a delivery lead writing an executive brief for a software project.\n")
	sb.WriteString("Use only the metrics below. Respond with a single JSON object and nothing else, shaped as:\n")
	sb.WriteString(`{"summary": string, "health": "on-track" | "at-risk" | "off-track", "risks": [string], "recommendations": [string], "highlights": [string]}`)
	sb.WriteString("\n\nProject metrics:\n")
	sb.Write(data)
	return sb.String(), nil
}
