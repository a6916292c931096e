package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	"taskharvest/internal/config"
	"taskharvest/internal/models"
	"taskharvest/internal/storage"
)

// WorkloadAnalysis is the model's (or the fallback's) read on a user's
// open tasks.
type WorkloadAnalysis struct {
	Summary  string              `json:"summary"`
	Buckets  map[string][]string `json:"buckets"` // priority "1".."5" -> task titles
	Plan     []string            `json:"plan"`
	Fallback bool                `json:"fallback"`
}

// AnalysisService asks the model to prioritize a user's open tasks. A
// transient model formatting issue never surfaces as an error: the
// deterministic fallback stands in instead.
type AnalysisService struct {
	store   storage.Store
	client  *openai.Client
	cfg     config.OpenAIConfig
	timeout time.Duration
}

// NewAnalysisService creates the workload analyzer.
func NewAnalysisService(store storage.Store, cfg config.OpenAIConfig, timeout time.Duration) *AnalysisService {
	return &AnalysisService{
		store:   store,
		client:  openai.NewClient(cfg.APIKey),
		cfg:     cfg,
		timeout: timeout,
	}
}

const analysisSystemPrompt = "You are a workload planner. Respond with ONLY JSON: " +
	`{"summary": "...", "buckets": {"1": [], "2": [], "3": [], "4": [], "5": []}, "plan": ["..."]}`

// AnalyzeWorkload buckets the user's open tasks by priority and proposes
// an execution plan.
func (s *AnalysisService) AnalyzeWorkload(ctx context.Context, userID string) (*WorkloadAnalysis, error) {
	tasks, err := s.store.ListOpenTasks(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load open tasks: %w", err)
	}
	if len(tasks) == 0 {
		return &WorkloadAnalysis{
			Summary: "No open tasks.",
			Buckets: emptyBuckets(),
			Plan:    []string{},
		}, nil
	}

	var sb strings.Builder
	for _, task := range tasks {
		fmt.Fprintf(&sb, "- [%s/p%d] %s\n", task.Type, task.Priority, task.Title)
	}
	prompt := fmt.Sprintf(`Open tasks for this user:

%s
Group the task titles into priority buckets 1 (lowest) to 5 (highest),
reassigning priorities where the stated ones look wrong, and propose a
short ordered execution plan (3-6 steps).`, sb.String())

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	model := s.cfg.Model
	if model == "" {
		model = openai.GPT4oMini
	}
	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       model,
		Temperature: float32(s.cfg.Temperature),
		MaxTokens:   s.cfg.MaxTokens,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: analysisSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		log.Printf("WARNING: Workload analysis model call failed, using fallback: %v", err)
		return fallbackAnalysis(tasks), nil
	}
	if len(resp.Choices) == 0 {
		return fallbackAnalysis(tasks), nil
	}

	payload := extractJSONPayload(resp.Choices[0].Message.Content)
	if payload == "" {
		log.Printf("WARNING: Unparseable workload analysis output, using fallback")
		return fallbackAnalysis(tasks), nil
	}
	var analysis WorkloadAnalysis
	if err := json.Unmarshal([]byte(payload), &analysis); err != nil {
		log.Printf("WARNING: Failed to decode workload analysis, using fallback: %v", err)
		return fallbackAnalysis(tasks), nil
	}
	if analysis.Buckets == nil {
		analysis.Buckets = emptyBuckets()
	}
	return &analysis, nil
}

func emptyBuckets() map[string][]string {
	buckets := make(map[string][]string, 5)
	for p := 1; p <= 5; p++ {
		buckets[strconv.Itoa(p)] = []string{}
	}
	return buckets
}

// fallbackAnalysis is the deterministic stand-in when the model output is
// unusable: titles sorted and distributed evenly across priority buckets
// (highest first), plus a generic execution plan. Same input, same output.
func fallbackAnalysis(tasks []models.Task) *WorkloadAnalysis {
	titles := make([]string, 0, len(tasks))
	for _, task := range tasks {
		titles = append(titles, task.Title)
	}
	sort.Strings(titles)

	buckets := emptyBuckets()
	for i, title := range titles {
		priority := 5 - (i % 5)
		key := strconv.Itoa(priority)
		buckets[key] = append(buckets[key], title)
	}

	return &WorkloadAnalysis{
		Summary: fmt.Sprintf("%d open tasks distributed across priority buckets.", len(tasks)),
		Buckets: buckets,
		Plan: []string{
			"Work through priority 5 tasks first.",
			"Batch quick wins between larger items.",
			"Reserve a focus block for deep-work tasks.",
			"Review remaining tasks at end of day.",
		},
		Fallback: true,
	}
}
