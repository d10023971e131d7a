package services

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// Groq API constants
const (
	GroqChatCompletionsURL = "https://api.groq.com/openai/v1/chat/completions"
	GroqModel              = "llama-3.3-70b-versatile"
	GroqRequestTimeout     = 60 * time.Second
	GroqTemperature        = 0.7
	GroqMaxTokens          = 8000
)

// ErrGroqNotConfigured marks a missing API key
var ErrGroqNotConfigured = errors.New("groq api key not configured")

// groqMessage is one chat turn
type groqMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// groqChatRequest is the chat completions request body
type groqChatRequest struct {
	Model       string        `json:"model"`
	Messages    []groqMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

// groqChatResponse is the chat completions response body
type groqChatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// GroqService generates market commentary through the Groq chat API
type GroqService struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	model      string
}

// Global Groq service instance
var GlobalGroqService *GroqService

// InitGroqService initializes the Groq service
func InitGroqService(apiKey string) error {
	if apiKey == "" {
		log.Warn().Msg("GROQ_API_KEY not set, weekly summaries disabled")
	}
	GlobalGroqService = NewGroqService(GroqChatCompletionsURL, apiKey)
	log.Info().Msg("Groq service initialized")
	return nil
}

// NewGroqService creates a Groq client against the given endpoint
func NewGroqService(baseURL, apiKey string) *GroqService {
	return &GroqService{
		httpClient: &http.Client{Timeout: GroqRequestTimeout},
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		model:      GroqModel,
	}
}

// GenerateWeeklySummary writes a newsletter-style weekly summary from
// the collected index and sector moves.
func (s *GroqService) GenerateWeeklySummary(data *WeeklyData) (string, error) {
	if s.apiKey == "" {
		return "", ErrGroqNotConfigured
	}

	prompt := fmt.Sprintf(`You are a professional financial analyst writing a weekly newsletter for investors.

Data for the week (%s):

INDICES:
%s

SECTORS:
%s

Write a professional but natural summary with this flow:

1. Open with 2-3 sentences on how the week went overall (tone, trend, context)
2. Cover the main indices briefly (which one led and why it matters)
3. Discuss sectors: highlight the 3 strongest and the 3 weakest, with ticker and percent
4. Close with 3-4 key insights for the coming week

STYLE:
- Professional but accessible, short paragraphs of 2-3 sentences
- No markdown, no bullet lists
- Between 225 and 300 words`,
		data.GeneratedAt.Format("2006-01-02"),
		formatMoves(data.Indices),
		formatMoves(data.Sectors))

	return s.complete("You are a senior financial analyst specialized in US markets.", prompt)
}

// complete runs one chat completion and returns the first choice
func (s *GroqService) complete(system, user string) (string, error) {
	body, err := json.Marshal(groqChatRequest{
		Model: s.model,
		Messages: []groqMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		Temperature: GroqTemperature,
		MaxTokens:   GroqMaxTokens,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequest(http.MethodPost, s.baseURL, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.apiKey)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("groq request failed: %w", err)
	}
	defer resp.Body.Close()

	var payload groqChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("groq response malformed: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		if payload.Error != nil {
			return "", fmt.Errorf("groq status %d: %s", resp.StatusCode, payload.Error.Message)
		}
		return "", fmt.Errorf("groq status %d", resp.StatusCode)
	}
	if len(payload.Choices) == 0 {
		return "", errors.New("groq returned no choices")
	}
	return payload.Choices[0].Message.Content, nil
}

// formatMoves renders ticker moves one per line for the prompt
func formatMoves(moves []TickerMove) string {
	lines := make([]string, 0, len(moves))
	for _, m := range moves {
		lines = append(lines, fmt.Sprintf("%s: %+.2f%%", m.Ticker, m.ChangePercent))
	}
	return strings.Join(lines, "\n")
}
