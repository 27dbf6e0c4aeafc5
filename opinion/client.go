package opinion

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/incrementalcapitalist/smh-versus-the-broader-market/shared"
	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"
)

const (
	// defaultRequestTimeout bounds a vendor round trip.
	defaultRequestTimeout = time.Second * 45

	openAIBaseURL    = "https://api.openai.com"
	anthropicBaseURL = "https://api.anthropic.com"
	geminiBaseURL    = "https://generativelanguage.googleapis.com"

	openAIModel    = "gpt-4o"
	anthropicModel = "claude-3-5-sonnet-latest"
	geminiModel    = "gemini-2.0-flash"

	anthropicVersion   = "2023-06-01"
	maxCompletionChars = 2048

	// systemInstruction frames every vendor request the same way.
	systemInstruction = "You are a market technician. Given daily OHLCV data " +
		"for a symbol, respond with a concise free-text opinion answering the " +
		"user's question. Do not give financial advice disclaimers."
)

// Vendor identifies a supported opinion provider.
type Vendor int

const (
	OpenAI Vendor = iota
	Anthropic
	Gemini
)

// String stringifies the provided vendor.
func (v *Vendor) String() string {
	switch *v {
	case OpenAI:
		return "openai"
	case Anthropic:
		return "anthropic"
	case Gemini:
		return "gemini"
	default:
		return "unknown"
	}
}

// ParseVendor parses a vendor from its string form.
func ParseVendor(name string) (Vendor, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "openai":
		return OpenAI, nil
	case "anthropic":
		return Anthropic, nil
	case "gemini":
		return Gemini, nil
	default:
		return 0, fmt.Errorf("unknown opinion vendor: %q", name)
	}
}

// ClientConfig represents the configuration for the opinion client.
type ClientConfig struct {
	// OpenAIAPIKey is the OpenAI API key. Empty disables the vendor.
	OpenAIAPIKey string
	// AnthropicAPIKey is the Anthropic API key. Empty disables the vendor.
	AnthropicAPIKey string
	// GeminiAPIKey is the Gemini API key. Empty disables the vendor.
	GeminiAPIKey string
	// Timeout bounds a vendor round trip.
	Timeout time.Duration
	// Logger represents the application logger.
	Logger *zerolog.Logger

	// Base urls, overridable for tests.
	OpenAIBaseURL    string
	AnthropicBaseURL string
	GeminiBaseURL    string
}

// Client requests free-text opinions on price history from third party
// model vendors.
type Client struct {
	cfg   *ClientConfig
	httpc http.Client
}

// Request carries the inputs for one opinion.
type Request struct {
	// Symbol is the market the bars belong to.
	Symbol string
	// Prompt is the user's question.
	Prompt string
	// Bars is the recent daily price history forwarded to the vendor.
	Bars []shared.Bar
}

// Opinion is a vendor's free-text response.
type Opinion struct {
	ID        string    `json:"id"`
	Vendor    string    `json:"vendor"`
	Model     string    `json:"model"`
	Text      string    `json:"text"`
	CreatedOn time.Time `json:"createdOn"`
}

// NewClient initializes a new opinion client.
func NewClient(cfg *ClientConfig) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultRequestTimeout
	}
	if cfg.OpenAIBaseURL == "" {
		cfg.OpenAIBaseURL = openAIBaseURL
	}
	if cfg.AnthropicBaseURL == "" {
		cfg.AnthropicBaseURL = anthropicBaseURL
	}
	if cfg.GeminiBaseURL == "" {
		cfg.GeminiBaseURL = geminiBaseURL
	}

	return &Client{
		cfg:   cfg,
		httpc: http.Client{Timeout: cfg.Timeout},
	}
}

// formatPrompt renders the user prompt and the price history into the text
// forwarded to a vendor. Bars are serialized one session per line.
func formatPrompt(req *Request) string {
	var buf strings.Builder
	buf.WriteString("Symbol: ")
	buf.WriteString(req.Symbol)
	buf.WriteString("\nQuestion: ")
	buf.WriteString(req.Prompt)
	buf.WriteString("\nDaily bars (date,open,high,low,close,volume):\n")

	for idx := range req.Bars {
		bar := &req.Bars[idx]
		fmt.Fprintf(&buf, "%s,%g,%g,%g,%g,%g\n", bar.Date.Format(shared.DateLayout),
			bar.Open, bar.High, bar.Low, bar.Close, bar.Volume)
	}

	return buf.String()
}

// RequestOpinion forwards the provided request to the provided vendor and
// returns its opinion. Vendors without a configured key are unavailable.
func (c *Client) RequestOpinion(ctx context.Context, vendor Vendor, req *Request) (*Opinion, error) {
	if req.Symbol == "" {
		return nil, fmt.Errorf("opinion request symbol cannot be an empty string")
	}
	if req.Prompt == "" {
		return nil, fmt.Errorf("opinion request prompt cannot be an empty string")
	}

	var text, model string
	var err error

	switch vendor {
	case OpenAI:
		text, model, err = c.requestOpenAI(ctx, req)
	case Anthropic:
		text, model, err = c.requestAnthropic(ctx, req)
	case Gemini:
		text, model, err = c.requestGemini(ctx, req)
	default:
		return nil, fmt.Errorf("unknown opinion vendor: %d", vendor)
	}
	if err != nil {
		return nil, err
	}

	opinion := &Opinion{
		ID:        uuid.NewString(),
		Vendor:    vendor.String(),
		Model:     model,
		Text:      text,
		CreatedOn: time.Now().UTC(),
	}

	if c.cfg.Logger != nil {
		c.cfg.Logger.Info().Msgf("opinion %s from %s (%s) for %s: %d chars",
			opinion.ID, opinion.Vendor, opinion.Model, req.Symbol, len(opinion.Text))
	}

	return opinion, nil
}

// post sends a json payload and returns the raw response body for navigation.
func (c *Client) post(ctx context.Context, vendor Vendor, url string, headers map[string]string, payload any) ([]byte, error) {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encoding %s payload: %w", vendor.String(), err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(encoded))
	if err != nil {
		return nil, fmt.Errorf("creating %s request: %w", vendor.String(), err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	for key, value := range headers {
		httpReq.Header.Set(key, value)
	}

	resp, err := c.httpc.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("requesting %s opinion: %w", vendor.String(), err)
	}

	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading %s response body: %w", vendor.String(), err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected %s status %d: %s",
			vendor.String(), resp.StatusCode, truncate(string(body), 256))
	}

	return body, nil
}

// extract navigates to the opinion text at the provided gjson path.
func extract(vendor Vendor, body []byte, path string) (string, error) {
	text := gjson.GetBytes(body, path)
	if !text.Exists() {
		return "", fmt.Errorf("no opinion text in %s response", vendor.String())
	}

	return text.String(), nil
}

func (c *Client) requestOpenAI(ctx context.Context, req *Request) (string, string, error) {
	vendor := OpenAI
	if c.cfg.OpenAIAPIKey == "" {
		return "", "", fmt.Errorf("%s vendor is not configured", vendor.String())
	}

	payload := map[string]any{
		"model": openAIModel,
		"messages": []map[string]string{
			{"role": "system", "content": systemInstruction},
			{"role": "user", "content": formatPrompt(req)},
		},
	}

	headers := map[string]string{"Authorization": "Bearer " + c.cfg.OpenAIAPIKey}
	body, err := c.post(ctx, vendor, c.cfg.OpenAIBaseURL+"/v1/chat/completions", headers, payload)
	if err != nil {
		return "", "", err
	}

	text, err := extract(vendor, body, "choices.0.message.content")
	if err != nil {
		return "", "", err
	}

	return truncate(text, maxCompletionChars), openAIModel, nil
}

func (c *Client) requestAnthropic(ctx context.Context, req *Request) (string, string, error) {
	vendor := Anthropic
	if c.cfg.AnthropicAPIKey == "" {
		return "", "", fmt.Errorf("%s vendor is not configured", vendor.String())
	}

	payload := map[string]any{
		"model":      anthropicModel,
		"max_tokens": 1024,
		"system":     systemInstruction,
		"messages": []map[string]string{
			{"role": "user", "content": formatPrompt(req)},
		},
	}

	headers := map[string]string{
		"x-api-key":         c.cfg.AnthropicAPIKey,
		"anthropic-version": anthropicVersion,
	}
	body, err := c.post(ctx, vendor, c.cfg.AnthropicBaseURL+"/v1/messages", headers, payload)
	if err != nil {
		return "", "", err
	}

	text, err := extract(vendor, body, "content.0.text")
	if err != nil {
		return "", "", err
	}

	return truncate(text, maxCompletionChars), anthropicModel, nil
}

func (c *Client) requestGemini(ctx context.Context, req *Request) (string, string, error) {
	vendor := Gemini
	if c.cfg.GeminiAPIKey == "" {
		return "", "", fmt.Errorf("%s vendor is not configured", vendor.String())
	}

	payload := map[string]any{
		"system_instruction": map[string]any{
			"parts": []map[string]string{{"text": systemInstruction}},
		},
		"contents": []map[string]any{
			{"parts": []map[string]string{{"text": formatPrompt(req)}}},
		},
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent?key=%s",
		c.cfg.GeminiBaseURL, geminiModel, c.cfg.GeminiAPIKey)
	body, err := c.post(ctx, vendor, url, nil, payload)
	if err != nil {
		return "", "", err
	}

	text, err := extract(vendor, body, "candidates.0.content.parts.0.text")
	if err != nil {
		return "", "", err
	}

	return truncate(text, maxCompletionChars), geminiModel, nil
}

// truncate bounds the provided string to n characters.
func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}

	return s
}
