package gemini

import (
	"context"
	"errors"
	"testing"
	"time"

	"google.golang.org/genai"

	"github.com/tbourn/go-genai-backend/internal/config"
)

func f64(v float64) *float64 { return &v }
func ip(v int) *int          { return &v }

// newTestClient builds a Client around a canned generate function so no
// network client is needed.
func newTestClient(fn generateFunc) *Client {
	return &Client{
		model:          "gemini-test",
		callTimeout:    time.Second,
		maxTokensLimit: 1024,
		generate:       fn,
	}
}

func textResponse(text string) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{
			{Content: &genai.Content{Parts: []*genai.Part{{Text: text}}}},
		},
	}
}

func TestValidateParams(t *testing.T) {
	c := newTestClient(nil)

	cases := []struct {
		name    string
		prompt  string
		params  Params
		wantErr bool
	}{
		{"ok defaults", "hello", Params{}, false},
		{"ok full", "hello", Params{Temperature: f64(0.7), MaxTokens: ip(256)}, false},
		{"empty prompt", "", Params{}, true},
		{"whitespace prompt", "   \t\n", Params{}, true},
		{"temperature low", "hi", Params{Temperature: f64(-0.1)}, true},
		{"temperature high", "hi", Params{Temperature: f64(2.01)}, true},
		{"tokens zero", "hi", Params{MaxTokens: ip(0)}, true},
		{"tokens above limit", "hi", Params{MaxTokens: ip(1025)}, true},
		{"tokens at limit", "hi", Params{MaxTokens: ip(1024)}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := c.ValidateParams(tc.prompt, tc.params)
			if tc.wantErr {
				if !errors.Is(err, ErrInvalidParameters) {
					t.Fatalf("want ErrInvalidParameters, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestGenerate_InvalidInputMakesNoCall(t *testing.T) {
	calls := 0
	c := newTestClient(func(ctx context.Context, model string, contents []*genai.Content, cfg *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
		calls++
		return textResponse("x"), nil
	})

	if _, err := c.Generate(context.Background(), "   ", Params{}); !errors.Is(err, ErrInvalidParameters) {
		t.Fatalf("want ErrInvalidParameters, got %v", err)
	}
	if calls != 0 {
		t.Fatalf("adapter made %d calls for invalid input; want 0", calls)
	}
}

func TestGenerate_Success(t *testing.T) {
	var gotModel string
	var gotCfg *genai.GenerateContentConfig
	c := newTestClient(func(ctx context.Context, model string, contents []*genai.Content, cfg *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
		gotModel = model
		gotCfg = cfg
		return textResponse("  A fox runs quickly.  "), nil
	})

	text, err := c.Generate(context.Background(), "Summarize: The quick brown fox.", Params{Temperature: f64(0.3), MaxTokens: ip(128)})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if text != "A fox runs quickly." {
		t.Errorf("text = %q; want trimmed reply", text)
	}
	if gotModel != "gemini-test" {
		t.Errorf("model = %q", gotModel)
	}
	if gotCfg == nil || gotCfg.Temperature == nil || *gotCfg.Temperature != 0.3 {
		t.Errorf("temperature not forwarded: %+v", gotCfg)
	}
	if gotCfg.MaxOutputTokens != 128 {
		t.Errorf("MaxOutputTokens = %d; want 128", gotCfg.MaxOutputTokens)
	}
}

func TestGenerate_SingleCallPerInvocation(t *testing.T) {
	calls := 0
	c := newTestClient(func(ctx context.Context, model string, contents []*genai.Content, cfg *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
		calls++
		return nil, genai.APIError{Code: 503, Message: "overloaded"}
	})

	if _, err := c.Generate(context.Background(), "hello", Params{}); !errors.Is(err, ErrTransient) {
		t.Fatalf("want ErrTransient, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("adapter made %d calls; want exactly 1 (no internal retries)", calls)
	}
}

func TestGenerate_Classification(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want error
	}{
		{"rate limited", genai.APIError{Code: 429, Message: "quota"}, ErrTransient},
		{"server error", genai.APIError{Code: 500, Message: "boom"}, ErrTransient},
		{"bad gateway", genai.APIError{Code: 502, Message: "bad"}, ErrTransient},
		{"bad request", genai.APIError{Code: 400, Message: "malformed"}, ErrPermanent},
		{"unauthorized", genai.APIError{Code: 401, Message: "bad key"}, ErrPermanent},
		{"forbidden", genai.APIError{Code: 403, Message: "denied"}, ErrPermanent},
		{"timeout", context.DeadlineExceeded, ErrTransient},
		{"unknown network", errors.New("connection reset by peer"), ErrTransient},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := newTestClient(func(ctx context.Context, model string, contents []*genai.Content, cfg *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
				return nil, tc.err
			})
			_, err := c.Generate(context.Background(), "hello", Params{})
			if !errors.Is(err, tc.want) {
				t.Fatalf("classification of %v = %v; want %v", tc.err, err, tc.want)
			}
		})
	}
}

func TestGenerate_UnusableResponsesArePermanent(t *testing.T) {
	cases := []struct {
		name string
		resp *genai.GenerateContentResponse
	}{
		{"nil response", nil},
		{"no candidates", &genai.GenerateContentResponse{}},
		{"safety blocked", &genai.GenerateContentResponse{
			Candidates: []*genai.Candidate{{FinishReason: genai.FinishReasonSafety}},
		}},
		{"empty text", textResponse("   ")},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := newTestClient(func(ctx context.Context, model string, contents []*genai.Content, cfg *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
				return tc.resp, nil
			})
			_, err := c.Generate(context.Background(), "hello", Params{})
			if !errors.Is(err, ErrPermanent) {
				t.Fatalf("want ErrPermanent, got %v", err)
			}
		})
	}
}

func TestNew_Validation(t *testing.T) {
	ctx := context.Background()

	if _, err := New(ctx, cfgWith("", "gemini-2.0-flash"), 1024); err == nil {
		t.Error("New accepted empty API key")
	}
	if _, err := New(ctx, cfgWith("key", ""), 1024); err == nil {
		t.Error("New accepted empty model")
	}
	if _, err := New(ctx, cfgWith("key", "gemini-2.0-flash"), 0); err == nil {
		t.Error("New accepted zero token limit")
	}
}

func cfgWith(key, model string) config.GeminiConfig {
	return config.GeminiConfig{APIKey: key, Model: model, CallTimeout: time.Second}
}
