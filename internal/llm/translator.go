package llm

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"refinery/internal/logging"
)

// GenAITranslator implements Translator using Google's GenAI SDK. Translation
// is a single non-streaming turn, independent of the protocol stream.
type GenAITranslator struct {
	client *genai.Client
	model  string
}

// NewGenAITranslator creates a translator client.
func NewGenAITranslator(apiKey, model string) (*GenAITranslator, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("GenAI API key is required")
	}
	if model == "" {
		model = DefaultConfig("").Model
	}

	ctx := context.Background()
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey: apiKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}

	return &GenAITranslator{client: client, model: model}, nil
}

// Translate renders the text into the target language. The source formatting
// (section tags included) is preserved so the translated view still parses.
func (t *GenAITranslator) Translate(ctx context.Context, text, lang string) (string, error) {
	prompt := fmt.Sprintf(
		"Translate the following text into %s. Preserve all formatting, including any [bracketed] section tags, exactly as they appear. Return only the translation.\n\n%s",
		lang, text,
	)

	contents := []*genai.Content{
		genai.NewContentFromText(prompt, genai.RoleUser),
	}

	result, err := t.client.Models.GenerateContent(ctx, t.model, contents, nil)
	if err != nil {
		logging.APIError("Translate: %v", err)
		return "", fmt.Errorf("translation failed: %w", err)
	}

	out := strings.TrimSpace(result.Text())
	if out == "" {
		return "", fmt.Errorf("no translation returned")
	}
	logging.APIDebug("Translate: lang=%s in_len=%d out_len=%d", lang, len(text), len(out))
	return out, nil
}
