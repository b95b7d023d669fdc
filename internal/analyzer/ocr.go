package analyzer

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/responses"
	"github.com/openai/openai-go/v3/shared"
)

// ErrUnsupportedMedia is returned for receipts the extractor cannot read.
var ErrUnsupportedMedia = errors.New("unsupported receipt media type")

// TextExtractor turns a receipt image into plain text
type TextExtractor interface {
	ExtractText(ctx context.Context, data []byte, mimeType string) (string, error)
}

const transcribePrompt = `Transcribe all text visible on this bank transfer receipt.
Keep the original language, numbers, IBANs and dates exactly as printed.
Return plain text only, one line per printed line, without commentary.`

// OpenAIExtractor transcribes receipts with a vision model through the
// Responses API.
type OpenAIExtractor struct {
	client *openai.Client
	model  shared.ResponsesModel
}

// NewOpenAIExtractor builds an extractor for apiKey and model. Extra request
// options (base URL, HTTP client) are passed through to the SDK.
func NewOpenAIExtractor(apiKey, model string, opts ...option.RequestOption) *OpenAIExtractor {
	opts = append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)
	client := openai.NewClient(opts...)
	return &OpenAIExtractor{client: &client, model: shared.ResponsesModel(model)}
}

// ExtractText sends the image as a data URL and returns the transcription.
func (e *OpenAIExtractor) ExtractText(ctx context.Context, data []byte, mimeType string) (string, error) {
	if !strings.HasPrefix(mimeType, "image/") {
		return "", ErrUnsupportedMedia
	}
	dataURL := "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data)

	content := responses.ResponseInputMessageContentListParam{
		{OfInputText: &responses.ResponseInputTextParam{Text: transcribePrompt}},
		{OfInputImage: &responses.ResponseInputImageParam{
			ImageURL: openai.String(dataURL),
			Detail:   responses.ResponseInputImageDetailAuto,
		}},
	}
	resp, err := e.client.Responses.New(ctx, responses.ResponseNewParams{
		Model: e.model,
		Input: responses.ResponseNewParamsInputUnion{
			OfInputItemList: responses.ResponseInputParam{
				responses.ResponseInputItemParamOfMessage(content, responses.EasyInputMessageRoleUser),
			},
		},
	})
	if err != nil {
		return "", fmt.Errorf("call OpenAI: %w", err)
	}
	text := strings.TrimSpace(resp.OutputText())
	if text == "" {
		return "", errors.New("model returned an empty transcription")
	}
	return text, nil
}
