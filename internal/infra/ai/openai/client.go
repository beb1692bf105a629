package openai

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/sashabaranov/go-openai"

	"github.com/bryanwahyu/checkflow/internal/infra/ai/prompt"
)

const (
	maxTokens = 2048
	// maxEdge bounds the longest image side sent to the model.
	maxEdge = 2000
)

// Client runs OCR through a vision-capable chat model.
type Client struct {
	*openai.Client
	Model string
}

func NewClient(apiKey, model string) *Client {
	return &Client{Client: openai.NewClient(apiKey), Model: model}
}

// NewClientWithBaseURL targets an OpenAI-compatible endpoint.
func NewClientWithBaseURL(apiKey, baseURL, model string) *Client {
	cfg := openai.DefaultConfig(apiKey)
	cfg.BaseURL = baseURL
	return &Client{Client: openai.NewClientWithConfig(cfg), Model: model}
}

// ExtractText sends a preprocessed copy of image to the model and returns
// the transcribed text.
func (c *Client) ExtractText(ctx context.Context, image []byte) (string, error) {
	model := c.Model
	if model == "" {
		model = openai.GPT4o
	}
	dataURL, w, h := preprocess(image)

	req := openai.ChatCompletionRequest{
		Model:       model,
		Temperature: 0,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: prompt.GetOCRSystemPrompt()},
			{Role: openai.ChatMessageRoleUser, MultiContent: []openai.ChatMessagePart{
				{Type: openai.ChatMessagePartTypeText, Text: prompt.GetOCRUserPrompt(w, h)},
				{Type: openai.ChatMessagePartTypeImageURL, ImageURL: &openai.ChatMessageImageURL{
					URL:    dataURL,
					Detail: openai.ImageURLDetailHigh,
				}},
			}},
		},
	}
	// For reasoning models (o1/o3/o4/gpt-5*) use MaxCompletionTokens instead of MaxTokens
	if strings.HasPrefix(model, "o1") || strings.HasPrefix(model, "o3") || strings.HasPrefix(model, "o4") || strings.HasPrefix(model, "gpt-5") {
		req.MaxCompletionTokens = maxTokens
	} else {
		req.MaxTokens = maxTokens
	}

	resp, err := c.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("failed to create chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("ocr: empty completion")
	}
	return resp.Choices[0].Message.Content, nil
}

// preprocess converts the image to a contrast-boosted grayscale PNG. Bytes
// that do not decode are sent unchanged as JPEG.
func preprocess(image []byte) (string, int, int) {
	img, err := imaging.Decode(bytes.NewReader(image))
	if err != nil {
		return "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(image), 0, 0
	}
	b := img.Bounds()
	if b.Dx() > maxEdge || b.Dy() > maxEdge {
		img = imaging.Fit(img, maxEdge, maxEdge, imaging.Lanczos)
	}
	gray := imaging.AdjustContrast(imaging.Grayscale(img), 20)
	gray = imaging.Sharpen(gray, 0.8)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, gray, imaging.PNG); err != nil {
		return "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(image), b.Dx(), b.Dy()
	}
	out := gray.Bounds()
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), out.Dx(), out.Dy()
}
