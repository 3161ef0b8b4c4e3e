package providers

import (
	"context"
	"encoding/json"
	"net/http"
	"regexp"
	"strings"
)

// imageRefPattern matches a markdown image link or an inline base64 data URL.
// The leftmost match in the reply wins.
var imageRefPattern = regexp.MustCompile(`!\[[^\]]*\]\((https?://[^\s)]+)\)|(data:image/[a-zA-Z0-9.+-]+;base64,[A-Za-z0-9+/=]+)`)

type chatContentPart struct {
	Type     string        `json:"type"`
	Text     string        `json:"text,omitempty"`
	ImageURL *chatImageURL `json:"image_url,omitempty"`
}

type chatImageURL struct {
	URL string `json:"url"`
}

type chatMessage struct {
	Role    string            `json:"role"`
	Content []chatContentPart `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content json.RawMessage `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// chatImageAdapter calls a chat-completions endpoint whose reply is prose
// that embeds the generated image.
type chatImageAdapter struct {
	transport
	apiKey string
	model  string
}

func newChatImageAdapter(apiKey, baseURL, model string, opts ...Option) *chatImageAdapter {
	return &chatImageAdapter{
		transport: newTransport(baseURL, normalizeChatImageError, opts...),
		apiKey:    apiKey,
		model:     model,
	}
}

func (a *chatImageAdapter) Name() string { return "chat:" + a.model }

func (a *chatImageAdapter) Generate(ctx context.Context, req Request) (*ImageResult, error) {
	prompt := req.Prompt
	if req.AspectRatio != "" {
		prompt += "\n\nAspect ratio: " + req.AspectRatio
	}
	content := []chatContentPart{{Type: "text", Text: prompt}}
	for _, ref := range req.ReferenceImages {
		content = append(content, chatContentPart{Type: "image_url", ImageURL: &chatImageURL{URL: ref.DataURL()}})
	}

	payload := chatRequest{
		Model:    a.model,
		Messages: []chatMessage{{Role: "user", Content: content}},
	}

	var resp chatResponse
	if err := a.postJSON(ctx, "v1/chat/completions", map[string]string{"Authorization": "Bearer " + a.apiKey}, payload, &resp); err != nil {
		return nil, err
	}
	if len(resp.Choices) == 0 {
		return nil, errNoImage("sora")
	}

	return extractChatImage(messageText(resp.Choices[0].Message.Content))
}

// messageText flattens string or array-of-parts message content.
func messageText(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var parts []struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(raw, &parts); err == nil {
		var sb strings.Builder
		for _, p := range parts {
			sb.WriteString(p.Text)
			sb.WriteString("\n")
		}
		return sb.String()
	}
	return ""
}

func extractChatImage(text string) (*ImageResult, error) {
	m := imageRefPattern.FindStringSubmatch(text)
	if m == nil {
		return nil, errNoImage("sora")
	}
	if m[1] != "" {
		return &ImageResult{URL: m[1]}, nil
	}
	data, mimeType, err := decodeDataURL(m[2])
	if err != nil {
		return nil, &Error{Message: "sora returned an undecodable image", Status: http.StatusBadGateway}
	}
	return &ImageResult{Data: data, MimeType: mimeType}, nil
}
