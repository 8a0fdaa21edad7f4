package generate

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/robertmeta/inspoflow/model"
)

// Field names a persona field that can be polished.
type Field string

const (
	FieldBio               Field = "bio"
	FieldSystemInstruction Field = "systemInstruction"
)

var polishInstructions = map[Field]string{
	FieldBio:               "You are a skilled copy editor. Rewrite the AI persona bio the user gives you so it is livelier and more appealing while keeping its core meaning. Keep it short, ideally a single sentence. Return only the rewritten text with no explanation or labels.",
	FieldSystemInstruction: "You are a prompt engineering expert. Improve the system instruction the user gives you so it is clearer, more specific and more effective at keeping an AI in character and producing high quality content. Keep the core task unchanged. Return only the improved instruction with no explanation or labels.",
}

// ParseField validates a field name.
func ParseField(s string) (Field, error) {
	f := Field(s)
	if _, ok := polishInstructions[f]; !ok {
		return "", fmt.Errorf("unknown field %q (expected %s or %s)", s, FieldBio, FieldSystemInstruction)
	}
	return f, nil
}

// Polish rewrites a bio or system instruction. Failures come back in-band
// as text starting with model.ErrorMarker.
func (c *Client) Polish(ctx context.Context, text string, field Field) string {
	instruction, ok := polishInstructions[field]
	if !ok {
		return model.ErrorMarker + fmt.Sprintf("unknown field %q", field)
	}

	out, err := c.call(ctx, instruction,
		[]model.ChatMessage{model.NewMessage(model.RoleUser, text)},
		generationConfig{Temperature: 0.5})
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.invalidKey() {
			return InvalidKeyText
		}
		return model.ErrorMarker + "polishing failed. " + err.Error()
	}
	return trimQuotes(strings.TrimSpace(out))
}

func trimQuotes(s string) string {
	if len(s) >= 2 && strings.HasPrefix(s, `"`) && strings.HasSuffix(s, `"`) {
		return s[1 : len(s)-1]
	}
	return s
}
