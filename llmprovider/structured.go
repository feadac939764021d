package llmprovider

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dshills/wf-engine/engine/model"
)

// CallStructured models with_structured_output(schema): it appends an
// instruction asking the model for a single JSON object matching schema,
// then parses the reply against that contract. There is no provider-native
// structured-output mode behind model.ChatModel, so the contract is
// enforced at the prompt/parse boundary instead.
func CallStructured(ctx context.Context, m model.ChatModel, messages []model.Message, schema map[string]any) (map[string]any, error) {
	schemaJSON, err := json.Marshal(schema)
	if err != nil {
		return nil, fmt.Errorf("encode output schema: %w", err)
	}

	instruction := model.Message{
		Role:    model.RoleSystem,
		Content: "Respond with a single JSON object matching this JSON Schema and no other text:\n" + string(schemaJSON),
	}
	augmented := make([]model.Message, 0, len(messages)+1)
	augmented = append(augmented, instruction)
	augmented = append(augmented, messages...)

	out, err := m.Chat(ctx, augmented, nil)
	if err != nil {
		return nil, err
	}

	var result map[string]any
	if err := json.Unmarshal([]byte(extractJSON(out.Text)), &result); err != nil {
		return nil, fmt.Errorf("structured output did not parse as JSON: %w", err)
	}
	return result, nil
}

// extractJSON strips a markdown code fence around a model reply, since
// providers frequently wrap requested JSON in ```json ... ``` even when
// told not to.
func extractJSON(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
