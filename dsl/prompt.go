package dsl

import "encoding/json"

// normalizePrompt accepts the raw JSON value of an llm node's `prompt`
// field and rewrites it into the canonical form: a plain string is kept
// as-is (represented as a single PromptPart with Type stringPromptType and
// the string content — see PromptIsString below); a list is
// rewritten into canonical {type, content} parts, tolerating the legacy
// shapes named in §4.1: 2-element pair sequences, and provider-shaped
// {type:"text", text: "..."} / {type:"image_url", image_url:{url:"..."}}.
func normalizePrompt(raw json.RawMessage) ([]PromptPart, error) {
	if len(raw) == 0 {
		return nil, &ValidationError{Message: "llm node requires 'prompt'"}
	}

	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		return []PromptPart{{Type: stringPromptType, Content: asString}}, nil
	}

	var rawParts []json.RawMessage
	if err := json.Unmarshal(raw, &rawParts); err != nil {
		return nil, &ValidationError{Message: "prompt must be a string or a list of parts"}
	}

	parts := make([]PromptPart, 0, len(rawParts))
	for _, rp := range rawParts {
		part, err := normalizePromptPart(rp)
		if err != nil {
			return nil, err
		}
		parts = append(parts, part)
	}
	return parts, nil
}

// stringPromptType marks a prompt normalized from a plain string rather
// than a list of parts; PromptIsString reports on it.
const stringPromptType = "__string__"

// PromptIsString reports whether a normalized prompt was authored as a
// plain string template rather than a list of multimodal parts.
func PromptIsString(parts []PromptPart) (string, bool) {
	if len(parts) == 1 && parts[0].Type == stringPromptType {
		return parts[0].Content, true
	}
	return "", false
}

func normalizePromptPart(raw json.RawMessage) (PromptPart, error) {
	// legacy 2-element pair: ["text", "..."]
	var pair []json.RawMessage
	if err := json.Unmarshal(raw, &pair); err == nil && len(pair) == 2 {
		var t, c string
		if err := json.Unmarshal(pair[0], &t); err == nil {
			if err := json.Unmarshal(pair[1], &c); err == nil {
				return PromptPart{Type: t, Content: c}, nil
			}
		}
	}

	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err != nil {
		return PromptPart{}, &ValidationError{Message: "unsupported prompt part"}
	}

	if t, ok := obj["type"].(string); ok {
		if content, ok := obj["content"].(string); ok {
			return PromptPart{Type: t, Content: content}, nil
		}
		switch t {
		case "text":
			if text, ok := obj["text"].(string); ok {
				return PromptPart{Type: "text", Content: text}, nil
			}
		case "image_url":
			if url, ok := obj["url"].(string); ok {
				return PromptPart{Type: "image_url", Content: url}, nil
			}
			if img, ok := obj["image_url"].(map[string]any); ok {
				if url, ok := img["url"].(string); ok {
					return PromptPart{Type: "image_url", Content: url}, nil
				}
			}
		}
	}

	return PromptPart{}, &ValidationError{Message: "unsupported prompt part shape"}
}
