package core

import (
	"encoding/json"
	"fmt"
)

const (
	partTypeText             = "text"
	partTypeFunctionCall     = "function_call"
	partTypeFunctionResponse = "function_response"
)

type wirePart struct {
	Type             string            `json:"type"`
	Text             string            `json:"text,omitempty"`
	FunctionCall     *FunctionCall     `json:"function_call,omitempty"`
	FunctionResponse *FunctionResponse `json:"function_response,omitempty"`
	Metadata         map[string]any    `json:"metadata,omitempty"`
}

type wireContent struct {
	Role  string     `json:"role,omitempty"`
	Parts []wirePart `json:"parts"`
}

// MarshalContent encodes a Content with type-tagged parts.
func MarshalContent(c Content) ([]byte, error) {
	wc := wireContent{Role: c.Role, Parts: make([]wirePart, 0, len(c.Parts))}
	for _, p := range c.Parts {
		switch part := p.(type) {
		case TextPart:
			wc.Parts = append(wc.Parts, wirePart{Type: partTypeText, Text: part.Text, Metadata: part.Metadata})
		case FunctionCallPart:
			fc := part.FunctionCall
			wc.Parts = append(wc.Parts, wirePart{Type: partTypeFunctionCall, FunctionCall: &fc, Metadata: part.Metadata})
		case FunctionResponsePart:
			fr := part.FunctionResponse
			wc.Parts = append(wc.Parts, wirePart{Type: partTypeFunctionResponse, FunctionResponse: &fr, Metadata: part.Metadata})
		default:
			return nil, fmt.Errorf("unsupported part type %T", p)
		}
	}

	return json.Marshal(wc)
}

// UnmarshalContent decodes data produced by MarshalContent.
func UnmarshalContent(data []byte) (Content, error) {
	var wc wireContent
	if err := json.Unmarshal(data, &wc); err != nil {
		return Content{}, fmt.Errorf("decode content: %w", err)
	}

	c := Content{Role: wc.Role, Parts: make([]Part, 0, len(wc.Parts))}
	for _, wp := range wc.Parts {
		switch wp.Type {
		case partTypeText:
			c.Parts = append(c.Parts, TextPart{Text: wp.Text, Metadata: wp.Metadata})
		case partTypeFunctionCall:
			if wp.FunctionCall == nil {
				return Content{}, fmt.Errorf("function_call part without payload")
			}
			c.Parts = append(c.Parts, FunctionCallPart{FunctionCall: *wp.FunctionCall, Metadata: wp.Metadata})
		case partTypeFunctionResponse:
			if wp.FunctionResponse == nil {
				return Content{}, fmt.Errorf("function_response part without payload")
			}
			c.Parts = append(c.Parts, FunctionResponsePart{FunctionResponse: *wp.FunctionResponse, Metadata: wp.Metadata})
		default:
			return Content{}, fmt.Errorf("unknown part type %q", wp.Type)
		}
	}

	return c, nil
}
