package model

import (
	"encoding/json"
	"fmt"

	"github.com/hupe1980/meshgate/core"
)

// ToolResultText renders a function response as the text providers expect
// in a tool message. Strings pass through unchanged (delegation replies are
// plain text); other values are JSON encoded and failures become
// {"error": "..."}.
func ToolResultText(fr core.FunctionResponse) string {
	if fr.Error != "" {
		return jsonText(map[string]string{"error": fr.Error})
	}

	switch v := fr.Response.(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		return jsonText(v)
	}
}

func jsonText(v any) string {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(raw)
}
