package interpreter

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

var modifierNames = map[string]string{
	"ctrl":    "Control",
	"control": "Control",
	"shift":   "Shift",
	"alt":     "Alt",
	"option":  "Alt",
	"meta":    "Meta",
	"cmd":     "Meta",
	"command": "Meta",
	"win":     "Meta",
}

// Named keys, keyed by lowercase alias, valued by DOM key name.
var keyNames = map[string]string{
	"enter":      "Enter",
	"return":     "Enter",
	"tab":        "Tab",
	"escape":     "Escape",
	"esc":        "Escape",
	"backspace":  "Backspace",
	"delete":     "Delete",
	"del":        "Delete",
	"space":      " ",
	"up":         "ArrowUp",
	"arrowup":    "ArrowUp",
	"down":       "ArrowDown",
	"arrowdown":  "ArrowDown",
	"left":       "ArrowLeft",
	"arrowleft":  "ArrowLeft",
	"right":      "ArrowRight",
	"arrowright": "ArrowRight",
	"home":       "Home",
	"end":        "End",
	"pageup":     "PageUp",
	"pagedown":   "PageDown",
	"insert":     "Insert",
}

func init() {
	for i := 1; i <= 12; i++ {
		keyNames[fmt.Sprintf("f%d", i)] = fmt.Sprintf("F%d", i)
	}
}

func normalizeModifier(name string) (string, error) {
	if m, ok := modifierNames[strings.ToLower(strings.TrimSpace(name))]; ok {
		return m, nil
	}
	return "", fmt.Errorf("unknown modifier %q", name)
}

// normalizeKey maps a key alias to its DOM key name. Single characters are
// passed through unchanged.
func normalizeKey(name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("key is required")
	}
	if utf8.RuneCountInString(name) == 1 {
		return name, nil
	}
	if k, ok := keyNames[strings.ToLower(strings.TrimSpace(name))]; ok {
		return k, nil
	}
	return "", fmt.Errorf("unknown key %q", name)
}
