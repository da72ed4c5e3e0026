package cdp

import (
	"unicode"

	"github.com/chromedp/cdproto/input"
)

// keyDef carries the fields Chrome needs to synthesize a key event.
type keyDef struct {
	key      string
	code     string
	keyCode  int64
	text     string
	modifier input.Modifier
}

var namedKeys = map[string]keyDef{
	"Control":    {key: "Control", code: "ControlLeft", keyCode: 17, modifier: input.ModifierCtrl},
	"Shift":      {key: "Shift", code: "ShiftLeft", keyCode: 16, modifier: input.ModifierShift},
	"Alt":        {key: "Alt", code: "AltLeft", keyCode: 18, modifier: input.ModifierAlt},
	"Meta":       {key: "Meta", code: "MetaLeft", keyCode: 91, modifier: input.ModifierMeta},
	"Enter":      {key: "Enter", code: "Enter", keyCode: 13, text: "\r"},
	"Tab":        {key: "Tab", code: "Tab", keyCode: 9},
	"Escape":     {key: "Escape", code: "Escape", keyCode: 27},
	"Backspace":  {key: "Backspace", code: "Backspace", keyCode: 8},
	"Delete":     {key: "Delete", code: "Delete", keyCode: 46},
	"Insert":     {key: "Insert", code: "Insert", keyCode: 45},
	"Home":       {key: "Home", code: "Home", keyCode: 36},
	"End":        {key: "End", code: "End", keyCode: 35},
	"PageUp":     {key: "PageUp", code: "PageUp", keyCode: 33},
	"PageDown":   {key: "PageDown", code: "PageDown", keyCode: 34},
	"ArrowLeft":  {key: "ArrowLeft", code: "ArrowLeft", keyCode: 37},
	"ArrowUp":    {key: "ArrowUp", code: "ArrowUp", keyCode: 38},
	"ArrowRight": {key: "ArrowRight", code: "ArrowRight", keyCode: 39},
	"ArrowDown":  {key: "ArrowDown", code: "ArrowDown", keyCode: 40},
	" ":          {key: " ", code: "Space", keyCode: 32, text: " "},
	"F1":         {key: "F1", code: "F1", keyCode: 112},
	"F2":         {key: "F2", code: "F2", keyCode: 113},
	"F3":         {key: "F3", code: "F3", keyCode: 114},
	"F4":         {key: "F4", code: "F4", keyCode: 115},
	"F5":         {key: "F5", code: "F5", keyCode: 116},
	"F6":         {key: "F6", code: "F6", keyCode: 117},
	"F7":         {key: "F7", code: "F7", keyCode: 118},
	"F8":         {key: "F8", code: "F8", keyCode: 119},
	"F9":         {key: "F9", code: "F9", keyCode: 120},
	"F10":        {key: "F10", code: "F10", keyCode: 121},
	"F11":        {key: "F11", code: "F11", keyCode: 122},
	"F12":        {key: "F12", code: "F12", keyCode: 123},
}

// lookupKey maps a DOM key name or a single character to its event fields.
func lookupKey(key string) keyDef {
	if def, ok := namedKeys[key]; ok {
		return def
	}

	r := []rune(key)
	if len(r) != 1 {
		return keyDef{key: key}
	}

	c := r[0]
	def := keyDef{key: key, text: key}
	switch {
	case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z':
		up := unicode.ToUpper(c)
		def.code = "Key" + string(up)
		def.keyCode = int64(up)
	case c >= '0' && c <= '9':
		def.code = "Digit" + key
		def.keyCode = int64(c)
	default:
		def.keyCode = int64(unicode.ToUpper(c))
	}
	return def
}
