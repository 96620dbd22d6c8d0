// File: internal/browser/keymap.go
package browser

import (
	"strings"

	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/chromedp/kb"
)

// keyAliases maps human-friendly key names, as decision models tend to emit
// them, onto the key strings the DOM key dispatcher understands. Lookups are
// case-insensitive; names absent from the table pass through unchanged.
var keyAliases = map[string]string{
	"return":     kb.Enter,
	"enter":      kb.Enter,
	"tab":        kb.Tab,
	"escape":     kb.Escape,
	"esc":        kb.Escape,
	"backspace":  kb.Backspace,
	"delete":     kb.Delete,
	"del":        kb.Delete,
	"insert":     kb.Insert,
	"space":      " ",
	"up":         kb.ArrowUp,
	"down":       kb.ArrowDown,
	"left":       kb.ArrowLeft,
	"right":      kb.ArrowRight,
	"arrow_up":   kb.ArrowUp,
	"arrow_down": kb.ArrowDown,
	"home":       kb.Home,
	"end":        kb.End,
	"page_up":    kb.PageUp,
	"pageup":     kb.PageUp,
	"page_down":  kb.PageDown,
	"pagedown":   kb.PageDown,
}

// modifierNames maps chord prefixes onto CDP modifier bits.
var modifierNames = map[string]input.Modifier{
	"ctrl":    input.ModifierCtrl,
	"control": input.ModifierCtrl,
	"alt":     input.ModifierAlt,
	"option":  input.ModifierAlt,
	"shift":   input.ModifierShift,
	"cmd":     input.ModifierMeta,
	"command": input.ModifierMeta,
	"meta":    input.ModifierMeta,
	"super":   input.ModifierMeta,
	"win":     input.ModifierMeta,
}

// TranslateKey resolves a single key name through the alias table. Unmapped
// names are returned unchanged, which keeps the translation idempotent for
// names that are already canonical.
func TranslateKey(name string) string {
	if mapped, ok := keyAliases[strings.ToLower(strings.TrimSpace(name))]; ok {
		return mapped
	}
	return name
}

// ParseChord splits a key name like "ctrl+shift+a" into the final key and the
// modifier bitmask. Segments before the last are treated as modifiers;
// unrecognized modifier names are dropped. A single segment is just a key.
func ParseChord(name string) (string, input.Modifier) {
	parts := strings.Split(name, "+")
	if len(parts) == 1 {
		return TranslateKey(name), 0
	}

	key := parts[len(parts)-1]
	if key == "" {
		// A trailing separator means the key itself is "+", e.g. "ctrl++".
		key = "+"
	}

	var mods input.Modifier
	for _, part := range parts[:len(parts)-1] {
		if m, ok := modifierNames[strings.ToLower(strings.TrimSpace(part))]; ok {
			mods |= m
		}
	}
	return TranslateKey(key), mods
}
