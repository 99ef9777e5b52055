package console

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// Names of the special keys understood in key sequences, written as <NAME>.
// Modifiers combine with a plus sign, e.g. <CTRL+ALT+DELETE> or <ALT+F2>.
const (
	KeyEnter     = "ENTER"
	KeyTab       = "TAB"
	KeyEsc       = "ESC"
	KeySpace     = "SPACE"
	KeyBackspace = "BACKSPACE"
	KeyDelete    = "DELETE"
	KeyUp        = "UP"
	KeyDown      = "DOWN"
	KeyLeft      = "LEFT"
	KeyRight     = "RIGHT"
	KeyHome      = "HOME"
	KeyEnd       = "END"
	KeyPageUp    = "PGUP"
	KeyPageDown  = "PGDN"
)

var specialKeys = map[string]bool{
	KeyEnter: true, KeyTab: true, KeyEsc: true, KeySpace: true,
	KeyBackspace: true, KeyDelete: true, KeyUp: true, KeyDown: true,
	KeyLeft: true, KeyRight: true, KeyHome: true, KeyEnd: true,
	KeyPageUp: true, KeyPageDown: true,
	"F1": true, "F2": true, "F3": true, "F4": true, "F5": true, "F6": true,
	"F7": true, "F8": true, "F9": true, "F10": true, "F11": true, "F12": true,
}

// Key is one key press. Exactly one of Char and Name is set.
type Key struct {
	// Char is a printable character
	Char rune
	// Name is a special key such as ENTER or F2
	Name  string
	Ctrl  bool
	Alt   bool
	Shift bool
}

// Special returns true for named keys
func (k Key) Special() bool {
	return k.Name != ""
}

// Modified returns true if any modifier is held
func (k Key) Modified() bool {
	return k.Ctrl || k.Alt || k.Shift
}

func (k Key) String() string {
	if !k.Special() && !k.Modified() {
		return string(k.Char)
	}
	var parts []string
	if k.Ctrl {
		parts = append(parts, "CTRL")
	}
	if k.Alt {
		parts = append(parts, "ALT")
	}
	if k.Shift {
		parts = append(parts, "SHIFT")
	}
	if k.Special() {
		parts = append(parts, k.Name)
	} else {
		parts = append(parts, string(k.Char))
	}
	return "<" + strings.Join(parts, "+") + ">"
}

// ParseKeys parses a key sequence such as "root<TAB>secret<ENTER>".
// Use <LT> and <GT> to type literal angle brackets.
func ParseKeys(seq string) ([]Key, error) {
	var keys []Key
	rest := seq
	for len(rest) > 0 {
		if rest[0] != '<' {
			r, size := utf8.DecodeRuneInString(rest)
			if r == utf8.RuneError && size == 1 {
				return nil, fmt.Errorf("key sequence %q: invalid UTF-8 at byte %d", seq, len(seq)-len(rest))
			}
			keys = append(keys, Key{Char: r})
			rest = rest[size:]
			continue
		}
		end := strings.IndexByte(rest, '>')
		if end < 0 {
			return nil, fmt.Errorf("unterminated key token in %q", seq)
		}
		k, err := parseToken(rest[1:end])
		if err != nil {
			return nil, fmt.Errorf("key sequence %q: %v", seq, err)
		}
		keys = append(keys, k)
		rest = rest[end+1:]
	}
	return keys, nil
}

func parseToken(token string) (Key, error) {
	if !utf8.ValidString(token) {
		return Key{}, fmt.Errorf("invalid UTF-8 in key %q", token)
	}
	parts := strings.Split(token, "+")
	var k Key
	for _, m := range parts[:len(parts)-1] {
		switch strings.ToUpper(m) {
		case "CTRL":
			k.Ctrl = true
		case "ALT":
			k.Alt = true
		case "SHIFT":
			k.Shift = true
		default:
			return Key{}, fmt.Errorf("unknown modifier %q", m)
		}
	}

	last := parts[len(parts)-1]
	name := strings.ToUpper(last)
	switch {
	case name == "LT":
		k.Char = '<'
	case name == "GT":
		k.Char = '>'
	case specialKeys[name]:
		k.Name = name
	case len([]rune(last)) == 1 && k.Modified():
		k.Char = []rune(strings.ToLower(last))[0]
	default:
		return Key{}, fmt.Errorf("unknown key %q", last)
	}
	return k, nil
}
