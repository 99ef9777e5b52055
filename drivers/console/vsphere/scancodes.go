package vsphere

import (
	"fmt"

	"github.com/hsauto/hsauto/drivers/console"
	"github.com/vmware/govmomi/vim25/types"
)

// USB HID usage IDs of the keyboard page
var namedCodes = map[string]int32{
	console.KeyEnter:     0x28,
	console.KeyEsc:       0x29,
	console.KeyBackspace: 0x2a,
	console.KeyTab:       0x2b,
	console.KeySpace:     0x2c,
	console.KeyHome:      0x4a,
	console.KeyPageUp:    0x4b,
	console.KeyDelete:    0x4c,
	console.KeyEnd:       0x4d,
	console.KeyPageDown:  0x4e,
	console.KeyRight:     0x4f,
	console.KeyLeft:      0x50,
	console.KeyDown:      0x51,
	console.KeyUp:        0x52,
}

type charCode struct {
	code  int32
	shift bool
}

var charCodes = map[rune]charCode{}

func init() {
	for i := 0; i < 26; i++ {
		charCodes['a'+rune(i)] = charCode{code: 0x04 + int32(i)}
		charCodes['A'+rune(i)] = charCode{code: 0x04 + int32(i), shift: true}
	}
	for i := 1; i <= 9; i++ {
		charCodes['0'+rune(i)] = charCode{code: 0x1e + int32(i-1)}
	}
	charCodes['0'] = charCode{code: 0x27}
	for i, r := range "!@#$%^&*()" {
		charCodes[r] = charCode{code: 0x1e + int32(i), shift: true}
	}
	for i := 1; i <= 12; i++ {
		namedCodes[fmt.Sprintf("F%d", i)] = 0x3a + int32(i-1)
	}

	plain := map[rune]int32{
		' ': 0x2c, '\t': 0x2b, '\n': 0x28,
		'-': 0x2d, '=': 0x2e, '[': 0x2f, ']': 0x30, '\\': 0x31,
		';': 0x33, '\'': 0x34, '`': 0x35, ',': 0x36, '.': 0x37, '/': 0x38,
	}
	shifted := map[rune]int32{
		'_': 0x2d, '+': 0x2e, '{': 0x2f, '}': 0x30, '|': 0x31,
		':': 0x33, '"': 0x34, '~': 0x35, '<': 0x36, '>': 0x37, '?': 0x38,
	}
	for r, c := range plain {
		charCodes[r] = charCode{code: c}
	}
	for r, c := range shifted {
		charCodes[r] = charCode{code: c, shift: true}
	}
}

// keyEvent converts one key into a scan code event
func keyEvent(k console.Key) (types.UsbScanCodeSpecKeyEvent, error) {
	var code int32
	shift := k.Shift
	if k.Special() {
		c, ok := namedCodes[k.Name]
		if !ok {
			return types.UsbScanCodeSpecKeyEvent{}, fmt.Errorf("no scan code for key %s", k)
		}
		code = c
	} else {
		c, ok := charCodes[k.Char]
		if !ok {
			return types.UsbScanCodeSpecKeyEvent{}, fmt.Errorf("no scan code for character %q", k.Char)
		}
		code = c.code
		shift = shift || c.shift
	}

	return types.UsbScanCodeSpecKeyEvent{
		UsbHidCode: code<<16 | 7,
		Modifiers: &types.UsbScanCodeSpecModifierType{
			LeftControl: types.NewBool(k.Ctrl),
			LeftAlt:     types.NewBool(k.Alt),
			LeftShift:   types.NewBool(shift),
		},
	}, nil
}

// scanCodeSpec converts a key sequence into a PutUsbScanCodes request
func scanCodeSpec(keys []console.Key) (types.UsbScanCodeSpec, error) {
	spec := types.UsbScanCodeSpec{}
	for _, k := range keys {
		ev, err := keyEvent(k)
		if err != nil {
			return types.UsbScanCodeSpec{}, err
		}
		spec.KeyEvents = append(spec.KeyEvents, ev)
	}
	return spec, nil
}
