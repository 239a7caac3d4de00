package features

import (
	"testing"

	"github.com/char5742/input-bridge/internal/types"
)

// by-idのデバイス名が4種のデバイスタイプへ分類されること
func TestClassifyDevice(t *testing.T) {
	tests := []struct {
		name string
		want types.DeviceType
		ok   bool
	}{
		{"usb-Logitech_USB_Keyboard-event-kbd", types.DeviceKeyboard, true},
		{"usb-Logitech_G304-event-mouse", types.DevicePointer, true},
		{"usb-ELAN_Touchscreen-event-touchscreen", types.DeviceTouchPanel, true},
		{"usb-Sony_Wireless_Controller-event-joystick", types.DeviceGamepad, true},
		{"usb-Gamepad_Pro-event-gamepad", types.DeviceGamepad, true},
		{"usb-Some_Audio_Device-event-if01", 0, false},
	}

	for _, tt := range tests {
		got, ok := classifyDevice(tt.name)
		if ok != tt.ok {
			t.Errorf("%s: expected ok=%v got %v", tt.name, tt.ok, ok)
			continue
		}
		if ok && got != tt.want {
			t.Errorf("%s: expected %s got %s", tt.name, tt.want, got)
		}
	}
}
