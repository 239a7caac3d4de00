package types

import (
	"testing"
)

// 4種のデバイスタイプのみが有効と判定されること
func TestDeviceTypeValid(t *testing.T) {
	valid := []DeviceType{DevicePointer, DeviceKeyboard, DeviceTouchPanel, DeviceGamepad}
	for _, dt := range valid {
		if !dt.Valid() {
			t.Errorf("%s should be valid", dt)
		}
	}

	invalid := []DeviceType{DeviceType(-1), DeviceType(4), DeviceType(100)}
	for _, dt := range invalid {
		if dt.Valid() {
			t.Errorf("%d should be invalid", int32(dt))
		}
	}
}

// 文字列表現と列挙値が相互に変換できること
func TestParseDeviceType(t *testing.T) {
	tests := []struct {
		name string
		want DeviceType
	}{
		{"pointer", DevicePointer},
		{"keyboard", DeviceKeyboard},
		{"touchpanel", DeviceTouchPanel},
		{"gamepad", DeviceGamepad},
	}

	for _, tt := range tests {
		got, err := ParseDeviceType(tt.name)
		if err != nil {
			t.Errorf("%s: parse failed: %v", tt.name, err)
			continue
		}
		if got != tt.want {
			t.Errorf("%s: expected %d got %d", tt.name, tt.want, got)
		}
		if got.String() != tt.name {
			t.Errorf("round trip mismatch: %s → %s", tt.name, got.String())
		}
	}

	if _, err := ParseDeviceType("trackball"); err == nil {
		t.Error("unknown name should fail to parse")
	}
}

// カーネルABIの24バイトレイアウトでエンコード・デコードできること
func TestRawEventCodec(t *testing.T) {
	want := RawEvent{
		Type:  0x01, // EV_KEY
		Code:  28,   // KEY_ENTER
		Value: -7,   // 負値の保持を確認
	}
	want.Time.Sec = 1700000000
	want.Time.Usec = 123456

	buf := EncodeRawEvent(want)
	if len(buf) != RawEventSize {
		t.Fatalf("expected %d bytes, got %d", RawEventSize, len(buf))
	}

	// type/code/valueのオフセットがinput_eventのレイアウトと一致すること
	if buf[16] != 0x01 || buf[17] != 0x00 {
		t.Errorf("type field not at offset 16: % x", buf[16:18])
	}
	if buf[18] != 28 {
		t.Errorf("code field not at offset 18: % x", buf[18:20])
	}

	got, err := DecodeRawEvent(buf)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if got != want {
		t.Errorf("expected %+v, got %+v", want, got)
	}
}

// 不足バイト列のデコードはエラーになること
func TestDecodeRawEventShortBuffer(t *testing.T) {
	if _, err := DecodeRawEvent(make([]byte, RawEventSize-1)); err == nil {
		t.Error("short buffer should fail to decode")
	}
}
