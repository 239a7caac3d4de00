package types

import (
	"encoding/binary"
	"fmt"
	"syscall"
)

// DeviceType は入力イベントの発生元デバイスの種類を表す列挙型
type DeviceType int32

const (
	DevicePointer    DeviceType = iota // ポインターデバイス
	DeviceKeyboard                     // キーボードデバイス
	DeviceTouchPanel                   // タッチパネルデバイス
	DeviceGamepad                      // ゲームパッドデバイス
)

// Valid はデバイスタイプが定義済みの4種のいずれかであるかを返す
func (d DeviceType) Valid() bool {
	return d >= DevicePointer && d <= DeviceGamepad
}

func (d DeviceType) String() string {
	switch d {
	case DevicePointer:
		return "pointer"
	case DeviceKeyboard:
		return "keyboard"
	case DeviceTouchPanel:
		return "touchpanel"
	case DeviceGamepad:
		return "gamepad"
	default:
		return fmt.Sprintf("unknown(%d)", int32(d))
	}
}

// ParseDeviceType は文字列表現からデバイスタイプを解決する
func ParseDeviceType(s string) (DeviceType, error) {
	switch s {
	case "pointer":
		return DevicePointer, nil
	case "keyboard":
		return DeviceKeyboard, nil
	case "touchpanel":
		return DeviceTouchPanel, nil
	case "gamepad":
		return DeviceGamepad, nil
	}
	return 0, fmt.Errorf("unknown device type: %q", s)
}

// InputEvent はデバイスタイプとデバイスIDでタグ付けされた入力イベント。
// Type・Code・ValueはLinuxカーネルのinput_eventと同じ意味を持つ
type InputEvent struct {
	DeviceType DeviceType `json:"device_type"` // 発生元デバイスの種類
	DeviceID   int32      `json:"device_id"`   // 同一タイプ内で一意なデバイスID
	Type       uint16     `json:"type"`        // イベントタイプ (例: EV_KEY)
	Code       uint16     `json:"code"`        // イベントコード (例: KEY_ENTER)
	Value      int32      `json:"value"`       // イベント値 (例: 押下=1 解放=0)
}

// RawEvent はカーネルABIそのままの入力イベントを表す構造体
type RawEvent struct {
	Time  syscall.Timeval // イベント発生時刻
	Type  uint16          // イベントタイプ
	Code  uint16          // イベントコード
	Value int32           // イベント値
}

// RawEventSize はevdevデバイスファイル上の1イベントのバイト数
const RawEventSize = 24

// DecodeRawEvent はevdevデバイスから読み取った24バイトをデコードする
func DecodeRawEvent(buf []byte) (RawEvent, error) {
	var e RawEvent
	if len(buf) < RawEventSize {
		return e, fmt.Errorf("short raw event: %d bytes", len(buf))
	}
	e.Time.Sec = int64(binary.LittleEndian.Uint64(buf[0:8]))
	e.Time.Usec = int64(binary.LittleEndian.Uint64(buf[8:16]))
	e.Type = binary.LittleEndian.Uint16(buf[16:18])
	e.Code = binary.LittleEndian.Uint16(buf[18:20])
	e.Value = int32(binary.LittleEndian.Uint32(buf[20:24]))
	return e, nil
}

// EncodeRawEvent はイベントをデバイスファイルへ書き込むための24バイトに変換する
func EncodeRawEvent(e RawEvent) []byte {
	buf := make([]byte, RawEventSize)
	binary.LittleEndian.PutUint64(buf[0:8], uint64(e.Time.Sec))
	binary.LittleEndian.PutUint64(buf[8:16], uint64(e.Time.Usec))
	binary.LittleEndian.PutUint16(buf[16:18], e.Type)
	binary.LittleEndian.PutUint16(buf[18:20], e.Code)
	binary.LittleEndian.PutUint32(buf[20:24], uint32(e.Value))
	return buf
}

// Raw はタグ付きイベントからカーネルABI形式のイベントを取り出す
func (ev InputEvent) Raw() RawEvent {
	return RawEvent{Type: ev.Type, Code: ev.Code, Value: ev.Value}
}
