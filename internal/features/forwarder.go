package features

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"syscall"

	"github.com/char5742/input-bridge/internal/consts"
	"github.com/char5742/input-bridge/internal/types"
	"github.com/char5742/input-bridge/internal/utils"
)

// ErrUnknownDeviceType は転送先の仮想デバイスが存在しないことを表す
var ErrUnknownDeviceType = errors.New("no virtual device for device type")

// ForwarderConfig は仮想デバイス群の作成パラメータ
type ForwarderConfig struct {
	UinputPath string // 通常は /dev/uinput
	NamePrefix string // 仮想デバイス名の接頭辞
	MinX       int32  // タッチパネルのX座標最小値
	MaxX       int32  // タッチパネルのX座標最大値
	MinY       int32  // タッチパネルのY座標最小値
	MaxY       int32  // タッチパネルのY座標最大値
}

// Forwarder は取り出した入力イベントをデバイスタイプ別の仮想uinputデバイスへ書き込む
type Forwarder struct {
	devices map[types.DeviceType]*os.File
}

// NewForwarder は4種のデバイスタイプそれぞれに対応する仮想デバイスを作成する
func NewForwarder(cfg ForwarderConfig) (*Forwarder, error) {
	f := &Forwarder{devices: make(map[types.DeviceType]*os.File)}

	creators := []struct {
		devType types.DeviceType
		create  func(ForwarderConfig) (*os.File, error)
	}{
		{types.DevicePointer, createVirtualPointer},
		{types.DeviceKeyboard, createVirtualKeyboard},
		{types.DeviceTouchPanel, createVirtualTouchPanel},
		{types.DeviceGamepad, createVirtualGamepad},
	}

	for _, c := range creators {
		file, err := c.create(cfg)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("仮想デバイスの作成に失敗しました[type=%s]: %w", c.devType, err)
		}
		f.devices[c.devType] = file
	}

	return f, nil
}

// Forward はイベントをデバイスタイプに対応する仮想デバイスへ書き込む
func (f *Forwarder) Forward(ev types.InputEvent) error {
	file, ok := f.devices[ev.DeviceType]
	if !ok {
		return ErrUnknownDeviceType
	}

	// 時刻フィールドはカーネル側で設定されるため埋めない
	if _, err := file.Write(types.EncodeRawEvent(ev.Raw())); err != nil {
		return fmt.Errorf("イベントの書き込みに失敗しました: %w", err)
	}
	return nil
}

// Close はすべての仮想デバイスを破棄する
func (f *Forwarder) Close() error {
	var firstErr error
	for devType, file := range f.devices {
		if err := releaseDevice(file); err != nil && firstErr == nil {
			firstErr = err
		}
		if err := file.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(f.devices, devType)
	}
	return firstErr
}

// createVirtualKeyboard は全キーコードを受け付ける仮想キーボードを作成する
func createVirtualKeyboard(cfg ForwarderConfig) (*os.File, error) {
	deviceFile, err := createDeviceFile(cfg.UinputPath)
	if err != nil {
		return nil, err
	}

	if err := registerEventType(deviceFile, uintptr(consts.Key)); err != nil {
		_ = deviceFile.Close()
		return nil, fmt.Errorf("キー入力イベント(EV_KEY)の登録に失敗しました: %v", err)
	}

	for code := 1; code <= consts.KeyMax; code++ {
		if err := utils.IOCtl(deviceFile, consts.SetKeyBit, uintptr(code)); err != nil {
			_ = deviceFile.Close()
			return nil, fmt.Errorf("キーコードの登録に失敗しました %v: %v", code, err)
		}
	}

	return createUinputDevice(deviceFile, cfg.NamePrefix+"-keyboard", nil, nil)
}

// createVirtualPointer は相対移動とボタンを持つ仮想ポインターを作成する
func createVirtualPointer(cfg ForwarderConfig) (*os.File, error) {
	deviceFile, err := createDeviceFile(cfg.UinputPath)
	if err != nil {
		return nil, err
	}

	if err := registerEventType(deviceFile, uintptr(consts.Key)); err != nil {
		_ = deviceFile.Close()
		return nil, fmt.Errorf("キー入力イベント(EV_KEY)の登録に失敗しました: %v", err)
	}
	for _, btn := range []int{consts.MouseBtnLeft, consts.MouseBtnRight, consts.MouseBtnMid} {
		if err := utils.IOCtl(deviceFile, consts.SetKeyBit, uintptr(btn)); err != nil {
			_ = deviceFile.Close()
			return nil, fmt.Errorf("マウスボタンの登録に失敗しました %v: %v", btn, err)
		}
	}

	if err := registerEventType(deviceFile, uintptr(consts.Rel)); err != nil {
		_ = deviceFile.Close()
		return nil, fmt.Errorf("相対座標イベント(EV_REL)の登録に失敗しました: %v", err)
	}
	for _, axis := range []int{consts.RelX, consts.RelY, consts.RelWheel} {
		if err := utils.IOCtl(deviceFile, consts.SetRelBit, uintptr(axis)); err != nil {
			_ = deviceFile.Close()
			return nil, fmt.Errorf("相対座標軸の登録に失敗しました %v: %v", axis, err)
		}
	}

	return createUinputDevice(deviceFile, cfg.NamePrefix+"-pointer", nil, nil)
}

// createVirtualTouchPanel はマルチタッチ対応の仮想タッチパネルを作成する
func createVirtualTouchPanel(cfg ForwarderConfig) (*os.File, error) {
	deviceFile, err := createDeviceFile(cfg.UinputPath)
	if err != nil {
		return nil, err
	}

	// キー入力イベント(EV_KEY)を登録する
	// これによりタッチ検出が可能になる
	if err := registerEventType(deviceFile, uintptr(consts.Key)); err != nil {
		_ = deviceFile.Close()
		return nil, fmt.Errorf("キー入力イベント(EV_KEY)の登録に失敗しました: %v", err)
	}
	for _, ev := range []int{consts.BtnTouch, consts.BtnToolFinger} {
		if err := utils.IOCtl(deviceFile, consts.SetKeyBit, uintptr(ev)); err != nil {
			_ = deviceFile.Close()
			return nil, fmt.Errorf("キー入力種別の登録に失敗しました %v: %v", ev, err)
		}
	}

	// 絶対座標入力イベント(EV_ABS)を登録する
	if err := registerEventType(deviceFile, uintptr(consts.Abs)); err != nil {
		_ = deviceFile.Close()
		return nil, fmt.Errorf("絶対座標入力イベント(EV_ABS)の登録に失敗しました: %v", err)
	}

	// X軸とY軸、マルチタッチイベントを登録する
	for _, ev := range []int{
		consts.AbsX,
		consts.AbsY,
		consts.AbsMtSlot,       // スロット（指の識別子）
		consts.AbsMtPositionX,  // X座標
		consts.AbsMtPositionY,  // Y座標
		consts.AbsMtTrackingId, // タッチの追跡ID
		consts.AbsMtTouchMajor, // タッチ領域の主軸
		consts.AbsMtPressure,   // タッチ圧力
	} {
		if err := utils.IOCtl(deviceFile, consts.SetAbsBit, uintptr(ev)); err != nil {
			_ = deviceFile.Close()
			return nil, fmt.Errorf("座標軸の登録に失敗しました %v: %v", ev, err)
		}
	}

	var absMin [consts.AbsSize]int32
	var absMax [consts.AbsSize]int32

	absMin[consts.AbsX] = cfg.MinX
	absMax[consts.AbsX] = cfg.MaxX
	absMin[consts.AbsY] = cfg.MinY
	absMax[consts.AbsY] = cfg.MaxY

	absMin[consts.AbsMtSlot] = 0
	absMax[consts.AbsMtSlot] = 9

	absMin[consts.AbsMtPositionX] = cfg.MinX
	absMax[consts.AbsMtPositionX] = cfg.MaxX
	absMin[consts.AbsMtPositionY] = cfg.MinY
	absMax[consts.AbsMtPositionY] = cfg.MaxY

	absMin[consts.AbsMtTouchMajor] = 0
	absMax[consts.AbsMtTouchMajor] = 255

	absMin[consts.AbsMtPressure] = 0
	absMax[consts.AbsMtPressure] = 255

	return createUinputDevice(deviceFile, cfg.NamePrefix+"-touchpanel", &absMin, &absMax)
}

// createVirtualGamepad はボタンとスティック軸を持つ仮想ゲームパッドを作成する
func createVirtualGamepad(cfg ForwarderConfig) (*os.File, error) {
	deviceFile, err := createDeviceFile(cfg.UinputPath)
	if err != nil {
		return nil, err
	}

	if err := registerEventType(deviceFile, uintptr(consts.Key)); err != nil {
		_ = deviceFile.Close()
		return nil, fmt.Errorf("キー入力イベント(EV_KEY)の登録に失敗しました: %v", err)
	}
	for _, btn := range []int{consts.BtnGamepad, consts.BtnEast, consts.BtnNorth, consts.BtnWest} {
		if err := utils.IOCtl(deviceFile, consts.SetKeyBit, uintptr(btn)); err != nil {
			_ = deviceFile.Close()
			return nil, fmt.Errorf("ゲームパッドボタンの登録に失敗しました %v: %v", btn, err)
		}
	}

	if err := registerEventType(deviceFile, uintptr(consts.Abs)); err != nil {
		_ = deviceFile.Close()
		return nil, fmt.Errorf("絶対座標入力イベント(EV_ABS)の登録に失敗しました: %v", err)
	}
	for _, axis := range []int{consts.AbsX, consts.AbsY} {
		if err := utils.IOCtl(deviceFile, consts.SetAbsBit, uintptr(axis)); err != nil {
			_ = deviceFile.Close()
			return nil, fmt.Errorf("スティック軸の登録に失敗しました %v: %v", axis, err)
		}
	}

	var absMin [consts.AbsSize]int32
	var absMax [consts.AbsSize]int32
	absMin[consts.AbsX] = -32768
	absMax[consts.AbsX] = 32767
	absMin[consts.AbsY] = -32768
	absMax[consts.AbsY] = 32767

	return createUinputDevice(deviceFile, cfg.NamePrefix+"-gamepad", &absMin, &absMax)
}

// デバイスファイルを作成する
func createDeviceFile(path string) (*os.File, error) {
	deviceFile, err := os.OpenFile(path, syscall.O_WRONLY|syscall.O_NONBLOCK, 0660)
	if err != nil {
		return nil, errors.New("デバイスファイルを開くのに失敗しました")
	}
	return deviceFile, nil
}

// デバイスを解放する
func releaseDevice(deviceFile *os.File) error {
	return utils.IOCtl(deviceFile, consts.DevDestroy, uintptr(0))
}

// イベントタイプを登録する
func registerEventType(deviceFile *os.File, evType uintptr) error {
	return utils.IOCtl(deviceFile, consts.SetEvBit, evType)
}

// createUinputDevice はuinputデバイス構造体を書き込んでデバイスを作成する
func createUinputDevice(deviceFile *os.File, name string, absMin *[consts.AbsSize]int32, absMax *[consts.AbsSize]int32) (*os.File, error) {
	userDev := types.UserDev{
		Name: toUinputName([]byte(name)),
		ID: types.InputID{
			Bustype: consts.BusVirtual,
			Vendor:  0x4711,
			Product: 0x0817,
			Version: 1,
		},
	}
	if absMin != nil {
		userDev.Absmin = *absMin
	}
	if absMax != nil {
		userDev.Absmax = *absMax
	}

	buf := new(bytes.Buffer)
	if err := binary.Write(buf, binary.LittleEndian, userDev); err != nil {
		_ = deviceFile.Close()
		return nil, fmt.Errorf("ユーザーデバイスバッファの書き込みに失敗しました: %v", err)
	}
	if _, err := deviceFile.Write(buf.Bytes()); err != nil {
		_ = deviceFile.Close()
		return nil, fmt.Errorf("デバイス構造体をデバイスファイルに書き込むのに失敗しました: %v", err)
	}

	if err := utils.IOCtl(deviceFile, consts.DevCreate, uintptr(0)); err != nil {
		_ = deviceFile.Close()
		return nil, fmt.Errorf("デバイスの作成に失敗しました: %v", err)
	}

	return deviceFile, nil
}

// 名前をuinput用の固定長配列に変換する
func toUinputName(name []byte) (uinputName [consts.MaxNameSize]byte) {
	copy(uinputName[:], name)
	return uinputName
}
