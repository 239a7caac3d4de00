package features

import (
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/char5742/input-bridge/internal/types"
)

// Device は検出された物理入力デバイスを表す
type Device struct {
	Name string           // by-id配下のデバイス名
	Path string           // /dev/input/event* の実パス
	Type types.DeviceType // 分類されたデバイスタイプ
}

// DeviceEventType はデバイスイベントの種類を表す
type DeviceEventType int

const (
	DeviceAdded DeviceEventType = iota
	DeviceRemoved
	DeviceChanged
)

// DeviceEvent はデバイスの変更イベントを表す
type DeviceEvent struct {
	Type   DeviceEventType
	Device *Device
	Path   string
}

// DeviceCallback はデバイスイベント発生時に呼び出されるコールバック関数の型
type DeviceCallback func(event DeviceEvent)

// classifyDevice はby-idのデバイス名からデバイスタイプを判定する
func classifyDevice(name string) (types.DeviceType, bool) {
	switch {
	case strings.Contains(name, "joystick") || strings.Contains(name, "gamepad"):
		return types.DeviceGamepad, true
	case strings.Contains(name, "touchscreen") || strings.Contains(name, "touch"):
		return types.DeviceTouchPanel, true
	case strings.Contains(name, "kbd") || strings.Contains(name, "keyboard"):
		return types.DeviceKeyboard, true
	case strings.Contains(name, "mouse"):
		return types.DevicePointer, true
	}
	return 0, false
}

// ScanDevices は/dev/input/by-id配下を走査し、現在接続されているデバイスリストを返す
func ScanDevices() ([]Device, error) {
	entries, err := os.ReadDir("/dev/input/by-id")
	if err != nil {
		return nil, err
	}

	var devices []Device
	for _, entry := range entries {
		// eventノード以外(mouseN, jsN)はスキップ
		if !strings.Contains(entry.Name(), "event") {
			continue
		}
		fullPath := "/dev/input/by-id/" + entry.Name()
		realPath, err := os.Readlink(fullPath)
		if err != nil {
			continue
		}

		absPath := realPath
		if !strings.HasPrefix(realPath, "/") {
			absPath = "/dev/input/" + filepath.Base(realPath)
		}

		devType, ok := classifyDevice(entry.Name())
		if !ok {
			continue
		}
		devices = append(devices, Device{Name: entry.Name(), Path: absPath, Type: devType})
	}

	return devices, nil
}

// DeviceMonitor は入力デバイスの接続状態を監視する構造体
type DeviceMonitor struct {
	watcher       *fsnotify.Watcher
	callbacks     []DeviceCallback
	devices       map[string]*Device // パスをキーにしたデバイスマップ
	mutex         sync.RWMutex
	stopChan      chan struct{}
	pollingTicker *time.Ticker
	isRunning     bool
}

// NewDeviceMonitor は新しいDeviceMonitorを作成する
func NewDeviceMonitor() (*DeviceMonitor, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	return &DeviceMonitor{
		watcher:  watcher,
		devices:  make(map[string]*Device),
		stopChan: make(chan struct{}),
	}, nil
}

// Start はデバイスの監視を開始する
func (dm *DeviceMonitor) Start() error {
	if dm.isRunning {
		return nil // すでに実行中
	}

	log.Println("デバイスモニターを開始します")
	dm.isRunning = true

	// 監視対象のディレクトリを追加
	dirs := []string{"/dev/input", "/dev/input/by-id"}
	for _, dir := range dirs {
		if _, err := os.Stat(dir); !os.IsNotExist(err) {
			if err := dm.watcher.Add(dir); err != nil {
				log.Printf("ディレクトリの監視に失敗しました: %s - %v", dir, err)
			}
		}
	}

	// 初期デバイス一覧を取得
	devices, err := ScanDevices()
	if err != nil {
		log.Printf("初期デバイス一覧の取得に失敗しました: %v", err)
	} else {
		log.Printf("初期デバイス検出: %d 個のデバイスを検出", len(devices))
		dm.updateDeviceList(devices)
	}

	// イベント監視ゴルーチンを起動
	go dm.watchEvents()

	// 切断検出用のポーリング監視を開始（2秒ごと）
	dm.pollingTicker = time.NewTicker(2 * time.Second)
	go dm.runPolling()

	return nil
}

// Stop はデバイスの監視を停止する
func (dm *DeviceMonitor) Stop() {
	if !dm.isRunning {
		return
	}

	log.Println("デバイスモニターを停止します")
	close(dm.stopChan)
	if dm.pollingTicker != nil {
		dm.pollingTicker.Stop()
	}
	dm.watcher.Close()
	dm.isRunning = false
}

// RegisterCallback はデバイスイベントのコールバック関数を登録する
func (dm *DeviceMonitor) RegisterCallback(callback DeviceCallback) {
	dm.mutex.Lock()
	defer dm.mutex.Unlock()
	dm.callbacks = append(dm.callbacks, callback)
}

// Rescan はデバイス一覧を強制的に再スキャンする
func (dm *DeviceMonitor) Rescan() {
	devices, err := ScanDevices()
	if err != nil {
		log.Printf("デバイス再スキャンに失敗しました: %v", err)
		return
	}
	dm.updateDeviceList(devices)
}

// runPolling はデバイスの存在を定期的に確認する
func (dm *DeviceMonitor) runPolling() {
	for {
		select {
		case <-dm.stopChan:
			return
		case <-dm.pollingTicker.C:
			dm.checkDeviceExistence()
		}
	}
}

// checkDeviceExistence は登録済みデバイスノードの消失を検出する
func (dm *DeviceMonitor) checkDeviceExistence() {
	dm.mutex.RLock()
	paths := make([]string, 0, len(dm.devices))
	for path := range dm.devices {
		paths = append(paths, path)
	}
	dm.mutex.RUnlock()

	for _, path := range paths {
		if _, err := os.Stat(path); !os.IsNotExist(err) {
			continue
		}

		dm.mutex.Lock()
		device, exists := dm.devices[path]
		if exists {
			delete(dm.devices, path)
		}
		dm.mutex.Unlock()

		if exists {
			log.Printf("デバイスが削除されました: %s (%s)", device.Name, path)
			dm.notifyCallbacks(DeviceEvent{Type: DeviceRemoved, Device: device, Path: path})
		}
	}
}

// updateDeviceList は現在のデバイス一覧を更新し、変更があれば通知する
func (dm *DeviceMonitor) updateDeviceList(newDevices []Device) {
	var pending []DeviceEvent

	dm.mutex.Lock()

	seen := make(map[string]bool)
	for i := range newDevices {
		device := &newDevices[i]
		seen[device.Path] = true

		existing, ok := dm.devices[device.Path]
		if !ok {
			dm.devices[device.Path] = device
			log.Printf("新しいデバイスを検出: %s (%s) タイプ=%s", device.Name, device.Path, device.Type)
			pending = append(pending, DeviceEvent{Type: DeviceAdded, Device: device, Path: device.Path})
			continue
		}
		if existing.Name != device.Name || existing.Type != device.Type {
			dm.devices[device.Path] = device
			log.Printf("デバイス情報が変更: %s → %s (%s)", existing.Name, device.Name, device.Path)
			pending = append(pending, DeviceEvent{Type: DeviceChanged, Device: device, Path: device.Path})
		}
	}

	for path, device := range dm.devices {
		if !seen[path] {
			delete(dm.devices, path)
			log.Printf("デバイスを削除: %s (%s)", device.Name, path)
			pending = append(pending, DeviceEvent{Type: DeviceRemoved, Device: device, Path: path})
		}
	}

	dm.mutex.Unlock()

	// ロックを解放した状態でコールバックを呼び出す
	for _, event := range pending {
		dm.notifyCallbacks(event)
	}
}

// notifyCallbacks は登録されているすべてのコールバックに通知する
func (dm *DeviceMonitor) notifyCallbacks(event DeviceEvent) {
	dm.mutex.RLock()
	callbacks := append([]DeviceCallback(nil), dm.callbacks...)
	dm.mutex.RUnlock()

	for _, callback := range callbacks {
		callback(event)
	}
}

// watchEvents はfsnotifyのイベントを監視する
func (dm *DeviceMonitor) watchEvents() {
	// 連続するファイルシステムイベントをまとめて処理するためのデバウンス
	const eventDebounceTime = 500 * time.Millisecond
	eventTimer := time.NewTimer(eventDebounceTime)
	eventTimer.Stop()
	pendingRescan := false

	for {
		select {
		case <-dm.stopChan:
			return

		case <-eventTimer.C:
			if pendingRescan {
				pendingRescan = false
				dm.Rescan()
			}

		case event, ok := <-dm.watcher.Events:
			if !ok {
				return
			}
			if !strings.Contains(event.Name, "/dev/input") {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Remove|fsnotify.Write) != 0 {
				if !pendingRescan {
					pendingRescan = true
					eventTimer.Reset(eventDebounceTime)
				}
			}

		case err, ok := <-dm.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("ファイルシステム監視エラー: %v", err)
		}
	}
}

// GetConnectedDevices は現在接続されているデバイスのスナップショットを返す
func (dm *DeviceMonitor) GetConnectedDevices() []Device {
	dm.mutex.RLock()
	defer dm.mutex.RUnlock()

	devices := make([]Device, 0, len(dm.devices))
	for _, device := range dm.devices {
		devices = append(devices, *device)
	}
	return devices
}
