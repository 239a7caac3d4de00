package features

import (
	"sync"

	"github.com/char5742/input-bridge/internal/types"
)

// RegisteredDevice はブリッジに登録された入力デバイスを表す
type RegisteredDevice struct {
	Name string           `json:"name"`        // by-id配下のデバイス名
	Path string           `json:"path"`        // /dev/input/event* の実パス
	Type types.DeviceType `json:"device_type"` // デバイスタイプ
	ID   int32            `json:"device_id"`   // 同一タイプ内で一意なID
}

// Registry はデバイスタイプごとに一意なデバイスIDを払い出す台帳。
// 同じパスのデバイスを再登録した場合は既存のIDを維持する
type Registry struct {
	mutex  sync.Mutex
	nextID map[types.DeviceType]int32
	byPath map[string]RegisteredDevice
}

// NewRegistry は空のレジストリを作成する
func NewRegistry() *Registry {
	return &Registry{
		nextID: make(map[types.DeviceType]int32),
		byPath: make(map[string]RegisteredDevice),
	}
}

// Register はデバイスを登録し、タイプ内で一意なIDを割り当てて返す
func (r *Registry) Register(name string, path string, devType types.DeviceType) RegisteredDevice {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if dev, ok := r.byPath[path]; ok && dev.Type == devType {
		// 既知のパスはIDを維持したまま名前だけ更新する
		dev.Name = name
		r.byPath[path] = dev
		return dev
	}

	id := r.nextID[devType]
	r.nextID[devType] = id + 1

	dev := RegisteredDevice{Name: name, Path: path, Type: devType, ID: id}
	r.byPath[path] = dev
	return dev
}

// Unregister はパスに対応するデバイスを台帳から取り除く。
// 払い出し済みのIDは再利用しない
func (r *Registry) Unregister(path string) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	delete(r.byPath, path)
}

// Lookup はパスに対応する登録済みデバイスを返す
func (r *Registry) Lookup(path string) (RegisteredDevice, bool) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	dev, ok := r.byPath[path]
	return dev, ok
}

// Devices は登録済みデバイスのスナップショットを返す
func (r *Registry) Devices() []RegisteredDevice {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	devices := make([]RegisteredDevice, 0, len(r.byPath))
	for _, dev := range r.byPath {
		devices = append(devices, dev)
	}
	return devices
}
