package api

import (
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/char5742/input-bridge/internal/config"
	"github.com/char5742/input-bridge/internal/features"
	"github.com/char5742/input-bridge/internal/processor"
	"github.com/char5742/input-bridge/internal/types"
)

// EventObserver は配送済みイベントの通知を受け取る関数の型
type EventObserver func(ev types.InputEvent)

// BridgeService は入力ブリッジ全体のライフサイクルを管理する構造体
type BridgeService struct {
	cfg          *config.Config
	queue        *processor.Queue
	registry     *features.Registry
	monitor      *features.DeviceMonitor
	pump         *features.CapturePump
	forwarder    *features.Forwarder
	stopChan     chan struct{}
	running      bool
	statusMutex  sync.RWMutex
	updateConfig chan *config.Config

	observerMutex sync.RWMutex
	observers     []EventObserver
}

// NewBridgeService は新しいブリッジサービスを作成する
func NewBridgeService(cfg *config.Config) *BridgeService {
	return &BridgeService{
		cfg:          cfg,
		updateConfig: make(chan *config.Config, 1),
	}
}

// Start はデバイス監視・キャプチャ・転送を開始する
func (s *BridgeService) Start() error {
	s.statusMutex.Lock()
	defer s.statusMutex.Unlock()

	if s.running {
		return fmt.Errorf("サービスは既に実行中です")
	}

	s.queue = processor.NewQueue(s.cfg.Queue.Capacity)
	s.registry = features.NewRegistry()
	s.pump = features.NewCapturePump(s.queue, s.cfg.Capture.GrabDevices)

	// 転送が有効な場合は仮想デバイス群を作成する
	if s.cfg.Forwarder.Enabled {
		forwarder, err := features.NewForwarder(features.ForwarderConfig{
			UinputPath: s.cfg.Forwarder.UinputPath,
			NamePrefix: s.cfg.Forwarder.NamePrefix,
			MinX:       s.cfg.Forwarder.MinX,
			MaxX:       s.cfg.Forwarder.MaxX,
			MinY:       s.cfg.Forwarder.MinY,
			MaxY:       s.cfg.Forwarder.MaxY,
		})
		if err != nil {
			return fmt.Errorf("転送先の作成に失敗しました: %w", err)
		}
		s.forwarder = forwarder
	}

	monitor, err := features.NewDeviceMonitor()
	if err != nil {
		s.closeForwarderLocked()
		return fmt.Errorf("デバイスモニターの作成に失敗しました: %w", err)
	}
	s.monitor = monitor

	// デバイスの接続・切断をキャプチャポンプに反映する
	s.monitor.RegisterCallback(s.onDeviceEvent)

	if err := s.monitor.Start(); err != nil {
		s.closeForwarderLocked()
		return fmt.Errorf("デバイスモニターの起動に失敗しました: %w", err)
	}

	s.stopChan = make(chan struct{})
	s.running = true

	// 転送ループはforwarderが有効な場合のみ動かす。
	// 無効な場合はAPI経由のReadEventが唯一の消費経路となる
	if s.forwarder != nil {
		go s.runForwardLoop()
	}

	log.Println("入力ブリッジサービスを開始しました")
	return nil
}

// Stop はサービス全体を停止する
func (s *BridgeService) Stop() error {
	s.statusMutex.Lock()
	defer s.statusMutex.Unlock()

	if !s.running {
		return fmt.Errorf("サービスは実行されていません")
	}

	close(s.stopChan)
	s.monitor.Stop()
	s.pump.Stop()
	s.queue.Close()
	s.closeForwarderLocked()
	s.running = false

	log.Println("入力ブリッジサービスを停止しました")
	return nil
}

func (s *BridgeService) closeForwarderLocked() {
	if s.forwarder != nil {
		if err := s.forwarder.Close(); err != nil {
			log.Printf("仮想デバイスの破棄に失敗しました: %v", err)
		}
		s.forwarder = nil
	}
}

// IsRunning はサービスが実行中かどうかを返す
func (s *BridgeService) IsRunning() bool {
	s.statusMutex.RLock()
	defer s.statusMutex.RUnlock()
	return s.running
}

// Queue は実行中のイベントキューを返す。停止中はnil
func (s *BridgeService) Queue() *processor.Queue {
	s.statusMutex.RLock()
	defer s.statusMutex.RUnlock()
	if !s.running {
		return nil
	}
	return s.queue
}

// Devices は登録済みデバイスの一覧を返す
func (s *BridgeService) Devices() []features.RegisteredDevice {
	s.statusMutex.RLock()
	defer s.statusMutex.RUnlock()
	if s.registry == nil {
		return nil
	}
	return s.registry.Devices()
}

// Rescan はデバイス一覧の再スキャンを要求する
func (s *BridgeService) Rescan() {
	s.statusMutex.RLock()
	monitor := s.monitor
	s.statusMutex.RUnlock()
	if monitor != nil {
		monitor.Rescan()
	}
}

// UpdateConfig は次の転送ループ周回で適用される設定を送り込む
func (s *BridgeService) UpdateConfig(cfg *config.Config) {
	select {
	case s.updateConfig <- cfg:
	default:
		// チャネルが塞がっている場合は古い設定を破棄して新しい設定を送信
		select {
		case <-s.updateConfig:
		default:
		}
		s.updateConfig <- cfg
	}
}

// AddObserver は配送済みイベントの通知先を追加する
func (s *BridgeService) AddObserver(observer EventObserver) {
	s.observerMutex.Lock()
	defer s.observerMutex.Unlock()
	s.observers = append(s.observers, observer)
}

func (s *BridgeService) notifyObservers(ev types.InputEvent) {
	s.observerMutex.RLock()
	observers := s.observers
	s.observerMutex.RUnlock()

	for _, observer := range observers {
		observer(ev)
	}
}

// onDeviceEvent はデバイスの接続・切断をレジストリとポンプへ反映する
func (s *BridgeService) onDeviceEvent(event features.DeviceEvent) {
	switch event.Type {
	case features.DeviceAdded, features.DeviceChanged:
		device := event.Device
		if !s.shouldCapture(device) {
			return
		}
		registered := s.registry.Register(device.Name, device.Path, device.Type)
		if err := s.pump.Add(registered); err != nil {
			log.Printf("デバイスのキャプチャ開始に失敗しました[path=%s]: %v", device.Path, err)
		}
	case features.DeviceRemoved:
		s.pump.Remove(event.Path)
		s.registry.Unregister(event.Path)
	}
}

// shouldCapture は優先デバイス設定に基づきキャプチャ対象かどうかを判定する
func (s *BridgeService) shouldCapture(device *features.Device) bool {
	switch device.Type {
	case types.DevicePointer:
		preferred := s.cfg.Capture.PreferredPointer
		return preferred == "" || device.Name == preferred
	case types.DeviceKeyboard:
		preferred := s.cfg.Capture.PreferredKbd
		return preferred == "" || device.Name == preferred
	}
	return true
}

// runForwardLoop はキューから取り出したイベントを仮想デバイスへ書き込むメインループ
func (s *BridgeService) runForwardLoop() {
	log.Println("イベント転送を開始しました...")

	for {
		select {
		case <-s.stopChan:
			return
		case newCfg := <-s.updateConfig:
			log.Println("設定を更新しました")
			s.cfg = newCfg
		default:
		}

		// 停止指示を確認できるよう待機は小刻みに行う
		ev, err := s.queue.ReadEvent(250)
		if err != nil {
			if errors.Is(err, processor.ErrNoData) {
				continue
			}
			// キューが閉じられた場合は転送を終了する
			return
		}

		if err := s.forwarder.Forward(ev); err != nil {
			log.Printf("イベントの転送に失敗しました: %v", err)
		}
		s.notifyObservers(ev)
	}
}
