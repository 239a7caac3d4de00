package features

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"sync"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/char5742/input-bridge/internal/consts"
	"github.com/char5742/input-bridge/internal/processor"
	"github.com/char5742/input-bridge/internal/types"
	"github.com/char5742/input-bridge/internal/utils"
)

// CaptureDevice は読み取り用に開かれたevdevデバイスを表す
type CaptureDevice struct {
	file    *os.File
	info    RegisteredDevice
	grabbed bool
}

// OpenCaptureDevice はデバイスを読み取り・非ブロッキングモードで開く
func OpenCaptureDevice(info RegisteredDevice) (*CaptureDevice, error) {
	f, err := os.OpenFile(info.Path, syscall.O_RDONLY|syscall.O_NONBLOCK, 0660)
	if err != nil {
		return nil, fmt.Errorf("デバイスファイルを開くのに失敗しました: %w", err)
	}
	return &CaptureDevice{file: f, info: info}, nil
}

// Info は登録情報を返す
func (c *CaptureDevice) Info() RegisteredDevice {
	return c.info
}

// Grab はデバイスを専有し、他プロセスへのイベント配送を止める
func (c *CaptureDevice) Grab() error {
	if c.grabbed {
		return nil
	}
	if err := utils.IOCtl(c.file, consts.EVIOCGRAB, 1); err != nil {
		return fmt.Errorf("failed to grab device: %w", err)
	}
	c.grabbed = true
	return nil
}

// Release はデバイスの専有を解除する
func (c *CaptureDevice) Release() error {
	if !c.grabbed {
		return nil
	}
	if err := utils.IOCtl(c.file, consts.EVIOCGRAB, 0); err != nil {
		return fmt.Errorf("failed to release device: %w", err)
	}
	c.grabbed = false
	return nil
}

func (c *CaptureDevice) Close() error {
	_ = c.Release()
	return c.file.Close()
}

// WaitReadable は最大timeoutMsミリ秒、読み取り可能になるまで待機する
func (c *CaptureDevice) WaitReadable(timeoutMs int) (bool, error) {
	fds := []unix.PollFd{{Fd: int32(c.file.Fd()), Events: unix.POLLIN}}
	n, err := unix.Poll(fds, timeoutMs)
	if err != nil {
		if errors.Is(err, unix.EINTR) {
			return false, nil
		}
		return false, err
	}
	if n == 0 {
		return false, nil
	}
	if fds[0].Revents&(unix.POLLERR|unix.POLLHUP) != 0 {
		return false, io.EOF
	}
	return fds[0].Revents&unix.POLLIN != 0, nil
}

// ReadEvents はその時点で読み取り可能なイベントをすべてデコードして返す
func (c *CaptureDevice) ReadEvents() ([]types.RawEvent, error) {
	buf := make([]byte, types.RawEventSize*64)
	n, err := c.file.Read(buf)
	if err != nil {
		if errors.Is(err, syscall.EAGAIN) {
			return nil, nil
		}
		return nil, err
	}

	var events []types.RawEvent
	for off := 0; off+types.RawEventSize <= n; off += types.RawEventSize {
		e, err := types.DecodeRawEvent(buf[off : off+types.RawEventSize])
		if err != nil {
			return events, err
		}
		events = append(events, e)
	}
	return events, nil
}

// CapturePump は物理デバイスからイベントを読み取り、プロセッサーのキューへ注入する
type CapturePump struct {
	queue *processor.Queue
	grab  bool

	mutex   sync.Mutex
	workers map[string]*pumpWorker
	wg      sync.WaitGroup
}

type pumpWorker struct {
	device *CaptureDevice
	stop   chan struct{}
}

// NewCapturePump は新しいキャプチャポンプを作成する。
// grabを指定すると追加されたデバイスを専有する
func NewCapturePump(queue *processor.Queue, grab bool) *CapturePump {
	return &CapturePump{
		queue:   queue,
		grab:    grab,
		workers: make(map[string]*pumpWorker),
	}
}

// Add はデバイスを開いて読み取りゴルーチンを起動する
func (p *CapturePump) Add(info RegisteredDevice) error {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	if _, ok := p.workers[info.Path]; ok {
		return nil // すでに読み取り中
	}

	device, err := OpenCaptureDevice(info)
	if err != nil {
		return err
	}
	if p.grab {
		if err := device.Grab(); err != nil {
			log.Printf("デバイスの専有に失敗しました[path=%s]: %v", info.Path, err)
		}
	}

	worker := &pumpWorker{device: device, stop: make(chan struct{})}
	p.workers[info.Path] = worker

	p.wg.Add(1)
	go p.run(worker)

	log.Printf("キャプチャ開始: %s (%s id=%d)", info.Name, info.Type, info.ID)
	return nil
}

// Remove はパスに対応する読み取りゴルーチンを停止する
func (p *CapturePump) Remove(path string) {
	p.mutex.Lock()
	worker, ok := p.workers[path]
	if ok {
		delete(p.workers, path)
	}
	p.mutex.Unlock()

	if ok {
		close(worker.stop)
	}
}

// Stop はすべての読み取りゴルーチンを停止して完了を待つ
func (p *CapturePump) Stop() {
	p.mutex.Lock()
	for path, worker := range p.workers {
		close(worker.stop)
		delete(p.workers, path)
	}
	p.mutex.Unlock()

	p.wg.Wait()
}

// run は単一デバイスの読み取りループ
func (p *CapturePump) run(worker *pumpWorker) {
	defer p.wg.Done()
	defer worker.device.Close()

	info := worker.device.Info()

	for {
		select {
		case <-worker.stop:
			return
		default:
		}

		// 停止指示を取りこぼさないよう待機は小刻みに行う
		readable, err := worker.device.WaitReadable(250)
		if err != nil {
			log.Printf("デバイスの待機に失敗しました[path=%s]: %v", info.Path, err)
			return
		}
		if !readable {
			continue
		}

		raws, err := worker.device.ReadEvents()
		if err != nil {
			log.Printf("デバイスの読み取りに失敗しました[path=%s]: %v", info.Path, err)
			return
		}

		for _, raw := range raws {
			ev := types.InputEvent{
				DeviceType: info.Type,
				DeviceID:   info.ID,
				Type:       raw.Type,
				Code:       raw.Code,
				Value:      raw.Value,
			}
			if err := p.queue.InjectEvent(ev); err != nil {
				if errors.Is(err, processor.ErrOverflow) {
					log.Printf("キューが満杯のためイベントを破棄しました[device=%s id=%d]", info.Type, info.ID)
					continue
				}
				// キューが閉じられた場合は読み取りを終了する
				return
			}
		}
	}
}
