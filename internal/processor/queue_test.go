package processor

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/char5742/input-bridge/internal/types"
)

// timeout=0 かつ空キューの場合は即座にErrNoDataが返ること
func TestReadEventNonBlockingEmpty(t *testing.T) {
	q := NewQueue(16)
	defer q.Close()

	start := time.Now()
	_, err := q.ReadEvent(0)
	elapsed := time.Since(start)

	if !errors.Is(err, ErrNoData) {
		t.Fatalf("expected ErrNoData, got %v", err)
	}
	if elapsed > 50*time.Millisecond {
		t.Errorf("non-blocking read took too long: %v", elapsed)
	}
}

// timeout=T>0 かつ空キューの場合はT以上待機してからErrNoDataが返ること
func TestReadEventBoundedTimeout(t *testing.T) {
	q := NewQueue(16)
	defer q.Close()

	const timeoutMs = 100
	start := time.Now()
	_, err := q.ReadEvent(timeoutMs)
	elapsed := time.Since(start)

	if !errors.Is(err, ErrNoData) {
		t.Fatalf("expected ErrNoData, got %v", err)
	}
	if elapsed < timeoutMs*time.Millisecond {
		t.Errorf("read returned before timeout: %v", elapsed)
	}
	if elapsed > 500*time.Millisecond {
		t.Errorf("read blocked far beyond timeout: %v", elapsed)
	}
}

// timeout<0 の場合はイベントが到着するまでブロックし続けること
func TestReadEventBlocksUntilInject(t *testing.T) {
	q := NewQueue(16)
	defer q.Close()

	want := types.InputEvent{
		DeviceType: types.DeviceKeyboard,
		DeviceID:   1,
		Type:       0x01, // EV_KEY
		Code:       28,   // KEY_ENTER
		Value:      1,
	}

	go func() {
		time.Sleep(50 * time.Millisecond)
		if err := q.InjectEvent(want); err != nil {
			t.Errorf("inject failed: %v", err)
		}
	}()

	got, err := q.ReadEvent(-1)
	if err != nil {
		t.Fatalf("blocking read failed: %v", err)
	}
	if got != want {
		t.Errorf("expected %+v, got %+v", want, got)
	}
}

// 注入したイベントが全フィールドそのままで一度だけ配送されること
func TestInjectThenReadVerbatim(t *testing.T) {
	q := NewQueue(16)
	defer q.Close()

	want := types.InputEvent{
		DeviceType: types.DeviceTouchPanel,
		DeviceID:   3,
		Type:       0x03,   // EV_ABS
		Code:       0x35,   // ABS_MT_POSITION_X
		Value:      -12345, // 負値も保持されること
	}

	if err := q.InjectEvent(want); err != nil {
		t.Fatalf("inject failed: %v", err)
	}

	got, err := q.ReadEvent(0)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if got != want {
		t.Errorf("expected %+v, got %+v", want, got)
	}

	// 同じイベントが二度配送されないこと
	if _, err := q.ReadEvent(0); !errors.Is(err, ErrNoData) {
		t.Errorf("expected ErrNoData after drain, got %v", err)
	}
}

// 複数イベントがFIFO順で配送されること
func TestFIFOOrder(t *testing.T) {
	q := NewQueue(16)
	defer q.Close()

	for i := range 5 {
		ev := types.InputEvent{
			DeviceType: types.DevicePointer,
			DeviceID:   1,
			Type:       0x02, // EV_REL
			Code:       0x00, // REL_X
			Value:      int32(i),
		}
		if err := q.InjectEvent(ev); err != nil {
			t.Fatalf("inject #%d failed: %v", i, err)
		}
	}

	for i := range 5 {
		got, err := q.ReadEvent(0)
		if err != nil {
			t.Fatalf("read #%d failed: %v", i, err)
		}
		if got.Value != int32(i) {
			t.Errorf("expected value %d at position %d, got %d", i, i, got.Value)
		}
	}
}

// 未定義のデバイスタイプはErrInvalidArgumentで拒否されること
func TestInjectInvalidDeviceType(t *testing.T) {
	q := NewQueue(16)
	defer q.Close()

	tests := []types.DeviceType{types.DeviceType(-1), types.DeviceType(4), types.DeviceType(99)}
	for _, dt := range tests {
		err := q.InjectEvent(types.InputEvent{DeviceType: dt})
		if !errors.Is(err, ErrInvalidArgument) {
			t.Errorf("device type %d: expected ErrInvalidArgument, got %v", dt, err)
		}
	}

	if q.Len() != 0 {
		t.Errorf("rejected events must not be enqueued, len=%d", q.Len())
	}
}

// キューが満杯の場合はErrOverflowが返り、イベントは破棄されること
func TestInjectOverflow(t *testing.T) {
	q := NewQueue(2)
	defer q.Close()

	ev := types.InputEvent{DeviceType: types.DeviceGamepad, DeviceID: 1}
	for i := range 2 {
		if err := q.InjectEvent(ev); err != nil {
			t.Fatalf("inject #%d failed: %v", i, err)
		}
	}

	if err := q.InjectEvent(ev); !errors.Is(err, ErrOverflow) {
		t.Fatalf("expected ErrOverflow, got %v", err)
	}

	stats := q.Stats()
	if stats.Injected != 2 || stats.Dropped != 1 {
		t.Errorf("unexpected stats: %+v", stats)
	}
}

// Closeが無期限ブロック中のReadEventを解放すること
func TestCloseUnblocksReader(t *testing.T) {
	q := NewQueue(16)

	done := make(chan error, 1)
	go func() {
		_, err := q.ReadEvent(-1)
		done <- err
	}()

	time.Sleep(20 * time.Millisecond)
	q.Close()

	select {
	case err := <-done:
		if !errors.Is(err, ErrClosed) {
			t.Errorf("expected ErrClosed, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("reader not released after Close")
	}
}

// Close後もキューに残ったイベントは取り出せること
func TestCloseDrainsPendingEvents(t *testing.T) {
	q := NewQueue(16)

	want := types.InputEvent{DeviceType: types.DevicePointer, DeviceID: 2, Value: 7}
	if err := q.InjectEvent(want); err != nil {
		t.Fatalf("inject failed: %v", err)
	}
	q.Close()

	got, err := q.ReadEvent(0)
	if err != nil {
		t.Fatalf("read after close failed: %v", err)
	}
	if got != want {
		t.Errorf("expected %+v, got %+v", want, got)
	}

	if _, err := q.ReadEvent(0); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed after drain, got %v", err)
	}

	if err := q.InjectEvent(want); !errors.Is(err, ErrClosed) {
		t.Errorf("inject after close: expected ErrClosed, got %v", err)
	}
}

// 複数ゴルーチンからの同時InjectEvent/ReadEventが安全であること
func TestConcurrentInjectRead(t *testing.T) {
	const (
		producers         = 4
		eventsPerProducer = 100
	)

	q := NewQueue(producers * eventsPerProducer)
	defer q.Close()

	var wg sync.WaitGroup
	for p := range producers {
		wg.Add(1)
		go func(id int32) {
			defer wg.Done()
			for i := range eventsPerProducer {
				ev := types.InputEvent{
					DeviceType: types.DeviceKeyboard,
					DeviceID:   id,
					Value:      int32(i),
				}
				if err := q.InjectEvent(ev); err != nil {
					t.Errorf("producer %d inject failed: %v", id, err)
					return
				}
			}
		}(int32(p))
	}

	received := 0
	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		lastValue := make(map[int32]int32)
		for received < producers*eventsPerProducer {
			ev, err := q.ReadEvent(1000)
			if err != nil {
				t.Errorf("read failed after %d events: %v", received, err)
				return
			}
			// 同一プロデューサー内でのFIFO順序を確認
			if last, ok := lastValue[ev.DeviceID]; ok && ev.Value <= last {
				t.Errorf("out of order delivery for device %d: %d after %d", ev.DeviceID, ev.Value, last)
				return
			}
			lastValue[ev.DeviceID] = ev.Value
			received++
		}
	}()

	wg.Wait()
	select {
	case <-readDone:
	case <-time.After(5 * time.Second):
		t.Fatalf("consumer stalled, received %d events", received)
	}

	stats := q.Stats()
	if stats.Delivered != producers*eventsPerProducer {
		t.Errorf("expected %d delivered, got %d", producers*eventsPerProducer, stats.Delivered)
	}
}
