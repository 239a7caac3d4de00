package processor

import (
	"sync"
	"time"

	"github.com/char5742/input-bridge/internal/types"
)

// DefaultCapacity はキュー容量が未指定の場合の既定値
const DefaultCapacity = 256

// Queue はチャネルを背後に持つFIFOのプロセッサー実装
type Queue struct {
	events chan types.InputEvent
	done   chan struct{}

	closeOnce sync.Once

	statsMutex sync.Mutex
	stats      Stats
}

var _ Processor = (*Queue)(nil)

// NewQueue は指定された容量のキューを作成する
func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Queue{
		events: make(chan types.InputEvent, capacity),
		done:   make(chan struct{}),
	}
}

// ReadEvent は次の入力イベントを取り出す
func (q *Queue) ReadEvent(timeoutMs int) (types.InputEvent, error) {
	var zero types.InputEvent

	switch {
	case timeoutMs == 0:
		// ノンブロッキングモード
		select {
		case ev := <-q.events:
			q.markDelivered()
			return ev, nil
		default:
		}
		if q.isClosed() {
			return zero, ErrClosed
		}
		return zero, ErrNoData

	case timeoutMs < 0:
		// イベントが到着するまで無期限に待機する。
		// Closeされた場合でもキューに残ったイベントは先に配送する
		select {
		case ev := <-q.events:
			q.markDelivered()
			return ev, nil
		case <-q.done:
		}
		select {
		case ev := <-q.events:
			q.markDelivered()
			return ev, nil
		default:
			return zero, ErrClosed
		}

	default:
		timer := time.NewTimer(time.Duration(timeoutMs) * time.Millisecond)
		defer timer.Stop()
		select {
		case ev := <-q.events:
			q.markDelivered()
			return ev, nil
		case <-q.done:
			select {
			case ev := <-q.events:
				q.markDelivered()
				return ev, nil
			default:
				return zero, ErrClosed
			}
		case <-timer.C:
			return zero, ErrNoData
		}
	}
}

// InjectEvent はイベントを内部キューへ追加する
func (q *Queue) InjectEvent(ev types.InputEvent) error {
	if !ev.DeviceType.Valid() {
		return ErrInvalidArgument
	}
	if q.isClosed() {
		return ErrClosed
	}

	select {
	case q.events <- ev:
		q.statsMutex.Lock()
		q.stats.Injected++
		q.statsMutex.Unlock()
		return nil
	default:
		q.statsMutex.Lock()
		q.stats.Dropped++
		q.statsMutex.Unlock()
		return ErrOverflow
	}
}

// Close はキューを閉じ、無期限ブロック中のReadEvent呼び出しを解放する。
// 閉じた後もキューに残ったイベントは取り出し可能
func (q *Queue) Close() error {
	q.closeOnce.Do(func() {
		close(q.done)
	})
	return nil
}

// Stats は現在の統計のスナップショットを返す
func (q *Queue) Stats() Stats {
	q.statsMutex.Lock()
	defer q.statsMutex.Unlock()
	return q.stats
}

// Len は現在キューに滞留しているイベント数を返す
func (q *Queue) Len() int {
	return len(q.events)
}

func (q *Queue) isClosed() bool {
	select {
	case <-q.done:
		return true
	default:
		return false
	}
}

func (q *Queue) markDelivered() {
	q.statsMutex.Lock()
	q.stats.Delivered++
	q.statsMutex.Unlock()
}
