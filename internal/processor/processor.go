package processor

import (
	"errors"

	"github.com/char5742/input-bridge/internal/types"
)

// 呼び出し結果を区別するためのエラー値
var (
	// ErrNoData はタイムアウト内にイベントが到着しなかったことを表す
	ErrNoData = errors.New("no input event available")
	// ErrInvalidArgument はイベントの内容が不正であることを表す
	ErrInvalidArgument = errors.New("invalid input event")
	// ErrClosed はプロセッサーが既に閉じられていることを表す
	ErrClosed = errors.New("processor closed")
	// ErrOverflow は内部キューが満杯であることを表す
	ErrOverflow = errors.New("event queue overflow")
)

// Processor は入力イベントの取り出しと注入を提供するインターフェース。
//
// ReadEventのタイムアウト指定(ミリ秒)は以下のように解釈される:
//
//	timeoutMs == 0 : ノンブロッキング。イベントが無ければ即座にErrNoDataを返す
//	timeoutMs <  0 : イベントが到着するまで無期限にブロックする
//	timeoutMs >  0 : 最大timeoutMsミリ秒まで待機し、イベントが無ければErrNoDataを返す
//
// 取り出されたイベントはキューから除去され、同じイベントが二度配送されることはない。
// ReadEventとInjectEventは別々のゴルーチンから同時に呼び出しても安全である
type Processor interface {
	// ReadEvent は次の入力イベントを取り出す
	ReadEvent(timeoutMs int) (types.InputEvent, error)
	// InjectEvent はイベントを内部キューへ追加し、後続のReadEventで取り出せるようにする。
	// 主にテスト・自動化向けの経路であり、配送タイミングの保証はFIFO順序のみ
	InjectEvent(ev types.InputEvent) error
}

// Stats はプロセッサーの通過イベント数の統計
type Stats struct {
	Injected  uint64 `json:"injected"`  // キューへ追加されたイベント数
	Delivered uint64 `json:"delivered"` // ReadEventで配送されたイベント数
	Dropped   uint64 `json:"dropped"`   // キュー満杯で破棄されたイベント数
}
