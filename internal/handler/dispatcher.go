package handler

import (
	"context"
	"errors"
	"log"
	"sync"
)

// ErrDispatcherFull は送信者のキューが埋まっている場合に返します
var ErrDispatcherFull = errors.New("dispatcher queue is full")

// ErrDispatcherStopped は停止後にDispatchした場合に返します
var ErrDispatcherStopped = errors.New("dispatcher is stopped")

// MessageHandler は1通のメッセージを処理します
type MessageHandler interface {
	HandleMessage(ctx context.Context, from, body string) error
}

type inbound struct {
	from string
	body string
}

// Dispatcher は送信者ごとのFIFOキューでメッセージを処理します
// 同じ送信者のメッセージは届いた順に1件ずつ処理され、別の送信者の処理を待つことはありません
type Dispatcher struct {
	handler MessageHandler
	buffer  int

	mu      sync.Mutex
	ctx     context.Context
	pending map[string][]inbound
	stopped bool
	wg      sync.WaitGroup
}

// NewDispatcher は新しいDispatcherを作成します
// bufferは送信者1人あたりの未処理メッセージの上限です
func NewDispatcher(handler MessageHandler, buffer int) *Dispatcher {
	if buffer < 1 {
		buffer = 1
	}
	return &Dispatcher{
		handler: handler,
		buffer:  buffer,
		ctx:     context.Background(),
		pending: make(map[string][]inbound),
	}
}

// Start はメッセージ処理に使うcontextを設定します
func (d *Dispatcher) Start(ctx context.Context) {
	d.mu.Lock()
	d.ctx = ctx
	d.mu.Unlock()
}

// Dispatch はkeyのキューへメッセージを積みます。処理の完了は待ちません
func (d *Dispatcher) Dispatch(key, from, body string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return ErrDispatcherStopped
	}

	queue, active := d.pending[key]
	if len(queue) >= d.buffer {
		return ErrDispatcherFull
	}
	d.pending[key] = append(queue, inbound{from: from, body: body})
	if !active {
		d.wg.Add(1)
		go d.drain(d.ctx, key)
	}
	return nil
}

// drain はkeyのキューが空になるまで先頭から処理します
// 処理中のメッセージもキューに残し、空になったらkeyを消して終了します
func (d *Dispatcher) drain(ctx context.Context, key string) {
	defer d.wg.Done()
	for {
		d.mu.Lock()
		msg := d.pending[key][0]
		d.mu.Unlock()

		if err := d.handler.HandleMessage(ctx, msg.from, msg.body); err != nil {
			log.Printf("Failed to handle message from %s: %v", key, err)
		}

		d.mu.Lock()
		rest := d.pending[key][1:]
		if len(rest) == 0 {
			delete(d.pending, key)
			d.mu.Unlock()
			return
		}
		d.pending[key] = rest
		d.mu.Unlock()
	}
}

// Stop は新しいメッセージの受付を止め、キューに残ったメッセージの処理を待ちます
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	d.stopped = true
	d.mu.Unlock()
	d.wg.Wait()
}
