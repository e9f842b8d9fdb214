package trapprocessor

import (
	"context"
	"net"
	"sync"
)

// maxPooledBuffer bounds the buffers kept for reuse.
const maxPooledBuffer = 16384

// BufferPool recycles packet buffers handed to workers.
type BufferPool struct {
	packets sync.Pool
}

// NewBufferPool creates a pool of 8KB buffers, enough for nearly every trap.
func NewBufferPool() *BufferPool {
	return &BufferPool{
		packets: sync.Pool{
			New: func() any {
				buf := make([]byte, 0, 8192)
				return &buf
			},
		},
	}
}

// Get returns a buffer of length n.
func (bp *BufferPool) Get(n int) []byte {
	buf := *bp.packets.Get().(*[]byte)
	if cap(buf) < n {
		return make([]byte, n)
	}
	return buf[:n]
}

// Put returns buf to the pool. Oversized buffers are dropped.
func (bp *BufferPool) Put(buf []byte) {
	if cap(buf) > maxPooledBuffer {
		return
	}
	buf = buf[:0]
	bp.packets.Put(&buf)
}

// Job is a datagram waiting for a worker.
type Job struct {
	packet []byte
	addr   *net.UDPAddr
	pool   *BufferPool
}

// WorkerPool processes datagrams with a fixed number of goroutines. Queued
// jobs are all processed before Stop returns.
type WorkerPool struct {
	workers   int
	processor PacketProcessor
	jobs      chan Job
	wg        sync.WaitGroup
	once      sync.Once
	onError   func(Job, error)
}

// NewWorkerPool creates a pool of size workers.
func NewWorkerPool(size int, processor PacketProcessor) *WorkerPool {
	if size < 1 {
		size = 1
	}
	return &WorkerPool{
		workers:   size,
		processor: processor,
		jobs:      make(chan Job, size*2),
	}
}

// Start launches the workers. ctx is passed to the processor.
func (w *WorkerPool) Start(ctx context.Context) {
	for i := 0; i < w.workers; i++ {
		w.wg.Add(1)
		go w.worker(ctx)
	}
}

// Stop closes the queue and waits for the workers to drain it. Submit must
// not be called after Stop.
func (w *WorkerPool) Stop() {
	w.once.Do(func() { close(w.jobs) })
	w.wg.Wait()
}

// Submit queues a job, blocking while the queue is full.
func (w *WorkerPool) Submit(ctx context.Context, job Job) error {
	select {
	case w.jobs <- job:
		return nil
	case <-ctx.Done():
		if job.pool != nil {
			job.pool.Put(job.packet)
		}
		return ctx.Err()
	}
}

func (w *WorkerPool) worker(ctx context.Context) {
	defer w.wg.Done()
	for job := range w.jobs {
		if err := w.processor.ProcessPacket(ctx, job.packet, job.addr); err != nil && w.onError != nil {
			w.onError(job, err)
		}
		if job.pool != nil {
			job.pool.Put(job.packet)
		}
	}
}
