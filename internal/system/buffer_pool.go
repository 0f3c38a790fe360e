package system

import (
	"image"
	"sync"
	"sync/atomic"
)

// ImagePool предоставляет механизмы повторного использования image.RGBA
// для снижения нагрузки на Garbage Collector (GC). Буферы группируются по
// размеру холста.
type ImagePool struct {
	pools  map[image.Point]*sync.Pool
	mu     sync.RWMutex
	allocs atomic.Int64
	gets   atomic.Int64
}

// PoolStats is a snapshot of pool usage.
type PoolStats struct {
	Gets   int64
	Allocs int64
}

var globalPool = NewImagePool()

func NewImagePool() *ImagePool {
	return &ImagePool{pools: make(map[image.Point]*sync.Pool)}
}

// GetImage возвращает холст заданного размера из общего пула.
func GetImage(size image.Point) *image.RGBA {
	return globalPool.Get(size)
}

// PutImage возвращает холст в общий пул.
func PutImage(img *image.RGBA) {
	globalPool.Put(img)
}

// GlobalPoolStats reports usage of the shared pool since process start.
func GlobalPoolStats() PoolStats {
	return globalPool.Stats()
}

func (p *ImagePool) Get(size image.Point) *image.RGBA {
	p.gets.Add(1)
	p.mu.RLock()
	pool, exists := p.pools[size]
	p.mu.RUnlock()

	if !exists {
		p.mu.Lock()
		// Double check
		pool, exists = p.pools[size]
		if !exists {
			pool = &sync.Pool{
				New: func() any {
					p.allocs.Add(1)
					return image.NewRGBA(image.Rectangle{Max: size})
				},
			}
			p.pools[size] = pool
		}
		p.mu.Unlock()
	}

	return pool.Get().(*image.RGBA)
}

// Put accepts only origin-anchored buffers the pool handed out.
func (p *ImagePool) Put(img *image.RGBA) {
	if img == nil || img.Rect.Min != (image.Point{}) {
		return
	}
	p.mu.RLock()
	pool, exists := p.pools[img.Rect.Max]
	p.mu.RUnlock()

	if exists {
		pool.Put(img)
	}
}

func (p *ImagePool) Stats() PoolStats {
	return PoolStats{Gets: p.gets.Load(), Allocs: p.allocs.Load()}
}
