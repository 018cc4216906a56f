package infra

import (
	"context"

	"access-gateway/middleware/ratelimit/domain"
)

type chanPool struct {
	sem chan struct{}
}

// NewChanPool cria um semáforo baseado em channel com `max` vagas.
func NewChanPool(max int) domain.SlotPool {
	return &chanPool{sem: make(chan struct{}, max)}
}

func (p *chanPool) Acquire(ctx context.Context) (func(), bool) {
	select {
	case p.sem <- struct{}{}:
		var released bool
		return func() {
			if released {
				return
			}
			released = true
			<-p.sem
		}, true
	case <-ctx.Done():
		return nil, false
	}
}
