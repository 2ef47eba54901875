package allocator

import (
	"context"
	"sync"
	"time"

	"github.com/courseflow/admission/internal/domain"
	"github.com/courseflow/admission/internal/logger"
)

// Pool starts one Worker per known course id and discovers new courses by
// polling the durable store on the poll interval given to NewPool (there is
// no push mechanism:
// course creation is out of scope CRUD, and there is no event bus
// announcing new courses).
type Pool struct {
	queue    domain.IntakeQueue
	repo     domain.AllocationRepository
	workerCfg Config
	poll     time.Duration

	mu      sync.Mutex
	running map[int64]context.CancelFunc
	wg      sync.WaitGroup
}

func NewPool(queue domain.IntakeQueue, repo domain.AllocationRepository, workerCfg Config, pollInterval time.Duration) *Pool {
	return &Pool{
		queue:     queue,
		repo:      repo,
		workerCfg: workerCfg,
		poll:      pollInterval,
		running:   make(map[int64]context.CancelFunc),
	}
}

// Run blocks until ctx is canceled, starting a worker for every course it
// discovers and stopping them all on shutdown.
func (p *Pool) Run(ctx context.Context) {
	log := logger.Logger.With().Str("component", "allocator_pool").Logger()

	p.discover(ctx)

	ticker := time.NewTicker(p.poll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("shutting down, waiting for in-flight allocations")
			p.stopAll()
			p.wg.Wait()
			return
		case <-ticker.C:
			p.discover(ctx)
		}
	}
}

func (p *Pool) discover(ctx context.Context) {
	courses, err := p.repo.ListCourses(ctx, domain.CourseFilter{})
	if err != nil {
		logger.Logger.Warn().Err(err).Msg("allocator pool: course discovery failed")
		return
	}
	for _, c := range courses {
		p.Start(ctx, c.ID)
	}
}

// Start begins a worker for courseID if one isn't already running.
func (p *Pool) Start(parent context.Context, courseID int64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.running[courseID]; ok {
		return
	}

	workerCtx, cancel := context.WithCancel(parent)
	p.running[courseID] = cancel

	w := NewWorker(courseID, p.queue, p.repo, p.workerCfg)
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		w.Run(workerCtx)
	}()
}

// Stop cancels the worker for courseID, if running.
func (p *Pool) Stop(courseID int64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if cancel, ok := p.running[courseID]; ok {
		cancel()
		delete(p.running, courseID)
	}
}

func (p *Pool) stopAll() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for id, cancel := range p.running {
		cancel()
		delete(p.running, id)
	}
}
