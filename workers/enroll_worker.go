package workers

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"

	"github.com/camden-git/faceattend/recognition"
	"github.com/camden-git/faceattend/services"
)

var ErrAlreadyQueued = errors.New("enrollment for this id is already queued")

type EnrollJob struct {
	Path string
	ID   int64
	Name string
}

type EnrollOutcome struct {
	Job    EnrollJob
	Result *services.EnrollmentResult
	Err    error
}

// ExtractorFactory loads one extractor per worker. The returned release
// func is called when the worker exits.
type ExtractorFactory func(worker int) (recognition.Extractor, func(), error)

// EnrollmentPool enrolls image files concurrently. Every worker owns its
// extractor; gallery writes are serialized by the gallery itself.
type EnrollmentPool struct {
	JobQueue chan EnrollJob
	Wg       sync.WaitGroup
	StopChan chan struct{}
	Pending  map[int64]bool
	Mutex    sync.Mutex

	template  services.EnrollmentService
	onDone    func(EnrollOutcome)
	closeOnce sync.Once
}

// NewEnrollmentPool starts numWorkers workers. template is copied per worker
// with its Extractor replaced by one from newExtractor. onDone is called
// from worker goroutines after every job.
func NewEnrollmentPool(template services.EnrollmentService, newExtractor ExtractorFactory, queueSize, numWorkers int, onDone func(EnrollOutcome)) *EnrollmentPool {
	if numWorkers <= 0 {
		numWorkers = 1
	}
	if queueSize <= 0 {
		queueSize = 100
	}
	pool := &EnrollmentPool{
		JobQueue: make(chan EnrollJob, queueSize),
		StopChan: make(chan struct{}),
		Pending:  make(map[int64]bool),
		template: template,
		onDone:   onDone,
	}
	pool.Wg.Add(numWorkers)
	for i := 0; i < numWorkers; i++ {
		go pool.worker(i, newExtractor)
	}
	log.Printf("Started %d enrollment worker(s) with queue size %d", numWorkers, queueSize)
	return pool
}

func (p *EnrollmentPool) worker(id int, newExtractor ExtractorFactory) {
	defer p.Wg.Done()

	svc := p.template
	log.Printf("Enroll worker %d: loading extractor...", id)
	extractor, release, err := newExtractor(id)
	if err != nil {
		log.Printf("Enroll worker %d: ERROR loading extractor: %v", id, err)
		p.failRemaining(fmt.Errorf("extractor unavailable: %w", err))
		return
	}
	if release != nil {
		defer func() {
			release()
			log.Printf("Enroll worker %d: extractor released", id)
		}()
	}
	svc.Extractor = extractor

	for {
		select {
		case job, ok := <-p.JobQueue:
			if !ok {
				log.Printf("Enroll worker %d stopping: job queue closed", id)
				return
			}
			p.finish(p.process(&svc, job))
		case <-p.StopChan:
			log.Printf("Enroll worker %d stopping: stop signal received", id)
			return
		}
	}
}

func (p *EnrollmentPool) process(svc *services.EnrollmentService, job EnrollJob) EnrollOutcome {
	data, err := os.ReadFile(job.Path)
	if err != nil {
		return EnrollOutcome{Job: job, Err: fmt.Errorf("failed to read %s: %w", job.Path, err)}
	}
	res, err := svc.Enroll(context.Background(), services.EnrollmentRequest{
		ID:     job.ID,
		Name:   job.Name,
		Image:  data,
		Source: services.SourceBulk,
	})
	if err != nil {
		log.Printf("Worker: ERROR enrolling %s: %v", job.Path, err)
	}
	return EnrollOutcome{Job: job, Result: res, Err: err}
}

// failRemaining drains the queue when a worker cannot load its model, so
// callers waiting on outcomes are not left hanging.
func (p *EnrollmentPool) failRemaining(err error) {
	for {
		select {
		case job, ok := <-p.JobQueue:
			if !ok {
				return
			}
			p.finish(EnrollOutcome{Job: job, Err: err})
		case <-p.StopChan:
			return
		}
	}
}

func (p *EnrollmentPool) finish(out EnrollOutcome) {
	p.Mutex.Lock()
	delete(p.Pending, out.Job.ID)
	p.Mutex.Unlock()
	if p.onDone != nil {
		p.onDone(out)
	}
}

func (p *EnrollmentPool) markPending(id int64) bool {
	p.Mutex.Lock()
	defer p.Mutex.Unlock()
	if p.Pending[id] {
		return false
	}
	p.Pending[id] = true
	return true
}

func (p *EnrollmentPool) unmarkPending(id int64) {
	p.Mutex.Lock()
	delete(p.Pending, id)
	p.Mutex.Unlock()
}

// Submit queues a job, waiting for room in the queue.
func (p *EnrollmentPool) Submit(ctx context.Context, job EnrollJob) error {
	if !p.markPending(job.ID) {
		return ErrAlreadyQueued
	}
	select {
	case p.JobQueue <- job:
		return nil
	case <-ctx.Done():
		p.unmarkPending(job.ID)
		return ctx.Err()
	case <-p.StopChan:
		p.unmarkPending(job.ID)
		return errors.New("enrollment pool stopped")
	}
}

// Close lets the workers finish every queued job and waits for them.
func (p *EnrollmentPool) Close() {
	p.closeOnce.Do(func() { close(p.JobQueue) })
	p.Wg.Wait()
	log.Println("All enrollment workers finished")
}

// Stop abandons queued jobs and waits for the workers to exit.
func (p *EnrollmentPool) Stop() {
	log.Println("Stopping enrollment workers...")
	close(p.StopChan)
	p.Wg.Wait()
	log.Println("All enrollment workers stopped")
}
