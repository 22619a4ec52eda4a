package suumo

import (
	"context"
	"sort"
	"sync"

	"listing-scraper/models"
)

type pageFunc func(ctx context.Context, job models.PageJob) ([]models.Listing, error)

// WorkerPool fetches result pages concurrently with a fixed number of
// workers. Results come back ordered by page number.
type WorkerPool struct {
	workers int
	fetch   pageFunc
	jobs    chan models.PageJob
	results chan models.PageResult
	wg      sync.WaitGroup
}

func NewWorkerPool(workers int, fetch pageFunc) *WorkerPool {
	if workers < 1 {
		workers = 1
	}
	return &WorkerPool{workers: workers, fetch: fetch}
}

func (p *WorkerPool) Run(ctx context.Context, jobs []models.PageJob) []models.PageResult {
	if len(jobs) == 0 {
		return nil
	}

	p.jobs = make(chan models.PageJob, len(jobs))
	p.results = make(chan models.PageResult, len(jobs))

	workerCount := p.workers
	if len(jobs) < workerCount {
		workerCount = len(jobs)
	}

	p.wg.Add(workerCount)
	for i := 0; i < workerCount; i++ {
		go p.worker(ctx)
	}

	for _, job := range jobs {
		p.jobs <- job
	}
	close(p.jobs)

	go func() {
		p.wg.Wait()
		close(p.results)
	}()

	return p.collect()
}

func (p *WorkerPool) worker(ctx context.Context) {
	defer p.wg.Done()

	for job := range p.jobs {
		if err := ctx.Err(); err != nil {
			p.results <- models.PageResult{PageNumber: job.PageNumber, Error: err}
			continue
		}
		listings, err := p.fetch(ctx, job)
		p.results <- models.PageResult{
			Listings:   listings,
			Error:      err,
			PageNumber: job.PageNumber,
		}
	}
}

func (p *WorkerPool) collect() []models.PageResult {
	var all []models.PageResult
	for result := range p.results {
		all = append(all, result)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].PageNumber < all[j].PageNumber })
	return all
}
