// Medialib Core
// Copyright (c) 2026 The Medialib Project Contributors.
// SPDX-License-Identifier: GPL-3.0-or-later
//
// This file is part of Medialib Core.
//
// Medialib Core is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// Medialib Core is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with Medialib Core.  If not, see <http://www.gnu.org/licenses/>.

package parser

import (
	"context"
	"sync"

	"github.com/MediaLibProject/medialib-core/pkg/config"
	"github.com/MediaLibProject/medialib-core/pkg/database"
	"github.com/MediaLibProject/medialib-core/pkg/database/medialibdb"
	"github.com/rs/zerolog/log"
)

// Service is one enrichment stage. Services run in registration order
// per task and in parallel across tasks, each on its own worker pool.
type Service interface {
	Name() string
	// Step is the bitmap bit this service completes.
	Step() database.TaskStep
	// NativeThreads declares the wanted pool size; the pipeline clamps
	// it to the configured limit and the hardware parallelism.
	NativeThreads() int
	Run(ctx context.Context, item *Item) Status
}

// Notifier receives pipeline-level progress events, from worker
// goroutines.
type Notifier interface {
	OnParsingProgress(done, scheduled int)
	OnIdleChanged(idle bool)
}

// Parser owns the per-service queues and worker pools plus the shared
// pause/stop gate.
type Parser struct {
	ctx      context.Context
	db       *medialibdb.MediaLibDB
	cfg      *config.Instance
	notifier Notifier

	services []Service
	queues   [][]*Item

	mu        sync.Mutex
	cond      *sync.Cond
	paused    bool
	stopped   bool
	started   bool
	scheduled int
	done      int
	running   int
	wg        sync.WaitGroup
}

func New(ctx context.Context, db *medialibdb.MediaLibDB, cfg *config.Instance, notifier Notifier) *Parser {
	p := &Parser{ctx: ctx, db: db, cfg: cfg, notifier: notifier}
	p.cond = sync.NewCond(&p.mu)
	return p
}

// AddService appends a service; ordering is the step order. Services
// must all be added before Start.
func (p *Parser) AddService(s Service) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		log.Error().Msgf("cannot add parser service %s after start", s.Name())
		return
	}
	p.services = append(p.services, s)
	p.queues = append(p.queues, nil)
}

// Start spins up the worker pools and reloads persisted tasks.
func (p *Parser) Start() error {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return nil
	}
	p.started = true
	p.mu.Unlock()

	for i, s := range p.services {
		workers := p.cfg.ParserWorkers(s.NativeThreads())
		for range workers {
			p.wg.Add(1)
			go p.worker(i)
		}
		log.Debug().Msgf("parser service %s running %d workers", s.Name(), workers)
	}
	return p.restoreTasks()
}

// restoreTasks reloads persisted tasks; tasks that already burned their
// retries stay fatal until a forced retry resets them.
func (p *Parser) restoreTasks() error {
	tasks, err := p.db.PendingTasks()
	if err != nil {
		return err
	}
	maxRetries := p.cfg.ParserMaxRetries()
	for _, t := range tasks {
		if t.Retries >= maxRetries {
			continue
		}
		p.Enqueue(&Item{Task: t, AbsoluteMRL: t.MRL})
	}
	return nil
}

// Enqueue schedules a task at the head of the pipeline.
func (p *Parser) Enqueue(item *Item) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped || len(p.queues) == 0 {
		return
	}
	if p.scheduled == p.done {
		// Pipeline was idle; a fresh batch begins.
		p.scheduled = 0
		p.done = 0
		p.notifyIdleLocked(false)
	}
	p.scheduled++
	p.queues[0] = append(p.queues[0], item)
	p.cond.Broadcast()
}

// Pause blocks the workers at the next suspension point. In-flight
// steps run to completion first.
func (p *Parser) Pause() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.paused = true
}

func (p *Parser) Resume() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.paused = false
	p.cond.Broadcast()
}

// Stop drains the pipeline and waits for workers to exit. The current
// step of each worker is never interrupted mid-execution.
func (p *Parser) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	p.paused = false
	for i := range p.queues {
		p.queues[i] = nil
	}
	p.cond.Broadcast()
	p.mu.Unlock()
	p.wg.Wait()
}

// ForceRetry reopens fatal tasks and reloads everything pending.
func (p *Parser) ForceRetry() error {
	if err := p.db.ResetTaskRetries(); err != nil {
		return err
	}
	return p.restoreTasks()
}

// pop blocks until a task is available on queue i, the pipeline is
// unpaused, or it is stopped.
func (p *Parser) pop(i int) (*Item, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for {
		if p.stopped {
			return nil, false
		}
		if !p.paused && len(p.queues[i]) > 0 {
			item := p.queues[i][0]
			p.queues[i] = p.queues[i][1:]
			p.running++
			return item, true
		}
		p.cond.Wait()
	}
}

func (p *Parser) worker(i int) {
	defer p.wg.Done()
	svc := p.services[i]
	for {
		item, ok := p.pop(i)
		if !ok {
			return
		}
		status := StatusSuccess
		if !item.Task.HasStep(svc.Step()) {
			status = svc.Run(p.ctx, item)
			if status == StatusUnknown {
				log.Error().Msgf(
					"parser service %s returned unknown status for %s, treating as fatal",
					svc.Name(), item.Task.MRL)
				status = StatusFatal
			}
		}
		p.completeStep(i, svc, item, status)
	}
}

// completeStep applies a service verdict: advance, retry, requeue or
// finish the task.
func (p *Parser) completeStep(i int, svc Service, item *Item, status Status) {
	terminal := false
	requeued := false

	switch status {
	case StatusSuccess:
		item.Task.Steps |= svc.Step()
		if err := p.db.UpdateTaskSteps(item.Task.ID, item.Task.Steps); err != nil {
			log.Error().Err(err).Msg("failed to persist task step")
		}
		if item.Task.Steps&database.TaskStepCompleted == database.TaskStepCompleted ||
			i == len(p.services)-1 {
			p.finishTask(item)
			terminal = true
		}
	case StatusCompleted:
		p.finishTask(item)
		terminal = true
	case StatusDiscarded:
		if err := p.db.DeleteTask(item.Task.ID); err != nil {
			log.Error().Err(err).Msg("failed to delete discarded task")
		}
		terminal = true
	case StatusFatal:
		log.Warn().Msgf("task for %s failed fatally at %s", item.Task.MRL, svc.Name())
		if err := p.db.MarkTaskFatal(item.Task.ID, p.cfg.ParserMaxRetries()); err != nil {
			log.Error().Err(err).Msg("failed to mark task fatal")
		}
		terminal = true
	case StatusTemporaryUnavailable, StatusRequeue:
		retries, err := p.db.IncrementTaskRetries(item.Task.ID)
		if err != nil {
			log.Error().Err(err).Msg("failed to increment task retries")
			terminal = true
			break
		}
		item.Task.Retries = retries
		if retries >= p.cfg.ParserMaxRetries() {
			log.Warn().Msgf("task for %s exceeded retry limit, now fatal", item.Task.MRL)
			terminal = true
			break
		}
		requeued = true
	case StatusUnknown:
		terminal = true
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.running--
	switch {
	case requeued:
		if !p.stopped {
			p.queues[i] = append(p.queues[i], item)
		} else {
			p.done++
		}
	case terminal:
		p.done++
	default:
		// Step succeeded with more steps ahead.
		if !p.stopped && i+1 < len(p.queues) {
			p.queues[i+1] = append(p.queues[i+1], item)
		} else {
			p.done++
		}
	}
	p.cond.Broadcast()

	if p.notifier != nil && p.scheduled > 0 {
		p.notifier.OnParsingProgress(p.done, p.scheduled)
	}
	if p.done == p.scheduled && p.running == 0 {
		p.notifyIdleLocked(true)
	}
}

func (p *Parser) finishTask(item *Item) {
	if err := p.db.DeleteTask(item.Task.ID); err != nil {
		log.Error().Err(err).Msg("failed to delete completed task")
	}
}

// notifyIdleLocked fires the idle transition; the mutex is held.
func (p *Parser) notifyIdleLocked(idle bool) {
	if p.notifier == nil {
		return
	}
	notifier := p.notifier
	go notifier.OnIdleChanged(idle)
}

// IsIdle reports whether no task is queued or running.
func (p *Parser) IsIdle() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.done == p.scheduled && p.running == 0
}
