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
	"sync/atomic"
	"testing"
	"time"

	"github.com/MediaLibProject/medialib-core/pkg/config"
	"github.com/MediaLibProject/medialib-core/pkg/database"
	"github.com/MediaLibProject/medialib-core/pkg/database/medialibdb"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

type stubService struct {
	name   string
	step   database.TaskStep
	status Status
	runs   atomic.Int32
	gate   chan struct{}
}

func (s *stubService) Name() string            { return s.name }
func (s *stubService) Step() database.TaskStep { return s.step }
func (*stubService) NativeThreads() int        { return 1 }

func (s *stubService) Run(context.Context, *Item) Status {
	s.runs.Add(1)
	if s.gate != nil {
		<-s.gate
	}
	return s.status
}

func newTestPipeline(t *testing.T, services ...Service) (*Parser, *medialibdb.MediaLibDB) {
	t.Helper()
	db, err := medialibdb.OpenInMemory(context.Background(), clockwork.NewFakeClock())
	require.NoError(t, err)
	require.NoError(t, db.Migrate())
	t.Cleanup(func() { _ = db.Close() })

	cfg, err := config.NewConfig("", config.BaseDefaults)
	require.NoError(t, err)

	p := New(context.Background(), db, cfg, nil)
	for _, s := range services {
		p.AddService(s)
	}
	return p, db
}

func createTask(t *testing.T, db *medialibdb.MediaLibDB, mrl string) database.Task {
	t.Helper()
	task, err := db.CreateTask(database.Task{Type: database.TaskTypeParse, MRL: mrl})
	require.NoError(t, err)
	return task
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}

// A task whose service keeps reporting TemporaryUnavailable goes fatal
// after the retry cap and is never re-enqueued.
func TestRetryCapPromotesToFatal(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreTopFunction("database/sql.(*DB).connectionOpener"))

	svc := &stubService{
		name: "flaky", step: database.TaskStepMetadataExtraction,
		status: StatusTemporaryUnavailable,
	}
	p, db := newTestPipeline(t, svc)
	require.NoError(t, p.Start())

	task := createTask(t, db, "file:///share/a.mkv")
	p.Enqueue(&Item{Task: task, AbsoluteMRL: task.MRL})

	waitFor(t, p.IsIdle)
	p.Stop()

	maxRetries := config.BaseDefaults.Parser.MaxRetries
	assert.Equal(t, int32(maxRetries), svc.runs.Load())

	// The task row survives with its retries burned so a restart skips
	// it.
	tasks, err := db.PendingTasks()
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.GreaterOrEqual(t, tasks[0].Retries, maxRetries)
}

// Completed steps persist, so a restarted pipeline resumes at the first
// missing step.
func TestStepsResumeAfterRestart(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreTopFunction("database/sql.(*DB).connectionOpener"))

	gate := make(chan struct{})
	extraction := &stubService{
		name: "extraction", step: database.TaskStepMetadataExtraction,
		status: StatusSuccess,
	}
	analysis := &stubService{
		name: "analysis", step: database.TaskStepMetadataAnalysis,
		status: StatusRequeue, gate: gate,
	}
	p, db := newTestPipeline(t, extraction, analysis)
	require.NoError(t, p.Start())

	task := createTask(t, db, "file:///share/b.mkv")
	p.Enqueue(&Item{Task: task, AbsoluteMRL: task.MRL})

	// Shut down while the analysis step is in flight; its requeue
	// lands in a drained queue, leaving the task persisted with only
	// the extraction step recorded.
	waitFor(t, func() bool { return analysis.runs.Load() == 1 })
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		p.Stop()
	}()
	waitFor(t, func() bool {
		p.mu.Lock()
		defer p.mu.Unlock()
		return p.stopped
	})
	gate <- struct{}{}
	wg.Wait()
	assert.Equal(t, int32(1), extraction.runs.Load())

	// Second pipeline over the same store: extraction is already
	// recorded, only analysis runs again.
	extraction2 := &stubService{
		name: "extraction", step: database.TaskStepMetadataExtraction,
		status: StatusSuccess,
	}
	analysis2 := &stubService{
		name: "analysis", step: database.TaskStepMetadataAnalysis,
		status: StatusSuccess,
	}
	cfg, err := config.NewConfig("", config.BaseDefaults)
	require.NoError(t, err)
	p2 := New(context.Background(), db, cfg, nil)
	p2.AddService(extraction2)
	p2.AddService(analysis2)
	require.NoError(t, p2.Start())

	waitFor(t, p2.IsIdle)
	p2.Stop()

	assert.Zero(t, extraction2.runs.Load())
	assert.Equal(t, int32(1), analysis2.runs.Load())

	// Both steps done: the task is gone.
	tasks, err := db.PendingTasks()
	require.NoError(t, err)
	assert.Empty(t, tasks)
}

// Paused workers finish the current step, then block until resumed.
func TestPauseResume(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreTopFunction("database/sql.(*DB).connectionOpener"))

	gate := make(chan struct{})
	svc := &stubService{
		name: "slow", step: database.TaskStepMetadataExtraction,
		status: StatusCompleted, gate: gate,
	}
	p, db := newTestPipeline(t, svc)
	require.NoError(t, p.Start())

	first := createTask(t, db, "file:///share/c.mkv")
	p.Enqueue(&Item{Task: first, AbsoluteMRL: first.MRL})
	waitFor(t, func() bool { return svc.runs.Load() == 1 })

	// Pause while the first task is mid-step; it must still finish.
	p.Pause()
	second := createTask(t, db, "file:///share/d.mkv")
	p.Enqueue(&Item{Task: second, AbsoluteMRL: second.MRL})
	gate <- struct{}{}

	// The second task stays queued while paused.
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), svc.runs.Load())

	p.Resume()
	waitFor(t, func() bool { return svc.runs.Load() == 2 })
	gate <- struct{}{}
	waitFor(t, p.IsIdle)
	p.Stop()
}

// A discarded task disappears from the store.
func TestDiscardedTaskDeleted(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreTopFunction("database/sql.(*DB).connectionOpener"))

	svc := &stubService{
		name: "discarding", step: database.TaskStepMetadataExtraction,
		status: StatusDiscarded,
	}
	p, db := newTestPipeline(t, svc)
	require.NoError(t, p.Start())

	task := createTask(t, db, "file:///share/e.m3u")
	p.Enqueue(&Item{Task: task, AbsoluteMRL: task.MRL})

	waitFor(t, p.IsIdle)
	p.Stop()

	tasks, err := db.PendingTasks()
	require.NoError(t, err)
	assert.Empty(t, tasks)
}

// Stop drains the queues without running the remaining tasks.
func TestStopDrains(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreTopFunction("database/sql.(*DB).connectionOpener"))

	gate := make(chan struct{})
	svc := &stubService{
		name: "gated", step: database.TaskStepMetadataExtraction,
		status: StatusCompleted, gate: gate,
	}
	p, db := newTestPipeline(t, svc)
	require.NoError(t, p.Start())

	running := createTask(t, db, "file:///share/f.mkv")
	queued := createTask(t, db, "file:///share/g.mkv")
	p.Enqueue(&Item{Task: running, AbsoluteMRL: running.MRL})
	waitFor(t, func() bool { return svc.runs.Load() == 1 })
	p.Enqueue(&Item{Task: queued, AbsoluteMRL: queued.MRL})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		p.Stop()
	}()
	// Stop waits for the in-flight step to finish.
	waitFor(t, func() bool {
		p.mu.Lock()
		defer p.mu.Unlock()
		return p.stopped
	})
	gate <- struct{}{}
	wg.Wait()

	assert.Equal(t, int32(1), svc.runs.Load())
}
