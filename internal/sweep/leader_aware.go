/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package sweep

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"
)

// Leader is the election the sweep loop follows.
type Leader interface {
	Start(ctx context.Context) error
	Stop() error
	IsLeader() bool
	LeaderCh() <-chan bool
}

// LeaderAware runs the sweep loop only while this instance is leader.
type LeaderAware struct {
	sweeper  *Sweeper
	election Leader
	logger   zerolog.Logger

	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	running bool
	done    chan struct{}
}

// NewLeaderAware wraps a sweeper with an election.
func NewLeaderAware(sweeper *Sweeper, election Leader, logger zerolog.Logger) *LeaderAware {
	return &LeaderAware{
		sweeper:  sweeper,
		election: election,
		logger:   logger.With().Str("component", "leader_aware_sweep").Logger(),
	}
}

// Start begins campaigning and follows leadership changes until ctx ends.
func (la *LeaderAware) Start(ctx context.Context) error {
	la.mu.Lock()
	la.ctx = ctx
	la.mu.Unlock()

	la.logger.Info().Msg("starting leader-aware sweep")
	if err := la.election.Start(ctx); err != nil {
		return err
	}
	go la.monitorLeadership(ctx)
	return nil
}

// Stop halts the loop and gives up leadership.
func (la *LeaderAware) Stop() error {
	la.logger.Info().Msg("stopping leader-aware sweep")
	la.stopLoop()
	return la.election.Stop()
}

// IsLeader reports whether this instance currently sweeps.
func (la *LeaderAware) IsLeader() bool {
	return la.election.IsLeader()
}

// Running reports whether the sweep loop is active here.
func (la *LeaderAware) Running() bool {
	la.mu.Lock()
	defer la.mu.Unlock()
	return la.running
}

func (la *LeaderAware) monitorLeadership(ctx context.Context) {
	if la.election.IsLeader() {
		la.startLoop()
	}
	ch := la.election.LeaderCh()
	for {
		select {
		case <-ctx.Done():
			la.stopLoop()
			return
		case isLeader := <-ch:
			if isLeader {
				la.logger.Info().Msg("became leader, starting sweep loop")
				la.startLoop()
			} else {
				la.logger.Warn().Msg("lost leadership, stopping sweep loop")
				la.stopLoop()
			}
		}
	}
}

func (la *LeaderAware) startLoop() {
	la.mu.Lock()
	defer la.mu.Unlock()
	if la.running {
		return
	}

	ctx, cancel := context.WithCancel(la.ctx)
	done := make(chan struct{})
	la.cancel, la.done, la.running = cancel, done, true

	go func() {
		defer close(done)
		if err := la.sweeper.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			la.logger.Error().Err(err).Msg("sweep loop error")
		}
	}()
}

func (la *LeaderAware) stopLoop() {
	la.mu.Lock()
	if !la.running {
		la.mu.Unlock()
		return
	}
	cancel, done := la.cancel, la.done
	la.cancel, la.done, la.running = nil, nil, false
	la.mu.Unlock()

	cancel()
	<-done
}
