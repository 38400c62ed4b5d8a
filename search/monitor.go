package search

import (
	"github.com/poiesic/finrank/core"
	"github.com/poiesic/finrank/query"
)

// SearchMonitor provides hooks to observe the search process.
// Implement this interface to track intermediate steps and results during search.
type SearchMonitor interface {
	Start(query string, plan query.Plan)
	CacheHit(key string)
	AfterEmbedding(dimension int)
	AfterRetrieval(candidates []*core.Match, fallback bool)
	YearBoosted(result *core.Result)
	AfterRecencyBoost(ordered []*core.Result)
	Finish(results []*core.Result)
}

// noopMonitor is a no-op implementation of SearchMonitor
type noopMonitor struct{}

var _ SearchMonitor = (*noopMonitor)(nil)

func (n *noopMonitor) Start(_ string, _ query.Plan)            {}
func (n *noopMonitor) CacheHit(_ string)                       {}
func (n *noopMonitor) AfterEmbedding(_ int)                    {}
func (n *noopMonitor) AfterRetrieval(_ []*core.Match, _ bool)  {}
func (n *noopMonitor) YearBoosted(_ *core.Result)              {}
func (n *noopMonitor) AfterRecencyBoost(_ []*core.Result)      {}
func (n *noopMonitor) Finish(_ []*core.Result)                 {}
