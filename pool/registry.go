package pool

import (
	"sync"

	"github.com/Harry-George/hgalloc"
	"github.com/dolthub/swiss"
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/pkg/errors"
)

// StatsSource is anything that can report its footprint into shared statistics and
// stream itself as JSON. Every Pool is a StatsSource.
type StatsSource interface {
	AddStatistics(stats *hgalloc.Statistics)
	BuildStatsJson(writer *jwriter.Writer)
}

// Registry tracks live pools by name so a process can inspect all of its allocators in
// one place. Pools join it through CreateOptions.Registry and leave it on Destroy.
//
// Unlike pools, a Registry is always safe for concurrent use.
type Registry struct {
	mutex sync.Mutex
	pools *swiss.Map[string, StatsSource]
}

func NewRegistry() *Registry {
	return &Registry{
		pools: swiss.NewMap[string, StatsSource](8),
	}
}

// Register adds source under name. Names must be unique within the registry.
func (r *Registry) Register(name string, source StatsSource) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	_, present := r.pools.Get(name)
	if present {
		return errors.Errorf("a pool named %q is already registered", name)
	}

	r.pools.Put(name, source)
	return nil
}

// Unregister removes the named source. Unknown names are ignored.
func (r *Registry) Unregister(name string) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	r.pools.Delete(name)
}

// Count returns the number of registered sources.
func (r *Registry) Count() int {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	return r.pools.Count()
}

// AddStatistics sums the footprint of every registered source into stats.
func (r *Registry) AddStatistics(stats *hgalloc.Statistics) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	r.pools.Iter(func(name string, source StatsSource) bool {
		source.AddStatistics(stats)
		return false
	})
}

// BuildStatsJson streams a JSON report covering every registered source, followed by
// process-wide totals.
func (r *Registry) BuildStatsJson(writer *jwriter.Writer) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	obj := writer.Object()
	defer obj.End()

	poolsObj := obj.Name("Pools").Object()
	r.pools.Iter(func(name string, source StatsSource) bool {
		source.BuildStatsJson(poolsObj.Name(name))
		return false
	})
	poolsObj.End()

	var stats hgalloc.Statistics
	stats.Clear()
	r.pools.Iter(func(name string, source StatsSource) bool {
		source.AddStatistics(&stats)
		return false
	})

	totalObj := obj.Name("Total").Object()
	totalObj.Name("Pools").Int(stats.PoolCount)
	totalObj.Name("Buckets").Int(stats.BucketCount)
	totalObj.Name("BucketBytes").Int(stats.BucketBytes)
	totalObj.Name("Live").Int(stats.LiveCount)
	totalObj.Name("Free").Int(stats.FreeCount)
	totalObj.Name("HighWaterMark").Int(stats.HighWaterMark)
	totalObj.End()
}
