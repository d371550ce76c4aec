package engine

import (
	"expvar"
	"fmt"
)

// latencyBuckets defines the buckets for latency histograms (in seconds).
// Runs download and scan whole buckets, so the range reaches into minutes.
var latencyBuckets = []float64{0.01, 0.05, 0.1, 0.5, 1.0, 5.0, 10.0, 30.0, 60.0, 300.0, 900.0}

// observeLatency records the duration in the provided histogram map.
func observeLatency(histMap *expvar.Map, durationSeconds float64) {
	if histMap == nil {
		return
	}
	if countInt, ok := histMap.Get("count").(*expvar.Int); ok {
		countInt.Add(1)
	}
	if sumFloat, ok := histMap.Get("sum").(*expvar.Float); ok {
		sumFloat.Add(durationSeconds)
	}

	// For a cumulative histogram, a value that fits in a smaller bucket
	// must also be counted in all larger buckets.
	for _, b := range latencyBuckets {
		if durationSeconds > b {
			continue
		}
		if bucketInt, ok := histMap.Get(fmt.Sprintf("le_%.3f", b)).(*expvar.Int); ok {
			bucketInt.Add(1)
		}
	}
	if infInt, ok := histMap.Get("le_inf").(*expvar.Int); ok {
		infInt.Add(1)
	}
}

// publishExpvarInt safely publishes an expvar.Int.
// If the name already exists and is an *expvar.Int, it resets it and returns it.
// If the name exists but is not an *expvar.Int, it panics.
func publishExpvarInt(name string) *expvar.Int {
	v := expvar.Get(name)
	if v == nil {
		return expvar.NewInt(name)
	}
	if iv, ok := v.(*expvar.Int); ok {
		iv.Set(0)
		return iv
	}
	panic(fmt.Sprintf("expvar: trying to publish Int %s but variable already exists with different type %T", name, v))
}

// publishExpvarFloat safely publishes an expvar.Float.
// Similar logic to publishExpvarInt.
func publishExpvarFloat(name string) *expvar.Float {
	v := expvar.Get(name)
	if v == nil {
		return expvar.NewFloat(name)
	}
	if fv, ok := v.(*expvar.Float); ok {
		fv.Set(0.0)
		return fv
	}
	panic(fmt.Sprintf("expvar: trying to publish Float %s but variable already exists with different type %T", name, v))
}

// publishExpvarFunc publishes f unless name is already taken.
func publishExpvarFunc(name string, f func() interface{}) {
	// expvar.Publish panics on reuse.
	if expvar.Get(name) != nil {
		return
	}
	expvar.Publish(name, expvar.Func(f))
}

// publishExpvarMap safely publishes an expvar.Map, returning the existing
// map when name is already published. The caller resets its contents.
func publishExpvarMap(name string) *expvar.Map {
	v := expvar.Get(name)
	if v == nil {
		return expvar.NewMap(name)
	}
	if mv, ok := v.(*expvar.Map); ok {
		return mv
	}
	panic(fmt.Sprintf("expvar: trying to publish Map %s but variable already exists with different type %T", name, v))
}
