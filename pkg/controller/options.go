package controller

import (
	"k8s.io/client-go/tools/record"
	"k8s.io/utils/clock"

	"github.com/docent-net/stale-node-controller/pkg/nodeops"
	"github.com/docent-net/stale-node-controller/pkg/strategy"
)

type ReconcilerOption func(*Reconciler)

func WithClock(clk clock.WithTicker) ReconcilerOption {
	return func(r *Reconciler) {
		r.Clock = clk
	}
}

func WithReader(reader nodeops.ClusterStateReader) ReconcilerOption {
	return func(r *Reconciler) {
		r.Reader = reader
	}
}

func WithDeleter(deleter nodeops.NodeDeleter) ReconcilerOption {
	return func(r *Reconciler) {
		r.Deleter = deleter
	}
}

func WithStrategy(s strategy.EvictionStrategy) ReconcilerOption {
	return func(r *Reconciler) {
		r.Strategy = s
	}
}

func WithRecorder(recorder record.EventRecorder) ReconcilerOption {
	return func(r *Reconciler) {
		r.Recorder = recorder
	}
}
