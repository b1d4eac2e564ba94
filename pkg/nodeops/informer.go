package nodeops

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	v1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/labels"
	"k8s.io/client-go/informers"
	"k8s.io/client-go/kubernetes"
	corelisters "k8s.io/client-go/listers/core/v1"
	"k8s.io/client-go/tools/cache"
	"k8s.io/utils/clock"
)

var errCacheNotSynced = errors.New("node cache has not synced yet")

// InformerReader serves observations from a watch-fed node cache instead of
// listing on every poll. A list/watch failure makes it report the cluster as
// unreachable until the next node event proves the stream is flowing again,
// so a partitioned watch never hands stale readiness to the tracker.
type InformerReader struct {
	Filter ManagedNodeFilter
	Clock  clock.PassiveClock

	factory  informers.SharedInformerFactory
	informer cache.SharedIndexInformer
	lister   corelisters.NodeLister

	// lastSyncVersion reports the resource version the reflector last synced to.
	lastSyncVersion func() string

	mu              sync.Mutex
	watchErr        error
	watchErrVersion string
}

func NewInformerReader(client kubernetes.Interface, filter ManagedNodeFilter, resync time.Duration, clk clock.PassiveClock) (*InformerReader, error) {
	factory := informers.NewSharedInformerFactory(client, resync)
	nodes := factory.Core().V1().Nodes()

	r := &InformerReader{
		Filter:   filter,
		Clock:    clk,
		factory:  factory,
		informer: nodes.Informer(),
		lister:   nodes.Lister(),
	}
	r.lastSyncVersion = r.informer.LastSyncResourceVersion
	if err := r.informer.SetWatchErrorHandler(func(_ *cache.Reflector, err error) {
		r.recordWatchError(err)
	}); err != nil {
		return nil, err
	}
	_, err := r.informer.AddEventHandler(cache.ResourceEventHandlerFuncs{
		AddFunc:    func(any) { r.clearWatchError() },
		UpdateFunc: func(any, any) { r.clearWatchError() },
		DeleteFunc: func(any) { r.clearWatchError() },
	})
	if err != nil {
		return nil, err
	}
	return r, nil
}

// Start runs the informer until ctx is cancelled and blocks until the first sync.
func (r *InformerReader) Start(ctx context.Context) bool {
	r.factory.Start(ctx.Done())
	return cache.WaitForCacheSync(ctx.Done(), r.informer.HasSynced)
}

func (r *InformerReader) ReadNodes(_ context.Context) ([]NodeObservation, error) {
	if !r.informer.HasSynced() {
		return nil, unreachable("read node cache", errCacheNotSynced)
	}
	if err := r.lastWatchError(); err != nil {
		return nil, unreachable("watch nodes", err)
	}

	cached, err := r.lister.List(labels.Everything())
	if err != nil {
		return nil, unreachable("read node cache", err)
	}
	nodes := make([]v1.Node, 0, len(cached))
	for _, n := range cached {
		nodes = append(nodes, *n)
	}
	return Observe(r.Filter.Filter(nodes), now(r.Clock)), nil
}

func (r *InformerReader) recordWatchError(err error) {
	// EOF and expired resource versions are routine watch restarts.
	if errors.Is(err, io.EOF) || apierrors.IsResourceExpired(err) || apierrors.IsGone(err) {
		return
	}
	slog.Warn("Node watch failed", "err", err)
	version := r.syncedVersion()
	r.mu.Lock()
	defer r.mu.Unlock()
	r.watchErr = err
	r.watchErrVersion = version
}

func (r *InformerReader) clearWatchError() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.watchErr != nil {
		slog.Info("Node watch recovered")
		r.watchErr = nil
	}
}

// lastWatchError also treats a moved sync version as recovery: a relist or
// bookmark in a cluster without nodes produces no event to clear the error.
func (r *InformerReader) lastWatchError() error {
	version := r.syncedVersion()
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.watchErr != nil && version != r.watchErrVersion {
		slog.Info("Node watch recovered", "resourceVersion", version)
		r.watchErr = nil
	}
	return r.watchErr
}

func (r *InformerReader) syncedVersion() string {
	if r.lastSyncVersion == nil {
		return ""
	}
	return r.lastSyncVersion()
}
