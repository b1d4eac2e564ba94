package election_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	coordinationv1 "k8s.io/api/coordination/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes/fake"
	"k8s.io/utils/ptr"

	"github.com/docent-net/stale-node-controller/pkg/config"
	"github.com/docent-net/stale-node-controller/pkg/election"
)

func leaseConfig() config.LeaderElectionConfig {
	return config.LeaderElectionConfig{
		Enabled:       true,
		ID:            "stale-node-controller.docent.net",
		Namespace:     "kube-system",
		LeaseDuration: time.Second,
		RenewDeadline: 500 * time.Millisecond,
		RetryPeriod:   100 * time.Millisecond,
	}
}

func getLease(t *testing.T, client *fake.Clientset) *coordinationv1.Lease {
	t.Helper()
	lease, err := client.CoordinationV1().Leases("kube-system").Get(context.Background(), "stale-node-controller.docent.net", metav1.GetOptions{})
	require.NoError(t, err)
	return lease
}

func TestRun_DisabledRunsDirectly(t *testing.T) {
	e := election.New(fake.NewSimpleClientset(), config.LeaderElectionConfig{}, "replica-a")

	var wasLeader bool
	err := e.Run(context.Background(), func(context.Context) error {
		wasLeader = e.IsLeader()
		return nil
	})
	require.NoError(t, err)
	require.True(t, wasLeader)
	require.False(t, e.IsLeader())
}

func TestRun_AcquiresLeaseAndReleasesOnCancel(t *testing.T) {
	client := fake.NewSimpleClientset()
	e := election.New(client, leaseConfig(), "replica-a")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	started := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- e.Run(ctx, func(ctx context.Context) error {
			close(started)
			<-ctx.Done()
			return nil
		})
	}()

	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("never acquired the lease")
	}
	require.True(t, e.IsLeader())
	require.Equal(t, "replica-a", ptr.Deref(getLease(t, client).Spec.HolderIdentity, ""))

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
	require.False(t, e.IsLeader())
	require.Empty(t, ptr.Deref(getLease(t, client).Spec.HolderIdentity, ""), "lease released on shutdown")
}

func TestRun_StandbyWhileAnotherReplicaLeads(t *testing.T) {
	now := metav1.NewMicroTime(time.Now())
	client := fake.NewSimpleClientset(&coordinationv1.Lease{
		ObjectMeta: metav1.ObjectMeta{Name: "stale-node-controller.docent.net", Namespace: "kube-system"},
		Spec: coordinationv1.LeaseSpec{
			HolderIdentity:       ptr.To("replica-b"),
			LeaseDurationSeconds: ptr.To[int32](60),
			AcquireTime:          &now,
			RenewTime:            &now,
		},
	})
	e := election.New(client, leaseConfig(), "replica-a")

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	ran := false
	err := e.Run(ctx, func(context.Context) error {
		ran = true
		return nil
	})
	require.NoError(t, err)
	require.False(t, ran, "a standby replica must not reconcile")
	require.False(t, e.IsLeader())
	require.Equal(t, "replica-b", ptr.Deref(getLease(t, client).Spec.HolderIdentity, ""))
}

func TestRun_LoopErrorGivesUpLease(t *testing.T) {
	client := fake.NewSimpleClientset()
	e := election.New(client, leaseConfig(), "replica-a")
	boom := errors.New("loop failed")

	err := e.Run(context.Background(), func(context.Context) error {
		return boom
	})
	require.ErrorIs(t, err, boom)
	require.False(t, e.IsLeader())
}

func TestIdentity_IsUnique(t *testing.T) {
	a, err := election.Identity()
	require.NoError(t, err)
	b, err := election.Identity()
	require.NoError(t, err)
	require.NotEqual(t, a, b)
}
