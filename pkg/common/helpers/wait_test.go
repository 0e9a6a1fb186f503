package helpers

import (
	"context"
	"fmt"
	"testing"
	"time"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/apimachinery/pkg/watch"
	fakekube "k8s.io/client-go/kubernetes/fake"

	clusterfake "open-cluster-management.io/api/client/cluster/clientset/versioned/fake"
	clusterv1 "open-cluster-management.io/api/cluster/v1"

	testingcommon "open-cluster-management.io/ocmplus/pkg/common/testing"
)

var addonGVR = schema.GroupVersionResource{
	Group: "addon.open-cluster-management.io", Version: "v1alpha1", Resource: "managedclusteraddons"}

func available(obj *unstructured.Unstructured, exists bool) bool {
	return exists && IsConditionTrue(obj, "Available")
}

func TestWaitForUnstructured(t *testing.T) {
	newAddon := func(status metav1.ConditionStatus) *unstructured.Unstructured {
		return testingcommon.NewUnstructuredWithConditions(
			"addon.open-cluster-management.io/v1alpha1", "ManagedClusterAddOn", "cluster1", "cluster-proxy",
			metav1.Condition{Type: "Available", Status: status})
	}
	other := testingcommon.NewUnstructuredWithConditions(
		"addon.open-cluster-management.io/v1alpha1", "ManagedClusterAddOn", "cluster1", "other",
		metav1.Condition{Type: "Available", Status: metav1.ConditionTrue})

	cases := []struct {
		name      string
		existing  []runtime.Object
		events    []watch.Event
		condition ConditionFunc[*unstructured.Unstructured]
		expected  bool
	}{
		{
			name:      "already satisfied",
			existing:  []runtime.Object{newAddon(metav1.ConditionTrue)},
			condition: available,
			expected:  true,
		},
		{
			name:     "satisfied by a watch event",
			existing: []runtime.Object{newAddon(metav1.ConditionFalse)},
			events: []watch.Event{
				{Type: watch.Modified, Object: newAddon(metav1.ConditionFalse)},
				{Type: watch.Modified, Object: newAddon(metav1.ConditionTrue)},
			},
			condition: available,
			expected:  true,
		},
		{
			name:      "created while watching",
			events:    []watch.Event{{Type: watch.Added, Object: newAddon(metav1.ConditionTrue)}},
			condition: available,
			expected:  true,
		},
		{
			name:      "events of other objects are ignored",
			events:    []watch.Event{{Type: watch.Added, Object: other}},
			condition: available,
		},
		{
			name:      "deleted",
			existing:  []runtime.Object{newAddon(metav1.ConditionTrue)},
			events:    []watch.Event{{Type: watch.Deleted, Object: newAddon(metav1.ConditionTrue)}},
			condition: Deleted[*unstructured.Unstructured],
			expected:  true,
		},
		{
			name:      "timeout",
			existing:  []runtime.Object{newAddon(metav1.ConditionFalse)},
			condition: available,
		},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			client := testingcommon.NewFakeDynamicClient(
				map[schema.GroupVersionResource]string{addonGVR: "ManagedClusterAddOnList"}, c.existing...)
			testingcommon.PrependWatchEvents(client, "managedclusteraddons", c.events...)

			actual, err := WaitForUnstructured(context.TODO(), client.Resource(addonGVR).Namespace("cluster1"),
				"cluster-proxy", 200*time.Millisecond, c.condition)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if actual != c.expected {
				t.Errorf("expected %v, got %v", c.expected, actual)
			}
		})
	}
}

func TestWaitForTyped(t *testing.T) {
	joined := &clusterv1.ManagedCluster{
		ObjectMeta: metav1.ObjectMeta{Name: "cluster1"},
		Status: clusterv1.ManagedClusterStatus{
			Conditions: []metav1.Condition{{Type: clusterv1.ManagedClusterConditionJoined, Status: metav1.ConditionTrue}},
		},
	}
	clusterClient := clusterfake.NewSimpleClientset(&clusterv1.ManagedCluster{ObjectMeta: metav1.ObjectMeta{Name: "cluster1"}})
	testingcommon.PrependWatchEvents(clusterClient, "managedclusters", watch.Event{Type: watch.Modified, Object: joined})

	clusters := clusterClient.ClusterV1().ManagedClusters()
	actual, err := WaitFor(context.TODO(), clusters.Get, clusters.Watch, "cluster1", time.Second,
		func(cluster *clusterv1.ManagedCluster, exists bool) bool {
			return exists && len(cluster.Status.Conditions) > 0
		})
	if err != nil || !actual {
		t.Errorf("expected the cluster to join, got %v, %v", actual, err)
	}
}

func TestWaitForGetError(t *testing.T) {
	kubeClient := fakekube.NewSimpleClientset()
	secrets := kubeClient.CoreV1().Secrets("cluster1")
	failingGet := func(ctx context.Context, name string, opts metav1.GetOptions) (runtime.Object, error) {
		return nil, fmt.Errorf("boom")
	}

	_, err := WaitFor(context.TODO(), failingGet, secrets.Watch, "cluster1-import", time.Second, Exists[runtime.Object])
	testingcommon.AssertError(t, err, "boom")
}

func TestWaitForClosedWatch(t *testing.T) {
	kubeClient := fakekube.NewSimpleClientset()
	secrets := kubeClient.CoreV1().Secrets("cluster1")

	watches := 0
	closedWatch := func(ctx context.Context, opts metav1.ListOptions) (watch.Interface, error) {
		watches++
		w := watch.NewFake()
		w.Stop()
		return w, nil
	}

	start := time.Now()
	actual, err := WaitFor(context.TODO(), secrets.Get, closedWatch, "cluster1-import", time.Second,
		Exists[*corev1.Secret])
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if actual {
		t.Errorf("expected timeout")
	}
	if elapsed := time.Since(start); elapsed < 900*time.Millisecond {
		t.Errorf("expected to wait for the timeout, returned after %v", elapsed)
	}
	// 200ms, 400ms and 800ms delays fit at most four watches into one second
	if watches < 1 || watches > 4 {
		t.Errorf("expected between 1 and 4 watches, got %d", watches)
	}
	gets := len(testingcommon.FilterActions(kubeClient.Actions(), "get"))
	if gets != watches {
		t.Errorf("expected one get per watch, got %d gets and %d watches", gets, watches)
	}
}

func TestPollUntil(t *testing.T) {
	calls := 0
	done, err := PollUntil(context.TODO(), 10*time.Millisecond, time.Second, func(ctx context.Context) (bool, error) {
		calls++
		return calls == 3, nil
	})
	if err != nil || !done || calls != 3 {
		t.Errorf("expected done after 3 calls, got %v, %v, %d", done, err, calls)
	}

	done, err = PollUntil(context.TODO(), 10*time.Millisecond, 50*time.Millisecond, func(ctx context.Context) (bool, error) {
		return false, nil
	})
	if err != nil || done {
		t.Errorf("expected timeout without error, got %v, %v", done, err)
	}

	_, err = PollUntil(context.TODO(), 10*time.Millisecond, time.Second, func(ctx context.Context) (bool, error) {
		return false, fmt.Errorf("boom")
	})
	testingcommon.AssertError(t, err, "boom")
}
