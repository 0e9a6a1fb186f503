package testing

import (
	"sync"

	"k8s.io/apimachinery/pkg/watch"
	clienttesting "k8s.io/client-go/testing"
)

type watchReactorPrepender interface {
	PrependWatchReactor(resource string, reaction clienttesting.WatchReactionFunc)
}

// PrependWatchEvents makes the first watch on the resource deliver the events. Later watches
// stay open without events.
func PrependWatchEvents(client watchReactorPrepender, resource string, events ...watch.Event) {
	var once sync.Once
	client.PrependWatchReactor(resource, func(action clienttesting.Action) (bool, watch.Interface, error) {
		w := watch.NewFakeWithChanSize(len(events), false)
		once.Do(func() {
			for _, e := range events {
				w.Action(e.Type, e.Object)
			}
		})
		return true, w, nil
	})
}
