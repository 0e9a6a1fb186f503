package helpers

import (
	"context"
	"time"

	"k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/api/meta"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/fields"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/util/wait"
	"k8s.io/apimachinery/pkg/watch"
	"k8s.io/client-go/dynamic"
	"k8s.io/klog/v2"
)

// GetFunc matches the Get method of the typed clients.
type GetFunc[T runtime.Object] func(ctx context.Context, name string, opts metav1.GetOptions) (T, error)

// WatchFunc matches the Watch method of the typed and dynamic clients.
type WatchFunc func(ctx context.Context, opts metav1.ListOptions) (watch.Interface, error)

// ConditionFunc is evaluated against the current state of the object. exists is false when
// the object is not found or has been deleted, obj is the zero value in that case.
type ConditionFunc[T runtime.Object] func(obj T, exists bool) bool

// rewatchBackoff delays re-establishing a watch which the server closed. It restarts once a
// watch delivers an event.
var rewatchBackoff = wait.Backoff{
	Duration: 200 * time.Millisecond,
	Factor:   2,
	Jitter:   0.1,
	Steps:    10,
	Cap:      5 * time.Second,
}

// WaitFor blocks until the named object satisfies the condition or the timeout elapses. The
// current state is checked first, then the object is watched. A watch closed by the server
// before the deadline is re-established after a backoff. It returns false without error on
// timeout.
func WaitFor[T runtime.Object](
	ctx context.Context,
	get GetFunc[T],
	watchFn WatchFunc,
	name string,
	timeout time.Duration,
	condition ConditionFunc[T],
) (bool, error) {
	logger := klog.FromContext(ctx)
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	var zero T
	backoff := rewatchBackoff
	for {
		if ctx.Err() != nil {
			return false, nil
		}

		obj, err := get(ctx, name, metav1.GetOptions{})
		exists := true
		switch {
		case errors.IsNotFound(err):
			obj, exists = zero, false
		case err != nil:
			if ctx.Err() != nil {
				return false, nil
			}
			return false, err
		}
		if condition(obj, exists) {
			return true, nil
		}

		opts := metav1.ListOptions{
			FieldSelector: fields.OneTermEqualSelector("metadata.name", name).String(),
		}
		if exists {
			if accessor, err := meta.Accessor(obj); err == nil {
				opts.ResourceVersion = accessor.GetResourceVersion()
			}
		}
		if deadline, ok := ctx.Deadline(); ok {
			seconds := int64(time.Until(deadline).Seconds())
			if seconds < 1 {
				seconds = 1
			}
			opts.TimeoutSeconds = &seconds
		}

		w, err := watchFn(ctx, opts)
		if err != nil {
			if ctx.Err() != nil {
				return false, nil
			}
			return false, err
		}
		satisfied, received := consumeEvents(ctx, w, name, condition)
		if satisfied {
			return true, nil
		}
		if received {
			backoff = rewatchBackoff
		}

		delay := backoff.Step()
		logger.V(4).Info("Watch closed, checking again", "name", name, "delay", delay)
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return false, nil
		case <-timer.C:
		}
	}
}

// consumeEvents reads the watch until the condition is satisfied or the watch ends. received
// reports whether any object event arrived.
func consumeEvents[T runtime.Object](
	ctx context.Context, w watch.Interface, name string, condition ConditionFunc[T]) (satisfied, received bool) {
	logger := klog.FromContext(ctx)
	defer w.Stop()

	var zero T
	for {
		select {
		case <-ctx.Done():
			return false, received
		case event, ok := <-w.ResultChan():
			if !ok {
				return false, received
			}
			switch event.Type {
			case watch.Added, watch.Modified:
				received = true
				obj, ok := event.Object.(T)
				if !ok || !hasName(obj, name) {
					continue
				}
				if condition(obj, true) {
					return true, received
				}
			case watch.Deleted:
				received = true
				if !hasName(event.Object, name) {
					continue
				}
				if condition(zero, false) {
					return true, received
				}
			case watch.Error:
				logger.V(4).Info("Watch failed", "name", name, "err", errors.FromObject(event.Object))
				return false, received
			}
		}
	}
}

func hasName(obj runtime.Object, name string) bool {
	accessor, err := meta.Accessor(obj)
	if err != nil {
		return false
	}
	return accessor.GetName() == name
}

// WaitForUnstructured is WaitFor over a dynamic resource client.
func WaitForUnstructured(
	ctx context.Context,
	client dynamic.ResourceInterface,
	name string,
	timeout time.Duration,
	condition ConditionFunc[*unstructured.Unstructured],
) (bool, error) {
	get := func(ctx context.Context, name string, opts metav1.GetOptions) (*unstructured.Unstructured, error) {
		return client.Get(ctx, name, opts)
	}
	return WaitFor(ctx, get, client.Watch, name, timeout, condition)
}

// Exists is a condition satisfied once the object is present.
func Exists[T runtime.Object](_ T, exists bool) bool {
	return exists
}

// Deleted is a condition satisfied once the object is gone.
func Deleted[T runtime.Object](_ T, exists bool) bool {
	return !exists
}

// PollUntil runs the condition immediately and then every interval until it is done or the
// timeout elapses. It returns false without error on timeout.
func PollUntil(ctx context.Context, interval, timeout time.Duration, condition wait.ConditionWithContextFunc) (bool, error) {
	err := wait.PollUntilContextTimeout(ctx, interval, timeout, true, condition)
	switch {
	case err == nil:
		return true, nil
	case wait.Interrupted(err):
		return false, nil
	default:
		return false, err
	}
}
