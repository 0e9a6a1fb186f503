package recorder

import (
	"context"
	"fmt"
	"sync"

	"github.com/openshift/library-go/pkg/operator/events"
	"k8s.io/klog/v2"
)

// ContextualLoggingEventRecorder logs the events emitted by library-go resource helpers
// instead of posting them to an API server. Warnings are also kept so that a command can
// report them in its result.
type ContextualLoggingEventRecorder struct {
	component string
	ctx       context.Context
	warnings  *warnings
}

type warnings struct {
	lock     sync.Mutex
	messages []string
}

var _ events.Recorder = &ContextualLoggingEventRecorder{}

func NewContextualLoggingEventRecorder(ctx context.Context, component string) *ContextualLoggingEventRecorder {
	return &ContextualLoggingEventRecorder{
		component: component,
		ctx:       ctx,
		warnings:  &warnings{},
	}
}

func (r *ContextualLoggingEventRecorder) WithContext(ctx context.Context) events.Recorder {
	newRecorder := *r
	newRecorder.ctx = ctx
	return &newRecorder
}

func (r *ContextualLoggingEventRecorder) ComponentName() string {
	return r.component
}

func (r *ContextualLoggingEventRecorder) ForComponent(component string) events.Recorder {
	newRecorder := *r
	newRecorder.component = component
	return &newRecorder
}

func (r *ContextualLoggingEventRecorder) WithComponentSuffix(suffix string) events.Recorder {
	return r.ForComponent(fmt.Sprintf("%s-%s", r.ComponentName(), suffix))
}

func (r *ContextualLoggingEventRecorder) Shutdown() {}

func (r *ContextualLoggingEventRecorder) Event(reason, message string) {
	klog.FromContext(r.ctx).V(2).Info(message, "component", r.component, "reason", reason)
}

func (r *ContextualLoggingEventRecorder) Eventf(reason, messageFmt string, args ...interface{}) {
	r.Event(reason, fmt.Sprintf(messageFmt, args...))
}

func (r *ContextualLoggingEventRecorder) Warning(reason, message string) {
	klog.FromContext(r.ctx).Info("Warning: "+message, "component", r.component, "reason", reason)

	r.warnings.lock.Lock()
	defer r.warnings.lock.Unlock()
	r.warnings.messages = append(r.warnings.messages, fmt.Sprintf("%s: %s", reason, message))
}

func (r *ContextualLoggingEventRecorder) Warningf(reason, messageFmt string, args ...interface{}) {
	r.Warning(reason, fmt.Sprintf(messageFmt, args...))
}

// Warnings returns the warnings recorded by this recorder and every recorder derived from it.
func (r *ContextualLoggingEventRecorder) Warnings() []string {
	r.warnings.lock.Lock()
	defer r.warnings.lock.Unlock()
	return append([]string(nil), r.warnings.messages...)
}
