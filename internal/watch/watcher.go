// Package watch turns libvirt events into DomainEvent records and keeps
// the status of the domains it has seen.
package watch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/jbweber/virtloop/api/v1alpha1"
	"github.com/jbweber/virtloop/internal/hypervisor"
	"github.com/jbweber/virtloop/internal/libvirt"
	"github.com/jbweber/virtloop/internal/output"
	"github.com/jbweber/virtloop/internal/status"
)

// ErrConnectionClosed is returned by Run when the connection closes before
// the context is cancelled.
var ErrConnectionClosed = errors.New("connection closed")

// Watcher prints events from a client and tracks domain status.
type Watcher struct {
	client    *libvirt.Client
	formatter output.Formatter
	out       io.Writer
	log       zerolog.Logger

	mu          sync.Mutex
	seq         uint64
	domains     map[uuid.UUID]*v1alpha1.Domain
	ids         []int
	started     bool
	closed      chan struct{}
	closeReason hypervisor.CloseReason
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithLogger sets the watcher logger.
func WithLogger(l zerolog.Logger) Option {
	return func(w *Watcher) {
		w.log = l
	}
}

// New returns a Watcher that writes formatted events to out.
func New(client *libvirt.Client, formatter output.Formatter, out io.Writer, opts ...Option) *Watcher {
	w := &Watcher{
		client:    client,
		formatter: formatter,
		out:       out,
		log:       zerolog.Nop(),
		domains:   make(map[uuid.UUID]*v1alpha1.Domain),
		closed:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start registers callbacks for kinds. If names is not empty, domain events
// are limited to those domains; network and pool events are not filtered.
func (w *Watcher) Start(names []string, kinds []hypervisor.EventKind) error {
	if len(kinds) == 0 {
		return errors.New("no event kinds to watch")
	}

	targets := []*hypervisor.Domain{nil}
	if len(names) > 0 {
		targets = targets[:0]
		for _, name := range names {
			dom, err := w.client.LookupDomain(name)
			if err != nil {
				return fmt.Errorf("failed to look up domain %s: %w", name, err)
			}
			w.track(dom)
			targets = append(targets, &dom)
		}
	}

	if err := w.client.RegisterCloseCallback(nil, w.onClose); err != nil {
		return err
	}
	w.mu.Lock()
	w.started = true
	w.mu.Unlock()

	registered := 0
	for _, kind := range kinds {
		domainKind := kind == hypervisor.DomainLifecycle || kind == hypervisor.DomainReboot
		for _, target := range targets {
			var resource *uuid.UUID
			if domainKind && target != nil {
				resource = &target.UUID
			}
			id, err := w.client.RegisterEventCallback(kind, resource, nil, w.onEvent)
			if err != nil {
				_ = w.Stop()
				return err
			}
			w.mu.Lock()
			w.ids = append(w.ids, id)
			w.mu.Unlock()
			registered++
			if !domainKind {
				break
			}
		}
	}

	w.log.Info().Strs("domains", names).Int("callbacks", registered).Msg("watching")
	return nil
}

// Stop removes every callback Start registered.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	ids := w.ids
	w.ids = nil
	w.mu.Unlock()

	var errs []error
	for _, id := range ids {
		if err := w.client.DeregisterEventCallback(id); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Run blocks until ctx is done or the connection closes. Callbacks are
// removed before it returns.
func (w *Watcher) Run(ctx context.Context) error {
	w.mu.Lock()
	started := w.started
	w.mu.Unlock()

	// After Start, wait for the close callback so the reason is known.
	closed := w.client.Done()
	if started {
		closed = w.closed
	}

	select {
	case <-ctx.Done():
		if w.client.IsAlive() {
			return w.Stop()
		}
		return nil
	case <-closed:
	}

	if !started {
		return ErrConnectionClosed
	}
	w.mu.Lock()
	reason := w.closeReason
	w.mu.Unlock()
	return fmt.Errorf("%w: %s", ErrConnectionClosed, reason)
}

// Domains returns the tracked domains, sorted by name.
func (w *Watcher) Domains() []*v1alpha1.Domain {
	w.mu.Lock()
	defer w.mu.Unlock()

	out := make([]*v1alpha1.Domain, 0, len(w.domains))
	for _, d := range w.domains {
		out = append(out, d)
	}
	slices.SortFunc(out, func(a, b *v1alpha1.Domain) int {
		return strings.Compare(a.Name, b.Name)
	})
	return out
}

func (w *Watcher) track(dom hypervisor.Domain) *v1alpha1.Domain {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.trackLocked(dom)
}

func (w *Watcher) trackLocked(dom hypervisor.Domain) *v1alpha1.Domain {
	d, ok := w.domains[dom.UUID]
	if !ok {
		d = v1alpha1.NewDomain(dom.Name, dom.UUID)
		w.domains[dom.UUID] = d
	}
	return d
}

func (w *Watcher) onClose(_ *libvirt.Client, reason hypervisor.CloseReason, _ any) {
	w.log.Warn().Stringer("reason", reason).Msg("connection closed")
	w.mu.Lock()
	w.closeReason = reason
	w.mu.Unlock()
	close(w.closed)
}

// onEvent runs on the event loop's dispatcher goroutine.
func (w *Watcher) onEvent(_ *libvirt.Client, ev hypervisor.Event, _ any) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.seq++
	rec := w.recordLocked(ev)

	text, err := w.formatter.FormatEvent(rec)
	if err != nil {
		w.log.Error().Err(err).Msg("failed to format event")
		return
	}
	if _, err := io.WriteString(w.out, text); err != nil {
		w.log.Error().Err(err).Msg("failed to write event")
	}
}

func (w *Watcher) recordLocked(ev hypervisor.Event) *v1alpha1.DomainEvent {
	kind := ev.Kind().String()
	ref := v1alpha1.DomainReference{UUID: ev.Resource().String()}

	switch e := ev.(type) {
	case hypervisor.DomainLifecycleEvent:
		ref.Name = e.Domain.Name
		rec := v1alpha1.NewDomainEvent(w.seq, ref, kind)
		rec.Spec.Event = status.LifecycleEventName(e.Event)
		rec.Spec.Detail = status.LifecycleDetailName(e.Event, e.Detail)

		d := w.trackLocked(e.Domain)
		status.ApplyLifecycleEvent(d, e.Event, e.Detail)
		rec.Spec.Phase = d.GetPhase()
		return rec

	case hypervisor.DomainRebootEvent:
		ref.Name = e.Domain.Name
		rec := v1alpha1.NewDomainEvent(w.seq, ref, kind)
		rec.Spec.Event = "Rebooted"
		rec.Spec.Phase = w.trackLocked(e.Domain).GetPhase()
		return rec

	case hypervisor.NetworkLifecycleEvent:
		ref.Name = e.Network.Name
		rec := v1alpha1.NewDomainEvent(w.seq, ref, kind)
		rec.Spec.Event = status.NetworkEventName(e.Event)
		return rec

	case hypervisor.StoragePoolLifecycleEvent:
		ref.Name = e.Pool.Name
		rec := v1alpha1.NewDomainEvent(w.seq, ref, kind)
		rec.Spec.Event = status.StoragePoolEventName(e.Event)
		return rec
	}

	return v1alpha1.NewDomainEvent(w.seq, ref, kind)
}
