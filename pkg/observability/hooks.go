package observability

import (
	"context"
	"time"

	"github.com/aretw0/council/pkg/domain"
)

// Combine fans every callback out to each hook set, in order. Nil callbacks are skipped.
func Combine(sets ...domain.LifecycleHooks) domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnCreate: func(ctx context.Context, s domain.Summary) {
			for _, h := range sets {
				if h.OnCreate != nil {
					h.OnCreate(ctx, s)
				}
			}
		},
		OnTransition: func(ctx context.Context, ev *domain.TransitionEvent) {
			for _, h := range sets {
				if h.OnTransition != nil {
					h.OnTransition(ctx, ev)
				}
			}
		},
		OnApply: func(ctx context.Context, id string, ev domain.Event, status domain.Status) {
			for _, h := range sets {
				if h.OnApply != nil {
					h.OnApply(ctx, id, ev, status)
				}
			}
		},
		OnReject: func(ctx context.Context, id string, ev domain.Event, err error) {
			for _, h := range sets {
				if h.OnReject != nil {
					h.OnReject(ctx, id, ev, err)
				}
			}
		},
		OnEvict: func(ctx context.Context, id string, age time.Duration) {
			for _, h := range sets {
				if h.OnEvict != nil {
					h.OnEvict(ctx, id, age)
				}
			}
		},
	}
}
