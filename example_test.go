package council_test

import (
	"context"
	"fmt"
	"time"

	"github.com/aretw0/council/pkg/adapters/local"
	"github.com/aretw0/council/pkg/domain"
	"github.com/aretw0/council/pkg/session"
)

// A council of two local agents, run to completion.
func Example() {
	ctx := context.Background()
	mgr, err := session.NewManager(domain.DefaultLimits(),
		local.DefaultRoster(), local.NewEvidence(), local.NewSynthesizer(domain.SynthesisConsensus))
	if err != nil {
		panic(err)
	}
	defer mgr.Shutdown(ctx)

	id, err := mgr.CreateSession(ctx, []string{"architect", "critic"}, domain.SessionConfig{
		Topic:        "split the billing service",
		SkipEvidence: true,
	})
	if err != nil {
		panic(err)
	}

	var snap *domain.CouncilSession
	for range 200 {
		snap, _ = mgr.GetSnapshot(ctx, id)
		if snap.Status.IsTerminal() {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	for _, t := range snap.TransitionLog {
		fmt.Printf("%s -> %s (%s)\n", t.From, t.To, t.Reason)
	}
	fmt.Println("contributors:", snap.Result.Contributors)
	// Output:
	// pending -> gathering (joined)
	// gathering -> deliberating (evidence-skipped)
	// deliberating -> synthesizing (deliberation-complete)
	// synthesizing -> completed (synthesized)
	// contributors: [architect]
}
