package domain

import "time"

// EffectType names a side-effect requested by the state machine.
type EffectType string

const (
	// EffectJoinAgent asks the host to run the join handshake with Agent.
	EffectJoinAgent EffectType = "join_agent"

	// EffectFetchEvidence asks the host to fetch Request within the size limit.
	EffectFetchEvidence EffectType = "fetch_evidence"

	// EffectPromptAgent asks the host to send Prompt to Agent and await its reply.
	EffectPromptAgent EffectType = "prompt_agent"

	// EffectSynthesize asks the host to reduce Messages and Evidence into a Result.
	EffectSynthesize EffectType = "synthesize"

	// EffectArmPhaseTimer asks the host to fire PhaseTimeout(Phase) after After.
	EffectArmPhaseTimer EffectType = "arm_phase_timer"

	// EffectArmAgentTimer asks the host to fire AgentFailed(Agent, timeout) after After.
	EffectArmAgentTimer EffectType = "arm_agent_timer"

	// EffectAbort asks the host to cancel in-flight calls and timers. Emitted on terminal status.
	EffectAbort EffectType = "abort"
)

// Effect is a side-effect the host performs on behalf of the state machine.
// The machine never calls adapters itself.
type Effect struct {
	Type     EffectType
	Agent    string
	Request  EvidenceRequest
	Prompt   Prompt
	Phase    Status
	After    time.Duration
	Messages []Message
	Evidence map[string]EvidenceRecord
}
