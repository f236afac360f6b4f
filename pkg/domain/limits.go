package domain

import (
	"fmt"
	"time"
)

// Limits bounds every council run by a Manager. It is read once at construction
// and passed by value; changing it requires a new Manager.
type Limits struct {
	CouncilTimeout        time.Duration // Overall deadline per council
	MaxConcurrentCouncils int           // Non-terminal councils allowed at once
	AgentTimeout          time.Duration // Per-agent join and reply budget
	MaxAgentMessages      int           // Messages accepted per council
	EvidenceTimeout       time.Duration // Evidence phase budget
	MaxEvidenceSize       int64         // Bytes per artifact
	MaxParticipants       int
	ResultRetention       time.Duration // Grace period before a terminal council is evicted
}

// DefaultLimits mirrors the orchestrator's historical defaults.
func DefaultLimits() Limits {
	return Limits{
		CouncilTimeout:        10 * time.Minute,
		MaxConcurrentCouncils: 10,
		AgentTimeout:          30 * time.Second,
		MaxAgentMessages:      100,
		EvidenceTimeout:       60 * time.Second,
		MaxEvidenceSize:       10 * 1024 * 1024,
		MaxParticipants:       8,
		ResultRetention:       5 * time.Minute,
	}
}

// Validate reports the first unusable bound.
func (l Limits) Validate() error {
	switch {
	case l.CouncilTimeout <= 0:
		return fmt.Errorf("council timeout must be positive, got %v", l.CouncilTimeout)
	case l.MaxConcurrentCouncils <= 0:
		return fmt.Errorf("max concurrent councils must be positive, got %d", l.MaxConcurrentCouncils)
	case l.AgentTimeout <= 0:
		return fmt.Errorf("agent timeout must be positive, got %v", l.AgentTimeout)
	case l.MaxAgentMessages <= 0:
		return fmt.Errorf("max agent messages must be positive, got %d", l.MaxAgentMessages)
	case l.EvidenceTimeout <= 0:
		return fmt.Errorf("evidence timeout must be positive, got %v", l.EvidenceTimeout)
	case l.MaxEvidenceSize <= 0:
		return fmt.Errorf("max evidence size must be positive, got %d", l.MaxEvidenceSize)
	case l.MaxParticipants <= 0:
		return fmt.Errorf("max participants must be positive, got %d", l.MaxParticipants)
	case l.ResultRetention < 0:
		return fmt.Errorf("result retention must not be negative, got %v", l.ResultRetention)
	}
	return nil
}
