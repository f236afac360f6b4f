/*
Package domain contains the core domain models of the Council lifecycle manager.

It defines the aggregate root (CouncilSession), the status enum and its terminal
set, the events that drive a session and the effects the state machine asks the
host to perform. This package is kept pure and free of I/O, following Hexagonal
Architecture principles: adapters and the manager depend on it, never the reverse.

# Key Entities

  - CouncilSession: The snapshot of a single Council (status, participants, messages, evidence, result).
  - Event: An input to the state machine (join ack, agent message, timer fired, cancel...).
  - Effect: A side-effect requested by the state machine (join an agent, fetch evidence, synthesize...).
  - TransitionRecord: One audited status change, carrying a machine-readable Reason.
*/
package domain
