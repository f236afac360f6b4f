/*
Package ports defines the driven ports (interfaces) of the Council lifecycle manager.

These interfaces decouple the manager from external implementations: the agents,
evidence providers and synthesis engines a council talks to, the clock that drives
its timers, and the optional stores and lockers used around it.

# Key Interfaces

  - AgentAdapter: Join handshake and prompt/reply exchange with a single agent.
  - EvidenceProvider: Fetches one evidence artifact within a size and time budget.
  - Synthesizer: Reduces agent messages and evidence into a final result.
  - Clock: Supplies time and schedules timer callbacks.
  - ArchiveStore: Keeps evicted councils available for later retrieval.
  - DistributedLocker: Coordinates event application across replicas.
*/
package ports
