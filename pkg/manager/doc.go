/*
Package manager implements the Zoe control plane manager node: a Raft-backed
replicated log in front of the embedded BoltDB execution state store.

# Architecture

	┌──────────────────── MANAGER NODE ────────────────────┐
	│                                                        │
	│  ┌──────────────────────────────────────────┐        │
	│  │              Manager                       │        │
	│  │  - Accepts Apply() calls from the facade, │        │
	│  │    scheduler and event ingest             │        │
	│  │  - Proposes Raft commands                 │        │
	│  └──────────────────┬─────────────────────────┘        │
	│                     │                                  │
	│  ┌──────────────────▼─────────────────────────┐        │
	│  │          Raft Consensus Layer              │        │
	│  │  - Leader election, log replication        │        │
	│  │  - ZoeFSM applies committed commands       │        │
	│  └──────────────────┬─────────────────────────┘        │
	│                     │                                  │
	│  ┌──────────────────▼─────────────────────────┐        │
	│  │              BoltDB Store                   │        │
	│  │  - Users, Executions, Services, Ports       │        │
	│  └──────────────────────────────────────────────┘        │
	└────────────────────────────────────────────────────────┘

Reads (the Get and List methods) go straight to the local BoltDB store, so they are
linearizable on the leader and only eventually consistent on a follower.
Writes always go through Apply, which proposes a Command to the Raft log;
once a quorum commits it, ZoeFSM.Apply mutates the local store.

# Clustering

Additional managers join an existing cluster by starting their own Raft
instance and POSTing a join request, carrying a token from
GenerateJoinToken, to the leader's `/cluster/join` API route; the leader
validates the token and calls AddVoter.
*/
package manager
