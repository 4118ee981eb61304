// Package domain defines the core models of the checkpoint engine.
//
// Models here are plain values without IO dependencies:
//
//   - Identities: Badge, Kcap, DataspaceID, SessionKind
//   - Stored state: the checkpoint-side mirror of every live resource session
//     (State and the Stored* records), updated in place each cycle
//   - Snapshot: the committed view handed to the restorer
//   - CopyTask: one unit of memory-copy work
//   - Errors: coded domain errors shared by all layers
package domain
