// Package models defines the core domain entities of the rotation engine.
//
// # Entities
//
//   - ROSCA: a rotating savings circle with a fixed pool, contribution
//     amount, frequency, and participant cap
//   - Participation: one user's membership and rotation position in a ROSCA
//   - Payment: a single money movement (contribution into the pool, or
//     payout from it) for one round
//   - Notification: a lifecycle or payment event queued for delivery
//
// # Design Principles
//
//  1. All monetary amounts are int64 microAlgos (1 Algo = 1,000,000
//     microAlgos). Integer arithmetic keeps the pool invariant
//     (contribution * participants == total) exact.
//  2. Entities reference each other by ID string, never by pointer, to
//     avoid circular references and accidental shared mutation.
//  3. Mutable entity state lives only in the ledger store; everything
//     else holds identifiers and asks the store.
package models
