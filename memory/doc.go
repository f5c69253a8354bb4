// Package memory holds the conversation transcript of a single session.
//
// Model:
//   - A Transcript is an ordered, append-only sequence of Turns plus a fixed
//     system instruction. Turns are never edited, removed or reordered.
//   - The first turn is always the user's goal.
//   - Save/Load write an indented JSON audit export; sessions never read it back.
package memory
