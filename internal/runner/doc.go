// Package runner drives the tool-calling loop for one goal at a time.
//
// States:
//
//	awaiting_model -> executing_tool -> awaiting_model ... -> done
//	                                                      -> budget_exhausted
//	                                                      -> protocol_error
//	                                                      -> cancelled | model_error
//
// Invariants:
//   - The transcript is append-only; a model turn is always followed by one
//     outcome turn per requested call, in request order.
//   - The iteration counter never exceeds the configured ceiling.
//   - Tool failures are data for the model; only protocol and model-call
//     failures end a run with an error.
package runner
