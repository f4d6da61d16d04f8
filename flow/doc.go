// Package flow defines the state-machine contract for durable runs.
//
// A flow is an explicit state machine: a pure transition function maps a
// serializable state and an incoming event to a transition result — a new
// state, a continuation decision, and the list of persistence actions that
// must commit atomically before the run moves on. The transition function
// decides; it never executes. Execution belongs to the transition package.
//
// # Defining a Flow
//
//	var Settlement = &flow.Definition[SettleState]{
//	    Name: "settle",
//	    Step: func(ctx context.Context, st *SettleState, ev flow.Event) (flow.Result, error) {
//	        switch ev.Kind {
//	        case flow.EventStart:
//	            return flow.Result{Decision: flow.Suspend("payment." + st.TradeID)}, nil
//	        case flow.EventSignal:
//	            st.Paid = true
//	            return flow.Result{
//	                Decision: flow.Complete(),
//	                Records:  []record.Record{{Key: st.TradeID, Payload: ev.Payload}},
//	            }, nil
//	        }
//	        return flow.Result{Decision: flow.Continue()}, nil
//	    },
//	}
//
// # Continuation Decisions
//
// A transition ends with exactly one decision:
//
//   - continue — keep processing mailbox events
//   - suspend  — park on a wait key (optionally with a wake deadline),
//     releasing the worker
//   - abort    — halt the run; the checkpoint stays, marked errored
//   - remove   — delete the checkpoint and forget the run
//
// # Key Types
//
//   - [State] — the serializable machine state persisted in checkpoints
//   - [Event] — start, signal, wake, or retry
//   - [Decision] / [Result] — what a transition function returns
//   - [TransitionResult] — machine-level output: new state plus actions
//   - [Definition] — typed flow descriptor registered with a [Registry]
package flow
