// Package rules compiles declarative observers from CUE.
//
// A rule file declares the initial state, a `state: _` placeholder that rule
// expressions read from, and a set of named rules:
//
//	state: _
//
//	initial: cart: {items: [], count: 0}
//
//	rules: {
//	    cartCount: {
//	        kind:  "mutable"
//	        watch: ["cart.items"]
//	        emit: cart: count: len(state.cart.items)
//	    }
//	    noNegative: {
//	        kind:      "plain"
//	        watch:     ["cart.count"]
//	        fail_when: state.cart.count < 0
//	        message:   "count went negative"
//	    }
//	}
//
// Each rule becomes one observer keyed by its name, registered in declaration
// order. Expressions are evaluated against the store state passed to the
// callback by filling `state` and reading the rule's field back.
//
// Rule kinds:
//   - mutable: emit is returned as the callback's delta
//   - async: emit is applied later through a separate Update
//   - plain: the callback fails with message when fail_when evaluates true
//
// Optional fields: watch (paths; none means the rule fires on every
// dispatch), init (mutable only; also run the rule as a mutable initializer)
// and seed (merged into state when the rule's observer is registered).
package rules
