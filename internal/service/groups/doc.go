// Package groups owns the experiment-group lifecycle: callback-driven status
// transitions, VPO reconciliation, and the create/update surface with its
// duplicate-condition invariant. Every mutation loads one group, mutates the
// tree in place, and replaces the whole document.
package groups
