// Package overlay implements the node engine of the mate overlay network.
//
// A Node owns a routing table of contacts ordered by XOR distance, answers
// and issues iterative lookups, establishes contacts either directly or
// through a relaying contact when the target cannot be reached, and delivers
// acknowledged application messages. All protocol state lives on a single
// actor; inbound datagrams, timer expiries and API calls are posted to it.
package overlay
