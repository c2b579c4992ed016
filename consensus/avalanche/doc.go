/*
Package avalanche implements leaderless binary consensus on the validity of
transactions.

Every node holds its own opinion, or color, for each transaction it knows of.
A node that first learns of a transaction either verifies it itself, when the
transaction was submitted to it, or adopts the color of the peer that queried
it. It then repeatedly queries a small random sample of peers. Once enough
responses in the current epoch agree on a color the node counts a quorum,
which raises its confidence in that color and may flip its opinion. A long
enough streak of quorums for the same color advances the epoch, and after
MaxEpochs advances the decision is final and never revisited.

Nodes never share state. They are connected by a Network which owns a single
queue of messages and hands them to nodes one at a time, so that cascades of
queries never recurse.
*/
package avalanche
