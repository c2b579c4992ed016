// Package cunner is a pluggable blockchain node. A Peer joins a gossip
// network (libp2p in production, an in memory network in tests), hands every
// transaction it hears to a consensus engine and persists what the engine
// produces.
//
// Engines form a closed set, see consensus.Kind. The solo engine batches
// transactions into blocks on a timer. The avalanche engine runs a network of
// probabilistic voting nodes in process and reports each node's decision.
package cunner
