// Package consensus defines the narrow capability contract between a cunner node
// and the consensus algorithm it runs. Concrete engines live in sub packages:
// avalanche implements leaderless probabilistic agreement on the validity of each
// transaction and solo periodically batches transactions into blocks.
package consensus
