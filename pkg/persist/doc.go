// Package persist provides the agent's durable node-local book-keeping:
// its own UUID and the dataset IDs it minted, stored in BoltDB.
package persist
