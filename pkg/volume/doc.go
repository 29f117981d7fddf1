/*
Package volume exposes the volume/dataset capability: create, enumerate,
resize, destroy, and transfer (push/handoff) of the locally-owned copies of
datasets.

LocalService implements the capability with a directory-per-dataset pool and
rsync-based transfer to peers. MemoryService is the in-memory fake used by
tests; it records transfers instead of moving bytes.
*/
package volume
