// Package ordered implements the keyed ordered dispatch executor described
// in the networking core's concurrency model: a fixed pool of worker
// goroutines, tasks routed by key % workerCount, each worker draining its
// own single-consumer queue so that every task submitted with the same key
// runs on the same worker in submission order, while different keys run
// concurrently across workers.
//
// Each per-worker queue is a lock-free MPSC queue: unbounded, lock-free
// push from many producer goroutines, single consumer goroutine draining
// it via a channel.
package ordered
