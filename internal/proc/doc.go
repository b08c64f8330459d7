// Package proc spawns external commands and terminates their whole process tree.
//
// On POSIX systems every spawned command becomes the leader of a new session, so
// a single signal delivered to its process group reaches every descendant that
// did not deliberately leave the group. On Windows the tree is torn down with
// taskkill, which walks the parent/child relationship recorded by the kernel.
//
// Kill is idempotent. Only the first call can reach the operating system, and
// only while the process has not yet been reaped, which keeps a late kill (for
// example one issued from a termination signal handler) from hitting an
// unrelated process that reused the identifier.
//
// Output is drained until every holder of the pipe has closed it. If a group
// member keeps it open longer than the wait delay after the leader exits, the
// rest of the group is terminated before the handle reports completion.
package proc
