// Package fanotify is a user-space substrate for the mediator. It marks
// mounts for FAN_OPEN_PERM and FAN_OPEN_EXEC_PERM, rebuilds a dentry chain
// from each event's path, runs the exec and file-open hooks, and answers
// the kernel with FAN_ALLOW or FAN_DENY.
//
// fanotify has no connect permission event; the connect hook is only
// reachable through the BPF LSM substrate or direct Mediate calls.
package fanotify
