// Package shutdown coordinates graceful process teardown: it waits for
// SIGINT or SIGTERM (or a programmatic trigger on fatal errors), then
// runs registered cleanup hooks in reverse registration order under a
// shared deadline.
package shutdown
