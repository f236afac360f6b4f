/*
Package observability provides tools for monitoring councils.

It includes Prometheus metrics fed by the manager's lifecycle hooks and a
helper to fan a single hook set out to several observers (metrics, the SSE
stream, audit logging).
*/
package observability
