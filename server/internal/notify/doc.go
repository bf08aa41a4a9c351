// Package notify delivers fire-and-forget notifications.
//
// A Dispatcher owns a bounded queue drained by a worker pool. Each message
// goes to every configured Sink (SMTP email, Slack/Teams/HTTP webhooks) with
// per-sink retries; failures are logged and counted, never returned to the
// code that produced the message.
package notify
