// Package notify delivers raised alerts to the enabled channels: chat
// webhooks (embed-style payload), a generic JSON webhook, and an email
// placeholder. Channels come from the environment at process start.
// Deliveries for one alert run concurrently and settle as a batch;
// failures are logged per channel and never reach the caller. There is no
// retry: a failed delivery is logged and lost.
package notify
