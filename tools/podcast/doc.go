// Package podcast implements the podcast assistant's tools: preferences,
// RSS episode discovery, relevance scoring, transcript and summary
// generation, the email digest and the reading list.
//
// Collaborators (HTTP, clock, model, mailer, sandbox) are injected through
// Service so every tool can be exercised without the network.
package podcast
