// Package messaging publishes lifecycle notifications to redis streams:
// invitation events for the mailer, storage provisioning requests, and
// deletion notices. A nil return from Publish means the broker accepted the
// entry; everything past that point belongs to the consumers.
package messaging
