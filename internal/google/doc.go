// Package google provides service-account authentication for Google APIs.
//
// slotbook acts as a single service account rather than on behalf of signed-in
// users. Credentials come either from an inline key pair (typically
// GOOGLE_SERVICE_ACCOUNT_EMAIL and GOOGLE_PRIVATE_KEY) or from a JSON key file,
// optionally impersonating a Workspace user through domain-wide delegation.
package google
