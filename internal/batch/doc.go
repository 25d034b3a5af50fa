// Package batch loads YAML manifests describing several commands and runs them
// concurrently through the shell executor, reporting results in manifest order.
package batch
