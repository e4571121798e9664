// Package api serves the homedock HTTP API: app deployment, installed
// apps and the live state stream.
package api
