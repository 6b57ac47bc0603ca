// Package httputil holds the JSON response and request helpers shared by the
// API handlers. Errors use one envelope, {"error", "code", "details"}, so
// clients can branch on code without parsing messages.
package httputil
