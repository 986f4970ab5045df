// Package naming derives Kubernetes object names and labels for the
// resources the operator creates.
//
// Names are deterministic for a given owner and always satisfy the
// RFC 1035 label rules: at most 63 characters, lowercase alphanumerics
// and '-', starting with a letter and ending with an alphanumeric.
// The last 12 characters of the owner UID keep names of different owners
// apart, the remaining budget is filled with truncated human readable
// segments (user, app definition, identifier).
package naming
