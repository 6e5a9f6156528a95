// Package checks reduces commit statuses and check runs into a single
// combined status for a Git reference.
//
// Everything in this package is pure: no I/O, no shared state. The API
// client decodes remote payloads into [StatusItem] and [CheckRun] values,
// and [Aggregate] turns them into a [Combined] view.
//
// The main components are:
//
//   - [Status] and [Conclusion]: closed enums mirroring the check run API
//   - [RefCheck]: a legacy status or a check run, unified under one shape
//   - [Combined]: the overall status/conclusion plus the detailed checks
//   - [Combine]: the precedence rules (failure beats success beats pending)
package checks
