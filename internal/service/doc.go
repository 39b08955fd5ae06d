// Package service contains the application use cases in front of the
// stores: admitting new insight jobs and the read paths for jobs and
// their artifacts.
//
// Admission is the write-side gatekeeper. It enforces the
// one-active-job-per-user rule and the daily quota, persists the job
// and its task metadata in one transaction, and hands the job to the
// queue dispatcher. The read paths scope every lookup to the
// requesting user.
//
// Services return sentinel errors for expected conditions and wrap
// unexpected failures in ServiceError; the API layer translates both
// into status codes with errors.Is. The service layer depends on
// domain entities and the store interfaces, never on a concrete
// database or queue implementation.
package service
