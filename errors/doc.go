// Package errors provides standardized error handling for the media connector.
//
// # Overview
//
// Every failure in the connector is scoped to a single tap or a single request.
// Nothing here is fatal to the process. The three classes describe what the
// caller should do next:
//
//   - Transient: a negotiation stall (target bind failed, peer not connected).
//     The tap keeps its state and is retried on the next format arrival.
//   - Invalid: the request itself was wrong (unknown pad template, format
//     declared twice, malformed caps string). No state is mutated.
//   - Fatal: a structural inconsistency for one tap (no converter behind the
//     announcing sink, missing negotiation state). Logged as an error, the
//     operation is aborted for that tap only.
//
// # Usage
//
// Wrap errors with the component and operation so logs read uniformly:
//
//	if err := pool.ReleaseOutput(sg, h); err != nil {
//	    return errors.Wrap(err, "Connector", "ReleasePad", "return output")
//	}
//
// Attach a class when the caller needs to branch on it:
//
//	return nil, errors.WrapInvalid(errors.ErrUnsupportedTemplate,
//	    "Connector", "RequestPad", "template lookup")
//
// And branch with the helpers, which understand both classified errors and the
// sentinels:
//
//	switch {
//	case errors.IsTransient(err):
//	    // leave tap untouched, next format arrival retries
//	case errors.IsFatal(err):
//	    logger.Error("structural inconsistency", "error", err)
//	}
//
// The package shadows the standard library name on purpose; import the standard
// package as stderrors where both are needed.
package errors
