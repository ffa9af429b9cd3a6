// adaptorlib - Enterprise Search Appliance adaptor core
// SPDX-License-Identifier: Apache-2.0

/*
Package middleware provides ambient HTTP middleware for the adaptor's
handlers: content requests, the SAML assertion consumer, and the batch
authorization endpoint. The Controller's router does not install
either middleware; handlers are wrapped by hand, as in the examples
below. PrometheusMetrics registers its collectors with the Prometheus
default registry, not the Controller's private registry, so its
metrics are not served on the Controller's /metrics endpoint.

# Key Components

  - RequestID: UUID-based request tracking for structured logging
  - PrometheusMetrics: request duration and in-flight count instrumentation

# Middleware Stack

A typical handler is wrapped outside-in:

	http.HandleFunc(cfg.Server.DocIdPath,
	    middleware.RequestID(
	        middleware.PrometheusMetrics(
	            docHandler.ServeHTTP, // docHandler is a *dochandler.Handler
	        ),
	    ),
	)

# Usage Example

	http.HandleFunc("/samlassertionconsumer",
	    middleware.RequestID(middleware.PrometheusMetrics(samlHandler.AssertionConsumer())),
	)

	func handler(w http.ResponseWriter, r *http.Request) {
	    requestID := middleware.GetRequestID(r.Context())
	    log.Info().Str("request_id", requestID).Msg("handling request")
	}

# Thread Safety

Both middleware are safe for concurrent use: RequestID only touches
context.Context (immutable) and response headers scoped to the current
request; PrometheusMetrics uses the prometheus client's own internal
synchronization.

# See Also

  - internal/logging: structured logger populated with the request ID
  - internal/dochandler: the content handler this middleware can wrap
*/
package middleware
