/*
Package tracing tags each REST request with a trace ID and logs one span per
request.

A caller may supply X-Trace-ID to correlate its own logs with the server's;
otherwise a fresh ID is minted. The ID is echoed in the response header and
stored on the request context, where the request logger picks it up.

Spans are handed to a buffered collector goroutine so request handling never
waits on logging. When the buffer is full the span is dropped.

	tracer := tracing.New("termhub", logger)
	defer tracer.Close()
	router.Use(tracing.HTTPMiddleware(tracer))
*/
package tracing
