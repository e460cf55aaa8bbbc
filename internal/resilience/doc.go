// Package resilience groups the fault tolerance helpers used around outbound delivery transports.
//
// Subpackages:
//   - circuitbreaker: gobreaker wrappers, one breaker per external provider (mail, SMS, chat-app)
//   - retry: bounded exponential backoff for transient transport failures inside a single attempt
//
// Queue level retries (RETRY rows with next_retry_at) are a separate mechanism owned by the queue
// worker; the helpers here only smooth over short blips during one provider call.
//
//	cb := circuitbreaker.New(circuitbreaker.SMSConfig())
//	_, err := cb.Execute(func() (interface{}, error) {
//	    return client.Send(ctx, to, body)
//	})
package resilience
