// Package trigger is the push-style ingestor: HTTP and Kafka triggers are
// decoded into message requests and dispatched synchronously.
package trigger
