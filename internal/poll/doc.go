// Package poll implements the periodic fetch ingestor: on a schedule it GETs
// one pending item from a remote endpoint and hands it to the dispatcher.
package poll
