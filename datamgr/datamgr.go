package datamgr

import (
	"context"
	"fmt"
	"strings"

	"github.com/fedquery/fq/batch"
	"github.com/spaolacci/murmur3"
)

/*
Package datamgr defines the boundary between the execution core and the
connectors that reach external data sources. A leaf node hands the data
manager a fully resolved command and the name of the source it targets, and
receives a TupleSource: a pull-based stream of batches that obeys the same
contiguity and blocking rules as any other producer in a plan.
*/

////////////////////////////////////////////////////////////////////////////////

// Command is a fully resolved request against one source.
type Command struct {
	// Text is the source-specific command text.
	Text string `json:"text"`

	// Projected describes the columns of the rows the command returns.
	Projected batch.Schema `json:"projected,omitempty"`
}

// NewCommand constructs a new command.
func NewCommand(text string, projected batch.Schema) Command {
	return Command{Text: text, Projected: projected}
}

// Canonical returns the command text with runs of whitespace collapsed to a
// single space. Two commands with the same canonical text are the same
// request.
func (c Command) Canonical() string {
	return strings.Join(strings.Fields(c.Text), " ")
}

// Fingerprint returns a 64-bit hash of the canonical text.
func (c Command) Fingerprint() uint64 {
	return murmur3.Sum64([]byte(c.Canonical()))
}

// String returns a string representation of the command.
func (c Command) String() string {
	return c.Canonical()
}

// TupleSource is a stream of batches from a connector. NextBatch follows the
// producer contract: a Ready result carries the next contiguous batch, a
// Blocked result means the identical call must be retried later.
type TupleSource interface {
	NextBatch(ctx context.Context) (batch.Result, error)
	Close(ctx context.Context) error
}

// DataManager resolves leaf requests to tuple sources.
type DataManager interface {
	RegisterRequest(
		ctx context.Context,
		requestID string,
		command Command,
		sourceName string,
		nodeID int,
	) (TupleSource, error)
}

// UnknownSourceError is returned when a request names a source the data
// manager does not serve.
type UnknownSourceError struct {
	Source  string
	Command Command
}

// Error returns a string representation of the error.
func (e UnknownSourceError) Error() string {
	return fmt.Sprintf("detected query against invalid source %s: %s", e.Source, e.Command)
}

// Is returns true if the target error is an UnknownSourceError.
func (e UnknownSourceError) Is(target error) bool {
	_, ok := target.(UnknownSourceError)
	return ok
}

// UnknownCommandError is returned when a data manager has no data for a
// command.
type UnknownCommandError struct {
	Command Command
}

// Error returns a string representation of the error.
func (e UnknownCommandError) Error() string {
	return "unknown command: " + e.Command.String()
}

// Is returns true if the target error is an UnknownCommandError.
func (e UnknownCommandError) Is(target error) bool {
	_, ok := target.(UnknownCommandError)
	return ok
}
