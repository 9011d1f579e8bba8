package protocol

import "strings"

const (
	// BatchSeparator prefixes every record of a message and follows the command keyword.
	BatchSeparator = ",M,"
	// SingleSeparator follows the keyword of a single-entity command inside a record.
	SingleSeparator = ",S,"
	// FieldSeparator separates the fields of one entity.
	FieldSeparator = ",P,"
	// TagSeparator separates a named attribute from its value.
	TagSeparator = ",T,"

	// MaxMessageLength is the exclusive upper bound, in bytes, of any message.
	MaxMessageLength = 4096

	// AckToken is the reply the worker writes once a command has been processed.
	AckToken = "received"
)

// Command is a protocol keyword.
type Command string

const (
	CmdStartDataDir    Command = "start neo4j path"
	CmdDeveloperMode   Command = "set developer mode"
	CmdChangeDataDir   Command = "change neo4j path"
	CmdExit            Command = "exit"
	CmdAnalyze         Command = "analyze and store results"
	CmdOpenAnalysis    Command = "open analysis window"
	CmdStartFullUpdate Command = "start full update"
	CmdAddElements     Command = "add elements"
	CmdAddConnectors   Command = "add connectors"
	CmdEndFullUpdate   Command = "end full update"
	CmdUpdate          Command = "update"
	CmdAddElement      Command = "add single element"
	CmdDeleteElement   Command = "delete single element"
	CmdUpdateElement   Command = "update single element"
	CmdAddConnector    Command = "add single connector"
	CmdDeleteConnector Command = "delete single connector"
	CmdUpdateConnector Command = "update single connector"
)

var singleCommands = map[Command]struct{}{
	CmdAddElement:      {},
	CmdDeleteElement:   {},
	CmdUpdateElement:   {},
	CmdAddConnector:    {},
	CmdDeleteConnector: {},
	CmdUpdateConnector: {},
}

// IsSingle reports whether c is one of the single-entity commands carried inside update
// records.
func (c Command) IsSingle() bool {
	_, ok := singleCommands[c]
	return ok
}

// ExpectsAck reports whether the worker acknowledges c. Only exit goes unanswered.
func (c Command) ExpectsAck() bool {
	return c != CmdExit
}

// Start returns the message prefix for c.
func Start(c Command) string {
	return string(c) + BatchSeparator
}

// StartSingle returns the record prefix for a single-entity command.
func StartSingle(c Command) string {
	return string(c) + SingleSeparator
}

// WithArgument builds a one-argument message such as the data directory handshake.
func WithArgument(c Command, arg string) string {
	return Start(c) + arg
}

// DataDirArgument normalizes a directory path for the worker, which expects forward slashes.
func DataDirArgument(dir string) string {
	return strings.ReplaceAll(dir, `\`, "/")
}

// ContainsAck reports whether a reply carries the acknowledgment token.
func ContainsAck(reply string) bool {
	return strings.Contains(reply, AckToken)
}
