package protocol

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/aretw0/cftbridge/pkg/domain"
)

// Codec frames records into messages bounded by a length ceiling.
// The zero value uses MaxMessageLength.
type Codec struct {
	// Limit is the exclusive message length bound in bytes.
	Limit int
}

// NewCodec returns a codec with the given ceiling; limit <= 0 selects MaxMessageLength.
func NewCodec(limit int) Codec {
	return Codec{Limit: limit}
}

func (c Codec) limit() int {
	if c.Limit <= 0 {
		return MaxMessageLength
	}
	return c.Limit
}

// Batch is one framed message and the number of leading records it consumed.
type Batch struct {
	Message string
	Count   int
}

// Batch frames as many leading records as fit under the ceiling. With withCount the head
// slot carries the number of records (the update command); otherwise it stays empty.
//
// A record is appended only if the resulting message stays strictly below the ceiling,
// counting the command prefix and the count digits. If not even the first record fits,
// Batch fails with a MessageTooLarge error and consumes nothing.
func (c Codec) Batch(cmd Command, records []string, withCount bool) (Batch, error) {
	if len(records) == 0 {
		return Batch{}, domain.NewError(domain.KindEmpty, "batch", "no records to frame", nil)
	}

	prefix := Start(cmd)
	limit := c.limit()
	size := len(prefix)
	n := 0

	for n < len(records) {
		head := 0
		if withCount {
			head = len(strconv.Itoa(n + 1))
		}
		if size+head+len(BatchSeparator)+len(records[n]) >= limit {
			break
		}
		size += len(BatchSeparator) + len(records[n])
		n++
	}

	if n == 0 {
		return Batch{}, domain.NewError(domain.KindMessageTooLarge, "batch",
			fmt.Sprintf("%s record of %d bytes does not fit under %d bytes", cmd, len(records[0]), limit), nil)
	}

	var b strings.Builder
	b.Grow(size + 8)
	b.WriteString(prefix)
	if withCount {
		b.WriteString(strconv.Itoa(n))
	}
	for _, r := range records[:n] {
		b.WriteString(BatchSeparator)
		b.WriteString(r)
	}
	return Batch{Message: b.String(), Count: n}, nil
}

// BatchAll frames every record, in order, into as many messages as needed.
func (c Codec) BatchAll(cmd Command, records []string, withCount bool) ([]string, error) {
	var out []string
	for len(records) > 0 {
		b, err := c.Batch(cmd, records, withCount)
		if err != nil {
			return out, err
		}
		out = append(out, b.Message)
		records = records[b.Count:]
	}
	return out, nil
}

// Message is a decoded protocol message.
type Message struct {
	Command Command
	// Head is the slot after the command: a count, an argument, or empty.
	Head    string
	Records []string
}

// Count returns the record count carried in the head slot.
func (m Message) Count() (int, bool) {
	n, err := strconv.Atoi(m.Head)
	return n, err == nil
}

// Encode renders m. Encode(Decode(x)) == x for every message produced by this package.
func (m Message) Encode() string {
	var b strings.Builder
	b.WriteString(Start(m.Command))
	b.WriteString(m.Head)
	for _, r := range m.Records {
		b.WriteString(BatchSeparator)
		b.WriteString(r)
	}
	return b.String()
}

// Decode parses a message. An update whose count disagrees with its records is a protocol
// violation.
func Decode(msg string) (Message, error) {
	parts := strings.Split(msg, BatchSeparator)
	if len(parts) < 2 || parts[0] == "" {
		return Message{}, domain.NewError(domain.KindProtocolViolation, "decode", fmt.Sprintf("malformed message %q", truncate(msg)), nil)
	}

	m := Message{Command: Command(parts[0]), Head: parts[1]}
	if len(parts) > 2 {
		m.Records = parts[2:]
	}

	if m.Command == CmdUpdate {
		n, ok := m.Count()
		if !ok || n != len(m.Records) {
			return m, domain.NewError(domain.KindProtocolViolation, "decode",
				fmt.Sprintf("update announces %q records but carries %d", m.Head, len(m.Records)), nil)
		}
	}
	return m, nil
}

// Tag is a named attribute attached to an entity record.
type Tag struct {
	Key   string
	Value string
}

// Record is a decoded entity record. Command is empty for full-update records.
type Record struct {
	Command Command
	Fields  []string
	Tag     *Tag
}

// ID returns the entity id field.
func (r Record) ID() string {
	if len(r.Fields) == 0 {
		return ""
	}
	return r.Fields[0]
}

// DecodeRecord parses an entity record with or without a single-entity command prefix.
func DecodeRecord(rec string) (Record, error) {
	var r Record
	payload := rec
	if cmd, rest, ok := strings.Cut(rec, SingleSeparator); ok {
		r.Command = Command(cmd)
		if !r.Command.IsSingle() {
			return r, domain.NewError(domain.KindProtocolViolation, "decode record", fmt.Sprintf("unknown command %q", cmd), nil)
		}
		payload = rest
	}

	for _, f := range strings.Split(payload, FieldSeparator) {
		if k, v, ok := strings.Cut(f, TagSeparator); ok {
			r.Tag = &Tag{Key: k, Value: v}
			continue
		}
		r.Fields = append(r.Fields, f)
	}
	if len(r.Fields) < 4 {
		return r, domain.NewError(domain.KindProtocolViolation, "decode record", fmt.Sprintf("record %q has %d fields", truncate(rec), len(r.Fields)), nil)
	}
	return r, nil
}

func truncate(s string) string {
	if len(s) > 64 {
		return s[:64] + "..."
	}
	return s
}
