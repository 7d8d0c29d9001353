// Package wire defines the message format shared by the time authority and
// its clients: a fixed three-field record addressed by an integer tag, plus
// the tag constants and selectors used for selective receive.
//
// It is intended for internal use by timeserver only.
package wire

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Tag identifies the kind of a Message. Numeric values are part of the wire
// contract shared with out-of-tree clients and must not be renumbered.
type Tag int64

const (
	NONE       Tag = 0
	REGISTER   Tag = 1
	UNREGISTER Tag = 2
	PID        Tag = 3
	TIMEOUT    Tag = 4
	RUN        Tag = 5
	NOTRUNNING Tag = 1000

	QUERY  Tag = 1001
	SLEEP  Tag = 1002
	CANCEL Tag = 1003
	TOSERVER Tag = 2000

	CLIENTID Tag = 2001
	TIME     Tag = 2002

	// wakeBase is the first tag in the WAKE(c) family; WAKE(c) = wakeBase + c.
	wakeBase Tag = 3000
)

// Payload sentinels carried in a RUN message's Time field.
const (
	NEXTSLEEP int64 = -1
	NEXTWAKE  int64 = -2
)

// MaxClients bounds the WAKE(c) tag space and the client registry size.
const MaxClients = 200

// WAKE returns the reply tag used to wake client c.
func WAKE(c int64) Tag { return wakeBase + Tag(c) }

// IsWake reports whether t is a WAKE(c) tag, returning c when it is.
func IsWake(t Tag) (c int64, ok bool) {
	if t >= wakeBase && t < wakeBase+MaxClients {
		return int64(t - wakeBase), true
	}
	return 0, false
}

func (t Tag) String() string {
	switch t {
	case NONE:
		return "NONE"
	case REGISTER:
		return "REGISTER"
	case UNREGISTER:
		return "UNREGISTER"
	case PID:
		return "PID"
	case TIMEOUT:
		return "TIMEOUT"
	case RUN:
		return "RUN"
	case QUERY:
		return "QUERY"
	case SLEEP:
		return "SLEEP"
	case CANCEL:
		return "CANCEL"
	case CLIENTID:
		return "CLIENTID"
	case TIME:
		return "TIME"
	default:
		if c, ok := IsWake(t); ok {
			return fmt.Sprintf("WAKE(%d)", c)
		}
		return fmt.Sprintf("TAG(%d)", int64(t))
	}
}

// Message is the record exchanged between clients and the authority. Only
// Tag is used for bus routing and selective receive; Client and Time are
// opaque payload whose meaning depends on Tag.
type Message struct {
	Tag    Tag
	Client int64
	Time   int64
}

// Selector restricts Recv/TryRecv to a subset of tags. It mirrors the
// "exact tag" and "any tag below N" primitives the original message queue
// needed for selective receive.
type Selector struct {
	below Tag
	exact Tag
	kind  selectorKind
}

type selectorKind int

const (
	kindBelow selectorKind = iota
	kindExact
)

// Below selects any message whose tag is strictly less than n.
func Below(n Tag) Selector { return Selector{below: n, kind: kindBelow} }

// Exact selects only messages with the given tag.
func Exact(t Tag) Selector { return Selector{exact: t, kind: kindExact} }

// NotRunning selects the out-of-band tags accepted while no run is active:
// REGISTER, UNREGISTER, PID, RUN, TIMEOUT.
func NotRunning() Selector { return Below(NOTRUNNING) }

// ToServer selects every inbound tag: NotRunning's set plus QUERY, SLEEP,
// CANCEL.
func ToServer() Selector { return Below(TOSERVER) }

// Match reports whether t satisfies the selector.
func (s Selector) Match(t Tag) bool {
	switch s.kind {
	case kindExact:
		return t == s.exact
	default:
		return t < s.below
	}
}

// frameSize is the wire size of a Message: three little-endian int64s,
// mirroring the three-`long` struct the original queue record used.
const frameSize = 24

// Encode writes a Message to w in fixed binary form.
func Encode(w io.Writer, m Message) error {
	var buf [frameSize]byte
	binary.LittleEndian.PutUint64(buf[0:8], uint64(m.Tag))
	binary.LittleEndian.PutUint64(buf[8:16], uint64(m.Client))
	binary.LittleEndian.PutUint64(buf[16:24], uint64(m.Time))
	_, err := w.Write(buf[:])
	return err
}

// Decode reads a single Message from r.
func Decode(r io.Reader) (Message, error) {
	var buf [frameSize]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return Message{}, err
	}
	return Message{
		Tag:    Tag(binary.LittleEndian.Uint64(buf[0:8])),
		Client: int64(binary.LittleEndian.Uint64(buf[8:16])),
		Time:   int64(binary.LittleEndian.Uint64(buf[16:24])),
	}, nil
}
