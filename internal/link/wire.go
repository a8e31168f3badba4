package link

import (
	"errors"
	"fmt"
	"io"
)

// GATT-over-TCP wire shared by netlink and the device simulator.
// Message: [op:1][len:1][data:len]. Reply: [status:1][len:1][data:len].

const (
	OpResolve byte = 1
	OpWrite   byte = 2
	OpRead    byte = 3

	ReplyOK              byte = 0
	ReplyInvalidLength   byte = 1
	ReplyNotAllowed      byte = 2
	ReplyUnknownEndpoint byte = 3
	ReplyNotResolved     byte = 4
	ReplyUnknownOp       byte = 5

	maxWireData = 255
)

var ErrWireTooLarge = errors.New("link: wire message too large")

// Message is one op or reply on the wire.
type Message struct {
	Code byte
	Data []byte
}

func WriteMessage(w io.Writer, m Message) error {
	if len(m.Data) > maxWireData {
		return ErrWireTooLarge
	}
	buf := make([]byte, 2+len(m.Data))
	buf[0] = m.Code
	buf[1] = byte(len(m.Data))
	copy(buf[2:], m.Data)
	_, err := w.Write(buf)
	return err
}

func ReadMessage(r io.Reader) (Message, error) {
	var head [2]byte
	if _, err := io.ReadFull(r, head[:]); err != nil {
		return Message{}, err
	}
	data := make([]byte, head[1])
	if head[1] > 0 {
		if _, err := io.ReadFull(r, data); err != nil {
			return Message{}, err
		}
	}
	return Message{Code: head[0], Data: data}, nil
}

// ReplyError maps a non-OK reply status onto an error.
func ReplyError(status byte) error {
	switch status {
	case ReplyOK:
		return nil
	case ReplyInvalidLength:
		return errors.New("link: invalid attribute length")
	case ReplyNotAllowed:
		return errors.New("link: value not allowed")
	case ReplyUnknownEndpoint:
		return ErrEndpointNotFound
	case ReplyNotResolved:
		return ErrNotConnected
	default:
		return fmt.Errorf("link: reply status %d", status)
	}
}
