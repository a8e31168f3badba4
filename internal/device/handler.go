package device

import (
	"encoding/binary"

	"github.com/danmuck/thermoctl/internal/protocol"
	"github.com/danmuck/thermoctl/internal/protocol/chunk"
	"github.com/danmuck/thermoctl/internal/protocol/command"
	"github.com/rs/zerolog/log"
)

// MaxReadBody is the largest read body that fits one response frame.
const MaxReadBody = chunk.MaxFrame - command.HeaderLen

// Handler executes one reassembled request frame against Memory.
type Handler struct {
	mem *Memory
}

func NewHandler(mem *Memory) *Handler {
	return &Handler{mem: mem}
}

// Handle returns the encoded response frame for raw.
func (h *Handler) Handle(raw []byte) []byte {
	req, err := command.DecodeRequest(raw)
	if err != nil {
		log.Debug().Int("bytes", len(raw)).Msg("device: short request dropped")
		return nil
	}
	resp := command.Response{Op: req.Op, Status: protocol.StatusOK, ID: req.ID}
	region := command.Region(req.Tag)

	switch req.Op {
	case command.OpGetUpTime:
		resp.Body = binary.LittleEndian.AppendUint32(nil, h.mem.Uptime())
	case command.OpRead:
		offset, length, err := command.ReadArgs(req.Payload)
		if err != nil || int(length) > MaxReadBody || req.Tag > 1 {
			resp.Status = protocol.StatusOutOfBounds
			break
		}
		body, err := h.mem.Read(region, int(offset), int(length))
		if err != nil {
			resp.Status = protocol.StatusOutOfBounds
			break
		}
		log.Debug().Str("region", region.String()).Uint16("offset", offset).Uint16("size", length).Msg("device: read")
		resp.Body = body
	case command.OpWrite:
		offset, data, err := command.WriteArgs(req.Payload)
		if err != nil || req.Tag > 1 {
			resp.Status = protocol.StatusOutOfBounds
			break
		}
		if err := h.mem.Write(region, int(offset), data); err != nil {
			resp.Status = protocol.StatusOutOfBounds
			break
		}
		log.Debug().Str("region", region.String()).Uint16("offset", offset).Int("size", len(data)).Msg("device: write")
	case command.OpKeep:
		log.Warn().Msg("device: keep requested, config is not persisted")
	default:
		resp.Status = protocol.StatusUnknownCmd
	}
	return resp.Encode()
}
