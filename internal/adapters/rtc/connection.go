package rtc

import (
	"context"
	"encoding/json"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Beam/internal/core"
	"github.com/dkeye/Beam/internal/domain"
)

// Connection implements core.MediaTransport on a pion PeerConnection with
// trickle ICE: local descriptions are returned as soon as they are set and
// candidates stream through the OnLocalCandidate callback.
type Connection struct {
	pc  *webrtc.PeerConnection
	sid domain.SessionID

	onCandidate func(domain.CandidatePayload)
	onState     func(core.TransportState)
}

func DefaultConfig(stunServers []string) webrtc.Configuration {
	if len(stunServers) == 0 {
		stunServers = []string{"stun:stun.l.google.com:19302"}
	}
	return webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{
			{URLs: stunServers},
		},
	}
}

func NewConnection(cfg webrtc.Configuration, sid domain.SessionID) (*Connection, error) {
	pc, err := webrtc.NewPeerConnection(cfg)
	if err != nil {
		return nil, err
	}
	c := &Connection{pc: pc, sid: sid}

	pc.OnICECandidate(func(cand *webrtc.ICECandidate) {
		if cand == nil || c.onCandidate == nil {
			return
		}
		payload, err := json.Marshal(cand.ToJSON())
		if err != nil {
			log.Error().Err(err).Str("module", "webrtc").Str("sid", string(c.sid)).Msg("marshal candidate")
			return
		}
		c.onCandidate(payload)
	})

	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		log.Info().Str("module", "webrtc").Str("sid", string(c.sid)).Str("peer_connection_state", s.String()).Msg("Peer state")
		if c.onState == nil {
			return
		}
		switch s {
		case webrtc.PeerConnectionStateConnected:
			c.onState(core.TransportConnected)
		case webrtc.PeerConnectionStateFailed:
			c.onState(core.TransportFailed)
		case webrtc.PeerConnectionStateClosed:
			c.onState(core.TransportClosed)
		}
	})

	pc.OnICEConnectionStateChange(func(s webrtc.ICEConnectionState) {
		log.Info().Str("module", "webrtc").Str("sid", string(c.sid)).Str("ice_state", s.String()).Msg("ICE state")
	})

	return c, nil
}

// Factory builds one Connection per session with a shared configuration.
func Factory(cfg webrtc.Configuration) core.TransportFactory {
	return func(id domain.SessionID) (core.MediaTransport, error) {
		return NewConnection(cfg, id)
	}
}

func (c *Connection) CreateOffer(ctx context.Context) (domain.Description, error) {
	offer, err := c.pc.CreateOffer(nil)
	if err != nil {
		return domain.Description{}, err
	}
	if err := c.pc.SetLocalDescription(offer); err != nil {
		return domain.Description{}, err
	}
	return domain.Description{Type: offer.Type.String(), SDP: offer.SDP}, nil
}

func (c *Connection) ApplyRemoteDescription(ctx context.Context, desc domain.Description) error {
	return c.pc.SetRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.NewSDPType(desc.Type),
		SDP:  desc.SDP,
	})
}

func (c *Connection) CreateAnswer(ctx context.Context) (domain.Description, error) {
	answer, err := c.pc.CreateAnswer(nil)
	if err != nil {
		return domain.Description{}, err
	}
	if err := c.pc.SetLocalDescription(answer); err != nil {
		return domain.Description{}, err
	}
	return domain.Description{Type: answer.Type.String(), SDP: answer.SDP}, nil
}

func (c *Connection) AddRemoteCandidate(payload domain.CandidatePayload) error {
	var ci webrtc.ICECandidateInit
	if err := json.Unmarshal(payload, &ci); err != nil {
		return err
	}
	return c.pc.AddICECandidate(ci)
}

func (c *Connection) OnLocalCandidate(fn func(domain.CandidatePayload)) {
	c.onCandidate = fn
}

func (c *Connection) OnStateChange(fn func(core.TransportState)) {
	c.onState = fn
}

func (c *Connection) Close() {
	if err := c.pc.Close(); err != nil {
		log.Error().Err(err).Str("module", "webrtc").Str("sid", string(c.sid)).Msg("close error")
		return
	}
	log.Info().Str("module", "webrtc").Str("sid", string(c.sid)).Msg("closed")
}
