package main

import (
	"context"
	"encoding/json"
	"flag"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/pion/rtp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/pr-poehali-dev/video-viewing-app/internal/adapters/media"
	"github.com/pr-poehali-dev/video-viewing-app/internal/adapters/rtc"
	signalws "github.com/pr-poehali-dev/video-viewing-app/internal/adapters/signal"
	"github.com/pr-poehali-dev/video-viewing-app/internal/core"
	"github.com/pr-poehali-dev/video-viewing-app/internal/domain"
	"github.com/pr-poehali-dev/video-viewing-app/internal/voice"
)

// udpCapture reads RTP pushed to a local UDP port, e.g. from ffmpeg or
// gstreamer encoding the microphone to opus.
type udpCapture struct {
	conn *net.UDPConn
	buf  []byte
}

func openUDPCapture(addr string) (media.PacketReader, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, err
	}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return nil, err
	}
	return &udpCapture{conn: conn, buf: make([]byte, 1500)}, nil
}

func (c *udpCapture) ReadRTP() (*rtp.Packet, error) {
	n, _, err := c.conn.ReadFrom(c.buf)
	if err != nil {
		return nil, err
	}
	pkt := &rtp.Packet{}
	if err := pkt.Unmarshal(c.buf[:n]); err != nil {
		return nil, err
	}
	return pkt, nil
}

func (c *udpCapture) Close() error { return c.conn.Close() }

func main() {
	serverURL := flag.String("server", "ws://localhost:8080/api/ws/signal", "signaling endpoint")
	roomKey := flag.String("room", "", "room id or invite code")
	name := flag.String("name", "go-participant", "display name")
	rtpAddr := flag.String("rtp", "127.0.0.1:5004", "local UDP port receiving opus RTP")
	flag.Parse()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	if *roomKey == "" {
		log.Fatal().Msg("-room is required")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	ch, err := signalws.DialChannel(ctx, *serverURL)
	if err != nil {
		log.Fatal().Err(err).Msg("signaling dial failed")
	}
	defer func() { _ = ch.Close() }()

	identity := make(chan domain.UserID, 1)
	roomState := make(chan []domain.UserID, 1)
	ch.OnRoomEvent(func(kind string, data []byte) {
		switch kind {
		case "whoami":
			var p struct {
				ID domain.UserID `json:"id"`
			}
			if json.Unmarshal(data, &p) == nil {
				select {
				case identity <- p.ID:
				default:
				}
			}
		case "room_state":
			var p struct {
				Room *domain.Room `json:"room"`
			}
			if json.Unmarshal(data, &p) == nil && p.Room != nil {
				peers := make([]domain.UserID, 0, len(p.Room.Members))
				for _, m := range p.Room.Members {
					if m.IsOnline {
						peers = append(peers, m.ID)
					}
				}
				select {
				case roomState <- peers:
				default:
				}
			}
		case "error":
			var p struct {
				Error string `json:"error"`
			}
			_ = json.Unmarshal(data, &p)
			log.Error().Str("reason", p.Error).Msg("server rejected command")
		default:
			log.Debug().Str("kind", kind).Msg("room event")
		}
	})

	if err := ch.RequestIdentity(); err != nil {
		log.Fatal().Err(err).Msg("identity request failed")
	}
	var uid domain.UserID
	select {
	case uid = <-identity:
	case <-ctx.Done():
		return
	}
	log.Info().Str("user", string(uid)).Msg("identity assigned")

	devices := media.NewDevices(func(ctx context.Context, opts core.CaptureOptions) (media.PacketReader, error) {
		return openUDPCapture(*rtpAddr)
	})
	mesh := voice.NewCoordinator(domain.RoomID(*roomKey), uid, devices, rtc.NewPeerLinkFactory(), ch)
	defer mesh.LeaveVoice()

	if err := mesh.JoinVoice(ctx); err != nil {
		log.Fatal().Err(err).Msg("voice join failed")
	}
	if err := ch.JoinRoom(*roomKey, *name); err != nil {
		log.Fatal().Err(err).Msg("room join failed")
	}

	go func() {
		for ev := range mesh.Events() {
			switch ev.Kind {
			case voice.EventPeerJoined:
				log.Info().Str("peer", string(ev.Peer)).Msg("peer audio connected")
			case voice.EventPeerLeft:
				log.Info().Str("peer", string(ev.Peer)).Msg("peer left")
			case voice.EventPeerMuteChanged:
				log.Info().Str("peer", string(ev.Peer)).Bool("muted", ev.Muted).Msg("peer mute changed")
			case voice.EventLocalSpeakingChanged:
				log.Debug().Bool("speaking", ev.Speaking).Msg("local speaking")
			}
		}
	}()

	// The newcomer initiates negotiation toward everyone already there.
	select {
	case peers := <-roomState:
		for _, peer := range peers {
			if peer == uid {
				continue
			}
			if err := mesh.SendOffer(ctx, peer); err != nil {
				log.Error().Err(err).Str("peer", string(peer)).Msg("offer failed")
			}
		}
	case <-ctx.Done():
		return
	}

	<-ctx.Done()
	if err := ch.LeaveRoom(); err != nil {
		log.Warn().Err(err).Msg("leave room")
	}
	log.Info().Msg("participant exited")
}
