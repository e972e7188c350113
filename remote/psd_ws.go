package remote

import (
	"encoding/binary"
	"math"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/klauspost/compress/zstd"

	"github.com/cwsl/sdrcore/message"
)

// PSD frame wire format, grounded on pcm_binary.go's hybrid full/minimal
// header strategy: a full header (carrying the center frequency and bin
// count) is sent on the first frame and whenever the center frequency or
// sample rate changes; every other frame uses a minimal header. Every
// frame is zstd-compressed as a whole before being written to the
// socket, same as pcm_binary.go's PCMFormatZstd path.
const (
	psdMagicFull    uint16 = 0x5046 // "PF" - full header packet
	psdMagicMinimal uint16 = 0x504D // "PM" - minimal header packet

	psdFullHeaderSize    = 22 // magic(2) + timestamp(8) + fc(8) + nBins(4)
	psdMinimalHeaderSize = 10 // magic(2) + timestamp(8)
)

// Upgrader mirrors websocket.go's upgrader: generous buffers, manual
// compression (zstd, not gorilla's permessage-deflate), origin checks
// left to the embedder's reverse proxy.
var upgrader = websocket.Upgrader{
	ReadBufferSize:    4096,
	WriteBufferSize:   65536,
	EnableCompression: false,
	CheckOrigin:       func(r *http.Request) bool { return true },
}

// PSDStreamer serves one *message.PSDMessage at a time to every
// subscribed WebSocket connection, compressing and framing each update
// as it is published.
type PSDStreamer struct {
	mu          sync.RWMutex
	conns       map[*psdConn]struct{}
	encoderPool sync.Pool

	lastFC       float64
	lastSampRate float64
	sentFirst    bool
}

type psdConn struct {
	conn *websocket.Conn
	mu   sync.Mutex // WriteMessage is not safe for concurrent callers
}

// NewPSDStreamer constructs an empty streamer ready to accept
// subscribers and publish updates.
func NewPSDStreamer() *PSDStreamer {
	s := &PSDStreamer{conns: make(map[*psdConn]struct{})}
	s.encoderPool.New = func() any {
		enc, _ := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
		return enc
	}
	return s
}

// ServeHTTP upgrades the request to a WebSocket and registers the
// connection as a PSD subscriber until it disconnects.
func (s *PSDStreamer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rawConn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	pc := &psdConn{conn: rawConn}

	s.mu.Lock()
	s.conns[pc] = struct{}{}
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.conns, pc)
		s.mu.Unlock()
		rawConn.Close()
	}()

	// Drain and discard inbound traffic (pings, close frames) until the
	// client disconnects; this facade is publish-only.
	for {
		if _, _, err := rawConn.ReadMessage(); err != nil {
			return
		}
	}
}

// Publish encodes msg and fans it out to every subscribed connection.
// Slow or dead connections are dropped rather than allowed to back up
// the publisher.
func (s *PSDStreamer) Publish(msg *message.PSDMessage) {
	packet := s.encode(msg)

	s.mu.RLock()
	conns := make([]*psdConn, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.RUnlock()

	for _, pc := range conns {
		pc.mu.Lock()
		pc.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		err := pc.conn.WriteMessage(websocket.BinaryMessage, packet)
		pc.mu.Unlock()
		if err != nil {
			s.mu.Lock()
			delete(s.conns, pc)
			s.mu.Unlock()
			pc.conn.Close()
		}
	}
}

func (s *PSDStreamer) encode(msg *message.PSDMessage) []byte {
	s.mu.Lock()
	needFull := !s.sentFirst || msg.FC != s.lastFC || msg.SampRate != s.lastSampRate
	s.lastFC, s.lastSampRate, s.sentFirst = msg.FC, msg.SampRate, true
	s.mu.Unlock()

	var raw []byte
	if needFull {
		raw = buildFullHeader(msg)
	} else {
		raw = buildMinimalHeader()
	}
	raw = append(raw, float32BytesOf(msg.PSD)...)

	enc := s.encoderPool.Get().(*zstd.Encoder)
	compressed := enc.EncodeAll(raw, make([]byte, 0, len(raw)))
	s.encoderPool.Put(enc)
	return compressed
}

func buildFullHeader(msg *message.PSDMessage) []byte {
	buf := make([]byte, psdFullHeaderSize)
	binary.LittleEndian.PutUint16(buf[0:], psdMagicFull)
	binary.LittleEndian.PutUint64(buf[2:], uint64(time.Now().UnixMilli()))
	binary.LittleEndian.PutUint64(buf[10:], uint64(msg.FC))
	binary.LittleEndian.PutUint32(buf[18:], uint32(len(msg.PSD)))
	return buf
}

func buildMinimalHeader() []byte {
	buf := make([]byte, psdMinimalHeaderSize)
	binary.LittleEndian.PutUint16(buf[0:], psdMagicMinimal)
	binary.LittleEndian.PutUint64(buf[2:], uint64(time.Now().UnixMilli()))
	return buf
}

func float32BytesOf(vals []float32) []byte {
	buf := make([]byte, len(vals)*4)
	for i, v := range vals {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}
