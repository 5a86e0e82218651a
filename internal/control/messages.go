package control

import (
	"encoding/json"
	"fmt"

	"github.com/jmylchreest/vodarr/internal/media"
)

// Kind tags a control message. The same enumeration is used in both
// directions; requests and replies are distinguished by which side sends
// them.
type Kind string

const (
	KindConnect        Kind = "CONNECT"
	KindConnected      Kind = "CONNECTED"
	KindListContainers Kind = "LIST_CONTAINERS"
	KindContainers     Kind = "CONTAINERS"
	KindListVideos     Kind = "LIST_VIDEOS"
	KindVideos         Kind = "VIDEOS"
	KindStartStream    Kind = "START_STREAM"
	KindStreamReady    Kind = "STREAM_READY"
	KindNotFound       Kind = "NOT_FOUND"
	KindBusy           Kind = "BUSY"
	KindDisconnect     Kind = "DISCONNECT"
	KindOK             Kind = "OK"
	KindBadRequest     Kind = "BAD_REQUEST"
)

// Message is the wire envelope: a kind tag plus a kind-specific body.
type Message struct {
	Kind Kind            `json:"kind"`
	Body json.RawMessage `json:"body,omitempty"`
}

// ConnectRequest opens a session.
type ConnectRequest struct {
	Hostname string `json:"hostname"`
	TS       int64  `json:"ts"`
}

// ConnectedReply carries the server-issued client ID.
type ConnectedReply struct {
	ClientID string `json:"client_id"`
}

// ContainersReply lists the containers a client can choose from.
type ContainersReply struct {
	Containers []media.Container `json:"containers"`
}

// ListVideosRequest filters the catalog by container and measured downlink.
type ListVideosRequest struct {
	Container     string  `json:"container"`
	BandwidthMbps float64 `json:"bandwidth_mbps"`
}

// VideoInfo is a catalog entry on the wire. URL is a display-only locator.
type VideoInfo struct {
	Title      string           `json:"title"`
	Resolution media.Resolution `json:"resolution"`
	Container  media.Container  `json:"container"`
	URL        string           `json:"url"`
}

// VideosReply lists matching catalog entries.
type VideosReply struct {
	Videos []VideoInfo `json:"videos"`
}

// StartStreamRequest asks the server to push one entry. Port is the
// client's receive port for the datagram transports; it is unused for tcp,
// where the client dials the server instead.
type StartStreamRequest struct {
	Title      string `json:"title"`
	Resolution string `json:"resolution"`
	Container  string `json:"container"`
	Transport  string `json:"transport"`
	Port       int    `json:"port,omitempty"`
}

// StreamReadyReply tells the client where the stream will flow, as
// transport://host:port.
type StreamReadyReply struct {
	Endpoint string `json:"endpoint"`
}

// DisconnectRequest closes a session.
type DisconnectRequest struct {
	ClientID string `json:"client_id"`
}

// BadRequestReply explains why a message was rejected.
type BadRequestReply struct {
	Reason string `json:"reason"`
}

// Encode marshals a message with the given kind and body.
func Encode(kind Kind, body any) ([]byte, error) {
	msg := Message{Kind: kind}
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encoding %s body: %w", kind, err)
		}
		msg.Body = raw
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("encoding %s message: %w", kind, err)
	}
	return data, nil
}

// Decode unmarshals a message envelope.
func Decode(data []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return Message{}, fmt.Errorf("decoding message: %w", err)
	}
	if msg.Kind == "" {
		return Message{}, fmt.Errorf("decoding message: missing kind")
	}
	return msg, nil
}

// DecodeBody unmarshals a message body into the kind's request or reply
// struct.
func DecodeBody[T any](msg Message) (T, error) {
	var body T
	if len(msg.Body) == 0 {
		return body, nil
	}
	if err := json.Unmarshal(msg.Body, &body); err != nil {
		return body, fmt.Errorf("decoding %s body: %w", msg.Kind, err)
	}
	return body, nil
}
