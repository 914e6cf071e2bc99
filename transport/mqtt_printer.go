package transport

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/elegoo-bridge/core/perrors"
)

// defaultMqttUsername/Password are the CC2 inverted-broker's stock
// credentials. The password is used when no access code is configured.
const (
	defaultMqttUsername = "elegoo"
	defaultMqttPassword = "123456"
)

// registerWaitTimeout bounds the CC2 api_register/register_response
// round trip (spec.md §4.4: "wait <= 3s").
const registerWaitTimeout = 3 * time.Second

// MqttPrinterTransport is the Transport for the CC2 inverted-broker dialect:
// the printer itself runs the MQTT broker on port 1883 and the core connects
// to it as a client (spec.md §4.1, "CC2-MQTT"). Open performs the full CC2
// registration handshake (api_register/register_response, then subscribing
// api_status and <clientId>/api_response) before returning, so Session never
// has to know this dialect needs one.
type MqttPrinterTransport struct {
	addr       string // "ip:1883"
	serial     string
	accessCode string // replaces the default password when non-empty
	clientID   string // assigned fresh each Open, per spec.md §4.3's format

	mu        sync.Mutex
	client    paho.Client
	frames    chan []byte
	err       error
	closed    bool
	closeOnce sync.Once
}

// NewMqttPrinterTransport builds a transport bound to one printer's broker.
// A non-empty accessCode is always sent as the password; the transport does
// not check whether the printer actually requires one (token_status).
func NewMqttPrinterTransport(addr, serial, accessCode string) *MqttPrinterTransport {
	return &MqttPrinterTransport{
		addr:       addr,
		serial:     serial,
		accessCode: accessCode,
		frames:     make(chan []byte, 64),
	}
}

func (t *MqttPrinterTransport) Open(ctx context.Context) error {
	password := defaultMqttPassword
	if t.accessCode != "" {
		password = t.accessCode
	}
	t.clientID = cc2ClientID()

	opts := paho.NewClientOptions().
		AddBroker(fmt.Sprintf("tcp://%s", t.addr)).
		SetClientID(t.clientID).
		SetUsername(defaultMqttUsername).
		SetPassword(password).
		SetAutoReconnect(false). // Session owns reconnection, not paho
		SetConnectTimeout(10 * time.Second).
		SetKeepAlive(60 * time.Second).
		SetConnectionLostHandler(t.onConnectionLost)

	t.client = paho.NewClient(opts)

	token := t.client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return perrors.New(perrors.TransportReset, fmt.Errorf("mqtt connect to %s timed out", t.addr))
	}
	if err := token.Error(); err != nil {
		return perrors.New(perrors.TransportReset, fmt.Errorf("mqtt connect to %s: %w", t.addr, err))
	}

	if err := t.register(); err != nil {
		_ = t.client.Disconnect(0)
		return err
	}

	return t.subscribeSessionTopics()
}

// registerResponse is the {"error": "..."} shape the printer publishes on
// the per-request register_response topic (spec.md §4.4, §6.2).
type registerResponse struct {
	Error string `json:"error"`
}

// register runs the CC2 api_register handshake: subscribe the per-request
// reply topic, publish {client_id, request_id}, and wait <= 3s for a
// response. "ok" proceeds; "too many clients" maps to SlotExhausted;
// anything else is RegistrationFailed.
func (t *MqttPrinterTransport) register() error {
	requestID := cc2RequestID()
	replyTopic := fmt.Sprintf("elegoo/%s/%s/register_response", t.serial, requestID)

	replyCh := make(chan []byte, 1)
	subToken := t.client.Subscribe(replyTopic, 0, func(_ paho.Client, msg paho.Message) {
		select {
		case replyCh <- msg.Payload():
		default:
		}
	})
	if !subToken.WaitTimeout(registerWaitTimeout) {
		return perrors.New(perrors.RegistrationFailed, fmt.Errorf("subscribe %s timed out", replyTopic))
	}
	if err := subToken.Error(); err != nil {
		return perrors.New(perrors.RegistrationFailed, fmt.Errorf("subscribe %s: %w", replyTopic, err))
	}
	defer t.client.Unsubscribe(replyTopic)

	payload, err := json.Marshal(map[string]string{"client_id": t.clientID, "request_id": requestID})
	if err != nil {
		return perrors.New(perrors.RegistrationFailed, err)
	}

	registerTopic := fmt.Sprintf("elegoo/%s/api_register", t.serial)
	pubToken := t.client.Publish(registerTopic, 0, false, payload)
	if !pubToken.WaitTimeout(registerWaitTimeout) {
		return perrors.New(perrors.RegistrationFailed, fmt.Errorf("publish %s timed out", registerTopic))
	}
	if err := pubToken.Error(); err != nil {
		return perrors.New(perrors.RegistrationFailed, err)
	}

	select {
	case payload := <-replyCh:
		var resp registerResponse
		if err := json.Unmarshal(payload, &resp); err != nil {
			return perrors.New(perrors.RegistrationFailed, fmt.Errorf("decode register_response: %w", err))
		}
		switch resp.Error {
		case "ok":
			return nil
		case "too many clients":
			return perrors.New(perrors.SlotExhausted, fmt.Errorf("printer refused registration: %s", resp.Error))
		default:
			return perrors.New(perrors.RegistrationFailed, fmt.Errorf("printer refused registration: %s", resp.Error))
		}
	case <-time.After(registerWaitTimeout):
		return perrors.New(perrors.RegistrationFailed, fmt.Errorf("no register_response within %s", registerWaitTimeout))
	}
}

// subscribeSessionTopics subscribes the two topics a registered client reads
// from for the rest of the session: status events and this client's own
// command responses/PONGs.
func (t *MqttPrinterTransport) subscribeSessionTopics() error {
	topics := []string{
		fmt.Sprintf("elegoo/%s/api_status", t.serial),
		fmt.Sprintf("elegoo/%s/%s/api_response", t.serial, t.clientID),
	}
	for _, topic := range topics {
		token := t.client.Subscribe(topic, 0, t.onFrame)
		token.Wait()
		if err := token.Error(); err != nil {
			return perrors.New(perrors.TransportReset, fmt.Errorf("mqtt subscribe %s: %w", topic, err))
		}
	}
	return nil
}

func (t *MqttPrinterTransport) onFrame(_ paho.Client, msg paho.Message) {
	payload := msg.Payload()
	select {
	case t.frames <- payload:
	default:
	}
}

func (t *MqttPrinterTransport) onConnectionLost(_ paho.Client, err error) {
	t.mu.Lock()
	closed := t.closed
	if !closed {
		t.err = perrors.New(perrors.TransportReset, err)
	}
	t.mu.Unlock()

	if !closed {
		t.closeOnce.Do(func() { close(t.frames) })
	}
}

func (t *MqttPrinterTransport) Send(data []byte) error {
	topic := fmt.Sprintf("elegoo/%s/%s/api_request", t.serial, t.clientID)
	token := t.client.Publish(topic, 0, false, data)
	if !token.WaitTimeout(5 * time.Second) {
		return perrors.New(perrors.RequestTimeout, fmt.Errorf("mqtt publish %s timed out", topic))
	}
	if err := token.Error(); err != nil {
		return perrors.New(perrors.TransportReset, err)
	}
	return nil
}

func (t *MqttPrinterTransport) Frames() <-chan []byte { return t.frames }

func (t *MqttPrinterTransport) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

func (t *MqttPrinterTransport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	t.mu.Unlock()

	if t.client != nil {
		t.client.Disconnect(250)
	}
	t.closeOnce.Do(func() { close(t.frames) })
	return nil
}

// cc2RequestID builds a registration request id in the shape spec.md §4.3
// requires: 16 random hex chars followed by the hex of the current
// millisecond timestamp.
func cc2RequestID() string {
	randBytes := make([]byte, 8)
	_, _ = rand.Read(randBytes)
	return hex.EncodeToString(randBytes) + strconv.FormatInt(time.Now().UnixMilli(), 16)
}

// cc2ClientID builds a client identifier in the shape real CC2 clients use:
// "0cli" + the last 5 hex digits of the current millisecond timestamp + 1-3
// random hex digits.
func cc2ClientID() string {
	millis := time.Now().UnixMilli()
	hex := strconv.FormatInt(millis, 16)
	if len(hex) > 5 {
		hex = hex[len(hex)-5:]
	}

	const hexDigits = "0123456789abcdef"
	randByte := make([]byte, 4)
	_, _ = rand.Read(randByte)

	n := 1 + int(randByte[0])%3 // 1-3 random hex digits
	suffix := make([]byte, n)
	for i := 0; i < n; i++ {
		suffix[i] = hexDigits[int(randByte[i+1])%len(hexDigits)]
	}
	return fmt.Sprintf("0cli%s%s", hex, suffix)
}
