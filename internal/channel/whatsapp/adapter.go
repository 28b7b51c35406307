// Package whatsapp is the direct WhatsApp channel via whatsmeow, for
// running the bot on a personal number without Twilio in between.
package whatsapp

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	waLog "go.mau.fi/whatsmeow/util/log"
	"google.golang.org/protobuf/proto"

	_ "github.com/mattn/go-sqlite3" // sqlite driver for the session store

	"github.com/haasonsaas/voxlate/internal/config"
	"github.com/haasonsaas/voxlate/internal/dispatch"
	"github.com/haasonsaas/voxlate/internal/observability"
)

// ChannelName identifies this transport in logs and metrics.
const ChannelName = "whatsapp"

// Handler consumes normalized inbound messages.
type Handler interface {
	HandleInbound(in dispatch.Inbound, send dispatch.Sender)
}

// Adapter bridges whatsmeow events to the dispatcher and sends
// replies back out. It is also the dispatch.Sender for its own
// messages.
type Adapter struct {
	cfg       config.WhatsAppConfig
	handler   Handler
	logger    *observability.Logger
	metrics   *observability.Metrics
	container *sqlstore.Container
	client    *whatsmeow.Client
	http      *http.Client

	connMu    sync.RWMutex
	connected bool

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New opens the sqlite session store. Connecting happens in Start.
func New(cfg config.WhatsAppConfig, handler Handler, logger *observability.Logger, metrics *observability.Metrics) (*Adapter, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.SessionPath), 0o755); err != nil {
		return nil, fmt.Errorf("create session directory: %w", err)
	}
	container, err := sqlstore.New(context.Background(), "sqlite3",
		fmt.Sprintf("file:%s?_foreign_keys=on", cfg.SessionPath), waLog.Noop)
	if err != nil {
		return nil, fmt.Errorf("open session store: %w", err)
	}
	return &Adapter{
		cfg:       cfg,
		handler:   handler,
		logger:    logger,
		metrics:   metrics,
		container: container,
		http:      &http.Client{Timeout: 60 * time.Second},
	}, nil
}

// Start connects to WhatsApp. On first run it logs pairing QR codes
// until the phone scans one.
func (a *Adapter) Start(ctx context.Context) error {
	ctx, a.cancel = context.WithCancel(ctx)

	device, err := a.container.GetFirstDevice(ctx)
	if err != nil {
		return fmt.Errorf("load device: %w", err)
	}
	a.client = whatsmeow.NewClient(device, waLog.Noop)
	a.client.AddEventHandler(a.handleEvent)

	if a.client.Store.ID == nil {
		qrChan, err := a.client.GetQRChannel(ctx)
		if err != nil {
			return fmt.Errorf("qr channel: %w", err)
		}
		if err := a.client.Connect(); err != nil {
			return fmt.Errorf("connect: %w", err)
		}
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case evt, ok := <-qrChan:
					if !ok {
						return
					}
					if evt.Event == "code" {
						a.logger.Info(ctx, "scan QR code to pair", "code", evt.Code)
					}
				}
			}
		}()
		return nil
	}
	return a.client.Connect()
}

// Stop disconnects and closes the session store.
func (a *Adapter) Stop() {
	if a.cancel != nil {
		a.cancel()
	}
	a.wg.Wait()
	if a.client != nil {
		a.client.Disconnect()
	}
	if a.container != nil {
		if err := a.container.Close(); err != nil {
			a.logger.Warn(context.Background(), "session store close failed", "error", err)
		}
	}
}

// SendText sends one text message to a phone number.
func (a *Adapter) SendText(ctx context.Context, to, body string) error {
	_, err := a.client.SendMessage(ctx, jidFor(to), &waE2E.Message{
		Conversation: proto.String(body),
	})
	if err != nil {
		return fmt.Errorf("whatsapp send: %w", err)
	}
	if a.metrics != nil {
		a.metrics.MessageSent(ChannelName)
	}
	return nil
}

// SendMedia fetches mediaURL and sends it as a voice note.
func (a *Adapter) SendMedia(ctx context.Context, to, mediaURL string) error {
	data, err := a.fetch(ctx, mediaURL)
	if err != nil {
		return err
	}
	uploaded, err := a.client.Upload(ctx, data, whatsmeow.MediaAudio)
	if err != nil {
		return fmt.Errorf("whatsapp upload: %w", err)
	}
	mime := "audio/mpeg"
	_, err = a.client.SendMessage(ctx, jidFor(to), &waE2E.Message{
		AudioMessage: &waE2E.AudioMessage{
			URL:           &uploaded.URL,
			DirectPath:    &uploaded.DirectPath,
			MediaKey:      uploaded.MediaKey,
			FileEncSHA256: uploaded.FileEncSHA256,
			FileSHA256:    uploaded.FileSHA256,
			FileLength:    &uploaded.FileLength,
			Mimetype:      &mime,
			PTT:           proto.Bool(true),
		},
	})
	if err != nil {
		return fmt.Errorf("whatsapp send audio: %w", err)
	}
	if a.metrics != nil {
		a.metrics.MessageSent(ChannelName)
	}
	return nil
}

func (a *Adapter) fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := a.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch media: unexpected status %d", resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, 25<<20))
}

func (a *Adapter) handleEvent(evt any) {
	switch v := evt.(type) {
	case *events.Connected:
		a.setConnected(true)
		a.logger.Info(context.Background(), "connected to WhatsApp")
	case *events.Disconnected:
		a.setConnected(false)
		a.logger.Warn(context.Background(), "disconnected from WhatsApp")
	case *events.LoggedOut:
		a.setConnected(false)
		a.logger.Warn(context.Background(), "logged out from WhatsApp", "reason", fmt.Sprintf("%v", v.Reason))
	case *events.Message:
		a.handleMessage(v)
	}
}

// handleMessage normalizes one incoming message and hands it to the
// dispatcher. Groups and status broadcasts are ignored; this is a
// one-on-one bot.
func (a *Adapter) handleMessage(evt *events.Message) {
	if evt.Info.IsGroup || evt.Info.Chat.Server == types.BroadcastServer {
		return
	}
	if evt.Info.IsFromMe {
		return
	}

	body, audio := extract(evt.Message)
	var data []byte
	var contentType string
	if audio != nil {
		downloaded, err := a.client.Download(context.Background(), audio)
		if err != nil {
			a.logger.Error(context.Background(), "audio download failed", "error", err)
			return
		}
		data = downloaded
		contentType = audio.GetMimetype()
	}
	if body == "" && len(data) == 0 {
		return
	}

	a.handler.HandleInbound(dispatch.Inbound{
		Channel:          ChannelName,
		MessageID:        evt.Info.ID,
		From:             phoneFor(evt.Info.Sender),
		Body:             body,
		MediaData:        data,
		MediaContentType: contentType,
	}, a)
}

// extract pulls the text body and the audio payload, if any, out of a
// raw message.
func extract(msg *waE2E.Message) (string, *waE2E.AudioMessage) {
	if msg == nil {
		return "", nil
	}
	switch {
	case msg.Conversation != nil:
		return msg.GetConversation(), nil
	case msg.ExtendedTextMessage != nil:
		return msg.ExtendedTextMessage.GetText(), nil
	case msg.AudioMessage != nil:
		return "", msg.AudioMessage
	}
	return "", nil
}

// jidFor converts an E.164 phone number to a WhatsApp user JID.
func jidFor(phone string) types.JID {
	return types.NewJID(strings.TrimPrefix(phone, "+"), types.DefaultUserServer)
}

// phoneFor converts a sender JID back to E.164.
func phoneFor(jid types.JID) string {
	return "+" + jid.User
}

func (a *Adapter) setConnected(up bool) {
	a.connMu.Lock()
	a.connected = up
	a.connMu.Unlock()
}

// Connected reports whether the client currently has a socket.
func (a *Adapter) Connected() bool {
	a.connMu.RLock()
	defer a.connMu.RUnlock()
	return a.connected
}
