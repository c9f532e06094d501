package session

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"go.mau.fi/whatsmeow"
	waProto "go.mau.fi/whatsmeow/binary/proto"
	"go.mau.fi/whatsmeow/store/sqlstore"
	waTypes "go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	waLog "go.mau.fi/whatsmeow/util/log"
	"google.golang.org/protobuf/proto"
	_ "modernc.org/sqlite"
)

// WhatsmeowFactory opens the session's sqlite credential store and builds a
// whatsmeow-backed transport. The supervisor owns reconnection, so the
// client's own auto-reconnect is disabled.
func WhatsmeowFactory(ctx context.Context, authPath, sessionID string, sink EventSink) (Transport, error) {
	clientLog := waLog.Stdout("Session_"+sessionID, "INFO", true)

	container, err := sqlstore.New(ctx, "sqlite", "file:"+authPath+"?_pragma=foreign_keys(1)", clientLog)
	if err != nil {
		return nil, fmt.Errorf("open auth storage: %w", err)
	}

	device, err := container.GetFirstDevice(ctx)
	if err != nil {
		container.Close()
		return nil, fmt.Errorf("get device: %w", err)
	}

	client := whatsmeow.NewClient(device, clientLog)
	client.EnableAutoReconnect = false

	t := &waTransport{
		client:    client,
		container: container,
		authPath:  authPath,
	}
	client.AddEventHandler(func(evt interface{}) {
		t.route(sink, evt)
	})
	return t, nil
}

type waTransport struct {
	client    *whatsmeow.Client
	container *sqlstore.Container
	authPath  string
}

func (t *waTransport) route(sink EventSink, evt interface{}) {
	switch v := evt.(type) {
	case *events.Connected:
		identity := ""
		if t.client.Store.ID != nil {
			identity = t.client.Store.ID.User
		}
		sink.HandleOpen(identity)
	case *events.QR:
		if len(v.Codes) > 0 {
			sink.HandleQR(v.Codes[0])
		}
	case *events.LoggedOut:
		sink.HandleClose(CloseReason{
			Code:        int(v.Reason),
			Description: "logged out",
			AuthFailure: true,
		})
	case *events.StreamReplaced:
		sink.HandleClose(CloseReason{
			Description:    "stream replaced",
			StreamConflict: true,
		})
	case *events.Disconnected:
		sink.HandleClose(CloseReason{Description: "disconnected"})
	case *events.StreamError:
		sink.HandleClose(CloseReason{Description: "stream error: " + v.Code})
	case *events.Message:
		sink.HandleInbound(inboundFromEvent(v))
	}
}

func inboundFromEvent(evt *events.Message) InboundMessage {
	var text string
	if evt.Message != nil && evt.Message.GetConversation() != "" {
		text = evt.Message.GetConversation()
	} else if evt.Message != nil && evt.Message.GetExtendedTextMessage() != nil {
		text = evt.Message.GetExtendedTextMessage().GetText()
	}

	info := evt.Info
	return InboundMessage{
		Sender:       info.Sender.String(),
		SenderNumber: info.Sender.User,
		Chat:         info.Chat.String(),
		PushName:     info.PushName,
		Text:         text,
		IsGroup:      info.IsGroup,
		IsFromMe:     info.IsFromMe,
		IsBroadcast:  info.Chat.Server == waTypes.BroadcastServer,
		Timestamp:    info.Timestamp,
	}
}

func (t *waTransport) Connect() error {
	return t.client.Connect()
}

func (t *waTransport) Disconnect() {
	t.client.Disconnect()
}

func (t *waTransport) IsConnected() bool {
	return t.client.IsConnected()
}

func (t *waTransport) IsLoggedIn() bool {
	return t.client.Store.ID != nil
}

func (t *waTransport) LoggedInJID() string {
	if t.client.Store.ID == nil {
		return ""
	}
	return t.client.Store.ID.User
}

func (t *waTransport) SendText(ctx context.Context, target, text string) (string, error) {
	jid, err := targetJID(target)
	if err != nil {
		return "", err
	}

	msg := &waProto.Message{
		Conversation: proto.String(text),
	}
	resp, err := t.client.SendMessage(ctx, jid, msg)
	if err != nil {
		return "", classifySendError(jid, err)
	}
	return string(resp.ID), nil
}

func (t *waTransport) SendMedia(ctx context.Context, target string, data []byte, mimeType, caption string) (string, error) {
	jid, err := targetJID(target)
	if err != nil {
		return "", err
	}

	var mediaType whatsmeow.MediaType
	switch {
	case strings.HasPrefix(mimeType, "image/"):
		mediaType = whatsmeow.MediaImage
	case strings.HasPrefix(mimeType, "video/"):
		mediaType = whatsmeow.MediaVideo
	case strings.HasPrefix(mimeType, "audio/"):
		mediaType = whatsmeow.MediaAudio
	default:
		mediaType = whatsmeow.MediaDocument
	}

	uploaded, err := t.client.Upload(ctx, data, mediaType)
	if err != nil {
		return "", fmt.Errorf("upload media: %w", err)
	}

	length := uint64(len(data))
	var msg *waProto.Message
	switch mediaType {
	case whatsmeow.MediaImage:
		msg = &waProto.Message{
			ImageMessage: &waProto.ImageMessage{
				URL:           &uploaded.URL,
				Mimetype:      &mimeType,
				Caption:       &caption,
				FileSHA256:    uploaded.FileSHA256,
				FileLength:    &length,
				DirectPath:    &uploaded.DirectPath,
				MediaKey:      uploaded.MediaKey,
				FileEncSHA256: uploaded.FileEncSHA256,
			},
		}
	case whatsmeow.MediaVideo:
		msg = &waProto.Message{
			VideoMessage: &waProto.VideoMessage{
				URL:           &uploaded.URL,
				Mimetype:      &mimeType,
				Caption:       &caption,
				FileSHA256:    uploaded.FileSHA256,
				FileLength:    &length,
				DirectPath:    &uploaded.DirectPath,
				MediaKey:      uploaded.MediaKey,
				FileEncSHA256: uploaded.FileEncSHA256,
			},
		}
	case whatsmeow.MediaAudio:
		msg = &waProto.Message{
			AudioMessage: &waProto.AudioMessage{
				URL:           &uploaded.URL,
				Mimetype:      &mimeType,
				FileSHA256:    uploaded.FileSHA256,
				FileLength:    &length,
				DirectPath:    &uploaded.DirectPath,
				MediaKey:      uploaded.MediaKey,
				FileEncSHA256: uploaded.FileEncSHA256,
			},
		}
	default:
		msg = &waProto.Message{
			DocumentMessage: &waProto.DocumentMessage{
				URL:           &uploaded.URL,
				Mimetype:      &mimeType,
				Title:         &caption,
				FileSHA256:    uploaded.FileSHA256,
				FileLength:    &length,
				DirectPath:    &uploaded.DirectPath,
				MediaKey:      uploaded.MediaKey,
				FileEncSHA256: uploaded.FileEncSHA256,
			},
		}
	}

	resp, err := t.client.SendMessage(ctx, jid, msg)
	if err != nil {
		return "", classifySendError(jid, err)
	}
	return string(resp.ID), nil
}

func (t *waTransport) ClearAuth(ctx context.Context) error {
	if t.client.Store.ID != nil {
		if err := t.client.Store.Delete(ctx); err != nil {
			return err
		}
	}
	t.container.Close()
	removeAuthFiles(t.authPath)
	return nil
}

func (t *waTransport) Close() error {
	return t.container.Close()
}

var nonPhoneChars = regexp.MustCompile(`[^\d+]`)

// targetJID resolves a target into a JID. Full JIDs (groups, broadcast lists)
// pass through; bare phone numbers become user JIDs.
func targetJID(target string) (waTypes.JID, error) {
	if strings.Contains(target, "@") {
		jid, err := waTypes.ParseJID(target)
		if err != nil {
			return waTypes.JID{}, fmt.Errorf("invalid target %q: %w", target, err)
		}
		return jid, nil
	}

	clean := nonPhoneChars.ReplaceAllString(target, "")
	clean = strings.TrimPrefix(clean, "+")
	if len(clean) < 10 {
		return waTypes.JID{}, fmt.Errorf("invalid phone number: too short")
	}
	return waTypes.NewJID(clean, waTypes.DefaultUserServer), nil
}

// classifySendError surfaces group posting restrictions as ErrNotAuthorized
// so callers can treat them distinctly from transport failures.
func classifySendError(jid waTypes.JID, err error) error {
	if jid.Server == waTypes.GroupServer {
		msg := strings.ToLower(err.Error())
		if strings.Contains(msg, "403") || strings.Contains(msg, "forbidden") || strings.Contains(msg, "not-authorized") {
			return fmt.Errorf("%w: %v", ErrNotAuthorized, err)
		}
	}
	return err
}
