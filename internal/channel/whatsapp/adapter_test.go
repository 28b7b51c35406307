package whatsapp

import (
	"testing"

	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types"
	"google.golang.org/protobuf/proto"
)

func TestJIDRoundTrip(t *testing.T) {
	jid := jidFor("+15551234567")
	if jid.User != "15551234567" || jid.Server != types.DefaultUserServer {
		t.Errorf("jid = %v", jid)
	}
	if got := phoneFor(jid); got != "+15551234567" {
		t.Errorf("phone = %q", got)
	}
}

func TestExtractTextVariants(t *testing.T) {
	cases := []struct {
		name string
		msg  *waE2E.Message
		want string
	}{
		{"nil", nil, ""},
		{"conversation", &waE2E.Message{Conversation: proto.String("hola")}, "hola"},
		{"extended", &waE2E.Message{
			ExtendedTextMessage: &waE2E.ExtendedTextMessage{Text: proto.String("linked text")},
		}, "linked text"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			body, audio := extract(tc.msg)
			if body != tc.want {
				t.Errorf("body = %q, want %q", body, tc.want)
			}
			if audio != nil {
				t.Error("unexpected audio")
			}
		})
	}
}

func TestExtractAudio(t *testing.T) {
	mime := "audio/ogg; codecs=opus"
	body, audio := extract(&waE2E.Message{
		AudioMessage: &waE2E.AudioMessage{Mimetype: &mime},
	})
	if body != "" {
		t.Errorf("body = %q", body)
	}
	if audio == nil || audio.GetMimetype() != mime {
		t.Errorf("audio = %v", audio)
	}
}
