package gemini_test

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/eburon-ai/orbit/pkg/audio"
	"github.com/eburon-ai/orbit/pkg/live"
	"github.com/eburon-ai/orbit/pkg/live/gemini"
)

// ── Helpers ───────────────────────────────────────────────────────────────────

// wsURL converts an httptest server HTTP URL to a WebSocket URL.
func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

// startLiveServer launches a test WebSocket server. The handler function
// receives the accepted *websocket.Conn. The server is automatically closed
// when the test finishes.
func startLiveServer(t *testing.T, handler func(conn *websocket.Conn, r *http.Request)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			InsecureSkipVerify: true,
		})
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "done")
		handler(conn, r)
	}))
	t.Cleanup(srv.Close)
	return srv
}

// readJSON reads one WebSocket text frame and decodes it into v.
func readJSON(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("readJSON: %v", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		t.Fatalf("readJSON unmarshal: %v", err)
	}
}

// writeJSON marshals v and sends it as a text frame.
func writeJSON(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	data, _ := json.Marshal(v)
	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		t.Logf("writeJSON: %v (may be expected on close)", err)
	}
}

// sendSetupComplete sends the server-side setupComplete ack.
func sendSetupComplete(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	writeJSON(t, conn, map[string]any{"setupComplete": map[string]any{}})
}

// newDialer creates a Dialer pointing at the given test server.
func newDialer(srv *httptest.Server) *gemini.Dialer {
	return gemini.New("test-api-key", gemini.WithBaseURL(wsURL(srv)))
}

// nextEvent receives one event or fails the test after a timeout.
func nextEvent(t *testing.T, sess live.Session) live.Event {
	t.Helper()
	select {
	case ev, ok := <-sess.Events():
		if !ok {
			t.Fatal("events channel closed unexpectedly")
		}
		return ev
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for event")
	}
	panic("unreachable")
}

// ── Connect / setup ────────────────────────────────────────────────────────────

func TestConnect_SendsSetup(t *testing.T) {
	t.Parallel()

	type setupMsg struct {
		Setup struct {
			Model            string `json:"model"`
			GenerationConfig struct {
				ResponseModalities []string `json:"responseModalities"`
				SpeechConfig       *struct {
					VoiceConfig struct {
						PrebuiltVoiceConfig struct {
							VoiceName string `json:"voiceName"`
						} `json:"prebuiltVoiceConfig"`
					} `json:"voiceConfig"`
				} `json:"speechConfig"`
			} `json:"generationConfig"`
			SystemInstruction *struct {
				Parts []struct {
					Text string `json:"text"`
				} `json:"parts"`
			} `json:"systemInstruction"`
			InputAudioTranscription  *map[string]any `json:"inputAudioTranscription"`
			OutputAudioTranscription *map[string]any `json:"outputAudioTranscription"`
		} `json:"setup"`
	}

	received := make(chan setupMsg, 1)

	srv := startLiveServer(t, func(conn *websocket.Conn, _ *http.Request) {
		var msg setupMsg
		readJSON(t, conn, &msg)
		received <- msg
		sendSetupComplete(t, conn)
		<-conn.CloseRead(context.Background()).Done()
	})

	d := newDialer(srv)
	cfg := live.SessionConfig{
		Voice:               "Zephyr",
		Instructions:        "You are Orbit, a helpful meeting assistant.",
		InputTranscription:  true,
		OutputTranscription: true,
	}
	sess, err := d.Connect(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer sess.Close()

	select {
	case msg := <-received:
		if !strings.HasPrefix(msg.Setup.Model, "models/") {
			t.Errorf("model %q should start with 'models/'", msg.Setup.Model)
		}
		if got := msg.Setup.GenerationConfig.ResponseModalities; len(got) != 1 || got[0] != "AUDIO" {
			t.Errorf("responseModalities = %v; want [AUDIO]", got)
		}
		if sc := msg.Setup.GenerationConfig.SpeechConfig; sc == nil || sc.VoiceConfig.PrebuiltVoiceConfig.VoiceName != "Zephyr" {
			t.Errorf("unexpected speechConfig: %+v", sc)
		}
		if si := msg.Setup.SystemInstruction; si == nil || len(si.Parts) == 0 || !strings.Contains(si.Parts[0].Text, "Orbit") {
			t.Errorf("unexpected systemInstruction: %+v", si)
		}
		if msg.Setup.InputAudioTranscription == nil {
			t.Error("inputAudioTranscription should be requested")
		}
		if msg.Setup.OutputAudioTranscription == nil {
			t.Error("outputAudioTranscription should be requested")
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for setup message")
	}
}

func TestConnect_IncludesAPIKeyInURL(t *testing.T) {
	t.Parallel()

	urlQuery := make(chan string, 1)

	srv := startLiveServer(t, func(conn *websocket.Conn, r *http.Request) {
		urlQuery <- r.URL.RawQuery
		var raw map[string]any
		readJSON(t, conn, &raw)
		sendSetupComplete(t, conn)
		<-conn.CloseRead(context.Background()).Done()
	})

	d := gemini.New("secret-key", gemini.WithBaseURL(wsURL(srv)))
	sess, err := d.Connect(context.Background(), live.SessionConfig{})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer sess.Close()

	select {
	case q := <-urlQuery:
		if !strings.Contains(q, "key=secret-key") {
			t.Errorf("URL query %q should contain key=secret-key", q)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timeout")
	}
}

func TestWithModel_SetsModel(t *testing.T) {
	t.Parallel()

	modelCh := make(chan string, 1)

	srv := startLiveServer(t, func(conn *websocket.Conn, _ *http.Request) {
		var msg struct {
			Setup struct {
				Model string `json:"model"`
			} `json:"setup"`
		}
		readJSON(t, conn, &msg)
		modelCh <- msg.Setup.Model
		sendSetupComplete(t, conn)
		<-conn.CloseRead(context.Background()).Done()
	})

	d := gemini.New("key", gemini.WithModel("custom-model"), gemini.WithBaseURL(wsURL(srv)))
	sess, err := d.Connect(context.Background(), live.SessionConfig{})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer sess.Close()

	select {
	case model := <-modelCh:
		if want := "models/custom-model"; model != want {
			t.Errorf("model = %q; want %q", model, want)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for model in setup message")
	}
}

func TestConnect_DialFailure(t *testing.T) {
	t.Parallel()

	d := gemini.New("key", gemini.WithBaseURL("ws://127.0.0.1:1"))
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := d.Connect(ctx, live.SessionConfig{}); err == nil {
		t.Fatal("Connect should fail when the endpoint is unreachable")
	}
}

// ── Send ───────────────────────────────────────────────────────────────────────

func TestSend_Base64EncodesChunk(t *testing.T) {
	t.Parallel()

	type realtimeInput struct {
		RealtimeInput struct {
			MediaChunks []struct {
				MIMEType string `json:"mimeType"`
				Data     string `json:"data"`
			} `json:"mediaChunks"`
		} `json:"realtimeInput"`
	}

	audioMsg := make(chan realtimeInput, 1)

	srv := startLiveServer(t, func(conn *websocket.Conn, _ *http.Request) {
		var raw map[string]any
		readJSON(t, conn, &raw) // setup
		sendSetupComplete(t, conn)

		var msg realtimeInput
		readJSON(t, conn, &msg)
		audioMsg <- msg

		<-conn.CloseRead(context.Background()).Done()
	})

	d := newDialer(srv)
	sess, err := d.Connect(context.Background(), live.SessionConfig{})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer sess.Close()

	wantPCM := []byte{0x01, 0x02, 0x03, 0x04}
	chunk := audio.MediaChunk{MIMEType: "audio/pcm;rate=16000", Data: wantPCM}
	if err := sess.Send(chunk); err != nil {
		t.Fatalf("Send: %v", err)
	}

	select {
	case msg := <-audioMsg:
		chunks := msg.RealtimeInput.MediaChunks
		if len(chunks) != 1 {
			t.Fatalf("media chunks = %d; want 1", len(chunks))
		}
		if chunks[0].MIMEType != "audio/pcm;rate=16000" {
			t.Errorf("mimeType = %q", chunks[0].MIMEType)
		}
		got, err := base64.StdEncoding.DecodeString(chunks[0].Data)
		if err != nil {
			t.Fatalf("decode data: %v", err)
		}
		if string(got) != string(wantPCM) {
			t.Errorf("decoded PCM = %v; want %v", got, wantPCM)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for audio message")
	}
}

func TestSend_AfterCloseFails(t *testing.T) {
	t.Parallel()

	srv := startLiveServer(t, func(conn *websocket.Conn, _ *http.Request) {
		var raw map[string]any
		readJSON(t, conn, &raw)
		sendSetupComplete(t, conn)
		<-conn.CloseRead(context.Background()).Done()
	})

	sess, err := newDialer(srv).Connect(context.Background(), live.SessionConfig{})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if err := sess.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := sess.Send(audio.MediaChunk{Data: []byte{1, 2}}); err == nil {
		t.Error("Send after Close should fail")
	}
}

// ── Inbound events ─────────────────────────────────────────────────────────────

func TestEvents_AudioChunkDecoded(t *testing.T) {
	t.Parallel()

	wantPCM := []byte{0x10, 0x20, 0x30, 0x40}

	srv := startLiveServer(t, func(conn *websocket.Conn, _ *http.Request) {
		var raw map[string]any
		readJSON(t, conn, &raw)
		sendSetupComplete(t, conn)
		writeJSON(t, conn, map[string]any{
			"serverContent": map[string]any{
				"modelTurn": map[string]any{
					"parts": []map[string]any{
						{"inlineData": map[string]any{
							"mimeType": "audio/pcm;rate=24000",
							"data":     base64.StdEncoding.EncodeToString(wantPCM),
						}},
					},
				},
			},
		})
		<-conn.CloseRead(context.Background()).Done()
	})

	sess, err := newDialer(srv).Connect(context.Background(), live.SessionConfig{})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer sess.Close()

	ev := nextEvent(t, sess)
	if ev.Type != live.EventAudio {
		t.Fatalf("event type = %v; want EventAudio", ev.Type)
	}
	if string(ev.Audio) != string(wantPCM) {
		t.Errorf("audio = %v; want %v", ev.Audio, wantPCM)
	}
}

func TestEvents_TranscriptionTurnOrder(t *testing.T) {
	t.Parallel()

	srv := startLiveServer(t, func(conn *websocket.Conn, _ *http.Request) {
		var raw map[string]any
		readJSON(t, conn, &raw)
		sendSetupComplete(t, conn)
		writeJSON(t, conn, map[string]any{
			"serverContent": map[string]any{
				"inputTranscription": map[string]any{"text": "Hel"},
			},
		})
		writeJSON(t, conn, map[string]any{
			"serverContent": map[string]any{
				"inputTranscription": map[string]any{"text": "lo"},
			},
		})
		writeJSON(t, conn, map[string]any{
			"serverContent": map[string]any{"turnComplete": true},
		})
		<-conn.CloseRead(context.Background()).Done()
	})

	sess, err := newDialer(srv).Connect(context.Background(), live.SessionConfig{InputTranscription: true})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer sess.Close()

	want := []struct {
		typ  live.EventType
		text string
	}{
		{live.EventInputTranscription, "Hel"},
		{live.EventInputTranscription, "lo"},
		{live.EventTurnComplete, ""},
	}
	for i, w := range want {
		ev := nextEvent(t, sess)
		if ev.Type != w.typ || ev.Text != w.text {
			t.Fatalf("event %d = {%v %q}; want {%v %q}", i, ev.Type, ev.Text, w.typ, w.text)
		}
	}
}

func TestEvents_InterruptedBeforeAudioInSameMessage(t *testing.T) {
	t.Parallel()

	srv := startLiveServer(t, func(conn *websocket.Conn, _ *http.Request) {
		var raw map[string]any
		readJSON(t, conn, &raw)
		sendSetupComplete(t, conn)
		// A single serverContent carrying both the interrupted flag and a
		// trailing audio part: the interruption must be dispatched first.
		writeJSON(t, conn, map[string]any{
			"serverContent": map[string]any{
				"interrupted": true,
				"modelTurn": map[string]any{
					"parts": []map[string]any{
						{"inlineData": map[string]any{
							"mimeType": "audio/pcm;rate=24000",
							"data":     base64.StdEncoding.EncodeToString([]byte{1, 2}),
						}},
					},
				},
			},
		})
		<-conn.CloseRead(context.Background()).Done()
	})

	sess, err := newDialer(srv).Connect(context.Background(), live.SessionConfig{})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer sess.Close()

	if ev := nextEvent(t, sess); ev.Type != live.EventInterrupted {
		t.Fatalf("first event = %v; want EventInterrupted", ev.Type)
	}
	if ev := nextEvent(t, sess); ev.Type != live.EventAudio {
		t.Fatalf("second event = %v; want EventAudio", ev.Type)
	}
}

func TestEvents_MalformedAudioDropped(t *testing.T) {
	t.Parallel()

	srv := startLiveServer(t, func(conn *websocket.Conn, _ *http.Request) {
		var raw map[string]any
		readJSON(t, conn, &raw)
		sendSetupComplete(t, conn)
		// Invalid base64 payload, then a valid turnComplete.
		writeJSON(t, conn, map[string]any{
			"serverContent": map[string]any{
				"modelTurn": map[string]any{
					"parts": []map[string]any{
						{"inlineData": map[string]any{
							"mimeType": "audio/pcm;rate=24000",
							"data":     "!!!not-base64!!!",
						}},
					},
				},
			},
		})
		writeJSON(t, conn, map[string]any{
			"serverContent": map[string]any{"turnComplete": true},
		})
		<-conn.CloseRead(context.Background()).Done()
	})

	sess, err := newDialer(srv).Connect(context.Background(), live.SessionConfig{})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer sess.Close()

	// The malformed chunk is dropped; the next observable event is the
	// turn completion.
	if ev := nextEvent(t, sess); ev.Type != live.EventTurnComplete {
		t.Fatalf("event = %v; want EventTurnComplete (malformed audio dropped)", ev.Type)
	}
}

func TestEvents_ServiceErrorSurfaced(t *testing.T) {
	t.Parallel()

	srv := startLiveServer(t, func(conn *websocket.Conn, _ *http.Request) {
		var raw map[string]any
		readJSON(t, conn, &raw)
		sendSetupComplete(t, conn)
		writeJSON(t, conn, map[string]any{
			"error": map[string]any{"code": 8, "message": "quota exceeded"},
		})
		<-conn.CloseRead(context.Background()).Done()
	})

	sess, err := newDialer(srv).Connect(context.Background(), live.SessionConfig{})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer sess.Close()

	ev := nextEvent(t, sess)
	if ev.Type != live.EventError {
		t.Fatalf("event type = %v; want EventError", ev.Type)
	}
	if ev.Err == nil || !strings.Contains(ev.Err.Error(), "quota exceeded") {
		t.Errorf("err = %v; want quota message", ev.Err)
	}
}

// ── Close ──────────────────────────────────────────────────────────────────────

func TestClose_Idempotent(t *testing.T) {
	t.Parallel()

	srv := startLiveServer(t, func(conn *websocket.Conn, _ *http.Request) {
		var raw map[string]any
		readJSON(t, conn, &raw)
		sendSetupComplete(t, conn)
		<-conn.CloseRead(context.Background()).Done()
	})

	sess, err := newDialer(srv).Connect(context.Background(), live.SessionConfig{})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if err := sess.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := sess.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}

	// The events channel drains and closes after Close.
	select {
	case _, ok := <-sess.Events():
		if ok {
			// Drain any buffered event; the channel must close eventually.
			for range sess.Events() {
			}
		}
	case <-time.After(3 * time.Second):
		t.Fatal("events channel did not close after Close")
	}
}

func TestEvents_ChannelClosesOnServerDisconnect(t *testing.T) {
	t.Parallel()

	srv := startLiveServer(t, func(conn *websocket.Conn, _ *http.Request) {
		var raw map[string]any
		readJSON(t, conn, &raw)
		sendSetupComplete(t, conn)
		// Handler returns: the deferred close tears the connection down.
	})

	sess, err := newDialer(srv).Connect(context.Background(), live.SessionConfig{})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer sess.Close()

	deadline := time.After(3 * time.Second)
	for {
		select {
		case _, ok := <-sess.Events():
			if !ok {
				return // closed as expected
			}
		case <-deadline:
			t.Fatal("events channel did not close after server disconnect")
		}
	}
}
