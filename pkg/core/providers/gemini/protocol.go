package gemini

import (
	"strings"

	"github.com/vango-go/vai-mentor/pkg/core/remote"
)

// Client frames of the BidiGenerateContent websocket protocol.

type clientMessage struct {
	Setup         *setupMessage  `json:"setup,omitempty"`
	RealtimeInput *realtimeInput `json:"realtimeInput,omitempty"`
}

type setupMessage struct {
	Model                    string            `json:"model"`
	GenerationConfig         *generationConfig `json:"generationConfig,omitempty"`
	SystemInstruction        *content          `json:"systemInstruction,omitempty"`
	InputAudioTranscription  *struct{}         `json:"inputAudioTranscription,omitempty"`
	OutputAudioTranscription *struct{}         `json:"outputAudioTranscription,omitempty"`
}

type generationConfig struct {
	ResponseModalities []string      `json:"responseModalities,omitempty"`
	SpeechConfig       *speechConfig `json:"speechConfig,omitempty"`
}

type speechConfig struct {
	VoiceConfig voiceConfig `json:"voiceConfig"`
}

type voiceConfig struct {
	PrebuiltVoiceConfig prebuiltVoiceConfig `json:"prebuiltVoiceConfig"`
}

type prebuiltVoiceConfig struct {
	VoiceName string `json:"voiceName"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type part struct {
	Text       string `json:"text,omitempty"`
	InlineData *blob  `json:"inlineData,omitempty"`
}

type blob struct {
	MIMEType string `json:"mimeType"`
	Data     string `json:"data"`
}

type realtimeInput struct {
	Audio *blob `json:"audio,omitempty"`
}

// Server frames.

type serverMessage struct {
	SetupComplete *struct{}      `json:"setupComplete,omitempty"`
	ServerContent *serverContent `json:"serverContent,omitempty"`
	GoAway        *goAway        `json:"goAway,omitempty"`
}

type serverContent struct {
	ModelTurn           *content       `json:"modelTurn,omitempty"`
	TurnComplete        bool           `json:"turnComplete,omitempty"`
	Interrupted         bool           `json:"interrupted,omitempty"`
	GenerationComplete  bool           `json:"generationComplete,omitempty"`
	InputTranscription  *transcription `json:"inputTranscription,omitempty"`
	OutputTranscription *transcription `json:"outputTranscription,omitempty"`
}

type transcription struct {
	Text string `json:"text"`
}

type goAway struct {
	TimeLeft string `json:"timeLeft,omitempty"`
}

func modelResource(model string) string {
	model = strings.TrimSpace(model)
	if strings.HasPrefix(model, "models/") {
		return model
	}
	return "models/" + model
}

func buildSetup(cfg remote.Config) clientMessage {
	setup := &setupMessage{Model: modelResource(cfg.Model)}

	gen := &generationConfig{ResponseModalities: cfg.ResponseModalities}
	if len(gen.ResponseModalities) == 0 {
		gen.ResponseModalities = []string{"AUDIO"}
	}
	if v := strings.TrimSpace(cfg.VoiceName); v != "" {
		gen.SpeechConfig = &speechConfig{VoiceConfig: voiceConfig{PrebuiltVoiceConfig: prebuiltVoiceConfig{VoiceName: v}}}
	}
	setup.GenerationConfig = gen

	if s := strings.TrimSpace(cfg.SystemInstruction); s != "" {
		setup.SystemInstruction = &content{Parts: []part{{Text: s}}}
	}
	if cfg.InputTranscription {
		setup.InputAudioTranscription = &struct{}{}
	}
	if cfg.OutputTranscription {
		setup.OutputAudioTranscription = &struct{}{}
	}
	return clientMessage{Setup: setup}
}

// translate turns one server frame into engine events, in the order the
// engine applies them: transcripts, turn completion, audio, interruption.
func translate(msg serverMessage) []remote.Event {
	var events []remote.Event
	if msg.SetupComplete != nil {
		events = append(events, remote.Opened{})
	}
	sc := msg.ServerContent
	if sc == nil {
		return events
	}
	if sc.InputTranscription != nil && sc.InputTranscription.Text != "" {
		events = append(events, remote.InputTranscript{Text: sc.InputTranscription.Text})
	}
	if sc.OutputTranscription != nil && sc.OutputTranscription.Text != "" {
		events = append(events, remote.OutputTranscript{Text: sc.OutputTranscription.Text})
	}
	if sc.TurnComplete {
		events = append(events, remote.TurnComplete{})
	}
	if sc.ModelTurn != nil {
		for _, p := range sc.ModelTurn.Parts {
			if p.InlineData == nil || p.InlineData.Data == "" {
				continue
			}
			if p.InlineData.MIMEType != "" && !strings.HasPrefix(p.InlineData.MIMEType, "audio/") {
				continue
			}
			events = append(events, remote.AudioChunk{Data: p.InlineData.Data, MIMEType: p.InlineData.MIMEType})
		}
	}
	if sc.Interrupted {
		events = append(events, remote.Interrupted{})
	}
	return events
}
