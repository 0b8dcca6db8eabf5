package events

// Names of the events exchanged with the presentation layer.
const (
	EventNewConnection = "spotify_new_connection"
	EventPlayer        = "spotify_player_event"
	EventSink          = "spotify_sink_event"
	EventAudioChunk    = "audio_chunk"
	EventInfo          = "info"
	EventStartListen   = "start_listen"
)

// Emitter delivers an event to the presentation layer. Delivery is fire and
// forget; an error only means this event was not delivered.
type Emitter interface {
	Emit(event string, payload any) error
}

// EmitterFunc adapts a function to Emitter.
type EmitterFunc func(event string, payload any) error

func (f EmitterFunc) Emit(event string, payload any) error {
	return f(event, payload)
}
