package events

// Player event type tags.
const (
	TypePlayRequestIDChanged         = "play_request_id_changed"
	TypeTrackChanged                 = "track_changed"
	TypeStopped                      = "stopped"
	TypePlaying                      = "playing"
	TypePaused                       = "paused"
	TypeLoading                      = "loading"
	TypePreloading                   = "preloading"
	TypeEndOfTrack                   = "end_of_track"
	TypeSeeked                       = "seeked"
	TypeUnavailable                  = "unavailable"
	TypeVolumeChanged                = "volume_changed"
	TypeShuffleChanged               = "shuffle_changed"
	TypeRepeatChanged                = "repeat_changed"
	TypeAutoPlayChanged              = "auto_play_changed"
	TypeFilterExplicitContentChanged = "filter_explicit_content_changed"
	TypeSessionDisconnected          = "session_disconnected"
)

// Repeat modes reported by RepeatChanged.
const (
	RepeatOff     = "off"
	RepeatContext = "context"
	RepeatTrack   = "track"
)

// Payload is a player event in its external form.
type Payload interface {
	EventType() string
}

type PlayRequestIDChanged struct {
	Type          string `json:"type"`
	PlayRequestID uint64 `json:"play_request_id"`
}

// TrackChanged carries the new item flattened next to the type tag.
type TrackChanged struct {
	Type string `json:"type"`
	Item
}

// Item is the external form of an audio item. Exactly one of TrackInfo and
// EpisodeInfo is set, as indicated by ItemType.
type Item struct {
	TrackID    string   `json:"track_id"`
	URI        string   `json:"uri"`
	Name       string   `json:"name"`
	DurationMS uint32   `json:"duration_ms"`
	IsExplicit bool     `json:"is_explicit"`
	Covers     []string `json:"covers"`
	Language   []string `json:"language"`
	ItemType   string   `json:"item_type"`
	*TrackInfo
	*EpisodeInfo
}

type TrackInfo struct {
	Artists      []string `json:"artists"`
	Album        string   `json:"album"`
	AlbumArtists []string `json:"album_artists"`
	Popularity   uint8    `json:"popularity"`
	Number       uint32   `json:"number"`
	DiscNumber   uint32   `json:"disc_number"`
}

type EpisodeInfo struct {
	Description     string `json:"description"`
	PublishTimeUnix int64  `json:"publish_time_unix"`
	ShowName        string `json:"show_name"`
}

// TrackEvent is used by stopped, loading, preloading, end_of_track and
// unavailable.
type TrackEvent struct {
	Type    string `json:"type"`
	TrackID string `json:"track_id"`
}

// PositionEvent is used by playing, paused and seeked.
type PositionEvent struct {
	Type       string `json:"type"`
	TrackID    string `json:"track_id"`
	PositionMS uint32 `json:"position_ms"`
}

type VolumeChanged struct {
	Type   string `json:"type"`
	Volume uint16 `json:"volume"`
}

type ShuffleChanged struct {
	Type    string `json:"type"`
	Shuffle bool   `json:"shuffle"`
}

type RepeatChanged struct {
	Type   string `json:"type"`
	Repeat string `json:"repeat"`
}

type AutoPlayChanged struct {
	Type     string `json:"type"`
	AutoPlay bool   `json:"auto_play"`
}

type FilterExplicitContentChanged struct {
	Type   string `json:"type"`
	Filter bool   `json:"filter"`
}

type SessionDisconnected struct {
	Type string `json:"type"`
}

// SinkEvent is the payload of spotify_sink_event.
type SinkEvent struct {
	Status string `json:"status"`
}

func (p PlayRequestIDChanged) EventType() string         { return p.Type }
func (p TrackChanged) EventType() string                 { return p.Type }
func (p TrackEvent) EventType() string                   { return p.Type }
func (p PositionEvent) EventType() string                { return p.Type }
func (p VolumeChanged) EventType() string                { return p.Type }
func (p ShuffleChanged) EventType() string               { return p.Type }
func (p RepeatChanged) EventType() string                { return p.Type }
func (p AutoPlayChanged) EventType() string              { return p.Type }
func (p FilterExplicitContentChanged) EventType() string { return p.Type }
func (p SessionDisconnected) EventType() string          { return p.Type }
