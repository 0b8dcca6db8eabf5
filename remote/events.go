package remote

import "time"

// PlayerEvent is a notification from the player. The set of variants is
// open: consumers must ignore variants they do not know.
type PlayerEvent interface {
	playerEvent()
}

type PlayRequestIDChanged struct {
	PlayRequestID uint64
}

type Stopped struct {
	PlayRequestID uint64
	TrackID       TrackID
}

type Loading struct {
	PlayRequestID uint64
	TrackID       TrackID
	PositionMS    uint32
}

type Preloading struct {
	TrackID TrackID
}

type Playing struct {
	PlayRequestID uint64
	TrackID       TrackID
	PositionMS    uint32
}

type Paused struct {
	PlayRequestID uint64
	TrackID       TrackID
	PositionMS    uint32
}

type TimeToPreloadNextTrack struct {
	PlayRequestID uint64
	TrackID       TrackID
}

type EndOfTrack struct {
	PlayRequestID uint64
	TrackID       TrackID
}

type Unavailable struct {
	PlayRequestID uint64
	TrackID       TrackID
}

type VolumeChanged struct {
	Volume uint16
}

type PositionCorrection struct {
	PlayRequestID uint64
	TrackID       TrackID
	PositionMS    uint32
}

type Seeked struct {
	PlayRequestID uint64
	TrackID       TrackID
	PositionMS    uint32
}

type TrackChanged struct {
	Item AudioItem
}

type SessionConnected struct {
	ConnectionID string
	UserName     string
}

type SessionDisconnected struct {
	ConnectionID string
	UserName     string
}

type SessionClientChanged struct {
	ClientID   string
	ClientName string
}

type ShuffleChanged struct {
	Shuffle bool
}

type RepeatChanged struct {
	Context bool
	Track   bool
}

type AutoPlayChanged struct {
	AutoPlay bool
}

type FilterExplicitContentChanged struct {
	Filter bool
}

func (PlayRequestIDChanged) playerEvent()         {}
func (Stopped) playerEvent()                      {}
func (Loading) playerEvent()                      {}
func (Preloading) playerEvent()                   {}
func (Playing) playerEvent()                      {}
func (Paused) playerEvent()                       {}
func (TimeToPreloadNextTrack) playerEvent()       {}
func (EndOfTrack) playerEvent()                   {}
func (Unavailable) playerEvent()                  {}
func (VolumeChanged) playerEvent()                {}
func (PositionCorrection) playerEvent()           {}
func (Seeked) playerEvent()                       {}
func (TrackChanged) playerEvent()                 {}
func (SessionConnected) playerEvent()             {}
func (SessionDisconnected) playerEvent()          {}
func (SessionClientChanged) playerEvent()         {}
func (ShuffleChanged) playerEvent()               {}
func (RepeatChanged) playerEvent()                {}
func (AutoPlayChanged) playerEvent()              {}
func (FilterExplicitContentChanged) playerEvent() {}

// AudioItem is the metadata of the item now playing.
type AudioItem struct {
	TrackID    TrackID
	URI        string
	Name       string
	DurationMS uint32
	IsExplicit bool
	Covers     []Image
	Language   []string
	// Unique is TrackFields or EpisodeFields
	Unique UniqueFields
}

// Image is a cover art image.
type Image struct {
	URL    string
	Width  int
	Height int
}

// UniqueFields holds the metadata specific to the item kind.
type UniqueFields interface {
	uniqueFields()
}

type TrackFields struct {
	Artists      []string
	Album        string
	AlbumArtists []string
	Popularity   uint8
	Number       uint32
	DiscNumber   uint32
}

type EpisodeFields struct {
	Description string
	PublishTime time.Time
	ShowName    string
}

func (TrackFields) uniqueFields()   {}
func (EpisodeFields) uniqueFields() {}
