package events

import (
	"github.com/rs/zerolog"

	"github.com/Eriyc/music-visualizer/remote"
)

// Mapper turns internal player events into external payloads.
type Mapper struct {
	logger zerolog.Logger
}

func NewMapper(logger zerolog.Logger) *Mapper {
	return &Mapper{logger: logger}
}

// Map returns the external payload for ev. It reports false for events that
// must not cross the boundary: unknown variants and events whose track id
// has no external form.
func (m *Mapper) Map(ev remote.PlayerEvent) (Payload, bool) {
	switch e := ev.(type) {
	case remote.TrackChanged:
		return m.trackChanged(e.Item)
	case remote.Stopped:
		return m.trackEvent(TypeStopped, e.TrackID)
	case remote.Loading:
		return m.trackEvent(TypeLoading, e.TrackID)
	case remote.Preloading:
		return m.trackEvent(TypePreloading, e.TrackID)
	case remote.EndOfTrack:
		return m.trackEvent(TypeEndOfTrack, e.TrackID)
	case remote.Unavailable:
		return m.trackEvent(TypeUnavailable, e.TrackID)
	case remote.Playing:
		return m.positionEvent(TypePlaying, e.TrackID, e.PositionMS)
	case remote.Paused:
		return m.positionEvent(TypePaused, e.TrackID, e.PositionMS)
	case remote.Seeked:
		return m.positionEvent(TypeSeeked, e.TrackID, e.PositionMS)
	case remote.VolumeChanged:
		return VolumeChanged{Type: TypeVolumeChanged, Volume: e.Volume}, true
	case remote.ShuffleChanged:
		return ShuffleChanged{Type: TypeShuffleChanged, Shuffle: e.Shuffle}, true
	case remote.RepeatChanged:
		return RepeatChanged{Type: TypeRepeatChanged, Repeat: RepeatMode(e.Context, e.Track)}, true
	case remote.AutoPlayChanged:
		return AutoPlayChanged{Type: TypeAutoPlayChanged, AutoPlay: e.AutoPlay}, true
	case remote.FilterExplicitContentChanged:
		return FilterExplicitContentChanged{Type: TypeFilterExplicitContentChanged, Filter: e.Filter}, true
	case remote.PlayRequestIDChanged:
		return PlayRequestIDChanged{Type: TypePlayRequestIDChanged, PlayRequestID: e.PlayRequestID}, true
	case remote.SessionDisconnected:
		return SessionDisconnected{Type: TypeSessionDisconnected}, true
	default:
		return nil, false
	}
}

// RepeatMode folds the two repeat flags into one mode; track repeat wins.
func RepeatMode(context, track bool) string {
	switch {
	case track:
		return RepeatTrack
	case context:
		return RepeatContext
	default:
		return RepeatOff
	}
}

func (m *Mapper) trackID(kind string, id remote.TrackID) (string, bool) {
	s, err := id.Base62()
	if err != nil {
		m.logger.Warn().Err(err).Str("event", kind).Msg("dropping player event with invalid track id")
		return "", false
	}
	return s, true
}

func (m *Mapper) trackEvent(kind string, id remote.TrackID) (Payload, bool) {
	s, ok := m.trackID(kind, id)
	if !ok {
		return nil, false
	}
	return TrackEvent{Type: kind, TrackID: s}, true
}

func (m *Mapper) positionEvent(kind string, id remote.TrackID, position uint32) (Payload, bool) {
	s, ok := m.trackID(kind, id)
	if !ok {
		return nil, false
	}
	return PositionEvent{Type: kind, TrackID: s, PositionMS: position}, true
}

func (m *Mapper) trackChanged(item remote.AudioItem) (Payload, bool) {
	id, ok := m.trackID(TypeTrackChanged, item.TrackID)
	if !ok {
		return nil, false
	}

	out := Item{
		TrackID:    id,
		URI:        item.URI,
		Name:       item.Name,
		DurationMS: item.DurationMS,
		IsExplicit: item.IsExplicit,
		Covers:     make([]string, 0, len(item.Covers)),
		Language:   nonNil(item.Language),
	}
	for _, c := range item.Covers {
		out.Covers = append(out.Covers, c.URL)
	}

	switch u := item.Unique.(type) {
	case remote.TrackFields:
		out.ItemType = "track"
		out.TrackInfo = &TrackInfo{
			Artists:      nonNil(u.Artists),
			Album:        u.Album,
			AlbumArtists: nonNil(u.AlbumArtists),
			Popularity:   u.Popularity,
			Number:       u.Number,
			DiscNumber:   u.DiscNumber,
		}
	case remote.EpisodeFields:
		out.ItemType = "episode"
		out.EpisodeInfo = &EpisodeInfo{
			Description:     u.Description,
			PublishTimeUnix: u.PublishTime.Unix(),
			ShowName:        u.ShowName,
		}
	default:
		m.logger.Warn().Str("track_id", id).Msg("dropping track change without item metadata")
		return nil, false
	}

	return TrackChanged{Type: TypeTrackChanged, Item: out}, true
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
