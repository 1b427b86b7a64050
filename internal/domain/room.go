package domain

// RoomID identifies a voice channel. It is the channel id issued by the guild service.
type RoomID string

// GuildID identifies the guild a room belongs to.
type GuildID string

type RoomInfo struct {
	ID          RoomID `json:"roomId"`
	MemberCount int    `json:"memberCount"`
}
