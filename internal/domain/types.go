package domain

import "time"

type SessionID string
type MessageID string

type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

type Orientation string

const (
	OrientationPortrait  Orientation = "portrait"
	OrientationLandscape Orientation = "landscape"
)

type Language string

const (
	LanguageEnglish Language = "en"
	LanguageChinese Language = "zh"
)

type Theme string

const (
	ThemeLight Theme = "light"
	ThemeDark  Theme = "dark"
)

// AppSettings is process-wide UI configuration. The conversation core only
// reads it for logging and language hints.
type AppSettings struct {
	Theme     Theme    `json:"theme"`
	Language  Language `json:"language"`
	DebugMode bool     `json:"debugMode"`
}

func DefaultAppSettings() AppSettings {
	return AppSettings{
		Theme:     ThemeLight,
		Language:  LanguageEnglish,
		DebugMode: false,
	}
}

type Timestamp = time.Time
