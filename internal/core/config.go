package core

type AppConfig interface {
	GetRuntimePath() string
	GetDatabasePath() string
	IsTelegramSelected() bool
	IsMatrixSelected() bool
}

// PromptConfig locates the persona material appended to the system preamble.
type PromptConfig interface {
	GetPersonaPath() string
	GetRulesPath() string
	GetPersonality() string
}

type ProviderConfig interface {
	GetModel() string
	GetVisionModel() string
	GetOpenAIAPIKey() string
	GetOpenAIBaseURL() string
	GetTemperature() float32
}

type TelegramConfig interface {
	GetTelegramToken() string
}

type MatrixConfig interface {
	GetHomeserver() string
	GetUserID() string
	GetAccessToken() string
}
